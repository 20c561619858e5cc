package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/common"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// SpreadsheetConnector fetches workbook data from the Google Sheets API
type SpreadsheetConnector struct {
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewSpreadsheetConnector creates a spreadsheet connector
func NewSpreadsheetConnector(config *common.SpreadsheetConfig, logger arbor.ILogger) (*SpreadsheetConnector, error) {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet timeout '%s': %w", config.Timeout, err)
	}

	return &SpreadsheetConnector{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Source returns the connector's source type
func (c *SpreadsheetConnector) Source() string {
	return models.SourceSpreadsheet
}

type spreadsheetMetadata struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type valuesResponse struct {
	Values [][]interface{} `json:"values"`
}

// Fetch retrieves every selected workbook: the sheet list first, then each
// sheet's values. The first row becomes headers, remaining rows data; a
// sheet with zero rows yields empty headers and rows.
func (c *SpreadsheetConnector) Fetch(ctx context.Context, req interfaces.FetchRequest) (*models.Corpus, error) {
	corpus := &models.Corpus{}

	for _, spreadsheetID := range req.SpreadsheetIDs {
		workbook, err := c.fetchSpreadsheet(ctx, req.Token, spreadsheetID)
		if err != nil {
			return nil, err
		}
		corpus.Spreadsheets = append(corpus.Spreadsheets, *workbook)
	}

	c.logger.Debug().
		Int("spreadsheet_count", len(corpus.Spreadsheets)).
		Msg("Spreadsheet fetch completed")

	return corpus, nil
}

func (c *SpreadsheetConnector) fetchSpreadsheet(ctx context.Context, token, spreadsheetID string) (*models.SpreadsheetData, error) {
	var metadata spreadsheetMetadata
	metadataURL := fmt.Sprintf("%s/spreadsheets/%s?fields=properties.title,sheets.properties.title", c.baseURL, url.PathEscape(spreadsheetID))
	if err := c.getJSON(ctx, token, metadataURL, &metadata); err != nil {
		return nil, err
	}

	workbook := &models.SpreadsheetData{
		SpreadsheetID: spreadsheetID,
		Title:         metadata.Properties.Title,
		Sheets:        make([]models.SheetData, 0, len(metadata.Sheets)),
	}

	for _, sheet := range metadata.Sheets {
		sheetTitle := sheet.Properties.Title

		var values valuesResponse
		valuesURL := fmt.Sprintf("%s/spreadsheets/%s/values/%s", c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(sheetTitle))
		if err := c.getJSON(ctx, token, valuesURL, &values); err != nil {
			return nil, err
		}

		workbook.Sheets = append(workbook.Sheets, normalizeSheet(sheetTitle, values.Values))
	}

	return workbook, nil
}

// normalizeSheet splits raw values into headers and data rows
func normalizeSheet(title string, values [][]interface{}) models.SheetData {
	sheet := models.SheetData{
		Title:   title,
		Headers: []string{},
		Rows:    [][]string{},
	}

	if len(values) == 0 {
		return sheet
	}

	sheet.Headers = stringifyRow(values[0])
	for _, row := range values[1:] {
		sheet.Rows = append(sheet.Rows, stringifyRow(row))
	}
	return sheet
}

func stringifyRow(row []interface{}) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = fmt.Sprint(cell)
	}
	return out
}

func (c *SpreadsheetConnector) getJSON(ctx context.Context, token, reqURL string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: spreadsheet request failed: %v", models.ErrConnector, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: spreadsheet request failed: %v", models.ErrConnector, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: spreadsheet API returned %d", models.ErrConnector, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid spreadsheet response: %v", models.ErrConnector, err)
	}
	return nil
}
