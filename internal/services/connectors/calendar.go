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

// CalendarConnector fetches events from the Google Calendar API and
// normalizes them into corpus records.
type CalendarConnector struct {
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewCalendarConnector creates a calendar connector
func NewCalendarConnector(config *common.CalendarConfig, logger arbor.ILogger) (*CalendarConnector, error) {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar timeout '%s': %w", config.Timeout, err)
	}

	return &CalendarConnector{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Source returns the connector's source type
func (c *CalendarConnector) Source() string {
	return models.SourceCalendar
}

// calendarEventItem mirrors the Calendar API event resource
type calendarEventItem struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	HTMLLink    string `json:"htmlLink"`
	Start       struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
}

type calendarEventsResponse struct {
	Items         []calendarEventItem `json:"items"`
	NextPageToken string              `json:"nextPageToken"`
}

// Fetch retrieves the primary calendar's events inside the request window.
// When a target email is set, events whose attendee list does not include it
// are dropped.
func (c *CalendarConnector) Fetch(ctx context.Context, req interfaces.FetchRequest) (*models.Corpus, error) {
	corpus := &models.Corpus{}

	pageToken := ""
	for {
		items, next, err := c.fetchPage(ctx, req, pageToken)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			event, ok := c.normalizeEvent(item, req.TargetEmail)
			if ok {
				corpus.CalendarEvents = append(corpus.CalendarEvents, event)
			}
		}

		if next == "" {
			break
		}
		pageToken = next
	}

	c.logger.Debug().
		Int("event_count", len(corpus.CalendarEvents)).
		Msg("Calendar fetch completed")

	return corpus, nil
}

func (c *CalendarConnector) fetchPage(ctx context.Context, req interfaces.FetchRequest, pageToken string) ([]calendarEventItem, string, error) {
	query := url.Values{}
	query.Set("timeMin", req.DateFrom.Format(time.RFC3339))
	query.Set("timeMax", req.DateTo.Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")
	query.Set("maxResults", "250")
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	reqURL := fmt.Sprintf("%s/calendars/primary/events?%s", c.baseURL, query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: calendar request failed: %v", models.ErrConnector, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("%w: calendar request failed: %v", models.ErrConnector, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: calendar API returned %d", models.ErrConnector, resp.StatusCode)
	}

	var body calendarEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("%w: invalid calendar response: %v", models.ErrConnector, err)
	}

	return body.Items, body.NextPageToken, nil
}

// normalizeEvent converts an API event into a corpus record, applying the
// attendee filter. All-day events carry date-only start/end values.
func (c *CalendarConnector) normalizeEvent(item calendarEventItem, targetEmail string) (models.CalendarEvent, bool) {
	attendees := make([]string, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		attendees = append(attendees, a.Email)
	}

	if targetEmail != "" {
		found := false
		for _, email := range attendees {
			if email == targetEmail {
				found = true
				break
			}
		}
		if !found {
			return models.CalendarEvent{}, false
		}
	}

	start := parseEventTime(item.Start.DateTime, item.Start.Date)
	end := parseEventTime(item.End.DateTime, item.End.Date)

	return models.CalendarEvent{
		ID:          item.ID,
		Title:       item.Summary,
		Start:       start,
		End:         end,
		Description: item.Description,
		Attendees:   attendees,
		Location:    item.Location,
		Link:        item.HTMLLink,
	}, true
}

func parseEventTime(dateTime, date string) time.Time {
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t.UTC()
		}
	}
	if date != "" {
		if t, err := time.Parse("2006-01-02", date); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
