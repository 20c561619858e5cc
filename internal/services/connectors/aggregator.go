// -----------------------------------------------------------------------
// Data Aggregator - concurrent connector fan-out with isolated failures.
// Partial data is preferable to total failure for a multi-source document.
// -----------------------------------------------------------------------

package connectors

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trado/internal/interfaces"
	"github.com/ternarybob/trado/internal/models"
)

// Aggregator fans out to the connectors selected for a document and merges
// their results into one corpus
type Aggregator struct {
	connectors map[string]interfaces.SourceConnector
	tokens     interfaces.TokenProvider
	logger     arbor.ILogger
}

// NewAggregator creates an aggregator over the given connectors
func NewAggregator(tokens interfaces.TokenProvider, logger arbor.ILogger, sourceConnectors ...interfaces.SourceConnector) *Aggregator {
	byType := make(map[string]interfaces.SourceConnector, len(sourceConnectors))
	for _, connector := range sourceConnectors {
		byType[connector.Source()] = connector
	}

	return &Aggregator{
		connectors: byType,
		tokens:     tokens,
		logger:     logger,
	}
}

// Aggregate fetches the document's selected sources concurrently and merges
// the results. A token or connector failure for one source is logged and
// degrades to an empty result for that source; sibling connectors proceed.
func (a *Aggregator) Aggregate(ctx context.Context, doc *models.Document) (*models.Corpus, models.CorpusSummary) {
	req := a.buildRequest(doc)

	merged := &models.Corpus{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, source := range doc.DataSources {
		connector, ok := a.connectors[source]
		if !ok {
			a.logger.Warn().Str("source", source).Msg("No connector registered for source, skipping")
			continue
		}

		wg.Add(1)
		go func(source string, connector interfaces.SourceConnector) {
			defer wg.Done()

			token, err := a.tokens.Resolve(ctx, doc.TenantID, source)
			if err != nil {
				a.logger.Warn().
					Err(err).
					Str("source", source).
					Msg("Token unavailable, skipping source")
				return
			}

			sourceReq := req
			sourceReq.Token = token

			partial, err := connector.Fetch(ctx, sourceReq)
			if err != nil {
				a.logger.Warn().
					Err(err).
					Str("source", source).
					Msg("Connector fetch failed, proceeding without this source")
				return
			}

			mu.Lock()
			merged.CalendarEvents = append(merged.CalendarEvents, partial.CalendarEvents...)
			merged.Messages = append(merged.Messages, partial.Messages...)
			merged.Spreadsheets = append(merged.Spreadsheets, partial.Spreadsheets...)
			mu.Unlock()
		}(source, connector)
	}

	wg.Wait()

	summary := merged.Summary()
	a.logger.Info().
		Str("document_id", doc.ID).
		Int("event_count", summary.EventCount).
		Int("message_count", summary.MessageCount).
		Int("spreadsheet_count", summary.SpreadsheetCount).
		Msg("Source aggregation completed")

	return merged, summary
}

// buildRequest normalizes the document's date range to an inclusive
// [00:00, 23:59:59] UTC window and carries the source selections.
func (a *Aggregator) buildRequest(doc *models.Document) interfaces.FetchRequest {
	from := doc.DateRangeStart.UTC()
	to := doc.DateRangeEnd.UTC()

	return interfaces.FetchRequest{
		DateFrom:       time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC),
		DateTo:         time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC),
		TargetEmail:    doc.TargetUserEmail,
		ChannelIDs:     doc.StringSliceMeta("slack_channel_ids"),
		SpreadsheetIDs: doc.StringSliceMeta("spreadsheet_ids"),
	}
}
