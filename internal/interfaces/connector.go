package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/trado/internal/models"
)

// FetchRequest carries everything a connector needs for one run. The date
// window is inclusive and UTC-normalized by the aggregator before fan-out.
type FetchRequest struct {
	Token    string
	DateFrom time.Time
	DateTo   time.Time

	// TargetEmail, when set, restricts calendar events to those whose
	// attendee list contains it.
	TargetEmail string

	// ChannelIDs selects messaging channels to fetch history for.
	ChannelIDs []string

	// SpreadsheetIDs selects workbooks to fetch.
	SpreadsheetIDs []string
}

// SourceConnector fetches and normalizes one external data source. Each
// connector returns a partial corpus holding only its own category; the
// aggregator merges partials.
type SourceConnector interface {
	// Source returns the source type identifier (models.SourceCalendar etc.)
	Source() string

	// Fetch retrieves and normalizes the source's data for the request
	// window. Failures are returned, not absorbed; isolation is the
	// aggregator's job.
	Fetch(ctx context.Context, req FetchRequest) (*models.Corpus, error)
}

// TokenProvider resolves (user, provider) to a plaintext bearer token.
// Token issuance, refresh and encrypted storage live behind this interface.
type TokenProvider interface {
	Resolve(ctx context.Context, userID, provider string) (string, error)
}
