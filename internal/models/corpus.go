// -----------------------------------------------------------------------
// Corpus - merged, normalized connector output for one generation run
// -----------------------------------------------------------------------

package models

import "time"

// CalendarEvent is one normalized calendar entry
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	Location    string    `json:"location,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// ChannelMessage is one normalized chat message. ThreadReplies holds the
// flattened replies of a threaded message, excluding the parent.
type ChannelMessage struct {
	ChannelID     string           `json:"channel_id"`
	ChannelName   string           `json:"channel_name,omitempty"`
	UserID        string           `json:"user_id"`
	UserName      string           `json:"user_name,omitempty"`
	Text          string           `json:"text"`
	Timestamp     time.Time        `json:"timestamp"`
	ThreadReplies []ChannelMessage `json:"thread_replies,omitempty"`
}

// SheetData is one sheet within a workbook. The first fetched row becomes
// Headers; a sheet with zero rows yields empty headers and rows.
type SheetData struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// SpreadsheetData is one fetched workbook
type SpreadsheetData struct {
	SpreadsheetID string      `json:"spreadsheet_id"`
	Title         string      `json:"title"`
	Sheets        []SheetData `json:"sheets"`
}

// Corpus is the merged result of all connector fetches for one job
type Corpus struct {
	CalendarEvents []CalendarEvent   `json:"calendar_events"`
	Messages       []ChannelMessage  `json:"messages"`
	Spreadsheets   []SpreadsheetData `json:"spreadsheets"`
}

// CorpusSummary carries counts used only for prompting context, never for
// correctness decisions
type CorpusSummary struct {
	EventCount       int `json:"event_count"`
	MessageCount     int `json:"message_count"`
	SpreadsheetCount int `json:"spreadsheet_count"`
}

// Summary computes counts over the corpus. Thread replies count as messages.
func (c *Corpus) Summary() CorpusSummary {
	messages := len(c.Messages)
	for _, m := range c.Messages {
		messages += len(m.ThreadReplies)
	}
	return CorpusSummary{
		EventCount:       len(c.CalendarEvents),
		MessageCount:     messages,
		SpreadsheetCount: len(c.Spreadsheets),
	}
}

// FilterSources returns a copy of the corpus restricted to the named source
// types. An empty source list means no filtering.
func (c *Corpus) FilterSources(sources []string) *Corpus {
	if len(sources) == 0 {
		return c
	}
	include := make(map[string]bool, len(sources))
	for _, s := range sources {
		include[s] = true
	}
	filtered := &Corpus{}
	if include[SourceCalendar] {
		filtered.CalendarEvents = c.CalendarEvents
	}
	if include[SourceMessaging] {
		filtered.Messages = c.Messages
	}
	if include[SourceSpreadsheet] {
		filtered.Spreadsheets = c.Spreadsheets
	}
	return filtered
}

// IsEmpty reports whether the corpus holds no data at all
func (c *Corpus) IsEmpty() bool {
	return len(c.CalendarEvents) == 0 && len(c.Messages) == 0 && len(c.Spreadsheets) == 0
}
