package search

import "time"

// Mode selects which origins the frontier scheduler is willing to pick up.
type Mode string

// Frontier selection modes.
const (
	// ModeFirstPass picks origins that were never tried or whose retry is due.
	ModeFirstPass Mode = "first_pass"
	// ModeBacklog only picks previously failed origins whose retry is due.
	ModeBacklog Mode = "backlog"
)

// Origin is a persistent crawl-frontier record.
type Origin struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Rank         int        `json:"rank"`
	Scraped      bool       `json:"scraped"`
	AttemptCount int        `json:"attempt_count"`
	NextAttempt  *time.Time `json:"next_attempt,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

// Selection describes one frontier batch query.
type Selection struct {
	Mode  Mode
	Now   time.Time
	Limit int
}

// Matches reports whether the origin satisfies the selection filter.
// Stores that cannot push the filter down to their engine use it directly.
func (s Selection) Matches(o Origin) bool {
	if o.Scraped {
		return false
	}
	due := o.NextAttempt != nil && !o.NextAttempt.After(s.Now)
	if s.Mode == ModeBacklog {
		return o.AttemptCount > 0 && due
	}
	return o.NextAttempt == nil || due
}

// OriginUpdate is the full mutable state written back after a crawl attempt.
type OriginUpdate struct {
	ID           string
	Scraped      bool
	AttemptCount int
	NextAttempt  *time.Time
	LastError    *string
}

// Page is what a renderer extracted from one URL.
type Page struct {
	OK          bool
	StatusCode  int
	URL         string
	Title       string
	Description string
	Text        string
}

// DocumentInput is the raw material handed to the indexer after a successful render.
type DocumentInput struct {
	URL         string
	Title       string
	Description string
	Text        string
	Rank        int
}

// Document is a crawled page record.
type Document struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	WordCount   int    `json:"word_count"`
	Rank        int    `json:"rank"`
}

// TermStat holds the per-document statistics of one canonical word.
// Position is the 1-based index of the word's first occurrence.
type TermStat struct {
	Word        string
	Occurrences int
	Position    int
}

// IndexedDocument is the atomic unit of work persisted by a DocumentWriter.
type IndexedDocument struct {
	Document Document
	Terms    []TermStat
}

// Candidate is one (DocumentTerm, Term, Document) row matched by a query word.
type Candidate struct {
	Document            Document
	Word                string
	Occurrences         int
	Position            int
	DocumentsContaining int64
}
