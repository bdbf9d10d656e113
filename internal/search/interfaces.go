package search

import (
	"context"
	"io"
	"time"
)

// OriginStore reads and mutates the crawl frontier.
type OriginStore interface {
	SelectOrigins(ctx context.Context, sel Selection) ([]Origin, error)
	UpdateOrigin(ctx context.Context, update OriginUpdate) error
}

// OriginSeeder populates an empty frontier.
type OriginSeeder interface {
	CountOrigins(ctx context.Context) (int64, error)
	InsertOrigins(ctx context.Context, origins []Origin) (int64, error)
}

// DocumentWriter persists a document together with its term statistics.
// Implementations must commit all rows or none.
type DocumentWriter interface {
	SaveDocument(ctx context.Context, doc IndexedDocument) error
}

// CandidateReader serves the read side of ranking.
type CandidateReader interface {
	// Candidates returns every match for the given words ordered by position ascending.
	Candidates(ctx context.Context, words []string) ([]Candidate, error)
	DocumentCount(ctx context.Context) (int64, error)
}

// Renderer loads a URL and extracts its metadata and visible text.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// RobotsChecker reports whether crawling the root of a site is allowed.
type RobotsChecker interface {
	Allowed(ctx context.Context, url string) bool
}

// TargetValidator rejects malformed or unresolvable URLs before any fetch.
type TargetValidator interface {
	Validate(ctx context.Context, url string) error
}

// Indexer turns rendered text into stored term statistics.
type Indexer interface {
	Index(ctx context.Context, input DocumentInput) (Document, error)
}

// Lemmatizer maps a word to its canonical form.
type Lemmatizer interface {
	Lemma(word string) string
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time and sleeps; both are swapped out in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
