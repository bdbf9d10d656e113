package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// ErrDuplicateURL is returned when a document URL is already indexed.
var ErrDuplicateURL = errors.New("document url already exists")

type termRow struct {
	id                  string
	word                string
	documentsContaining int64
}

type postingRow struct {
	documentID  string
	termID      string
	occurrences int
	position    int
}

// Store implements the frontier, indexing and ranking storage interfaces in memory.
type Store struct {
	mu sync.RWMutex

	origins    map[string]search.Origin
	originURLs map[string]string
	nextOrigin int

	documents   map[string]search.Document
	documentURL map[string]string
	terms       map[string]*termRow
	postings    []postingRow
	nextTerm    int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		origins:     make(map[string]search.Origin),
		originURLs:  make(map[string]string),
		documents:   make(map[string]search.Document),
		documentURL: make(map[string]string),
		terms:       make(map[string]*termRow),
	}
}

// CountOrigins returns the number of frontier rows.
func (s *Store) CountOrigins(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.origins)), nil
}

// InsertOrigins adds origins, skipping URLs that already exist.
func (s *Store) InsertOrigins(_ context.Context, origins []search.Origin) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, o := range origins {
		if o.URL == "" {
			return inserted, fmt.Errorf("origin url is required")
		}
		if _, exists := s.originURLs[o.URL]; exists {
			continue
		}
		if o.ID == "" {
			s.nextOrigin++
			o.ID = "origin-" + strconv.Itoa(s.nextOrigin)
		}
		s.origins[o.ID] = o
		s.originURLs[o.URL] = o.ID
		inserted++
	}
	return inserted, nil
}

// SelectOrigins applies the selection filter and ordering.
func (s *Store) SelectOrigins(_ context.Context, sel search.Selection) ([]search.Origin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []search.Origin
	for _, o := range s.origins {
		if sel.Matches(o) {
			out = append(out, cloneOrigin(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.AttemptCount != b.AttemptCount {
			return a.AttemptCount < b.AttemptCount
		}
		return nextAttemptLess(a, b)
	})
	if sel.Limit > 0 && len(out) > sel.Limit {
		out = out[:sel.Limit]
	}
	return out, nil
}

// UpdateOrigin overwrites the mutable origin state.
func (s *Store) UpdateOrigin(_ context.Context, update search.OriginUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.origins[update.ID]
	if !ok {
		return fmt.Errorf("origin %q not found", update.ID)
	}
	o.Scraped = update.Scraped
	o.AttemptCount = update.AttemptCount
	o.NextAttempt = update.NextAttempt
	o.LastError = update.LastError
	s.origins[o.ID] = cloneOrigin(o)
	return nil
}

// Origins returns a snapshot of every origin ordered by rank.
func (s *Store) Origins() []search.Origin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]search.Origin, 0, len(s.origins))
	for _, o := range s.origins {
		out = append(out, cloneOrigin(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// SaveDocument stores a document with its terms. Validation happens before
// any mutation so a failed save leaves the store untouched.
func (s *Store) SaveDocument(_ context.Context, doc search.IndexedDocument) error {
	if doc.Document.ID == "" {
		return fmt.Errorf("document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documentURL[doc.Document.URL]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateURL, doc.Document.URL)
	}
	seen := make(map[string]struct{}, len(doc.Terms))
	for _, term := range doc.Terms {
		if _, dup := seen[term.Word]; dup {
			return fmt.Errorf("duplicate term %q in document", term.Word)
		}
		seen[term.Word] = struct{}{}
	}

	s.documents[doc.Document.ID] = doc.Document
	s.documentURL[doc.Document.URL] = doc.Document.ID
	for _, term := range doc.Terms {
		row, ok := s.terms[term.Word]
		if !ok {
			s.nextTerm++
			row = &termRow{id: "term-" + strconv.Itoa(s.nextTerm), word: term.Word}
			s.terms[term.Word] = row
		}
		row.documentsContaining++
		s.postings = append(s.postings, postingRow{
			documentID:  doc.Document.ID,
			termID:      row.id,
			occurrences: term.Occurrences,
			position:    term.Position,
		})
	}
	return nil
}

// Candidates returns matches for words ordered by position ascending.
func (s *Store) Candidates(_ context.Context, words []string) ([]search.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]*termRow, len(words))
	for _, w := range words {
		if row, ok := s.terms[w]; ok {
			wanted[row.id] = row
		}
	}
	var out []search.Candidate
	for _, p := range s.postings {
		row, ok := wanted[p.termID]
		if !ok {
			continue
		}
		out = append(out, search.Candidate{
			Document:            s.documents[p.documentID],
			Word:                row.word,
			Occurrences:         p.occurrences,
			Position:            p.position,
			DocumentsContaining: row.documentsContaining,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// DocumentCount returns the number of indexed documents.
func (s *Store) DocumentCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.documents)), nil
}

// DocumentsContaining returns the document frequency of a word.
func (s *Store) DocumentsContaining(word string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row, ok := s.terms[word]; ok {
		return row.documentsContaining
	}
	return 0
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

func nextAttemptLess(a, b search.Origin) bool {
	switch {
	case a.NextAttempt == nil && b.NextAttempt == nil:
		return a.URL < b.URL
	case a.NextAttempt == nil:
		// Postgres sorts NULLS LAST for ascending order.
		return false
	case b.NextAttempt == nil:
		return true
	default:
		return a.NextAttempt.Before(*b.NextAttempt)
	}
}

func cloneOrigin(o search.Origin) search.Origin {
	if o.NextAttempt != nil {
		t := *o.NextAttempt
		o.NextAttempt = &t
	}
	if o.LastError != nil {
		e := *o.LastError
		o.LastError = &e
	}
	return o
}
