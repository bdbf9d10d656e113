package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// Result is one ranked document as returned to clients.
type Result struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Rank        int     `json:"rank"`
	Score       float64 `json:"-"`
}

// Response is the query endpoint payload.
type Response struct {
	ExecutionSeconds float64  `json:"executionSeconds"`
	Results          []Result `json:"results"`
}

// Engine runs queries against a CandidateReader.
type Engine struct {
	reader     search.CandidateReader
	lemmatizer search.Lemmatizer
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine constructs an Engine. A nil lemmatizer leaves query words unchanged.
func NewEngine(reader search.CandidateReader, lemmatizer search.Lemmatizer, logger *zap.Logger) (*Engine, error) {
	if reader == nil {
		return nil, fmt.Errorf("candidate reader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{reader: reader, lemmatizer: lemmatizer, logger: logger, now: time.Now}, nil
}

// Normalize exposes query normalization with the engine's lemmatizer.
func (e *Engine) Normalize(q string) []string {
	return NormalizeQuery(q, e.lemmatizer)
}

// Search ranks every document matching at least one query word. Errors
// never carry partial results.
func (e *Engine) Search(ctx context.Context, q string) (Response, error) {
	start := e.now()
	words := e.Normalize(q)
	if len(words) == 0 {
		return Response{Results: []Result{}}, nil
	}

	candidates, err := e.reader.Candidates(ctx, distinct(words))
	if err != nil {
		return Response{}, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return Response{Results: []Result{}}, nil
	}

	documentCount, err := e.reader.DocumentCount(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("count documents: %w", err)
	}

	groups := GroupCandidates(candidates)
	maxRank := 0
	for _, g := range groups {
		if g.Document.Rank > maxRank {
			maxRank = g.Document.Rank
		}
	}

	results := make([]Result, 0, len(groups))
	for _, g := range groups {
		score := Fuse(
			Similarity(documentCount, words, g),
			Proximity(words, g),
			Popularity(g.Document.Rank, maxRank),
		)
		results = append(results, Result{
			URL:         g.Document.URL,
			Title:       g.Document.Title,
			Description: g.Document.Description,
			Rank:        g.Document.Rank,
			Score:       score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	elapsed := e.now().Sub(start).Seconds()
	e.logger.Debug("query ranked",
		zap.Strings("words", words),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Float64("seconds", elapsed),
	)
	return Response{ExecutionSeconds: elapsed, Results: results}, nil
}

func distinct(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
