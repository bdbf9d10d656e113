package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// Column limits for stored metadata, in runes.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 500
)

// Indexer tokenizes, lemmatizes and persists a rendered page.
type Indexer struct {
	writer     search.DocumentWriter
	lemmatizer search.Lemmatizer
	ids        search.IDGenerator
	logger     *zap.Logger
}

// NewIndexer builds an Indexer. A nil lemmatizer keeps tokens unchanged.
func NewIndexer(writer search.DocumentWriter, lemmatizer search.Lemmatizer, ids search.IDGenerator, logger *zap.Logger) (*Indexer, error) {
	if writer == nil {
		return nil, fmt.Errorf("document writer is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{writer: writer, lemmatizer: lemmatizer, ids: ids, logger: logger}, nil
}

// Index stores the document and its term statistics as one unit.
// Text without indexable tokens yields search.ErrNoContent and writes nothing.
func (ix *Indexer) Index(ctx context.Context, input search.DocumentInput) (search.Document, error) {
	tokens := ix.Words(input.Text)
	if len(tokens) == 0 {
		return search.Document{}, fmt.Errorf("%w: %s", search.ErrNoContent, input.URL)
	}

	id, err := ix.ids.NewID()
	if err != nil {
		return search.Document{}, fmt.Errorf("generate document id: %w", err)
	}
	doc := search.Document{
		ID:          id,
		URL:         input.URL,
		Title:       truncate(input.Title, MaxTitleLength),
		Description: truncate(input.Description, MaxDescriptionLength),
		WordCount:   len(tokens),
		Rank:        input.Rank,
	}
	terms := Extract(tokens)
	if err := ix.writer.SaveDocument(ctx, search.IndexedDocument{Document: doc, Terms: terms}); err != nil {
		return search.Document{}, fmt.Errorf("save document: %w", err)
	}
	ix.logger.Debug("document indexed",
		zap.String("url", doc.URL),
		zap.Int("word_count", doc.WordCount),
		zap.Int("terms", len(terms)),
	)
	return doc, nil
}

// Words returns the lemmatized token stream for text.
func (ix *Indexer) Words(text string) []string {
	tokens := Tokenize(text)
	if ix.lemmatizer == nil {
		return tokens
	}
	for i, tok := range tokens {
		tokens[i] = ix.lemmatizer.Lemma(tok)
	}
	return tokens
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
