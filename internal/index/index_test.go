package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: nil},
		{name: "punctuation splits words", text: "Hello, World! It's a test.", want: []string{"hello", "world", "it", "test"}},
		{name: "digits and underscores dropped", text: "abc123 foo_bar go 2024 ok", want: []string{"go", "ok"}},
		{name: "long token dropped", text: "a " + strings.Repeat("x", 31) + " " + strings.Repeat("y", 30), want: []string{strings.Repeat("y", 30)}},
		{name: "non ascii splits", text: "café naïve", want: []string{"caf", "na", "ve"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Tokenize(tc.text)
			if tc.want == nil {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtractFirstOccurrence(t *testing.T) {
	t.Parallel()

	got := Extract([]string{"cat", "dog", "cat", "bird", "dog", "cat"})
	require.Equal(t, []search.TermStat{
		{Word: "cat", Occurrences: 3, Position: 1},
		{Word: "dog", Occurrences: 2, Position: 2},
		{Word: "bird", Occurrences: 1, Position: 4},
	}, got)
	require.Empty(t, Extract(nil))
}

type fakeWriter struct {
	saved []search.IndexedDocument
	err   error
}

func (f *fakeWriter) SaveDocument(_ context.Context, doc search.IndexedDocument) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, doc)
	return nil
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type mapLemmatizer map[string]string

func (m mapLemmatizer) Lemma(word string) string {
	if l, ok := m[word]; ok {
		return l
	}
	return word
}

func TestIndexerIndex(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	ix, err := NewIndexer(writer, mapLemmatizer{"cats": "cat"}, fixedIDs{id: "doc-1"}, nil)
	require.NoError(t, err)

	doc, err := ix.Index(context.Background(), search.DocumentInput{
		URL:         "https://example.com",
		Title:       strings.Repeat("t", 300),
		Description: strings.Repeat("d", 600),
		Text:        "Cats and a cat sleep",
		Rank:        7,
	})
	require.NoError(t, err)
	require.Equal(t, "doc-1", doc.ID)
	require.Equal(t, 4, doc.WordCount)
	require.Len(t, doc.Title, MaxTitleLength)
	require.Len(t, doc.Description, MaxDescriptionLength)
	require.Equal(t, 7, doc.Rank)

	require.Len(t, writer.saved, 1)
	require.Equal(t, []search.TermStat{
		{Word: "cat", Occurrences: 2, Position: 1},
		{Word: "and", Occurrences: 1, Position: 2},
		{Word: "sleep", Occurrences: 1, Position: 4},
	}, writer.saved[0].Terms)
}

func TestIndexerNoContent(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	ix, err := NewIndexer(writer, nil, fixedIDs{id: "x"}, nil)
	require.NoError(t, err)

	_, err = ix.Index(context.Background(), search.DocumentInput{URL: "https://example.com", Text: "1 2 3 !!"})
	require.ErrorIs(t, err, search.ErrNoContent)
	require.Empty(t, writer.saved)
}

func TestIndexerPropagatesWriterError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ix, err := NewIndexer(&fakeWriter{err: boom}, nil, fixedIDs{id: "x"}, nil)
	require.NoError(t, err)

	_, err = ix.Index(context.Background(), search.DocumentInput{URL: "https://example.com", Text: "hello world"})
	require.ErrorIs(t, err, boom)
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "héé", truncate("héééé", 3))
	require.Equal(t, "short", truncate("short", 10))
}

func TestNewIndexerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewIndexer(nil, nil, fixedIDs{}, nil)
	require.Error(t, err)
	_, err = NewIndexer(&fakeWriter{}, nil, nil, nil)
	require.Error(t, err)
}
