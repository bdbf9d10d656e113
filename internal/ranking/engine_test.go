package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-search-crawler/internal/index"
	"github.com/JakeFAU/realtime-search-crawler/internal/search"
	"github.com/JakeFAU/realtime-search-crawler/internal/storage/memory"
)

type fakeReader struct {
	candidates []search.Candidate
	count      int64
	err        error
	words      []string
}

func (f *fakeReader) Candidates(_ context.Context, words []string) ([]search.Candidate, error) {
	f.words = words
	return f.candidates, f.err
}

func (f *fakeReader) DocumentCount(context.Context) (int64, error) {
	return f.count, nil
}

type sequentialIDs struct{ n int }

func (s *sequentialIDs) NewID() (string, error) {
	s.n++
	return "doc-" + string(rune('0'+s.n)), nil
}

func TestEngineEmptyResults(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	engine, err := NewEngine(reader, nil, nil)
	require.NoError(t, err)

	resp, err := engine.Search(context.Background(), "nothing here")
	require.NoError(t, err)
	require.Zero(t, resp.ExecutionSeconds)
	require.NotNil(t, resp.Results)
	require.Empty(t, resp.Results)
	require.Equal(t, []string{"nothing", "here"}, reader.words)

	resp, err = engine.Search(context.Background(), "!")
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestEngineDeduplicatesLookupWords(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{}
	engine, err := NewEngine(reader, nil, nil)
	require.NoError(t, err)

	_, err = engine.Search(context.Background(), "cat cat dog")
	require.NoError(t, err)
	require.Equal(t, []string{"cat", "dog"}, reader.words)
}

func TestEngineReaderErrorHasNoResults(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	engine, err := NewEngine(&fakeReader{err: boom}, nil, nil)
	require.NoError(t, err)

	resp, err := engine.Search(context.Background(), "cat")
	require.ErrorIs(t, err, boom)
	require.Nil(t, resp.Results)
}

func TestEngineOrdersByScore(t *testing.T) {
	t.Parallel()

	popular := search.Document{URL: "https://popular.com", Title: "Popular", WordCount: 10, Rank: 1}
	obscure := search.Document{URL: "https://obscure.com", Title: "Obscure", WordCount: 10, Rank: 10}
	reader := &fakeReader{
		count: 2,
		candidates: []search.Candidate{
			{Document: obscure, Word: "cat", Occurrences: 5, Position: 1, DocumentsContaining: 2},
			{Document: popular, Word: "cat", Occurrences: 1, Position: 3, DocumentsContaining: 2},
		},
	}
	engine, err := NewEngine(reader, nil, nil)
	require.NoError(t, err)

	resp, err := engine.Search(context.Background(), "cat")
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "https://popular.com", resp.Results[0].URL)
	require.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestIndexThenQueryRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	ix, err := index.NewIndexer(store, nil, &sequentialIDs{}, nil)
	require.NoError(t, err)

	_, err = ix.Index(ctx, search.DocumentInput{
		URL:   "https://gophers.example",
		Title: "Gophers",
		Text:  "Gophers dig tunnels. Gophers love gardens.",
		Rank:  3,
	})
	require.NoError(t, err)
	_, err = ix.Index(ctx, search.DocumentInput{
		URL:   "https://other.example",
		Title: "Other",
		Text:  "Nothing about burrowing rodents here.",
		Rank:  1,
	})
	require.NoError(t, err)

	engine, err := NewEngine(store, nil, nil)
	require.NoError(t, err)

	resp, err := engine.Search(ctx, "Gophers")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "https://gophers.example", resp.Results[0].URL)
	require.Equal(t, "Gophers", resp.Results[0].Title)
	require.Greater(t, resp.Results[0].Score, 0.0)
}
