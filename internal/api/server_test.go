package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/index"
	"github.com/JakeFAU/realtime-search-crawler/internal/ranking"
	"github.com/JakeFAU/realtime-search-crawler/internal/search"
	"github.com/JakeFAU/realtime-search-crawler/internal/storage/memory"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls []string
	resp  ranking.Response
	err   error
	panic bool
}

func (f *fakeSearcher) Search(_ context.Context, q string) (ranking.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	f.calls = append(f.calls, q)
	if f.err != nil {
		return ranking.Response{}, f.err
	}
	return f.resp, nil
}

func (f *fakeSearcher) Normalize(q string) []string {
	return strings.Fields(strings.ToLower(q))
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleResponse() ranking.Response {
	return ranking.Response{
		ExecutionSeconds: 0.01,
		Results: []ranking.Result{
			{URL: "https://a.example", Title: "A", Description: "first", Rank: 1, Score: 0.9},
		},
	}
}

func TestPostQueryReturnsResults(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: sampleResponse()}
	srv := NewServer(searcher, nil, Config{}, zap.NewNop())

	rec := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"Cats"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "executionSeconds")
	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	first, ok := results[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "https://a.example", first["url"])
	require.NotContains(t, first, "score")
	require.NotContains(t, first, "Score")
}

func TestGetQueryUsesQueryParam(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: sampleResponse()}
	srv := NewServer(searcher, nil, Config{}, zap.NewNop())

	rec := serve(t, srv.Handler(), http.MethodGet, "/api/query?q=cats+dogs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"cats dogs"}, searcher.calls)

	rec = serve(t, srv.Handler(), http.MethodGet, "/api/query", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostQueryBadRequests(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	srv := NewServer(searcher, nil, Config{}, zap.NewNop())

	rec := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"invalid JSON"}`, rec.Body.String())

	rec = serve(t, srv.Handler(), http.MethodPost, "/api/query", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, searcher.callCount())
}

func TestQueryFailureIsInternalError(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{err: errors.New("connection refused")}
	srv := NewServer(searcher, nil, Config{}, zap.NewNop())

	rec := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"cats"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSearcher{panic: true}, nil, Config{}, zap.NewNop())
	rec := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"cats"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQueryCacheKeyedByNormalizedQuery(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: sampleResponse()}
	srv := NewServer(searcher, nil, Config{CacheTTL: time.Minute}, zap.NewNop())

	first := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"Cats"}`)
	require.Equal(t, http.StatusOK, first.Code)
	second := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"  cats "}`)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, searcher.callCount())
}

func TestQueryErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{err: errors.New("down")}
	srv := NewServer(searcher, nil, Config{CacheTTL: time.Minute}, zap.NewNop())

	serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"cats"}`)
	serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"cats"}`)
	require.Equal(t, 2, searcher.callCount())
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSearcher{}, fakePinger{}, Config{}, zap.NewNop())
	rec := serve(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, srv.Handler(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(&fakeSearcher{}, fakePinger{err: errors.New("no db")}, Config{}, zap.NewNop())
	rec = serve(t, down.Handler(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointAndCORS(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeSearcher{resp: sampleResponse()}, nil, Config{}, zap.NewNop())
	serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"cats"}`)

	rec := serve(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "search_queries_total")

	rec = serve(t, srv.Handler(), http.MethodOptions, "/api/query", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "doc-" + string(rune('a'+s.n)), nil
}

func TestQueryEndToEndWithMemoryStore(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	indexer, err := index.NewIndexer(store, nil, &sequentialIDs{}, zap.NewNop())
	require.NoError(t, err)
	_, err = indexer.Index(context.Background(), search.DocumentInput{
		URL: "https://cats.example", Title: "Cats", Text: "cats purr and cats nap", Rank: 1,
	})
	require.NoError(t, err)
	_, err = indexer.Index(context.Background(), search.DocumentInput{
		URL: "https://dogs.example", Title: "Dogs", Text: "dogs bark", Rank: 2,
	})
	require.NoError(t, err)

	engine, err := ranking.NewEngine(store, nil, zap.NewNop())
	require.NoError(t, err)
	srv := NewServer(engine, store, Config{}, zap.NewNop())

	rec := serve(t, srv.Handler(), http.MethodPost, "/api/query", `{"query":"cats"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Results []struct {
			URL string `json:"url"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	require.Equal(t, "https://cats.example", resp.Results[0].URL)
}
