package renderer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

func TestBrowserRenderBeforeStart(t *testing.T) {
	t.Parallel()

	b := NewBrowser(BrowserConfig{}, nil)
	_, err := b.Render(context.Background(), "https://example.com")
	require.ErrorIs(t, err, search.ErrRendererUnavailable)
	require.NoError(t, b.Close())
}

func TestBrowserDefaults(t *testing.T) {
	t.Parallel()

	b := NewBrowser(BrowserConfig{}, nil)
	require.Equal(t, DefaultNavigationTimeout, b.cfg.NavigationTimeout)
	require.True(t, b.blocked(network.ResourceTypeImage))
	require.True(t, b.blocked(network.ResourceTypeFont))
	require.True(t, b.blocked(network.ResourceTypeMedia))
	require.False(t, b.blocked(network.ResourceTypeDocument))
	require.False(t, b.blocked(network.ResourceTypeScript))
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/a.png"},
	})
	status, url := meta.snapshot()
	require.Zero(t, status)
	require.Empty(t, url)

	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://example.com/"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 500, URL: "https://ads.example.com/frame"},
	})
	status, url = meta.snapshot()
	require.Equal(t, 200, status)
	require.Equal(t, "https://example.com/", url)
}

func chromeAvailable() bool {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestBrowserRendersPage(t *testing.T) {
	if testing.Short() || !chromeAvailable() {
		t.Skip("chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	b := NewBrowser(BrowserConfig{NavigationTimeout: 30 * time.Second, NoSandbox: true}, nil)
	require.NoError(t, b.Start(ctx))
	defer func() { require.NoError(t, b.Close()) }()

	page, err := b.Render(ctx, srv.URL)
	require.NoError(t, err)
	require.True(t, page.OK)
	require.Equal(t, "Gopher Facts", page.Title)
	require.Equal(t, "All about gophers", page.Description)
	require.Contains(t, page.Text, "Gophers dig tunnels.")

	missing, err := b.Render(ctx, srv.URL+"/missing")
	require.NoError(t, err)
	require.False(t, missing.OK)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	require.NoError(t, b.Close())
	_, err = b.Render(ctx, srv.URL)
	require.ErrorIs(t, err, search.ErrRendererUnavailable)
}
