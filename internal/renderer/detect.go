package renderer

import (
	"bytes"
	"net/http"
	"strings"
)

// DefaultThinBodyBytes is the body size under which a script-heavy page is
// treated as a client-rendered shell.
const DefaultThinBodyBytes = 2048

// appShellMarkers are mount points left behind by common SPA frameworks.
var appShellMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// Detector decides whether a statically fetched page needs a browser to
// produce its text.
type Detector struct {
	ThinBodyBytes int
}

// NewDetector builds a Detector. A zero threshold selects DefaultThinBodyBytes.
func NewDetector(thinBodyBytes int) *Detector {
	if thinBodyBytes <= 0 {
		thinBodyBytes = DefaultThinBodyBytes
	}
	return &Detector{ThinBodyBytes: thinBodyBytes}
}

// NeedsBrowser reports whether the page should be rendered again with
// JavaScript enabled. Only 200 responses are considered.
func (d *Detector) NeedsBrowser(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if len(body) < d.ThinBodyBytes && scriptShare(body) >= 25 {
		return true
	}
	for _, marker := range appShellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of the document covered by script
// elements. An unclosed script runs to the end of the body.
func scriptShare(body []byte) int {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return 0
	}
	covered := 0
	for pos := 0; pos < total; {
		rel := strings.Index(lower[pos:], "<script")
		if rel < 0 {
			break
		}
		start := pos + rel
		end := total
		if gt := strings.IndexByte(lower[start:], '>'); gt >= 0 {
			contentStart := start + gt + 1
			if closeAt := strings.Index(lower[contentStart:], "</script>"); closeAt >= 0 {
				end = contentStart + closeAt + len("</script>")
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / total
}
