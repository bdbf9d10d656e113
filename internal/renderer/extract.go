package renderer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extracted is the metadata and visible text of an HTML document.
type Extracted struct {
	Title       string
	Description string
	Text        string
}

// ExtractHTML pulls the title, meta description and body text out of body.
// Script, style and template content is dropped.
func ExtractHTML(body []byte) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extracted{}, fmt.Errorf("parse html: %w", err)
	}
	description, _ := doc.Find(`meta[name="description"]`).First().Attr("content")

	content := doc.Find("body").First()
	content.Find("script, style, noscript, template").Remove()
	var parts []string
	content.Contents().Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	return Extracted{
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(description),
		Text:        strings.Join(parts, "\n"),
	}, nil
}
