// Package renderer loads pages and extracts their title, description and
// visible text. Browser drives headless Chrome through chromedp; Static uses
// a plain HTTP GET through colly and parses the HTML with goquery. Hybrid
// fetches statically and falls back to the browser for client-rendered pages.
package renderer
