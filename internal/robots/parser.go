// Package robots decides whether a site's robots.txt lets the crawler in.
package robots

import "strings"

// IsRootForbidden reports whether body disallows "/" for the wildcard user
// agent. Lines without a key:value pair are skipped.
func IsRootForbidden(body string) bool {
	wildcard := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		parts := strings.Split(strings.Join(strings.Fields(line), " "), ":")
		if len(parts) < 2 {
			continue
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		if key == "user-agent" && value == "*" {
			wildcard = true
			continue
		}
		if wildcard && key == "disallow" && value == "/" {
			return true
		}
	}
	return false
}
