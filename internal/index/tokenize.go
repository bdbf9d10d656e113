// Package index turns rendered page text into per-document term statistics.
package index

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

var (
	nonWord   = regexp.MustCompile(`[^\w\s]`)
	indexable = regexp.MustCompile(`^[a-z]{2,30}$`)
)

// Tokenize lowercases text, strips punctuation and keeps purely alphabetic
// tokens of 2 to 30 letters.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), " "))
	tokens := fields[:0]
	for _, f := range fields {
		if indexable.MatchString(f) {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Extract groups an ordered token stream by word. Position is the 1-based
// index of the first occurrence; results are ordered by position.
func Extract(tokens []string) []search.TermStat {
	byWord := make(map[string]int, len(tokens))
	stats := make([]search.TermStat, 0, len(tokens))
	for i, tok := range tokens {
		if idx, ok := byWord[tok]; ok {
			stats[idx].Occurrences++
			continue
		}
		byWord[tok] = len(stats)
		stats = append(stats, search.TermStat{Word: tok, Occurrences: 1, Position: i + 1})
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Position < stats[j].Position })
	return stats
}
