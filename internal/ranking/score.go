// Package ranking scores indexed documents against a free-text query.
package ranking

import (
	"math"
	"regexp"
	"strings"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// Fusion weights.
const (
	ProximityWeight  = 0.2
	PopularityWeight = 0.35
)

var queryPunctuation = regexp.MustCompile(`[^\w\s]`)

// Keyword is one matched term of a candidate document.
type Keyword struct {
	Word                string
	Occurrences         int
	Position            int
	DocumentsContaining int64
}

// Group holds the matched keywords of one document in position order.
type Group struct {
	Document search.Document
	Keywords []Keyword
}

// NormalizeQuery lowercases, strips punctuation, drops one-letter tokens and
// lemmatizes the rest. Duplicates are kept.
func NormalizeQuery(q string, lemmatizer search.Lemmatizer) []string {
	fields := strings.Fields(queryPunctuation.ReplaceAllString(strings.ToLower(q), " "))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if lemmatizer != nil {
			f = lemmatizer.Lemma(f)
		}
		out = append(out, f)
	}
	return out
}

// GroupCandidates groups rows by document URL in first-appearance order.
func GroupCandidates(candidates []search.Candidate) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, c := range candidates {
		i, ok := index[c.Document.URL]
		if !ok {
			i = len(groups)
			index[c.Document.URL] = i
			groups = append(groups, Group{Document: c.Document})
		}
		groups[i].Keywords = append(groups[i].Keywords, Keyword{
			Word:                c.Word,
			Occurrences:         c.Occurrences,
			Position:            c.Position,
			DocumentsContaining: c.DocumentsContaining,
		})
	}
	return groups
}

// Similarity is the TF-IDF cosine between the query and the matched terms of g.
func Similarity(documentCount int64, query []string, g Group) float64 {
	if len(query) == 0 {
		return 0
	}
	queryTF := make(map[string]float64, len(query))
	for _, w := range query {
		queryTF[w]++
	}
	for w, n := range queryTF {
		queryTF[w] = n / float64(len(query))
	}

	var dot, sumQ, sumD float64
	for _, kw := range g.Keywords {
		var tf float64
		if g.Document.WordCount > 0 {
			tf = float64(kw.Occurrences) / float64(g.Document.WordCount)
		}
		idf := IDF(documentCount, kw.DocumentsContaining)
		docWeight := tf * idf
		qWeight := queryTF[kw.Word] * idf

		dot += qWeight * docWeight
		sumQ += qWeight * qWeight
		sumD += docWeight * docWeight
	}
	denom := math.Sqrt(sumQ) * math.Sqrt(sumD)
	if denom <= 0 || math.IsNaN(denom) {
		return 0
	}
	return dot / denom
}

// IDF is 1 + ln(N/df).
func IDF(documentCount, documentsContaining int64) float64 {
	if documentsContaining <= 0 || documentCount <= 0 {
		return 1
	}
	return 1 + math.Log(float64(documentCount)/float64(documentsContaining))
}

// Proximity rewards documents whose matched keywords sit close together and
// cover the query. The result is not clamped and can be negative.
func Proximity(query []string, g Group) float64 {
	if len(g.Keywords) == 0 || len(query) == 0 {
		return 0
	}
	qlen := float64(len(query))

	current := make(map[string]struct{})
	clusters := 0
	var fulfillment float64
	for _, kw := range g.Keywords {
		if _, seen := current[kw.Word]; seen {
			fulfillment += float64(len(current)) / qlen
			clusters++
			current = make(map[string]struct{})
		}
		current[kw.Word] = struct{}{}
	}
	if len(current) > 0 {
		fulfillment += float64(len(current)) / qlen
		clusters++
	}
	if clusters == 0 {
		return 0
	}
	clusterFulfillment := fulfillment / float64(clusters)

	totalDist := 0
	for i := 0; i+1 < len(g.Keywords); i++ {
		gap := g.Keywords[i+1].Position - g.Keywords[i].Position - 1
		if gap <= len(query) {
			totalDist += gap
		}
	}
	return (1 - float64(totalDist)/float64(len(g.Keywords))) * clusterFulfillment
}

// Popularity maps rank 1..maxRank onto (1, 0]. It is 0 when maxRank is 0.
func Popularity(rank, maxRank int) float64 {
	if maxRank == 0 {
		return 0
	}
	return 1 - float64(rank)/float64(maxRank)
}

// Fuse combines the three signals into the final score.
func Fuse(similarity, proximity, popularity float64) float64 {
	return (similarity + proximity*ProximityWeight + popularity*PopularityWeight) / 3
}
