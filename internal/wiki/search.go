package wiki

import (
	"context"
	"html"
	"sort"
	"strings"

	"babil/internal/metrics"
)

// titleWeight makes a hit in the title count as much as three in the body.
const titleWeight = 3

// SearchResult is one page matching a query.
type SearchResult struct {
	Name      string
	Title     string
	PlainText string
	Score     int
	matched   int
}

// Search matches query tokens against page titles and rendered text, never
// against raw markup. Pages matching more distinct tokens come first, then
// higher scores, then names. An empty query matches nothing. limit <= 0
// returns every match.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	pages, err := c.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, p := range pages {
		title := strings.ToLower(p.Title)
		body := strings.ToLower(html.UnescapeString(p.CurrentPlainText))

		res := SearchResult{Name: p.Name, Title: p.Title, PlainText: p.CurrentPlainText}
		for _, tok := range tokens {
			hits := titleWeight*strings.Count(title, tok) + strings.Count(body, tok)
			if hits > 0 {
				res.matched++
				res.Score += hits
			}
		}
		if res.matched > 0 {
			results = append(results, res)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.matched != b.matched {
			return a.matched > b.matched
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Name < b.Name
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		metrics.Searches.WithLabelValues("empty").Inc()
	} else {
		metrics.Searches.WithLabelValues("hit").Inc()
	}
	return results, nil
}
