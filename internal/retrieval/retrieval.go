// CLAUDE:SUMMARY Evidence retrieval — Searcher contract, results, query cleaning and source credibility scoring
// Package retrieval is the evidence-retrieval capability evaluators use as
// tools. Backends sit behind Searcher; rate limiting and caching are
// decorators owned by this package, never shared globals.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var ErrEmptyQuery = errors.New("empty search query")

// Result is one search hit.
type Result struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Snippet     string  `json:"snippet"`
	Credibility float64 `json:"credibility"`
}

// Searcher returns results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// SearchError wraps a backend failure with the provider and query.
type SearchError struct {
	Provider string
	Query    string
	Err      error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s search %q: %v", e.Provider, e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Nop is a Searcher that never finds anything.
type Nop struct{}

func (Nop) Search(_ context.Context, query string) ([]Result, error) {
	if CleanQuery(query) == "" {
		return nil, ErrEmptyQuery
	}
	return nil, nil
}

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	quoteOrAngle = regexp.MustCompile(`[<>"']`)
)

const maxQueryLen = 200

// CleanQuery collapses whitespace, drops quotes and angle brackets, and caps
// the query at 200 bytes on a word boundary.
func CleanQuery(q string) string {
	q = spaceRun.ReplaceAllString(strings.TrimSpace(q), " ")
	q = quoteOrAngle.ReplaceAllString(q, "")
	if len(q) > maxQueryLen {
		q = q[:maxQueryLen]
		if i := strings.LastIndexByte(q, ' '); i > 0 {
			q = q[:i]
		}
	}
	return q
}

var trustedDomains = []string{
	"reuters.com", "ap.org", "bbc.com", "npr.org", "pbs.org",
	"gov", "bls.gov", "census.gov", "cdc.gov", "fda.gov",
	"edu", "nih.gov", "ncbi.nlm.nih.gov",
	"snopes.com", "factcheck.org", "politifact.com",
	"wikipedia.org", "britannica.com",
	"sec.gov", "federalreserve.gov", "treasury.gov",
}

var (
	newsIndicators = []string{"news", "times", "post", "herald", "tribune", "journal"}
	clickbait      = []string{"shocking", "amazing", "unbelievable", "you won't believe"}
)

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsTrusted reports whether the URL's host contains a known reliable domain.
// Matching is by substring, so "gov" and "edu" match any host carrying them.
func IsTrusted(rawURL string) bool {
	d := domainOf(rawURL)
	if d == "" {
		return false
	}
	for _, t := range trustedDomains {
		if strings.Contains(d, t) {
			return true
		}
	}
	return false
}

// Credibility scores a source in [0,1]. Unparseable URLs score 0.
func Credibility(rawURL, title string) float64 {
	d := domainOf(rawURL)
	if d == "" {
		return 0
	}
	score := 0.5
	if IsTrusted(rawURL) {
		score += 0.3
	}
	if strings.Contains(d, ".gov") {
		score += 0.2
	}
	if strings.Contains(d, ".edu") {
		score += 0.15
	}
	for _, n := range newsIndicators {
		if strings.Contains(d, n) {
			score += 0.1
			break
		}
	}
	if title != "" {
		if len(title) > 20 {
			score += 0.05
		}
		lt := strings.ToLower(title)
		for _, w := range clickbait {
			if strings.Contains(lt, w) {
				score -= 0.1
				break
			}
		}
	}
	return min(1, max(0, score))
}

// Format renders results as numbered plain text for prompts, truncated to
// maxChars (0 means no limit).
func Format(results []Result, maxChars int) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}
