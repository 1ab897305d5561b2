package retrieval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGo queries the Instant Answer API. The abstract comes first, then
// related topics (nested topic groups are flattened).
type DuckDuckGo struct {
	Endpoint   string
	MaxResults int
	Client     *http.Client
	Logger     *slog.Logger
}

func NewDuckDuckGo(endpoint string, maxResults int) *DuckDuckGo {
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &DuckDuckGo{
		Endpoint:   endpoint,
		MaxResults: maxResults,
		Client:     &http.Client{Timeout: 20 * time.Second},
		Logger:     slog.Default(),
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	query = CleanQuery(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	u, err := url.Parse(d.Endpoint)
	if err != nil {
		return nil, &SearchError{Provider: "duckduckgo", Query: query, Err: err}
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &SearchError{Provider: "duckduckgo", Query: query, Err: err}
	}
	req.Header.Set("User-Agent", "factlens/1.0")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, &SearchError{Provider: "duckduckgo", Query: query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SearchError{Provider: "duckduckgo", Query: query, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SearchError{Provider: "duckduckgo", Query: query, Err: err}
	}
	if !gjson.ValidBytes(body) {
		return nil, &SearchError{Provider: "duckduckgo", Query: query, Err: fmt.Errorf("invalid JSON response")}
	}

	results := parseDuckDuckGo(body, d.MaxResults)
	d.Logger.Debug("duckduckgo search", "query", query, "results", len(results))
	return results, nil
}

func parseDuckDuckGo(body []byte, limit int) []Result {
	doc := gjson.ParseBytes(body)
	results := make([]Result, 0, limit)

	add := func(title, link, snippet string) bool {
		if len(results) >= limit {
			return false
		}
		if snippet == "" || link == "" {
			return true
		}
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, Result{
			Title:       title,
			URL:         link,
			Snippet:     snippet,
			Credibility: Credibility(link, title),
		})
		return true
	}

	if abs := doc.Get("AbstractText").String(); abs != "" {
		add(doc.Get("AbstractSource").String(), doc.Get("AbstractURL").String(), abs)
	}

	var walk func(topics gjson.Result) bool
	walk = func(topics gjson.Result) bool {
		cont := true
		topics.ForEach(func(_, t gjson.Result) bool {
			if nested := t.Get("Topics"); nested.IsArray() {
				cont = walk(nested)
				return cont
			}
			text := t.Get("Text").String()
			cont = add(text, t.Get("FirstURL").String(), text)
			return cont
		})
		return cont
	}
	walk(doc.Get("RelatedTopics"))
	return results
}
