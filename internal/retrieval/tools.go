package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/factlens/internal/config"
)

// Tool is a named search capability an evaluator may invoke by name.
type Tool struct {
	Name        string
	Description string
	searcher    Searcher
	rewrite     func(string) string
	maxChars    int
}

// Run executes the tool and renders the results as prompt text.
func (t Tool) Run(ctx context.Context, input string) (string, error) {
	q := input
	if t.rewrite != nil {
		q = t.rewrite(input)
	}
	res, err := t.searcher.Search(ctx, q)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.Name, err)
	}
	return Format(res, t.maxChars), nil
}

// Toolbox resolves tool names to tools.
type Toolbox struct {
	tools map[string]Tool
}

// NewToolbox registers the standard tools over one searcher.
func NewToolbox(s Searcher, maxChars int) *Toolbox {
	tb := &Toolbox{tools: map[string]Tool{}}
	tb.Register(Tool{
		Name:        "web_search",
		Description: "General web search for facts, figures and recent reporting.",
		searcher:    s,
		maxChars:    maxChars,
	})
	tb.Register(Tool{
		Name:        "factcheck_search",
		Description: "Search established fact-checkers (PolitiFact, Snopes, FactCheck.org) for prior rulings on a claim.",
		searcher:    s,
		rewrite: func(q string) string {
			return q + " site:politifact.com OR site:snopes.com OR site:factcheck.org"
		},
		maxChars: maxChars,
	})
	tb.Register(Tool{
		Name:        "academic_search",
		Description: "Search academic, peer-reviewed and official statistics sources.",
		searcher:    s,
		rewrite: func(q string) string {
			return q + " peer reviewed study statistics"
		},
		maxChars: maxChars,
	})
	return tb
}

func (tb *Toolbox) Register(t Tool) { tb.tools[t.Name] = t }

func (tb *Toolbox) Get(name string) (Tool, bool) {
	if tb == nil {
		return Tool{}, false
	}
	t, ok := tb.tools[name]
	return t, ok
}

// Names lists registered tools alphabetically.
func (tb *Toolbox) Names() []string {
	names := make([]string, 0, len(tb.tools))
	for n := range tb.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewFromConfig builds the configured searcher stack: backend, cache, then
// rate limiter in front of the backend.
func NewFromConfig(cfg config.RetrievalConfig) Searcher {
	var backend Searcher
	switch cfg.Provider {
	case "none":
		return Nop{}
	default:
		backend = NewDuckDuckGo(cfg.Endpoint, cfg.MaxResults)
	}
	limited := WithRateLimit(backend, time.Duration(cfg.SearchDelayMs)*time.Millisecond)
	if cfg.CacheSize <= 0 {
		return limited
	}
	return WithCache(limited, cfg.CacheSize, time.Duration(cfg.CacheTTLSec)*time.Second)
}
