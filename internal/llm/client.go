// Package llm is the language-model gateway: a provider-agnostic request
// shape, a fallback chain across providers, retries on rate limits and a
// per-call ledger hook.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/hashicorp/go-multierror"
)

// Message represents a chat message (system/user/assistant).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic LLM completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Seed        *int      `json:"seed,omitempty"`
}

// Response is a provider-agnostic LLM completion response.
type Response struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	TokensIn     int           `json:"tokens_in"`
	TokensOut    int           `json:"tokens_out"`
	FinishReason string        `json:"finish_reason"`
	Latency      time.Duration `json:"latency_ms"`
}

// Provider is a single LLM API backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "groq").
	Name() string
	// Models returns the list of model IDs available on this provider.
	Models() []string
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CallRecorder receives one record per provider attempt.
type CallRecorder interface {
	RecordLLMCall(provider, model string, tokensIn, tokensOut, latencyMs int, success bool, errMsg string)
}

// Client sends LLM requests with fallback across multiple providers.
type Client struct {
	providers  map[string]Provider // keyed by provider name
	fallback   []string            // provider names in priority order
	attempts   uint
	retryDelay time.Duration
	recorders  []CallRecorder
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetry retries a provider on ErrRateLimited up to attempts times with
// exponential backoff starting at delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts == 0 {
			attempts = 1
		}
		c.attempts = attempts
		c.retryDelay = delay
	}
}

// WithRecorder adds a call ledger. Several recorders may be attached.
func WithRecorder(r CallRecorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a multi-provider LLM client.
func New(providers []Provider, opts ...Option) *Client {
	m := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		if _, dup := m[p.Name()]; dup {
			continue
		}
		m[p.Name()] = p
		order = append(order, p.Name())
	}
	c := &Client{
		providers:  m,
		fallback:   order,
		attempts:   1,
		retryDelay: 500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete routes "provider/model" requests directly and otherwise walks the
// fallback chain. When every provider fails the errors are aggregated.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(c.fallback) == 0 {
		return nil, ErrNoProviders
	}

	provider, model := splitModel(req.Model)
	if provider != "" {
		if p, ok := c.providers[provider]; ok {
			req.Model = model
			return c.call(ctx, p, req)
		}
	}

	var merr *multierror.Error
	for _, name := range c.fallback {
		if ctx.Err() != nil {
			merr = multierror.Append(merr, ctx.Err())
			break
		}
		resp, err := c.call(ctx, c.providers[name], req)
		if err != nil {
			c.logger.Warn("provider failed, falling back", "provider", name, "error", err)
			merr = multierror.Append(merr, err)
			continue
		}
		return resp, nil
	}
	return nil, merr.ErrorOrNil()
}

// Providers returns the names of all configured providers.
func (c *Client) Providers() []string {
	return c.fallback
}

// HasProvider checks if a named provider is configured.
func (c *Client) HasProvider(name string) bool {
	_, ok := c.providers[name]
	return ok
}

// knownProviders are the names NewFromConfig can activate.
var knownProviders = []string{"openai", "gemini", "mistral", "groq", "openrouter", "anthropic"}

// CheckModel fails with ErrProviderNotFound when model pins a known provider
// that has no API key. Other prefixes are model names containing a slash and
// pass through to the fallback chain.
func (c *Client) CheckModel(model string) error {
	provider, name := splitModel(model)
	if provider == "" || c.HasProvider(provider) || !slices.Contains(knownProviders, provider) {
		return nil
	}
	return &ProviderError{Provider: provider, Model: name, Err: ErrProviderNotFound}
}

func (c *Client) call(ctx context.Context, p Provider, req Request) (*Response, error) {
	var resp *Response
	err := retry.Do(
		func() error {
			start := time.Now()
			r, err := p.Complete(ctx, req)
			c.record(p.Name(), req.Model, r, time.Since(start), err)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrRateLimited) }),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) record(provider, model string, resp *Response, latency time.Duration, err error) {
	if len(c.recorders) == 0 {
		return
	}
	var in, out int
	errMsg := ""
	if resp != nil {
		in, out = resp.TokensIn, resp.TokensOut
		if resp.Model != "" {
			model = resp.Model
		}
	}
	if err != nil {
		errMsg = err.Error()
	}
	for _, r := range c.recorders {
		r.RecordLLMCall(provider, model, in, out, int(latency.Milliseconds()), err == nil, errMsg)
	}
}

func splitModel(model string) (provider, name string) {
	if i := strings.IndexByte(model, '/'); i >= 0 {
		return model[:i], model[i+1:]
	}
	return "", model
}
