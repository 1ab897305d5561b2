package llm

import (
	"context"
	"net/http"
	"strings"
)

const anthropicBaseURL = "https://api.anthropic.com/v1"

// AnthropicProvider speaks the Messages API. System prompts travel in their
// own field rather than as a message.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	models  []string
	client  *http.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: anthropicBaseURL,
		models:  []string{"claude-sonnet-4-5-20250929", "claude-haiku-4-5-20251001"},
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// WithBaseURL points the provider at another host, e.g. an httptest server.
func (p *AnthropicProvider) WithBaseURL(u string, hc *http.Client) *AnthropicProvider {
	p.baseURL = strings.TrimRight(u, "/")
	if hc != nil {
		p.client = hc
	}
	return p
}

func (p *AnthropicProvider) Name() string     { return "anthropic" }
func (p *AnthropicProvider) Models() []string { return p.models }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.models[0]
	}

	var system []string
	var messages []Message
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, m)
	}

	body := anthropicRequest{
		Model:     model,
		Messages:  messages,
		System:    strings.Join(system, "\n\n"),
		MaxTokens: 4096,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		body.TopP = &req.TopP
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var out anthropicResponse
	latency, err := postJSON(ctx, p.client, "anthropic", model, p.baseURL+"/messages", headers, body, &out)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, &ProviderError{Provider: "anthropic", Model: model, Err: ErrEmptyResponse}
	}

	return &Response{
		Provider:     "anthropic",
		Model:        out.Model,
		Content:      sb.String(),
		TokensIn:     out.Usage.InputTokens,
		TokensOut:    out.Usage.OutputTokens,
		FinishReason: out.StopReason,
		Latency:      latency,
	}, nil
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
