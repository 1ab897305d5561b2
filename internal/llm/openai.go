// CLAUDE:SUMMARY OpenAI-compatible chat provider (OpenAI, Mistral, Groq, OpenRouter) over the shared JSON transport
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIProvider talks to any endpoint that speaks the /chat/completions
// dialect.
type OpenAIProvider struct {
	name     string
	baseURL  string
	apiKey   string
	models   []string
	defModel string
	client   *http.Client
}

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name         string
	BaseURL      string // e.g. "https://api.groq.com/openai/v1"
	APIKey       string
	Models       []string
	DefaultModel string
	HTTPClient   *http.Client // optional, tests inject httptest clients
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	defModel := cfg.DefaultModel
	if defModel == "" && len(cfg.Models) > 0 {
		defModel = cfg.Models[0]
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &OpenAIProvider{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		models:   cfg.Models,
		defModel: defModel,
		client:   hc,
	}
}

func (p *OpenAIProvider) Name() string     { return p.name }
func (p *OpenAIProvider) Models() []string { return p.models }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.defModel
	}
	if model == "" {
		return nil, &ProviderError{Provider: p.name, Err: fmt.Errorf("no model specified")}
	}

	body := chatRequest{
		Model:    model,
		Messages: req.Messages,
		Seed:     req.Seed,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	if req.TopP > 0 {
		body.TopP = &req.TopP
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var out chatResponse
	latency, err := postJSON(ctx, p.client, p.name, model, p.baseURL+"/chat/completions", headers, body, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Model: model, Err: ErrEmptyResponse}
	}

	served := out.Model
	if served == "" {
		served = model
	}
	choice := out.Choices[0]
	return &Response{
		Provider:     p.name,
		Model:        served,
		Content:      choice.Message.Content,
		TokensIn:     out.Usage.PromptTokens,
		TokensOut:    out.Usage.CompletionTokens,
		FinishReason: choice.FinishReason,
		Latency:      latency,
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Seed        *int      `json:"seed,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
