// CLAUDE:SUMMARY Google Gemini generateContent provider (Flash, Pro models)
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GeminiProvider struct {
	apiKey  string
	baseURL string
	models  []string
	client  *http.Client
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		models:  []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-1.5-pro"},
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// WithBaseURL points the provider at another host, e.g. an httptest server.
func (p *GeminiProvider) WithBaseURL(u string, hc *http.Client) *GeminiProvider {
	p.baseURL = strings.TrimRight(u, "/")
	if hc != nil {
		p.client = hc
	}
	return p
}

func (p *GeminiProvider) Name() string     { return "gemini" }
func (p *GeminiProvider) Models() []string { return p.models }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.models[0]
	}

	body := geminiRequest{}
	for _, m := range req.Messages {
		if m.Role == "system" {
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 || req.TopP > 0 {
		gc := &geminiGenerationConfig{}
		if req.Temperature > 0 {
			gc.Temperature = &req.Temperature
		}
		if req.MaxTokens > 0 {
			gc.MaxOutputTokens = &req.MaxTokens
		}
		if req.TopP > 0 {
			gc.TopP = &req.TopP
		}
		body.GenerationConfig = gc
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))

	var out geminiResponse
	latency, err := postJSON(ctx, p.client, "gemini", model, endpoint, nil, body, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, &ProviderError{Provider: "gemini", Model: model, Err: ErrEmptyResponse}
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	resp := &Response{
		Provider:     "gemini",
		Model:        model,
		Content:      sb.String(),
		FinishReason: out.Candidates[0].FinishReason,
		Latency:      latency,
	}
	if out.UsageMetadata != nil {
		resp.TokensIn = out.UsageMetadata.PromptTokenCount
		resp.TokensOut = out.UsageMetadata.CandidatesTokenCount
	}
	return resp, nil
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
