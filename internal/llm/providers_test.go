package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/factlens/internal/config"
)

func TestOpenAIProvider(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"model":"m-1","choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Name: "test", BaseURL: srv.URL + "/", APIKey: "k", DefaultModel: "m-1"})
	resp, err := p.Complete(context.Background(), Request{
		Messages:    []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotAuth != "Bearer k" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Model != "m-1" || len(gotBody.Messages) != 2 {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.3 {
		t.Errorf("temperature not forwarded: %+v", gotBody.Temperature)
	}
	if resp.Content != "hi" || resp.TokensIn != 7 || resp.TokensOut != 2 || resp.FinishReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAnthropicProvider(t *testing.T) {
	var gotBody anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"model":"claude","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k").WithBaseURL(srv.URL, srv.Client())
	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "u"}},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotBody.System != "sys" || len(gotBody.Messages) != 1 {
		t.Errorf("system prompt not lifted: %+v", gotBody)
	}
	if resp.Content != "ab" || resp.TokensOut != 4 {
		t.Errorf("resp = %+v", resp)
	}

	bad := NewAnthropicProvider("wrong").WithBaseURL(srv.URL, srv.Client())
	if _, err := bad.Complete(context.Background(), Request{}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestGeminiProvider(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":1}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("k").WithBaseURL(srv.URL, srv.Client())
	resp, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "u"}}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
	if resp.Content != "ok" || resp.TokensIn != 5 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want error
	}{
		{"RateLimited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"Forbidden", http.StatusForbidden, "", ErrUnauthorized},
		{"TooLarge", http.StatusRequestEntityTooLarge, "", ErrContextTooLong},
		{"ContextLength", http.StatusBadRequest, `{"error":{"code":"context_length_exceeded"}}`, ErrContextTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := classifyStatus(tc.code, []byte(tc.body)); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	err := classifyStatus(http.StatusInternalServerError, []byte(strings.Repeat("x", 500)))
	if err == nil || !strings.HasPrefix(err.Error(), "HTTP 500: ") || len(err.Error()) > 220 {
		t.Errorf("unexpected 500 error: %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	c := NewFromConfig(config.LLMConfig{OpenAIAPIKey: "a", AnthropicAPIKey: "b", RetryAttempts: 2})
	got := strings.Join(c.Providers(), ",")
	if got != "openai,anthropic" {
		t.Errorf("providers = %s, want openai,anthropic", got)
	}
	if c.attempts != 2 {
		t.Errorf("attempts = %d, want 2", c.attempts)
	}

	if empty := NewFromConfig(config.LLMConfig{}); len(empty.Providers()) != 0 {
		t.Errorf("no keys should activate no providers, got %v", empty.Providers())
	}
}
