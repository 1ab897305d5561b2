// CLAUDE:SUMMARY Builds the multi-provider Client from config; only providers with API keys are activated
package llm

import (
	"time"

	"github.com/hazyhaar/factlens/internal/config"
)

// NewFromConfig creates a Client from the application config. Provider order
// is the fallback order.
func NewFromConfig(cfg config.LLMConfig, opts ...Option) *Client {
	var providers []Provider

	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "openai",
			BaseURL:      "https://api.openai.com/v1",
			APIKey:       cfg.OpenAIAPIKey,
			Models:       []string{"gpt-4o-mini", "gpt-4o"},
			DefaultModel: "gpt-4o-mini",
		}))
	}

	if cfg.GeminiAPIKey != "" {
		providers = append(providers, NewGeminiProvider(cfg.GeminiAPIKey))
	}

	if cfg.MistralAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "mistral",
			BaseURL:      "https://api.mistral.ai/v1",
			APIKey:       cfg.MistralAPIKey,
			Models:       []string{"mistral-large-latest", "mistral-small-latest"},
			DefaultModel: "mistral-small-latest",
		}))
	}

	if cfg.GroqAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			APIKey:       cfg.GroqAPIKey,
			Models:       []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
			DefaultModel: "llama-3.3-70b-versatile",
		}))
	}

	if cfg.OpenRouterKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "openrouter",
			BaseURL:      "https://openrouter.ai/api/v1",
			APIKey:       cfg.OpenRouterKey,
			Models:       []string{"deepseek/deepseek-chat", "meta-llama/llama-3.3-70b-instruct"},
			DefaultModel: "deepseek/deepseek-chat",
		}))
	}

	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicAPIKey))
	}

	all := append([]Option{
		WithRetry(cfg.RetryAttempts, time.Duration(cfg.RetryDelayMs)*time.Millisecond),
	}, opts...)
	return New(providers, all...)
}
