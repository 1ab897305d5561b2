// CLAUDE:SUMMARY TOML configuration — server, databases, auth, LLM keys, evaluation roles, retrieval and logging
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Auth       AuthConfig       `toml:"auth"`
	LLM        LLMConfig        `toml:"llm"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Logging    LoggingConfig    `toml:"logging"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path        string `toml:"path"`
	FlowsPath   string `toml:"flows_path"`
	MetricsPath string `toml:"metrics_path"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

type LLMConfig struct {
	OpenAIAPIKey    string  `toml:"openai_api_key"`
	GeminiAPIKey    string  `toml:"gemini_api_key"`
	MistralAPIKey   string  `toml:"mistral_api_key"`
	OpenRouterKey   string  `toml:"openrouter_api_key"`
	GroqAPIKey      string  `toml:"groq_api_key"`
	AnthropicAPIKey string  `toml:"anthropic_api_key"`
	Model           string  `toml:"model"` // optional "provider/model" pin
	Temperature     float64 `toml:"temperature"`
	MaxTokens       int     `toml:"max_tokens"`
	RetryAttempts   uint    `toml:"retry_attempts"`
	RetryDelayMs    int     `toml:"retry_delay_ms"`
}

// HasAnyKey reports whether at least one provider can be activated.
func (c LLMConfig) HasAnyKey() bool {
	return c.OpenAIAPIKey != "" || c.GeminiAPIKey != "" || c.MistralAPIKey != "" ||
		c.OpenRouterKey != "" || c.GroqAPIKey != "" || c.AnthropicAPIKey != ""
}

type EvaluationConfig struct {
	Agents          []string      `toml:"agents"`
	AgentTimeoutSec int           `toml:"agent_timeout_sec"`
	MaxToolSteps    int           `toml:"max_tool_steps"`
	Research        bool          `toml:"research"`
	SynthesisModel  string        `toml:"synthesis_model"`
	CustomAgents    []CustomAgent `toml:"custom_agents"`

	Keywords      KeywordsConfig       `toml:"keywords"`
	Disagreements []DisagreementConfig `toml:"disagreements"`
}

// KeywordsConfig overrides the keyword classifiers used by the synthesis.
// Empty lists keep the built-in phrases.
type KeywordsConfig struct {
	Verdicts []VerdictPhrases `toml:"verdicts"` // checked in order
	Positive []string         `toml:"positive"`
	Negative []string         `toml:"negative"`
}

type VerdictPhrases struct {
	Verdict string   `toml:"verdict"`
	Phrases []string `toml:"phrases"`
}

// DisagreementConfig adds a disagreement rule after the built-in ones.
type DisagreementConfig struct {
	First     string `toml:"first"`
	FirstCue  string `toml:"first_cue"`
	Second    string `toml:"second"`
	SecondCue string `toml:"second_cue"`
	Message   string `toml:"message"`
}

// CustomAgent declares an additional evaluator role.
type CustomAgent struct {
	Name        string   `toml:"name"`
	Perspective string   `toml:"perspective"`
	System      string   `toml:"system"`
	Task        string   `toml:"task"`
	Tools       []string `toml:"tools"`
}

type RetrievalConfig struct {
	Provider       string `toml:"provider"` // "duckduckgo" or "none"
	Endpoint       string `toml:"endpoint"`
	SearchDelayMs  int    `toml:"search_delay_ms"`
	MaxResults     int    `toml:"max_results"`
	MaxResultChars int    `toml:"max_result_chars"`
	CacheSize      int    `toml:"cache_size"`
	CacheTTLSec    int    `toml:"cache_ttl_sec"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path:        "data/factlens.db",
			FlowsPath:   "data/flows.db",
			MetricsPath: "data/metrics.db",
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
		LLM: LLMConfig{
			Temperature:   0.3,
			MaxTokens:     2048,
			RetryAttempts: 3,
			RetryDelayMs:  500,
		},
		Evaluation: EvaluationConfig{
			AgentTimeoutSec: 90,
			MaxToolSteps:    4,
		},
		Retrieval: RetrievalConfig{
			Provider:       "duckduckgo",
			SearchDelayMs:  1000,
			MaxResults:     5,
			MaxResultChars: 1500,
			CacheSize:      256,
			CacheTTLSec:    600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills API keys left empty in the file from the environment.
func (c *Config) applyEnv() {
	envs := []struct {
		dst *string
		key string
	}{
		{&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY"},
		{&c.LLM.GeminiAPIKey, "GEMINI_API_KEY"},
		{&c.LLM.GroqAPIKey, "GROQ_API_KEY"},
		{&c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY"},
		{&c.LLM.MistralAPIKey, "MISTRAL_API_KEY"},
		{&c.LLM.OpenRouterKey, "OPENROUTER_API_KEY"},
	}
	for _, e := range envs {
		if *e.dst == "" {
			*e.dst = os.Getenv(e.key)
		}
	}
}

// Validate rejects values that would make the evaluation pipeline misbehave.
func (c *Config) Validate() error {
	if c.Evaluation.AgentTimeoutSec <= 0 {
		return fmt.Errorf("evaluation.agent_timeout_sec must be positive, got %d", c.Evaluation.AgentTimeoutSec)
	}
	if c.Evaluation.MaxToolSteps < 0 {
		return fmt.Errorf("evaluation.max_tool_steps must not be negative, got %d", c.Evaluation.MaxToolSteps)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature out of range: %v", c.LLM.Temperature)
	}
	seen := make(map[string]bool)
	for _, a := range c.Evaluation.CustomAgents {
		if a.Name == "" {
			return fmt.Errorf("evaluation.custom_agents: name is required")
		}
		if seen[a.Name] {
			return fmt.Errorf("evaluation.custom_agents: duplicate name %q", a.Name)
		}
		seen[a.Name] = true
		if a.System == "" {
			return fmt.Errorf("evaluation.custom_agents.%s: system prompt is required", a.Name)
		}
	}
	switch c.Retrieval.Provider {
	case "", "none", "duckduckgo":
	default:
		return fmt.Errorf("retrieval.provider: unsupported %q", c.Retrieval.Provider)
	}
	return nil
}
