package unifiedllm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Backend selects the provider family and its wire protocol.
type Backend string

const (
	BackendGemini     Backend = "gemini"
	BackendOpenRouter Backend = "openrouter"
	BackendAnthropic  Backend = "anthropic"
)

// DisplayName returns the capitalized backend name shown in the banner.
func (b Backend) DisplayName() string {
	switch b {
	case BackendGemini:
		return "Gemini"
	case BackendOpenRouter:
		return "Openrouter"
	case BackendAnthropic:
		return "Anthropic"
	}
	return string(b)
}

const (
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultAnthropicBaseURL  = "https://api.anthropic.com/v1"
	DefaultMaxTokens         = 8192
)

// Secret holds a credential and never prints it.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Reveal returns the raw credential for use on the wire.
func (s Secret) Reveal() string { return string(s) }

// ProviderConfig is resolved once at startup and never mutated afterwards.
type ProviderConfig struct {
	Backend    Backend `json:"backend"`
	Endpoint   string  `json:"endpoint"`
	Model      string  `json:"model"`
	Credential Secret  `json:"credential"`
	MaxTokens  int     `json:"max_tokens"`
}

// String implements fmt.Stringer without exposing the credential.
func (c ProviderConfig) String() string {
	return fmt.Sprintf("%s model=%s endpoint=%s credential=%s", c.Backend, c.Model, c.Endpoint, c.Credential)
}

type environment struct {
	GeminiKey     string `env:"GEMINI_API_KEY"`
	OpenRouterKey string `env:"OPENROUTER_API_KEY"`
	AnthropicKey  string `env:"ANTHROPIC_API_KEY"`
	Model         string `env:"MODEL"`

	GeminiBaseURL     string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	AnthropicBaseURL  string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com/v1"`
	MaxTokens         int    `env:"NANOCODE_MAX_TOKENS" envDefault:"8192"`
}

// ResolveProviderConfig selects the backend from the given environment
// (GEMINI_API_KEY, then OPENROUTER_API_KEY, then ANTHROPIC_API_KEY). MODEL
// overrides the backend's default model. When no key is present the direct
// Anthropic backend is chosen and a ConfigurationError is returned alongside
// the config.
func ResolveProviderConfig(environ map[string]string) (ProviderConfig, error) {
	var e environment
	if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
		return ProviderConfig{}, &ConfigurationError{SDKError: SDKError{Message: "parse environment", Cause: err}}
	}

	cfg := ProviderConfig{MaxTokens: e.MaxTokens}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch {
	case e.GeminiKey != "":
		cfg.Backend = BackendGemini
		cfg.Credential = Secret(e.GeminiKey)
		cfg.Model = modelOrDefault(e.Model, BackendGemini)
		cfg.Endpoint = fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(e.GeminiBaseURL, "/"), cfg.Model)
	case e.OpenRouterKey != "":
		cfg.Backend = BackendOpenRouter
		cfg.Credential = Secret(e.OpenRouterKey)
		cfg.Model = modelOrDefault(e.Model, BackendOpenRouter)
		cfg.Endpoint = strings.TrimRight(e.OpenRouterBaseURL, "/") + "/messages"
	default:
		cfg.Backend = BackendAnthropic
		cfg.Credential = Secret(e.AnthropicKey)
		cfg.Model = modelOrDefault(e.Model, BackendAnthropic)
		cfg.Endpoint = strings.TrimRight(e.AnthropicBaseURL, "/") + "/messages"
	}

	if cfg.Credential == "" {
		return cfg, &ConfigurationError{SDKError: SDKError{
			Message: "no API key found: set GEMINI_API_KEY, OPENROUTER_API_KEY or ANTHROPIC_API_KEY",
		}}
	}
	return cfg, nil
}

func modelOrDefault(model string, backend Backend) string {
	if model != "" {
		return model
	}
	return DefaultModel(backend)
}
