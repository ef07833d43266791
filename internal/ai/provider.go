// Package ai generates wine descriptions and extracts wine data from
// documents with an LLM (Anthropic Claude or Google Gemini).
package ai

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotConfigured is returned when no provider API key is set.
var ErrNotConfigured = eris.New("ai: provider not configured")

// Request is a single-turn generation request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
	// JSON asks the provider for a JSON-only answer where it supports it.
	JSON bool
	// Document is an optional attachment (PDF) sent before the prompt.
	Document     []byte
	DocumentMIME string
}

// Provider is an LLM backend returning the model's text answer.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config selects a provider. Empty Provider picks whichever key is set,
// Anthropic first.
type Config struct {
	Provider          string
	AnthropicAPIKey   string
	AnthropicModel    string
	GeminiAPIKey      string
	GeminiModel       string
	RequestsPerMinute int
}

// New builds the configured provider wrapped in a rate limiter.
func New(ctx context.Context, cfg Config) (Provider, error) {
	name := cfg.Provider
	if name == "" {
		switch {
		case cfg.AnthropicAPIKey != "":
			name = "anthropic"
		case cfg.GeminiAPIKey != "":
			name = "gemini"
		default:
			return nil, ErrNotConfigured
		}
	}

	var (
		p   Provider
		err error
	)
	switch name {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, eris.Wrap(ErrNotConfigured, "ANTHROPIC_API_KEY is empty")
		}
		p = NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, eris.Wrap(ErrNotConfigured, "GEMINI_API_KEY is empty")
		}
		p, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("ai: unknown provider %q", name)
	}
	return NewLimited(p, cfg.RequestsPerMinute), nil
}
