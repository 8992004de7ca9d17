// Package provider abstracts the LLM collaborator. The pipeline treats it
// as best-effort: absence or failure always falls back to the extractive
// and lexical paths, never to a pipeline failure.
package provider

import (
	"context"
	"errors"
	"time"

	openai_provider "github.com/docsense/docsense/provider/openai"
)

// Client identifies an LLM backend.
type Client string

const (
	OpenAI Client = "openai"
	None   Client = "none"
)

// ErrUnavailable signals that no provider is configured or the configured
// one cannot be constructed. Callers treat it as "use the fallback".
var ErrUnavailable = errors.New("llm provider unavailable")

// Provider is the contract every LLM implementation satisfies.
type Provider interface {
	// Chat sends a system+user prompt pair and returns the completion text.
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options carries provider construction settings, externally supplied.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds a provider for the named client. A missing API key or the
// "none" client yields ErrUnavailable rather than a broken provider.
func New(client Client, opts Options) (Provider, error) {
	switch client {
	case OpenAI:
		if opts.APIKey == "" {
			return nil, ErrUnavailable
		}
		if opts.Model == "" {
			opts.Model = "gpt-4o-mini"
		}
		if opts.Timeout <= 0 {
			opts.Timeout = 30 * time.Second
		}
		return openai_provider.NewClient(
			opts.APIKey,
			opts.BaseURL,
			opts.Model,
			opts.Temperature,
			opts.MaxTokens,
			opts.Timeout,
		), nil
	case None, "":
		return nil, ErrUnavailable
	default:
		return nil, errors.New("unsupported LLM provider: " + string(client))
	}
}
