// Package generate produces ghost-text continuations from language model
// backends and exposes them as cumulative streams.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	inkling "github.com/Paranoid-AF/inkling"
	"github.com/Paranoid-AF/inkling/index"
)

// Provider generates continuations for one backend.
type Provider interface {
	// Generate starts a generation. It never blocks on the network; failures
	// surface through the returned stream's Err.
	Generate(ctx context.Context, req *Request) Stream
	// ListModels returns the model ids the backend offers.
	ListModels(ctx context.Context) ([]string, error)
	Name() string
}

// Request is the explicit context for one generation. Nothing about the
// editor is read from global state.
type Request struct {
	// Path of the document, used for the prompt and the cache key.
	Path string
	// Before and After are the text around the cursor, trimmed to the
	// configured context window.
	Before string
	After  string
	// Cursor is the byte offset of the cursor in the whole document. Before
	// ends there.
	Cursor int
	// Related passages from other documents.
	Related []string
	// System and User are the rendered prompts.
	System string
	User   string
}

// Default base URLs per provider, used when generation.base_url is empty.
var defaultBaseURLs = map[string]string{
	"openai": "https://api.openai.com/v1",
	"grok":   "https://api.x.ai/v1",
	"gemini": "https://generativelanguage.googleapis.com/v1beta/openai",
	"ollama": "http://localhost:11434",
}

// BaseURL returns the configured base URL or the provider's default.
func BaseURL(cfg inkling.GenerationConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return defaultBaseURLs[cfg.Provider]
}

// New builds the backend selected by cfg.Generation.Provider, without any
// decorators.
func New(cfg *inkling.Config) (Provider, error) {
	g := cfg.Generation
	timeout := time.Duration(g.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	switch g.Provider {
	case "openai", "grok", "gemini":
		if g.APIKey == "" {
			return nil, fmt.Errorf("%w for %s; set INKLING_GENERATION_API_KEY", ErrNotConfigured, g.Provider)
		}
		return NewOpenAI(OpenAIOptions{
			Name:        g.Provider,
			BaseURL:     BaseURL(g),
			APIKey:      g.APIKey,
			Model:       g.Model,
			MaxTokens:   g.MaxTokens,
			Temperature: g.Temperature,
			Stop:        g.Stop,
			Timeout:     timeout,
			Attribution: inkling.OpenRouterTelemetryEnabled(cfg),
		}), nil
	case "ollama":
		return NewOllama(OllamaOptions{
			BaseURL:     BaseURL(g),
			Model:       g.Model,
			MaxTokens:   g.MaxTokens,
			Temperature: g.Temperature,
			Stop:        g.Stop,
			Timeout:     timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, g.Provider)
	}
}

// NewEmbedder builds the embedding client for the related-passage index.
func NewEmbedder(cfg *inkling.Config) (index.Vectorizer, error) {
	if !inkling.EmbeddingEnabled(cfg) {
		return nil, ErrNoEmbedder
	}
	return index.NewEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model), nil
}

// Unconfigured is the provider used when New fails. Every generation ends
// immediately with the construction error, which the caller logs.
type Unconfigured struct {
	Cause error
}

func (u Unconfigured) Generate(ctx context.Context, _ *Request) Stream {
	slog.Debug("generation skipped", "error", u.Cause)
	return Failed(ctx, u.Cause)
}

func (u Unconfigured) ListModels(context.Context) ([]string, error) { return nil, u.Cause }

func (u Unconfigured) Name() string { return "unconfigured" }
