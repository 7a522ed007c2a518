// Package suggest drives the ghost-text lifecycle of editor views: it
// schedules generations, applies their streamed chunks to each view's
// session and handles acceptance.
package suggest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	inkling "github.com/Paranoid-AF/inkling"
	"github.com/Paranoid-AF/inkling/generate"
	"github.com/Paranoid-AF/inkling/index"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	backend  generate.Provider
	embedder index.Vectorizer
	prompt   *string
}

// WithProvider replaces the configured backend. The cache, rate limiter and
// output cleaning still wrap it.
func WithProvider(p generate.Provider) Option {
	return func(o *engineOptions) { o.backend = p }
}

// WithEmbedder replaces the configured embedding client.
func WithEmbedder(v index.Vectorizer) Option {
	return func(o *engineOptions) { o.embedder = v }
}

// WithPrompt sets the system prompt template instead of reading the custom
// prompt file.
func WithPrompt(tmpl string) Option {
	return func(o *engineOptions) { o.prompt = &tmpl }
}

// Engine holds what views share: the configuration, the decorated
// provider, the prompt builder and the related-passage index.
type Engine struct {
	opts engineOptions

	mu       sync.RWMutex
	cfg      *inkling.Config
	provider generate.Provider
	cache    *generate.Cache
	prompts  *generate.PromptBuilder
	indexer  *index.Indexer
	gatherer *generate.Gatherer
}

// NewEngine builds an engine from cfg. A provider that cannot be built is
// replaced by one whose generations fail, so views keep working without
// suggestions.
func NewEngine(cfg *inkling.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = inkling.DefaultConfig()
	}
	e := &Engine{}
	for _, opt := range opts {
		opt(&e.opts)
	}
	e.indexer = e.newIndexer(cfg)
	e.apply(cfg)
	return e
}

// Reload swaps in a new configuration. Open views pick it up on their next
// event. The index is rebuilt only when the embedding settings changed.
func (e *Engine) Reload(cfg *inkling.Config) {
	e.mu.RLock()
	sameIndex := e.cfg.Embedding == cfg.Embedding
	e.mu.RUnlock()

	if !sameIndex {
		idx := e.newIndexer(cfg)
		e.mu.Lock()
		old := e.indexer
		e.indexer = idx
		e.mu.Unlock()
		old.Close()
	}
	e.apply(cfg)
	slog.Info("engine reloaded", "provider", cfg.Generation.Provider, "model", cfg.Generation.Model)
}

func (e *Engine) apply(cfg *inkling.Config) {
	provider, cache := e.buildProvider(cfg)

	custom := ""
	if e.opts.prompt != nil {
		custom = *e.opts.prompt
	} else {
		custom = generate.LoadCustomPrompt(inkling.PromptPath())
	}
	prompts := generate.NewPromptBuilder(custom)

	e.mu.Lock()
	oldCache := e.cache
	e.cfg = cfg
	e.provider = provider
	e.cache = cache
	e.prompts = prompts
	e.gatherer = generate.NewGatherer(e.indexer, cfg.Completion.ContextChars, cfg.Embedding.RelatedPassages)
	e.mu.Unlock()

	if oldCache != nil {
		oldCache.Close()
	}
}

func (e *Engine) buildProvider(cfg *inkling.Config) (generate.Provider, *generate.Cache) {
	base := e.opts.backend
	if base == nil {
		p, err := generate.New(cfg)
		if err != nil {
			slog.Warn("generation provider unavailable", "provider", cfg.Generation.Provider, "error", err)
			p = generate.Unconfigured{Cause: err}
		}
		base = p
	}

	comp := cfg.Completion
	p := generate.Limited(generate.Cleaned(base), comp.RateLimit, comp.RateBurst)
	if comp.CacheTTLMinutes <= 0 {
		return p, nil
	}
	c := generate.Cached(p, time.Duration(comp.CacheTTLMinutes)*time.Minute, comp.CacheCapacity)
	return c, c
}

func (e *Engine) newIndexer(cfg *inkling.Config) *index.Indexer {
	embedder := e.opts.embedder
	if embedder == nil {
		v, err := generate.NewEmbedder(cfg)
		if err != nil && !errors.Is(err, generate.ErrNoEmbedder) {
			slog.Warn("embedding unavailable", "error", err)
		}
		embedder = v
	}
	return index.NewIndexer(embedder, cfg.Embedding.MaxPassages)
}

// NewView opens a view on doc. An empty id gets a random one.
func (e *Engine) NewView(id string, doc Document, path string, r Renderer) *View {
	if id == "" {
		id = uuid.NewString()
	}
	return newView(e, id, doc, path, r)
}

// Config returns the configuration in effect.
func (e *Engine) Config() *inkling.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Settings returns the completion settings for a document path.
func (e *Engine) Settings(path string) inkling.Settings {
	return e.Config().ResolveSettings(path)
}

// Indexer returns the related-passage index.
func (e *Engine) Indexer() *index.Indexer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indexer
}

// ProviderName names the backend in use.
func (e *Engine) ProviderName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.provider.Name()
}

// ListModels asks the backend for its models.
func (e *Engine) ListModels(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	p := e.provider
	e.mu.RUnlock()
	return p.ListModels(ctx)
}

// fetch gathers context, renders the prompt and starts a generation.
func (e *Engine) fetch(ctx context.Context, path, text string, cursor int) generate.Stream {
	e.mu.RLock()
	provider, prompts, gatherer := e.provider, e.prompts, e.gatherer
	e.mu.RUnlock()

	req := gatherer.Gather(ctx, path, text, cursor)
	prompts.Build(req)
	return provider.Generate(ctx, req)
}

// Close stops the cache and the background indexer. Views must be closed
// first.
func (e *Engine) Close() {
	e.mu.Lock()
	cache, idx := e.cache, e.indexer
	e.cache = nil
	e.mu.Unlock()

	if cache != nil {
		cache.Close()
	}
	idx.Close()
}
