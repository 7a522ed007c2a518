// Package index embeds document paragraphs into an in-memory vector graph so
// completions can be grounded on related passages from other open documents.
package index

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

const (
	indexBatchSize = 32
	queueSize      = 16

	// minPassageLen skips headings and one-word lines.
	minPassageLen = 24
)

// Passage is one indexed paragraph.
type Passage struct {
	Path string `msgpack:"path"`
	Text string `msgpack:"text"`
}

type job struct {
	path string
	text string
}

// Indexer keeps paragraph embeddings for opened documents.
type Indexer struct {
	embedder    Vectorizer
	maxPassages int

	mu       sync.RWMutex
	graph    *hnsw.Graph[string] // keyed by passage hash
	passages map[string]Passage
	order    []string // insertion order, oldest first

	queue     chan job
	stopCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewIndexer creates an indexer. A nil embedder disables indexing and search.
func NewIndexer(embedder Vectorizer, maxPassages int) *Indexer {
	if maxPassages <= 0 {
		maxPassages = 2000
	}
	return &Indexer{
		embedder:    embedder,
		maxPassages: maxPassages,
		graph:       hnsw.NewGraph[string](),
		passages:    make(map[string]Passage),
		queue:       make(chan job, queueSize),
		stopCh:      make(chan struct{}),
	}
}

// Enabled reports whether an embedder is configured.
func (idx *Indexer) Enabled() bool { return idx.embedder != nil }

// Len returns the number of indexed passages.
func (idx *Indexer) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.passages)
}

// Model returns the embedding model name, or empty if disabled.
func (idx *Indexer) Model() string {
	if idx.embedder == nil {
		return ""
	}
	return idx.embedder.Model()
}

// Enqueue schedules path's text for background indexing. It never blocks;
// when the queue is full the document is skipped until its next change.
func (idx *Indexer) Enqueue(path, text string) {
	if idx.embedder == nil {
		return
	}
	idx.start()
	select {
	case idx.queue <- job{path: path, text: text}:
	case <-idx.stopCh:
	default:
		slog.Debug("index queue full, skipping", "path", path)
	}
}

func (idx *Indexer) start() {
	idx.startOnce.Do(func() {
		idx.wg.Add(1)
		go idx.loop()
	})
}

func (idx *Indexer) loop() {
	defer idx.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-idx.stopCh
		cancel()
	}()

	for {
		select {
		case <-idx.stopCh:
			return
		case j := <-idx.queue:
			if err := idx.Index(ctx, j.path, j.text); err != nil {
				slog.Warn("indexing failed", "path", j.path, "error", err)
			}
		}
	}
}

// Index embeds every paragraph of text not already in the graph.
func (idx *Indexer) Index(ctx context.Context, path, text string) error {
	if idx.embedder == nil {
		return nil
	}

	type pending struct {
		hash string
		text string
	}
	var toEmbed []pending
	idx.mu.RLock()
	for _, para := range splitPassages(text) {
		hash := hashPassage(para)
		if _, exists := idx.passages[hash]; !exists {
			toEmbed = append(toEmbed, pending{hash: hash, text: para})
		}
	}
	idx.mu.RUnlock()

	var firstErr error
	for i := 0; i < len(toEmbed); i += indexBatchSize {
		batch := toEmbed[i:min(i+indexBatchSize, len(toEmbed))]

		texts := make([]string, len(batch))
		for j, b := range batch {
			texts[j] = RedactShellBlocks(b.text)
		}
		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("embed batch: %w", err)
			}
			continue
		}

		nodes := make([]hnsw.Node[string], 0, len(batch))
		idx.mu.Lock()
		for j, b := range batch {
			if _, exists := idx.passages[b.hash]; exists {
				continue
			}
			nodes = append(nodes, hnsw.MakeNode(b.hash, vectors[j]))
			idx.passages[b.hash] = Passage{Path: path, Text: texts[j]}
			idx.order = append(idx.order, b.hash)
		}
		if len(nodes) > 0 {
			idx.graph.Add(nodes...)
		}
		idx.evictLocked()
		idx.mu.Unlock()
	}

	slog.Debug("indexed document", "path", path, "new_passages", len(toEmbed))
	return firstErr
}

// evictLocked drops the oldest passages beyond maxPassages.
func (idx *Indexer) evictLocked() {
	for len(idx.order) > idx.maxPassages {
		oldest := idx.order[0]
		idx.order = idx.order[1:]
		idx.graph.Delete(oldest)
		delete(idx.passages, oldest)
	}
}

// Search embeds query and returns up to topK nearest passages. Passages for
// which skip returns true are filtered out after the graph lookup.
func (idx *Indexer) Search(ctx context.Context, query string, topK int, skip func(Passage) bool) ([]Passage, error) {
	if idx.embedder == nil || topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if idx.Len() == 0 {
		return nil, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, RedactShellBlocks(query))
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	// Over-fetch so filtering still leaves topK results.
	neighbors := idx.graph.Search(queryVec, topK*2)
	out := make([]Passage, 0, topK)
	for _, n := range neighbors {
		p, ok := idx.passages[n.Key]
		if !ok || (skip != nil && skip(p)) {
			continue
		}
		out = append(out, p)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// Close stops the background indexer and waits for it to exit.
func (idx *Indexer) Close() {
	idx.closeOnce.Do(func() {
		close(idx.stopCh)
	})
	idx.wg.Wait()
}

// splitPassages splits text on blank lines into trimmed paragraphs long
// enough to be worth embedding. Duplicates are dropped.
func splitPassages(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if len(para) < minPassageLen || seen[para] {
			continue
		}
		seen[para] = true
		out = append(out, para)
	}
	return out
}

func hashPassage(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
