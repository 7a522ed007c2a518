package index

import (
	"fmt"
	"os"

	"github.com/coder/hnsw"
	"github.com/vmihailenco/msgpack/v5"
)

type cacheFile struct {
	Model   string       `msgpack:"model"`
	Entries []cacheEntry `msgpack:"entries"`
}

type cacheEntry struct {
	Hash      string    `msgpack:"hash"`
	Passage   Passage   `msgpack:"passage"`
	Embedding []float32 `msgpack:"embedding"`
}

// SaveCache writes the current passages and embeddings to path.
func (idx *Indexer) SaveCache(path string) error {
	idx.mu.RLock()
	entries := make([]cacheEntry, 0, len(idx.order))
	for _, hash := range idx.order {
		vec, ok := idx.graph.Lookup(hash)
		if !ok {
			continue
		}
		entries = append(entries, cacheEntry{
			Hash:      hash,
			Passage:   idx.passages[hash],
			Embedding: vec,
		})
	}
	idx.mu.RUnlock()

	data, err := msgpack.Marshal(cacheFile{Model: idx.Model(), Entries: entries})
	if err != nil {
		return fmt.Errorf("encode index cache: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadCache restores a previously saved index. A cache written with a
// different embedding model is skipped.
func (idx *Indexer) LoadCache(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cf cacheFile
	if err := msgpack.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("decode index cache: %w", err)
	}
	if cf.Model != idx.Model() {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	nodes := make([]hnsw.Node[string], 0, len(cf.Entries))
	for _, e := range cf.Entries {
		if _, exists := idx.passages[e.Hash]; exists {
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(e.Hash, e.Embedding))
		idx.passages[e.Hash] = e.Passage
		idx.order = append(idx.order, e.Hash)
	}
	if len(nodes) > 0 {
		idx.graph.Add(nodes...)
	}
	idx.evictLocked()
	return nil
}
