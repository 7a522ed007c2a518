package generate

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Cache serves completions for text the user is typing along with. After a
// generation for "The cat sat " completes with "on the mat.", a request for
// "The cat sat on t" is answered with "he mat." without calling the backend.
type Cache struct {
	Provider

	mu      sync.Mutex
	trie    *patricia.Trie // cache keys, for prefix lookups
	entries *ttlcache.Cache[string, string]
}

// Cached wraps p with a completion cache holding up to capacity entries for
// ttl each.
func Cached(p Provider, ttl time.Duration, capacity int) *Cache {
	opts := []ttlcache.Option[string, string]{
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, string](uint64(capacity)))
	}
	c := &Cache{
		Provider: p,
		trie:     patricia.NewTrie(),
		entries:  ttlcache.New[string, string](opts...),
	}
	c.entries.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, string]) {
		c.mu.Lock()
		c.trie.Delete(patricia.Prefix(item.Key()))
		c.mu.Unlock()
	})
	go c.entries.Start()
	return c
}

// Cache keys start at a document offset that only moves in whole blocks,
// so a key stays a prefix of later keys while the user types along, even
// once the context window slides with every character.
const (
	keySpan  = 512
	keyBlock = 256
)

func cacheKey(req *Request) string {
	end := max(req.Cursor, len(req.Before))
	start := end - len(req.Before)

	anchor := 0
	if end > keySpan {
		anchor = (end - keySpan) / keyBlock * keyBlock
	}
	anchor = max(anchor, start)
	return req.Path + "\x00" + strconv.Itoa(anchor) + "\x00" + req.Before[anchor-start:]
}

// Lookup returns the cached continuation for req, if the text typed since a
// cached request is a proper prefix of that request's completion. The
// longest matching request wins.
func (c *Cache) Lookup(req *Request) (string, bool) {
	key := cacheKey(req)

	c.mu.Lock()
	var matches []string
	c.trie.VisitPrefixes(patricia.Prefix(key), func(prefix patricia.Prefix, _ patricia.Item) error {
		matches = append(matches, string(prefix))
		return nil
	})
	c.mu.Unlock()

	// VisitPrefixes walks shortest first.
	for i := len(matches) - 1; i >= 0; i-- {
		item := c.entries.Get(matches[i])
		if item == nil || item.IsExpired() {
			continue
		}
		typed := key[len(matches[i]):]
		completion := item.Value()
		if len(typed) < len(completion) && strings.HasPrefix(completion, typed) {
			return completion[len(typed):], true
		}
	}
	return "", false
}

// Store records a completed generation.
func (c *Cache) Store(req *Request, completion string) {
	if completion == "" {
		return
	}
	key := cacheKey(req)
	c.mu.Lock()
	c.trie.Set(patricia.Prefix(key), struct{}{})
	c.mu.Unlock()
	c.entries.Set(key, completion, ttlcache.DefaultTTL)
}

// Len returns the number of cached completions.
func (c *Cache) Len() int { return c.entries.Len() }

// Generate serves req from the cache when possible. Otherwise it streams
// from the wrapped provider and caches the final value of a generation
// that ran to completion.
func (c *Cache) Generate(ctx context.Context, req *Request) Stream {
	if hit, ok := c.Lookup(req); ok {
		slog.Debug("completion cache hit", "path", req.Path, "len", len(hit))
		return Static(ctx, hit)
	}
	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		last, err := forward(c.Provider.Generate(ctx, req), emit, nil)
		if err == nil && ctx.Err() == nil {
			c.Store(req, last)
		}
		return err
	})
}

// Close stops the expiry loop.
func (c *Cache) Close() {
	c.entries.Stop()
}
