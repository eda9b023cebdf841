package models

import (
	"context"
	"sync"
	"time"

	"github.com/agentforge/ollama-agent/src/cache"
	"github.com/agentforge/ollama-agent/src/channel"
	"github.com/agentforge/ollama-agent/src/memory"
)

// CachedInvoker wraps an Invoker and caches the two calls that are
// stable for a given runtime: the capability probe and memoryless
// Generate outputs. Multi-turn Invoke always passes through. Callers
// that want the probe re-evaluated on every query simply use the
// underlying Invoker directly. Safe for concurrent use.
type CachedInvoker struct {
	Inner Invoker
	Cache *cache.LRUCache

	mu         sync.Mutex
	probed     bool
	toolResult bool
}

// NewCachedInvoker wraps inner with a generate cache of the given size
// and TTL.
func NewCachedInvoker(inner Invoker, size int, ttl time.Duration) *CachedInvoker {
	return &CachedInvoker{Inner: inner, Cache: cache.NewLRUCache(size, ttl)}
}

func (c *CachedInvoker) Invoke(ctx context.Context, turns []memory.Turn, caps []channel.Capability, opts Options) (Response, error) {
	return c.Inner.Invoke(ctx, turns, caps, opts)
}

func (c *CachedInvoker) Generate(ctx context.Context, prompt, system string, opts Options) (string, error) {
	key := cache.HashKey(system + "\x00" + prompt)
	if val, ok := c.Cache.Get(key); ok {
		if text, ok := val.(string); ok {
			return text, nil
		}
	}

	text, err := c.Inner.Generate(ctx, prompt, system, opts)
	if err != nil {
		return "", err
	}
	c.Cache.Set(key, text)
	return text, nil
}

func (c *CachedInvoker) SupportsTools(ctx context.Context) (bool, error) {
	// The lock is held across the inner probe so concurrent callers
	// collapse into a single upstream request.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probed {
		return c.toolResult, nil
	}
	ok, err := c.Inner.SupportsTools(ctx)
	if err != nil {
		return false, err
	}
	c.probed = true
	c.toolResult = ok
	return ok, nil
}
