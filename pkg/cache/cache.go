package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sitekit/sitekit/pkg/repo"
)

// SiteCache maps site short names to backing node identities. Entries are
// hints: callers revalidate existence before trusting them.
type SiteCache interface {
	Get(ctx context.Context, shortName string) (repo.NodeRef, bool)
	Put(ctx context.Context, shortName string, ref repo.NodeRef)
	Invalidate(ctx context.Context, shortName string)
}

// DefaultSize is the default LRU capacity.
const DefaultSize = 512

// LRU is a bounded in-process SiteCache.
type LRU struct {
	entries *lru.Cache[string, repo.NodeRef]
}

// NewLRU creates an LRU cache with the given capacity; non-positive sizes
// fall back to DefaultSize.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, repo.NodeRef](size)
	if err != nil {
		// lru.New only fails on non-positive sizes, which are normalized
		// above.
		panic(err)
	}
	return &LRU{entries: entries}
}

// Get returns the cached node for a short name.
func (c *LRU) Get(ctx context.Context, shortName string) (repo.NodeRef, bool) {
	return c.entries.Get(shortName)
}

// Put stores the node for a short name.
func (c *LRU) Put(ctx context.Context, shortName string, ref repo.NodeRef) {
	c.entries.Add(shortName, ref)
}

// Invalidate drops a short name's entry.
func (c *LRU) Invalidate(ctx context.Context, shortName string) {
	c.entries.Remove(shortName)
}
