package index

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/cuemby/strata/pkg/errs"
	"github.com/cuemby/strata/pkg/flake"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/serde"
	"github.com/cuemby/strata/pkg/storage"
)

// maxCacheEntries bounds the LRU entry count; the effective limit is the
// byte budget, enforced by evicting oldest entries past it.
const maxCacheEntries = 1 << 17

// CacheKey identifies a cached resolution.
type CacheKey struct {
	ID     string
	Tempid string
}

type cacheEntry struct {
	node *Node
	size int64
}

// Resolver materializes unresolved nodes from storage through the codec,
// memoizing results in a byte-budgeted LRU shared across DB snapshots of
// the same ledger. Concurrent resolutions of one node collapse into a
// single read. Errors are never cached.
type Resolver struct {
	store storage.Store
	codec serde.Serde

	mu    sync.Mutex // serializes admissions and evictions
	cache *lru.Cache[CacheKey, *cacheEntry]
	bytes int64
	budget int64

	group singleflight.Group
}

// NewResolver creates a resolver with the given byte budget (minimum 1 MiB).
func NewResolver(store storage.Store, codec serde.Serde, budget int64) (*Resolver, error) {
	if budget < 1<<20 {
		budget = 1 << 20
	}
	r := &Resolver{store: store, codec: codec, budget: budget}
	cache, err := lru.NewWithEvict[CacheKey, *cacheEntry](maxCacheEntries, func(_ CacheKey, e *cacheEntry) {
		r.bytes -= e.size
		metrics.NodeCacheBytes.Sub(float64(e.size))
	})
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// Resolve returns n with its contents attached, reading through the cache.
// Already-resolved nodes pass through untouched.
func (r *Resolver) Resolve(ctx context.Context, n *Node) (*Node, error) {
	if n == nil {
		return nil, errs.E(errs.KindUnexpected, "resolve nil node")
	}
	if n.Resolved() {
		return n, nil
	}
	if n.ID == "" {
		return nil, errs.Ef(errs.KindStorage, "unresolved node without id in %s index", n.Idx)
	}

	key := CacheKey{ID: n.ID}
	r.mu.Lock()
	if e, ok := r.cache.Get(key); ok {
		r.mu.Unlock()
		metrics.NodeCacheHits.Inc()
		return e.node, nil
	}
	r.mu.Unlock()
	metrics.NodeCacheMisses.Inc()

	v, err, _ := r.group.Do(n.ID, func() (any, error) {
		return r.fetch(ctx, n)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.KindTimeout, "node resolution", err)
		}
		return nil, err
	}
	resolved := v.(*Node)
	r.admit(key, resolved)
	return resolved, nil
}

func (r *Resolver) fetch(ctx context.Context, n *Node) (*Node, error) {
	data, err := r.store.Read(ctx, n.ID)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "read node "+n.ID, err)
	}
	if data == nil {
		return nil, errs.Ef(errs.KindStorage, "node %s referenced but not found", n.ID)
	}
	if n.Leaf {
		leaf, err := r.codec.DeserializeLeaf(data)
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, "decode leaf "+n.ID, err)
		}
		set := flake.NewSet(flake.ComparatorFor(n.Idx), leaf.Flakes...)
		return n.withLeaf(set), nil
	}
	branch, err := r.codec.DeserializeBranch(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "decode branch "+n.ID, err)
	}
	children := make([]*Node, len(branch.Children))
	for i, cs := range branch.Children {
		children[i] = FromSummary(cs, n.Idx, n.Network, n.Ledger)
	}
	return n.withChildren(children), nil
}

func (r *Resolver) admit(key CacheKey, n *Node) {
	size := n.Size
	if size <= 0 {
		size = 1024
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache.Peek(key); ok {
		return
	}
	r.cache.Add(key, &cacheEntry{node: n, size: size})
	r.bytes += size
	metrics.NodeCacheBytes.Add(float64(size))
	for r.bytes > r.budget && r.cache.Len() > 1 {
		r.cache.RemoveOldest()
	}
}

// Release drops every cached entry, returning the cache's bytes to zero.
// Connections call it on close.
func (r *Resolver) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
}

// CachedBytes reports the bytes currently held.
func (r *Resolver) CachedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}
