package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/metrics"
)

// DefaultWarmStateEntries is the default size of the warmed-compiler-state
// cache.
const DefaultWarmStateEntries = 64

// WarmStateCache caches opaque warmed compiler state keyed by manifest
// digest (spec §4.11). It guarantees at-most-one concurrent warmup per
// key: concurrent callers for the same manifest digest on a cold cache
// coalesce onto a single call to warm (spec §8 property 7).
type WarmStateCache struct {
	lru    *lru.Cache[digest.Digest, any]
	flight singleflight.Group
}

// NewWarmStateCache constructs a WarmStateCache holding at most size
// entries. size <= 0 is replaced with DefaultWarmStateEntries.
func NewWarmStateCache(size int) *WarmStateCache {
	if size <= 0 {
		size = DefaultWarmStateEntries
	}
	c, err := lru.New[digest.Digest, any](size)
	if err != nil {
		panic(err)
	}
	return &WarmStateCache{lru: c}
}

// GetOrWarm returns the cached warm state for d, calling warm to produce
// it on a miss. Concurrent GetOrWarm calls for the same d share a single
// invocation of warm. A panic inside warm is recovered, the key is never
// populated, and GetOrWarm returns errcode.ErrCompileFailed with sub-kind
// InternalError (spec §5: "a panicking compilation MUST NOT poison the
// warmed-state cache").
func (c *WarmStateCache) GetOrWarm(ctx context.Context, d digest.Digest, warm func(context.Context) (any, error)) (any, error) {
	if state, ok := c.lru.Get(d); ok {
		metrics.CacheHit("warmstate")
		return state, nil
	}
	metrics.CacheMiss("warmstate")

	v, err, shared := c.flight.Do(string(d), func() (result any, warmErr error) {
		metrics.WarmupStarted()
		defer func() {
			if r := recover(); r != nil {
				result = nil
				warmErr = errcode.ErrCompileFailed.WithDetail(errcode.CompileFailure{
					Sub: errcode.InternalError,
					Diagnostics: []errcode.Diagnostic{
						{Message: fmt.Sprintf("panic during warmup: %v", r)},
					},
				})
			}
		}()

		state, warmErr := warm(ctx)
		if warmErr != nil {
			return nil, warmErr
		}

		c.lru.Add(d, state)
		return state, nil
	})
	if shared {
		metrics.WarmupCoalesced()
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Peek returns the cached state for d without triggering a warmup.
func (c *WarmStateCache) Peek(d digest.Digest) (any, bool) {
	return c.lru.Peek(d)
}

// Put overwrites d's cached state directly, bypassing the singleflight
// coalescing GetOrWarm performs on a miss. Callers use this to record
// the outcome of a render alongside (or in place of) a compiler's
// warmed state, e.g. so a subsequent render with an unchanged data
// digest can shortcut compilation (spec §4.9 step 3).
func (c *WarmStateCache) Put(d digest.Digest, state any) {
	c.lru.Add(d, state)
}
