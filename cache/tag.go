package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/metrics"
)

// DefaultTagResolutionTTL is how long a resolved mutable tag is trusted
// before being re-resolved (spec §4.11).
const DefaultTagResolutionTTL = 5 * time.Second

// DefaultImmutableTagEntries bounds the indefinite-TTL side of the tag
// cache. Eviction here only costs a redundant resolve, since an immutable
// tag's digest never changes once set (spec §4.5).
const DefaultImmutableTagEntries = 4096

// TagCache caches resolved (namespace?, name, tag) -> manifest digest
// mappings. Mutable tags expire after ttl; immutable tags, once observed,
// are cached with no expiry (eviction for capacity is fine — the digest
// can only be re-resolved to the same value).
type TagCache struct {
	mutable   *expirable.LRU[string, digest.Digest]
	immutable *lru.Cache[string, digest.Digest]
}

// NewTagCache constructs a TagCache. ttl <= 0 is replaced with
// DefaultTagResolutionTTL.
func NewTagCache(ttl time.Duration) *TagCache {
	if ttl <= 0 {
		ttl = DefaultTagResolutionTTL
	}
	immutable, err := lru.New[string, digest.Digest](DefaultImmutableTagEntries)
	if err != nil {
		panic(err)
	}
	return &TagCache{
		mutable:   expirable.NewLRU[string, digest.Digest](0, nil, ttl),
		immutable: immutable,
	}
}

// Get returns the cached digest for refKey, if present and unexpired.
func (c *TagCache) Get(refKey string, immutable bool) (digest.Digest, bool) {
	d, ok := c.get(refKey, immutable)
	if ok {
		metrics.CacheHit("tag")
	} else {
		metrics.CacheMiss("tag")
	}
	return d, ok
}

func (c *TagCache) get(refKey string, immutable bool) (digest.Digest, bool) {
	if immutable {
		return c.immutable.Get(refKey)
	}
	return c.mutable.Get(refKey)
}

// Put caches refKey -> d. Immutable entries never expire; mutable entries
// expire after the cache's configured TTL.
func (c *TagCache) Put(refKey string, d digest.Digest, immutable bool) {
	if immutable {
		c.immutable.Add(refKey, d)
		return
	}
	c.mutable.Add(refKey, d)
}

// Invalidate removes any cached entry for refKey, from both the mutable
// and immutable sides, so the next Get misses rather than returning a
// digest that is still within the mutable TTL.
func (c *TagCache) Invalidate(refKey string) {
	c.mutable.Remove(refKey)
	c.immutable.Remove(refKey)
}
