// Package cache implements the three in-process caches of spec §4.11:
// decoded manifests, resolved tag digests, and warmed compiler state.
// All three are process-local; none survives a restart. The manifest and
// warm-state caches and the immutable side of the tag cache are bounded
// by entry count; the mutable side of the tag cache is bounded only by
// its TTL and has no entry limit.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/manifest"
	"github.com/papermake/papermake/metrics"
)

// DefaultManifestEntries is the default size of the manifest cache.
const DefaultManifestEntries = 1024

// ManifestCache caches decoded manifests by digest. Entries are immutable
// once inserted: a manifest digest always decodes to the same content, so
// there is never a reason to invalidate an entry short of eviction.
type ManifestCache struct {
	lru *lru.Cache[digest.Digest, *manifest.DeserializedManifest]
}

// NewManifestCache constructs a ManifestCache holding at most size
// entries. size <= 0 is replaced with DefaultManifestEntries.
func NewManifestCache(size int) *ManifestCache {
	if size <= 0 {
		size = DefaultManifestEntries
	}
	c, err := lru.New[digest.Digest, *manifest.DeserializedManifest](size)
	if err != nil {
		// Only returns an error for size <= 0, which is excluded above.
		panic(err)
	}
	return &ManifestCache{lru: c}
}

// Get returns the cached manifest for d, if present.
func (c *ManifestCache) Get(d digest.Digest) (*manifest.DeserializedManifest, bool) {
	m, ok := c.lru.Get(d)
	if ok {
		metrics.CacheHit("manifest")
	} else {
		metrics.CacheMiss("manifest")
	}
	return m, ok
}

// Put inserts m under its own digest.
func (c *ManifestCache) Put(m *manifest.DeserializedManifest) {
	c.lru.Add(m.Digest(), m)
}

// Len reports the number of cached entries.
func (c *ManifestCache) Len() int {
	return c.lru.Len()
}
