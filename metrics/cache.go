package metrics

var cacheRequests = CacheNamespace.NewLabeledCounter("requests", "Cache lookups by cache name and result", "cache", "result")

// CacheHit records a hit against the named cache ("manifest", "tag", or
// "warmstate").
func CacheHit(name string) {
	cacheRequests.WithValues(name, "hit").Inc(1)
}

// CacheMiss records a miss against the named cache.
func CacheMiss(name string) {
	cacheRequests.WithValues(name, "miss").Inc(1)
}
