// Package metrics declares papermake's go-metrics namespaces (spec
// §4.12's observability surface): registered once at init and consumed
// by the packages that actually produce the numbers (render, cache,
// papermake's publish path), so the namespace wiring itself stays in
// one place.
package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics.
	NamespacePrefix = "papermake"
)

var (
	// RenderNamespace covers the render pipeline: throughput, latency,
	// and outcome breakdown.
	RenderNamespace = metrics.NewNamespace(NamespacePrefix, "render", nil)

	// CacheNamespace covers the manifest, tag, and warm-state caches.
	CacheNamespace = metrics.NewNamespace(NamespacePrefix, "cache", nil)

	// StoreNamespace is registered for the blob store adapter; no metric
	// is declared in it.
	StoreNamespace = metrics.NewNamespace(NamespacePrefix, "store", nil)

	// PublishNamespace covers the publish pipeline.
	PublishNamespace = metrics.NewNamespace(NamespacePrefix, "publish", nil)
)

func init() {
	metrics.Register(RenderNamespace)
	metrics.Register(CacheNamespace)
	metrics.Register(StoreNamespace)
	metrics.Register(PublishNamespace)
}
