// Package papermake wires the blob store, caches, and render pipeline
// into the two operations a caller actually invokes: Publish (spec
// §4.6) and Render (spec §4.9, delegated to render.Pipeline). It plays
// the role the teacher's root Registry/Repository interfaces play for
// docker distribution, but flattened: papermake has no concept of a
// per-name Repository object with its own Tags/Manifests/Blobs/
// Signatures sub-services, so Registry exposes Publish and Render
// directly rather than handing back a Repository to call them through.
package papermake

import (
	"context"

	"github.com/papermake/papermake/cache"
	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/internal/dcontext"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/manifest"
	"github.com/papermake/papermake/metrics"
	"github.com/papermake/papermake/reference"
	"github.com/papermake/papermake/render"
	"github.com/papermake/papermake/store"
)

// Store is the subset of store.Store Registry needs: everything
// render.BlobStore reads, plus the writes Publish performs.
type Store interface {
	render.BlobStore
	PutBlobIfAbsent(ctx context.Context, content []byte) (digest.Digest, error)
	PutManifestIfAbsent(ctx context.Context, d digest.Digest, canonical []byte) error
	CASRef(ctx context.Context, refKey string, expected, newValue digest.Digest) error
}

// Registry is papermake's top-level entry point: a content-addressable
// store of template bundles plus a render pipeline bound to it.
type Registry struct {
	store     Store
	manifests *cache.ManifestCache
	tags      *cache.TagCache
	render    *render.Pipeline

	// PublishConcurrency bounds the number of files digested and
	// written concurrently by a single Publish call. <= 0 means
	// DefaultPublishConcurrency.
	publishConcurrency int
}

// DefaultPublishConcurrency is used when Config.PublishConcurrency <= 0.
const DefaultPublishConcurrency = 8

// Config bundles Registry's dependencies.
type Config struct {
	Store              Store
	Manifests          *cache.ManifestCache
	Tags               *cache.TagCache
	Render             *render.Pipeline
	PublishConcurrency int
}

// New constructs a Registry.
func New(cfg Config) *Registry {
	concurrency := cfg.PublishConcurrency
	if concurrency <= 0 {
		concurrency = DefaultPublishConcurrency
	}
	return &Registry{
		store:              cfg.Store,
		manifests:          cfg.Manifests,
		tags:               cfg.Tags,
		render:             cfg.Render,
		publishConcurrency: concurrency,
	}
}

// Render runs a render through the underlying pipeline. It exists so
// callers depend on a single Registry rather than reaching past it into
// the render package directly.
func (r *Registry) Render(ctx context.Context, refText string, data []byte) (render.Result, error) {
	return r.render.Render(ctx, refText, data)
}

// FileInput is one (logical_path, bytes) pair of a Publish request
// (spec §4.6).
type FileInput struct {
	Path    string
	Content []byte
}

// PublishRequest is the input to Publish (spec §4.6): namespace?, name,
// tag, a set of files including the entrypoint, and metadata.
type PublishRequest struct {
	Namespace  string
	Name       string
	Tag        string
	Entrypoint string
	Files      []FileInput
	Metadata   manifest.Metadata
}

// PublishResult is a successful Publish's outcome.
type PublishResult struct {
	ManifestDigest digest.Digest
}

// Publish implements spec §4.6's six-step algorithm: validate names and
// paths, write each file's blob, assemble and write the manifest, then
// move the tag ref to point at it — idempotently for an unchanged
// immutable tag, with one retry on a racing compare-and-swap for a
// mutable tag.
func (r *Registry) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	refKey, err := r.validateRef(req)
	if err != nil {
		metrics.PublishOutcome(errcode.Kind(err))
		return PublishResult{}, err
	}

	if err := validatePaths(req.Files); err != nil {
		metrics.PublishOutcome(errcode.Kind(err))
		return PublishResult{}, err
	}

	files, err := r.publishFiles(ctx, req.Files)
	if err != nil {
		metrics.PublishOutcome(errcode.Kind(err))
		return PublishResult{}, err
	}

	man, err := manifest.FromStruct(manifest.Manifest{
		Entrypoint: req.Entrypoint,
		Files:      files,
		Metadata:   req.Metadata,
	})
	if err != nil {
		err = errcode.ErrInvalidManifest.WithCause(err)
		metrics.PublishOutcome(errcode.Kind(err))
		return PublishResult{}, err
	}

	if err := r.store.PutManifestIfAbsent(ctx, man.Digest(), man.Canonical()); err != nil {
		metrics.PublishOutcome(errcode.Kind(err))
		return PublishResult{}, err
	}

	if err := r.updateRef(ctx, refKey, reference.IsImmutableTag(req.Tag), man.Digest()); err != nil {
		metrics.PublishOutcome(errcode.Kind(err))
		return PublishResult{}, err
	}

	r.manifests.Put(man)
	r.tags.Put(refKey, man.Digest(), reference.IsImmutableTag(req.Tag))
	dcontext.GetLogger(ctx).Infof("published %s -> %s", refKey, man.Digest())

	metrics.PublishOutcome("Success")
	return PublishResult{ManifestDigest: man.Digest()}, nil
}

// validateRef checks the namespace/name/tag grammar (spec §3/§4.4) and
// returns the ref key the tag resolves under (spec §4.2, store.RefPath).
func (r *Registry) validateRef(req PublishRequest) (string, error) {
	full := req.Name
	if req.Namespace != "" {
		full = req.Namespace + "/" + req.Name
	}
	named, err := reference.WithName(full)
	if err != nil {
		return "", errcode.ErrInvalidReference.WithCause(err)
	}
	if _, err := reference.WithTag(named, req.Tag); err != nil {
		return "", errcode.ErrInvalidReference.WithCause(err)
	}
	return store.RefPath(req.Namespace, req.Name, req.Tag), nil
}

// updateRef implements steps 5-6 of spec §4.6: an immutable tag already
// pinned to a different digest is a hard failure; pinned to the same
// digest is idempotent success; otherwise cas_ref is attempted, with one
// retry on Conflict for mutable tags only.
func (r *Registry) updateRef(ctx context.Context, refKey string, immutable bool, newValue digest.Digest) error {
	current, found, err := r.store.GetRef(ctx, refKey)
	if err != nil {
		return err
	}

	if immutable && found {
		if current == newValue {
			return nil
		}
		return errcode.ErrImmutableTagExists.WithDetail(
			"tag already points to a different manifest")
	}

	expected := digest.Digest("")
	if found {
		expected = current
	}

	err = r.store.CASRef(ctx, refKey, expected, newValue)
	if err == nil {
		return nil
	}
	if immutable || errcode.Kind(err) != "TagUpdateConflict" {
		return err
	}

	current, found, err = r.store.GetRef(ctx, refKey)
	if err != nil {
		return err
	}
	expected = digest.Digest("")
	if found {
		expected = current
	}
	return r.store.CASRef(ctx, refKey, expected, newValue)
}
