package papermake

import (
	"context"
	"sync"
	"testing"

	"github.com/papermake/papermake/cache"
	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/engine"
	"github.com/papermake/papermake/fontset"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/manifest"
	"github.com/papermake/papermake/render"
)

func manifestMetadata() manifest.Metadata {
	return manifest.Metadata{Name: "Invoice", Author: "Billing Team"}
}

// fakeStore is an in-memory Store for registry tests: blobs and
// manifests are content-addressed maps; refs are a plain key-value
// map guarded by a mutex, standing in for store.Store's per-key-locked
// compare-and-swap.
type fakeStore struct {
	mu        sync.Mutex
	blobs     map[digest.Digest][]byte
	manifests map[digest.Digest][]byte
	refs      map[string]digest.Digest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blobs:     map[digest.Digest][]byte{},
		manifests: map[digest.Digest][]byte{},
		refs:      map[string]digest.Digest{},
	}
}

func (f *fakeStore) GetManifest(ctx context.Context, d digest.Digest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.manifests[d]
	if !ok {
		return nil, errcode.ErrCorrupt.WithDetail("manifest not found")
	}
	return b, nil
}

func (f *fakeStore) GetBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[d]
	if !ok {
		return nil, errcode.ErrCorrupt.WithDetail("blob not found")
	}
	return b, nil
}

func (f *fakeStore) BlobExists(ctx context.Context, d digest.Digest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[d]
	return ok, nil
}

func (f *fakeStore) PutBlobIfAbsent(ctx context.Context, content []byte) (digest.Digest, error) {
	d := digest.FromBytes(content)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[d]; !ok {
		f.blobs[d] = content
	}
	return d, nil
}

func (f *fakeStore) PutManifestIfAbsent(ctx context.Context, d digest.Digest, canonical []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.manifests[d]; !ok {
		f.manifests[d] = canonical
	}
	return nil
}

func (f *fakeStore) GetRef(ctx context.Context, refKey string) (digest.Digest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.refs[refKey]
	return d, ok, nil
}

func (f *fakeStore) CASRef(ctx context.Context, refKey string, expected, newValue digest.Digest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, found := f.refs[refKey]
	if expected == "" && found {
		return errcode.ErrTagUpdateConflict.WithDetail("ref already exists")
	}
	if expected != "" && (!found || current != expected) {
		return errcode.ErrTagUpdateConflict.WithDetail("ref value changed")
	}
	f.refs[refKey] = newValue
	return nil
}

func newTestRegistry(s *fakeStore) *Registry {
	manifests := cache.NewManifestCache(8)
	tags := cache.NewTagCache(0)
	warm := cache.NewWarmStateCache(8)

	pipeline := render.New(render.Config{
		Store:     s,
		Manifests: manifests,
		Tags:      tags,
		Warm:      warm,
		Engine:    engine.EchoEngine(),
		Fonts:     fontset.NewSet(map[string][]byte{}),
	})

	return New(Config{
		Store:     s,
		Manifests: manifests,
		Tags:      tags,
		Render:    pipeline,
	})
}

func samplePublish(tag string) PublishRequest {
	return PublishRequest{
		Name:       "invoice",
		Tag:        tag,
		Entrypoint: "main.typ",
		Files: []FileInput{
			{Path: "main.typ", Content: []byte("#let data = json(\"data\")")},
			{Path: "logo.png", Content: []byte("not-really-a-png")},
		},
		Metadata: manifestMetadata(),
	}
}

func TestPublishFreshMutableTag(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	res, err := r.Publish(context.Background(), samplePublish("latest"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.ManifestDigest == "" {
		t.Fatal("expected non-empty manifest digest")
	}
}

func TestPublishIdempotentForUnchangedImmutableTag(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	req := samplePublish("v1.0.0")

	first, err := r.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	second, err := r.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("re-publish of unchanged immutable tag should succeed: %v", err)
	}
	if second.ManifestDigest != first.ManifestDigest {
		t.Fatalf("expected identical digest, got %s vs %s", first.ManifestDigest, second.ManifestDigest)
	}
}

func TestPublishRejectsChangedImmutableTag(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	req := samplePublish("v1.0.0")
	if _, err := r.Publish(context.Background(), req); err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	changed := req
	changed.Files = []FileInput{
		{Path: "main.typ", Content: []byte("#let data = json(\"data\") // changed")},
		{Path: "logo.png", Content: []byte("not-really-a-png")},
	}

	_, err := r.Publish(context.Background(), changed)
	if err == nil {
		t.Fatal("expected ImmutableTagExists error")
	}
	if kind := errcode.Kind(err); kind != "ImmutableTagExists" {
		t.Fatalf("expected ImmutableTagExists, got %s", kind)
	}
}

// conflictOnceStore wraps a fakeStore and fails the first CASRef call
// with TagUpdateConflict, as a concurrent publish moving the ref between
// the registry's read and its compare-and-swap would.
type conflictOnceStore struct {
	*fakeStore
	casCalls int
}

func (c *conflictOnceStore) CASRef(ctx context.Context, refKey string, expected, newValue digest.Digest) error {
	c.casCalls++
	if c.casCalls == 1 {
		return errcode.ErrTagUpdateConflict.WithDetail("simulated concurrent update")
	}
	return c.fakeStore.CASRef(ctx, refKey, expected, newValue)
}

func TestPublishRetriesOnceForMutableTagConflict(t *testing.T) {
	store := newFakeStore()
	r := newTestRegistry(store)
	req := samplePublish("latest")

	// Seed the ref, then make the next CASRef fail once with a conflict
	// so the re-publish below has to take the retry path.
	first, err := r.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("seed Publish: %v", err)
	}
	racing := &conflictOnceStore{fakeStore: store}
	r.store = racing

	changed := req
	changed.Files = []FileInput{
		{Path: "main.typ", Content: []byte("#let data = json(\"data\") // v2")},
		{Path: "logo.png", Content: []byte("not-really-a-png")},
	}
	second, err := r.Publish(context.Background(), changed)
	if err != nil {
		t.Fatalf("mutable tag re-publish should retry and succeed: %v", err)
	}
	if second.ManifestDigest == first.ManifestDigest {
		t.Fatal("expected a new manifest digest for changed content")
	}
	if racing.casCalls != 2 {
		t.Fatalf("expected 2 CASRef calls (conflict, then retry), got %d", racing.casCalls)
	}
}

func TestPublishRejectsDuplicatePaths(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	req := samplePublish("latest")
	req.Files = append(req.Files, FileInput{Path: "main.typ", Content: []byte("dup")})

	_, err := r.Publish(context.Background(), req)
	if err == nil {
		t.Fatal("expected duplicate-path rejection")
	}
	if kind := errcode.Kind(err); kind != "InvalidManifest" {
		t.Fatalf("expected InvalidManifest, got %s", kind)
	}
}

func TestPublishRejectsInvalidName(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	req := samplePublish("latest")
	req.Name = ""

	_, err := r.Publish(context.Background(), req)
	if err == nil {
		t.Fatal("expected invalid-name rejection")
	}
	if kind := errcode.Kind(err); kind != "InvalidReference" {
		t.Fatalf("expected InvalidReference, got %s", kind)
	}
}

func TestPublishThenRenderRoundTrip(t *testing.T) {
	r := newTestRegistry(newFakeStore())
	req := samplePublish("latest")

	pub, err := r.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	res, err := r.Render(context.Background(), "invoice:latest", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.PDFDigest == "" {
		t.Fatal("expected non-empty PDF digest")
	}

	byDigest, err := r.Render(context.Background(), "invoice@"+pub.ManifestDigest.String(), []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("Render by digest: %v", err)
	}
	if byDigest.PDFDigest != res.PDFDigest {
		t.Fatalf("expected identical PDF digest for identical fingerprint, got %s vs %s", byDigest.PDFDigest, res.PDFDigest)
	}
}
