package render

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/papermake/papermake/cache"
	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/engine"
	"github.com/papermake/papermake/fontset"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/manifest"
	"github.com/papermake/papermake/recordsink"
)

// fakeStore is an in-memory BlobStore for pipeline tests.
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

func (f *fakeStore) GetRef(ctx context.Context, refKey string) (digest.Digest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.refs[refKey]
	return d, ok, nil
}

func (f *fakeStore) putManifest(t *testing.T, m *manifest.DeserializedManifest) {
	t.Helper()
	f.mu.Lock()
	f.manifests[m.Digest()] = m.Canonical()
	f.mu.Unlock()
}

func (f *fakeStore) putRef(refKey string, d digest.Digest) {
	f.mu.Lock()
	f.refs[refKey] = d
	f.mu.Unlock()
}

func buildTestManifest(t *testing.T, entrypoint string, blobs *fakeStore) *manifest.DeserializedManifest {
	t.Helper()
	body := []byte("template body for " + entrypoint)
	d, err := blobs.PutBlobIfAbsent(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error seeding blob: %v", err)
	}
	m, err := manifest.FromStruct(manifest.Manifest{
		Entrypoint: entrypoint,
		Files:      map[string]digest.Digest{entrypoint: d},
		Metadata:   manifest.Metadata{Name: "invoice", Author: "acme"},
	})
	if err != nil {
		t.Fatalf("unexpected error building manifest: %v", err)
	}
	blobs.putManifest(t, m)
	return m
}

func newTestPipeline(store *fakeStore, eng engine.Engine) *Pipeline {
	return New(Config{
		Store:     store,
		Manifests: cache.NewManifestCache(8),
		Tags:      cache.NewTagCache(0),
		Warm:      cache.NewWarmStateCache(8),
		Engine:    eng,
		Fonts:     fontset.NewSet(map[string][]byte{}),
	})
}

func TestRenderByDigestSucceeds(t *testing.T) {
	store := newFakeStore()
	man := buildTestManifest(t, "main.typ", store)
	p := newTestPipeline(store, engine.EchoEngine())

	refText := "acme/invoice@" + man.Digest().String()
	result, err := p.Render(context.Background(), refText, json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PDFDigest == "" {
		t.Fatal("expected non-empty pdf digest")
	}
	if exists, _ := store.BlobExists(context.Background(), result.PDFDigest); !exists {
		t.Fatal("expected pdf blob to be persisted")
	}
}

func TestRenderByTagResolvesThroughStore(t *testing.T) {
	store := newFakeStore()
	man := buildTestManifest(t, "main.typ", store)
	store.putRef("refs/acme/invoice/latest", man.Digest())
	p := newTestPipeline(store, engine.EchoEngine())

	result, err := p.Render(context.Background(), "acme/invoice:latest", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PDFDigest == "" {
		t.Fatal("expected non-empty pdf digest")
	}
}

func TestRenderRejectsMalformedReference(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, engine.EchoEngine())

	_, err := p.Render(context.Background(), "", json.RawMessage(`{}`))
	if errcode.Kind(err) != "InvalidReference" {
		t.Fatalf("expected InvalidReference, got %v", err)
	}
}

func TestRenderFailsOnUnknownTag(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, engine.EchoEngine())

	_, err := p.Render(context.Background(), "acme/invoice:latest", json.RawMessage(`{}`))
	if errcode.Kind(err) != "TemplateNotFound" {
		t.Fatalf("expected TemplateNotFound, got %v", err)
	}
}

func TestRenderDetectsHashMismatchOnCombinedReference(t *testing.T) {
	store := newFakeStore()
	man := buildTestManifest(t, "main.typ", store)
	other := digest.FromBytes([]byte("not-the-manifest"))
	store.putRef("refs/acme/invoice/latest", man.Digest())
	p := newTestPipeline(store, engine.EchoEngine())

	refText := "acme/invoice:latest@" + other.String()
	_, err := p.Render(context.Background(), refText, json.RawMessage(`{}`))
	if errcode.Kind(err) != "HashMismatch" {
		t.Fatalf("expected HashMismatch, got %v", err)
	}
}

func TestRenderReusesCachedPDFForIdenticalFingerprint(t *testing.T) {
	store := newFakeStore()
	man := buildTestManifest(t, "main.typ", store)

	var compiles int
	eng := &engine.FakeEngine{Fn: func(ctx context.Context, req engine.Request) (engine.Result, error) {
		compiles++
		return engine.EchoEngine().Compile(ctx, req)
	}}
	p := newTestPipeline(store, eng)

	refText := "acme/invoice@" + man.Digest().String()
	data := json.RawMessage(`{"x":1}`)

	first, err := p.Render(context.Background(), refText, data)
	if err != nil {
		t.Fatalf("unexpected error on first render: %v", err)
	}
	second, err := p.Render(context.Background(), refText, data)
	if err != nil {
		t.Fatalf("unexpected error on second render: %v", err)
	}
	if first.PDFDigest != second.PDFDigest {
		t.Fatalf("expected identical pdf digests, got %s and %s", first.PDFDigest, second.PDFDigest)
	}
	if compiles != 1 {
		t.Fatalf("expected exactly one compile, got %d", compiles)
	}
}

func TestRenderRecordsOutcomesToSink(t *testing.T) {
	store := newFakeStore()
	man := buildTestManifest(t, "main.typ", store)

	var mu sync.Mutex
	var records []recordsink.Record
	appended := make(chan struct{}, 8)
	backend := &recordCapture{onAppend: func(r recordsink.Record) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
		appended <- struct{}{}
	}}
	sink := recordsink.New(backend, 8, nil)
	defer sink.Close()

	p := New(Config{
		Store:     store,
		Manifests: cache.NewManifestCache(8),
		Tags:      cache.NewTagCache(0),
		Warm:      cache.NewWarmStateCache(8),
		Engine:    engine.EchoEngine(),
		Fonts:     fontset.NewSet(map[string][]byte{}),
		Sink:      sink,
	})

	refText := "acme/invoice@" + man.Digest().String()
	if _, err := p.Render(context.Background(), refText, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-appended:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the success record")
	}
	mu.Lock()
	if !records[0].Success {
		mu.Unlock()
		t.Fatalf("expected a successful record, got %+v", records[0])
	}
	mu.Unlock()

	if _, err := p.Render(context.Background(), "acme/invoice:missing", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for unresolvable tag")
	}

	select {
	case <-appended:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the failure record")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(records) != 2 || records[1].Success {
		t.Fatalf("expected a second, failed record, got %+v", records)
	}
}

type recordCapture struct {
	onAppend func(recordsink.Record)
}

func (r *recordCapture) Append(ctx context.Context, rec recordsink.Record) error {
	r.onAppend(rec)
	return nil
}

func (r *recordCapture) Close() error { return nil }
