package vfs

import (
	"context"
	"testing"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/fontset"
	"github.com/papermake/papermake/manifest"
)

type fakeBlobs struct {
	byDigest map[digest.Digest][]byte
	calls    map[digest.Digest]int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{byDigest: map[digest.Digest][]byte{}, calls: map[digest.Digest]int{}}
}

func (f *fakeBlobs) put(content []byte) digest.Digest {
	d := digest.FromBytes(content)
	f.byDigest[d] = content
	return d
}

func (f *fakeBlobs) GetBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	f.calls[d]++
	data, ok := f.byDigest[d]
	if !ok {
		return nil, digest.ErrDigestInvalidFormat
	}
	return data, nil
}

func buildManifest(t *testing.T, entrypoint string, files map[string][]byte, blobs *fakeBlobs) *manifest.DeserializedManifest {
	t.Helper()
	digests := make(map[string]digest.Digest, len(files))
	for path, content := range files {
		digests[path] = blobs.put(content)
	}
	m, err := manifest.FromStruct(manifest.Manifest{
		Entrypoint: entrypoint,
		Files:      digests,
		Metadata:   manifest.Metadata{Name: "t", Author: "t"},
	})
	if err != nil {
		t.Fatalf("unexpected error building manifest: %v", err)
	}
	return m
}

func TestReadResolvesEntrypointDirectory(t *testing.T) {
	blobs := newFakeBlobs()
	man := buildManifest(t, "doc/main.typ", map[string][]byte{
		"doc/main.typ":  []byte("main"),
		"doc/chapter.typ": []byte("chapter"),
	}, blobs)

	fs := New(context.Background(), blobs, man, fontset.NewSet(nil))

	got, err := fs.Read(context.Background(), fs.EntrypointPath())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "main" {
		t.Fatalf("got %q, want %q", got, "main")
	}

	got, err = fs.Read(context.Background(), "chapter.typ")
	if err != nil {
		t.Fatalf("unexpected error reading sibling file: %v", err)
	}
	if string(got) != "chapter" {
		t.Fatalf("got %q, want %q", got, "chapter")
	}
}

func TestReadRejectsEscapingPaths(t *testing.T) {
	blobs := newFakeBlobs()
	man := buildManifest(t, "doc/main.typ", map[string][]byte{"doc/main.typ": []byte("main")}, blobs)
	fs := New(context.Background(), blobs, man, fontset.NewSet(nil))

	for _, p := range []string{"../outside.typ", "/abs/path.typ", "../../etc/passwd"} {
		if _, err := fs.Read(context.Background(), p); err == nil {
			t.Fatalf("expected error reading %q, got none", p)
		}
	}
}

func TestReadFallsBackToFontSet(t *testing.T) {
	blobs := newFakeBlobs()
	man := buildManifest(t, "main.typ", map[string][]byte{"main.typ": []byte("main")}, blobs)
	fonts := fontset.NewSet(map[string][]byte{"NotoSans.ttf": []byte("font-bytes")})
	fs := New(context.Background(), blobs, man, fonts)

	got, err := fs.Read(context.Background(), "NotoSans.ttf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "font-bytes" {
		t.Fatalf("got %q, want %q", got, "font-bytes")
	}
}

func TestExistsReflectsReadability(t *testing.T) {
	blobs := newFakeBlobs()
	man := buildManifest(t, "main.typ", map[string][]byte{"main.typ": []byte("main")}, blobs)
	fs := New(context.Background(), blobs, man, fontset.NewSet(nil))

	if !fs.Exists("main.typ") {
		t.Fatal("expected main.typ to exist")
	}
	if fs.Exists("missing.typ") {
		t.Fatal("expected missing.typ to not exist")
	}
}

func TestPathsListsManifestFilesRelativeToRoot(t *testing.T) {
	blobs := newFakeBlobs()
	man := buildManifest(t, "doc/main.typ", map[string][]byte{
		"doc/main.typ":    []byte("main"),
		"doc/chapter.typ": []byte("chapter"),
	}, blobs)
	fs := New(context.Background(), blobs, man, fontset.NewSet(nil))

	got := map[string]bool{}
	for _, p := range fs.Paths() {
		got[p] = true
	}
	if !got["main.typ"] || !got["chapter.typ"] {
		t.Fatalf("expected root-relative paths main.typ and chapter.typ, got %v", fs.Paths())
	}
}

func TestReadMemoizesBlobFetches(t *testing.T) {
	blobs := newFakeBlobs()
	man := buildManifest(t, "main.typ", map[string][]byte{"main.typ": []byte("main")}, blobs)
	fs := New(context.Background(), blobs, man, fontset.NewSet(nil))

	for i := 0; i < 3; i++ {
		if _, err := fs.Read(context.Background(), "main.typ"); err != nil {
			t.Fatalf("unexpected error on read %d: %v", i, err)
		}
	}

	d := man.Files["main.typ"]
	if got := blobs.calls[d]; got != 1 {
		t.Fatalf("expected exactly one GetBlob call, got %d", got)
	}
}
