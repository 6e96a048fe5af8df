// Package vfs implements the virtual filesystem adapter the compile
// engine reads from (spec §4.7): a read/exists surface rooted at a
// manifest's entrypoint directory, resolving logical paths against the
// manifest's file digests and falling back to the process-wide font set
// for assets the manifest does not carry.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/fontset"
	"github.com/papermake/papermake/manifest"
)

// ErrEscapesRoot is returned when a requested path normalizes outside
// the entrypoint's root directory.
var ErrEscapesRoot = errors.New("vfs: path escapes root")

// BlobGetter is the subset of store.Store the filesystem needs: fetching
// a blob by digest. Kept as a narrow interface so tests can supply a
// fake without standing up a real storagedriver.StorageDriver.
type BlobGetter interface {
	GetBlob(ctx context.Context, d digest.Digest) ([]byte, error)
}

// FS presents one manifest's files, plus the process-wide font set, as a
// directory rooted at the manifest's entrypoint directory. A FS is
// scoped to a single render: its memoization cache is never shared
// across renders.
type FS struct {
	ctx    context.Context
	blobs  BlobGetter
	man    *manifest.DeserializedManifest
	root   string
	fonts  *fontset.Set
	mu     sync.Mutex
	cache  map[string][]byte
}

// New binds a FS for man's files against blobs, for the lifetime of
// ctx. fonts is the font set to fall back to for paths man.Files does
// not contain; pass fontset.Default() in production, a stub Set in
// tests.
func New(ctx context.Context, blobs BlobGetter, man *manifest.DeserializedManifest, fonts *fontset.Set) *FS {
	return &FS{
		ctx:   ctx,
		blobs: blobs,
		man:   man,
		root:  path.Dir(man.Entrypoint),
		fonts: fonts,
		cache: make(map[string][]byte),
	}
}

// Paths returns every manifest file's path, relative to root, in no
// particular order. Engines that need to materialize a bundle onto a
// real filesystem (rather than reading lazily) use this to enumerate
// what to write.
func (f *FS) Paths() []string {
	paths := make([]string, 0, len(f.man.Files))
	for p := range f.man.Files {
		rel := strings.TrimPrefix(p, f.root+"/")
		if f.root == "." {
			rel = p
		}
		paths = append(paths, rel)
	}
	return paths
}

// EntrypointPath is the entrypoint's logical path relative to root, the
// name the compiler should open first.
func (f *FS) EntrypointPath() string {
	return path.Base(f.man.Entrypoint)
}

// Exists reports whether logicalPath resolves to a manifest file or a
// font-set asset.
func (f *FS) Exists(logicalPath string) bool {
	_, err := f.Read(f.ctx, logicalPath)
	return err == nil
}

// Read returns the bytes at logicalPath, resolved relative to root.
// Results are memoized per FS instance: a second Read of the same path
// within one render never re-fetches the blob.
func (f *FS) Read(ctx context.Context, logicalPath string) ([]byte, error) {
	resolved, err := resolve(f.root, logicalPath)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if cached, ok := f.cache[resolved]; ok {
		f.mu.Unlock()
		return cached, nil
	}
	f.mu.Unlock()

	data, err := f.read(ctx, resolved)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[resolved] = data
	f.mu.Unlock()
	return data, nil
}

func (f *FS) read(ctx context.Context, resolved string) ([]byte, error) {
	if d, ok := f.man.Files[resolved]; ok {
		data, err := f.blobs.GetBlob(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("vfs: read %q: %w", resolved, err)
		}
		return data, nil
	}

	if f.fonts != nil {
		if data, ok := f.fonts.Files()[resolved]; ok {
			return data, nil
		}
	}

	return nil, fmt.Errorf("vfs: %q: %w", resolved, manifest.ErrInvalidPath)
}

// resolve composes logicalPath against root, rejecting absolute paths
// and any result that escapes root, then returns the bundle-root-relative
// path that manifest.Files is keyed by (root stays as its prefix).
func resolve(root, logicalPath string) (string, error) {
	if logicalPath == "" {
		return "", fmt.Errorf("vfs: empty path: %w", ErrEscapesRoot)
	}
	if path.IsAbs(logicalPath) {
		return "", fmt.Errorf("vfs: absolute path %q: %w", logicalPath, ErrEscapesRoot)
	}

	joined := path.Join(root, logicalPath)
	joined = strings.TrimPrefix(joined, "./")

	if joined == ".." || strings.HasPrefix(joined, "../") ||
		(root != "." && !strings.HasPrefix(joined, root+"/")) {
		return "", fmt.Errorf("vfs: %q escapes root %q: %w", logicalPath, root, ErrEscapesRoot)
	}

	return joined, nil
}
