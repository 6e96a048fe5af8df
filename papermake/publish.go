package papermake

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/manifest"
)

// validatePaths checks every file's logical path against the File
// Entry rules (spec §3) and rejects duplicates after normalization
// (spec §4.6 step 1), before any blob is written.
func validatePaths(files []FileInput) error {
	if len(files) == 0 {
		return errcode.ErrInvalidManifest.WithDetail("publish request has no files")
	}

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := manifest.ValidatePath(f.Path); err != nil {
			return errcode.ErrInvalidManifest.WithCause(err)
		}
		if _, dup := seen[f.Path]; dup {
			return errcode.ErrInvalidManifest.WithDetail(
				fmt.Sprintf("duplicate path: %q", f.Path))
		}
		seen[f.Path] = struct{}{}
	}
	return nil
}

// publishFiles writes every file's blob concurrently, bounded by
// publishConcurrency, and returns the resulting path -> digest map
// (spec §4.6 step 2). Modeled on registry/storage/tagstore.go's
// Lookup, which bounds a per-item fan-out with errgroup.SetLimit; here
// each goroutine writes its own slice index rather than appending under
// a mutex, and the path -> digest map is built after Wait.
func (r *Registry) publishFiles(ctx context.Context, inputs []FileInput) (map[string]digest.Digest, error) {
	files := make(map[string]digest.Digest, len(inputs))
	digests := make([]digest.Digest, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.publishConcurrency)

	for i, f := range inputs {
		i, f := i, f
		g.Go(func() error {
			d, err := r.store.PutBlobIfAbsent(gctx, f.Content)
			if err != nil {
				return err
			}
			digests[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, f := range inputs {
		files[f.Path] = digests[i]
	}
	return files, nil
}
