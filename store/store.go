// Package store implements the blob store adapter (spec §4.2): the
// content-addressable layer between papermake's core and the external
// object store, exposing put_if_absent/get/exists for blobs and
// manifests, plus cas_ref/get_ref for the mutable tag layer.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/papermake/papermake/digest"
	"github.com/papermake/papermake/internal/dcontext"
	"github.com/papermake/papermake/internal/errcode"
	"github.com/papermake/papermake/storagedriver"
)

// Store is the blob store adapter. It wraps a storagedriver.StorageDriver
// with content-addressing, retry-on-transient-failure, and a simulated
// ref compare-and-swap.
//
// The CAS simulation only serializes writers within this process: true
// multi-writer atomicity depends on the backing object store. A backend
// driver that wants cross-process CAS guarantees should implement it
// beneath storagedriver.StorageDriver; Store's per-key mutex is the
// single-process fallback the teacher's own tagStore never needed,
// since the registry's tag store was always fronted by a single
// filesystem or database with its own locking.
type Store struct {
	driver storagedriver.StorageDriver

	refMu   sync.Mutex
	refLock map[string]*sync.Mutex
}

// New constructs a Store backed by driver.
func New(driver storagedriver.StorageDriver) *Store {
	return &Store{
		driver:  driver,
		refLock: make(map[string]*sync.Mutex),
	}
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// retry runs op, retrying with bounded exponential backoff on any error
// that is not a storagedriver.PathNotFoundError or
// storagedriver.InvalidPathError (spec §7: StorageUnavailable
// is retried inside the adapter, then surfaced).
func retry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return backoff.Permanent(err)
		}
		if _, ok := err.(storagedriver.InvalidPathError); ok {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(newBackoff(), ctx))
	if err == nil {
		return nil
	}
	if _, ok := err.(storagedriver.PathNotFoundError); ok {
		return err
	}
	if _, ok := err.(storagedriver.InvalidPathError); ok {
		return err
	}
	return errcode.ErrStorageUnavailable.WithCause(err)
}

// PutBlobIfAbsent stores content under its own digest, returning the
// digest. If content already exists at that digest, it is left untouched
// and no error is returned (spec §4.6 step 2).
func (s *Store) PutBlobIfAbsent(ctx context.Context, content []byte) (digest.Digest, error) {
	d := digest.FromBytes(content)
	path, err := blobPath(d)
	if err != nil {
		return "", err
	}
	if err := s.putIfAbsent(ctx, path, content); err != nil {
		return "", err
	}
	return d, nil
}

// GetBlob retrieves blob content by digest, verifying that the stored
// bytes still hash to d. A missing or digest-mismatched blob is Corrupt
// (spec §4.9: "manifest references a digest whose blob is missing").
func (s *Store) GetBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	path, err := blobPath(d)
	if err != nil {
		return nil, err
	}

	var content []byte
	err = retry(ctx, func() error {
		var getErr error
		content, getErr = s.driver.GetContent(ctx, path)
		return getErr
	})
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil, errcode.ErrCorrupt.WithCause(fmt.Errorf("blob %s not found", d))
		}
		return nil, err
	}

	if actual := digest.FromBytes(content); actual != d {
		return nil, errcode.ErrCorrupt.WithCause(fmt.Errorf("blob %s failed digest verification, got %s", d, actual))
	}

	return content, nil
}

// BlobExists reports whether a blob with digest d is present.
func (s *Store) BlobExists(ctx context.Context, d digest.Digest) (bool, error) {
	path, err := blobPath(d)
	if err != nil {
		return false, err
	}
	return s.exists(ctx, path)
}

// PutManifestIfAbsent stores manifest canonical bytes under their digest
// (spec §4.6 step 4).
func (s *Store) PutManifestIfAbsent(ctx context.Context, d digest.Digest, canonical []byte) error {
	path, err := manifestPath(d)
	if err != nil {
		return err
	}
	return s.putIfAbsent(ctx, path, canonical)
}

// GetManifest retrieves manifest canonical bytes by digest.
func (s *Store) GetManifest(ctx context.Context, d digest.Digest) ([]byte, error) {
	path, err := manifestPath(d)
	if err != nil {
		return nil, err
	}

	var content []byte
	err = retry(ctx, func() error {
		var getErr error
		content, getErr = s.driver.GetContent(ctx, path)
		return getErr
	})
	if err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			return nil, errcode.ErrCorrupt.WithCause(fmt.Errorf("manifest %s not found", d))
		}
		return nil, err
	}

	if actual := digest.FromBytes(content); actual != d {
		return nil, errcode.ErrCorrupt.WithCause(fmt.Errorf("manifest %s failed digest verification, got %s", d, actual))
	}

	return content, nil
}

func (s *Store) putIfAbsent(ctx context.Context, path string, content []byte) error {
	exists, err := s.exists(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return retry(ctx, func() error {
		return s.driver.PutContent(ctx, path, content)
	})
}

func (s *Store) exists(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := retry(ctx, func() error {
		var existsErr error
		ok, existsErr = s.driver.Exists(ctx, path)
		return existsErr
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// GetRef returns the manifest digest a ref currently points to. found is
// false if the ref has never been set.
func (s *Store) GetRef(ctx context.Context, refKey string) (d digest.Digest, found bool, err error) {
	var content []byte
	getErr := retry(ctx, func() error {
		var e error
		content, e = s.driver.GetContent(ctx, refKey)
		return e
	})
	if getErr != nil {
		if _, ok := getErr.(storagedriver.PathNotFoundError); ok {
			return "", false, nil
		}
		return "", false, getErr
	}

	parsed, parseErr := digest.Parse(string(content))
	if parseErr != nil {
		return "", false, errcode.ErrCorrupt.WithCause(fmt.Errorf("ref %s holds malformed digest: %w", refKey, parseErr))
	}
	return parsed, true, nil
}

// CASRef atomically (within this process) sets refKey to newValue,
// provided its current value matches expected. expected == "" means "the
// ref must not currently exist". On mismatch, CASRef returns
// errcode.ErrTagUpdateConflict.
func (s *Store) CASRef(ctx context.Context, refKey string, expected, newValue digest.Digest) error {
	lock := s.lockFor(refKey)
	lock.Lock()
	defer lock.Unlock()

	current, found, err := s.GetRef(ctx, refKey)
	if err != nil {
		return err
	}

	switch {
	case expected == "" && found:
		return errcode.ErrTagUpdateConflict.WithDetail(fmt.Sprintf("ref %s already exists at %s", refKey, current))
	case expected != "" && (!found || current != expected):
		return errcode.ErrTagUpdateConflict.WithDetail(fmt.Sprintf("ref %s expected %s, found %s", refKey, expected, current))
	}

	dcontext.GetLogger(ctx).Debugf("cas_ref %s -> %s", refKey, newValue)

	return retry(ctx, func() error {
		return s.driver.PutContent(ctx, refKey, []byte(newValue.String()))
	})
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	lock, ok := s.refLock[key]
	if !ok {
		lock = &sync.Mutex{}
		s.refLock[key] = lock
	}
	return lock
}
