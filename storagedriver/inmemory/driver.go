// Package inmemory implements a storagedriver.StorageDriver backed by a
// local map. Intended for tests and the single-process default
// configuration; not durable across restarts.
package inmemory

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/papermake/papermake/storagedriver"
	"github.com/papermake/papermake/storagedriver/factory"
)

const driverName = "inmemory"

func init() {
	factory.Register(driverName, &driverFactory{})
}

type driverFactory struct{}

func (driverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return New(), nil
}

// Driver is a storagedriver.StorageDriver implementation backed by a
// map guarded by a single mutex.
type Driver struct {
	mutex   sync.RWMutex
	storage map[string][]byte
}

// New constructs an empty Driver.
func New() *Driver {
	return &Driver{storage: make(map[string][]byte)}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

// GetContent retrieves the content stored at path.
func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	contents, ok := d.storage[path]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: path}
	}
	out := make([]byte, len(contents))
	copy(out, contents)
	return out, nil
}

// PutContent stores content at path, overwriting any existing value.
func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	cp := make([]byte, len(content))
	copy(cp, content)
	d.storage[path] = cp
	return nil
}

// Exists reports whether path has content.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	_, ok := d.storage[path]
	return ok, nil
}

// List returns the keys that are direct descendants of path.
func (d *Driver) List(ctx context.Context, path string) ([]string, error) {
	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	subPathMatcher, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + "[^/]+")
	if err != nil {
		return nil, err
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	keySet := make(map[string]struct{})
	for k := range d.storage {
		if key := subPathMatcher.FindString(k); key != "" {
			keySet[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	return keys, nil
}

// Delete removes the content stored at path, and anything nested under
// it as a prefix.
func (d *Driver) Delete(ctx context.Context, path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var subPaths []string
	for k := range d.storage {
		if k == path || strings.HasPrefix(k, path+"/") {
			subPaths = append(subPaths, k)
		}
	}

	if len(subPaths) == 0 {
		return storagedriver.PathNotFoundError{Path: path}
	}

	for _, subPath := range subPaths {
		delete(d.storage, subPath)
	}
	return nil
}
