// Package filesystem implements a storagedriver.StorageDriver backed by
// a local directory tree. This is papermake's default durable backend
// for single-node deployments.
package filesystem

import (
	"context"
	"os"
	"path/filepath"

	"github.com/papermake/papermake/storagedriver"
	"github.com/papermake/papermake/storagedriver/factory"
)

const (
	driverName           = "filesystem"
	defaultRootDirectory = "/var/lib/papermake/storage"
)

func init() {
	factory.Register(driverName, &driverFactory{})
}

type driverFactory struct{}

func (driverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	root := defaultRootDirectory
	if parameters != nil {
		if v, ok := parameters["rootdirectory"].(string); ok && v != "" {
			root = v
		}
	}
	return New(root), nil
}

// Driver is a storagedriver.StorageDriver implementation backed by a
// local filesystem. All keys are joined beneath rootDirectory.
type Driver struct {
	rootDirectory string
}

// New constructs a Driver rooted at rootDirectory.
func New(rootDirectory string) *Driver {
	return &Driver{rootDirectory: rootDirectory}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

func (d *Driver) fullPath(key string) string {
	return filepath.Join(d.rootDirectory, filepath.FromSlash(key))
}

// GetContent retrieves the content stored at path.
func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	contents, err := os.ReadFile(d.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: path}
		}
		return nil, err
	}
	return contents, nil
}

// PutContent stores content at path, creating parent directories as
// needed, overwriting any existing value.
func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	full := d.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

// Exists reports whether path has content.
func (d *Driver) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(d.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns the keys that are direct descendants of path.
func (d *Driver) List(ctx context.Context, path string) ([]string, error) {
	full := d.fullPath(path)

	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: path}
		}
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, path+"/"+entry.Name())
	}
	return keys, nil
}

// Delete removes the content stored at path and anything nested beneath
// it.
func (d *Driver) Delete(ctx context.Context, path string) error {
	full := d.fullPath(path)
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: path}
		}
		return err
	}
	return os.RemoveAll(full)
}
