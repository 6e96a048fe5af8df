// Package factory provides a registry of named storagedriver.StorageDriver
// constructors, grounded on the same name-to-constructor pattern
// papermake's teacher uses for pluggable storage backends.
package factory

import (
	"fmt"

	"github.com/papermake/papermake/storagedriver"
)

// StorageDriverFactory creates a storagedriver.StorageDriver from a set
// of driver-specific parameters. Drivers register a factory with
// Register to make themselves available by name.
type StorageDriverFactory interface {
	Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error)
}

var driverFactories = make(map[string]StorageDriverFactory)

// Register makes a storage driver available by name. Register panics if
// called twice with the same name or with a nil factory: a duplicate or
// missing registration is a programming error, not a runtime condition.
func Register(name string, factory StorageDriverFactory) {
	if factory == nil {
		panic("storagedriver/factory: Register factory is nil")
	}
	if _, registered := driverFactories[name]; registered {
		panic(fmt.Sprintf("storagedriver/factory: driver named %q already registered", name))
	}
	driverFactories[name] = factory
}

// Create constructs a new StorageDriver with the given name and
// parameters. The named factory must have been registered first, via an
// import of the driver's package for its side-effecting init().
func Create(name string, parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	driverFactory, ok := driverFactories[name]
	if !ok {
		return nil, InvalidStorageDriverError{Name: name}
	}
	return driverFactory.Create(parameters)
}

// InvalidStorageDriverError records an attempt to construct an
// unregistered storage driver.
type InvalidStorageDriverError struct {
	Name string
}

func (err InvalidStorageDriverError) Error() string {
	return fmt.Sprintf("storagedriver/factory: driver not registered: %s", err.Name)
}
