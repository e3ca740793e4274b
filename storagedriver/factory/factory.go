// Package factory maps storage driver names to constructors, the way the
// registry's driver factory lets the authority pick filesystem vs. inmemory
// (or any backend added later) purely from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/convergence-vcs/convergence/storagedriver"
)

// StorageDriverFactory constructs a storagedriver.StorageDriver from
// backend-specific parameters. Drivers register one of these in their
// package init().
type StorageDriverFactory interface {
	Create(ctx context.Context, parameters map[string]any) (storagedriver.StorageDriver, error)
}

var driverFactories = make(map[string]StorageDriverFactory)

// Register makes a storage driver available by name. Panics on duplicate
// registration, since that always indicates two backends compiled in under
// the same name.
func Register(name string, factory StorageDriverFactory) {
	if factory == nil {
		panic("factory: nil StorageDriverFactory for " + name)
	}
	if _, registered := driverFactories[name]; registered {
		panic("factory: StorageDriverFactory already registered for " + name)
	}
	driverFactories[name] = factory
}

// Create builds the named driver with the given parameters.
func Create(ctx context.Context, name string, parameters map[string]any) (storagedriver.StorageDriver, error) {
	driverFactory, ok := driverFactories[name]
	if !ok {
		return nil, fmt.Errorf("factory: no storage driver registered for %q", name)
	}
	return driverFactory.Create(ctx, parameters)
}
