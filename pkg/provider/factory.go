// Package provider implements the cloud backends behind the lifecycle
// Driver contract, and the factory that resolves a provider identifier to
// its driver. The factory is an explicit, constructed registry: callers
// build one with exactly the drivers they want, so tests stay isolated and
// nothing registers itself through package-level state.
package provider

import (
	"sort"
	"sync"

	"github.com/rangeforge/rangeforge/pkg/lifecycle"
)

// Factory maps provider identifiers to drivers. It fails closed: an
// identifier without a registered driver is an unknown-provider error.
type Factory struct {
	mu      sync.RWMutex
	drivers map[string]lifecycle.Driver
}

// NewFactory creates a factory holding the given drivers, keyed by their
// Name(). A later driver with the same name replaces an earlier one.
func NewFactory(drivers ...lifecycle.Driver) *Factory {
	f := &Factory{drivers: make(map[string]lifecycle.Driver, len(drivers))}
	for _, d := range drivers {
		f.drivers[d.Name()] = d
	}
	return f
}

// DefaultFactory returns a factory with every built-in driver registered.
func DefaultFactory() *Factory {
	return NewFactory(NewAWSDriver(), NewAzureDriver())
}

// Get resolves a provider identifier.
func (f *Factory) Get(name string) (lifecycle.Driver, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	driver, exists := f.drivers[name]
	if !exists {
		return nil, lifecycle.NewError(lifecycle.KindUnknownProvider,
			"no driver registered for provider "+name, nil).WithProvider(name)
	}
	return driver, nil
}

// Providers lists the registered provider identifiers, sorted.
func (f *Factory) Providers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.drivers))
	for name := range f.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
