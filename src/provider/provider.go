// Package provider defines the interface for CI/CD build service integrations.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider defines the contract a CI build service must implement.
type Provider interface {
	// Name returns the provider name (e.g. "codemagic", "github")
	Name() string

	// Trigger submits a new build and returns a handle for polling.
	// Not idempotent: calling twice creates two remote builds.
	Trigger(ctx context.Context, req JobRequest) (*JobHandle, error)

	// Poll queries the current status of a previously triggered build.
	Poll(ctx context.Context, handle *JobHandle) (*StatusReport, error)
}

// Factory creates a provider from an API token.
type Factory func(token string) Provider

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider factory available under the given name.
// Provider packages call this from init().
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New returns a provider instance for the given name.
func New(name, token string) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, name)
	}
	return factory(token), nil
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
