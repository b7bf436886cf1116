package stt

import (
	"fmt"
	"sort"
	"sync"
)

// registry maps provider names to openers. Providers register at
// startup; lookups happen when pipelines are started.
type registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

var defaultRegistry = &registry{openers: make(map[string]Opener)}

// Register makes an opener available under the given provider name.
// Registering the same name twice replaces the previous opener.
func Register(name string, opener Opener) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.openers[name] = opener
}

// Lookup returns the opener registered under name.
func Lookup(name string) (Opener, error) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	opener, ok := defaultRegistry.openers[name]
	if !ok {
		return nil, fmt.Errorf("stt: unknown provider %q (available: %v)", name, providerNames())
	}
	return opener, nil
}

// Providers lists the registered provider names, sorted.
func Providers() []string {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	return providerNames()
}

// providerNames expects the registry lock to be held.
func providerNames() []string {
	names := make([]string, 0, len(defaultRegistry.openers))
	for name := range defaultRegistry.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
