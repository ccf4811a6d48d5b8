package substrate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// Registry maps substrate names to builders and capabilities.
type Registry struct {
	mu           sync.RWMutex
	builders     map[string]Builder
	capabilities map[string]Capabilities
}

// DefaultRegistry is the global substrate registry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders:     make(map[string]Builder),
		capabilities: make(map[string]Capabilities),
	}
}

// Register adds a builder and its capabilities.
func (r *Registry) Register(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
	r.capabilities[name] = caps
}

// GetCapabilities returns the capabilities of name, or a zero value
// carrying only the name when it is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates the substrate named by cfg.GetSubstrate(). Builders that
// leave Capabilities unset get the registered ones.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Substrate, error) {
	if cfg == nil {
		return Substrate{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetSubstrate()

	r.mu.RLock()
	builder, ok := r.builders[name]
	caps := r.capabilities[name]
	r.mu.RUnlock()

	if !ok {
		return Substrate{}, fmt.Errorf("unknown substrate: %q (registered: %v)", name, r.Names())
	}

	sub, err := builder(ctx, cfg, logger)
	if err != nil {
		return Substrate{}, fmt.Errorf("build %s substrate: %w", name, err)
	}
	if sub.Capabilities.Name == "" {
		sub.Capabilities = caps
	}
	return sub, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.Register(name, builder, caps)
}

// Build creates a substrate using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Substrate, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
