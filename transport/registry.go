package transport

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

// Factory builds a transport from the transport section of the client config.
type Factory func(cfg core.TransportConfig, logger core.Logger) (core.Transport, error)

// Registry maps transport kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// NewDefaultRegistry knows the unix socket transport and the disabled
// transport under "none".
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.Register(KindUnix, func(cfg core.TransportConfig, logger core.Logger) (core.Transport, error) {
		return NewUnixTransport(cfg, logger), nil
	})
	_ = registry.Register(KindNone, func(core.TransportConfig, core.Logger) (core.Transport, error) {
		return NewDisabledTransport(KindNone, "broker transport disabled by config"), nil
	})
	return registry
}

func (r *Registry) Register(kind string, factory Factory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: transport kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: transport factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport: transport kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Build creates the transport named by cfg.Kind. An empty kind means unix.
func (r *Registry) Build(cfg core.TransportConfig, logger core.Logger) (core.Transport, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind := normalizeKind(cfg.Kind)
	if kind == "" {
		kind = KindUnix
	}

	r.mu.RLock()
	factory := r.factories[kind]
	r.mu.RUnlock()
	if factory == nil {
		return nil, transportError(
			fmt.Sprintf("transport: transport kind %q not registered", kind),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			map[string]any{"transport_kind": kind, "registered": r.Kinds()},
		)
	}
	built, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil transport", kind)
	}
	return built, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}
