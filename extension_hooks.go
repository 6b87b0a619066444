package broker

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-broker/transport"
)

// TransportPack contributes transport kinds to a transport registry.
type TransportPack struct {
	Name       string
	Transports map[string]transport.Factory
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects downstream transports and command/query bundles
// before the client is built.
type ExtensionHooks struct {
	mu sync.RWMutex

	transportPacks map[string]TransportPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		transportPacks: map[string]TransportPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterTransportPack(pack TransportPack) error {
	if h == nil {
		return fmt.Errorf("broker: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("broker: transport pack name is required")
	}
	if len(pack.Transports) == 0 {
		return fmt.Errorf("broker: transport pack %q has no transports", name)
	}
	normalized := TransportPack{Name: name, Transports: make(map[string]transport.Factory, len(pack.Transports))}
	for kind, factory := range pack.Transports {
		kind = strings.TrimSpace(strings.ToLower(kind))
		if kind == "" {
			return fmt.Errorf("broker: transport pack %q has an empty kind", name)
		}
		if factory == nil {
			return fmt.Errorf("broker: transport pack %q kind %q has no factory", name, kind)
		}
		normalized.Transports[kind] = factory
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.transportPacks[name]; exists {
		return fmt.Errorf("broker: transport pack %q already registered", name)
	}
	h.transportPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("broker: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("broker: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("broker: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("broker: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyTransportPacks registers every pack's kinds in pack name order.
// A kind already known to the registry fails the apply.
func (h *ExtensionHooks) ApplyTransportPacks(registry *transport.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("broker: transport registry is required")
	}
	for _, pack := range h.TransportPacks() {
		kinds := make([]string, 0, len(pack.Transports))
		for kind := range pack.Transports {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			if err := registry.Register(kind, pack.Transports[kind]); err != nil {
				return err
			}
		}
	}
	return nil
}

// TransportRegistry returns the default registry extended with the
// registered packs.
func (h *ExtensionHooks) TransportRegistry() (*transport.Registry, error) {
	registry := transport.NewDefaultRegistry()
	if err := h.ApplyTransportPacks(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("broker: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) TransportPacks() []TransportPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.transportPacks))
	for name := range h.transportPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TransportPack, 0, len(names))
	for _, name := range names {
		pack := h.transportPacks[name]
		copied := make(map[string]transport.Factory, len(pack.Transports))
		for kind, factory := range pack.Transports {
			copied[kind] = factory
		}
		out = append(out, TransportPack{Name: pack.Name, Transports: copied})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
