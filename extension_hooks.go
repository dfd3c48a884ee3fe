package payments

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-payments/core"
)

// GatewayFactory builds a gateway client from the gateway config section.
type GatewayFactory func(cfg core.GatewayConfig) (core.GatewayClient, error)

// BundleFactory builds a host-specific command/query bundle on top of the
// facade.
type BundleFactory func(facade *Facade) (any, error)

// ExtensionHooks lets hosts register additional gateway providers and
// command/query bundles without forking the wiring.
type ExtensionHooks struct {
	mu sync.RWMutex

	gateways map[string]GatewayFactory
	bundles  map[string]BundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		gateways: map[string]GatewayFactory{},
		bundles:  map[string]BundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterGatewayFactory(providerID string, factory GatewayFactory) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	providerID = strings.TrimSpace(strings.ToLower(providerID))
	if providerID == "" {
		return fmt.Errorf("payments: gateway provider id is required")
	}
	if factory == nil {
		return fmt.Errorf("payments: gateway factory for %q is required", providerID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.gateways[providerID]; exists {
		return fmt.Errorf("payments: gateway factory %q already registered", providerID)
	}
	h.gateways[providerID] = factory
	return nil
}

func (h *ExtensionHooks) BuildGateway(providerID string, cfg core.GatewayConfig) (core.GatewayClient, error) {
	if h == nil {
		return nil, fmt.Errorf("payments: extension hooks are nil")
	}
	providerID = strings.TrimSpace(strings.ToLower(providerID))

	h.mu.RLock()
	factory, ok := h.gateways[providerID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("payments: no gateway factory registered for %q", providerID)
	}
	return factory(cfg)
}

func (h *ExtensionHooks) GatewayIDs() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.gateways))
	for id := range h.gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *ExtensionHooks) RegisterBundle(name string, factory BundleFactory) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("payments: bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("payments: bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("payments: bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) BuildBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("payments: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]BundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
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
