package gateway

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"ventureflow/internal/config"
	apperrors "ventureflow/internal/errors"
	"ventureflow/internal/models"
)

var knownProviders = map[string]bool{
	models.ProviderPayFast: true,
	models.ProviderStripe:  true,
	models.ProviderBank:    true,
}

// Registry resolves providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p. Stripe is declared but has no implementation, so registering it fails.
func (r *Registry) Register(p Provider) error {
	name := strings.ToLower(p.Name())
	if !knownProviders[name] {
		return apperrors.Validation("unknown payment provider %q", name)
	}
	if name == models.ProviderStripe {
		return apperrors.NotImplemented("stripe payment provider")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("payment provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name. Unknown names are client errors.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, apperrors.Validation("payment provider %q is not supported", name)
	}
	return p, nil
}

// Names lists the registered providers in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig registers the providers enabled in cfg.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	for _, name := range cfg.Payments.Providers {
		var p Provider
		switch strings.ToLower(name) {
		case models.ProviderPayFast:
			if !cfg.PayFast.Enabled {
				continue
			}
			p = NewPayFast(cfg.PayFast)
		case models.ProviderBank:
			if !cfg.Bank.Enabled {
				continue
			}
			p = NewBankTransfer(cfg.Bank)
		case models.ProviderStripe:
			p = Stripe{}
		default:
			return nil, apperrors.Validation("unknown payment provider %q", name)
		}
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		log.Printf("[gateway] registered payment provider %s", p.Name())
	}
	return reg, nil
}
