package enrich

import (
	"context"
	"sync"

	"github.com/sells-group/property-scorer/pkg/skiptrace"
)

// Query identifies the property a provider looks up.
type Query struct {
	PropertyID string
	Address    string
	OwnerName  string
}

// Provider returns enrichment results for a property. A provider with no
// data for the property returns an empty Result and a nil error.
type Provider interface {
	// Name identifies the provider; it also keys contact IDs and breakers.
	Name() string
	// Lookup fetches contact data for a property.
	Lookup(ctx context.Context, q Query) (Result, error)
}

// Registry holds providers in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. Registering a name again replaces the provider
// but keeps its position.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns provider names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Providers returns the providers in registration order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// SkipTraceProvider adapts a skiptrace.Client to Provider.
type SkipTraceProvider struct {
	Client skiptrace.Client
	// ProviderName defaults to "skiptrace".
	ProviderName string
}

// Name implements Provider.
func (p SkipTraceProvider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "skiptrace"
}

// Lookup implements Provider. Owners the actor already split are passed on
// as full names so ParseOwnerNames sees one shape.
func (p SkipTraceProvider) Lookup(ctx context.Context, q Query) (Result, error) {
	resp, err := p.Client.Trace(ctx, skiptrace.Request{PropertyID: q.PropertyID, Address: q.Address})
	if err != nil {
		return Result{}, err
	}
	if !resp.Found {
		return Result{}, nil
	}

	res := Result{Emails: resp.Emails, Phones: resp.Phones}
	res.OwnerNamesRaw = append(res.OwnerNamesRaw, resp.Owners...)
	if len(resp.Owners) == 0 {
		for _, o := range resp.ParsedOwners {
			if o.FullName != "" {
				res.OwnerNamesRaw = append(res.OwnerNamesRaw, o.FullName)
			}
		}
	}
	return res, nil
}
