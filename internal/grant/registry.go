package grant

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps grant_type values to extension grants.
type Registry struct {
	mu     sync.RWMutex
	grants map[string]ExtensionGrant
}

func NewRegistry(grants ...ExtensionGrant) (*Registry, error) {
	r := &Registry{grants: make(map[string]ExtensionGrant)}
	for _, g := range grants {
		if err := r.Register(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(g ExtensionGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.grants[g.GrantType()]; exists {
		return fmt.Errorf("grant type %q already registered", g.GrantType())
	}
	r.grants[g.GrantType()] = g
	return nil
}

func (r *Registry) Lookup(grantType string) (ExtensionGrant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[grantType]
	return g, ok
}

func (r *Registry) GrantTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grants))
	for t := range r.grants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
