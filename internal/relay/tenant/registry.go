package tenant

import (
	"fmt"
	"sync"

	pebblestore "github.com/nostrhub/nostrhub/internal/storage/pebble"

	"github.com/nostrhub/nostrhub/internal/config"
	"github.com/nostrhub/nostrhub/internal/relay/store"
)

// Registry owns the process-wide tenant id -> storage environment mapping
// (spec.md §3: "mapping tenant id -> environment is a process-wide
// singleton, protected by a mutex on the registry"). Handles themselves
// are internally synchronized by store.Env; the registry's mutex only
// guards insert/lookup of the map itself.
type Registry struct {
	mu       sync.Mutex
	envs     map[string]*store.Env
	dataDir  string
	storeOpt pebblestore.Options
}

// NewRegistry returns an empty registry rooted at dataDir. Per-tenant
// environments live under dataDir/tenants/{tenantId}/ (spec.md §6's
// on-disk layout).
func NewRegistry(dataDir string, storeOpt pebblestore.Options) *Registry {
	return &Registry{envs: map[string]*store.Env{}, dataDir: dataDir, storeOpt: storeOpt}
}

// Env returns tenantID's storage environment, opening and caching it on
// first access. spec.md §9 notes the source never evicts tenant
// environments; this registry inherits that behavior as-is — see
// DESIGN.md's Open Questions resolution.
func (r *Registry) Env(tenantID string) (*store.Env, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.envs[tenantID]; ok {
		return e, nil
	}

	dir := config.TenantDataDir(r.dataDir, tenantID)
	e, err := store.Open(tenantID, dir, r.storeOpt)
	if err != nil {
		return nil, fmt.Errorf("open tenant env %q: %w", tenantID, err)
	}
	r.envs[tenantID] = e
	return e, nil
}

// Close closes every open tenant environment.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, e := range r.envs {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close tenant env %q: %w", id, err)
		}
	}
	return firstErr
}

// Tenants returns the ids of every currently open environment.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.envs))
	for id := range r.envs {
		ids = append(ids, id)
	}
	return ids
}
