package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// TenantStore is the narrow persistence capability the registry needs;
// memstore and mongostore both satisfy it directly alongside DataStore.
type TenantStore interface {
	GetTenant(id string) (*Tenant, error)
	PutTenant(t *Tenant) error
	ListTenants() ([]*Tenant, error)
}

// Registry tracks tenant open/closed state, caching reads over the
// underlying store: a mutex guarding a map cache, re-keyed from role
// grants to tenant lifecycle state.
type Registry struct {
	mu    sync.Mutex
	store TenantStore
	cache map[string]*Tenant
}

// NewRegistry wraps store with a cache, seeding the reserved default tenant
// as open if it does not already exist.
func NewRegistry(store TenantStore) (*Registry, error) {
	r := &Registry{store: store, cache: make(map[string]*Tenant)}
	if _, err := r.get(DefaultTenantID); KindOf(err) == KindNotFound {
		if err := r.store.PutTenant(&Tenant{TenantID: DefaultTenantID, State: TenantOpen}); err != nil {
			return nil, Wrap(err, "tenant", "NewRegistry", "seed default tenant").(*Error)
		}
	}
	return r, nil
}

func (r *Registry) get(id string) (*Tenant, error) {
	if t, ok := r.cache[id]; ok {
		return t, nil
	}
	t, err := r.store.GetTenant(id)
	if err != nil {
		return nil, err
	}
	r.cache[id] = t
	return t, nil
}

// IsOpen reports whether tenant id exists and is open. An empty id resolves
// to the default tenant.
func (r *Registry) IsOpen(id string) (bool, error) {
	if id == "" {
		id = DefaultTenantID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(id)
	if err != nil {
		return false, err
	}
	return t.State == TenantOpen, nil
}

// Resolve normalizes an empty tenant id to the default tenant and fails
// with KindTenantUnknown/KindTenantClosed if it cannot be used.
func (r *Registry) Resolve(id string) (string, error) {
	if id == "" {
		id = DefaultTenantID
	}
	open, err := r.IsOpen(id)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return "", Fail(KindTenantUnknown, "tenant", "Resolve", "tenant not found", err)
		}
		return "", err
	}
	if !open {
		return "", Fail(KindTenantClosed, "tenant", "Resolve", "tenant is closed", nil)
	}
	return id, nil
}

// Open creates a new open tenant owned by adminId with recallPhrase,
// assigning a fresh tenant id on every call; an existing tenant is never
// reopened. Matches /sys/opentenant's {adminId, recallPhrase} contract.
func (r *Registry) Open(adminID, recallPhrase string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &Tenant{
		TenantID:     NewTenantID(),
		AdminID:      adminID,
		RecallPhrase: recallPhrase,
		State:        TenantOpen,
	}
	if err := r.store.PutTenant(t); err != nil {
		return nil, Wrap(err, "tenant", "Open", "persist new tenant")
	}
	r.cache[t.TenantID] = t
	return t, nil
}

// Close marks tenantID closed, verifying adminID owns it.
func (r *Registry) Close(adminID, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.get(tenantID)
	if err != nil {
		return Fail(KindTenantClosed, "tenant", "Close", "tenant not found", err)
	}
	if t.AdminID != adminID {
		return Fail(KindTenantClosed, "tenant", "Close", "admin does not own tenant", nil)
	}
	closed := *t
	closed.State = TenantClosed
	if err := r.store.PutTenant(&closed); err != nil {
		return Wrap(err, "tenant", "Close", "persist tenant close")
	}
	r.cache[tenantID] = &closed
	return nil
}

// NewTenantID mints a UUID string for a freshly opened tenant.
func NewTenantID() string { return uuid.NewString() }
