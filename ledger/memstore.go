package ledger

import (
	"encoding/json"
	"sync"
)

var (
	_ DataStore   = (*MemStore)(nil)
	_ TenantStore = (*MemStore)(nil)
)

// MemStore is an in-process DataStore: map-backed collections guarded by a
// single mutex, mirroring the append pattern of the production store. Used
// by tests and by single-node runs with no Mongo endpoint configured.
type MemStore struct {
	mu sync.Mutex

	pool      map[string]map[string]*Tx // tenant -> id -> Tx
	delivered map[string]map[string]*Tx
	blocked   map[string]map[string]*Tx // tenant -> id -> Tx, sealed copies
	blocks    []*Block                  // index == height
	tenants   map[string]*Tenant
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		pool:      make(map[string]map[string]*Tx),
		delivered: make(map[string]map[string]*Tx),
		blocked:   make(map[string]map[string]*Tx),
		tenants:   make(map[string]*Tenant),
	}
}

func (m *MemStore) GetTenant(id string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, Fail(KindNotFound, "memstore", "GetTenant", "tenant not found", nil)
	}
	return t, nil
}

func (m *MemStore) PutTenant(t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.TenantID] = &cp
	return nil
}

func (m *MemStore) ListTenants() ([]*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func tenantBucket(m map[string]map[string]*Tx, tenant string) map[string]*Tx {
	b, ok := m[tenant]
	if !ok {
		b = make(map[string]*Tx)
		m[tenant] = b
	}
	return b
}

func matchesFilter(tx *Tx, filter Filter) bool {
	if filter.empty() {
		return true
	}
	var decoded map[string]any
	if json.Unmarshal(tx.Data, &decoded) != nil {
		return false
	}
	v, ok := decoded[filter.Key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == filter.Value
}

func (m *MemStore) InsertPool(tx *Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = NewObjectID()
	}
	tenantBucket(m.pool, tx.Tenant)[tx.ID] = tx
	return nil
}

func (m *MemStore) InsertDelivered(tx *Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = NewObjectID()
	}
	bucket := tenantBucket(m.delivered, tx.Tenant)
	if _, exists := bucket[tx.ID]; exists {
		return nil // idempotent: peer redelivery is a no-op
	}
	bucket[tx.ID] = tx
	return nil
}

func (m *MemStore) ListPool(tenant string, filter Filter, all bool) ([]*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listFrom(m.pool, tenant, filter, all), nil
}

func (m *MemStore) ListDelivered(tenant string, filter Filter, all bool) ([]*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listFrom(m.delivered, tenant, filter, all), nil
}

func listFrom(m map[string]map[string]*Tx, tenant string, filter Filter, all bool) []*Tx {
	var out []*Tx
	if all {
		for _, bucket := range m {
			for _, tx := range bucket {
				if matchesFilter(tx, filter) {
					out = append(out, tx)
				}
			}
		}
		return out
	}
	for _, tx := range m[tenant] {
		if matchesFilter(tx, filter) {
			out = append(out, tx)
		}
	}
	return out
}

func (m *MemStore) MovePoolToDelivered(tenant string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := tenantBucket(m.pool, tenant)
	delivered := tenantBucket(m.delivered, tenant)
	for _, id := range ids {
		if tx, ok := pool[id]; ok {
			delivered[id] = tx
			delete(pool, id)
		}
	}
	return nil
}

func (m *MemStore) SealBlock(block *Block, txIds []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Atomicity: compute everything before mutating state, so a partial
	// failure (none possible here, in-process) never leaves a half-applied
	// seal. A real transactional store wraps this in a session.
	moved := make(map[string]*Tx, len(txIds))
	for _, bucket := range m.delivered {
		for _, id := range txIds {
			if tx, ok := bucket[id]; ok {
				moved[id] = tx
			}
		}
	}
	for tenant, bucket := range m.delivered {
		for _, id := range txIds {
			delete(bucket, id)
			delete(tenantBucket(m.pool, tenant), id)
		}
	}
	for id, tx := range moved {
		tenantBucket(m.blocked, tx.Tenant)[id] = tx
	}
	m.blocks = append(m.blocks, block)
	return nil
}

func (m *MemStore) AppendBlock(block *Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, block)
	return nil
}

func (m *MemStore) LastBlock() (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blocks) == 0 {
		return &Block{Height: 0, Hash: "", PrevHash: ""}, nil
	}
	return m.blocks[len(m.blocks)-1], nil
}

func (m *MemStore) GetBlockByHeight(h uint64) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		if b.Height == h {
			return b, nil
		}
	}
	return nil, Fail(KindNotFound, "memstore", "GetBlockByHeight", "no block at that height", nil)
}

func (m *MemStore) TxByID(tenant, id string, all bool) (*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx := lookupAny(m.pool, tenant, id, all); tx != nil {
		return tx, nil
	}
	if tx := lookupAny(m.delivered, tenant, id, all); tx != nil {
		return tx, nil
	}
	if tx := lookupAny(m.blocked, tenant, id, all); tx != nil {
		return tx, nil
	}
	return nil, Fail(KindNotFound, "memstore", "TxByID", "tx not found", nil)
}

func lookupAny(m map[string]map[string]*Tx, tenant, id string, all bool) *Tx {
	if all {
		for _, bucket := range m {
			if tx, ok := bucket[id]; ok {
				return tx
			}
		}
		return nil
	}
	if tx, ok := m[tenant][id]; ok {
		return tx
	}
	return nil
}

func (m *MemStore) HistoryByTerminalID(tenant, id string) ([]*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chain []*Tx
	seen := make(map[string]bool)
	cur := id
	for cur != "" {
		if seen[cur] {
			return nil, Fail(KindCorruptHistory, "memstore", "HistoryByTerminalID", "prev_id cycle detected", nil)
		}
		seen[cur] = true
		tx := lookupAny(m.pool, tenant, cur, false)
		if tx == nil {
			tx = lookupAny(m.delivered, tenant, cur, false)
		}
		if tx == nil {
			tx = lookupAny(m.blocked, tenant, cur, false)
		}
		if tx == nil {
			return nil, Fail(KindNotFound, "memstore", "HistoryByTerminalID", "tx not found in history chain", nil)
		}
		chain = append(chain, tx)
		cur = tx.PrevID
	}
	reversed := make([]*Tx, len(chain))
	for i, tx := range chain {
		reversed[len(chain)-1-i] = tx
	}
	return reversed, nil
}

func (m *MemStore) AllTxs(tenant string, all bool) ([]*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Tx
	out = append(out, listFrom(m.pool, tenant, Filter{}, all)...)
	out = append(out, listFrom(m.delivered, tenant, Filter{}, all)...)
	out = append(out, listFrom(m.blocked, tenant, Filter{}, all)...)
	return out, nil
}

func (m *MemStore) BlockedCount(tenant string, all bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(listFrom(m.blocked, tenant, Filter{}, all)), nil
}

// RemoveSealedDuplicates deletes from pool and delivered any Tx whose id is
// already present in blocked, used by the postScanAndFixPool scan task.
func (m *MemStore) RemoveSealedDuplicates() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for tenant, bucket := range m.blocked {
		for id := range bucket {
			if _, ok := m.pool[tenant][id]; ok {
				delete(m.pool[tenant], id)
				removed++
			}
			if _, ok := m.delivered[tenant][id]; ok {
				delete(m.delivered[tenant], id)
				removed++
			}
		}
	}
	return removed, nil
}

// Reset wipes all pool, delivered, and block state, for sys/initbc's
// trytoreset=true path in tests.
func (m *MemStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = make(map[string]map[string]*Tx)
	m.delivered = make(map[string]map[string]*Tx)
	m.blocked = make(map[string]map[string]*Tx)
	m.blocks = nil
}

// Blocks returns a snapshot of the full chain, oldest-first, used by
// postScanAndFixBlock and sys/syncblocked.
func (m *MemStore) Blocks() []*Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Block, len(m.blocks))
	copy(out, m.blocks)
	return out
}
