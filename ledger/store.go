package ledger

// Filter narrows a listPool/listDelivered/get-byjson query to a single
// key/value match against a Tx's decoded Data payload. A zero Filter
// matches everything.
type Filter struct {
	Key   string
	Value string
}

func (f Filter) empty() bool { return f.Key == "" }

// DataStore is the narrow capability set exposed over the tenant-partitioned
// pool/delivered/blocks collections. Implementations:
// memstore (in-process, used by tests and single-node runs) and mongostore
// (go.mongodb.org/mongo-driver, the production document store).
//
// Methods that take a tenant are tenant-scoped unless their explicit all
// bool is true. Failure modes: KindStoreUnavailable,
// KindStoreConflict, KindNotFound.
type DataStore interface {
	// InsertPool stores tx in the pool collection and assigns tx.ID.
	InsertPool(tx *Tx) error
	// ListPool returns pooled Txs for tenant, optionally narrowed by filter.
	// If all is true, tenant is ignored and every tenant's pool is returned.
	ListPool(tenant string, filter Filter, all bool) ([]*Tx, error)
	// MovePoolToDelivered moves the given ids from pool to delivered for
	// tenant. Ids not present in pool are silently skipped (idempotent).
	MovePoolToDelivered(tenant string, ids []string) error
	// InsertDelivered stores tx directly into delivered, bypassing pool
	// (the code path a peer-delivered Request takes).
	InsertDelivered(tx *Tx) error
	// ListDelivered returns delivered Txs for tenant (or all tenants).
	ListDelivered(tenant string, filter Filter, all bool) ([]*Tx, error)
	// SealBlock atomically appends block and removes txIds from pool and
	// delivered. On failure, pool/delivered/blocks are left unchanged.
	SealBlock(block *Block, txIds []string) error
	// AppendBlock appends block without touching pool/delivered, used by
	// sys/syncblocked catch-up.
	AppendBlock(block *Block) error
	// LastBlock returns the block with maximum height, or a zero Block at
	// height 0 with an empty hash if the chain is empty.
	LastBlock() (*Block, error)
	// GetBlockByHeight returns the block at height h, or KindNotFound.
	GetBlockByHeight(h uint64) (*Block, error)
	// TxByID finds a Tx by id across pool, delivered, and all sealed
	// blocks' referenced Tx documents (blocked collection), tenant-scoped
	// unless all is true.
	TxByID(tenant, id string, all bool) (*Tx, error)
	// HistoryByTerminalID walks prev_id backward from id, returning
	// oldest-first. KindCorruptHistory if a cycle is detected.
	HistoryByTerminalID(tenant, id string) ([]*Tx, error)
	// AllTxs returns every Tx for tenant across pool, delivered, and
	// blocked (sealed), in no particular cross-collection order.
	AllTxs(tenant string, all bool) ([]*Tx, error)
	// BlockedCount returns the number of blocked Tx documents for tenant
	// across all sealed blocks. get/totalnumber does not call it; it counts
	// AllTxs instead.
	BlockedCount(tenant string, all bool) (int, error)
}
