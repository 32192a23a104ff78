package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Peer is the narrow capability the pool & block engine needs from the RPC
// layer (internal/rpcnet), kept here rather than imported to avoid a
// ledger<->rpcnet import cycle: rpcnet depends on ledger's Tx/Block types,
// not the other way around.
type Peer interface {
	ID() string
	// Deliver sends tx to the peer as a Request and waits for
	// ResultSuccess/ResultFailure, or returns KindPeerTimeout/
	// KindPeerDisconnected.
	Deliver(ctx context.Context, tx *Tx) error
	// Height returns the peer's last block height.
	Height(ctx context.Context) (uint64, error)
	// BlocksFrom returns the peer's blocks starting at height `from`,
	// inclusive, for sys/syncblocked catch-up.
	BlocksFrom(ctx context.Context, from uint64) ([]*Block, error)
}

// PeerSet exposes the current reachable peer roster.
type PeerSet interface {
	Peers() []Peer
}

// EngineConfig carries the tunables the node config bundle provides to the
// pool & block engine.
type EngineConfig struct {
	MaxPayloadBytes int
	SealRetries     int
	DeliveryStaleAfter time.Duration
}

// Engine is the pool & block engine, the heart of the system: tenant
// ingress, cross-node delivery, block sealing, hash chaining, and the
// scan-and-fix self-repair tasks.
type Engine struct {
	mu sync.Mutex // serializes delivery and sealing

	store    DataStore
	tenants  *Registry
	keys     *Keyring
	peers    PeerSet
	cfg      EngineConfig
	nodeName string
}

// NewEngine wires an Engine from explicit constructor dependencies — no
// back-pointer into a monolithic context object.
func NewEngine(nodeName string, store DataStore, tenants *Registry, keys *Keyring, peers PeerSet, cfg EngineConfig) *Engine {
	return &Engine{nodeName: nodeName, store: store, tenants: tenants, keys: keys, peers: peers, cfg: cfg}
}

// IngressRequest is the validated shape of a POST /post/byjson body.
type IngressRequest struct {
	Tenant string          `json:"tenant,omitempty"`
	Type   TxType          `json:"type"`
	PrevID string          `json:"prev_id,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Ingress validates and pools a new Tx, returning its store-assigned id.
func (e *Engine) Ingress(ctx context.Context, req IngressRequest) (string, error) {
	const site = "Ingress"
	if len(req.Data) > e.cfg.MaxPayloadBytes && e.cfg.MaxPayloadBytes > 0 {
		return "", Fail(KindValidation, "pool", site, "payload exceeds configured size ceiling", nil)
	}
	switch req.Type {
	case TxNew, TxUpdate, TxDelete:
	default:
		return "", Fail(KindValidation, "pool", site, "type must be one of new, update, delete", nil)
	}
	if req.Type != TxNew && req.PrevID == "" {
		return "", Fail(KindValidation, "pool", site, "prev_id is required for non-new tx", nil)
	}
	if len(req.Data) == 0 {
		return "", Fail(KindValidation, "pool", site, "data is required", nil)
	}
	tenant, err := e.tenants.Resolve(req.Tenant)
	if err != nil {
		return "", err
	}
	if req.PrevID != "" {
		if _, err := e.store.TxByID(tenant, req.PrevID, false); err != nil {
			return "", Wrap(err, "pool", site, "prev_id does not reference a visible tx")
		}
	}
	tx := &Tx{
		Tenant:    tenant,
		Type:      req.Type,
		PrevID:    req.PrevID,
		Data:      req.Data,
		CreatedAt: time.Now().UnixMilli(),
	}
	e.mu.Lock()
	err = e.store.InsertPool(tx)
	e.mu.Unlock()
	if err != nil {
		return "", Wrap(err, "pool", site, "insert pool")
	}
	return tx.ID, nil
}

// DeliverPooling is sys/deliverpooling: under the pool mutex, fan out every
// pooled Tx to every reachable peer; on unanimous success, move it to
// delivered. Idempotent: rerunning with nothing new pooled is a no-op.
func (e *Engine) DeliverPooling(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	txs, err := e.store.ListPool("", Filter{}, true)
	if err != nil {
		return Wrap(err, "pool", "DeliverPooling", "list pool")
	}
	peers := e.peers.Peers()
	byTenant := make(map[string][]string)
	for _, tx := range txs {
		if e.deliverOne(ctx, tx, peers) {
			byTenant[tx.Tenant] = append(byTenant[tx.Tenant], tx.ID)
		}
	}
	for tenant, ids := range byTenant {
		if err := e.store.MovePoolToDelivered(tenant, ids); err != nil {
			return Wrap(err, "pool", "DeliverPooling", "move pool to delivered")
		}
	}
	return nil
}

func (e *Engine) deliverOne(ctx context.Context, tx *Tx, peers []Peer) bool {
	for _, p := range peers {
		if err := p.Deliver(ctx, tx); err != nil {
			return false // leave pooled; next tick retries (idempotent at the peer)
		}
	}
	return true
}

// Blocking is sys/blocking: seal every delivered Tx across tenants into one
// new block, signed and hash-linked to the current chain tip.
func (e *Engine) Blocking(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delivered, err := e.store.ListDelivered("", Filter{}, true)
	if err != nil {
		return Wrap(err, "pool", "Blocking", "list delivered")
	}
	sort.Slice(delivered, func(i, j int) bool {
		if delivered[i].CreatedAt != delivered[j].CreatedAt {
			return delivered[i].CreatedAt < delivered[j].CreatedAt
		}
		return delivered[i].ID < delivered[j].ID
	})
	ids := make([]string, len(delivered))
	for i, tx := range delivered {
		ids[i] = tx.ID
	}

	last, err := e.store.LastBlock()
	if err != nil {
		return Wrap(err, "pool", "Blocking", "read last block")
	}
	height := last.Height + 1
	block := &Block{
		Height:    height,
		PrevHash:  last.Hash,
		TxIDs:     ids,
		CreatedAt: time.Now().UnixMilli(),
	}
	e.keys.SignBlock(block)

	var sealErr error
	retries := e.cfg.SealRetries
	if retries <= 0 {
		retries = 3
	}
	for attempt := 0; attempt < retries; attempt++ {
		sealErr = e.store.SealBlock(block, ids)
		if sealErr == nil {
			return nil
		}
		if KindOf(sealErr) != KindStoreConflict {
			break
		}
	}
	return Fail(KindBlockingFailed, "pool", "Blocking", "seal failed after retries", sealErr)
}

// SyncBlocked is sys/syncblocked: compare this node's chain tip against
// every peer's; append missing suffix blocks from any peer that is ahead
// with a prefix-compatible chain.
func (e *Engine) SyncBlocked(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, err := e.store.LastBlock()
	if err != nil {
		return Wrap(err, "pool", "SyncBlocked", "read last block")
	}
	for _, p := range e.peers.Peers() {
		peerHeight, err := p.Height(ctx)
		if err != nil || peerHeight <= last.Height {
			continue
		}
		blocks, err := p.BlocksFrom(ctx, last.Height)
		if err != nil || len(blocks) == 0 {
			continue
		}
		head := blocks[0]
		if last.Hash != "" && head.Height == last.Height && head.Hash != last.Hash {
			return Fail(KindChainDivergence, "pool", "SyncBlocked", "peer chain diverges at overlapping height", nil)
		}
		for _, b := range blocks {
			if b.Height <= last.Height {
				continue
			}
			if b.PrevHash != last.Hash {
				return Fail(KindChainDivergence, "pool", "SyncBlocked", "peer block does not chain to our tip", nil)
			}
			if err := e.store.AppendBlock(b); err != nil {
				return Wrap(err, "pool", "SyncBlocked", "append peer block")
			}
			last = b
		}
	}
	return nil
}

// ListPool is get/pooling, and the tenant-scoped half of get/byjson.
func (e *Engine) ListPool(tenant string, filter Filter) ([]*Tx, error) {
	txs, err := e.store.ListPool(tenant, filter, false)
	return txs, Wrap(err, "pool", "ListPool", "list pool")
}

// ListDelivered is get/poolingdelivered.
func (e *Engine) ListDelivered(tenant string, filter Filter) ([]*Tx, error) {
	txs, err := e.store.ListDelivered(tenant, filter, false)
	return txs, Wrap(err, "pool", "ListDelivered", "list delivered")
}

// ListBlocked is get/blocked: every Tx already sealed into a block, for
// this tenant.
func (e *Engine) ListBlocked(tenant string, filter Filter) ([]*Tx, error) {
	all, err := e.store.AllTxs(tenant, false)
	if err != nil {
		return nil, Wrap(err, "pool", "ListBlocked", "list all txs")
	}
	pooled, err := e.store.ListPool(tenant, Filter{}, false)
	if err != nil {
		return nil, Wrap(err, "pool", "ListBlocked", "list pool")
	}
	delivered, err := e.store.ListDelivered(tenant, Filter{}, false)
	if err != nil {
		return nil, Wrap(err, "pool", "ListBlocked", "list delivered")
	}
	unblocked := make(map[string]bool, len(pooled)+len(delivered))
	for _, tx := range pooled {
		unblocked[tx.ID] = true
	}
	for _, tx := range delivered {
		unblocked[tx.ID] = true
	}
	var out []*Tx
	for _, tx := range all {
		if !unblocked[tx.ID] && matchesFilter(tx, filter) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// TxByID is the lookup behind get/byoid/:id.
func (e *Engine) TxByID(tenant, id string) (*Tx, error) {
	tx, err := e.store.TxByID(tenant, id, false)
	return tx, Wrap(err, "pool", "TxByID", "find tx")
}

// AllTxs is get/alltxs.
func (e *Engine) AllTxs(tenant string) ([]*Tx, error) {
	txs, err := e.store.AllTxs(tenant, false)
	return txs, Wrap(err, "pool", "AllTxs", "list all txs")
}

// TotalNumber is get/totalnumber: the testable-property §8 invariant-6
// identity, |alltxs| = |pooling| + |poolingdelivered| + Σ blocked.
func (e *Engine) TotalNumber(tenant string) (int, error) {
	txs, err := e.store.AllTxs(tenant, false)
	if err != nil {
		return 0, Wrap(err, "pool", "TotalNumber", "count all txs")
	}
	return len(txs), nil
}

// Reset is sys/initbc's trytoreset=true path: wipes pool, delivered, and
// blocks on stores that support it (memstore, for tests). Stores with no
// reset capability treat this as a no-op, since a production document
// store is never reset by an API call.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.store.(interface{ Reset() }); ok {
		r.Reset()
	}
	return nil
}

// LastBlockView is get/lastblock.
func (e *Engine) LastBlockView() (*Block, error) {
	b, err := e.store.LastBlock()
	return b, Wrap(err, "pool", "LastBlockView", "read last block")
}

// History is get/history/:id.
func (e *Engine) History(tenant, id string) ([]*Tx, error) {
	chain, err := e.store.HistoryByTerminalID(tenant, id)
	if err != nil {
		return nil, Wrap(err, "pool", "History", "walk history")
	}
	return chain, nil
}

// HandlePeerRequest is the local handler for an inbound RPC Request carrying
// a Tx body: a peer-delivered Tx is inserted directly into delivered,
// bypassing pooled.
func (e *Engine) HandlePeerRequest(tx *Tx) error {
	return Wrap(e.store.InsertDelivered(tx), "pool", "HandlePeerRequest", "insert delivered")
}

// LocalHeight answers a peer's sys/syncblocked height query.
func (e *Engine) LocalHeight() (uint64, error) {
	last, err := e.store.LastBlock()
	if err != nil {
		return 0, Wrap(err, "pool", "LocalHeight", "read last block")
	}
	if last.Hash == "" {
		return 0, nil
	}
	return last.Height, nil
}

// BlocksFrom answers a peer's catch-up request: every block at height >=
// from, inclusive, oldest-first.
func (e *Engine) BlocksFrom(from uint64) ([]*Block, error) {
	if ms, ok := e.store.(interface{ Blocks() []*Block }); ok {
		var out []*Block
		for _, b := range ms.Blocks() {
			if b.Height >= from {
				out = append(out, b)
			}
		}
		return out, nil
	}
	last, err := e.store.LastBlock()
	if err != nil {
		return nil, Wrap(err, "pool", "BlocksFrom", "read last block")
	}
	var out []*Block
	for h := from; last.Hash != "" && h <= last.Height; h++ {
		b, err := e.store.GetBlockByHeight(h)
		if err != nil {
			return nil, Wrap(err, "pool", "BlocksFrom", "read block by height")
		}
		out = append(out, b)
	}
	return out, nil
}
