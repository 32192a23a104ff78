package ledger

import (
	"encoding/json"
	"testing"
)

func newTx(tenant string, data string) *Tx {
	return &Tx{Tenant: tenant, Type: TxNew, Data: json.RawMessage(data), CreatedAt: 1}
}

func TestMemStorePoolInsertAndList(t *testing.T) {
	m := NewMemStore()
	tx := newTx("t1", `{"k":"v"}`)
	if err := m.InsertPool(tx); err != nil {
		t.Fatalf("InsertPool: %v", err)
	}
	if !IsValidObjectID(tx.ID) {
		t.Fatalf("InsertPool did not assign a store id: %q", tx.ID)
	}
	got, err := m.ListPool("t1", Filter{}, false)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListPool = %v, %v, want 1 tx", got, err)
	}
	if other, _ := m.ListPool("t2", Filter{}, false); len(other) != 0 {
		t.Fatal("ListPool leaked across tenants")
	}
}

func TestMemStoreInsertDeliveredIdempotent(t *testing.T) {
	m := NewMemStore()
	tx := newTx("t1", `{}`)
	tx.ID = "0123456789abcdef01234567"
	if err := m.InsertDelivered(tx); err != nil {
		t.Fatalf("first InsertDelivered: %v", err)
	}
	if err := m.InsertDelivered(tx); err != nil {
		t.Fatalf("second InsertDelivered (redelivery) should be a no-op, got: %v", err)
	}
	got, _ := m.ListDelivered("t1", Filter{}, false)
	if len(got) != 1 {
		t.Fatalf("redelivery duplicated the tx: got %d entries", len(got))
	}
}

func TestMemStoreMovePoolToDelivered(t *testing.T) {
	m := NewMemStore()
	tx := newTx("t1", `{}`)
	_ = m.InsertPool(tx)
	if err := m.MovePoolToDelivered("t1", []string{tx.ID}); err != nil {
		t.Fatalf("MovePoolToDelivered: %v", err)
	}
	if pooled, _ := m.ListPool("t1", Filter{}, false); len(pooled) != 0 {
		t.Fatal("tx remained in pool after MovePoolToDelivered")
	}
	if delivered, _ := m.ListDelivered("t1", Filter{}, false); len(delivered) != 1 {
		t.Fatal("tx did not land in delivered after MovePoolToDelivered")
	}
}

func TestMemStoreSealBlockMovesDeliveredToBlocked(t *testing.T) {
	m := NewMemStore()
	tx := newTx("t1", `{}`)
	_ = m.InsertPool(tx)
	_ = m.MovePoolToDelivered("t1", []string{tx.ID})

	block := &Block{Height: 1, Hash: "deadbeef", TxIDs: []string{tx.ID}}
	if err := m.SealBlock(block, []string{tx.ID}); err != nil {
		t.Fatalf("SealBlock: %v", err)
	}
	if delivered, _ := m.ListDelivered("t1", Filter{}, false); len(delivered) != 0 {
		t.Fatal("tx remained in delivered after SealBlock")
	}
	n, err := m.BlockedCount("t1", false)
	if err != nil || n != 1 {
		t.Fatalf("BlockedCount = %d, %v, want 1", n, err)
	}
	last, err := m.LastBlock()
	if err != nil || last.Height != 1 {
		t.Fatalf("LastBlock = %+v, %v, want height 1", last, err)
	}
}

func TestMemStoreLastBlockEmptyChain(t *testing.T) {
	m := NewMemStore()
	b, err := m.LastBlock()
	if err != nil {
		t.Fatalf("LastBlock on empty chain: %v", err)
	}
	if b.Height != 0 || b.Hash != "" {
		t.Fatalf("LastBlock on empty chain = %+v, want zero block", b)
	}
}

func TestMemStoreHistoryByTerminalID(t *testing.T) {
	m := NewMemStore()
	first := newTx("t1", `{"v":1}`)
	_ = m.InsertPool(first)

	second := newTx("t1", `{"v":2}`)
	second.Type = TxUpdate
	second.PrevID = first.ID
	_ = m.InsertPool(second)

	chain, err := m.HistoryByTerminalID("t1", second.ID)
	if err != nil {
		t.Fatalf("HistoryByTerminalID: %v", err)
	}
	if len(chain) != 2 || chain[0].ID != first.ID || chain[1].ID != second.ID {
		t.Fatalf("history chain out of order or wrong length: %+v", chain)
	}
}

func TestMemStoreHistoryCycleDetected(t *testing.T) {
	m := NewMemStore()
	a := newTx("t1", `{}`)
	a.ID = "aaaaaaaaaaaaaaaaaaaaaaaa"
	b := newTx("t1", `{}`)
	b.ID = "bbbbbbbbbbbbbbbbbbbbbbbb"
	a.PrevID = b.ID
	b.PrevID = a.ID
	_ = m.InsertPool(a)
	_ = m.InsertPool(b)

	if _, err := m.HistoryByTerminalID("t1", a.ID); KindOf(err) != KindCorruptHistory {
		t.Fatalf("expected KindCorruptHistory for a prev_id cycle, got %v", err)
	}
}

func TestMemStoreAllTxsAndTotalNumberIdentity(t *testing.T) {
	m := NewMemStore()
	pooled := newTx("t1", `{}`)
	_ = m.InsertPool(pooled)
	delivered := newTx("t1", `{}`)
	_ = m.InsertPool(delivered)
	_ = m.MovePoolToDelivered("t1", []string{delivered.ID})
	blocked := newTx("t1", `{}`)
	_ = m.InsertPool(blocked)
	_ = m.MovePoolToDelivered("t1", []string{blocked.ID})
	_ = m.SealBlock(&Block{Height: 1, Hash: "h1", TxIDs: []string{blocked.ID}}, []string{blocked.ID})

	all, err := m.AllTxs("t1", false)
	if err != nil {
		t.Fatalf("AllTxs: %v", err)
	}
	p, _ := m.ListPool("t1", Filter{}, false)
	d, _ := m.ListDelivered("t1", Filter{}, false)
	bc, _ := m.BlockedCount("t1", false)
	if len(all) != len(p)+len(d)+bc {
		t.Fatalf("invariant broken: |alltxs|=%d != |pool|=%d + |delivered|=%d + blocked=%d", len(all), len(p), len(d), bc)
	}
}

func TestMemStoreResetWipesState(t *testing.T) {
	m := NewMemStore()
	_ = m.InsertPool(newTx("t1", `{}`))
	_ = m.AppendBlock(&Block{Height: 1, Hash: "h1"})
	m.Reset()

	if all, _ := m.AllTxs("t1", false); len(all) != 0 {
		t.Fatal("Reset left txs behind")
	}
	if b, _ := m.LastBlock(); b.Hash != "" {
		t.Fatal("Reset left blocks behind")
	}
}

func TestMemStoreTenantRoundTrip(t *testing.T) {
	m := NewMemStore()
	if _, err := m.GetTenant("missing"); KindOf(err) != KindNotFound {
		t.Fatalf("GetTenant on missing tenant: got %v, want KindNotFound", err)
	}
	tenant := &Tenant{TenantID: "tid-1", AdminID: "admin-1", State: TenantOpen}
	if err := m.PutTenant(tenant); err != nil {
		t.Fatalf("PutTenant: %v", err)
	}
	got, err := m.GetTenant("tid-1")
	if err != nil || got.AdminID != "admin-1" {
		t.Fatalf("GetTenant = %+v, %v", got, err)
	}
	list, err := m.ListTenants()
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTenants = %v, %v, want 1 entry", list, err)
	}
}
