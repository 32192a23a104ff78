// Package mongostore is the production ledger.DataStore implementation,
// backed by go.mongodb.org/mongo-driver against an external MongoDB
// deployment. Collections are named pool_<node>, blocked_<node>,
// blocks_<node>.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"tenantledger/ledger"
)

var (
	_ ledger.DataStore   = (*Store)(nil)
	_ ledger.TenantStore = (*Store)(nil)
)

// Store is a ledger.DataStore backed by three per-node Mongo collections:
// pool, delivered ("blocked" in the historical collection naming), and
// blocks.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	pool      *mongo.Collection
	delivered *mongo.Collection
	blocks    *mongo.Collection
	tenants   *mongo.Collection
}

// Config is the connection bundle pkg/config reads from the node config's
// DB section.
type Config struct {
	URI      string
	Database string
	NodeName string
	Timeout  time.Duration
}

// Connect dials the configured Mongo endpoint and returns a ready Store.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	const site = "Connect"
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "connect to mongo", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "ping mongo", err)
	}
	db := client.Database(cfg.Database)
	return &Store{
		client:    client,
		db:        db,
		pool:      db.Collection("pool_" + cfg.NodeName),
		delivered: db.Collection("blocked_" + cfg.NodeName),
		blocks:    db.Collection("blocks_" + cfg.NodeName),
		tenants:   db.Collection("tenants_" + cfg.NodeName),
	}, nil
}

// Disconnect flushes and closes the underlying client, part of C8's
// shutdown sequence ("flush DataStore").
func (s *Store) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) InsertPool(tx *ledger.Tx) error {
	return s.insertOne(s.pool, tx)
}

func (s *Store) InsertDelivered(tx *ledger.Tx) error {
	const site = "InsertDelivered"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if tx.ID == "" {
		tx.ID = ledger.NewObjectID()
	}
	_, err := s.delivered.UpdateByID(ctx, tx.ID, bson.M{"$setOnInsert": tx}, options.Update().SetUpsert(true))
	if err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "upsert delivered", err)
	}
	return nil
}

func (s *Store) insertOne(coll *mongo.Collection, tx *ledger.Tx) error {
	const site = "insertOne"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if tx.ID == "" {
		tx.ID = ledger.NewObjectID()
	}
	if _, err := coll.InsertOne(ctx, tx); err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "insert tx", err)
	}
	return nil
}

func (s *Store) listFilter(tenant string, filter ledger.Filter, all bool) bson.M {
	q := bson.M{}
	if !all {
		q["tenant"] = tenant
	}
	if filter.Key != "" {
		q["data."+filter.Key] = filter.Value
	}
	return q
}

func (s *Store) list(coll *mongo.Collection, tenant string, filter ledger.Filter, all bool) ([]*ledger.Tx, error) {
	const site = "list"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cur, err := coll.Find(ctx, s.listFilter(tenant, filter, all))
	if err != nil {
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find", err)
	}
	defer cur.Close(ctx)
	var out []*ledger.Tx
	for cur.Next(ctx) {
		var tx ledger.Tx
		if err := cur.Decode(&tx); err != nil {
			return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "decode", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

func (s *Store) ListPool(tenant string, filter ledger.Filter, all bool) ([]*ledger.Tx, error) {
	return s.list(s.pool, tenant, filter, all)
}

func (s *Store) ListDelivered(tenant string, filter ledger.Filter, all bool) ([]*ledger.Tx, error) {
	return s.list(s.delivered, tenant, filter, all)
}

func (s *Store) MovePoolToDelivered(tenant string, ids []string) error {
	const site = "MovePoolToDelivered"
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cur, err := s.pool.Find(ctx, bson.M{"_id": bson.M{"$in": ids}, "tenant": tenant})
	if err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find pool docs", err)
	}
	defer cur.Close(ctx)
	var txs []any
	for cur.Next(ctx) {
		var tx ledger.Tx
		if err := cur.Decode(&tx); err != nil {
			return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "decode pool doc", err)
		}
		txs = append(txs, tx)
	}
	if len(txs) > 0 {
		if _, err := s.delivered.InsertMany(ctx, txs); err != nil {
			return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "insert delivered batch", err)
		}
	}
	if _, err := s.pool.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "tenant": tenant}); err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "delete pool docs", err)
	}
	return nil
}

// SealBlock uses a Mongo multi-document session transaction so the block
// insert and pool/delivered cleanup commit atomically.
func (s *Store) SealBlock(block *ledger.Block, txIds []string) error {
	const site = "SealBlock"
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sess, err := s.client.StartSession()
	if err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "start session", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := s.blocks.InsertOne(sc, block); err != nil {
			return nil, err
		}
		filter := bson.M{"_id": bson.M{"$in": txIds}}
		if _, err := s.delivered.DeleteMany(sc, filter); err != nil {
			return nil, err
		}
		if _, err := s.pool.DeleteMany(sc, filter); err != nil {
			return nil, err
		}
		return nil, nil
	}, txnOpts)
	if err != nil {
		return ledger.Fail(ledger.KindStoreConflict, "mongostore", site, "seal transaction aborted", err)
	}
	return nil
}

func (s *Store) AppendBlock(block *ledger.Block) error {
	const site = "AppendBlock"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.blocks.InsertOne(ctx, block); err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "insert block", err)
	}
	return nil
}

func (s *Store) LastBlock() (*ledger.Block, error) {
	const site = "LastBlock"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	var b ledger.Block
	if err := s.blocks.FindOne(ctx, bson.M{}, opts).Decode(&b); err != nil {
		if err == mongo.ErrNoDocuments {
			return &ledger.Block{Height: 0, Hash: "", PrevHash: ""}, nil
		}
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find last block", err)
	}
	return &b, nil
}

func (s *Store) GetBlockByHeight(h uint64) (*ledger.Block, error) {
	const site = "GetBlockByHeight"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var b ledger.Block
	if err := s.blocks.FindOne(ctx, bson.M{"_id": h}).Decode(&b); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ledger.Fail(ledger.KindNotFound, "mongostore", site, "no block at that height", nil)
		}
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find block", err)
	}
	return &b, nil
}

func (s *Store) TxByID(tenant, id string, all bool) (*ledger.Tx, error) {
	const site = "TxByID"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	filter := bson.M{"_id": id}
	if !all {
		filter["tenant"] = tenant
	}
	for _, coll := range []*mongo.Collection{s.pool, s.delivered} {
		var tx ledger.Tx
		err := coll.FindOne(ctx, filter).Decode(&tx)
		if err == nil {
			return &tx, nil
		}
		if err != mongo.ErrNoDocuments {
			return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find tx", err)
		}
	}
	return nil, ledger.Fail(ledger.KindNotFound, "mongostore", site, "tx not found", nil)
}

func (s *Store) HistoryByTerminalID(tenant, id string) ([]*ledger.Tx, error) {
	const site = "HistoryByTerminalID"
	var chain []*ledger.Tx
	seen := make(map[string]bool)
	cur := id
	for cur != "" {
		if seen[cur] {
			return nil, ledger.Fail(ledger.KindCorruptHistory, "mongostore", site, "prev_id cycle detected", nil)
		}
		seen[cur] = true
		tx, err := s.TxByID(tenant, cur, false)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tx)
		cur = tx.PrevID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *Store) AllTxs(tenant string, all bool) ([]*ledger.Tx, error) {
	var out []*ledger.Tx
	for _, l := range []func(string, ledger.Filter, bool) ([]*ledger.Tx, error){s.ListPool, s.ListDelivered} {
		txs, err := l(tenant, ledger.Filter{}, all)
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}

// BlockedCount sums the tx_ids sealed across every block. Unlike memstore,
// this store keeps no standalone "blocked" collection tagged by tenant (a
// sealed Tx's tenant lives only on the pool/delivered copy deleted at seal
// time), so tenant/all filtering is not applied here; the count is
// chain-wide.
func (s *Store) BlockedCount(tenant string, all bool) (int, error) {
	const site = "BlockedCount"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cur, err := s.blocks.Find(ctx, bson.M{})
	if err != nil {
		return 0, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find blocks", err)
	}
	defer cur.Close(ctx)
	count := 0
	for cur.Next(ctx) {
		var b ledger.Block
		if err := cur.Decode(&b); err != nil {
			return 0, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "decode block", err)
		}
		count += len(b.TxIDs)
	}
	return count, nil
}

func (s *Store) GetTenant(id string) (*ledger.Tenant, error) {
	const site = "GetTenant"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var t ledger.Tenant
	if err := s.tenants.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ledger.Fail(ledger.KindNotFound, "mongostore", site, "tenant not found", nil)
		}
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find tenant", err)
	}
	return &t, nil
}

func (s *Store) PutTenant(t *ledger.Tenant) error {
	const site = "PutTenant"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.tenants.ReplaceOne(ctx, bson.M{"_id": t.TenantID}, t, options.Replace().SetUpsert(true))
	if err != nil {
		return ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "upsert tenant", err)
	}
	return nil
}

func (s *Store) ListTenants() ([]*ledger.Tenant, error) {
	const site = "ListTenants"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cur, err := s.tenants.Find(ctx, bson.M{})
	if err != nil {
		return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "find tenants", err)
	}
	defer cur.Close(ctx)
	var out []*ledger.Tenant
	for cur.Next(ctx) {
		var t ledger.Tenant
		if err := cur.Decode(&t); err != nil {
			return nil, ledger.Fail(ledger.KindStoreUnavailable, "mongostore", site, "decode tenant", err)
		}
		out = append(out, &t)
	}
	return out, nil
}
