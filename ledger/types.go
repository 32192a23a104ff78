package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// TxType enumerates the three transaction kinds.
type TxType string

const (
	TxNew    TxType = "new"
	TxUpdate TxType = "update"
	TxDelete TxType = "delete"
)

// Tx is the tenant-scoped, store-identified transaction record. Id is a
// 24-hex opaque string, mirroring a Mongo ObjectID. The store assigns it at
// insertion time when it is empty; an id already set (a peer-delivered
// copy) is kept as is.
type Tx struct {
	ID        string          `json:"id" bson:"_id,omitempty"`
	Tenant    string          `json:"tenant" bson:"tenant"`
	Type      TxType          `json:"type" bson:"type"`
	PrevID    string          `json:"prev_id,omitempty" bson:"prev_id,omitempty"`
	Data      json.RawMessage `json:"data" bson:"data"`
	CreatedAt int64           `json:"created_at" bson:"created_at"`
}

// Block is an immutable, signed, hash-linked batch of sealed Tx ids.
type Block struct {
	Height    uint64   `json:"height" bson:"_id"`
	Hash      string   `json:"hash" bson:"hash"`
	PrevHash  string   `json:"prev_hash" bson:"prev_hash"`
	TxIDs     []string `json:"tx_ids" bson:"tx_ids"`
	TxRoot    string   `json:"tx_root" bson:"tx_root"`
	Signer    string   `json:"signer" bson:"signer"`
	Signature string   `json:"signature" bson:"signature"`
	CreatedAt int64    `json:"created_at" bson:"created_at"`
}

// TenantState is the lifecycle state of a Tenant.
type TenantState string

const (
	TenantOpen   TenantState = "open"
	TenantClosed TenantState = "closed"
)

// DefaultTenantID is the reserved tenant that untagged traffic falls into.
const DefaultTenantID = "00000000-0000-0000-0000-000000000000"

// Tenant is the logical partition record.
type Tenant struct {
	TenantID     string      `json:"tenant_id" bson:"_id"`
	AdminID      string      `json:"admin_id" bson:"admin_id"`
	RecallPhrase string      `json:"recall_phrase" bson:"recall_phrase"`
	State        TenantState `json:"state" bson:"state"`
}

// NewObjectID mints a 24-hex identifier in the shape a document store would
// assign, so memstore and mongostore produce ids of the same shape.
func NewObjectID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:12])
}

// IsValidObjectID reports whether s has the 24-hex shape a Tx/Block id must
// have. The API edge rejects malformed path ids with 404 before ever
// reaching the store.
func IsValidObjectID(s string) bool {
	if len(s) != 24 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// hashBlockHeader computes H(height||prev_hash||tx_root||signer||created_at)
// with SHA-256: height and created_at as 8-byte big-endian integers,
// prev_hash, tx_root and signer as their raw bytes (prev_hash is empty for
// the first block).
func hashBlockHeader(height uint64, prevHash, txRoot []byte, signer string, createdAt int64) [32]byte {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])
	h.Write(prevHash)
	h.Write(txRoot)
	h.Write([]byte(signer))
	binary.BigEndian.PutUint64(buf[:], uint64(createdAt))
	h.Write(buf[:])
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// hashTxRoot computes H(concat tx_ids) over ids in their sealed order.
func hashTxRoot(ids []string) [32]byte {
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// VerifyBlock checks the hash and signature invariants for a single block,
// given the verifying public key for B.Signer.
func VerifyBlock(b *Block, pub ed25519.PublicKey) bool {
	prevHash, err := hex.DecodeString(b.PrevHash)
	if err != nil && b.Height != 0 {
		return false
	}
	txRoot := hashTxRoot(b.TxIDs)
	if hex.EncodeToString(txRoot[:]) != b.TxRoot {
		return false
	}
	wantHash := hashBlockHeader(b.Height, prevHash, txRoot[:], b.Signer, b.CreatedAt)
	if hex.EncodeToString(wantHash[:]) != b.Hash {
		return false
	}
	sig, err := hex.DecodeString(b.Signature)
	if err != nil {
		return false
	}
	hashBytes, err := hex.DecodeString(b.Hash)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, hashBytes, sig)
}
