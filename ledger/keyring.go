package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"os"
)

// Keyring holds a single node's Ed25519 signing identity, loaded once at
// boot and used to sign every block this node seals. No BLS, no threshold
// signing, no merkle/audit trail.
type Keyring struct {
	nodeID string
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

// LoadKeyring reads an Ed25519 private key from a PEM file at path. The PEM
// block type is expected to be "PRIVATE KEY" wrapping the raw 64-byte seed+
// public-key form ed25519.PrivateKey already uses on disk.
func LoadKeyring(nodeID, path string) (*Keyring, error) {
	const site = "LoadKeyring"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Fail(KindInternal, "keyring", site, "read key file", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, Fail(KindInternal, "keyring", site, "no PEM block in key file", nil)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, Fail(KindInternal, "keyring", site, "unexpected Ed25519 key size", nil)
	}
	priv := ed25519.PrivateKey(block.Bytes)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keyring{nodeID: nodeID, priv: priv, pub: pub}, nil
}

// GenerateKeyring mints a fresh random Ed25519 identity, used by tests and
// by first-run node bootstrap when no key file exists yet.
func GenerateKeyring(nodeID string) (*Keyring, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, Fail(KindInternal, "keyring", "GenerateKeyring", "generate Ed25519 key", err)
	}
	return &Keyring{nodeID: nodeID, priv: priv, pub: pub}, nil
}

// SaveTo writes k's private key to path as a PEM "PRIVATE KEY" block.
func (k *Keyring) SaveTo(path string) error {
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: k.priv}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// NodeID is the identity this keyring signs as.
func (k *Keyring) NodeID() string { return k.nodeID }

// PublicKeyHex is the hex-encoded Ed25519 public key, suitable for a peer
// roster entry or a signature-verification lookup table.
func (k *Keyring) PublicKeyHex() string { return hex.EncodeToString(k.pub) }

// Sign produces a hex-encoded Ed25519 signature over msg (the block hash).
func (k *Keyring) Sign(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(k.priv, msg))
}

// Verify checks a hex-encoded signature against msg using pubHex, the
// signer's hex-encoded Ed25519 public key as recorded in the peer roster.
func Verify(pubHex string, msg []byte, sigHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// SignBlock fills Hash and Signature on b using k's identity. Signer is set
// to k.NodeID(). Callers must have already set Height, PrevHash, TxIDs, and
// CreatedAt.
func (k *Keyring) SignBlock(b *Block) {
	txRoot := hashTxRoot(b.TxIDs)
	b.TxRoot = hex.EncodeToString(txRoot[:])
	prevHash, _ := hex.DecodeString(b.PrevHash)
	hash := hashBlockHeader(b.Height, prevHash, txRoot[:], k.nodeID, b.CreatedAt)
	b.Hash = hex.EncodeToString(hash[:])
	b.Signer = k.nodeID
	b.Signature = k.Sign(hash[:])
}
