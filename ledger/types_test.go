package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"
)

func decodeHexPub(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(b), nil
}

func TestNewObjectIDShape(t *testing.T) {
	id := NewObjectID()
	if !IsValidObjectID(id) {
		t.Fatalf("NewObjectID produced an id that fails IsValidObjectID: %q", id)
	}
	other := NewObjectID()
	if id == other {
		t.Fatal("two calls to NewObjectID produced the same id")
	}
}

func TestIsValidObjectID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"abc", false},
		{"0123456789abcdef0123456z", false},
		{"0123456789abcdef01234567", true},
		{"0123456789ABCDEF01234567", false},
	}
	for _, c := range cases {
		if got := IsValidObjectID(c.id); got != c.want {
			t.Errorf("IsValidObjectID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestSignBlockAndVerify(t *testing.T) {
	k, err := GenerateKeyring("node-a")
	if err != nil {
		t.Fatalf("GenerateKeyring: %v", err)
	}
	b := &Block{Height: 1, PrevHash: "", TxIDs: []string{"abc123"}, CreatedAt: 1000}
	k.SignBlock(b)

	if b.Hash == "" || b.Signature == "" || b.TxRoot == "" {
		t.Fatal("SignBlock left hash/signature/tx_root unset")
	}
	pub, err := decodeHexPub(k.PublicKeyHex())
	if err != nil {
		t.Fatalf("decode pub: %v", err)
	}
	if !VerifyBlock(b, pub) {
		t.Fatal("VerifyBlock rejected a block it signed")
	}

	b.Signature = b.Signature[:len(b.Signature)-2] + "00"
	if VerifyBlock(b, pub) {
		t.Fatal("VerifyBlock accepted a tampered signature")
	}
}

func TestVerifyBlockDetectsTamperedTxRoot(t *testing.T) {
	k, _ := GenerateKeyring("node-a")
	b := &Block{Height: 0, TxIDs: []string{"one", "two"}, CreatedAt: 1}
	k.SignBlock(b)
	pub, _ := decodeHexPub(k.PublicKeyHex())

	b.TxIDs = append(b.TxIDs, "three")
	if VerifyBlock(b, pub) {
		t.Fatal("VerifyBlock accepted a block whose tx_ids no longer match tx_root")
	}
}
