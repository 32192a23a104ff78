package ledger

import (
	"testing"

	"tenantledger/internal/testutil"
)

func TestGenerateSignVerifyRoundTrip(t *testing.T) {
	k, err := GenerateKeyring("node-a")
	if err != nil {
		t.Fatalf("GenerateKeyring: %v", err)
	}
	msg := []byte("block hash bytes")
	sig := k.Sign(msg)
	if !Verify(k.PublicKeyHex(), msg, sig) {
		t.Fatal("Verify rejected a signature produced by Sign")
	}
	if Verify(k.PublicKeyHex(), []byte("different message"), sig) {
		t.Fatal("Verify accepted a signature over the wrong message")
	}
}

func TestSaveAndLoadKeyring(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()
	path := sb.Path("node.pem")

	k, err := GenerateKeyring("node-a")
	if err != nil {
		t.Fatalf("GenerateKeyring: %v", err)
	}
	if err := k.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadKeyring("node-a", path)
	if err != nil {
		t.Fatalf("LoadKeyring: %v", err)
	}
	if loaded.PublicKeyHex() != k.PublicKeyHex() {
		t.Fatal("loaded keyring's public key does not match the saved one")
	}
	if loaded.NodeID() != "node-a" {
		t.Fatalf("NodeID() = %q, want node-a", loaded.NodeID())
	}

	msg := []byte("round trip")
	if !Verify(loaded.PublicKeyHex(), msg, loaded.Sign(msg)) {
		t.Fatal("loaded keyring produced a signature that does not verify")
	}
}

func TestLoadKeyringMissingFile(t *testing.T) {
	if _, err := LoadKeyring("node-a", "/nonexistent/path/key.pem"); err == nil {
		t.Fatal("LoadKeyring should fail for a missing file")
	} else if KindOf(err) != KindInternal {
		t.Fatalf("KindOf = %v, want KindInternal", KindOf(err))
	}
}
