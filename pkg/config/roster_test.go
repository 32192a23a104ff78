package config

import (
	"testing"

	"tenantledger/internal/testutil"
)

func TestLoadRoster(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()
	contents := `peers:
  - node_id: node-b
    addr: "127.0.0.1:9001"
    pub_key: "deadbeef"
  - node_id: node-c
    addr: "127.0.0.1:9002"
    pub_key: "cafef00d"
`
	if err := sb.WriteFile("roster.yaml", []byte(contents), 0o600); err != nil {
		t.Fatalf("write roster fixture: %v", err)
	}

	r, err := LoadRoster(sb.Path("roster.yaml"))
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if len(r.Peers) != 2 {
		t.Fatalf("len(Peers) = %d, want 2", len(r.Peers))
	}
	if r.Peers[0].NodeID != "node-b" || r.Peers[0].Addr != "127.0.0.1:9001" || r.Peers[0].PubKey != "deadbeef" {
		t.Fatalf("Peers[0] = %+v", r.Peers[0])
	}
}

func TestLoadRosterMissingFile(t *testing.T) {
	if _, err := LoadRoster("/nonexistent/roster.yaml"); err == nil {
		t.Fatal("LoadRoster should fail for a missing file")
	}
}
