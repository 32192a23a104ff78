package ledger

import "testing"

func TestNewRegistrySeedsDefaultTenantOpen(t *testing.T) {
	m := NewMemStore()
	reg, err := NewRegistry(m)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	open, err := reg.IsOpen("")
	if err != nil || !open {
		t.Fatalf("IsOpen(default) = %v, %v, want true", open, err)
	}
}

func TestResolveEmptyTenantUsesDefault(t *testing.T) {
	reg, _ := NewRegistry(NewMemStore())
	id, err := reg.Resolve("")
	if err != nil || id != DefaultTenantID {
		t.Fatalf("Resolve(\"\") = %q, %v, want %q", id, err, DefaultTenantID)
	}
}

func TestOpenAndCloseTenant(t *testing.T) {
	reg, _ := NewRegistry(NewMemStore())
	tenant, err := reg.Open("admin-1", "recall-phrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if tenant.State != TenantOpen {
		t.Fatalf("freshly opened tenant has state %v, want TenantOpen", tenant.State)
	}
	if _, err := reg.Resolve(tenant.TenantID); err != nil {
		t.Fatalf("Resolve on freshly opened tenant failed: %v", err)
	}

	if err := reg.Close("wrong-admin", tenant.TenantID); err == nil {
		t.Fatal("Close should fail when adminID does not own the tenant")
	}
	if err := reg.Close("admin-1", tenant.TenantID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := reg.Resolve(tenant.TenantID); KindOf(err) != KindTenantClosed {
		t.Fatalf("Resolve on closed tenant = %v, want KindTenantClosed", err)
	}
}

func TestCloseUnknownTenant(t *testing.T) {
	reg, _ := NewRegistry(NewMemStore())
	if err := reg.Close("admin-1", "no-such-tenant"); err == nil {
		t.Fatal("Close on an unknown tenant should fail")
	}
}

func TestResolveUnknownTenant(t *testing.T) {
	reg, _ := NewRegistry(NewMemStore())
	if _, err := reg.Resolve("no-such-tenant"); err == nil {
		t.Fatal("Resolve on an unknown tenant should fail")
	}
}
