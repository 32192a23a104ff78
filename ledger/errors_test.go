package ledger

import (
	"errors"
	"testing"
)

func TestFailAndKindOf(t *testing.T) {
	err := Fail(KindValidation, "pool", "Ingress", "bad type", nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("KindOf = %v, want KindValidation", KindOf(err))
	}
	if err.Error() == "" {
		t.Fatal("Error() returned empty string")
	}
}

func TestWrapPreservesKind(t *testing.T) {
	inner := Fail(KindNotFound, "memstore", "TxByID", "tx not found", nil)
	outer := Wrap(inner, "pool", "Ingress", "prev_id does not reference a visible tx")
	if KindOf(outer) != KindNotFound {
		t.Fatalf("Wrap changed Kind: got %v, want KindNotFound", KindOf(outer))
	}
	var le *Error
	if !errors.As(outer, &le) {
		t.Fatal("errors.As failed to unwrap to *Error")
	}
	if le.Cause != inner {
		t.Fatal("Wrap did not chain the original error as Cause")
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(nil, "pool", "Ingress", "unreachable") != nil {
		t.Fatal("Wrap(nil, ...) must return nil")
	}
}

func TestKindOfUnknownErrorIsInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("KindOf on a non-*Error should default to KindInternal")
	}
}
