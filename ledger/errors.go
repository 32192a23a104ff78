// Package ledger implements the transaction pool, block engine, tenant
// registry, keyring and document-store facade for a tenant-scoped
// distributed ledger node.
package ledger

import (
	"errors"
	"fmt"
)

// Kind enumerates the closed set of error categories the system produces.
// The HTTP layer (internal/api) is the single place that maps a Kind to a
// status code; every other layer only inspects Kind to decide whether to
// retry.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindTenantClosed
	KindTenantUnknown
	KindNotFound
	KindStoreUnavailable
	KindStoreConflict
	KindPeerTimeout
	KindPeerDisconnected
	KindChainDivergence
	KindCorruptHistory
	KindQuiesceTimeout
	KindUnknownMethod
	KindIncompatiblePeer
	KindBlockingFailed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAuth:
		return "AuthError"
	case KindTenantClosed:
		return "TenantClosed"
	case KindTenantUnknown:
		return "TenantUnknown"
	case KindNotFound:
		return "NotFound"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindStoreConflict:
		return "StoreConflict"
	case KindPeerTimeout:
		return "PeerTimeout"
	case KindPeerDisconnected:
		return "PeerDisconnected"
	case KindChainDivergence:
		return "ChainDivergence"
	case KindCorruptHistory:
		return "CorruptHistory"
	case KindQuiesceTimeout:
		return "QuiesceTimeout"
	case KindUnknownMethod:
		return "UnknownMethod"
	case KindIncompatiblePeer:
		return "IncompatiblePeer"
	case KindBlockingFailed:
		return "BlockingFailed"
	default:
		return "InternalError"
	}
}

// Error is the uniform failure carrier: kind, originating component,
// call-site, and a human message. It wraps an optional underlying cause so
// errors.Is/errors.As keep working against sentinel causes from the store or
// RPC layers.
type Error struct {
	Kind      Kind
	Component string
	Site      string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s.%s: %s: %s: %v", e.Component, e.Site, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s.%s: %s: %s", e.Component, e.Site, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Fail builds a new *Error. component/site identify where the failure
// originated (e.g. "pool", "Insert").
func Fail(kind Kind, component, site, message string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Site: site, Message: message, Cause: cause}
}

// Wrap adds call-site context to err without discarding its Kind if err is
// already a *Error. Mirrors pkg/utils.Wrap's "nil in, nil out" contract.
func Wrap(err error, component, site, message string) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return Fail(le.Kind, component, site, message, err)
	}
	return Fail(KindInternal, component, site, message, err)
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// that never passed through Fail/Wrap.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}
