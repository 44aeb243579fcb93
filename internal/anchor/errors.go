package anchor

import (
	"errors"
	"fmt"
)

// Kind is the normalized ledger failure taxonomy. Backends classify raw
// transport and contract errors into a Kind before returning them so callers
// can pick a retry policy without inspecting messages.
type Kind string

const (
	// KindMintFailed covers reverted or rejected transactions.
	KindMintFailed Kind = "mint_failed"
	// KindInvalidInput is a mint the contract will never accept.
	KindInvalidInput Kind = "invalid_input"
	// KindInsufficientFunds means the signing wallet cannot pay for gas.
	KindInsufficientFunds Kind = "insufficient_funds"
	// KindNotAuthorized means the signer lacks the minter role.
	KindNotAuthorized Kind = "not_authorized"
	// KindNetwork covers timeouts, refused connections and open circuits.
	KindNetwork Kind = "network"
	// KindNotFound means the contract has no such certificate.
	KindNotFound Kind = "not_found"
	// KindUnconfirmed means a mint transaction was broadcast but its outcome
	// is unknown. The error carries the transaction ID; the mint must be
	// reconciled against it, never sent again blindly.
	KindUnconfirmed Kind = "unconfirmed"
	// KindInternal is anything unclassified.
	KindInternal Kind = "internal"
)

// Retryable reports whether requeueing a job that failed with k can succeed.
// NotAuthorized is retryable but needs a human first. Unconfirmed is
// retryable because the next attempt reconciles before minting.
func (k Kind) Retryable() bool {
	switch k {
	case KindMintFailed, KindInsufficientFunds, KindNotAuthorized, KindNetwork, KindUnconfirmed:
		return true
	default:
		return false
	}
}

// Error wraps a ledger failure with its classification.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
	// TxID is the broadcast transaction for KindUnconfirmed.
	TxID string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("anchor %s [%s]: %s: %v", e.Op, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("anchor %s [%s]: %s", e.Op, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind so errors.Is(err, anchor.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Kind == e.Kind
}

// NewError builds a classified ledger error.
func NewError(kind Kind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// Kind targets for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrNotAuthorized     = &Error{Kind: KindNotAuthorized}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrMintFailed        = &Error{Kind: KindMintFailed}
	ErrUnconfirmed       = &Error{Kind: KindUnconfirmed}
)

// NewUnconfirmed reports a broadcast transaction whose receipt is not yet known.
func NewUnconfirmed(op, txID, reason string, err error) *Error {
	return &Error{Kind: KindUnconfirmed, Op: op, Reason: reason, Err: err, TxID: txID}
}

// TxIDOf returns the pending transaction carried by an unconfirmed error, or "".
func TxIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindUnconfirmed {
		return e.TxID
	}
	return ""
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is a classified, retryable ledger failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Retryable()
	}
	return false
}
