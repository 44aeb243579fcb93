// Package tracing emits spans around ledger calls.
//
// It defines a small tracer interface so anchor code never touches
// OpenTelemetry directly:
//   - OTelTracer: OpenTelemetry adapter for production
//   - NoopTracer: for tests
//
// Client decorates any anchor.Client with one span per call.
package tracing

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanMint           = "anchor.mint"
	SpanConfirm        = "anchor.confirm"
	SpanVerify         = "anchor.verify"
	SpanCertificatesOf = "anchor.certificates_of"
	SpanCanMint        = "anchor.can_mint"
	SpanWalletState    = "anchor.wallet_state"
	SpanTotalIssued    = "anchor.total_issued"
)

// Attribute keys.
const (
	AttrCertificateID = "certificate.id"
	AttrOnChainID     = "anchor.on_chain_id"
	AttrNetwork       = "anchor.network"
	AttrSimulated     = "anchor.simulated"
	AttrErrorKind     = "anchor.error_kind"
	AttrBlockNumber   = "anchor.block_number"
	AttrTransactionID = "anchor.tx"
	AttrConnected     = "wallet.connected"
	AttrAllowed       = "wallet.can_mint"
)
