package tracing

import (
	"context"

	"certify/internal/anchor"
)

// Client wraps an anchor.Client with one span per call.
type Client struct {
	next   anchor.Client
	tracer Tracer
}

// Wrap decorates next. A nil tracer falls back to the global OpenTelemetry provider.
func Wrap(next anchor.Client, tracer Tracer) *Client {
	if tracer == nil {
		tracer = NewOTel()
	}
	return &Client{next: next, tracer: tracer}
}

func (c *Client) start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	n := c.next.Network()
	attrs = append(attrs, String(AttrNetwork, n.Name), Bool(AttrSimulated, n.Simulated))
	return c.tracer.Start(ctx, name, attrs...)
}

func end(span Span, err error) {
	if err != nil {
		span.SetAttributes(String(AttrErrorKind, string(anchor.KindOf(err))))
	}
	span.End(err)
}

func (c *Client) Mint(ctx context.Context, req anchor.MintRequest) (receipt *anchor.MintReceipt, err error) {
	ctx, span := c.start(ctx, SpanMint, String(AttrCertificateID, req.CertificateID))
	defer func() { end(span, err) }()

	receipt, err = c.next.Mint(ctx, req)
	annotate(span, receipt, err)
	return receipt, err
}

func (c *Client) Confirm(ctx context.Context, txID string) (receipt *anchor.MintReceipt, err error) {
	ctx, span := c.start(ctx, SpanConfirm, String(AttrTransactionID, txID))
	defer func() { end(span, err) }()

	receipt, err = c.next.Confirm(ctx, txID)
	annotate(span, receipt, err)
	return receipt, err
}

func annotate(span Span, receipt *anchor.MintReceipt, err error) {
	if err != nil {
		if tx := anchor.TxIDOf(err); tx != "" {
			span.SetAttributes(String(AttrTransactionID, tx))
		}
		return
	}
	span.SetAttributes(
		String(AttrOnChainID, receipt.OnChainID),
		String(AttrTransactionID, receipt.TransactionID),
		Int64(AttrBlockNumber, int64(receipt.BlockNumber)),
	)
}

func (c *Client) Verify(ctx context.Context, onChainID string) (rec *anchor.OnChainRecord, err error) {
	ctx, span := c.start(ctx, SpanVerify, String(AttrOnChainID, onChainID))
	defer func() { end(span, err) }()
	return c.next.Verify(ctx, onChainID)
}

func (c *Client) CertificatesOf(ctx context.Context, owner string) (ids []string, err error) {
	ctx, span := c.start(ctx, SpanCertificatesOf)
	defer func() { end(span, err) }()
	return c.next.CertificatesOf(ctx, owner)
}

func (c *Client) CanMint(ctx context.Context, address string) (ok bool, err error) {
	ctx, span := c.start(ctx, SpanCanMint)
	defer func() {
		span.SetAttributes(Bool(AttrAllowed, ok))
		end(span, err)
	}()
	return c.next.CanMint(ctx, address)
}

func (c *Client) WalletState(ctx context.Context) (state anchor.WalletState, err error) {
	ctx, span := c.start(ctx, SpanWalletState)
	defer func() {
		span.SetAttributes(Bool(AttrConnected, state.Connected))
		end(span, err)
	}()
	return c.next.WalletState(ctx)
}

func (c *Client) TotalIssued(ctx context.Context) (total uint64, err error) {
	ctx, span := c.start(ctx, SpanTotalIssued)
	defer func() { end(span, err) }()
	return c.next.TotalIssued(ctx)
}

func (c *Client) Network() anchor.NetworkInfo {
	return c.next.Network()
}

var _ anchor.Client = (*Client)(nil)
