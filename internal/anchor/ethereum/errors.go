package ethereum

import (
	"context"
	"errors"
	"net"
	"strings"

	"certify/internal/anchor"
)

const (
	opMint     = "mint"
	opVerify   = "verify"
	opByOwner  = "certificates_of"
	opCanMint  = "can_mint"
	opWallet   = "wallet_state"
	opTotal    = "total_issued"
	opWaitMint = "wait_mined"
	opConfirm  = "confirm"
)

// classify maps a raw RPC or contract error into the anchor taxonomy.
// Unknown read failures are treated as network trouble; unknown write
// failures as a rejected mint.
func classify(op string, err error) *anchor.Error {
	if err == nil {
		return nil
	}
	var ae *anchor.Error
	if errors.As(err, &ae) {
		return ae
	}

	msg := strings.ToLower(err.Error())
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return anchor.NewError(anchor.KindNetwork, op, "ledger call timed out", err)
	case errors.Is(err, context.Canceled):
		return anchor.NewError(anchor.KindNetwork, op, "ledger call canceled", err)
	case errors.As(err, &netErr):
		return anchor.NewError(anchor.KindNetwork, op, "ledger unreachable", err)
	case strings.Contains(msg, "insufficient funds"):
		return anchor.NewError(anchor.KindInsufficientFunds, op, "signer cannot pay for gas", err)
	case strings.Contains(msg, "accesscontrol"),
		strings.Contains(msg, "missing role"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "not a minter"):
		return anchor.NewError(anchor.KindNotAuthorized, op, "signer lacks minter role", err)
	case strings.Contains(msg, "execution reverted"):
		switch {
		case op == opVerify:
			return anchor.NewError(anchor.KindNotFound, op, "certificate does not exist", err)
		case strings.Contains(msg, "invalid"), strings.Contains(msg, "already"):
			return anchor.NewError(anchor.KindInvalidInput, op, "contract rejected mint arguments", err)
		default:
			return anchor.NewError(anchor.KindMintFailed, op, "transaction reverted", err)
		}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "503"):
		return anchor.NewError(anchor.KindNetwork, op, "ledger unreachable", err)
	case op == opMint:
		return anchor.NewError(anchor.KindMintFailed, op, "transaction rejected", err)
	default:
		return anchor.NewError(anchor.KindNetwork, op, "ledger call failed", err)
	}
}

// maybeBroadcast reports whether a failed send may still have reached the
// node: the call timed out or the connection dropped after the request was
// written, or the node already holds the transaction.
func maybeBroadcast(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "eof")
}
