// Package anchor defines the ledger anchoring boundary. A Client wraps one
// ledger contract; the mint orchestrator and the verification engine are
// written once against it regardless of backend.
package anchor

import (
	"context"
	"math/big"
	"strings"
	"time"

	"certify/internal/certificate/models"
)

//go:generate mockgen -source=anchor.go -destination=mocks/mocks.go -package=mocks

// Client is a read/write connection to a certificate ledger contract.
// Implementations must bound every network call with a timeout and return
// *Error values classified by Kind.
type Client interface {
	// Mint anchors a certificate and returns the resulting on-chain identifiers.
	Mint(ctx context.Context, req MintRequest) (*MintReceipt, error)
	// Confirm resolves a previously broadcast mint transaction. It returns
	// the receipt once mined, KindUnconfirmed while the transaction is still
	// pending, KindMintFailed if it reverted and KindNotFound if the node no
	// longer knows it. Only the last two make a fresh Mint safe.
	Confirm(ctx context.Context, txID string) (*MintReceipt, error)
	// Verify looks up an anchored certificate by its on-chain ID.
	Verify(ctx context.Context, onChainID string) (*OnChainRecord, error)
	// CertificatesOf lists the on-chain IDs owned by address.
	CertificatesOf(ctx context.Context, owner string) ([]string, error)
	// CanMint reports whether address holds the minter role and can pay for gas.
	CanMint(ctx context.Context, address string) (bool, error)
	// WalletState reports the signing wallet's connectivity and balance.
	WalletState(ctx context.Context) (WalletState, error)
	// TotalIssued returns the number of certificates minted by the contract.
	TotalIssued(ctx context.Context) (uint64, error)
	// Network describes where this client anchors.
	Network() NetworkInfo
}

// MintRequest is everything the ledger needs to mint one certificate.
type MintRequest struct {
	CertificateID       string   `json:"certificate_id"`
	RecipientAddress    string   `json:"recipient_address"`
	CourseID            string   `json:"course_id"`
	CourseName          string   `json:"course_name"`
	StudentName         string   `json:"student_name"`
	CompletionEpoch     int64    `json:"completion_epoch"`
	MetadataContentHash string   `json:"metadata_content_hash"`
	IntegrityHash       string   `json:"integrity_hash"`
	Score               int      `json:"score"`
	Grade               string   `json:"grade"`
	Achievements        []string `json:"achievements,omitempty"`
}

// Validate rejects requests the contract would revert on. Failures are
// permanent: retrying the same payload cannot succeed.
func (r MintRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.CertificateID) == "":
		return NewError(KindInvalidInput, "mint", "certificate id is required", nil)
	case strings.TrimSpace(r.CourseID) == "":
		return NewError(KindInvalidInput, "mint", "course id is required", nil)
	case strings.TrimSpace(r.MetadataContentHash) == "":
		return NewError(KindInvalidInput, "mint", "metadata content hash is required", nil)
	case r.CompletionEpoch <= 0:
		return NewError(KindInvalidInput, "mint", "completion timestamp must be positive", nil)
	}
	return nil
}

// MintReceipt is the ledger's answer to a successful mint.
type MintReceipt struct {
	OnChainID     string
	TransactionID string
	BlockNumber   uint64
	MintedAt      time.Time
}

// OnChainRecord is what the contract reports for an anchored certificate.
type OnChainRecord struct {
	OnChainID           string `json:"on_chain_id"`
	MetadataContentHash string `json:"metadata_content_hash"`
	IsValid             bool   `json:"is_valid"`
	MintedAtEpoch       int64  `json:"minted_at_epoch"`
	CourseID            string `json:"course_id"`
	CourseName          string `json:"course_name"`
	CompletionEpoch     int64  `json:"completion_epoch"`
}

// WalletState describes the signing wallet.
type WalletState struct {
	Connected bool     `json:"connected"`
	Address   string   `json:"address"`
	Balance   *big.Int `json:"balance"`
}

// NetworkInfo describes the ledger a client anchors to.
type NetworkInfo struct {
	Name            string `json:"name"`
	ChainID         string `json:"chain_id"`
	ContractAddress string `json:"contract_address"`
	ExplorerBaseURL string `json:"explorer_base_url,omitempty"`
	Simulated       bool   `json:"simulated"`
}

// TxURL links a transaction on the block explorer, or returns "".
func (n NetworkInfo) TxURL(txID string) string {
	if n.ExplorerBaseURL == "" || txID == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerBaseURL, "/") + "/tx/" + txID
}

// RecordFor converts a mint receipt into the record cached on a certificate.
func RecordFor(req MintRequest, receipt *MintReceipt, network NetworkInfo) *models.BlockchainRecord {
	anchoredAt := receipt.MintedAt
	if anchoredAt.IsZero() {
		anchoredAt = time.Now().UTC()
	}
	return &models.BlockchainRecord{
		ContentHash:     req.IntegrityHash,
		OnChainID:       receipt.OnChainID,
		BlockNumber:     receipt.BlockNumber,
		TransactionID:   receipt.TransactionID,
		NetworkID:       network.ChainID,
		ContractAddress: network.ContractAddress,
		AnchoredAt:      anchoredAt.UTC(),
		ExplorerURL:     network.TxURL(receipt.TransactionID),
		Status:          models.AnchorConfirmed,
	}
}
