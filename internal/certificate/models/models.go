package models

import (
	"time"
)

const (
	// SchemaVersion versions both the metadata document and the integrity hash layout.
	SchemaVersion = "1.0"

	// DefaultIssuer is the issuer name embedded in QR payloads and metadata.
	DefaultIssuer = "Certify Academy"
)

// AnchorStatus tracks a ledger anchor's confirmation state.
type AnchorStatus string

const (
	AnchorPending   AnchorStatus = "pending"
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)

// BlockchainRecord is the cached result of anchoring a certificate on a ledger.
// ContentHash is the integrity hash computed at anchoring time; verification
// compares it against a fresh recomputation from the stored subject fields.
type BlockchainRecord struct {
	ContentHash     string       `json:"content_hash"`
	OnChainID       string       `json:"on_chain_id"`
	BlockNumber     uint64       `json:"block_number"`
	TransactionID   string       `json:"transaction_id"`
	NetworkID       string       `json:"network_id"`
	ContractAddress string       `json:"contract_address"`
	AnchoredAt      time.Time    `json:"anchored_at"`
	ExplorerURL     string       `json:"explorer_url,omitempty"`
	Status          AnchorStatus `json:"status"`
}

// Confirmed reports whether the record represents a terminal on-chain anchor.
func (r *BlockchainRecord) Confirmed() bool {
	return r != nil && r.Status == AnchorConfirmed
}

// Certificate is the durable record of an issued credential.
type Certificate struct {
	ID                int64
	CertificateID     string
	CertificateNumber string
	VerificationCode  string

	UserID              string
	CourseID            string
	StudentName         string
	StudentEmail        string
	RecipientAddress    string
	CourseName          string
	InstructorName      string
	CompletionDate      time.Time
	Grade               string
	Score               int
	Achievements        []string
	CompletionTimeHours float64

	QRPayload           string
	DocumentURL         string
	MetadataContentHash string
	IntegrityHash       string

	BlockchainRecord *BlockchainRecord
	QueueJobID       string

	IsValid       bool
	RevokedAt     *time.Time
	ScanCount     int64
	LastScannedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subject returns the fields that feed the integrity hash.
func (c *Certificate) Subject() Subject {
	return Subject{
		StudentName:       c.StudentName,
		CourseName:        c.CourseName,
		CompletionDate:    c.CompletionDate,
		CertificateNumber: c.CertificateNumber,
	}
}

// Subject is the canonical subset of certificate fields covered by the integrity hash.
type Subject struct {
	StudentName       string
	CourseName        string
	CompletionDate    time.Time
	CertificateNumber string
}

// Snapshot is the display copy of subject fields embedded in verification results.
type Snapshot struct {
	CertificateNumber string    `json:"certificate_number"`
	StudentName       string    `json:"student_name"`
	CourseName        string    `json:"course_name"`
	InstructorName    string    `json:"instructor_name"`
	CompletionDate    time.Time `json:"completion_date"`
	Grade             string    `json:"grade"`
	Score             int       `json:"score"`
	Achievements      []string  `json:"achievements"`
	DocumentURL       string    `json:"document_url,omitempty"`
}

// SnapshotOf copies display fields from a certificate.
func SnapshotOf(c *Certificate) Snapshot {
	return Snapshot{
		CertificateNumber: c.CertificateNumber,
		StudentName:       c.StudentName,
		CourseName:        c.CourseName,
		InstructorName:    c.InstructorName,
		CompletionDate:    c.CompletionDate,
		Grade:             c.Grade,
		Score:             c.Score,
		Achievements:      append([]string(nil), c.Achievements...),
		DocumentURL:       c.DocumentURL,
	}
}

// ChainStatus grades the ledger side of a verification.
type ChainStatus string

const (
	ChainVerified ChainStatus = "verified"
	ChainPending  ChainStatus = "pending"
	ChainNotFound ChainStatus = "not_found"
	ChainInvalid  ChainStatus = "invalid"
)

// VerificationResult is computed per verification request and never persisted.
// IsValid (revocation) and BlockchainStatus (anchoring) are independent axes.
type VerificationResult struct {
	CertificateID     string      `json:"certificate_id"`
	IsValid           bool        `json:"is_valid"`
	VerifiedAt        time.Time   `json:"verified_at"`
	BlockchainStatus  ChainStatus `json:"blockchain_status"`
	MatchesBlockchain bool        `json:"matches_blockchain"`
	OriginalHash      string      `json:"original_hash,omitempty"`
	RecomputedHash    string      `json:"recomputed_hash"`
	Degraded          bool        `json:"degraded,omitempty"`
	Message           string      `json:"message,omitempty"`
	ExplorerURL       string      `json:"explorer_url,omitempty"`
	Certificate       Snapshot    `json:"certificate"`
}

// Stats summarizes issued certificates.
type Stats struct {
	Total           int64 `json:"total"`
	Valid           int64 `json:"valid"`
	Revoked         int64 `json:"revoked"`
	Anchored        int64 `json:"anchored"`
	PendingAnchor   int64 `json:"pending_anchor"`
	IssuedThisMonth int64 `json:"issued_this_month"`
	TotalOnChain    int64 `json:"total_on_chain"`
}
