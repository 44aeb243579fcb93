package models

import (
	"time"

	"github.com/google/uuid"

	"certify/internal/anchor"
	certmodels "certify/internal/certificate/models"
)

// Status is a mint job's position in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), true
	}
	return "", false
}

// Job is one deferred attempt to anchor a certificate.
//
// Attempts counts mint attempts that reached a terminal mark (completed or
// failed); Retries counts failed→pending resets. Neither is ever reset.
//
// PendingTxID is a mint transaction that was broadcast without a known
// outcome. While it is set the job must be reconciled against that
// transaction before anything is minted again.
type Job struct {
	ID            uuid.UUID                    `json:"job_id"`
	CertificateID string                       `json:"certificate_id"`
	UserID        string                       `json:"user_id"`
	CourseID      string                       `json:"course_id"`
	Payload       anchor.MintRequest           `json:"mint_payload"`
	Priority      int                          `json:"priority"`
	Status        Status                       `json:"status"`
	Attempts      int                          `json:"attempts"`
	Retries       int                          `json:"retries"`
	LastError     string                       `json:"last_error,omitempty"`
	LastErrorKind anchor.Kind                  `json:"last_error_kind,omitempty"`
	LeasedUntil   *time.Time                   `json:"leased_until,omitempty"`
	WorkerID      string                       `json:"worker_id,omitempty"`
	PendingTxID   string                       `json:"pending_tx_id,omitempty"`
	Record        *certmodels.BlockchainRecord `json:"blockchain_record,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
	CompletedAt   *time.Time                   `json:"completed_at,omitempty"`
}

// NewJob builds a pending job for payload.
func NewJob(payload anchor.MintRequest, userID, courseID string, priority int, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:            uuid.New(),
		CertificateID: payload.CertificateID,
		UserID:        userID,
		CourseID:      courseID,
		Payload:       payload,
		Priority:      priority,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AutoRetryable reports whether a failed job may be reset without a human.
func (j *Job) AutoRetryable(maxAttempts int) bool {
	return j.Status == StatusFailed && j.LastErrorKind.Retryable() && j.Attempts < maxAttempts
}

// Failure describes why a job was marked failed. DemoteTo, when set,
// replaces the job's priority. TxID, when set, replaces the job's pending
// transaction; an empty TxID keeps the one already recorded unless ClearTx
// is set because that transaction is known not to have minted.
type Failure struct {
	Kind     anchor.Kind
	Message  string
	DemoteTo *int
	TxID     string
	ClearTx  bool
}

// Stats counts jobs per status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Total sums all statuses.
func (s Stats) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// Add increments the counter for status by n.
func (s *Stats) Add(status Status, n int64) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusProcessing:
		s.Processing += n
	case StatusCompleted:
		s.Completed += n
	case StatusFailed:
		s.Failed += n
	}
}
