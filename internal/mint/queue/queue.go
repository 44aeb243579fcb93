// Package queue persists mint jobs. Every implementation claims jobs with a
// single conditional update so a job is processing for at most one worker.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"certify/internal/anchor"
	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/models"
)

// Store is the durable retry queue.
//
// Errors: sentinel.ErrEmpty from DequeueNext when nothing is pending,
// sentinel.ErrNotFound for unknown job IDs, sentinel.ErrInvalidState when a
// mark does not match the job's current status or lease holder.
type Store interface {
	// Enqueue persists job as pending with zero attempts. A PendingTxID on
	// job is kept.
	Enqueue(ctx context.Context, job *models.Job) (uuid.UUID, error)
	// DequeueNext claims the highest-priority, oldest pending job for workerID
	// until now+lease.
	DequeueNext(ctx context.Context, workerID string, lease time.Duration) (*models.Job, error)
	// MarkCompleted finishes a job processing under workerID with its anchor
	// record and clears any pending transaction.
	MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, record *certmodels.BlockchainRecord) error
	// MarkFailed fails a job processing under workerID and counts the
	// attempt. An empty workerID fails a pending job nobody has claimed.
	MarkFailed(ctx context.Context, id uuid.UUID, workerID string, failure models.Failure) error
	// RetryFailed resets the given failed jobs to pending, keeping attempts.
	RetryFailed(ctx context.Context, ids []uuid.UUID) (int, error)
	// ReclaimStale returns processing jobs whose lease expired before now to pending.
	ReclaimStale(ctx context.Context, now time.Time) (int, error)
	// Purge deletes the given completed or failed jobs.
	Purge(ctx context.Context, ids []uuid.UUID) (int, error)
	Stats(ctx context.Context) (models.Stats, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// FindLatestForCertificate returns the newest job for a certificate.
	FindLatestForCertificate(ctx context.Context, certificateID string) (*models.Job, error)
	// ListByStatus returns up to limit jobs in dequeue order.
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Job, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func anchorKind(s string) anchor.Kind {
	return anchor.Kind(s)
}
