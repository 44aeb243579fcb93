// Package store persists certificate records.
package store

import (
	"context"
	"time"

	"certify/internal/certificate/models"
)

// Store persists certificates. At most one valid certificate exists per
// (user, course); the store enforces this, not its callers.
//
// Errors: sentinel.ErrNotFound for unknown certificate IDs,
// sentinel.ErrInvalidState when revoking an already revoked certificate.
type Store interface {
	// Create inserts cert, or returns the existing valid certificate for the
	// same user and course with created=false. A clash on certificate id or
	// number returns sentinel.ErrConflict.
	Create(ctx context.Context, cert *models.Certificate) (stored *models.Certificate, created bool, err error)
	FindByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error)
	// FindValidByUserCourse returns the valid certificate for a user and course.
	FindValidByUserCourse(ctx context.Context, userID, courseID string) (*models.Certificate, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Certificate, error)
	// AttachAnchor stores a confirmed ledger record and clears the queue job reference.
	AttachAnchor(ctx context.Context, certificateID string, record *models.BlockchainRecord) error
	// SetQueueJob records the mint job deferring this certificate's anchor.
	// It is a no-op once an anchor record is attached.
	SetQueueJob(ctx context.Context, certificateID, jobID string) error
	Revoke(ctx context.Context, certificateID string, at time.Time) error
	// RecordScan bumps the verification counter.
	RecordScan(ctx context.Context, certificateID string, at time.Time) error
	// Stats counts certificates; IssuedThisMonth counts those created at or after monthStart.
	Stats(ctx context.Context, monthStart time.Time) (models.Stats, error)
}
