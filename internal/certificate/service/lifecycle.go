package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/now"

	"certify/internal/certificate/models"
	mintmodels "certify/internal/mint/models"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/middleware/requesttime"
	"certify/pkg/platform/sentinel"
)

// AnchorState is a certificate's position in the anchor lifecycle.
type AnchorState string

const (
	AnchorNone      AnchorState = "no_anchor"
	AnchorQueued    AnchorState = "queued"
	AnchorConfirmed AnchorState = "confirmed"
	AnchorFailed    AnchorState = "failed"
)

// Status reports a certificate's anchoring progress.
type Status struct {
	Certificate *models.Certificate
	State       AnchorState
	Job         *mintmodels.Job
}

// Get returns a certificate by its public ID.
func (s *Service) Get(ctx context.Context, certificateID string) (*models.Certificate, error) {
	cert, err := s.certificates.FindByCertificateID(ctx, strings.TrimSpace(certificateID))
	if err != nil {
		return nil, translate(err, "certificate")
	}
	return cert, nil
}

// ListByUser returns a user's certificates, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Certificate, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	certs, err := s.certificates.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	return certs, nil
}

// Revoke marks a certificate invalid. Ledger anchors are immutable; the
// off-chain flag is authoritative for verification.
func (s *Service) Revoke(ctx context.Context, certificateID string) (*models.Certificate, error) {
	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "certificate_id is required")
	}
	if err := s.certificates.Revoke(ctx, certificateID, requesttime.Now(ctx).UTC()); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "certificate is already revoked")
		}
		return nil, translate(err, "certificate")
	}
	cert, err := s.certificates.FindByCertificateID(ctx, certificateID)
	if err != nil {
		return nil, translate(err, "certificate")
	}
	if s.metrics != nil {
		s.metrics.IncrementRevoked()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "certificate revoked",
			"certificate_id", cert.CertificateID,
			"user_id", cert.UserID,
			"course_id", cert.CourseID,
		)
	}
	return cert, nil
}

// Status reports where a certificate's anchor stands, with the mint job when one exists.
func (s *Service) Status(ctx context.Context, certificateID string) (*Status, error) {
	cert, err := s.Get(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	status := &Status{Certificate: cert, State: AnchorNone}
	if cert.BlockchainRecord.Confirmed() {
		status.State = AnchorConfirmed
	}
	if s.jobs == nil {
		if cert.QueueJobID != "" && status.State == AnchorNone {
			status.State = AnchorQueued
		}
		return status, nil
	}

	job, err := s.jobFor(ctx, cert)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return status, nil
	}
	status.Job = job
	if status.State == AnchorConfirmed {
		return status, nil
	}
	switch job.Status {
	case mintmodels.StatusCompleted:
		status.State = AnchorConfirmed
	case mintmodels.StatusFailed:
		status.State = AnchorFailed
	default:
		status.State = AnchorQueued
	}
	return status, nil
}

func (s *Service) jobFor(ctx context.Context, cert *models.Certificate) (*mintmodels.Job, error) {
	var (
		job *mintmodels.Job
		err error
	)
	if id, parseErr := uuid.Parse(cert.QueueJobID); parseErr == nil {
		job, err = s.jobs.FindByID(ctx, id)
	} else {
		job, err = s.jobs.FindLatestForCertificate(ctx, cert.CertificateID)
	}
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, nil
	}
	return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mint job")
}

// Stats summarizes issued certificates. TotalOnChain is zero when no ledger
// is configured or it cannot be reached.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	monthStart := now.With(requesttime.Now(ctx).UTC()).BeginningOfMonth()
	stats, err := s.certificates.Stats(ctx, monthStart)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate statistics")
	}
	if s.ledger != nil {
		total, err := s.ledger.TotalIssued(ctx)
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "ledger total unavailable", "error", err)
			}
		} else {
			stats.TotalOnChain = int64(total)
		}
	}
	return stats, nil
}

func translate(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
