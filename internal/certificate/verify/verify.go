// Package verify grades a certificate against its stored fields and its ledger
// anchor. Revocation and anchoring are independent: a certificate can be valid
// while its anchor is still pending.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"certify/internal/anchor"
	"certify/internal/certificate/identity"
	"certify/internal/certificate/metadata"
	"certify/internal/certificate/models"
	mintmodels "certify/internal/mint/models"
	"certify/internal/platform/privacy"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/middleware/requesttime"
	"certify/pkg/platform/sentinel"
)

const (
	MessageRevoked          = "certificate has been revoked"
	MessageNotAnchored      = "certificate is not anchored yet"
	MessageAnchorQueued     = "ledger anchor is queued"
	MessageAnchorFailed     = "ledger anchor failed and awaits retry"
	MessageHashMismatch     = "certificate fields do not match the anchored hash"
	MessageAnchorMissing    = "anchor not found on ledger"
	MessageAnchorRevoked    = "anchor revoked on ledger"
	MessageMetadataMismatch = "ledger metadata hash differs from the certificate"
	MessageDegraded         = "ledger unreachable; verified against the cached anchor only"
)

// Certificates is the certificate store surface used by verification.
type Certificates interface {
	FindByCertificateID(ctx context.Context, certificateID string) (*models.Certificate, error)
	AttachAnchor(ctx context.Context, certificateID string, record *models.BlockchainRecord) error
	RecordScan(ctx context.Context, certificateID string, at time.Time) error
}

// Jobs resolves anchors that a worker completed but never attached.
type Jobs interface {
	FindLatestForCertificate(ctx context.Context, certificateID string) (*mintmodels.Job, error)
}

// Input names the certificate to verify. Exactly one field is expected.
type Input struct {
	CertificateID    string
	QRPayload        string
	VerificationCode string

	// UserAgent and ClientIP of the scanner, logged with the scan.
	UserAgent string
	ClientIP  string
}

// Engine verifies certificates.
type Engine struct {
	certificates Certificates
	jobs         Jobs
	ledger       anchor.Client
	liveVerify   bool
	liveTimeout  time.Duration
	issuer       string
	metrics      *Metrics
	logger       *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithJobs enables resolving anchors through completed queue jobs.
func WithJobs(jobs Jobs) Option {
	return func(e *Engine) {
		e.jobs = jobs
	}
}

// WithLiveLedger re-checks anchors on the ledger on every verification.
// A nil client leaves verification on cached records.
func WithLiveLedger(client anchor.Client, timeout time.Duration) Option {
	return func(e *Engine) {
		e.ledger = client
		e.liveVerify = client != nil
		if timeout > 0 {
			e.liveTimeout = timeout
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine. issuer must match the issuer used when hashing at issuance.
func New(certificates Certificates, issuer string, opts ...Option) *Engine {
	if issuer == "" {
		issuer = models.DefaultIssuer
	}
	e := &Engine{
		certificates: certificates,
		issuer:       issuer,
		liveTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveID extracts the certificate ID from in.
func ResolveID(in Input) (string, error) {
	switch {
	case strings.TrimSpace(in.CertificateID) != "":
		return strings.TrimSpace(in.CertificateID), nil
	case strings.TrimSpace(in.QRPayload) != "":
		payload, err := metadata.ParseQRPayload(in.QRPayload)
		if err != nil {
			return "", err
		}
		return payload.CertificateID, nil
	case strings.TrimSpace(in.VerificationCode) != "":
		return "", dErrors.New(dErrors.CodeUnsupportedMethod, "verification by code is not supported")
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "certificate_id, qr_payload or verification_code is required")
}

// Verify grades the certificate named by in. Hash mismatches are results,
// not errors; errors are returned only for unresolvable input or lookups.
func (e *Engine) Verify(ctx context.Context, in Input) (*models.VerificationResult, error) {
	start := time.Now()
	certificateID, err := ResolveID(in)
	if err != nil {
		return nil, err
	}

	cert, err := e.certificates.FindByCertificateID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			e.metrics.observe(string(models.ChainNotFound), false, start)
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}

	now := requesttime.Now(ctx).UTC()
	result := &models.VerificationResult{
		CertificateID:  cert.CertificateID,
		IsValid:        cert.IsValid,
		VerifiedAt:     now,
		RecomputedHash: identity.ContentHash(cert.Subject(), e.issuer),
		Certificate:    models.SnapshotOf(cert),
	}

	record := e.resolveRecord(ctx, cert, result)
	if record != nil {
		result.OriginalHash = record.ContentHash
		result.ExplorerURL = record.ExplorerURL
	}

	switch {
	case !cert.IsValid:
		result.BlockchainStatus = models.ChainInvalid
		result.Message = MessageRevoked
	case record == nil:
		result.BlockchainStatus = models.ChainPending
	case record.ContentHash != result.RecomputedHash:
		result.BlockchainStatus = models.ChainInvalid
		result.Message = MessageHashMismatch
		e.warn(ctx, "certificate hash mismatch", cert)
	case e.liveVerify && record.OnChainID != "":
		e.checkLedger(ctx, cert, record, result)
	default:
		result.BlockchainStatus = models.ChainVerified
		result.MatchesBlockchain = true
	}

	e.recordScan(ctx, cert.CertificateID, now, in, result)
	e.metrics.observe(string(result.BlockchainStatus), result.IsValid, start)
	if result.Degraded {
		e.metrics.incDegraded()
	}
	return result, nil
}

// resolveRecord returns the certificate's anchor, backfilling it from a
// completed queue job when the worker could not attach it.
func (e *Engine) resolveRecord(ctx context.Context, cert *models.Certificate, result *models.VerificationResult) *models.BlockchainRecord {
	if cert.BlockchainRecord.Confirmed() {
		return cert.BlockchainRecord
	}
	result.Message = MessageNotAnchored
	if e.jobs == nil {
		return nil
	}

	job, err := e.jobs.FindLatestForCertificate(ctx, cert.CertificateID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) && e.logger != nil {
			e.logger.WarnContext(ctx, "failed to look up mint job",
				"certificate_id", cert.CertificateID,
				"error", err,
			)
		}
		return nil
	}

	switch job.Status {
	case mintmodels.StatusCompleted:
	case mintmodels.StatusFailed:
		result.Message = MessageAnchorFailed
		return nil
	default:
		result.Message = MessageAnchorQueued
		return nil
	}
	if !job.Record.Confirmed() {
		return nil
	}

	result.Message = ""
	if err := e.certificates.AttachAnchor(ctx, cert.CertificateID, job.Record); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "failed to backfill anchor from completed job",
			"certificate_id", cert.CertificateID,
			"job_id", job.ID,
			"error", err,
		)
	}
	return job.Record
}

func (e *Engine) checkLedger(ctx context.Context, cert *models.Certificate, record *models.BlockchainRecord, result *models.VerificationResult) {
	ctx, cancel := context.WithTimeout(ctx, e.liveTimeout)
	defer cancel()

	onChain, err := e.ledger.Verify(ctx, record.OnChainID)
	switch {
	case anchor.KindOf(err) == anchor.KindNotFound:
		result.BlockchainStatus = models.ChainNotFound
		result.Message = MessageAnchorMissing
		e.warn(ctx, "anchored certificate missing on ledger", cert)
	case err != nil:
		result.BlockchainStatus = models.ChainPending
		result.MatchesBlockchain = true
		result.Degraded = true
		result.Message = MessageDegraded
		if e.logger != nil {
			e.logger.WarnContext(ctx, "live ledger verification unavailable",
				"certificate_id", cert.CertificateID,
				"error", err,
			)
		}
	case !onChain.IsValid:
		result.BlockchainStatus = models.ChainInvalid
		result.Message = MessageAnchorRevoked
	case cert.MetadataContentHash != "" && onChain.MetadataContentHash != cert.MetadataContentHash:
		result.BlockchainStatus = models.ChainInvalid
		result.Message = MessageMetadataMismatch
		e.warn(ctx, "ledger metadata hash mismatch", cert)
	default:
		result.BlockchainStatus = models.ChainVerified
		result.MatchesBlockchain = true
	}
}

func (e *Engine) recordScan(ctx context.Context, certificateID string, at time.Time, in Input, result *models.VerificationResult) {
	if err := e.certificates.RecordScan(ctx, certificateID, at); err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "failed to record certificate scan",
			"certificate_id", certificateID,
			"error", err,
		)
	}
	if e.logger == nil {
		return
	}
	scanner := DescribeScanner(in.UserAgent)
	e.logger.InfoContext(ctx, "certificate verified",
		"certificate_id", certificateID,
		"blockchain_status", result.BlockchainStatus,
		"is_valid", result.IsValid,
		"scanner", scanner.Display,
		"scanner_mobile", scanner.Mobile,
		"scanner_bot", scanner.Bot,
		"scanner_network", privacy.AnonymizeIP(in.ClientIP),
	)
}

func (e *Engine) warn(ctx context.Context, msg string, cert *models.Certificate) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, msg,
		"certificate_id", cert.CertificateID,
		"user_id", cert.UserID,
		"course_id", cert.CourseID,
	)
}
