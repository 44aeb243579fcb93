// Package service coordinates the certificate lifecycle: eligibility,
// issuance, anchoring hand-off, revocation and reporting.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certify/internal/anchor"
	"certify/internal/certificate/metadata"
	"certify/internal/certificate/models"
	"certify/internal/certificate/notify"
	"certify/internal/certificate/render"
	"certify/internal/certificate/store"
	"certify/internal/coursedata"
	mintmodels "certify/internal/mint/models"
	"certify/internal/mint/orchestrator"
	"certify/internal/platform/metrics"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/middleware/requesttime"
	"certify/pkg/platform/sentinel"
)

const (
	DefaultPassingScore        = 80
	DefaultFastCompletionHours = 24.0

	// maxIdentityAttempts bounds identifier regeneration after a uniqueness
	// conflict on insert.
	maxIdentityAttempts = 3
)

// Identity derives certificate identifiers.
type Identity interface {
	NewCertificateID() (string, error)
	NewCertificateNumber() (string, error)
	VerificationCode(certificateID string) string
	Issuer() string
}

// Packager uploads the metadata document and builds the QR payload.
type Packager interface {
	Package(ctx context.Context, in metadata.Input) (*metadata.Result, error)
	VerificationURL(certificateID string) string
}

// Renderer produces the downloadable certificate document.
type Renderer interface {
	Render(ctx context.Context, cert *models.Certificate, qrPayload, verificationURL string) (*render.Artifact, error)
}

// Anchoring hands certificates to the ledger or the mint queue.
type Anchoring interface {
	AttemptOrQueue(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Jobs reads mint jobs for status reporting.
type Jobs interface {
	FindByID(ctx context.Context, id uuid.UUID) (*mintmodels.Job, error)
	FindLatestForCertificate(ctx context.Context, certificateID string) (*mintmodels.Job, error)
}

// Ledger reports contract-wide counters.
type Ledger interface {
	TotalIssued(ctx context.Context) (uint64, error)
}

// Notifier delivers issuance notifications.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event) error
}

// Option configures the Service.
type Option func(*Service)

// Service issues, revokes and reports on certificates.
type Service struct {
	certificates store.Store
	courses      coursedata.Provider
	identity     Identity
	packager     Packager
	renderer     Renderer
	anchoring    Anchoring
	jobs         Jobs
	ledger       Ledger
	notifier     Notifier

	passingScore int
	fastHours    float64
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates the lifecycle service with its required collaborators.
func New(
	certificates store.Store,
	courses coursedata.Provider,
	identity Identity,
	packager Packager,
	renderer Renderer,
	anchoring Anchoring,
	opts ...Option,
) *Service {
	s := &Service{
		certificates: certificates,
		courses:      courses,
		identity:     identity,
		packager:     packager,
		renderer:     renderer,
		anchoring:    anchoring,
		passingScore: DefaultPassingScore,
		fastHours:    DefaultFastCompletionHours,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithJobs enables job details in status responses.
func WithJobs(jobs Jobs) Option {
	return func(s *Service) {
		s.jobs = jobs
	}
}

// WithLedger enables the on-chain total in statistics.
func WithLedger(ledger Ledger) Option {
	return func(s *Service) {
		s.ledger = ledger
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithPassingScore sets the minimum assessment score for issuance.
func WithPassingScore(score int) Option {
	return func(s *Service) {
		if score > 0 {
			s.passingScore = score
		}
	}
}

// WithFastCompletionHours sets the Speed Learner threshold.
func WithFastCompletionHours(hours float64) Option {
	return func(s *Service) {
		if hours > 0 {
			s.fastHours = hours
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics records issuance and revocation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Issue issues a certificate for a completed course. Issuing again for the
// same user and course returns the existing certificate with Created=false.
// Anchoring problems never fail issuance.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	start := time.Now()
	result, err := s.issue(ctx, req)
	s.observeIssue(req, result, err, start)
	return result, err
}

func (s *Service) issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.certificates.FindValidByUserCourse(ctx, req.UserID, req.CourseID)
	switch {
	case err == nil:
		return &IssueResult{Certificate: existing}, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing certificate")
	}

	completion, score, err := s.eligibility(ctx, req)
	if err != nil {
		return nil, err
	}

	now := requesttime.Now(ctx).UTC()
	var (
		stored          *models.Certificate
		created         bool
		verificationURL string
	)
	for attempt := 1; ; attempt++ {
		cert, url, err := s.prepare(ctx, completion, score, now)
		if err != nil {
			return nil, err
		}
		stored, created, err = s.certificates.Create(ctx, cert)
		if errors.Is(err, sentinel.ErrConflict) && attempt < maxIdentityAttempts {
			// Random identifiers collided with a stored certificate.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "certificate identifier collision, regenerating",
					"certificate_id", cert.CertificateID,
					"attempt", attempt,
				)
			}
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate")
		}
		verificationURL = url
		break
	}
	if !created {
		// A concurrent issuance won the insert.
		return &IssueResult{Certificate: stored}, nil
	}

	anchorResult := s.anchor(ctx, stored)
	s.notifyIssued(ctx, stored, verificationURL, anchorResult)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "certificate issued",
			"certificate_id", stored.CertificateID,
			"user_id", stored.UserID,
			"course_id", stored.CourseID,
			"grade", stored.Grade,
			"anchor_mode", anchorMode(anchorResult),
		)
	}
	return &IssueResult{Certificate: stored, Created: true, Anchor: anchorResult}, nil
}

// prepare drafts a certificate with fresh identifiers, uploads its metadata
// and renders its document. The QR payload and hashes depend on the
// certificate id, so every identifier attempt is packaged again.
func (s *Service) prepare(ctx context.Context, completion *coursedata.Completion, score int, now time.Time) (*models.Certificate, string, error) {
	cert, err := s.draft(completion, score, now)
	if err != nil {
		return nil, "", err
	}

	packaged, err := s.packager.Package(ctx, metadata.Input{Certificate: cert, IssuedAt: now})
	if err != nil {
		return nil, "", err
	}
	cert.QRPayload = packaged.QRPayload
	cert.MetadataContentHash = packaged.MetadataContentHash
	cert.IntegrityHash = packaged.IntegrityHash

	verificationURL := s.packager.VerificationURL(cert.CertificateID)
	artifact, err := s.renderer.Render(ctx, cert, cert.QRPayload, verificationURL)
	if err != nil {
		return nil, "", err
	}
	cert.DocumentURL = artifact.URL
	return cert, verificationURL, nil
}

// eligibility loads the completion and decides the score to grade.
func (s *Service) eligibility(ctx context.Context, req IssueRequest) (*coursedata.Completion, int, error) {
	completion, err := s.courses.Completion(ctx, req.UserID, req.CourseID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, 0, dErrors.New(dErrors.CodeIneligible, "student is not enrolled in the course")
		}
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "course data unavailable")
	}

	switch req.Trigger {
	case TriggerAssessmentPassed:
		score := req.Score
		if score == nil {
			score = completion.BestScore
		}
		if score == nil {
			return nil, 0, dErrors.New(dErrors.CodeIneligible, "no assessment score recorded")
		}
		if *score < s.passingScore {
			return nil, 0, dErrors.New(dErrors.CodeIneligible, "assessment score is below the passing score")
		}
		return completion, *score, nil
	default:
		if !completion.Completed() {
			return nil, 0, dErrors.New(dErrors.CodeIneligible, "course is not completed")
		}
		switch {
		case req.Score != nil:
			return completion, *req.Score, nil
		case completion.BestScore != nil:
			return completion, *completion.BestScore, nil
		}
		return completion, s.passingScore, nil
	}
}

func (s *Service) draft(c *coursedata.Completion, score int, now time.Time) (*models.Certificate, error) {
	certificateID, err := s.identity.NewCertificateID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive certificate id")
	}
	number, err := s.identity.NewCertificateNumber()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive certificate number")
	}

	completedAt := now
	if c.Completed() {
		completedAt = c.CompletedAt.UTC()
	}
	hours := c.CompletionHours()

	return &models.Certificate{
		CertificateID:       certificateID,
		CertificateNumber:   number,
		VerificationCode:    s.identity.VerificationCode(certificateID),
		UserID:              c.UserID,
		CourseID:            c.CourseID,
		StudentName:         c.StudentName,
		StudentEmail:        c.StudentEmail,
		RecipientAddress:    c.RecipientAddress,
		CourseName:          c.CourseName,
		InstructorName:      c.InstructorName,
		CompletionDate:      completedAt.Truncate(time.Second),
		Grade:               models.GradeFor(score),
		Score:               score,
		Achievements:        models.AchievementsFor(score, hours, s.fastHours),
		CompletionTimeHours: hours,
		IsValid:             true,
	}, nil
}

// anchor runs the mint orchestrator and records its outcome on the certificate.
// Failures are logged; the certificate stays issued.
func (s *Service) anchor(ctx context.Context, cert *models.Certificate) *orchestrator.Result {
	if s.anchoring == nil {
		return nil
	}
	result, err := s.anchoring.AttemptOrQueue(ctx, orchestrator.Request{
		UserID:   cert.UserID,
		CourseID: cert.CourseID,
		Payload:  MintPayload(cert),
	})
	if err != nil {
		s.logError(ctx, "failed to queue certificate anchor", cert, err)
		return nil
	}

	switch {
	case result.Record != nil:
		if err := s.certificates.AttachAnchor(ctx, cert.CertificateID, result.Record); err != nil {
			s.logError(ctx, "failed to attach anchor record", cert, err)
			return result
		}
		cert.BlockchainRecord = result.Record
		cert.QueueJobID = ""
	case result.Queued():
		jobID := result.JobID.String()
		if err := s.certificates.SetQueueJob(ctx, cert.CertificateID, jobID); err != nil {
			s.logError(ctx, "failed to record mint job", cert, err)
			return result
		}
		// A fast worker may have anchored it already; report what was stored.
		if refreshed, err := s.certificates.FindByCertificateID(ctx, cert.CertificateID); err == nil {
			cert.BlockchainRecord = refreshed.BlockchainRecord
			cert.QueueJobID = refreshed.QueueJobID
		} else {
			cert.QueueJobID = jobID
		}
	}
	return result
}

func (s *Service) notifyIssued(ctx context.Context, cert *models.Certificate, verificationURL string, anchorResult *orchestrator.Result) {
	if s.notifier == nil {
		return
	}
	event := notify.Event{
		Type:              notify.EventCertificateIssued,
		UserID:            cert.UserID,
		Email:             cert.StudentEmail,
		StudentName:       cert.StudentName,
		CourseID:          cert.CourseID,
		CourseName:        cert.CourseName,
		CertificateID:     cert.CertificateID,
		CertificateNumber: cert.CertificateNumber,
		Grade:             cert.Grade,
		Achievements:      cert.Achievements,
		VerificationURL:   verificationURL,
		DocumentURL:       cert.DocumentURL,
		ShareURL:          notify.LinkedInShareURL(cert.CourseName, s.identity.Issuer(), cert.CreatedAt, verificationURL, cert.CertificateNumber),
		AnchorMode:        anchorMode(anchorResult),
		IssuedAt:          cert.CreatedAt,
	}
	err := s.notifier.Notify(ctx, event)
	if err == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementNotificationFailures()
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "certificate notification failed",
			"certificate_id", cert.CertificateID,
			"user_id", cert.UserID,
			"error", err,
		)
	}
}

// MintPayload builds the ledger mint request for a stored certificate.
func MintPayload(cert *models.Certificate) anchor.MintRequest {
	return anchor.MintRequest{
		CertificateID:       cert.CertificateID,
		RecipientAddress:    cert.RecipientAddress,
		CourseID:            cert.CourseID,
		CourseName:          cert.CourseName,
		StudentName:         cert.StudentName,
		CompletionEpoch:     cert.CompletionDate.Unix(),
		MetadataContentHash: cert.MetadataContentHash,
		IntegrityHash:       cert.IntegrityHash,
		Score:               cert.Score,
		Grade:               cert.Grade,
		Achievements:        append([]string(nil), cert.Achievements...),
	}
}

func (s *Service) observeIssue(req IssueRequest, result *IssueResult, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveIssueLatency(time.Since(start).Seconds())
	switch {
	case err != nil:
		s.metrics.IncrementRejected(string(dErrors.CodeOf(err)))
	case result.Created:
		s.metrics.IncrementIssued(string(req.Trigger), anchorMode(result.Anchor))
	}
}

func anchorMode(r *orchestrator.Result) string {
	if r == nil {
		return "none"
	}
	return string(r.Mode)
}

func (s *Service) logError(ctx context.Context, msg string, cert *models.Certificate, err error) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg,
		"certificate_id", cert.CertificateID,
		"user_id", cert.UserID,
		"course_id", cert.CourseID,
		"error", err,
	)
}
