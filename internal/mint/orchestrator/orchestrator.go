// Package orchestrator decides whether a certificate is anchored now or
// deferred to the mint queue. Issuance never waits on the outcome beyond a
// single bounded mint attempt.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certify/internal/anchor"
	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/metrics"
	"certify/internal/mint/models"
)

// Mode is how a certificate's anchoring was handled.
type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeQueued    Mode = "queued"
	ModeSkipped   Mode = "skipped"
	// ModeFailed means the payload can never be minted. The job is kept as
	// failed for inspection and is not retried automatically.
	ModeFailed Mode = "failed"
)

// Reasons attached to queued and failed decisions.
const (
	ReasonDisabled           = "anchoring_disabled"
	ReasonMinted             = "minted"
	ReasonWalletDisconnected = "wallet_disconnected"
	ReasonNotAuthorized      = "not_authorized"
	ReasonMintFailed         = "mint_failed"
	ReasonMintUnconfirmed    = "mint_unconfirmed"
	ReasonInvalidPayload     = "invalid_payload"
)

const defaultMintTimeout = 30 * time.Second

// Queue is the subset of the retry queue the orchestrator writes to.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) (uuid.UUID, error)
	MarkFailed(ctx context.Context, id uuid.UUID, workerID string, failure models.Failure) error
}

// Request identifies a certificate and carries its mint payload.
type Request struct {
	UserID   string
	CourseID string
	Payload  anchor.MintRequest
}

// Result reports the decision. Record is set for ModeImmediate, JobID for
// ModeQueued and ModeFailed. PendingTxID is set when a mint was broadcast
// but not confirmed; the queued job reconciles it instead of minting again.
type Result struct {
	Mode        Mode
	Reason      string
	Record      *certmodels.BlockchainRecord
	JobID       uuid.UUID
	Priority    int
	PendingTxID string
	Err         error
}

// Queued reports whether the certificate now has a job reference.
func (r *Result) Queued() bool {
	return r.JobID != uuid.Nil
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// Orchestrator attempts one synchronous mint and otherwise queues.
type Orchestrator struct {
	client      anchor.Client
	queue       Queue
	policy      models.Policy
	mintTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// New builds an orchestrator. A nil client disables anchoring: every call
// returns ModeSkipped and the certificate stays valid without an anchor.
func New(client anchor.Client, queue Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		queue:       queue,
		policy:      models.DefaultPolicy(),
		mintTimeout: defaultMintTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithPolicy overrides the queue priorities.
func WithPolicy(p models.Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithMintTimeout bounds the synchronous mint attempt.
func WithMintTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.mintTimeout = d
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the clock used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Enabled reports whether a ledger client is configured.
func (o *Orchestrator) Enabled() bool {
	return o.client != nil
}

// AttemptOrQueue anchors the certificate now when the wallet is ready,
// otherwise persists a mint job. Only queue persistence failures are
// returned as errors; ledger failures are folded into the Result.
func (o *Orchestrator) AttemptOrQueue(ctx context.Context, req Request) (*Result, error) {
	if o.client == nil {
		return o.decide(&Result{Mode: ModeSkipped, Reason: ReasonDisabled}), nil
	}

	if err := req.Payload.Validate(); err != nil {
		return o.failPermanently(ctx, req, err)
	}

	wallet, err := o.client.WalletState(ctx)
	if err != nil || !wallet.Connected {
		if err != nil {
			o.logWarn(ctx, "wallet state unavailable", req, err)
		}
		return o.enqueue(ctx, req, o.policy.WalletDisconnected(), ReasonWalletDisconnected, err)
	}

	allowed, err := o.client.CanMint(ctx, wallet.Address)
	if err != nil {
		o.logWarn(ctx, "mint permission check failed", req, err)
		return o.enqueue(ctx, req, o.policy.MintFailure(req.Payload.Score), ReasonMintFailed, err)
	}
	if !allowed {
		return o.enqueue(ctx, req, o.policy.NotAuthorized(), ReasonNotAuthorized, anchor.ErrNotAuthorized)
	}

	mintCtx, cancel := context.WithTimeout(ctx, o.mintTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := o.client.Mint(mintCtx, req.Payload)
	o.observeMint(err, time.Since(start))
	if err != nil {
		switch anchor.KindOf(err) {
		case anchor.KindInvalidInput:
			return o.failPermanently(ctx, req, err)
		case anchor.KindUnconfirmed:
			o.logWarn(ctx, "immediate mint unconfirmed, queueing for reconciliation", req, err)
			return o.enqueue(ctx, req, o.policy.MintFailure(req.Payload.Score), ReasonMintUnconfirmed, err)
		}
		o.logWarn(ctx, "immediate mint failed, queueing", req, err)
		return o.enqueue(ctx, req, o.policy.MintFailure(req.Payload.Score), ReasonMintFailed, err)
	}

	record := anchor.RecordFor(req.Payload, receipt, o.client.Network())
	if o.logger != nil {
		o.logger.InfoContext(ctx, "certificate anchored",
			"certificate_id", req.Payload.CertificateID,
			"on_chain_id", record.OnChainID,
			"transaction_id", record.TransactionID,
		)
	}
	return o.decide(&Result{Mode: ModeImmediate, Reason: ReasonMinted, Record: record}), nil
}

func (o *Orchestrator) enqueue(ctx context.Context, req Request, priority int, reason string, cause error) (*Result, error) {
	job := models.NewJob(req.Payload, req.UserID, req.CourseID, priority, o.now())
	job.PendingTxID = anchor.TxIDOf(cause)
	id, err := o.queue.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue mint job for %s: %w", req.Payload.CertificateID, err)
	}
	if o.logger != nil {
		o.logger.InfoContext(ctx, "mint job queued",
			"certificate_id", req.Payload.CertificateID,
			"job_id", id,
			"priority", priority,
			"reason", reason,
			"pending_tx_id", job.PendingTxID,
		)
	}
	return o.decide(&Result{
		Mode:        ModeQueued,
		Reason:      reason,
		JobID:       id,
		Priority:    priority,
		PendingTxID: job.PendingTxID,
		Err:         cause,
	}), nil
}

// failPermanently records an unmintable payload as a failed job so it stays
// visible to operators without being picked up by automatic retry.
func (o *Orchestrator) failPermanently(ctx context.Context, req Request, cause error) (*Result, error) {
	job := models.NewJob(req.Payload, req.UserID, req.CourseID, o.policy.Low, o.now())
	id, err := o.queue.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue mint job for %s: %w", req.Payload.CertificateID, err)
	}
	failure := models.Failure{Kind: anchor.KindInvalidInput, Message: cause.Error()}
	if err := o.queue.MarkFailed(ctx, id, "", failure); err != nil {
		return nil, fmt.Errorf("mark mint job %s failed: %w", id, err)
	}
	if o.logger != nil {
		o.logger.ErrorContext(ctx, "mint payload rejected",
			"certificate_id", req.Payload.CertificateID,
			"job_id", id,
			"error", cause,
		)
	}
	return o.decide(&Result{Mode: ModeFailed, Reason: ReasonInvalidPayload, JobID: id, Priority: job.Priority, Err: cause}), nil
}

func (o *Orchestrator) decide(r *Result) *Result {
	if o.metrics != nil {
		o.metrics.IncDecision(string(r.Mode), r.Reason)
	}
	return r
}

func (o *Orchestrator) observeMint(err error, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(anchor.KindOf(err))
	}
	o.metrics.ObserveMint(metrics.SourceImmediate, outcome, elapsed.Seconds())
}

func (o *Orchestrator) logWarn(ctx context.Context, msg string, req Request, err error) {
	if o.logger == nil {
		return
	}
	o.logger.WarnContext(ctx, msg,
		"certificate_id", req.Payload.CertificateID,
		"user_id", req.UserID,
		"course_id", req.CourseID,
		"error_kind", string(anchor.KindOf(err)),
		"error", err,
	)
}
