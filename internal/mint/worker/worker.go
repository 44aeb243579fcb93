// Package worker drains the mint queue: a pool of pollers claims jobs and
// mints them, while scheduled tasks reclaim stale leases, reset retryable
// failures and refresh queue gauges.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"certify/internal/anchor"
	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/metrics"
	"certify/internal/mint/models"
	"certify/pkg/platform/sentinel"
)

// Queue is the subset of the retry queue the worker drives.
type Queue interface {
	DequeueNext(ctx context.Context, workerID string, lease time.Duration) (*models.Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, workerID string, record *certmodels.BlockchainRecord) error
	MarkFailed(ctx context.Context, id uuid.UUID, workerID string, failure models.Failure) error
	RetryFailed(ctx context.Context, ids []uuid.UUID) (int, error)
	ReclaimStale(ctx context.Context, now time.Time) (int, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Job, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Certificates reads and updates the certificate a job anchors.
type Certificates interface {
	FindByCertificateID(ctx context.Context, certificateID string) (*certmodels.Certificate, error)
	AttachAnchor(ctx context.Context, certificateID string, record *certmodels.BlockchainRecord) error
}

const retryBatch = 500

// Worker processes mint jobs.
type Worker struct {
	queue        Queue
	client       anchor.Client
	certs        Certificates
	policy       models.Policy
	name         string
	workers      int
	pollInterval time.Duration
	lease        time.Duration
	mintTimeout  time.Duration
	maxAttempts  int
	reclaimSpec  string
	retrySpec    string
	gaugeSpec    string
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errMu  sync.Mutex
	runErr error
}

// Option configures the Worker.
type Option func(*Worker)

// WithWorkers sets the number of concurrent pollers.
func WithWorkers(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithPollInterval sets the interval between polls when the queue is empty.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithLease sets how long a claimed job stays invisible to other workers.
func WithLease(lease time.Duration) Option {
	return func(w *Worker) {
		if lease > 0 {
			w.lease = lease
		}
	}
}

// WithMintTimeout bounds a single mint, including confirmation.
func WithMintTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.mintTimeout = d
		}
	}
}

// WithMaxAutoAttempts caps automatic retries of a failed job.
func WithMaxAutoAttempts(n int) Option {
	return func(w *Worker) {
		w.maxAttempts = n
	}
}

// WithSchedules overrides the cron specs for lease reclaim and auto-retry.
// Empty specs keep the defaults.
func WithSchedules(reclaim, retry string) Option {
	return func(w *Worker) {
		if reclaim != "" {
			w.reclaimSpec = reclaim
		}
		if retry != "" {
			w.retrySpec = retry
		}
	}
}

// WithPolicy sets the priority policy used for demotion on failure.
func WithPolicy(p models.Policy) Option {
	return func(w *Worker) {
		w.policy = p
	}
}

// WithName sets the worker ID prefix recorded on claimed jobs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithClock overrides the clock used for lease reclaim.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// New creates a mint worker. The lease is stretched past a reconcile plus a
// mint so a live job is never reclaimed from under its worker.
func New(queue Queue, client anchor.Client, certs Certificates, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		queue:        queue,
		client:       client,
		certs:        certs,
		policy:       models.DefaultPolicy(),
		name:         "mint-worker",
		workers:      2,
		pollInterval: time.Second,
		lease:        5 * time.Minute,
		mintTimeout:  3 * time.Minute,
		maxAttempts:  5,
		reclaimSpec:  "@every 1m",
		retrySpec:    "@every 5m",
		gaugeSpec:    "@every 15s",
		logger:       slog.Default(),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.lease <= 2*w.mintTimeout {
		w.lease = 2*w.mintTimeout + time.Minute
	}

	return w
}

// Start reclaims leases left by a previous process, then launches the
// poller pool and the scheduler in the background.
func (w *Worker) Start() error {
	sched := cron.New()
	for _, entry := range []struct {
		spec string
		fn   func(context.Context) error
	}{
		{w.reclaimSpec, func(ctx context.Context) error { _, err := w.ReclaimStale(ctx); return err }},
		{w.retrySpec, func(ctx context.Context) error { _, err := w.RetryEligible(ctx); return err }},
		{w.gaugeSpec, w.RefreshGauges},
	} {
		fn := entry.fn
		if _, err := sched.AddFunc(entry.spec, func() { w.scheduled(fn) }); err != nil {
			return fmt.Errorf("schedule %q: %w", entry.spec, err)
		}
	}

	if _, err := w.ReclaimStale(w.ctx); err != nil {
		w.logger.ErrorContext(w.ctx, "initial lease reclaim failed", "error", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		group, ctx := errgroup.WithContext(w.ctx)
		for i := 0; i < w.workers; i++ {
			workerID := fmt.Sprintf("%s-%d-%s", w.name, i, uuid.NewString()[:8])
			group.Go(func() error { return w.run(ctx, workerID) })
		}
		sched.Start()
		err := group.Wait()
		<-sched.Stop().Done()
		w.errMu.Lock()
		w.runErr = err
		w.errMu.Unlock()
	}()
	return nil
}

// Stop cancels polling and waits for in-flight jobs to finish or ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.errMu.Lock()
		defer w.errMu.Unlock()
		if errors.Is(w.runErr, context.Canceled) {
			return nil
		}
		return w.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context, workerID string) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx, workerID)
		}
	}
}

// poll drains the queue until it is empty or a queue error occurs.
func (w *Worker) poll(ctx context.Context, workerID string) {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObservePollDuration(time.Since(start).Seconds())
		}
	}()

	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx, workerID)
		if err != nil {
			w.logger.ErrorContext(ctx, "mint queue poll failed", "worker_id", workerID, "error", err)
			if w.metrics != nil {
				w.metrics.IncWorkerErrors()
			}
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and mints one job. It returns false when the queue is
// empty. Ledger failures are recorded on the job and never returned; only
// queue errors are.
func (w *Worker) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	job, err := w.queue.DequeueNext(ctx, workerID, w.lease)
	if errors.Is(err, sentinel.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}

	logger := w.logger.With("job_id", job.ID, "certificate_id", job.CertificateID, "worker_id", workerID)

	skip, err := w.precheck(ctx, job, workerID)
	if err != nil {
		return true, err
	}
	if skip {
		return true, nil
	}

	staleTx := false
	if job.PendingTxID != "" {
		settled, err := w.reconcile(ctx, job, workerID, logger)
		if err != nil || settled {
			return true, err
		}
		staleTx = true
	}

	mintCtx, cancel := context.WithTimeout(ctx, w.mintTimeout)
	start := time.Now()
	receipt, mintErr := w.client.Mint(mintCtx, job.Payload)
	cancel()
	w.observeMint(mintErr, time.Since(start))

	if mintErr != nil {
		kind := anchor.KindOf(mintErr)
		failure := models.Failure{
			Kind:     kind,
			Message:  mintErr.Error(),
			DemoteTo: w.policy.Demotion(kind),
			TxID:     anchor.TxIDOf(mintErr),
			ClearTx:  staleTx,
		}
		if err := w.queue.MarkFailed(ctx, job.ID, workerID, failure); err != nil {
			return true, fmt.Errorf("mark job %s failed: %w", job.ID, err)
		}
		logger.WarnContext(ctx, "mint attempt failed",
			"error_kind", string(kind),
			"attempts", job.Attempts+1,
			"pending_tx_id", failure.TxID,
			"error", mintErr,
		)
		return true, nil
	}

	w.complete(ctx, job, workerID, receipt, logger)
	return true, nil
}

// reconcile resolves the transaction a previous attempt broadcast without
// seeing it mined. It reports true when the job is settled and must not be
// minted now.
func (w *Worker) reconcile(ctx context.Context, job *models.Job, workerID string, logger *slog.Logger) (bool, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, w.mintTimeout)
	receipt, err := w.client.Confirm(confirmCtx, job.PendingTxID)
	cancel()

	kind := anchor.KindOf(err)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "pending mint transaction confirmed", "pending_tx_id", job.PendingTxID)
		w.complete(ctx, job, workerID, receipt, logger)
		return true, nil
	case kind == anchor.KindNotFound, kind == anchor.KindMintFailed, kind == anchor.KindInvalidInput:
		// Dropped, reverted or not a transaction id at all: nothing was
		// minted under it.
		logger.WarnContext(ctx, "pending mint transaction did not mint, minting again",
			"pending_tx_id", job.PendingTxID,
			"error", err,
		)
		return false, nil
	}

	failure := models.Failure{Kind: kind, Message: err.Error(), TxID: job.PendingTxID}
	if err := w.queue.MarkFailed(ctx, job.ID, workerID, failure); err != nil {
		return true, fmt.Errorf("mark job %s failed: %w", job.ID, err)
	}
	logger.WarnContext(ctx, "pending mint transaction still unresolved",
		"pending_tx_id", job.PendingTxID,
		"error_kind", string(kind),
		"error", err,
	)
	return true, nil
}

func (w *Worker) complete(ctx context.Context, job *models.Job, workerID string, receipt *anchor.MintReceipt, logger *slog.Logger) {
	record := anchor.RecordFor(job.Payload, receipt, w.client.Network())
	if err := w.queue.MarkCompleted(ctx, job.ID, workerID, record); err != nil {
		// The chain write happened; keep the record on the certificate even
		// if the job lost its lease.
		logger.ErrorContext(ctx, "failed to mark job completed", "error", err)
	}
	if err := w.certs.AttachAnchor(ctx, job.CertificateID, record); err != nil {
		logger.ErrorContext(ctx, "failed to attach anchor to certificate",
			"on_chain_id", record.OnChainID,
			"error", err,
		)
	}
	logger.InfoContext(ctx, "certificate anchored by worker",
		"on_chain_id", record.OnChainID,
		"transaction_id", record.TransactionID,
	)
}

// precheck settles jobs that must not be minted: certificates that are
// already anchored, revoked, or missing.
func (w *Worker) precheck(ctx context.Context, job *models.Job, workerID string) (bool, error) {
	cert, err := w.certs.FindByCertificateID(ctx, job.CertificateID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return true, w.fail(ctx, job, workerID, anchor.KindInvalidInput, "certificate not found")
	case err != nil:
		// Leave the lease to expire; the job is reclaimed and retried.
		return true, fmt.Errorf("load certificate %s: %w", job.CertificateID, err)
	case cert.BlockchainRecord.Confirmed():
		if err := w.queue.MarkCompleted(ctx, job.ID, workerID, cert.BlockchainRecord); err != nil {
			return true, fmt.Errorf("mark job %s completed: %w", job.ID, err)
		}
		return true, nil
	case !cert.IsValid:
		return true, w.fail(ctx, job, workerID, anchor.KindInvalidInput, "certificate revoked")
	}
	return false, nil
}

func (w *Worker) fail(ctx context.Context, job *models.Job, workerID string, kind anchor.Kind, msg string) error {
	if err := w.queue.MarkFailed(ctx, job.ID, workerID, models.Failure{Kind: kind, Message: msg}); err != nil {
		return fmt.Errorf("mark job %s failed: %w", job.ID, err)
	}
	w.logger.WarnContext(ctx, "mint job abandoned", "job_id", job.ID, "certificate_id", job.CertificateID, "reason", msg)
	return nil
}

// ReclaimStale returns expired processing jobs to pending.
func (w *Worker) ReclaimStale(ctx context.Context) (int, error) {
	n, err := w.queue.ReclaimStale(ctx, w.now())
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if n > 0 {
		w.logger.WarnContext(ctx, "reclaimed stale mint jobs", "count", n)
		if w.metrics != nil {
			w.metrics.AddReclaimed(n)
		}
	}
	return n, nil
}

// RetryEligible resets failed jobs whose error kind is retryable and whose
// attempt count is under the automatic limit.
func (w *Worker) RetryEligible(ctx context.Context) (int, error) {
	if w.maxAttempts <= 0 {
		return 0, nil
	}
	failed, err := w.queue.ListByStatus(ctx, models.StatusFailed, retryBatch)
	if err != nil {
		return 0, fmt.Errorf("list failed jobs: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(failed))
	for _, job := range failed {
		if job.AutoRetryable(w.maxAttempts) {
			ids = append(ids, job.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := w.queue.RetryFailed(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	w.logger.InfoContext(ctx, "reset failed mint jobs", "count", n)
	if w.metrics != nil {
		w.metrics.AddAutoRetried(n)
	}
	return n, nil
}

// RefreshGauges publishes queue depth per status.
func (w *Worker) RefreshGauges(ctx context.Context) error {
	if w.metrics == nil {
		return nil
	}
	stats, err := w.queue.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	w.metrics.SetQueueDepth(stats)
	return nil
}

func (w *Worker) scheduled(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(w.ctx, time.Minute)
	defer cancel()
	if err := fn(ctx); err != nil {
		w.logger.ErrorContext(ctx, "scheduled mint queue task failed", "error", err)
		if w.metrics != nil {
			w.metrics.IncWorkerErrors()
		}
	}
}

func (w *Worker) observeMint(err error, elapsed time.Duration) {
	if w.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(anchor.KindOf(err))
	}
	w.metrics.ObserveMint(metrics.SourceWorker, outcome, elapsed.Seconds())
}
