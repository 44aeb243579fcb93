package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"certify/internal/mint/models"
)

// Outcome labels for mint attempts. Failures are labelled with their anchor kind.
const (
	OutcomeSuccess = "success"

	SourceImmediate = "immediate"
	SourceWorker    = "worker"
)

// Metrics holds Prometheus metrics for the mint orchestrator and queue worker.
type Metrics struct {
	// Orchestrator
	Decisions    *prometheus.CounterVec
	MintAttempts *prometheus.CounterVec
	MintDuration *prometheus.HistogramVec

	// Queue health
	QueueDepth *prometheus.GaugeVec

	// Worker
	PollDuration     prometheus.Histogram
	ReclaimedTotal   prometheus.Counter
	AutoRetriedTotal prometheus.Counter
	WorkerErrors     prometheus.Counter
}

// New registers the mint metrics with reg. Tests pass a fresh registry;
// the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_mint_decisions_total",
			Help: "Orchestrator decisions by mode (immediate, queued, skipped, failed)",
		}, []string{"mode", "reason"}),
		MintAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_mint_attempts_total",
			Help: "Ledger mint attempts by source and outcome",
		}, []string{"source", "outcome"}),
		MintDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_mint_duration_seconds",
			Help:    "Time taken by a ledger mint including confirmation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 120},
		}, []string{"source"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "certify_mint_queue_jobs",
			Help: "Current number of mint jobs by status",
		}, []string{"status"}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_mint_worker_poll_duration_seconds",
			Help:    "Time taken for each worker poll cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		ReclaimedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "certify_mint_reclaimed_total",
			Help: "Total number of processing jobs returned to pending after their lease expired",
		}),
		AutoRetriedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "certify_mint_auto_retried_total",
			Help: "Total number of failed jobs reset to pending by the retry scheduler",
		}),
		WorkerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "certify_mint_worker_errors_total",
			Help: "Total number of queue errors seen by the worker loop",
		}),
	}
}

func (m *Metrics) IncDecision(mode, reason string) {
	m.Decisions.WithLabelValues(mode, reason).Inc()
}

// ObserveMint records one mint attempt. outcome is OutcomeSuccess or an anchor kind.
func (m *Metrics) ObserveMint(source, outcome string, durationSeconds float64) {
	m.MintAttempts.WithLabelValues(source, outcome).Inc()
	m.MintDuration.WithLabelValues(source).Observe(durationSeconds)
}

// SetQueueDepth publishes per-status job counts.
func (m *Metrics) SetQueueDepth(stats models.Stats) {
	m.QueueDepth.WithLabelValues(string(models.StatusPending)).Set(float64(stats.Pending))
	m.QueueDepth.WithLabelValues(string(models.StatusProcessing)).Set(float64(stats.Processing))
	m.QueueDepth.WithLabelValues(string(models.StatusCompleted)).Set(float64(stats.Completed))
	m.QueueDepth.WithLabelValues(string(models.StatusFailed)).Set(float64(stats.Failed))
}

func (m *Metrics) ObservePollDuration(durationSeconds float64) {
	m.PollDuration.Observe(durationSeconds)
}

func (m *Metrics) AddReclaimed(n int) {
	m.ReclaimedTotal.Add(float64(n))
}

func (m *Metrics) AddAutoRetried(n int) {
	m.AutoRetriedTotal.Add(float64(n))
}

func (m *Metrics) IncWorkerErrors() {
	m.WorkerErrors.Inc()
}
