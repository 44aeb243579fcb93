package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the certificate lifecycle metrics.
type Metrics struct {
	CertificatesIssued   *prometheus.CounterVec
	CertificatesRevoked  prometheus.Counter
	IssuanceRejected     *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	IssueLatency         prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CertificatesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_certificates_issued_total",
			Help: "Certificates issued, labeled by trigger and anchor mode",
		}, []string{"trigger", "anchor_mode"}),
		CertificatesRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_certificates_revoked_total",
			Help: "Total number of certificates revoked",
		}),
		// ineligible requests, upload failures and internal errors
		IssuanceRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_issuance_rejected_total",
			Help: "Issuance requests that did not produce a certificate, labeled by error code",
		}, []string{"code"}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "certify_notification_failures_total",
			Help: "Issuance notifications that failed on at least one channel",
		}),
		IssueLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_issue_latency_seconds",
			Help:    "Latency of certificate issuance in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementIssued(trigger, anchorMode string) {
	m.CertificatesIssued.WithLabelValues(trigger, anchorMode).Inc()
}

func (m *Metrics) IncrementRevoked() {
	m.CertificatesRevoked.Inc()
}

func (m *Metrics) IncrementRejected(code string) {
	m.IssuanceRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementNotificationFailures() {
	m.NotificationFailures.Inc()
}

// ObserveIssueLatency records the latency of one issuance call.
func (m *Metrics) ObserveIssueLatency(durationSeconds float64) {
	m.IssueLatency.Observe(durationSeconds)
}
