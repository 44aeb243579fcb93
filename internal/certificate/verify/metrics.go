package verify

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds verification metrics.
type Metrics struct {
	Outcomes      *prometheus.CounterVec
	Duration      prometheus.Histogram
	DegradedTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_verifications_total",
			Help: "Certificate verifications by blockchain status and validity",
		}, []string{"blockchain_status", "is_valid"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certify_verification_duration_seconds",
			Help:    "Time taken to verify a certificate",
			Buckets: prometheus.DefBuckets,
		}),
		DegradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "certify_verifications_degraded_total",
			Help: "Verifications answered from the cached anchor because the ledger was unreachable",
		}),
	}
}

func (m *Metrics) observe(status string, valid bool, start time.Time) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(status, strconv.FormatBool(valid)).Inc()
	m.Duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) incDegraded() {
	if m == nil {
		return
	}
	m.DegradedTotal.Inc()
}
