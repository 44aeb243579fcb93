package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementIssued("assessment_passed", "immediate")
	m.IncrementIssued("assessment_passed", "immediate")
	m.IncrementIssued("course_completed", "queued")
	m.IncrementRevoked()
	m.IncrementRejected("ineligible")
	m.IncrementNotificationFailures()
	m.ObserveIssueLatency(0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CertificatesIssued.WithLabelValues("assessment_passed", "immediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificatesIssued.WithLabelValues("course_completed", "queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificatesRevoked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuanceRejected.WithLabelValues("ineligible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.IssueLatency))
}
