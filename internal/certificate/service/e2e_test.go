package service_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/anchor"
	"certify/internal/certificate/models"
	"certify/internal/certificate/service"
	"certify/internal/certificate/verify"
	mintmetrics "certify/internal/mint/metrics"
	mintmodels "certify/internal/mint/models"
	"certify/internal/mint/orchestrator"
	"certify/internal/mint/worker"
)

// TestIssueQueueDrainVerify walks a certificate from a failed immediate mint,
// through the retry queue, to a verified on-chain anchor.
func TestIssueQueueDrainVerify(t *testing.T) {
	f := newFixture(t, true)
	f.enroll("u1", "c1", nil, true)
	f.ledger.FailMints(anchor.NewError(anchor.KindNetwork, "mint", "rpc timeout", nil))

	res, err := f.service.Issue(f.ctx, service.IssueRequest{
		UserID:   "u1",
		CourseID: "c1",
		Trigger:  service.TriggerAssessmentPassed,
		Score:    intPtr(96),
	})
	require.NoError(t, err)
	cert := res.Certificate
	assert.Equal(t, "A+", cert.Grade)
	assert.Contains(t, cert.Achievements, models.AchievementExcellence)
	require.Equal(t, orchestrator.ModeQueued, res.Anchor.Mode)
	assert.Equal(t, mintmodels.DefaultPolicy().High, res.Anchor.Priority)

	engine := verify.New(f.certs, issuer,
		verify.WithJobs(f.jobs),
		verify.WithLiveLedger(f.ledger, time.Second),
		verify.WithMetrics(verify.NewMetrics(prometheus.NewRegistry())),
	)
	pending, err := engine.Verify(f.ctx, verify.Input{CertificateID: cert.CertificateID})
	require.NoError(t, err)
	assert.True(t, pending.IsValid)
	assert.Equal(t, models.ChainPending, pending.BlockchainStatus)
	assert.Equal(t, verify.MessageAnchorQueued, pending.Message)

	f.ledger.FailMints(nil)
	w := worker.New(f.jobs, f.ledger, f.certs,
		worker.WithMintTimeout(time.Second),
		worker.WithMetrics(mintmetrics.New(prometheus.NewRegistry())),
		worker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	processed, err := w.ProcessNext(f.ctx, "e2e-worker")
	require.NoError(t, err)
	require.True(t, processed)
	processed, err = w.ProcessNext(f.ctx, "e2e-worker")
	require.NoError(t, err)
	assert.False(t, processed, "queue is drained")

	status, err := f.service.Status(f.ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.Equal(t, service.AnchorConfirmed, status.State)
	require.NotNil(t, status.Job)
	assert.Equal(t, mintmodels.StatusCompleted, status.Job.Status)

	result, err := engine.Verify(f.ctx, verify.Input{QRPayload: cert.QRPayload})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, models.ChainVerified, result.BlockchainStatus)
	assert.True(t, result.MatchesBlockchain)
	assert.Equal(t, cert.IntegrityHash, result.OriginalHash)
	assert.Equal(t, cert.IntegrityHash, result.RecomputedHash)
	assert.Equal(t, "Ada Lovelace", result.Certificate.StudentName)
}
