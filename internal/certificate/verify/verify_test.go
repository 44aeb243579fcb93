package verify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"certify/internal/anchor"
	"certify/internal/anchor/simulated"
	"certify/internal/certificate/identity"
	"certify/internal/certificate/models"
	"certify/internal/certificate/store"
	"certify/internal/certificate/verify"
	mintmodels "certify/internal/mint/models"
	"certify/internal/mint/queue"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/middleware/requesttime"
)

const issuer = "Certify Academy"

type VerifySuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	certs   *store.InMemoryStore
	jobs    *queue.InMemoryStore
	ledger  *simulated.Ledger
	metrics *verify.Metrics
}

func TestVerifySuite(t *testing.T) {
	suite.Run(t, new(VerifySuite))
}

func (s *VerifySuite) SetupTest() {
	s.now = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	s.ctx = requesttime.WithTime(context.Background(), s.now)
	s.certs = store.NewInMemoryStore()
	s.jobs = queue.NewInMemoryStore()
	s.ledger = simulated.New()
	s.metrics = verify.NewMetrics(prometheus.NewRegistry())
}

func (s *VerifySuite) engine(opts ...verify.Option) *verify.Engine {
	base := []verify.Option{
		verify.WithJobs(s.jobs),
		verify.WithMetrics(s.metrics),
		verify.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return verify.New(s.certs, issuer, append(base, opts...)...)
}

func (s *VerifySuite) issue(id string) *models.Certificate {
	cert := &models.Certificate{
		CertificateID:       id,
		CertificateNumber:   "CERT-202403-" + id[:8],
		VerificationCode:    "0123456789ABCDEF",
		UserID:              "u-" + id,
		CourseID:            "c1",
		StudentName:         "Ada Lovelace",
		CourseName:          "Distributed Systems",
		CompletionDate:      time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC),
		Grade:               "A+",
		Score:               96,
		MetadataContentHash: "bafkreimetadata" + id,
	}
	cert.IntegrityHash = identity.ContentHash(cert.Subject(), issuer)
	stored, created, err := s.certs.Create(s.ctx, cert)
	s.Require().NoError(err)
	s.Require().True(created)
	return stored
}

func (s *VerifySuite) payload(cert *models.Certificate) anchor.MintRequest {
	return anchor.MintRequest{
		CertificateID:       cert.CertificateID,
		CourseID:            cert.CourseID,
		CourseName:          cert.CourseName,
		StudentName:         cert.StudentName,
		CompletionEpoch:     cert.CompletionDate.Unix(),
		MetadataContentHash: cert.MetadataContentHash,
		IntegrityHash:       cert.IntegrityHash,
	}
}

func (s *VerifySuite) anchorNow(cert *models.Certificate) *models.BlockchainRecord {
	req := s.payload(cert)
	receipt, err := s.ledger.Mint(s.ctx, req)
	s.Require().NoError(err)
	record := anchor.RecordFor(req, receipt, s.ledger.Network())
	s.Require().NoError(s.certs.AttachAnchor(s.ctx, cert.CertificateID, record))
	return record
}

func (s *VerifySuite) TestResolveID() {
	s.Run("certificate id wins", func() {
		id, err := verify.ResolveID(verify.Input{CertificateID: " ABC ", QRPayload: `{"certificateId":"XYZ"}`})
		s.Require().NoError(err)
		s.Equal("ABC", id)
	})
	s.Run("qr payload", func() {
		id, err := verify.ResolveID(verify.Input{QRPayload: `{"certificateId":"XYZ","issuer":"Certify Academy"}`})
		s.Require().NoError(err)
		s.Equal("XYZ", id)
	})
	s.Run("malformed qr payload", func() {
		_, err := verify.ResolveID(verify.Input{QRPayload: `{"certificateId":`})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
	s.Run("verification code is unsupported", func() {
		_, err := verify.ResolveID(verify.Input{VerificationCode: "0123456789ABCDEF"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedMethod))
	})
	s.Run("empty input", func() {
		_, err := verify.ResolveID(verify.Input{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *VerifySuite) TestUnknownCertificate() {
	_, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: "NOPE"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *VerifySuite) TestRevokedIsInvalidRegardlessOfAnchor() {
	cert := s.issue("REVOKED00001")
	s.anchorNow(cert)
	s.Require().NoError(s.certs.Revoke(s.ctx, cert.CertificateID, s.now))

	result, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Equal(models.ChainInvalid, result.BlockchainStatus)
	s.False(result.MatchesBlockchain)
	s.Equal(verify.MessageRevoked, result.Message)
}

func (s *VerifySuite) TestValidWithoutAnchorIsPending() {
	cert := s.issue("PENDING00001")

	result, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.True(result.IsValid)
	s.Equal(models.ChainPending, result.BlockchainStatus)
	s.False(result.MatchesBlockchain)
	s.Equal(cert.IntegrityHash, result.RecomputedHash)
	s.Empty(result.OriginalHash)
	s.Equal(verify.MessageNotAnchored, result.Message)
	s.Equal(s.now, result.VerifiedAt)
}

func (s *VerifySuite) TestQueuedAnchorIsPending() {
	cert := s.issue("QUEUED000001")
	_, err := s.jobs.Enqueue(s.ctx, mintmodels.NewJob(s.payload(cert), cert.UserID, cert.CourseID, 100, s.now))
	s.Require().NoError(err)

	result, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.Equal(models.ChainPending, result.BlockchainStatus)
	s.Equal(verify.MessageAnchorQueued, result.Message)
}

func (s *VerifySuite) TestMatchingAnchorVerifies() {
	cert := s.issue("VERIFIED0001")
	record := s.anchorNow(cert)

	result, err := s.engine().Verify(s.ctx, verify.Input{QRPayload: `{"certificateId":"VERIFIED0001"}`})
	s.Require().NoError(err)
	s.True(result.IsValid)
	s.Equal(models.ChainVerified, result.BlockchainStatus)
	s.True(result.MatchesBlockchain)
	s.Equal(record.ContentHash, result.OriginalHash)
	s.Equal(result.OriginalHash, result.RecomputedHash)
	s.Equal("Ada Lovelace", result.Certificate.StudentName)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues("verified", "true")))
}

func (s *VerifySuite) TestTamperedFieldIsReported() {
	cert := s.issue("TAMPERED0001")
	s.anchorNow(cert)

	stored, err := s.certs.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	stored.StudentName = "Mallory Lovelace"
	s.certs.Overwrite(stored)

	result, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.True(result.IsValid)
	s.Equal(models.ChainInvalid, result.BlockchainStatus)
	s.False(result.MatchesBlockchain)
	s.NotEqual(result.OriginalHash, result.RecomputedHash)
	s.Equal(verify.MessageHashMismatch, result.Message)
}

func (s *VerifySuite) TestCompletedJobBackfillsAnchor() {
	cert := s.issue("BACKFILL0001")
	req := s.payload(cert)
	_, err := s.jobs.Enqueue(s.ctx, mintmodels.NewJob(req, cert.UserID, cert.CourseID, 100, s.now))
	s.Require().NoError(err)
	job, err := s.jobs.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	receipt, err := s.ledger.Mint(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NoError(s.jobs.MarkCompleted(s.ctx, job.ID, "w1", anchor.RecordFor(req, receipt, s.ledger.Network())))

	result, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.Equal(models.ChainVerified, result.BlockchainStatus)
	s.True(result.MatchesBlockchain)

	stored, err := s.certs.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.True(stored.BlockchainRecord.Confirmed(), "record attached from the completed job")
	s.Empty(stored.QueueJobID)
}

func (s *VerifySuite) TestFailedJobIsPending() {
	cert := s.issue("FAILEDJOB001")
	id, err := s.jobs.Enqueue(s.ctx, mintmodels.NewJob(s.payload(cert), cert.UserID, cert.CourseID, 50, s.now))
	s.Require().NoError(err)
	s.Require().NoError(s.jobs.MarkFailed(s.ctx, id, "", mintmodels.Failure{Kind: anchor.KindNetwork, Message: "rpc down"}))

	result, err := s.engine().Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.Equal(models.ChainPending, result.BlockchainStatus)
	s.Equal(verify.MessageAnchorFailed, result.Message)
}

func (s *VerifySuite) TestLiveLedger() {
	s.Run("verified on chain", func() {
		cert := s.issue("LIVEOK000001")
		s.anchorNow(cert)
		result, err := s.engine(verify.WithLiveLedger(s.ledger, time.Second)).Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
		s.Require().NoError(err)
		s.Equal(models.ChainVerified, result.BlockchainStatus)
		s.True(result.MatchesBlockchain)
		s.False(result.Degraded)
	})
	s.Run("revoked on chain", func() {
		cert := s.issue("LIVEREVOKED1")
		record := s.anchorNow(cert)
		s.Require().True(s.ledger.Revoke(record.OnChainID))
		result, err := s.engine(verify.WithLiveLedger(s.ledger, time.Second)).Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
		s.Require().NoError(err)
		s.True(result.IsValid, "off-chain status is unchanged")
		s.Equal(models.ChainInvalid, result.BlockchainStatus)
		s.Equal(verify.MessageAnchorRevoked, result.Message)
	})
	s.Run("metadata rewritten on chain", func() {
		cert := s.issue("LIVETAMPER01")
		record := s.anchorNow(cert)
		s.Require().True(s.ledger.Tamper(record.OnChainID, "bafkreiother"))
		result, err := s.engine(verify.WithLiveLedger(s.ledger, time.Second)).Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
		s.Require().NoError(err)
		s.Equal(models.ChainInvalid, result.BlockchainStatus)
		s.False(result.MatchesBlockchain)
	})
	s.Run("missing on chain", func() {
		cert := s.issue("LIVEMISSING1")
		stored, err := s.certs.FindByCertificateID(s.ctx, cert.CertificateID)
		s.Require().NoError(err)
		s.Require().NoError(s.certs.AttachAnchor(s.ctx, cert.CertificateID, &models.BlockchainRecord{
			ContentHash: stored.IntegrityHash,
			OnChainID:   "999999",
			Status:      models.AnchorConfirmed,
		}))
		result, err := s.engine(verify.WithLiveLedger(s.ledger, time.Second)).Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
		s.Require().NoError(err)
		s.Equal(models.ChainNotFound, result.BlockchainStatus)
		s.False(result.MatchesBlockchain)
	})
	s.Run("unreachable ledger degrades", func() {
		cert := s.issue("LIVEDEGRADE1")
		s.anchorNow(cert)
		s.ledger.FailVerifies(anchor.NewError(anchor.KindNetwork, "verify", "dial tcp: connection refused", nil))
		defer s.ledger.FailVerifies(nil)

		result, err := s.engine(verify.WithLiveLedger(s.ledger, time.Second)).Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
		s.Require().NoError(err)
		s.Equal(models.ChainPending, result.BlockchainStatus)
		s.True(result.Degraded)
		s.True(result.MatchesBlockchain)
		s.Equal(verify.MessageDegraded, result.Message)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.DegradedTotal))
	})
}

func (s *VerifySuite) TestScanIsRecorded() {
	cert := s.issue("SCANNED00001")
	engine := s.engine()
	for range 3 {
		_, err := engine.Verify(s.ctx, verify.Input{
			CertificateID: cert.CertificateID,
			UserAgent:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		})
		s.Require().NoError(err)
	}

	stored, err := s.certs.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.EqualValues(3, stored.ScanCount)
	s.Require().NotNil(stored.LastScannedAt)
	s.Equal(s.now, stored.LastScannedAt.UTC())
}

func (s *VerifySuite) TestScanFailureDoesNotFailVerification() {
	cert := s.issue("SCANFAIL0001")
	engine := verify.New(scanFailing{s.certs}, issuer)

	result, err := engine.Verify(s.ctx, verify.Input{CertificateID: cert.CertificateID})
	s.Require().NoError(err)
	s.Equal(models.ChainPending, result.BlockchainStatus)
}

type scanFailing struct {
	*store.InMemoryStore
}

func (scanFailing) RecordScan(context.Context, string, time.Time) error {
	return errors.New("database is read-only")
}

func TestDescribeScanner(t *testing.T) {
	cases := []struct {
		name   string
		ua     string
		mobile bool
		bot    bool
	}{
		{name: "empty", ua: ""},
		{name: "desktop chrome", ua: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
		{name: "iphone", ua: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", mobile: true},
		{name: "crawler", ua: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", bot: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := verify.DescribeScanner(tc.ua)
			if got.Display == "" {
				t.Fatal("display must not be empty")
			}
			if got.Mobile != tc.mobile {
				t.Errorf("mobile = %v, want %v", got.Mobile, tc.mobile)
			}
			if got.Bot != tc.bot {
				t.Errorf("bot = %v, want %v", got.Bot, tc.bot)
			}
		})
	}
}
