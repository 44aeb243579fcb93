package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/internal/certificate/models"
	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil"
)

// storeSuite holds behaviour shared by every Store implementation.
type storeSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() Store
	store    Store
	seq      int
}

func (s *storeSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *storeSuite) certificate(userID, courseID string) *models.Certificate {
	s.seq++
	return &models.Certificate{
		CertificateID:       fmt.Sprintf("LZX4K2%06d", s.seq),
		CertificateNumber:   fmt.Sprintf("CERT-202403-%08X", s.seq),
		VerificationCode:    "0123456789ABCDEF",
		UserID:              userID,
		CourseID:            courseID,
		StudentName:         "Ada Lovelace",
		StudentEmail:        "ada@example.com",
		CourseName:          "Distributed Systems",
		InstructorName:      "Grace Hopper",
		CompletionDate:      time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC),
		Grade:               "A+",
		Score:               96,
		Achievements:        []string{models.AchievementExcellence},
		CompletionTimeHours: 12.5,
		QRPayload:           `{"certificateId":"X"}`,
		DocumentURL:         "memory://doc",
		MetadataContentHash: "bafymeta",
		IntegrityHash:       "c0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ffeec0ff",
	}
}

func (s *storeSuite) create(cert *models.Certificate) *models.Certificate {
	stored, created, err := s.store.Create(s.ctx, cert)
	s.Require().NoError(err)
	s.Require().True(created)
	return stored
}

func (s *storeSuite) TestCreateAndFind() {
	cert := s.certificate("u1", "c1")
	stored := s.create(cert)
	s.NotZero(stored.ID)
	s.True(stored.IsValid)

	got, err := s.store.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.Equal(cert.CertificateNumber, got.CertificateNumber)
	s.Equal(cert.StudentName, got.StudentName)
	s.Equal(cert.Achievements, got.Achievements)
	s.Equal(cert.QRPayload, got.QRPayload)
	s.True(cert.CompletionDate.Equal(got.CompletionDate))
	s.Nil(got.BlockchainRecord)
	s.Empty(got.QueueJobID)

	_, err = s.store.FindByCertificateID(s.ctx, "MISSING00000")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestCreateReturnsExistingValidCertificate() {
	first := s.create(s.certificate("u1", "c1"))

	second, created, err := s.store.Create(s.ctx, s.certificate("u1", "c1"))
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.CertificateID, second.CertificateID)

	other := s.create(s.certificate("u1", "c2"))
	s.NotEqual(first.CertificateID, other.CertificateID)
}

func (s *storeSuite) TestRevokedCertificateAllowsReissue() {
	first := s.create(s.certificate("u1", "c1"))
	revokedAt := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Revoke(s.ctx, first.CertificateID, revokedAt))

	got, err := s.store.FindByCertificateID(s.ctx, first.CertificateID)
	s.Require().NoError(err)
	s.False(got.IsValid)
	s.Require().NotNil(got.RevokedAt)
	s.True(revokedAt.Equal(*got.RevokedAt))

	s.ErrorIs(s.store.Revoke(s.ctx, first.CertificateID, revokedAt), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.Revoke(s.ctx, "MISSING00000", revokedAt), sentinel.ErrNotFound)

	_, err = s.store.FindValidByUserCourse(s.ctx, "u1", "c1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	reissued := s.create(s.certificate("u1", "c1"))
	s.NotEqual(first.CertificateID, reissued.CertificateID)

	valid, err := s.store.FindValidByUserCourse(s.ctx, "u1", "c1")
	s.Require().NoError(err)
	s.Equal(reissued.CertificateID, valid.CertificateID)
}

func (s *storeSuite) TestQueueJobThenAnchor() {
	cert := s.create(s.certificate("u1", "c1"))
	jobID := "6f1c7f5e-8d7a-4c1b-9a51-2f3b4c5d6e7f"
	s.Require().NoError(s.store.SetQueueJob(s.ctx, cert.CertificateID, jobID))

	got, err := s.store.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.Equal(jobID, got.QueueJobID)

	record := &models.BlockchainRecord{
		ContentHash:   cert.IntegrityHash,
		OnChainID:     "7",
		BlockNumber:   1234,
		TransactionID: "0xabc",
		NetworkID:     "31337",
		AnchoredAt:    time.Date(2024, 3, 14, 16, 0, 0, 0, time.UTC),
		Status:        models.AnchorConfirmed,
	}
	s.Require().NoError(s.store.AttachAnchor(s.ctx, cert.CertificateID, record))

	got, err = s.store.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.Empty(got.QueueJobID, "record replaces the job reference")
	s.Require().NotNil(got.BlockchainRecord)
	s.Equal("7", got.BlockchainRecord.OnChainID)
	s.True(got.BlockchainRecord.Confirmed())

	s.ErrorIs(s.store.AttachAnchor(s.ctx, "MISSING00000", record), sentinel.ErrNotFound)
	s.ErrorIs(s.store.SetQueueJob(s.ctx, "MISSING00000", jobID), sentinel.ErrNotFound)
}

func (s *storeSuite) TestLateQueueJobKeepsAttachedAnchor() {
	cert := s.create(s.certificate("u1", "c1"))
	record := &models.BlockchainRecord{
		ContentHash:   cert.IntegrityHash,
		OnChainID:     "9",
		BlockNumber:   88,
		TransactionID: "0xdef",
		NetworkID:     "31337",
		AnchoredAt:    time.Date(2024, 3, 14, 16, 0, 0, 0, time.UTC),
		Status:        models.AnchorConfirmed,
	}
	// A worker anchors the certificate before issuance records the job.
	s.Require().NoError(s.store.AttachAnchor(s.ctx, cert.CertificateID, record))
	s.Require().NoError(s.store.SetQueueJob(s.ctx, cert.CertificateID, "6f1c7f5e-8d7a-4c1b-9a51-2f3b4c5d6e7f"))

	got, err := s.store.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.Empty(got.QueueJobID)
	s.Require().NotNil(got.BlockchainRecord)
	s.Equal("9", got.BlockchainRecord.OnChainID)
}

func (s *storeSuite) TestCreateRejectsClashingIdentifiers() {
	first := s.create(s.certificate("u1", "c1"))

	sameNumber := s.certificate("u2", "c1")
	sameNumber.CertificateNumber = first.CertificateNumber
	_, _, err := s.store.Create(s.ctx, sameNumber)
	s.ErrorIs(err, sentinel.ErrConflict)

	sameID := s.certificate("u3", "c1")
	sameID.CertificateID = first.CertificateID
	_, _, err = s.store.Create(s.ctx, sameID)
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.FindValidByUserCourse(s.ctx, "u2", "c1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestRecordScan() {
	cert := s.create(s.certificate("u1", "c1"))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.RecordScan(s.ctx, cert.CertificateID, at))
	s.Require().NoError(s.store.RecordScan(s.ctx, cert.CertificateID, at.Add(time.Hour)))

	got, err := s.store.FindByCertificateID(s.ctx, cert.CertificateID)
	s.Require().NoError(err)
	s.Equal(int64(2), got.ScanCount)
	s.Require().NotNil(got.LastScannedAt)
	s.True(at.Add(time.Hour).Equal(*got.LastScannedAt))

	s.ErrorIs(s.store.RecordScan(s.ctx, "MISSING00000", at), sentinel.ErrNotFound)
}

func (s *storeSuite) TestListByUser() {
	s.create(s.certificate("u1", "c1"))
	s.create(s.certificate("u1", "c2"))
	s.create(s.certificate("u2", "c1"))

	certs, err := s.store.ListByUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Len(certs, 2)

	certs, err = s.store.ListByUser(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(certs)
}

func (s *storeSuite) TestStats() {
	anchored := s.create(s.certificate("u1", "c1"))
	queued := s.create(s.certificate("u1", "c2"))
	revoked := s.create(s.certificate("u2", "c1"))
	s.create(s.certificate("u3", "c1"))

	s.Require().NoError(s.store.AttachAnchor(s.ctx, anchored.CertificateID, &models.BlockchainRecord{
		OnChainID: "1", Status: models.AnchorConfirmed,
	}))
	s.Require().NoError(s.store.SetQueueJob(s.ctx, queued.CertificateID, "6f1c7f5e-8d7a-4c1b-9a51-2f3b4c5d6e7f"))
	s.Require().NoError(s.store.Revoke(s.ctx, revoked.CertificateID, time.Now()))

	stats, err := s.store.Stats(s.ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(4), stats.Total)
	s.Equal(int64(3), stats.Valid)
	s.Equal(int64(1), stats.Revoked)
	s.Equal(int64(1), stats.Anchored)
	s.Equal(int64(1), stats.PendingAnchor)
	s.Equal(int64(4), stats.IssuedThisMonth)

	stats, err = s.store.Stats(s.ctx, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Zero(stats.IssuedThisMonth)
}

func (s *storeSuite) TestConcurrentCreateYieldsOneValidCertificate() {
	const goroutines = 16
	certs := make([]*models.Certificate, goroutines)
	for i := range certs {
		certs[i] = s.certificate("u1", "c1")
	}

	ids := make([]string, goroutines)
	var createdCount atomic.Int32
	result := testutil.RunConcurrent(goroutines, func(idx int) error {
		stored, created, err := s.store.Create(s.ctx, certs[idx])
		if err != nil {
			return err
		}
		ids[idx] = stored.CertificateID
		if created {
			createdCount.Add(1)
		}
		return nil
	})

	s.Equal(int32(goroutines), result.Successes)
	s.Equal(int32(1), createdCount.Load())
	for _, id := range ids {
		s.Equal(ids[0], id, "every caller sees the same certificate")
	}

	valid, err := s.store.FindValidByUserCourse(s.ctx, "u1", "c1")
	s.Require().NoError(err)
	s.Equal(ids[0], valid.CertificateID)
	certsForUser, err := s.store.ListByUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Len(certsForUser, 1)
}
