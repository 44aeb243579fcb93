package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certify/internal/anchor"
	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/models"
	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil"
)

// storeSuite runs the same behaviour checks against every Store. Concrete
// suites embed it and set newStore.
type storeSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	newStore func(now func() time.Time) Store
	store    Store
}

func (s *storeSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	s.store = s.newStore(func() time.Time { return s.now })
}

func (s *storeSuite) job(certID string, priority int, createdAt time.Time) *models.Job {
	payload := anchor.MintRequest{
		CertificateID:       certID,
		RecipientAddress:    "0x00000000000000000000000000000000000000aa",
		CourseID:            "c1",
		CourseName:          "Distributed Systems",
		StudentName:         "Ada Lovelace",
		CompletionEpoch:     1710400000,
		MetadataContentHash: "bafy" + certID,
		IntegrityHash:       "ab12",
		Score:               96,
		Grade:               "A+",
		Achievements:        []string{certmodels.AchievementExcellence},
	}
	return models.NewJob(payload, "u1", "c1", priority, createdAt)
}

func (s *storeSuite) enqueue(certID string, priority int, createdAt time.Time) uuid.UUID {
	id, err := s.store.Enqueue(s.ctx, s.job(certID, priority, createdAt))
	s.Require().NoError(err)
	return id
}

func (s *storeSuite) record(onChainID string) *certmodels.BlockchainRecord {
	return &certmodels.BlockchainRecord{
		ContentHash:   "ab12",
		OnChainID:     onChainID,
		BlockNumber:   42,
		TransactionID: "0xfeed",
		NetworkID:     "31337",
		AnchoredAt:    s.now,
		Status:        certmodels.AnchorConfirmed,
	}
}

func (s *storeSuite) TestDequeueOrdersByPriorityThenAge() {
	base := s.now.Add(-time.Hour)
	low := s.enqueue("LOW000000001", 10, base)
	highLate := s.enqueue("HIGH00000002", 100, base.Add(2*time.Minute))
	normal := s.enqueue("NORM00000001", 50, base)
	highEarly := s.enqueue("HIGH00000001", 100, base.Add(time.Minute))

	want := []uuid.UUID{highEarly, highLate, normal, low}
	for i, id := range want {
		job, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
		s.Require().NoError(err, "dequeue %d", i)
		s.Equal(id, job.ID, "dequeue %d", i)
		s.Equal(models.StatusProcessing, job.Status)
		s.Equal("w1", job.WorkerID)
		s.Require().NotNil(job.LeasedUntil)
		s.True(job.LeasedUntil.Equal(s.now.Add(time.Minute)))
	}

	_, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.ErrorIs(err, sentinel.ErrEmpty)
}

func (s *storeSuite) TestEnqueueStoresPendingWithPayload() {
	job := s.job("CERT00000001", 50, s.now)
	job.Status = models.StatusFailed
	job.Attempts = 3

	id, err := s.store.Enqueue(s.ctx, job)
	s.Require().NoError(err)

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Zero(got.Attempts)
	s.Zero(got.Retries)
	s.Equal(job.Payload, got.Payload)
	s.Equal("CERT00000001", got.CertificateID)
	s.Equal(50, got.Priority)
}

func (s *storeSuite) TestMarkCompleted() {
	id := s.enqueue("CERT00000001", 50, s.now)

	s.ErrorIs(s.store.MarkCompleted(s.ctx, id, "w1", s.record("1")), sentinel.ErrInvalidState, "pending jobs cannot complete")

	_, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkCompleted(s.ctx, id, "w1", s.record("1")))

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.Equal(1, got.Attempts)
	s.Require().NotNil(got.Record)
	s.Equal("1", got.Record.OnChainID)
	s.Require().NotNil(got.CompletedAt)
	s.Nil(got.LeasedUntil)
	s.Empty(got.WorkerID)

	s.ErrorIs(s.store.MarkCompleted(s.ctx, id, "w1", s.record("2")), sentinel.ErrInvalidState, "completed is terminal")
	s.ErrorIs(s.store.MarkCompleted(s.ctx, uuid.New(), "w1", s.record("3")), sentinel.ErrNotFound)
}

func (s *storeSuite) TestFailedJobsStayQueryableAndRetryable() {
	id := s.enqueue("CERT00000001", 100, s.now)
	_, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.MarkFailed(s.ctx, id, "w1", models.Failure{
		Kind:    anchor.KindNetwork,
		Message: "rpc unreachable",
	}))

	failed, err := s.store.ListByStatus(s.ctx, models.StatusFailed, 10)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal(id, failed[0].ID)
	s.Equal("rpc unreachable", failed[0].LastError)
	s.Equal(anchor.KindNetwork, failed[0].LastErrorKind)
	s.Equal(1, failed[0].Attempts)

	s.ErrorIs(s.store.MarkFailed(s.ctx, id, "w1", models.Failure{Kind: anchor.KindNetwork}), sentinel.ErrInvalidState)

	n, err := s.store.RetryFailed(s.ctx, []uuid.UUID{id, uuid.New()})
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(1, got.Attempts, "retry keeps attempt history")
	s.Equal(1, got.Retries)
	s.Equal(100, got.Priority)

	n, err = s.store.RetryFailed(s.ctx, []uuid.UUID{id})
	s.Require().NoError(err)
	s.Zero(n, "pending jobs are not retried")
}

func (s *storeSuite) TestMarkFailedFromPendingWithDemotion() {
	id := s.enqueue("CERT00000001", 50, s.now)
	low := 10

	s.Require().NoError(s.store.MarkFailed(s.ctx, id, "", models.Failure{
		Kind:     anchor.KindNotAuthorized,
		Message:  "missing minter role",
		DemoteTo: &low,
	}))

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(10, got.Priority)
	s.Equal(1, got.Attempts)
	s.ErrorIs(s.store.MarkFailed(s.ctx, uuid.New(), "", models.Failure{}), sentinel.ErrNotFound)
}

func (s *storeSuite) TestReclaimStaleLeases() {
	id := s.enqueue("CERT00000001", 50, s.now)
	_, err := s.store.DequeueNext(s.ctx, "crashed-worker", time.Minute)
	s.Require().NoError(err)

	n, err := s.store.ReclaimStale(s.ctx, s.now.Add(30*time.Second))
	s.Require().NoError(err)
	s.Zero(n, "lease still held")

	n, err = s.store.ReclaimStale(s.ctx, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Empty(got.WorkerID)
	s.Nil(got.LeasedUntil)

	again, err := s.store.DequeueNext(s.ctx, "w2", time.Minute)
	s.Require().NoError(err)
	s.Equal(id, again.ID)
	s.Equal("w2", again.WorkerID)
}

func (s *storeSuite) TestStaleClaimantCannotFinalize() {
	id := s.enqueue("CERT00000001", 50, s.now)
	_, err := s.store.DequeueNext(s.ctx, "slow-worker", time.Minute)
	s.Require().NoError(err)

	n, err := s.store.ReclaimStale(s.ctx, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Require().Equal(1, n)
	_, err = s.store.DequeueNext(s.ctx, "fresh-worker", time.Minute)
	s.Require().NoError(err)

	s.ErrorIs(s.store.MarkCompleted(s.ctx, id, "slow-worker", s.record("1")), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.MarkFailed(s.ctx, id, "slow-worker", models.Failure{Kind: anchor.KindNetwork}), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.MarkFailed(s.ctx, id, "", models.Failure{Kind: anchor.KindInvalidInput}), sentinel.ErrInvalidState,
		"an unscoped mark only applies to unclaimed jobs")

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, got.Status)
	s.Equal("fresh-worker", got.WorkerID)
	s.Zero(got.Attempts)

	s.Require().NoError(s.store.MarkCompleted(s.ctx, id, "fresh-worker", s.record("1")))
}

func (s *storeSuite) TestPendingTransactionFollowsTheJob() {
	job := s.job("CERT00000001", 50, s.now)
	job.PendingTxID = "0xaaa"
	id, err := s.store.Enqueue(s.ctx, job)
	s.Require().NoError(err)

	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xaaa", got.PendingTxID)

	claimed, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Equal("0xaaa", claimed.PendingTxID)
	s.Require().NoError(s.store.MarkFailed(s.ctx, id, "w1", models.Failure{Kind: anchor.KindNetwork, Message: "rpc down"}))
	got, err = s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xaaa", got.PendingTxID, "a failure without a transaction keeps the pending one")

	_, err = s.store.RetryFailed(s.ctx, []uuid.UUID{id})
	s.Require().NoError(err)
	_, err = s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkFailed(s.ctx, id, "w1", models.Failure{Kind: anchor.KindUnconfirmed, TxID: "0xbbb"}))
	got, err = s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xbbb", got.PendingTxID)
	s.Equal(anchor.KindUnconfirmed, got.LastErrorKind)

	_, err = s.store.RetryFailed(s.ctx, []uuid.UUID{id})
	s.Require().NoError(err)
	_, err = s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkCompleted(s.ctx, id, "w1", s.record("1")))
	got, err = s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Empty(got.PendingTxID)
}

func (s *storeSuite) TestFailureCanClearStaleTransaction() {
	job := s.job("CERT00000001", 50, s.now)
	job.PendingTxID = "0xaaa"
	id, err := s.store.Enqueue(s.ctx, job)
	s.Require().NoError(err)
	_, err = s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.MarkFailed(s.ctx, id, "w1", models.Failure{
		Kind:    anchor.KindNetwork,
		Message: "rpc down",
		ClearTx: true,
	}))
	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Empty(got.PendingTxID)
	s.Equal(1, got.Attempts)

	_, err = s.store.RetryFailed(s.ctx, []uuid.UUID{id})
	s.Require().NoError(err)
	_, err = s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkFailed(s.ctx, id, "w1", models.Failure{
		Kind:    anchor.KindUnconfirmed,
		TxID:    "0xbbb",
		ClearTx: true,
	}))
	got, err = s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("0xbbb", got.PendingTxID, "a new transaction wins over clearing")
}

func (s *storeSuite) TestPurgeRemovesOnlyTerminalJobs() {
	completed := s.enqueue("CERT00000001", 100, s.now)
	failed := s.enqueue("CERT00000002", 50, s.now.Add(time.Second))
	pending := s.enqueue("CERT00000003", 10, s.now.Add(2*time.Second))

	_, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkCompleted(s.ctx, completed, "w1", s.record("1")))
	s.Require().NoError(s.store.MarkFailed(s.ctx, failed, "", models.Failure{Kind: anchor.KindMintFailed, Message: "reverted"}))

	n, err := s.store.Purge(s.ctx, []uuid.UUID{completed, failed, pending})
	s.Require().NoError(err)
	s.Equal(2, n)

	_, err = s.store.FindByID(s.ctx, completed)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, failed)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, pending)
	s.NoError(err)
}

func (s *storeSuite) TestStats() {
	a := s.enqueue("CERT00000001", 100, s.now)
	b := s.enqueue("CERT00000002", 90, s.now)
	s.enqueue("CERT00000003", 80, s.now)
	s.enqueue("CERT00000004", 70, s.now)

	_, err := s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkCompleted(s.ctx, a, "w1", s.record("1")))
	_, err = s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkFailed(s.ctx, b, "w1", models.Failure{Kind: anchor.KindNetwork}))
	_, err = s.store.DequeueNext(s.ctx, "w1", time.Minute)
	s.Require().NoError(err)

	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Stats{Pending: 1, Processing: 1, Completed: 1, Failed: 1}, stats)
	s.Equal(int64(4), stats.Total())
}

func (s *storeSuite) TestFindLatestForCertificate() {
	s.enqueue("CERT00000001", 50, s.now)
	latest := s.enqueue("CERT00000001", 50, s.now.Add(time.Minute))
	s.enqueue("CERT00000002", 50, s.now.Add(2*time.Minute))

	got, err := s.store.FindLatestForCertificate(s.ctx, "CERT00000001")
	s.Require().NoError(err)
	s.Equal(latest, got.ID)

	_, err = s.store.FindLatestForCertificate(s.ctx, "MISSING00000")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestListByStatusHonoursLimit() {
	for i := 0; i < 5; i++ {
		s.enqueue(fmt.Sprintf("CERT%08d", i), 50, s.now.Add(time.Duration(i)*time.Second))
	}
	jobs, err := s.store.ListByStatus(s.ctx, models.StatusPending, 3)
	s.Require().NoError(err)
	s.Require().Len(jobs, 3)
	s.Equal("CERT00000000", jobs[0].CertificateID)

	jobs, err = s.store.ListByStatus(s.ctx, models.StatusCompleted, 0)
	s.Require().NoError(err)
	s.Empty(jobs)
}

func (s *storeSuite) TestConcurrentWorkersClaimEachJobOnce() {
	const (
		jobs    = 40
		workers = 8
	)
	for i := 0; i < jobs; i++ {
		s.enqueue(fmt.Sprintf("CERT%08d", i), i%3*10, s.now.Add(time.Duration(i)*time.Millisecond))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
	)
	errDuplicate := errors.New("job claimed twice")

	result := testutil.RunConcurrent(workers, func(idx int) error {
		workerID := fmt.Sprintf("w%d", idx)
		for {
			job, err := s.store.DequeueNext(s.ctx, workerID, time.Minute)
			if errors.Is(err, sentinel.ErrEmpty) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			claimed[job.ID]++
			dup := claimed[job.ID] > 1
			mu.Unlock()
			if dup {
				return errDuplicate
			}
			if err := s.store.MarkCompleted(s.ctx, job.ID, workerID, s.record(job.CertificateID)); err != nil {
				return err
			}
		}
	})

	s.Equal(int32(workers), result.Successes)
	s.Zero(result.Errors)
	s.Len(claimed, jobs)

	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(jobs), stats.Completed)
	s.Zero(stats.Pending)
	s.Zero(stats.Processing)
}
