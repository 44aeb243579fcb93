package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	certmodels "certify/internal/certificate/models"
	"certify/internal/mint/models"
	"certify/pkg/platform/sentinel"
)

type memoryEntry struct {
	job *models.Job
	seq uint64
}

// InMemoryStore is a process-local queue for tests and single-node dev runs.
type InMemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*memoryEntry
	seq  uint64
	now  func() time.Time
}

// NewInMemoryStore builds an empty queue.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[uuid.UUID]*memoryEntry), now: time.Now}
}

// WithClock overrides the store clock. Tests only.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Enqueue(_ context.Context, job *models.Job) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return uuid.Nil, sentinel.ErrConflict
	}
	now := s.now().UTC()
	stored := *job
	stored.Status = models.StatusPending
	stored.Attempts = 0
	stored.Retries = 0
	stored.LeasedUntil = nil
	stored.WorkerID = ""
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.seq++
	s.jobs[stored.ID] = &memoryEntry{job: &stored, seq: s.seq}
	return stored.ID, nil
}

func (s *InMemoryStore) DequeueNext(_ context.Context, workerID string, lease time.Duration) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *memoryEntry
	for _, e := range s.jobs {
		if e.job.Status != models.StatusPending {
			continue
		}
		if best == nil || before(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, sentinel.ErrEmpty
	}

	now := s.now().UTC()
	until := now.Add(lease)
	best.job.Status = models.StatusProcessing
	best.job.WorkerID = workerID
	best.job.LeasedUntil = &until
	best.job.UpdatedAt = now
	return clone(best.job), nil
}

func (s *InMemoryStore) MarkCompleted(_ context.Context, id uuid.UUID, workerID string, record *certmodels.BlockchainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.job.Status != models.StatusProcessing || e.job.WorkerID != workerID {
		return sentinel.ErrInvalidState
	}
	now := s.now().UTC()
	rec := *record
	e.job.Status = models.StatusCompleted
	e.job.Record = &rec
	e.job.Attempts++
	e.job.CompletedAt = &now
	e.job.PendingTxID = ""
	e.job.LeasedUntil = nil
	e.job.WorkerID = ""
	e.job.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id uuid.UUID, workerID string, failure models.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !held(e.job, workerID) {
		return sentinel.ErrInvalidState
	}
	e.job.Status = models.StatusFailed
	e.job.Attempts++
	e.job.LastError = failure.Message
	e.job.LastErrorKind = failure.Kind
	if failure.DemoteTo != nil {
		e.job.Priority = *failure.DemoteTo
	}
	switch {
	case failure.TxID != "":
		e.job.PendingTxID = failure.TxID
	case failure.ClearTx:
		e.job.PendingTxID = ""
	}
	e.job.LeasedUntil = nil
	e.job.WorkerID = ""
	e.job.UpdatedAt = s.now().UTC()
	return nil
}

func (s *InMemoryStore) RetryFailed(_ context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	n := 0
	for _, id := range ids {
		e, ok := s.jobs[id]
		if !ok || e.job.Status != models.StatusFailed {
			continue
		}
		e.job.Status = models.StatusPending
		e.job.Retries++
		e.job.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *InMemoryStore) ReclaimStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.jobs {
		if e.job.Status != models.StatusProcessing || e.job.LeasedUntil == nil || !e.job.LeasedUntil.Before(now) {
			continue
		}
		e.job.Status = models.StatusPending
		e.job.LeasedUntil = nil
		e.job.WorkerID = ""
		e.job.UpdatedAt = now.UTC()
		n++
	}
	return n, nil
}

func (s *InMemoryStore) Purge(_ context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		e, ok := s.jobs[id]
		if !ok || (e.job.Status != models.StatusFailed && e.job.Status != models.StatusCompleted) {
			continue
		}
		delete(s.jobs, id)
		n++
	}
	return n, nil
}

func (s *InMemoryStore) Stats(_ context.Context) (models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.Stats
	for _, e := range s.jobs {
		stats.Add(e.job.Status, 1)
	}
	return stats, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(e.job), nil
}

func (s *InMemoryStore) FindLatestForCertificate(_ context.Context, certificateID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *memoryEntry
	for _, e := range s.jobs {
		if e.job.CertificateID != certificateID {
			continue
		}
		if latest == nil || e.seq > latest.seq {
			latest = e
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(latest.job), nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*memoryEntry, 0)
	for _, e := range s.jobs {
		if e.job.Status == status {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return before(entries[i], entries[j]) })
	limit = clampLimit(limit)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*models.Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, clone(e.job))
	}
	return out, nil
}

// held reports whether workerID may mark job: its lease holder, or anyone
// passing an empty ID for an unclaimed pending job.
func held(job *models.Job, workerID string) bool {
	if workerID == "" {
		return job.Status == models.StatusPending
	}
	return job.Status == models.StatusProcessing && job.WorkerID == workerID
}

// before orders by priority descending, then creation time, then insertion order.
func before(a, b *memoryEntry) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
		return a.job.CreatedAt.Before(b.job.CreatedAt)
	}
	return a.seq < b.seq
}

func clone(j *models.Job) *models.Job {
	c := *j
	c.Payload.Achievements = append([]string(nil), j.Payload.Achievements...)
	if j.Record != nil {
		rec := *j.Record
		c.Record = &rec
	}
	if j.LeasedUntil != nil {
		t := *j.LeasedUntil
		c.LeasedUntil = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var _ Store = (*InMemoryStore)(nil)
