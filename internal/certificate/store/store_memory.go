package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"certify/internal/certificate/models"
	"certify/pkg/platform/sentinel"
)

// InMemoryStore is an in-memory implementation of Store for tests or local use.
// It is safe for concurrent access but does not persist across process restarts.
type InMemoryStore struct {
	mu     sync.RWMutex
	certs  map[string]*models.Certificate
	nextID int64
	now    func() time.Time
}

// NewInMemoryStore constructs an empty in-memory certificate store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{certs: make(map[string]*models.Certificate), now: time.Now}
}

func (s *InMemoryStore) Create(_ context.Context, cert *models.Certificate) (*models.Certificate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.certs {
		if existing.IsValid && existing.UserID == cert.UserID && existing.CourseID == cert.CourseID {
			return clone(existing), false, nil
		}
	}
	if _, exists := s.certs[cert.CertificateID]; exists {
		return nil, false, sentinel.ErrConflict
	}
	for _, existing := range s.certs {
		if existing.CertificateNumber == cert.CertificateNumber {
			return nil, false, sentinel.ErrConflict
		}
	}

	now := s.now().UTC()
	stored := clone(cert)
	s.nextID++
	stored.ID = s.nextID
	stored.IsValid = true
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.certs[stored.CertificateID] = stored
	return clone(stored), true, nil
}

func (s *InMemoryStore) FindByCertificateID(_ context.Context, certificateID string) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[certificateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) FindValidByUserCourse(_ context.Context, userID, courseID string) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certs {
		if c.IsValid && c.UserID == userID && c.CourseID == courseID {
			return clone(c), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Certificate, 0)
	for _, c := range s.certs {
		if c.UserID == userID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AttachAnchor(_ context.Context, certificateID string, record *models.BlockchainRecord) error {
	return s.update(certificateID, func(c *models.Certificate) error {
		rec := *record
		c.BlockchainRecord = &rec
		c.QueueJobID = ""
		return nil
	})
}

func (s *InMemoryStore) SetQueueJob(_ context.Context, certificateID, jobID string) error {
	return s.update(certificateID, func(c *models.Certificate) error {
		if c.BlockchainRecord == nil {
			c.QueueJobID = jobID
		}
		return nil
	})
}

func (s *InMemoryStore) Revoke(_ context.Context, certificateID string, at time.Time) error {
	return s.update(certificateID, func(c *models.Certificate) error {
		if !c.IsValid {
			return sentinel.ErrInvalidState
		}
		revokedAt := at.UTC()
		c.IsValid = false
		c.RevokedAt = &revokedAt
		return nil
	})
}

func (s *InMemoryStore) RecordScan(_ context.Context, certificateID string, at time.Time) error {
	return s.update(certificateID, func(c *models.Certificate) error {
		scannedAt := at.UTC()
		c.ScanCount++
		c.LastScannedAt = &scannedAt
		return nil
	})
}

func (s *InMemoryStore) Stats(_ context.Context, monthStart time.Time) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.Stats
	for _, c := range s.certs {
		stats.Total++
		if c.IsValid {
			stats.Valid++
		} else {
			stats.Revoked++
		}
		if c.BlockchainRecord.Confirmed() {
			stats.Anchored++
		} else if c.IsValid && c.QueueJobID != "" {
			stats.PendingAnchor++
		}
		if !c.CreatedAt.Before(monthStart) {
			stats.IssuedThisMonth++
		}
	}
	return stats, nil
}

// Overwrite replaces a stored certificate as-is. Tests use it to simulate
// tampering with persisted subject fields.
func (s *InMemoryStore) Overwrite(cert *models.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[cert.CertificateID] = clone(cert)
}

func (s *InMemoryStore) update(certificateID string, fn func(*models.Certificate) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certs[certificateID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := fn(c); err != nil {
		return err
	}
	c.UpdatedAt = s.now().UTC()
	return nil
}

func clone(c *models.Certificate) *models.Certificate {
	cp := *c
	cp.Achievements = append([]string(nil), c.Achievements...)
	if c.BlockchainRecord != nil {
		rec := *c.BlockchainRecord
		cp.BlockchainRecord = &rec
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		cp.RevokedAt = &t
	}
	if c.LastScannedAt != nil {
		t := *c.LastScannedAt
		cp.LastScannedAt = &t
	}
	return &cp
}

var _ Store = (*InMemoryStore)(nil)
