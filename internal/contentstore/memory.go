package contentstore

import (
	"context"
	"sync"

	"certify/pkg/platform/sentinel"
)

type blob struct {
	data        []byte
	contentType string
	tags        map[string]string
}

// InMemoryStore keeps content in process memory. Used for local runs and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
	// failPut makes Put fail; lets callers exercise upload failures.
	failPut error
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]blob)}
}

// FailPuts makes every subsequent Put return err. Pass nil to restore.
func (s *InMemoryStore) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = err
}

func (s *InMemoryStore) Put(_ context.Context, data []byte, contentType string, tags map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return "", s.failPut
	}
	addr := Digest(data)
	if _, ok := s.blobs[addr]; !ok {
		copied := make([]byte, len(data))
		copy(copied, data)
		s.blobs[addr] = blob{data: copied, contentType: contentType, tags: tags}
	}
	return addr, nil
}

func (s *InMemoryStore) Get(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Overwrite replaces the bytes under an existing address without re-addressing.
// Only useful for simulating a corrupted backend.
func (s *InMemoryStore) Overwrite(address string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blobs[address]
	b.data = data
	s.blobs[address] = b
}

func (s *InMemoryStore) URL(address string) string {
	return "memory://" + address
}

// Len reports how many distinct blobs are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
