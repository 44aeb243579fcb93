package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	storeSuite
}

func TestInMemoryStoreSuite(t *testing.T) {
	s := new(InMemoryStoreSuite)
	s.newStore = func(now func() time.Time) Store {
		return NewInMemoryStore().WithClock(now)
	}
	suite.Run(t, s)
}

func (s *InMemoryStoreSuite) TestEnqueueRejectsDuplicateID() {
	job := s.job("CERT00000001", 50, s.now)
	_, err := s.store.Enqueue(s.ctx, job)
	s.Require().NoError(err)

	_, err = s.store.Enqueue(s.ctx, job)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestFindReturnsCopies() {
	id := s.enqueue("CERT00000001", 50, s.now)
	got, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	got.Payload.Achievements[0] = "mutated"
	got.Priority = 1

	again, err := s.store.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(50, again.Priority)
	s.NotEqual("mutated", again.Payload.Achievements[0])
}
