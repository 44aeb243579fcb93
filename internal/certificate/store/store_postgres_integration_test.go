//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storeSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	s := new(PostgresStoreSuite)
	s.newStore = func() Store {
		require.NoError(s.T(), s.postgres.TruncateTables(context.Background(), "certificates"))
		return NewPostgres(s.postgres.DB)
	}
	suite.Run(t, s)
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *PostgresStoreSuite) TestDuplicateCertificateIDConflicts() {
	first := s.create(s.certificate("u1", "c1"))
	dup := s.certificate("u9", "c9")
	dup.CertificateID = first.CertificateID

	_, _, err := s.store.Create(s.ctx, dup)
	s.ErrorIs(err, sentinel.ErrConflict)
}
