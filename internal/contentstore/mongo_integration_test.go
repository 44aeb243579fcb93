//go:build integration

package contentstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"certify/internal/contentstore"
	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil/containers"
)

type MongoStoreSuite struct {
	suite.Suite
	mongo *containers.MongoContainer
	store *contentstore.MongoStore
}

func TestMongoStoreSuite(t *testing.T) {
	suite.Run(t, new(MongoStoreSuite))
}

func (s *MongoStoreSuite) SetupSuite() {
	s.mongo = containers.GetManager().GetMongo(s.T())
	s.store = contentstore.NewMongoStore(s.mongo.Client.Database("certify_test"), "https://certs.example")
}

func (s *MongoStoreSuite) TestPutIsIdempotent() {
	ctx := context.Background()
	a, err := s.store.Put(ctx, []byte("artifact"), "text/html", map[string]string{"certificate_id": "ABC"})
	s.Require().NoError(err)
	b, err := s.store.Put(ctx, []byte("artifact"), "text/html", nil)
	s.Require().NoError(err)
	s.Equal(a, b)
	s.Equal(contentstore.Digest([]byte("artifact")), a)

	data, err := s.store.Get(ctx, a)
	s.Require().NoError(err)
	s.Equal("artifact", string(data))
	s.Equal("https://certs.example/content/"+a, s.store.URL(a))
}

func (s *MongoStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), contentstore.Digest([]byte("never stored")))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
