package contentstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/pkg/platform/sentinel"
)

func TestInMemoryStoreIsContentAddressed(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	a, err := s.Put(ctx, []byte(`{"k":1}`), "application/json", nil)
	require.NoError(t, err)
	b, err := s.Put(ctx, []byte(`{"k":1}`), "application/json", map[string]string{"name": "dup"})
	require.NoError(t, err)
	c, err := s.Put(ctx, []byte(`{"k":2}`), "application/json", nil)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, Digest([]byte(`{"k":1}`)), a)
	assert.Equal(t, 2, s.Len())

	got, err := s.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(got))
	assert.Equal(t, "memory://"+a, s.URL(a))
}

func TestInMemoryStoreMissingAndFailures(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	boom := errors.New("disk full")
	s.FailPuts(boom)
	_, err = s.Put(ctx, []byte("x"), "text/plain", nil)
	assert.ErrorIs(t, err, boom)

	s.FailPuts(nil)
	_, err = s.Put(ctx, []byte("x"), "text/plain", nil)
	assert.NoError(t, err)
}
