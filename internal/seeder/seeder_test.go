package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/coursedata"
	"certify/pkg/platform/sentinel"
)

func TestSeedAll(t *testing.T) {
	provider := coursedata.NewInMemoryProvider()
	s := New(provider, nil)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.Equal(t, 7, s.SeedAll())

	perfect, err := provider.Completion(context.Background(), "user-alice", "course-go-101")
	require.NoError(t, err)
	require.True(t, perfect.Completed())
	assert.Equal(t, 100, *perfect.BestScore)
	assert.InDelta(t, 12.0, perfect.CompletionHours(), 0.001)

	inProgress, err := provider.Completion(context.Background(), "user-bob", "course-sec-301")
	require.NoError(t, err)
	assert.False(t, inProgress.Completed())

	_, err = provider.Completion(context.Background(), "user-eve", "course-dist-201")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(), "user-alice <alice@example.com>")
}
