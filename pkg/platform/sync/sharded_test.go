package sync

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutexSameKeySerializes(t *testing.T) {
	m := NewShardedMutex()
	counter := 0
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			m.Lock("learner-1/go-101")
			defer m.Unlock("learner-1/go-101")
			counter++
		})
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestShardedMutexWith(t *testing.T) {
	m := NewShardedMutex()
	boom := errors.New("boom")

	assert.ErrorIs(t, m.With("k", func() error { return boom }), boom)
	// The shard is released after an error.
	assert.NoError(t, m.With("k", func() error { return nil }))
}

func TestShardForIsStable(t *testing.T) {
	assert.Equal(t, 0, shardFor(""))
	assert.Equal(t, shardFor("learner-2/rust-201"), shardFor("learner-2/rust-201"))
	assert.Less(t, shardFor("learner-2/rust-201"), shardCount)
}
