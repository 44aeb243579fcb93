// Package testutil holds helpers shared by store and service tests.
package testutil

import (
	"errors"
	"sync"

	"certify/pkg/platform/sentinel"
)

// ConcurrentResult counts outcomes of a concurrent run by error class.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32

	// Errs holds every generic error, in completion order.
	Errs []error
}

// Total is the number of calls made.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds
}

// RunConcurrent calls fn from n goroutines, released together, and classifies
// each result against the store sentinels.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		start  = make(chan struct{})
		result = &ConcurrentResult{}
	)
	for i := range n {
		wg.Go(func() {
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Successes++
			case errors.Is(err, sentinel.ErrConflict):
				result.Conflicts++
			case errors.Is(err, sentinel.ErrNotFound):
				result.NotFounds++
			default:
				result.Errors++
				result.Errs = append(result.Errs, err)
			}
		})
	}
	close(start)
	wg.Wait()
	return result
}
