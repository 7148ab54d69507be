package server

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Workers.Go after Shutdown.
var ErrClosed = errors.New("worker pool is shut down")

// Workers runs jobs in the background with at most n running at once.
// Submitting never blocks; queued jobs wait for a slot in their own goroutine.
type Workers struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewWorkers creates a pool with n slots.
func NewWorkers(n int) *Workers {
	ctx, cancel := context.WithCancel(context.Background())
	return &Workers{
		sem:    semaphore.NewWeighted(int64(max(n, 1))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go schedules fn. The context passed to fn is canceled when Shutdown gives
// up waiting. A job still queued at that point runs with the canceled
// context so it can record its failure.
func (w *Workers) Go(fn func(ctx context.Context)) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		if err := w.sem.Acquire(w.ctx, 1); err != nil {
			fn(w.ctx)
			return
		}
		defer w.sem.Release(1)
		fn(w.ctx)
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for the submitted ones. When ctx
// is done first, running jobs are canceled and Shutdown waits for them to
// return before reporting ctx.Err().
func (w *Workers) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return ctx.Err()
	}
}
