package gpgpu

import (
	"context"
	"sync"
	"time"
)

// Future is the pending result of an asynchronous transfer.
//
// A future resolves when the device is polled after its transfer has
// completed. The Framework's background poller does that; with the poller
// disabled, Await polls the device itself while it waits.
type Future[T any] struct {
	fw   *Framework
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any](fw *Framework) *Future[T] {
	return &Future[T]{fw: fw, done: make(chan struct{})}
}

// failedFuture returns a future that is already resolved with err.
func failedFuture[T any](fw *Framework, err error) *Future[T] {
	f := newFuture[T](fw)
	var zero T
	f.resolve(zero, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done returns a channel closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the result is available.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the result is available or ctx is done. Cancelling
// ctx abandons the wait, not the transfer.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if f.fw != nil && f.fw.stop == nil {
		return f.awaitPolling(ctx)
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) awaitPolling(ctx context.Context) (T, error) {
	tick := time.NewTicker(mapPollInterval)
	defer tick.Stop()
	for {
		if !f.fw.isClosed() {
			f.fw.dev.Poll(true)
		}
		select {
		case <-f.done:
			return f.val, f.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-tick.C:
		}
	}
}
