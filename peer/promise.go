package peer

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Future is the read side of a Promise.
type Future[T any] interface {
	// Await blocks until the result is available or the context is done,
	// in which case the context error is returned.
	Await(ctx context.Context) fn.Result[T]

	// Done returns a channel that is closed once the result is available.
	Done() <-chan struct{}
}

// Promise is a single-assignment result. Only the first call to Complete has
// any effect, every later call is ignored.
type Promise[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise creates a new, uncompleted promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{
		done: make(chan struct{}),
	}
}

// Complete sets the result of the promise. It returns true if this call
// completed the promise and false if it had already been completed.
func (p *Promise[T]) Complete(result fn.Result[T]) bool {
	completed := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		completed = true
	})

	return completed
}

// Future returns the read side of the promise.
func (p *Promise[T]) Future() Future[T] {
	return p
}

// Await blocks until the promise is completed or the context is done. A
// completed promise wins over a context that is already done.
//
// NOTE: This is part of the Future interface.
func (p *Promise[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		return p.result
	default:
	}

	select {
	case <-p.done:
		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// Done returns a channel that is closed once the promise is completed.
//
// NOTE: This is part of the Future interface.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}
