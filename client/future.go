package client

import (
	"context"

	"pkt.systems/robotrpc/status"
)

// Future is the handle of an in-flight call. It resolves exactly once, after
// lease reconciliation for the call has completed.
type Future[T any] struct {
	done chan struct{}
	resp T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(resp T, err error) {
	f.resp = resp
	f.err = err
	close(f.done)
}

// Done is closed once the call has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call resolves or ctx ends. Cancelling ctx abandons
// the wait only; the call itself is governed by the context it was issued
// with. An abandoned wait fails with a status.TransportFailure wrapping the
// context error.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		var zero T
		return zero, status.FromTransport(ctx.Err())
	}
}

// Resolved reports whether the call has finished.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
