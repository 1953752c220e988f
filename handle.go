package taskcoord

import (
	"context"
	"fmt"
	"sync"
	"weak"
)

// Handle is the caller-visible result of a Submit call, resolving exactly
// once with the operation's returned value, the operation's wrapped error
// (see [OperationError]), or [Cancelled].
type Handle[R any] struct {
	b *bridge[R]
}

// Wait blocks until the operation resolves or ctx is done, whichever comes
// first. Calling Wait concurrently, or more than once, is safe; every caller
// observes the same resolution.
func (h Handle[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-h.b.done:
		h.b.mu.Lock()
		v, err := h.b.value, h.b.err
		h.b.mu.Unlock()
		return v, err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// bridge is a one-shot sink holding at most one resolution for a result of
// type R: the first of resolveValue or resolveErr to run consumes it,
// subsequent calls are silently discarded. It backs [Handle], playing the
// role spec'd for ContinuationBridge.
//
// Go has no deterministic destructors, so rather than relying on garbage
// collection to notice an unresolved bridge (as a finalizer-based port of
// "resume on destruction" would), every submission path in this package
// pairs a bridge with a watcher goroutine (see watchForAbandonment) that
// resolves it with [Cancelled] once its owning [TaskNode] reaches a
// terminal state, if nothing else already has. That gives the same
// guarantee - an abandoned operation never leaves its Handle pending
// forever - deterministically.
type bridge[R any] struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	value    R
	err      error
}

func newBridge[R any]() *bridge[R] {
	return &bridge[R]{done: make(chan struct{})}
}

func (b *bridge[R]) resolveValue(v R) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resolved {
		return
	}
	b.resolved = true
	b.value = v
	close(b.done)
}

func (b *bridge[R]) resolveErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resolved {
		return
	}
	b.resolved = true
	b.err = err
	close(b.done)
}

// watchForAbandonment guarantees a bridge is always eventually resolved,
// even if its node is invalidated before ever being activated (in which
// case the operation, and the resolveErr/resolveValue calls within it,
// never run at all).
func watchForAbandonment[R any](node *TaskNode, b *bridge[R]) {
	go func() {
		_ = node.wait(context.Background())
		b.resolveErr(Cancelled)
	}()
}

// buildOperation adapts a user-supplied function into the [Operation] shape
// a [TaskNode] runs, resolving b with fn's value, an [OperationError], or
// [Cancelled] if ctx is cancelled before fn runs or by the time it returns,
// then invoking loopback (the coordinator's
// completion-time advance/drain step) unconditionally - success, user error,
// or panic all advance the chain identically.
func buildOperation[R any](
	label string,
	b *bridge[R],
	log *Logger,
	fn func(ctx context.Context) (R, error),
	loopback func(self weak.Pointer[TaskNode]),
) Operation {
	return func(ctx context.Context, self weak.Pointer[TaskNode]) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					logPanic(log, label, r)
				}
				b.resolveErr(&OperationError{Err: fmt.Errorf("panic: %v", r)})
			}
			if loopback != nil {
				loopback(self)
			}
		}()

		if ctx.Err() != nil {
			b.resolveErr(Cancelled)
			return
		}

		v, err := fn(ctx)

		if ctx.Err() != nil {
			b.resolveErr(Cancelled)
			return
		}
		if err != nil {
			b.resolveErr(&OperationError{Err: err})
			return
		}
		b.resolveValue(v)
	}
}
