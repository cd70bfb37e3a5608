package workerpool

import (
	"context"

	"github.com/google/uuid"
)

// Job is a unit of work submitted to a Pool. It runs on a worker goroutine
// and returns its result or an error, per spec.md §4.3 ("work items are
// plain functions; the pool and its queue are unaware of what a given
// store does").
type Job func(ctx context.Context) (interface{}, error)

// Future is returned immediately on Submit and resolves once the
// corresponding Job has run, per spec.md §4.3 ("submission returns a
// future/promise; the caller decides whether and how long to wait"). Each
// Future carries a synthetic correlation id, assigned at submission, used
// to tie a worker's failure/respawn log lines back to the submission that
// caused them.
type Future struct {
	id   string
	done chan struct{}
	val  interface{}
	err  error
}

func newFuture() *Future {
	return &Future{id: uuid.New().String(), done: make(chan struct{})}
}

// ID returns this Future's synthetic correlation id.
func (f *Future) ID() string { return f.id }

func (f *Future) resolve(val interface{}, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Wait blocks until the Job resolves or ctx is done, whichever comes first.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed when the Future resolves, for callers that
// want to select over several futures without polling.
func (f *Future) Done() <-chan struct{} { return f.done }
