// Package taskqueue implements the event loop's cooperative task queue: a
// lock-free MPSC submission path plus an auxiliary scheduler thread for
// delayed and periodic work. Every task it runs executes on the loop
// thread — callers off that thread always enqueue and wake, never run
// inline.
package taskqueue

import (
	"sync"
	"sync/atomic"
	"time"
)

// Queue is the task queue an EventLoop owns. It is constructed with an
// onLoop predicate (true iff the calling goroutine is the loop thread) and
// a wake function (pokes the reactor so a blocked poll returns promptly
// when a task is enqueued from off the loop thread).
type Queue struct {
	ring   *mpscQueue
	onLoop func() bool
	wake   func()

	queued atomic.Int64
	closed atomic.Bool

	timerMu sync.Mutex
	timers  timerHeap
	nextSeq uint64

	notify    chan struct{}
	schedStop chan struct{}
	schedDone chan struct{}
}

// New constructs a Queue. onLoop and wake are supplied by the EventLoop
// that owns it; wake may be nil for tests that never submit from off the
// loop thread.
func New(onLoop func() bool, wake func()) *Queue {
	q := &Queue{
		ring:   newMPSCQueue(),
		onLoop: onLoop,
		wake:   wake,
	}
	q.startScheduler()
	return q
}

// Execute runs task inline if the caller is already on the loop thread;
// otherwise it enqueues task and wakes the loop. Tasks submitted after
// Shutdown has begun are silently discarded.
func (q *Queue) Execute(task func()) {
	if q.closed.Load() {
		return
	}
	if q.onLoop != nil && q.onLoop() {
		task()
		return
	}
	q.ring.push(task)
	q.queued.Add(1)
	if q.wake != nil {
		q.wake()
	}
}

// SubmitAsync runs supplier on the loop thread and resolves the returned
// Future with its result.
func (q *Queue) SubmitAsync(supplier func() (any, error)) *Future {
	fut := newFuture()
	q.Execute(func() {
		v, err := supplier()
		fut.complete(v, err)
	})
	return fut
}

// ExecuteWithTimeout behaves like SubmitAsync, except the returned Future
// also resolves to ErrTimeout if supplier has not completed within timeout.
// complete() is idempotent, so whichever of the supplier or the timeout
// fires first wins; the loser's call is a no-op.
func (q *Queue) ExecuteWithTimeout(supplier func() (any, error), timeout time.Duration) *Future {
	fut := q.SubmitAsync(supplier)
	q.Schedule(func() {
		fut.complete(nil, ErrTimeout)
	}, timeout)
	return fut
}

// Retry resubmits supplier up to maxRetries additional times, waiting
// retryDelay between attempts, and resolves the returned Future with the
// first success or the final failure.
func (q *Queue) Retry(supplier func() (any, error), maxRetries int, retryDelay time.Duration) *Future {
	fut := newFuture()
	var attempt func(remaining int)
	attempt = func(remaining int) {
		q.Execute(func() {
			v, err := supplier()
			if err == nil {
				fut.complete(v, nil)
				return
			}
			if remaining <= 0 {
				fut.complete(nil, err)
				return
			}
			q.Schedule(func() { attempt(remaining - 1) }, retryDelay)
		})
	}
	attempt(maxRetries)
	return fut
}

// ProcessBatch consumes items batchSize at a time, re-submitting itself to
// the loop between batches so a large slice never monopolizes an
// iteration. A batchSize <= 0 processes every item in one batch.
func ProcessBatch[T any](q *Queue, items []T, consumer func(T), batchSize int) {
	if batchSize <= 0 {
		batchSize = len(items)
	}
	var step func(offset int)
	step = func(offset int) {
		end := offset + batchSize
		if end > len(items) {
			end = len(items)
		}
		for _, item := range items[offset:end] {
			consumer(item)
		}
		if end < len(items) {
			q.Execute(func() { step(end) })
		}
	}
	q.Execute(func() { step(0) })
}

// ExecuteAll runs tasks in order as a single submission to the loop, so no
// other task can interleave between them.
func (q *Queue) ExecuteAll(tasks ...func()) {
	q.Execute(func() {
		for _, t := range tasks {
			t()
		}
	})
}

// Drain pops up to max pending tasks in FIFO order and runs them inline.
// It must only be called from the loop thread; EventLoop calls it once per
// iteration with its configured per-iteration task cap.
func (q *Queue) Drain(max int) int {
	n := 0
	for n < max {
		task, ok := q.ring.pop()
		if !ok {
			break
		}
		q.queued.Add(-1)
		task()
		n++
	}
	return n
}

// QueuedCount reports tasks currently enqueued but not yet drained.
func (q *Queue) QueuedCount() int64 { return q.queued.Load() }

// Shutdown stops accepting new scheduled tasks and waits up to wait for the
// scheduler thread to stop; tasks already sitting in the submission queue
// are discarded rather than drained.
func (q *Queue) Shutdown(wait time.Duration) {
	if q.closed.Swap(true) {
		return
	}
	q.stopScheduler(wait)
}
