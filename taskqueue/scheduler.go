package taskqueue

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/evloop/httpcore/api"
)

// timerEntry is one pending Schedule/ScheduleAtFixedRate registration.
// period is 0 for a one-shot entry. Cancellation is lazy: a canceled entry
// stays in the heap until it would have fired, then is dropped instead of
// submitted.
type timerEntry struct {
	deadline time.Time
	period   time.Duration
	seq      uint64
	fn       func()
	canceled atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

func (e *timerEntry) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerHandle implements api.Cancelable over a single timerEntry.
type timerHandle struct {
	entry *timerEntry
}

func (h timerHandle) Cancel() error {
	h.entry.canceled.Store(true)
	h.entry.closeDone()
	return nil
}
func (h timerHandle) Done() <-chan struct{} { return h.entry.done }
func (h timerHandle) Err() error {
	select {
	case <-h.entry.done:
		if h.entry.canceled.Load() {
			return api.NewError(api.ErrCodeClosed, "scheduled task canceled")
		}
		return nil
	default:
		return nil
	}
}

// startScheduler starts the auxiliary timer goroutine that backs
// Schedule/ScheduleAsync/ScheduleAtFixedRate. It runs independently of the
// loop thread: it only ever hands fired tasks to q.Execute, which performs
// the actual hop back onto the loop.
func (q *Queue) startScheduler() {
	q.schedStop = make(chan struct{})
	q.schedDone = make(chan struct{})
	q.notify = make(chan struct{}, 1)
	go q.schedulerLoop()
}

func (q *Queue) schedulerLoop() {
	defer close(q.schedDone)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		wait := q.nextWait()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-q.schedStop:
			return
		case <-q.notify:
			continue
		case <-timer.C:
			q.fireDue()
		}
	}
}

func (q *Queue) nextWait() time.Duration {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if len(q.timers) == 0 {
		return time.Hour
	}
	wait := time.Until(q.timers[0].deadline)
	if wait < 0 {
		return 0
	}
	return wait
}

// fireDue pops every timer entry whose deadline has passed and hands its
// task to readyBuf in the order it fired, then drains readyBuf into
// Execute — separating "what's due" (heap order) from "what's about to run"
// (FIFO).
func (q *Queue) fireDue() {
	now := time.Now()
	readyBuf := queue.New()
	for {
		q.timerMu.Lock()
		if len(q.timers) == 0 || q.timers[0].deadline.After(now) {
			q.timerMu.Unlock()
			break
		}
		e := heap.Pop(&q.timers).(*timerEntry)
		q.timerMu.Unlock()

		if e.canceled.Load() {
			continue
		}
		if e.period > 0 {
			e.deadline = now.Add(e.period)
			q.timerMu.Lock()
			heap.Push(&q.timers, e)
			q.timerMu.Unlock()
		} else {
			e.closeDone()
		}
		readyBuf.Add(e.fn)
	}
	for readyBuf.Length() > 0 {
		fn := readyBuf.Remove().(func())
		q.Execute(fn)
	}
}

func (q *Queue) schedule(fn func(), delay, period time.Duration) api.Cancelable {
	e := &timerEntry{
		deadline: time.Now().Add(delay),
		period:   period,
		fn:       fn,
		done:     make(chan struct{}),
	}
	q.timerMu.Lock()
	q.nextSeq++
	e.seq = q.nextSeq
	heap.Push(&q.timers, e)
	q.timerMu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return timerHandle{entry: e}
}

// Schedule runs task once after delay elapses, hopping onto the loop thread
// to execute it.
func (q *Queue) Schedule(task func(), delay time.Duration) api.Cancelable {
	return q.schedule(task, delay, 0)
}

// ScheduleAsync is Schedule for a supplier whose result is observed through
// the returned Future.
func (q *Queue) ScheduleAsync(supplier func() (any, error), delay time.Duration) (*Future, api.Cancelable) {
	fut := newFuture()
	h := q.schedule(func() {
		v, err := supplier()
		fut.complete(v, err)
	}, delay, 0)
	return fut, h
}

// ScheduleAtFixedRate runs task every period, starting after initialDelay,
// until the returned handle is canceled. Each firing is handed to Execute,
// so firings run one after another on the loop thread. The next deadline is
// one period after the fireDue pass that fired the entry, so a late firing
// shifts later ones instead of triggering catch-up firings.
func (q *Queue) ScheduleAtFixedRate(task func(), initialDelay, period time.Duration) api.Cancelable {
	return q.schedule(task, initialDelay, period)
}

func (q *Queue) stopScheduler(wait time.Duration) {
	close(q.schedStop)
	select {
	case <-q.schedDone:
	case <-time.After(wait):
	}
}
