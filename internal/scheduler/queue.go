// Package scheduler delivers delayed callbacks keyed by rate-limit key.
//
// A Queue holds at most one pending task per key. Tasks are ordered in a
// min-heap by fire time and a single clock timer is armed for the head, so the
// number of live timers does not grow with the number of keys.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
)

// Func is a scheduled callback. firedAt is the deadline the task was
// scheduled for, not the (possibly later) time it actually ran.
type Func func(firedAt time.Time)

// Scheduler is the subset of Queue consumed by limiters.
type Scheduler interface {
	// Schedule registers fn for key at the given time. It returns false,
	// and does nothing, if key already has a pending task.
	Schedule(key string, at time.Time, fn Func) bool
	// Cancel drops the pending task for key, if any.
	Cancel(key string) bool
	// Pending reports whether key has a task waiting to fire.
	Pending(key string) bool
}

// Queue is a delayed-task queue driven by a Clock.
type Queue struct {
	mu      sync.Mutex
	clock   clock.Clock
	tasks   taskHeap
	byKey   map[string]*task
	timer   clock.Timer
	armedAt time.Time
	// gen identifies the live timer. A callback from a replaced timer that
	// was already running when Stop was called carries an older gen.
	gen     uint64
	seq     uint64
	stopped bool
}

type task struct {
	key   string
	at    time.Time
	fn    Func
	seq   uint64
	index int
}

// New creates an empty queue using c for time.
func New(c clock.Clock) *Queue {
	return &Queue{
		clock: c,
		byKey: make(map[string]*task),
	}
}

func (q *Queue) Schedule(key string, at time.Time, fn Func) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return false
	}
	if _, ok := q.byKey[key]; ok {
		return false
	}

	q.seq++
	t := &task{key: key, at: at, fn: fn, seq: q.seq}
	heap.Push(&q.tasks, t)
	q.byKey[key] = t
	q.rearm()
	return true
}

func (q *Queue) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&q.tasks, t.index)
	delete(q.byKey, key)
	q.rearm()
	return true
}

func (q *Queue) Pending(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byKey[key]
	return ok
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Stop drops every pending task. Schedule is rejected afterwards.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.disarm()
	q.tasks = nil
	q.byKey = make(map[string]*task)
}

// rearm points the timer at the current head. Must be called with q.mu held.
func (q *Queue) rearm() {
	if len(q.tasks) == 0 {
		q.disarm()
		return
	}

	head := q.tasks[0].at
	if q.timer != nil && q.armedAt.Equal(head) {
		return
	}
	q.disarm()
	q.armedAt = head
	gen := q.gen
	q.timer = q.clock.AfterFunc(head.Sub(q.clock.Now()), func() { q.fire(gen) })
}

// disarm stops the live timer and retires its generation. Must be called
// with q.mu held.
func (q *Queue) disarm() {
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// fire pops every due task and runs them in deadline order outside the lock.
// Callbacks from retired timers return without touching the live one.
func (q *Queue) fire(gen uint64) {
	q.mu.Lock()
	if q.stopped || gen != q.gen {
		q.mu.Unlock()
		return
	}
	q.timer = nil

	now := q.clock.Now()
	var due []*task
	for len(q.tasks) > 0 && !q.tasks[0].at.After(now) {
		t := heap.Pop(&q.tasks).(*task)
		delete(q.byKey, t.key)
		due = append(due, t)
	}
	q.rearm()
	q.mu.Unlock()

	for _, t := range due {
		t.fn(t.at)
	}
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
