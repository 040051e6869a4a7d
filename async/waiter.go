package async

import (
	"container/heap"

	"github.com/osukhoroslov/dslab-core/payload"
)

// Kernel is the narrow surface the async runtime needs from the owning
// simulation: the current simulated time, and the ability to stamp a
// backing "wake" event into the real event queue so that time only ever
// advances on an event pop, never as a side effect of a timer or promise
// firing (per the kernel's own invariant). async never imports the root
// package; Simulation implements this interface instead.
type Kernel interface {
	Now() float64
	EmitInternal(dest int, payload any, delay float64) uint64
	CancelEvent(id uint64) bool
}

type waitKind int

const (
	waitTimer waitKind = iota
	waitPromise
)

// bucketKey indexes promise buckets by destination component, payload
// tag, and (optionally) a routing key extracted from the payload.
type bucketKey struct {
	component int
	tag       payload.Tag
	hasKey    bool
	key       uint64
}

// waiter is a single pending suspension: either a sleep timer or an
// event promise. Exactly one of the timer/promise fields is meaningful,
// selected by kind.
type waiter struct {
	id   uint64
	kind waitKind
	ch   chan any
	task *Task

	// timer fields
	fireTime  float64
	eventID   uint64
	heapIndex int

	// promise fields
	bucket bucketKey
}

// timerHeap is a container/heap of pending timer waiters ordered by
// (fireTime, id), matching the "lower timer-id wakes first" tie-break.
type timerHeap []*waiter

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].fireTime != h[j].fireTime {
		return h[i].fireTime < h[j].fireTime
	}
	return h[i].id < h[j].id
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.heapIndex = len(*h)
	*h = append(*h, w)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

func (e *Executor) removeTimer(w *waiter) {
	if w.heapIndex < 0 || w.heapIndex >= e.timers.Len() || e.timers[w.heapIndex] != w {
		return
	}
	heap.Remove(&e.timers, w.heapIndex)
}

func (e *Executor) removeFromBucket(w *waiter) {
	list := e.promiseBuckets[w.bucket]
	for i, cand := range list {
		if cand == w {
			e.promiseBuckets[w.bucket] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
