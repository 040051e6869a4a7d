// Package simevent defines the in-flight message unit of the simulation
// kernel and the time-ordered priority queue that holds pending events.
// It is a leaf package (no dependency on the kernel or the async runtime)
// so both can import it without a cycle.
package simevent

import (
	"cmp"
	"container/heap"

	"github.com/osukhoroslov/dslab-core/payload"
)

// Event is a scheduled delivery of a type-erased payload from src to dest
// at a specific simulated time. Events are created by an emit call and
// consumed exactly once by the driver; they may be cancelled beforehand.
type Event struct {
	ID      uint64
	Time    float64
	Src     int
	Dest    int
	Payload any
	Tag     payload.Tag
}

// Less reports whether a strictly precedes b in (time, id) lexicographic
// order, using IEEE-754 total order on Time so the comparison stays
// well-defined even at the boundary (NaN is rejected upstream at emit
// time, but the total order keeps this comparator a safe, total
// function regardless).
func Less(a, b Event) bool {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// CancelPredicate decides whether an already-queued event should be
// removed by a bulk Cancel call.
type CancelPredicate func(Event) bool

// Queue is a binary min-heap of events ordered by (time, id). Push/Pop
// are O(log n); Cancel is a linear scan-and-rebuild, O(n), as specified.
type Queue struct {
	h eventHeap
}

// NewQueue constructs an empty event queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push inserts ev into the queue.
func (q *Queue) Push(ev Event) {
	heap.Push(&q.h, ev)
}

// Pop removes and returns the earliest queued event in (time, id) order.
// ok is false if the queue is empty.
func (q *Queue) Pop() (ev Event, ok bool) {
	if q.h.Len() == 0 {
		return Event{}, false
	}
	return heap.Pop(&q.h).(Event), true
}

// PeekTime returns the time of the earliest queued event, if any.
func (q *Queue) PeekTime() (float64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].Time, true
}

// Len returns the number of queued (not yet popped or cancelled) events.
func (q *Queue) Len() int {
	return q.h.Len()
}

// Contains reports whether an event with the given id is still queued.
func (q *Queue) Contains(id uint64) bool {
	for _, ev := range q.h {
		if ev.ID == id {
			return true
		}
	}
	return false
}

// Cancel removes every queued event matching pred and returns how many
// were removed.
func (q *Queue) Cancel(pred CancelPredicate) int {
	kept := q.h[:0]
	removed := 0
	for _, ev := range q.h {
		if pred(ev) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	q.h = kept
	heap.Init(&q.h)
	return removed
}

// CancelByID removes a single queued event by id. It reports whether an
// event was actually removed (a no-op if the id was already consumed).
func (q *Queue) CancelByID(id uint64) bool {
	removed := q.Cancel(func(ev Event) bool { return ev.ID == id })
	return removed > 0
}

type eventHeap []Event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return Less(h[i], h[j]) }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(Event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
