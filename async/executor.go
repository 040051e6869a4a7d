package async

import (
	"container/heap"

	"github.com/osukhoroslov/dslab-core/payload"
	"github.com/osukhoroslov/dslab-core/simevent"
)

// wakeMarker is the payload of a timer's backing event (tagged wakeTag): an
// event that exists purely so simulated time can advance to the timer's
// fire time through an ordinary queue pop. The driver recognizes it and
// dispatches it to no one.
type wakeMarker struct{ WaitID uint64 }

var wakeTag = payload.TagOf[wakeMarker]()

// WakeTag reports the reserved payload tag used by internal timer-wake
// events, so the driver can special-case them ahead of normal dispatch.
func WakeTag() payload.Tag { return wakeTag }

// readyItem is one entry in the ready-queue: a task that should be given
// its next turn, and how to deliver whatever it's waiting for.
type readyItem struct {
	waitID  uint64 // 0 for items not tied to a cancellable wait (spawn start)
	task    *Task
	deliver func()
}

// Executor is the async runtime: task table, ready-queue, timer heap,
// promise buckets, and the key-extractor registry.
type Executor struct {
	kernel Kernel

	nextTaskSeq uint64
	nextWaitID  uint64

	tasks map[TaskID]*Task
	ready []readyItem

	timers         timerHeap
	promiseBuckets map[bucketKey][]*waiter
	waiters        map[uint64]*waiter

	keyExtractors map[payload.Tag]func(any) (uint64, bool)
}

// NewExecutor constructs an Executor bound to kernel.
func NewExecutor(kernel Kernel) *Executor {
	return &Executor{
		kernel:         kernel,
		tasks:          make(map[TaskID]*Task),
		promiseBuckets: make(map[bucketKey][]*waiter),
		waiters:        make(map[uint64]*waiter),
		keyExtractors:  make(map[payload.Tag]func(any) (uint64, bool)),
	}
}

func (e *Executor) enqueueReady(item readyItem) {
	e.ready = append(e.ready, item)
}

// removeReadyForTask drops any not-yet-delivered ready items owned by t,
// reporting whether anything was removed.
func (e *Executor) removeReadyForTask(t *Task) bool {
	removed := false
	kept := e.ready[:0]
	for _, it := range e.ready {
		if it.task == t {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	e.ready = kept
	return removed
}

// removeReadyForWait drops a single not-yet-delivered ready item by
// waitID, reporting whether it was found.
func (e *Executor) removeReadyForWait(waitID uint64) bool {
	for i, it := range e.ready {
		if it.waitID == waitID {
			e.ready = append(e.ready[:i], e.ready[i+1:]...)
			return true
		}
	}
	return false
}

// Spawn creates a task owned by componentID and enqueues it to run its
// first turn on the next DrainReady.
func (e *Executor) Spawn(componentID int, fn func(*TaskCtx) error) TaskID {
	e.nextTaskSeq++
	t := newTask(e.nextTaskSeq, componentID)
	e.tasks[t.id] = t
	go runTask(t, e, fn)
	e.enqueueReady(readyItem{task: t, deliver: func() { close(t.startGate) }})
	return t.id
}

// CancelTask drops a task's current suspension (if any), unregisters
// everything it was waiting on, and removes it from the ready-queue.
func (e *Executor) CancelTask(id TaskID) error {
	t, ok := e.tasks[id]
	if !ok || t.done || t.cancelled {
		return ErrTaskAlreadyCancelled
	}
	t.cancelled = true
	e.removeReadyForTask(t)
	if t.parked {
		close(t.cancelSignal)
	} else {
		close(t.startGate)
	}
	<-t.turnDone
	delete(e.tasks, t.id)
	e.purgeWaitsForTask(t)
	return nil
}

func (e *Executor) purgeWaitsForTask(t *Task) {
	for id, w := range e.waiters {
		if w.task != t {
			continue
		}
		e.teardownWaiter(w)
		delete(e.waiters, id)
	}
}

func (e *Executor) teardownWaiter(w *waiter) {
	switch w.kind {
	case waitTimer:
		e.removeTimer(w)
		e.kernel.CancelEvent(w.eventID)
	case waitPromise:
		e.removeFromBucket(w)
	}
}

// DrainReady runs every task currently in the ready-queue to its next
// suspend point or completion, in FIFO order, including any new entries
// that queue up as a side effect of running earlier ones. It returns how
// many turns were executed.
func (e *Executor) DrainReady() int {
	n := 0
	for len(e.ready) > 0 {
		item := e.ready[0]
		e.ready = e.ready[1:]
		item.deliver()
		<-item.task.turnDone
		n++
		if item.task.done {
			delete(e.tasks, item.task.id)
		}
	}
	return n
}

// RegisterTimer arranges for a wake to be delivered on the returned
// channel once the simulated time reaches now()+d, and returns the
// wait id used to cancel it. It also stamps a real event into the main
// queue (via Kernel.EmitInternal) so time can actually advance to that
// point.
func (e *Executor) RegisterTimer(task *Task, d float64) (waitID uint64, ch chan any) {
	e.nextWaitID++
	id := e.nextWaitID
	fireTime := e.kernel.Now() + d
	w := &waiter{id: id, kind: waitTimer, ch: make(chan any, 1), task: task, fireTime: fireTime}
	w.eventID = e.kernel.EmitInternal(task.componentID, wakeMarker{WaitID: id}, d)
	heap.Push(&e.timers, w)
	e.waiters[id] = w
	return id, w.ch
}

// FireTimersUpTo enqueues a ready wake for every timer whose fire time is
// at most now, in (fireTime, id) order.
func (e *Executor) FireTimersUpTo(now float64) {
	for e.timers.Len() > 0 {
		w := e.timers[0]
		if w.fireTime > now {
			return
		}
		heap.Pop(&e.timers)
		delete(e.waiters, w.id)
		ch := w.ch
		e.enqueueReady(readyItem{waitID: w.id, task: w.task, deliver: func() { ch <- w.fireTime }})
	}
}

// RegisterPromise parks a task waiting for the next event matching
// (componentID, tag[, key]).
func (e *Executor) RegisterPromise(task *Task, componentID int, tag payload.Tag, hasKey bool, key uint64) (waitID uint64, ch chan any) {
	e.nextWaitID++
	id := e.nextWaitID
	bk := bucketKey{component: componentID, tag: tag, hasKey: hasKey, key: key}
	w := &waiter{id: id, kind: waitPromise, ch: make(chan any, 1), task: task, bucket: bk}
	e.promiseBuckets[bk] = append(e.promiseBuckets[bk], w)
	e.waiters[id] = w
	return id, w.ch
}

// CancelWait unregisters a single pending or already-fired-but-not-yet-
// delivered wait, reporting whether it found one to unregister. It is a
// no-op reporting false if the wait already fully delivered.
func (e *Executor) CancelWait(waitID uint64) bool {
	if w, ok := e.waiters[waitID]; ok {
		e.teardownWaiter(w)
		delete(e.waiters, waitID)
		return true
	}
	return e.removeReadyForWait(waitID)
}

// RegisterKeyExtractor installs the routing-key function for tag. A
// second call with the same tag overwrites the previous function value.
func (e *Executor) RegisterKeyExtractor(tag payload.Tag, fn func(any) (uint64, bool)) {
	e.keyExtractors[tag] = fn
}

// HasKeyExtractor reports whether tag has a registered key extractor.
func (e *Executor) HasKeyExtractor(tag payload.Tag) bool {
	_, ok := e.keyExtractors[tag]
	return ok
}

// ExtractKey applies tag's registered extractor to v, if any.
func (e *Executor) ExtractKey(tag payload.Tag, v any) (key uint64, hasKey bool) {
	fn, ok := e.keyExtractors[tag]
	if !ok {
		return 0, false
	}
	k, ok := fn(v)
	return k, ok
}

// Dispatch tries to fulfil a pending promise for ev. It first tries the
// keyed bucket (if hasKey), then falls back to the unkeyed bucket,
// popping the oldest waiting promise (FIFO) in either case. It reports
// whether an async promise accepted the event.
func (e *Executor) Dispatch(ev simevent.Event, key uint64, hasKey bool) bool {
	if hasKey {
		if w, ok := e.popFront(bucketKey{ev.Dest, ev.Tag, true, key}); ok {
			delete(e.waiters, w.id)
			e.enqueueReady(readyItem{waitID: w.id, task: w.task, deliver: func() { w.ch <- ev }})
			return true
		}
	}
	if w, ok := e.popFront(bucketKey{ev.Dest, ev.Tag, false, 0}); ok {
		delete(e.waiters, w.id)
		e.enqueueReady(readyItem{waitID: w.id, task: w.task, deliver: func() { w.ch <- ev }})
		return true
	}
	return false
}

func (e *Executor) popFront(bk bucketKey) (*waiter, bool) {
	list := e.promiseBuckets[bk]
	if len(list) == 0 {
		return nil, false
	}
	w := list[0]
	e.promiseBuckets[bk] = list[1:]
	return w, true
}

// TimerCount returns the number of still-pending timers, for tests
// asserting that cancellation fully unwinds kernel state.
func (e *Executor) TimerCount() int { return e.timers.Len() }

// TaskCount returns the number of tasks not yet completed.
func (e *Executor) TaskCount() int { return len(e.tasks) }

// ReadyCount returns the number of undelivered ready-queue entries.
func (e *Executor) ReadyCount() int { return len(e.ready) }
