package dslabcore

import (
	"fmt"

	"github.com/osukhoroslov/dslab-core/async"
	"github.com/osukhoroslov/dslab-core/payload"
	"github.com/osukhoroslov/dslab-core/simevent"
)

// Context is the per-component handle passed to handlers and task
// bodies. It is a small value type (an id plus a shared *Simulation
// pointer), cheap to copy, mirroring the arena+index resolution of the
// kernel's cyclic ownership: components never hold a pointer back into
// the kernel's owned tables, only an id the kernel resolves on demand.
//
// task is nil when the Context was handed to a synchronous Handler; it
// is set when the Context belongs to a spawned task's body, which is
// what lets Sleep/RecvEvent/RecvEventByKey suspend.
type Context struct {
	id   int
	sim  *Simulation
	task *async.TaskCtx
}

// Time returns the kernel's current simulated time.
func (c Context) Time() float64 { return c.sim.Time() }

// ID returns this context's own component id.
func (c Context) ID() int { return c.id }

// Rand draws the next deterministic float64 in [0,1) from the kernel PRNG.
func (c Context) Rand() float64 { return c.sim.rng.Float64() }

// GenRange draws a uniform value in the half-open range [lo, hi).
func (c Context) GenRange(lo, hi float64) (float64, error) {
	v, err := c.sim.rng.GenRange(lo, hi)
	if err != nil {
		return 0, ErrEmptyRange
	}
	return v, nil
}

// Emit enqueues p for delivery to dest after delay simulated seconds.
func (c Context) Emit(p any, dest int, delay float64) (uint64, error) {
	return c.sim.emit(c.id, dest, p, delay, false)
}

// EmitNow is Emit with a delay of 0.
func (c Context) EmitNow(p any, dest int) (uint64, error) {
	return c.Emit(p, dest, 0)
}

// EmitSelf is Emit addressed to this context's own component.
func (c Context) EmitSelf(p any, delay float64) (uint64, error) {
	return c.Emit(p, c.id, delay)
}

// EmitOrdered is Emit, additionally failing with ErrOrderViolation if the
// resulting (time, id) stamp would not strictly exceed this component's
// previous ordered emit.
func (c Context) EmitOrdered(p any, dest int, delay float64) (uint64, error) {
	return c.sim.emit(c.id, dest, p, delay, true)
}

// CancelEvent removes a queued event by id. It is a no-op, reporting
// false, if the event was already consumed or cancelled.
func (c Context) CancelEvent(id uint64) bool {
	return c.sim.queue.CancelByID(id)
}

// CancelEventsFrom removes every queued event whose source is src,
// returning how many were removed.
func (c Context) CancelEventsFrom(src int) int {
	return c.sim.queue.Cancel(func(e simevent.Event) bool { return e.Src == src })
}

// CancelEventsTo removes every queued event destined for dest, returning
// how many were removed.
func (c Context) CancelEventsTo(dest int) int {
	return c.sim.queue.Cancel(func(e simevent.Event) bool { return e.Dest == dest })
}

// Sleep suspends the current task until d simulated seconds have
// elapsed, returning the simulated time at which it woke. It is only
// valid from a spawned task's Context (ErrNotAsyncContext otherwise).
func (c Context) Sleep(d float64) (float64, error) {
	if c.task == nil {
		return 0, ErrNotAsyncContext
	}
	v, err := c.task.Await(c.task.NewSleep(d))
	if err != nil {
		return 0, translateAsyncErr(err)
	}
	return v.(float64), nil
}

// Event is a typed view of a dispatched event, recovered by downcasting
// its erased payload once a promise resolves.
type Event[T any] struct {
	ID      uint64
	Time    float64
	Src     int
	Dest    int
	Payload T
}

func eventFromErased(v any) (simevent.Event, error) {
	ev, ok := v.(simevent.Event)
	if !ok {
		return simevent.Event{}, fmt.Errorf("dslab-core: unexpected wake value type %T", v)
	}
	return ev, nil
}

func downcastEvent[T any](ev simevent.Event) Event[T] {
	p, ok := payload.Downcast[T](ev.Payload)
	if !ok {
		panicInvariant("recv_event resolved with a payload that did not match its own tag")
	}
	return Event[T]{ID: ev.ID, Time: ev.Time, Src: ev.Src, Dest: ev.Dest, Payload: p}
}

// RecvEvent suspends the current task until an event of type T addressed
// to its own component arrives, matching any such event regardless of
// payload content. Go methods cannot carry their own type parameter, so
// this is a free function over Context rather than a Context method.
func RecvEvent[T any](c Context) (Event[T], error) {
	if c.task == nil {
		return Event[T]{}, ErrNotAsyncContext
	}
	tag := payload.TagOf[T]()
	v, err := c.task.Await(c.task.NewRecv(c.id, tag, false, 0))
	if err != nil {
		return Event[T]{}, translateAsyncErr(err)
	}
	ev, err := eventFromErased(v)
	if err != nil {
		return Event[T]{}, err
	}
	return downcastEvent[T](ev), nil
}

// RecvEventByKey suspends the current task until an event of type T
// whose extracted key equals key arrives. A key extractor for T must
// already be registered via Simulation.RegisterKeyExtractor, or this
// fails immediately with ErrNoKeyExtractor.
func RecvEventByKey[T any](c Context, key uint64) (Event[T], error) {
	if c.task == nil {
		return Event[T]{}, ErrNotAsyncContext
	}
	tag := payload.TagOf[T]()
	if !c.sim.exec.HasKeyExtractor(tag) {
		return Event[T]{}, ErrNoKeyExtractor
	}
	v, err := c.task.Await(c.task.NewRecv(c.id, tag, true, key))
	if err != nil {
		return Event[T]{}, translateAsyncErr(err)
	}
	ev, err := eventFromErased(v)
	if err != nil {
		return Event[T]{}, err
	}
	return downcastEvent[T](ev), nil
}

// CancelEventsOfType removes every queued event whose payload type tag
// matches T, regardless of source or destination.
func CancelEventsOfType[T any](c Context) int {
	tag := payload.TagOf[T]()
	return c.sim.queue.Cancel(func(e simevent.Event) bool { return e.Tag == tag })
}
