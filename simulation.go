// Package dslabcore implements a deterministic discrete-event simulation
// kernel: a time-ordered event queue, typed event dispatch to registered
// components, and a cooperative single-threaded async runtime (the
// async package) layered over it. Simulated time only ever advances as
// a side effect of popping an event from the queue.
package dslabcore

import (
	"context"
	"fmt"
	"math"

	"github.com/osukhoroslov/dslab-core/async"
	"github.com/osukhoroslov/dslab-core/logx"
	"github.com/osukhoroslov/dslab-core/payload"
	"github.com/osukhoroslov/dslab-core/registry"
	"github.com/osukhoroslov/dslab-core/simevent"
	"github.com/osukhoroslov/dslab-core/simrand"
)

// TaskID is a stable handle to a spawned task, re-exported from async so
// callers never need to import that package directly just to hold one.
type TaskID = async.TaskID

// noComponent is the pseudo component id used by Spawn for tasks not
// bound to a named component. It is never a value registry.Register can
// hand out, since dense ids start at 0.
const noComponent = -1

type orderedStamp struct {
	time float64
	id   uint64
}

// Simulation is the kernel: current time, next-event-id counter,
// component registry, event queue, handler table, PRNG, and the async
// executor. All mutation is funneled through Context and the driver
// loop below; nothing here is behind a mutex, because task bodies (each
// on its own goroutine) only touch it during turns the driver grants
// while it waits, so at most one goroutine touches it at any instant.
type Simulation struct {
	registry *registry.Registry
	queue    *simevent.Queue
	rng      *simrand.Source
	exec     *async.Executor

	handlers map[int]handlerBinding

	sink                      logx.Sink
	defaultCancellationPolicy CancellationPolicy
	unhandledLevel            logx.Level

	now         float64
	nextEventID uint64
	eventCount  uint64

	lastOrdered map[int]orderedStamp
	taskCancels map[TaskID]context.CancelFunc
}

// New constructs a Simulation seeded deterministically from seed. Two
// Simulations built from the same seed, the same component registration
// order, and the same user code produce byte-identical event sequences.
func New(seed uint64, opts ...Option) *Simulation {
	sim := &Simulation{
		registry:       registry.New(),
		queue:          simevent.NewQueue(),
		rng:            simrand.New(seed),
		handlers:       make(map[int]handlerBinding),
		sink:           logx.NopSink{},
		unhandledLevel: logx.LevelWarn,
		lastOrdered:    make(map[int]orderedStamp),
		taskCancels:    make(map[TaskID]context.CancelFunc),
	}
	sim.exec = async.NewExecutor(sim)
	for _, opt := range opts {
		opt(sim)
	}
	return sim
}

// Now implements async.Kernel.
func (s *Simulation) Now() float64 { return s.now }

// EmitInternal implements async.Kernel: it stamps a real event into the
// main queue tagged as a timer wake, so that time only ever advances via
// an ordinary queue pop, even for a pure sleep with no other traffic.
func (s *Simulation) EmitInternal(dest int, p any, delay float64) uint64 {
	id := s.nextEventID
	s.nextEventID++
	ev := simevent.Event{ID: id, Time: s.now + delay, Src: dest, Dest: dest, Payload: p, Tag: async.WakeTag()}
	s.queue.Push(ev)
	return id
}

// CancelEvent implements async.Kernel, and is also exposed to Context as
// the implementation behind CancelEvent.
func (s *Simulation) CancelEvent(id uint64) bool {
	return s.queue.CancelByID(id)
}

// Time returns the kernel's current simulated time.
func (s *Simulation) Time() float64 { return s.now }

// EventCount returns the number of events popped from the queue so far
// (including the internal timer-wake events backing sleeps).
func (s *Simulation) EventCount() uint64 { return s.eventCount }

// CreateContext registers a new named component and returns its Context.
// It fails with ErrDuplicateName if name is already registered.
func (s *Simulation) CreateContext(name string) (Context, error) {
	id, err := s.registry.Register(name)
	if err != nil {
		return Context{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	return Context{id: id, sim: s}, nil
}

// AddHandler installs h as the synchronous handler for the component
// registered as name, applying policy to its queued events if it is
// later removed or replaced. If a handler is already installed for
// name, the *old* binding's policy is applied before it is overwritten
// (§4.4: the configured policy fires on replacement, not just removal).
func (s *Simulation) AddHandler(name string, h Handler, policy CancellationPolicy) error {
	id, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	if old, exists := s.handlers[id]; exists {
		s.applyCancellationPolicy(id, old.policy)
	}
	s.handlers[id] = handlerBinding{handler: h, policy: policy}
	return nil
}

// RemoveHandler uninstalls the handler for name, if any, applying its
// configured cancellation policy to already-queued events.
func (s *Simulation) RemoveHandler(name string) error {
	id, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	b, exists := s.handlers[id]
	if !exists {
		return nil
	}
	delete(s.handlers, id)
	s.applyCancellationPolicy(id, b.policy)
	return nil
}

// applyCancellationPolicy only ever touches user-facing events addressed
// to or from componentID. A sleeping task's backing wake event (tagged
// async.WakeTag()) is kernel bookkeeping, not a component event: yanking
// it out from under the executor's timer heap would leave that heap
// entry (and the parked task) with no way to ever fire, so it is always
// excluded from the predicate regardless of policy.
func (s *Simulation) applyCancellationPolicy(componentID int, policy CancellationPolicy) {
	switch policy {
	case CancelPolicyAllFromComponent:
		s.queue.Cancel(func(e simevent.Event) bool { return e.Tag != async.WakeTag() && e.Dest == componentID })
	case CancelPolicySrcOnly:
		s.queue.Cancel(func(e simevent.Event) bool {
			return e.Tag != async.WakeTag() && e.Dest == componentID && e.Src == componentID
		})
	}
}

// Spawn starts fn as a new task not bound to any named component. ctx is
// a standard context.Context whose Done channel closes when the task is
// cancelled via CancelTask, for composing with ordinary Go cancellation
// idioms inside the task body; c is the simulation Context used for
// suspension and emission.
func (s *Simulation) Spawn(fn func(ctx context.Context, c Context) error) TaskID {
	return s.SpawnOn(noComponent, fn)
}

// SpawnOn is Spawn, binding the task to componentID (for logging and for
// any future component-scoped bookkeeping).
func (s *Simulation) SpawnOn(componentID int, fn func(ctx context.Context, c Context) error) TaskID {
	stdCtx, cancel := context.WithCancel(context.Background())
	id := s.exec.Spawn(componentID, func(tc *async.TaskCtx) error {
		c := Context{id: componentID, sim: s, task: tc}
		return fn(stdCtx, c)
	})
	s.taskCancels[id] = cancel
	return id
}

// CancelTask drops a task's current suspension and removes it from the
// ready-queue, synchronously and without advancing simulated time.
func (s *Simulation) CancelTask(id TaskID) error {
	err := s.exec.CancelTask(id)
	if err == async.ErrTaskAlreadyCancelled {
		err = ErrTaskAlreadyCancelled
	}
	if cancel, ok := s.taskCancels[id]; ok {
		cancel()
		delete(s.taskCancels, id)
	}
	return err
}

// RegisterKeyExtractor installs fn as the routing-key function for tag.
// It must be called before any RecvEventByKey call for that type.
func (s *Simulation) RegisterKeyExtractor(tag payload.Tag, fn func(any) (uint64, bool)) {
	s.exec.RegisterKeyExtractor(tag, fn)
}

// emit validates and enqueues a new event from src to dest, optionally
// enforcing emit_ordered's strictly-increasing-stamp requirement.
func (s *Simulation) emit(src, dest int, p any, delay float64, ordered bool) (uint64, error) {
	if !s.registry.Valid(dest) {
		return 0, fmt.Errorf("%w: dest=%d", ErrUnknownComponent, dest)
	}
	if math.IsNaN(delay) || delay < 0 {
		return 0, ErrInvalidDelay
	}
	t := s.now + delay
	id := s.nextEventID

	if ordered {
		if last, ok := s.lastOrdered[src]; ok {
			if !(t > last.time || (t == last.time && id > last.id)) {
				return 0, ErrOrderViolation
			}
		}
	}

	s.nextEventID++
	if ordered {
		s.lastOrdered[src] = orderedStamp{time: t, id: id}
	}

	tag := payload.TagOfValue(p)
	s.queue.Push(simevent.Event{ID: id, Time: t, Src: src, Dest: dest, Payload: p, Tag: tag})
	return id, nil
}

// Step drains the ready-queue, pops and dispatches at most one event
// (advancing now to its time and firing any timers due by then first),
// then drains the ready-queue again. It returns false, leaving now
// unchanged, if there was nothing to pop.
func (s *Simulation) Step() bool {
	s.exec.DrainReady()
	ev, ok := s.queue.Pop()
	if !ok {
		return false
	}
	s.now = ev.Time
	s.exec.FireTimersUpTo(s.now)
	s.dispatch(ev)
	s.exec.DrainReady()
	s.eventCount++
	return true
}

func (s *Simulation) dispatch(ev simevent.Event) {
	if ev.Tag == async.WakeTag() {
		return
	}
	if b, ok := s.handlers[ev.Dest]; ok {
		c := Context{id: ev.Dest, sim: s}
		if err := b.handler.Handle(c, ev); err != nil {
			s.sink.OnRecord(logx.LevelError, s.now, s.componentName(ev.Dest), "handler returned an error", "err", err, "event_id", ev.ID)
		}
		return
	}

	key, hasKey := s.exec.ExtractKey(ev.Tag, ev.Payload)
	if s.exec.Dispatch(ev, key, hasKey) {
		return
	}

	s.sink.OnRecord(s.unhandledLevel, s.now, s.componentName(ev.Dest), "unhandled event",
		"type", payload.TypeName(ev.Tag), "src", ev.Src, "event_id", ev.ID)
}

func (s *Simulation) componentName(id int) string {
	if id < 0 || !s.registry.Valid(id) {
		return fmt.Sprintf("<component-%d>", id)
	}
	return s.registry.Name(id)
}

// StepUntilNoEvents steps until the queue, ready-queue, and timer store
// are all empty.
func (s *Simulation) StepUntilNoEvents() {
	for s.Step() {
	}
}

// StepForDuration is StepUntilTime with t set to the time it was called
// at plus d. Timers and events at exactly the boundary time are
// processed.
func (s *Simulation) StepForDuration(d float64) {
	s.StepUntilTime(s.now + d)
}

// StepUntilTime steps while the next queued event is due at or before t,
// processing events exactly at t. It returns once now >= t or no event
// due by t remains, so now never passes t but may stay below it.
func (s *Simulation) StepUntilTime(t float64) {
	for {
		if s.now >= t {
			return
		}
		s.exec.DrainReady()
		peek, ok := s.queue.PeekTime()
		if !ok || peek > t {
			return
		}
		if !s.Step() {
			return
		}
	}
}

// Steps performs at most n Step calls, returning how many actually made
// progress.
func (s *Simulation) Steps(n int) int {
	count := 0
	for i := 0; i < n; i++ {
		if !s.Step() {
			break
		}
		count++
	}
	return count
}
