package async

import (
	"testing"

	"github.com/osukhoroslov/dslab-core/payload"
	"github.com/osukhoroslov/dslab-core/simevent"
)

func simEventFor(dest int, tag payload.Tag) simevent.Event {
	return simevent.Event{ID: 1, Time: 0, Src: dest, Dest: dest, Payload: pingPayload{N: 1}, Tag: tag}
}

// fakeKernel is a minimal Kernel good enough to drive the executor in
// isolation, without the root package's dispatch/logging machinery.
type fakeKernel struct {
	now    float64
	nextID uint64
	events map[uint64]fakeEvent
}

type fakeEvent struct {
	dest    int
	payload any
	time    float64
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{events: make(map[uint64]fakeEvent)}
}

func (k *fakeKernel) Now() float64 { return k.now }

func (k *fakeKernel) EmitInternal(dest int, payload any, delay float64) uint64 {
	k.nextID++
	id := k.nextID
	k.events[id] = fakeEvent{dest: dest, payload: payload, time: k.now + delay}
	return id
}

func (k *fakeKernel) CancelEvent(id uint64) bool {
	if _, ok := k.events[id]; ok {
		delete(k.events, id)
		return true
	}
	return false
}

// popEarliest removes and returns the earliest-scheduled fake event,
// breaking ties by id exactly like the real event queue does.
func (k *fakeKernel) popEarliest() (uint64, fakeEvent, bool) {
	var bestID uint64
	var best fakeEvent
	found := false
	for id, ev := range k.events {
		if !found || ev.time < best.time || (ev.time == best.time && id < bestID) {
			bestID, best, found = id, ev, true
		}
	}
	if found {
		delete(k.events, bestID)
	}
	return bestID, best, found
}

// runTimersToCompletion drives only timer-backed wakes to exhaustion; it
// does not know how to dispatch arbitrary component events, since that's
// the root package's job.
func runTimersToCompletion(t *testing.T, k *fakeKernel, e *Executor) {
	t.Helper()
	for {
		_, ev, ok := k.popEarliest()
		if !ok {
			break
		}
		if _, isWake := ev.payload.(wakeMarker); !isWake {
			continue
		}
		k.now = ev.time
		e.FireTimersUpTo(k.now)
		e.DrainReady()
	}
}

func TestSpawnRunsFirstTurn(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	ran := false
	e.Spawn(1, func(tc *TaskCtx) error {
		ran = true
		return nil
	})
	e.DrainReady()

	if !ran {
		t.Fatal("spawned task body never ran")
	}
	if e.TaskCount() != 0 {
		t.Fatalf("expected task to be cleaned up, got TaskCount=%d", e.TaskCount())
	}
}

func TestSleepFiresAtCorrectTime(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	var woke float64
	e.Spawn(1, func(tc *TaskCtx) error {
		v, err := tc.Await(tc.NewSleep(5))
		if err != nil {
			return err
		}
		woke = v.(float64)
		return nil
	})
	e.DrainReady()
	runTimersToCompletion(t, k, e)

	if woke != 5 {
		t.Fatalf("expected wake at time 5, got %v", woke)
	}
	if e.TimerCount() != 0 {
		t.Fatalf("expected no pending timers, got %d", e.TimerCount())
	}
}

type pingPayload struct{ N int }

func TestRecvPromiseDeliversDispatchedEvent(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)
	tag := payload.TagOf[pingPayload]()

	var got any
	e.Spawn(1, func(tc *TaskCtx) error {
		v, err := tc.Await(tc.NewRecv(1, tag, false, 0))
		if err != nil {
			return err
		}
		got = v
		return nil
	})
	e.DrainReady()

	ev := simEventFor(1, tag)
	if !e.Dispatch(ev, 0, false) {
		t.Fatal("expected a waiting promise to accept the dispatched event")
	}
	e.DrainReady()

	if got == nil {
		t.Fatal("task never received its event")
	}
}

func TestSelectAnyResolvesFirstAndCancelsLoser(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	var chosen int
	e.Spawn(1, func(tc *TaskCtx) error {
		fast := tc.NewSleep(3)
		slow := tc.NewSleep(7)
		idx, _, err := tc.SelectAny([]Awaitable{fast, slow})
		if err != nil {
			return err
		}
		chosen = idx
		return nil
	})
	e.DrainReady()
	runTimersToCompletion(t, k, e)

	if chosen != 0 {
		t.Fatalf("expected the faster sleep (index 0) to win, got %d", chosen)
	}
	if e.TimerCount() != 0 {
		t.Fatalf("expected loser timer to be cancelled, got TimerCount=%d", e.TimerCount())
	}
}

func TestJoinAllCollectsEveryResult(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	var results []any
	e.Spawn(1, func(tc *TaskCtx) error {
		as := []Awaitable{tc.NewSleep(4), tc.NewSleep(1), tc.NewSleep(9)}
		rs, err := tc.JoinAll(as)
		if err != nil {
			return err
		}
		results = rs
		return nil
	})
	e.DrainReady()
	runTimersToCompletion(t, k, e)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].(float64) != 4 || results[1].(float64) != 1 || results[2].(float64) != 9 {
		t.Fatalf("results not indexed by original position: %v", results)
	}
}

func TestStreamYieldsInArrivalOrder(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	var order []int
	e.Spawn(1, func(tc *TaskCtx) error {
		as := []Awaitable{tc.NewSleep(5), tc.NewSleep(2), tc.NewSleep(8)}
		for idx := range tc.Stream(as) {
			order = append(order, idx)
		}
		return nil
	})
	e.DrainReady()
	runTimersToCompletion(t, k, e)

	want := []int{1, 0, 2}
	if len(order) != len(want) {
		t.Fatalf("expected %d yields, got %d (%v)", len(want), len(order), order)
	}
	for i, idx := range want {
		if order[i] != idx {
			t.Fatalf("expected arrival order %v, got %v", want, order)
		}
	}
}

func TestCancelTaskNeverStarted(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	id := e.Spawn(1, func(tc *TaskCtx) error {
		t.Fatal("body must never run for a task cancelled before its first turn")
		return nil
	})

	if err := e.CancelTask(id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if err := e.CancelTask(id); err != ErrTaskAlreadyCancelled {
		t.Fatalf("expected ErrTaskAlreadyCancelled on repeat cancel, got %v", err)
	}
}

func TestCancelTaskParkedOnSleep(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	var taskErr error
	id := e.Spawn(1, func(tc *TaskCtx) error {
		_, err := tc.Await(tc.NewSleep(100))
		taskErr = err
		return err
	})
	e.DrainReady()

	if err := e.CancelTask(id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if taskErr != ErrCancelled {
		t.Fatalf("expected ErrCancelled from the parked await, got %v", taskErr)
	}
	if e.TimerCount() != 0 {
		t.Fatalf("expected the backing timer to be torn down, got TimerCount=%d", e.TimerCount())
	}
}

func TestCancelReportsErrNotAwaitingOnceResolved(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	var cancelErr error
	e.Spawn(1, func(tc *TaskCtx) error {
		a := tc.NewSleep(1)
		if _, err := tc.Await(a); err != nil {
			return err
		}
		cancelErr = tc.Cancel(a)
		return nil
	})
	e.DrainReady()
	runTimersToCompletion(t, k, e)

	if cancelErr != ErrNotAwaiting {
		t.Fatalf("expected ErrNotAwaiting for a wait that already delivered, got %v", cancelErr)
	}
}

func TestCancelledSelectLoserTimerIsFullyTornDown(t *testing.T) {
	k := newFakeKernel()
	e := NewExecutor(k)

	e.Spawn(1, func(tc *TaskCtx) error {
		_, _, _ = tc.SelectAny([]Awaitable{tc.NewSleep(2), tc.NewSleep(50)})
		return nil
	})
	e.DrainReady()
	runTimersToCompletion(t, k, e)

	if e.TimerCount() != 0 {
		t.Fatalf("expected zero pending timers after select resolves, got %d", e.TimerCount())
	}
	if len(k.events) != 0 {
		t.Fatalf("expected the loser's backing kernel event to be cancelled, got %d left", len(k.events))
	}
}
