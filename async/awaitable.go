package async

import (
	"iter"
	"reflect"

	"github.com/osukhoroslov/dslab-core/payload"
)

// Awaitable is a registered-but-not-yet-waited-on suspension: a timer or
// an event promise. Registering and waiting are split so combinators can
// arm several sources before blocking on whichever resolves first.
type Awaitable struct {
	waitID uint64
	ch     chan any
}

// NewSleep arms a timer that fires after d simulated seconds, without
// blocking the caller.
func (tc *TaskCtx) NewSleep(d float64) Awaitable {
	id, ch := tc.exec.RegisterTimer(tc.task, d)
	return Awaitable{waitID: id, ch: ch}
}

// NewRecv arms an event promise for the next (componentID, tag[, key])
// match, without blocking the caller.
func (tc *TaskCtx) NewRecv(componentID int, tag payload.Tag, hasKey bool, key uint64) Awaitable {
	id, ch := tc.exec.RegisterPromise(tc.task, componentID, tag, hasKey, key)
	return Awaitable{waitID: id, ch: ch}
}

// Cancel withdraws an armed-but-unresolved Awaitable. It returns
// ErrNotAwaiting if a no longer corresponds to a live registration
// (already resolved and delivered, or already cancelled).
func (tc *TaskCtx) Cancel(a Awaitable) error {
	if !tc.exec.CancelWait(a.waitID) {
		return ErrNotAwaiting
	}
	return nil
}

// parkAndSelect hands control back to the driver (by signalling turnDone)
// and blocks the task's goroutine in a native select over cases, which
// must always end with a case reading tc.task.cancelSignal.
func (tc *TaskCtx) parkAndSelect(cases []reflect.SelectCase) (int, reflect.Value) {
	tc.task.parked = true
	tc.task.turnDone <- struct{}{}
	chosen, recv, _ := reflect.Select(cases)
	tc.task.parked = false
	return chosen, recv
}

func (tc *TaskCtx) cancelCase() reflect.SelectCase {
	return reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(tc.task.cancelSignal)}
}

// Await blocks until a resolves or the task is cancelled.
func (tc *TaskCtx) Await(a Awaitable) (any, error) {
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(a.ch)},
		tc.cancelCase(),
	}
	chosen, recv := tc.parkAndSelect(cases)
	if chosen == 1 {
		tc.exec.CancelWait(a.waitID)
		return nil, ErrCancelled
	}
	return recv.Interface(), nil
}

// SelectAny resolves with the first of as to become ready, cancelling
// every other one before returning.
func (tc *TaskCtx) SelectAny(as []Awaitable) (int, any, error) {
	cases := make([]reflect.SelectCase, len(as)+1)
	for i, a := range as {
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(a.ch)}
	}
	cases[len(as)] = tc.cancelCase()

	chosen, recv := tc.parkAndSelect(cases)
	if chosen == len(as) {
		for _, a := range as {
			tc.exec.CancelWait(a.waitID)
		}
		return -1, nil, ErrCancelled
	}
	for i, a := range as {
		if i != chosen {
			tc.exec.CancelWait(a.waitID)
		}
	}
	return chosen, recv.Interface(), nil
}

// JoinAll blocks until every Awaitable in as has resolved (in whatever
// order they actually fire), returning results indexed like as. If the
// task is cancelled partway through, every not-yet-resolved Awaitable is
// cancelled independently before returning.
func (tc *TaskCtx) JoinAll(as []Awaitable) ([]any, error) {
	results := make([]any, len(as))
	remaining := append([]Awaitable(nil), as...)
	indices := make([]int, len(as))
	for i := range indices {
		indices[i] = i
	}

	for len(remaining) > 0 {
		cases := make([]reflect.SelectCase, len(remaining)+1)
		for i, a := range remaining {
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(a.ch)}
		}
		cases[len(remaining)] = tc.cancelCase()

		chosen, recv := tc.parkAndSelect(cases)
		if chosen == len(remaining) {
			for _, a := range remaining {
				tc.exec.CancelWait(a.waitID)
			}
			return nil, ErrCancelled
		}
		results[indices[chosen]] = recv.Interface()
		remaining = append(remaining[:chosen], remaining[chosen+1:]...)
		indices = append(indices[:chosen], indices[chosen+1:]...)
	}
	return results, nil
}

// Stream yields each Awaitable's result in the order it actually becomes
// ready (simulated-time arrival order), pairing it with its original
// index in as. Breaking out of the range early cancels whatever hasn't
// resolved yet.
func (tc *TaskCtx) Stream(as []Awaitable) iter.Seq2[int, any] {
	return func(yield func(int, any) bool) {
		remaining := append([]Awaitable(nil), as...)
		indices := make([]int, len(as))
		for i := range indices {
			indices[i] = i
		}

		for len(remaining) > 0 {
			cases := make([]reflect.SelectCase, len(remaining)+1)
			for i, a := range remaining {
				cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(a.ch)}
			}
			cases[len(remaining)] = tc.cancelCase()

			chosen, recv := tc.parkAndSelect(cases)
			if chosen == len(remaining) {
				for _, a := range remaining {
					tc.exec.CancelWait(a.waitID)
				}
				return
			}
			idx := indices[chosen]
			remaining = append(remaining[:chosen], remaining[chosen+1:]...)
			indices = append(indices[:chosen], indices[chosen+1:]...)
			if !yield(idx, recv.Interface()) {
				for _, a := range remaining {
					tc.exec.CancelWait(a.waitID)
				}
				return
			}
		}
	}
}
