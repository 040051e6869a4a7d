package dslabcore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	dslabcore "github.com/osukhoroslov/dslab-core"
	"github.com/osukhoroslov/dslab-core/simevent"
)

type pingMsg struct{ N int }
type pongMsg struct{ N int }

func TestEmptySimulationStepReturnsFalse(t *testing.T) {
	sim := dslabcore.New(1)
	require.False(t, sim.Step())
	require.Equal(t, 0.0, sim.Time())
}

func TestCreateContextRejectsDuplicateName(t *testing.T) {
	sim := dslabcore.New(1)
	_, err := sim.CreateContext("c")
	require.NoError(t, err)
	_, err = sim.CreateContext("c")
	require.ErrorIs(t, err, dslabcore.ErrDuplicateName)
}

func TestEmitRejectsUnknownDestination(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)
	_, err = c.Emit(pingMsg{N: 1}, 999, 1.0)
	require.ErrorIs(t, err, dslabcore.ErrUnknownComponent)
}

func TestEmitRejectsNegativeAndNaNDelay(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	_, err = c.Emit(pingMsg{N: 1}, c.ID(), -1.0)
	require.ErrorIs(t, err, dslabcore.ErrInvalidDelay)

	nan := 0.0
	nan /= nan
	_, err = c.Emit(pingMsg{N: 1}, c.ID(), nan)
	require.ErrorIs(t, err, dslabcore.ErrInvalidDelay)
}

func TestEmitOrderedRejectsNonIncreasingStamp(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	_, err = c.EmitOrdered(pingMsg{N: 1}, c.ID(), 5.0)
	require.NoError(t, err)
	_, err = c.EmitOrdered(pingMsg{N: 2}, c.ID(), 1.0)
	require.ErrorIs(t, err, dslabcore.ErrOrderViolation)
}

func TestEmitThenCancelLeavesNothingToStep(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	id, err := c.Emit(pingMsg{N: 1}, c.ID(), 3.0)
	require.NoError(t, err)
	require.True(t, c.CancelEvent(id))
	require.False(t, sim.Step())
}

func TestRecvEventByKeyWithoutExtractorFails(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	var recvErr error
	sim.SpawnOn(c.ID(), func(_ context.Context, cc dslabcore.Context) error {
		_, recvErr = dslabcore.RecvEventByKey[pingMsg](cc, 1)
		return recvErr
	})
	sim.Step()
	require.ErrorIs(t, recvErr, dslabcore.ErrNoKeyExtractor)
}

func TestSuspendingOpsOutsideTaskFail(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	_, err = c.Sleep(1.0)
	require.ErrorIs(t, err, dslabcore.ErrNotAsyncContext)

	_, err = dslabcore.RecvEvent[pingMsg](c)
	require.ErrorIs(t, err, dslabcore.ErrNotAsyncContext)
}

func TestHandlerWinsOverPendingPromise(t *testing.T) {
	sim := dslabcore.New(1)
	handlerSaw := false

	x, err := sim.CreateContext("X")
	require.NoError(t, err)
	require.NoError(t, sim.AddHandler("X", dslabcore.HandlerFunc(func(c dslabcore.Context, ev simevent.Event) error {
		handlerSaw = true
		return nil
	}), dslabcore.CancelPolicyNone))

	promiseResolved := false
	sim.SpawnOn(x.ID(), func(_ context.Context, cc dslabcore.Context) error {
		_, err := dslabcore.RecvEvent[pingMsg](cc)
		promiseResolved = err == nil
		return nil
	})

	y, err := sim.CreateContext("Y")
	require.NoError(t, err)
	sim.SpawnOn(y.ID(), func(_ context.Context, cc dslabcore.Context) error {
		_, err := cc.Emit(pingMsg{N: 1}, x.ID(), 1.0)
		return err
	})

	sim.StepUntilTime(2.0)
	require.True(t, handlerSaw)
	require.False(t, promiseResolved)
}

func TestRemoveHandlerAppliesCancellationPolicy(t *testing.T) {
	sim := dslabcore.New(1)
	x, err := sim.CreateContext("X")
	require.NoError(t, err)
	require.NoError(t, sim.AddHandler("X", dslabcore.HandlerFunc(func(dslabcore.Context, simevent.Event) error {
		return nil
	}), dslabcore.CancelPolicyAllFromComponent))

	id, err := x.Emit(pingMsg{N: 1}, x.ID(), 5.0)
	require.NoError(t, err)

	require.NoError(t, sim.RemoveHandler("X"))
	require.False(t, x.CancelEvent(id), "event should already have been dropped by the cancellation policy")
}

func TestAddHandlerAppliesCancellationPolicyToReplacedHandler(t *testing.T) {
	sim := dslabcore.New(1)
	x, err := sim.CreateContext("X")
	require.NoError(t, err)
	require.NoError(t, sim.AddHandler("X", dslabcore.HandlerFunc(func(dslabcore.Context, simevent.Event) error {
		return nil
	}), dslabcore.CancelPolicyAllFromComponent))

	id, err := x.Emit(pingMsg{N: 1}, x.ID(), 5.0)
	require.NoError(t, err)

	require.NoError(t, sim.AddHandler("X", dslabcore.HandlerFunc(func(dslabcore.Context, simevent.Event) error {
		return nil
	}), dslabcore.CancelPolicyNone))

	require.False(t, x.CancelEvent(id), "event should already have been dropped when the replaced handler's policy applied")
}

func TestCancellationPolicyNeverOrphansASleepingTask(t *testing.T) {
	sim := dslabcore.New(1)
	x, err := sim.CreateContext("X")
	require.NoError(t, err)
	require.NoError(t, sim.AddHandler("X", dslabcore.HandlerFunc(func(dslabcore.Context, simevent.Event) error {
		return nil
	}), dslabcore.CancelPolicyAllFromComponent))

	woke := false
	sim.SpawnOn(x.ID(), func(_ context.Context, cc dslabcore.Context) error {
		_, err := cc.Sleep(10)
		woke = err == nil
		return err
	})

	_, err = x.Emit(pingMsg{N: 1}, x.ID(), 1.0)
	require.NoError(t, err)

	// Registers the sleep's backing wake event (due at t=10), then pops
	// and dispatches the earlier ping (due at t=1), leaving the wake
	// event still pending in the queue.
	require.True(t, sim.Step())

	require.NoError(t, sim.RemoveHandler("X"))

	sim.StepUntilNoEvents()
	require.True(t, woke, "sleeping task must still wake even though its component's events were cancelled")
	require.Equal(t, 10.0, sim.Time())
}

func TestStepForDurationNeverOvershoots(t *testing.T) {
	sim := dslabcore.New(3)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	sim.SpawnOn(c.ID(), func(_ context.Context, cc dslabcore.Context) error {
		_, err := cc.Sleep(10)
		return err
	})

	sim.StepForDuration(4)
	require.LessOrEqual(t, sim.Time(), 4.0)
}

func TestCancelTaskNeverStartedSkipsBody(t *testing.T) {
	sim := dslabcore.New(1)
	c, err := sim.CreateContext("c")
	require.NoError(t, err)

	id := sim.SpawnOn(c.ID(), func(_ context.Context, cc dslabcore.Context) error {
		t.Fatal("body must not run for a task cancelled before its first turn")
		return nil
	})
	require.NoError(t, sim.CancelTask(id))
	require.False(t, sim.Step())
}
