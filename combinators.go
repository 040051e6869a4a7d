package dslabcore

import (
	"iter"

	"github.com/osukhoroslov/dslab-core/async"
	"github.com/osukhoroslov/dslab-core/payload"
	"github.com/osukhoroslov/dslab-core/simevent"
)

// NewSleepAwaitable arms a sleep of d simulated seconds without blocking,
// for use with SelectAny/JoinAll/Stream. Resolves to a float64: the
// simulated time at which it fired.
func (c Context) NewSleepAwaitable(d float64) (async.Awaitable, error) {
	if c.task == nil {
		return async.Awaitable{}, ErrNotAsyncContext
	}
	return c.task.NewSleep(d), nil
}

// NewRecvAwaitable arms a recv_event<T>() without blocking, for use with
// SelectAny/JoinAll/Stream. Resolves to a simevent.Event; use AsEvent to
// recover the typed view.
func NewRecvAwaitable[T any](c Context) (async.Awaitable, error) {
	if c.task == nil {
		return async.Awaitable{}, ErrNotAsyncContext
	}
	tag := payload.TagOf[T]()
	return c.task.NewRecv(c.id, tag, false, 0), nil
}

// NewRecvAwaitableByKey arms a recv_event_by_key<T>(key) without
// blocking. A key extractor for T must already be registered.
func NewRecvAwaitableByKey[T any](c Context, key uint64) (async.Awaitable, error) {
	if c.task == nil {
		return async.Awaitable{}, ErrNotAsyncContext
	}
	tag := payload.TagOf[T]()
	if !c.sim.exec.HasKeyExtractor(tag) {
		return async.Awaitable{}, ErrNoKeyExtractor
	}
	return c.task.NewRecv(c.id, tag, true, key), nil
}

// CancelAwaitable withdraws an armed-but-unresolved Awaitable, e.g. one
// of a SelectAny's non-winning siblings the caller chose not to pass to
// SelectAny itself. It returns ErrNotAwaiting if a had already resolved
// (and been delivered) or been cancelled.
func (c Context) CancelAwaitable(a async.Awaitable) error {
	if c.task == nil {
		return ErrNotAsyncContext
	}
	return translateAsyncErr(c.task.Cancel(a))
}

// SelectAny resolves with the first of as to become ready, cancelling
// every other one before returning.
func (c Context) SelectAny(as []async.Awaitable) (int, any, error) {
	if c.task == nil {
		return -1, nil, ErrNotAsyncContext
	}
	idx, v, err := c.task.SelectAny(as)
	if err != nil {
		return idx, v, translateAsyncErr(err)
	}
	return idx, v, nil
}

// JoinAll blocks until every Awaitable in as has resolved, returning
// results indexed like as.
func (c Context) JoinAll(as []async.Awaitable) ([]any, error) {
	if c.task == nil {
		return nil, ErrNotAsyncContext
	}
	rs, err := c.task.JoinAll(as)
	if err != nil {
		return rs, translateAsyncErr(err)
	}
	return rs, nil
}

// Stream yields each Awaitable's result in the order it actually becomes
// ready, paired with its original index in as.
func (c Context) Stream(as []async.Awaitable) iter.Seq2[int, any] {
	if c.task == nil {
		return func(yield func(int, any) bool) {}
	}
	return c.task.Stream(as)
}

func translateAsyncErr(err error) error {
	switch err {
	case async.ErrCancelled:
		return ErrCancelled
	case async.ErrNotAwaiting:
		return ErrNotAwaiting
	default:
		return err
	}
}

// AsEvent recovers the typed Event[T] view of a SelectAny/JoinAll/Stream
// result that came from a recv-event Awaitable. ok is false if v did not
// originate from a recv Awaitable or its payload does not downcast to T.
func AsEvent[T any](v any) (Event[T], bool) {
	ev, ok := v.(simevent.Event)
	if !ok {
		return Event[T]{}, false
	}
	p, ok := payload.Downcast[T](ev.Payload)
	if !ok {
		return Event[T]{}, false
	}
	return Event[T]{ID: ev.ID, Time: ev.Time, Src: ev.Src, Dest: ev.Dest, Payload: p}, true
}
