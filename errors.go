package dslabcore

import (
	"errors"
	"fmt"
)

// Sentinel errors for every programmer-mistake kind the core detects.
// Some are returned as is; others (ErrDuplicateName, ErrUnknownComponent)
// are wrapped with %w at their call sites to name the offending value.
// Either way callers match them with errors.Is.
var (
	ErrDuplicateName        = errors.New("dslab-core: component name already registered")
	ErrUnknownComponent     = errors.New("dslab-core: unknown component id or name")
	ErrInvalidDelay         = errors.New("dslab-core: delay must be non-negative and not NaN")
	ErrOrderViolation       = errors.New("dslab-core: emit_ordered stamp did not strictly increase")
	ErrNoKeyExtractor       = errors.New("dslab-core: no key extractor registered for type")
	ErrTaskAlreadyCancelled = errors.New("dslab-core: task already cancelled")
	ErrCancelled            = errors.New("dslab-core: future observed cancellation")
	ErrEmptyRange           = errors.New("dslab-core: gen_range requires lo < hi")

	// ErrNotAwaiting is returned by CancelAwaitable when the Awaitable no
	// longer corresponds to a live registration: it already resolved and
	// was delivered, or was already cancelled.
	ErrNotAwaiting = errors.New("dslab-core: awaitable is not pending")

	// ErrNotAsyncContext is returned by the suspending Context operations
	// (Sleep, RecvEvent, RecvEventByKey) when called from a context handed
	// to a synchronous Handler rather than to a spawned task. It is not
	// one of spec's named error kinds; it exists because Go has no type-
	// level way to forbid calling a suspend point outside a task body.
	ErrNotAsyncContext = errors.New("dslab-core: suspending operation called outside a task")
)

// InvariantError reports a violated internal invariant: a bug in the
// core itself, never a recoverable programmer mistake. The core panics
// with one rather than returning it, matching the "fatal, indicates a
// bug in the core" propagation policy.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("dslab-core: invariant violated: %s", e.Msg)
}

func panicInvariant(msg string) {
	panic(&InvariantError{Msg: msg})
}
