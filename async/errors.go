package async

import "errors"

// ErrCancelled is returned from a suspend point when the awaiting task (or
// the specific wait it was parked on) was cancelled before resolving.
var ErrCancelled = errors.New("async: future observed cancellation")

// ErrTaskAlreadyCancelled is returned by CancelTask for a task that has
// already finished or already been cancelled.
var ErrTaskAlreadyCancelled = errors.New("async: task already cancelled")

// ErrNotAwaiting is returned when a wait-handle no longer corresponds to a
// live registration (already fired or already cancelled).
var ErrNotAwaiting = errors.New("async: wait handle is not live")
