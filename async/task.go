// Package async implements the cooperative, single-threaded task runtime
// layered on top of the event kernel: sleep timers, keyed event promises,
// and the combinators (select/join/stream) built over them.
//
// There is no native coroutine primitive in Go, so each task runs on its
// own goroutine but is given the CPU only in exclusive, driver-granted
// turns: a task runs from the moment the executor delivers a wake value
// until it hits its next suspend point (or returns), at which point it
// hands control back and blocks. The driver never starts a second turn
// until the first one has handed back, so despite the real goroutines
// underneath, at most one logical flow ever touches simulation state at
// any instant — the same guarantee a literal single-threaded executor
// would give, and the reason none of this package's shared state is
// guarded by a mutex.
package async

import (
	"github.com/google/uuid"
)

// TaskID is a stable handle to a spawned task. It stays valid (and
// distinguishable from a reused slot) for the task's whole lifetime.
type TaskID struct {
	seq uint64
	uid uuid.UUID
}

// String renders a TaskID for logs and error messages.
func (t TaskID) String() string {
	return t.uid.String()
}

// Task is an outstanding suspended logical flow owned by one component.
type Task struct {
	id          TaskID
	componentID int

	cancelled bool
	done      bool
	parked    bool
	runErr    error

	startGate    chan struct{}
	cancelSignal chan struct{}
	turnDone     chan struct{}
}

// TaskCtx is the handle passed to a task's body; it exposes suspension
// primitives bound to the owning task and executor.
type TaskCtx struct {
	task *Task
	exec *Executor
}

// ID returns the owning task's stable identifier.
func (tc *TaskCtx) ID() TaskID { return tc.task.id }

// ComponentID returns the component that owns this task.
func (tc *TaskCtx) ComponentID() int { return tc.task.componentID }

func newTask(seq uint64, componentID int) *Task {
	return &Task{
		id:           TaskID{seq: seq, uid: uuid.New()},
		componentID: componentID,
		startGate:    make(chan struct{}),
		cancelSignal: make(chan struct{}),
		turnDone:     make(chan struct{}),
	}
}

func runTask(t *Task, exec *Executor, fn func(*TaskCtx) error) {
	<-t.startGate
	if t.cancelled {
		t.done = true
		t.turnDone <- struct{}{}
		return
	}
	tc := &TaskCtx{task: t, exec: exec}
	err := fn(tc)
	t.done = true
	t.runErr = err
	t.turnDone <- struct{}{}
}
