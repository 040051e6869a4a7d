package dslabcore

import (
	"github.com/osukhoroslov/dslab-core/payload"
	"github.com/osukhoroslov/dslab-core/simevent"
)

// Handler is the synchronous delivery target for a component: the driver
// calls Handle for every event addressed to a component with a
// registered handler, and async promises of that component never see
// the event.
type Handler interface {
	Handle(c Context, ev simevent.Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(c Context, ev simevent.Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(c Context, ev simevent.Event) error { return f(c, ev) }

// HandlerTable implements Handler as a dispatch table keyed by payload
// type tag, the "standard idiom" of indexing by runtime type tag and
// handing the caller an already-downcast payload.
type HandlerTable struct {
	byTag map[payload.Tag]func(c Context, ev simevent.Event) error
}

// NewHandlerTable constructs an empty HandlerTable.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{byTag: make(map[payload.Tag]func(c Context, ev simevent.Event) error)}
}

// On registers fn for events whose payload type tag matches T, returning
// the table so calls can be chained.
func On[T any](t *HandlerTable, fn func(c Context, ev simevent.Event, p T) error) *HandlerTable {
	tag := payload.TagOf[T]()
	t.byTag[tag] = func(c Context, ev simevent.Event) error {
		p, ok := payload.Downcast[T](ev.Payload)
		if !ok {
			panicInvariant("handler table payload downcast failed for a matched tag")
		}
		return fn(c, ev, p)
	}
	return t
}

// Handle implements Handler by dispatching on ev.Tag. An event whose tag
// has no registered entry is a no-op success: the driver neither offers
// it to async promises nor logs it as unhandled.
func (t *HandlerTable) Handle(c Context, ev simevent.Event) error {
	fn, ok := t.byTag[ev.Tag]
	if !ok {
		return nil
	}
	return fn(c, ev)
}

// CancellationPolicy governs what happens to a component's queued events
// when its handler is removed or replaced.
type CancellationPolicy int

const (
	// CancelPolicyNone drops no queued events.
	CancelPolicyNone CancellationPolicy = iota
	// CancelPolicyAllFromComponent drops every queued event destined for
	// the component, regardless of source.
	CancelPolicyAllFromComponent
	// CancelPolicySrcOnly drops queued events destined for the component
	// whose source is the component itself.
	CancelPolicySrcOnly
)

type handlerBinding struct {
	handler Handler
	policy  CancellationPolicy
}
