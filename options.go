package dslabcore

import "github.com/osukhoroslov/dslab-core/logx"

// Option configures a Simulation at construction time, following the
// teacher's SchedulerOption func(*Scheduler) idiom.
type Option func(*Simulation)

// WithSink installs the logging sink unhandled events and handler errors
// are reported through; the async runtime reports nothing to it. The
// default is logx.NopSink{}.
func WithSink(s logx.Sink) Option {
	return func(sim *Simulation) { sim.sink = s }
}

// WithCancellationPolicy stores a simulation-wide default cancellation
// policy (CancelPolicyNone if unset). No handler registration reads it:
// AddHandler always applies its own explicit policy argument, and
// simconfig registers no handlers.
func WithCancellationPolicy(p CancellationPolicy) Option {
	return func(sim *Simulation) { sim.defaultCancellationPolicy = p }
}

// WithUnhandledEventLevel sets the log level unhandled-event records are
// reported at. The default is logx.LevelWarn.
func WithUnhandledEventLevel(l logx.Level) Option {
	return func(sim *Simulation) { sim.unhandledLevel = l }
}
