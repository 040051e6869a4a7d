// Package logx provides the pluggable logging sink the simulation core
// reports unhandled events and handler errors through. The shape
// follows the modular framework's own Logger interface (structured,
// variadic key-value pairs) so it composes with slog, zap, or logrus
// adapters without the core importing any of them directly.
package logx

import (
	"fmt"
	"log/slog"
)

// Level identifies the severity of a structured record.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String renders the level the way structured logging libraries expect
// it in a "level" field.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Sink receives structured records from the kernel: level, simulated
// time, the emitting component's name, a message, and arbitrary
// key-value fields. It is the only side effect the core performs beyond
// its own deterministic state mutations, and it must never be required
// for a simulation to run correctly.
type Sink interface {
	OnRecord(level Level, simTime float64, component string, msg string, fields ...any)
}

// NopSink discards every record. It is the default sink so that a
// Simulation constructed without options has zero logging overhead.
type NopSink struct{}

// OnRecord implements Sink by doing nothing.
func (NopSink) OnRecord(Level, float64, string, string, ...any) {}

// SlogSink adapts Sink onto the standard library's structured logger,
// the integration path the teacher's own Logger doc comments describe.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger (or slog.Default() if nil) as a Sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// OnRecord implements Sink, always including "sim_time" and "component"
// fields ahead of the caller-supplied ones.
func (s *SlogSink) OnRecord(level Level, simTime float64, component string, msg string, fields ...any) {
	args := make([]any, 0, len(fields)+4)
	args = append(args, "sim_time", simTime, "component", component)
	args = append(args, fields...)

	switch level {
	case LevelDebug:
		s.logger.Debug(msg, args...)
	case LevelInfo:
		s.logger.Info(msg, args...)
	case LevelWarn:
		s.logger.Warn(msg, args...)
	case LevelError:
		s.logger.Error(msg, args...)
	default:
		s.logger.Info(msg, args...)
	}
}

// RecordingSink buffers every record it receives, for tests that assert
// on what the core logged (e.g. scenario (f): exactly one unhandled-event
// warning).
type RecordingSink struct {
	Records []Record
}

// Record is one structured log entry captured by RecordingSink.
type Record struct {
	Level     Level
	SimTime   float64
	Component string
	Message   string
	Fields    []any
}

// OnRecord implements Sink by appending to Records.
func (s *RecordingSink) OnRecord(level Level, simTime float64, component string, msg string, fields ...any) {
	s.Records = append(s.Records, Record{
		Level:     level,
		SimTime:   simTime,
		Component: component,
		Message:   msg,
		Fields:    append([]any(nil), fields...),
	})
}
