// Package progress carries stage and warning events out of the pipeline
// components. Components take a Sink and never log directly, so callers
// decide where progress goes.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies an Event.
type Kind int

const (
	StageStart Kind = iota
	StageEnd
	Warning
	Info
)

func (k Kind) String() string {
	switch k {
	case StageStart:
		return "stage-start"
	case StageEnd:
		return "stage-end"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Event is a single progress notification.
type Event struct {
	Kind      Kind
	Component string // "support", "parting", "mold", ...
	Stage     string
	Message   string
	Elapsed   time.Duration // set on StageEnd
	Err       error         // set on a failed StageEnd or on warnings
	Attrs     []slog.Attr
}

// Sink receives events. Implementations must be safe for concurrent use;
// the support and mold branches emit from different goroutines.
type Sink interface {
	Emit(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Start emits a StageStart event and returns a function that emits the
// matching StageEnd with the elapsed time and the error, if any.
func Start(s Sink, component, stage string, attrs ...slog.Attr) func(err error) {
	s = OrNop(s)
	begin := time.Now()
	s.Emit(Event{Kind: StageStart, Component: component, Stage: stage, Attrs: attrs})
	return func(err error) {
		s.Emit(Event{
			Kind:      StageEnd,
			Component: component,
			Stage:     stage,
			Elapsed:   time.Since(begin),
			Err:       err,
			Attrs:     attrs,
		})
	}
}

// Warn emits a Warning event.
func Warn(s Sink, component, message string, err error, attrs ...slog.Attr) {
	OrNop(s).Emit(Event{Kind: Warning, Component: component, Message: message, Err: err, Attrs: attrs})
}

// Note emits an Info event.
func Note(s Sink, component, message string, attrs ...slog.Attr) {
	OrNop(s).Emit(Event{Kind: Info, Component: component, Message: message, Attrs: attrs})
}

// SlogSink writes events to a slog.Logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlog returns a sink that logs through logger, or slog.Default when
// logger is nil.
func NewSlog(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit logs stage starts at debug level, stage ends and notes at info
// (error when the stage failed) and warnings at warn.
func (s *SlogSink) Emit(e Event) {
	attrs := make([]slog.Attr, 0, len(e.Attrs)+4)
	attrs = append(attrs, slog.String("component", e.Component))
	if e.Stage != "" {
		attrs = append(attrs, slog.String("stage", e.Stage))
	}
	attrs = append(attrs, e.Attrs...)

	level := slog.LevelInfo
	msg := e.Message
	switch e.Kind {
	case StageStart:
		level = slog.LevelDebug
		if msg == "" {
			msg = "stage started"
		}
	case StageEnd:
		attrs = append(attrs, slog.Duration("elapsed", e.Elapsed))
		if msg == "" {
			msg = "stage finished"
		}
		if e.Err != nil {
			level = slog.LevelError
			msg = "stage failed"
		}
	case Warning:
		level = slog.LevelWarn
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	s.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Warnings returns the recorded Warning events.
func (r *Recorder) Warnings() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == Warning {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans events out to several sinks.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		OrNop(s).Emit(e)
	}
}
