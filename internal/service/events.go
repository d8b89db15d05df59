package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/models"
)

// EventSink receives every event of a run as it is emitted.
// Implementations must not block; a slow sink slows the whole run.
type EventSink interface {
	Emit(e models.Event)
}

// EventSinkFunc adapts a plain function to EventSink
type EventSinkFunc func(e models.Event)

func (f EventSinkFunc) Emit(e models.Event) { f(e) }

// LogSink writes events to a structured logger
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (s *LogSink) Emit(e models.Event) {
	attrs := []any{"run_id", e.RunID, "phase", e.Phase}
	if e.Object != "" {
		attrs = append(attrs, "object", e.Object)
	}
	if e.ExternalID != 0 {
		attrs = append(attrs, "external_id", e.ExternalID)
	}
	if e.TargetID != "" {
		attrs = append(attrs, "target_id", e.TargetID)
	}
	if e.Action != "" {
		attrs = append(attrs, "action", e.Action)
	}
	s.logger.Log(context.Background(), slogLevel(e.Level), e.Message, attrs...)
}

func slogLevel(l models.Level) slog.Level {
	switch l {
	case models.LevelError:
		return slog.LevelError
	case models.LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// eventLog is the append-only log of one run. Order is completion order.
type eventLog struct {
	mu     sync.Mutex
	runID  string
	events []models.Event
	sinks  []EventSink
	logger *slog.Logger
}

func newEventLog(runID string, logger *slog.Logger, sinks ...EventSink) *eventLog {
	return &eventLog{runID: runID, sinks: sinks, logger: logger}
}

// emit never fails: a panicking sink is logged and skipped
func (l *eventLog) emit(e models.Event) {
	e.RunID = l.runID
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()

	for _, s := range l.sinks {
		l.deliver(s, e)
	}
}

func (l *eventLog) deliver(s EventSink, e models.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event sink panicked", "panic", r)
		}
	}()
	s.Emit(e)
}

func (l *eventLog) info(phase models.Phase, msg string) {
	l.emit(models.Event{Level: models.LevelInfo, Phase: phase, Message: msg})
}

func (l *eventLog) snapshot() []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Event, len(l.events))
	copy(out, l.events)
	return out
}
