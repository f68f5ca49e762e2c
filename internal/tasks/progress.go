package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/placements/internal/models"
)

// EventKind tags a progress [Event].
type EventKind int

const (
	EventProgress EventKind = iota
	EventLog
	EventDone
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventLog:
		return "log"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return ""
	}
}

// Level is the severity of a log event.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return ""
	}
}

// Event is one message from the pipeline to the presentation layer.
//
// Consumers must tolerate repeated or unchanged percentages.
type Event struct {
	Kind    EventKind
	Percent float64            // EventProgress
	Message string             // EventProgress, EventLog
	Level   Level              // EventLog
	Summary *models.RunSummary // EventDone
	Err     error              // EventFailed
	Time    time.Time
}

// ProgressEvent reports overall completion in [0, 100].
func ProgressEvent(percent float64, format string, args ...any) Event {
	return Event{Kind: EventProgress, Percent: clampPercent(percent), Message: fmt.Sprintf(format, args...), Time: time.Now()}
}

// LogEvent carries a human-readable message.
func LogEvent(level Level, format string, args ...any) Event {
	return Event{Kind: EventLog, Level: level, Message: fmt.Sprintf(format, args...), Time: time.Now()}
}

// DoneEvent marks a completed run.
func DoneEvent(summary models.RunSummary) Event {
	return Event{Kind: EventDone, Percent: 100, Summary: &summary, Time: time.Now()}
}

// FailedEvent marks a run that could not produce a result.
func FailedEvent(err error) Event {
	return Event{Kind: EventFailed, Err: err, Message: err.Error(), Time: time.Now()}
}

// Reporter is an unbounded single-direction queue from workers to one consumer.
//
// Push only appends under a mutex, so a slow consumer never stalls a worker.
type Reporter struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
	closed bool
}

// NewReporter creates an empty, open reporter.
func NewReporter() *Reporter {
	return &Reporter{notify: make(chan struct{}, 1)}
}

// Push enqueues e. A nil reporter or a closed one discards the event.
func (r *Reporter) Push(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.events = append(r.events, e)

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every pending event in push order.
func (r *Reporter) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Notify is signalled when events may be pending.
func (r *Reporter) Notify() <-chan struct{} {
	return r.notify
}

// Close stops accepting events. Pending events remain drainable.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.notify)
}

// Closed reports whether Close has been called.
func (r *Reporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Consume polls the reporter every interval (or on notification) and hands each event to fn,
// returning once the reporter is closed and drained, or ctx is done.
func (r *Reporter) Consume(ctx context.Context, interval time.Duration, fn func(Event)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, e := range r.Drain() {
			fn(e)
		}
		if r.Closed() {
			for _, e := range r.Drain() {
				fn(e)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-r.notify:
		case <-ticker.C:
		}
	}
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
