// Package notify is the user-facing toast channel: messages queue up, one is
// visible at a time, each auto-dismisses after a fixed interval.
package notify

import (
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cimena/cinecast/internal/log"
)

// Notifier accepts fire-and-forget messages.
type Notifier interface {
	Notify(message string)
}

// Sink renders the visible notification somewhere (log, redis channel, ...).
type Sink interface {
	Show(message string)
	Clear()
}

// Queue serializes notifications through a sink. At most one message is
// visible; it clears after dismissAfter and the next pending one shows.
type Queue struct {
	sink         Sink
	dismissAfter time.Duration
	clock        clockwork.Clock
	logger       *log.Logger

	mu      gosync.Mutex
	pending []string
	visible bool
	timer   clockwork.Timer
	stopped bool
}

func NewQueue(sink Sink, dismissAfter time.Duration, clock clockwork.Clock, logger *log.Logger) *Queue {
	return &Queue{
		sink:         sink,
		dismissAfter: dismissAfter,
		clock:        clock,
		logger:       logger.Module("notify"),
	}
}

func (q *Queue) Notify(message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}

	q.pending = append(q.pending, message)
	if !q.visible {
		q.showNext()
	}
}

// Stop drops pending messages and cancels the dismiss timer. The currently
// visible message is cleared.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.stopped = true
	q.pending = nil
	if q.timer != nil {
		q.timer.Stop()
	}
	if q.visible {
		q.visible = false
		q.sink.Clear()
	}
}

// caller holds q.mu
func (q *Queue) showNext() {
	message := q.pending[0]
	q.pending = q.pending[1:]
	q.visible = true

	q.logger.Debug("Showing notification", log.String("message", message))
	q.sink.Show(message)
	q.timer = q.clock.AfterFunc(q.dismissAfter, q.dismiss)
}

func (q *Queue) dismiss() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || !q.visible {
		return
	}
	q.visible = false
	q.sink.Clear()

	if len(q.pending) > 0 {
		q.showNext()
	}
}

// LogSink renders notifications into the structured log.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger.Module("toast")}
}

func (s *LogSink) Show(message string) {
	s.logger.Info("Notification", log.String("message", message))
}

func (s *LogSink) Clear() {
	s.logger.Debug("Notification dismissed")
}

// MultiSink fans one notification out to several sinks.
type MultiSink []Sink

func (m MultiSink) Show(message string) {
	for _, s := range m {
		s.Show(message)
	}
}

func (m MultiSink) Clear() {
	for _, s := range m {
		s.Clear()
	}
}
