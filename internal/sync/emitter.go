// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
emitter.go - Progress Event Emitter

The emitter is the single writer of a run's event stream. Emit is called
from many goroutines (workers, upserter, heartbeat); events are queued and a
single writer goroutine delivers them in order to:

  - the Sink: the one subscriber that started the run (an SSE response)
  - Observers: process-wide fan-out (event bus, websocket hub)

Subscriber loss never affects the run. The first failed Sink write detaches
the sink; later events still reach observers. When the queue is full,
progress-class events are dropped and counted; terminal events (complete,
error, done) wait up to terminalSendTimeout for room.

Close stops the heartbeat, drains the queue and closes the sink. It is safe
to call more than once and from any goroutine; only the first call acts.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

const (
	defaultEventBuffer  = 256
	terminalSendTimeout = 5 * time.Second
	drainTimeout        = 10 * time.Second
)

// Sink receives a run's events. Send is only ever called from one goroutine.
// Close is called exactly once, after the last Send.
type Sink interface {
	Send(ev models.SyncEvent) error
	Close() error
}

// Observer sees every event of every run. Observe must not block for long.
type Observer interface {
	Observe(ev models.SyncEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev models.SyncEvent)

// Observe calls f.
func (f ObserverFunc) Observe(ev models.SyncEvent) { f(ev) }

// Emitter is a run's event stream.
type Emitter struct {
	runID     string
	sink      Sink
	observers []Observer
	now       func() time.Time
	started   time.Time

	mu       sync.RWMutex // guards queue against close while sending
	queue    chan models.SyncEvent
	closed   atomic.Bool
	detached atomic.Bool
	doneSent atomic.Bool

	writerDone chan struct{}
	hbStop     chan struct{}
	hbDone     chan struct{}
	closeOnce  sync.Once
}

// NewEmitter starts the writer goroutine. A nil sink discards events
// (observers still see them).
func NewEmitter(runID string, sink Sink, buffer int, observers ...Observer) *Emitter {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	e := &Emitter{
		runID:      runID,
		sink:       sink,
		observers:  observers,
		now:        time.Now,
		queue:      make(chan models.SyncEvent, buffer),
		writerDone: make(chan struct{}),
	}
	e.started = e.now()
	if sink == nil {
		e.detached.Store(true)
	}
	go e.writer()
	return e
}

// Emit queues an event. It never blocks on the subscriber and is a no-op
// after Close. A second done event is ignored.
func (e *Emitter) Emit(t models.EventType, payload interface{}) {
	if e.closed.Load() {
		return
	}
	if t == models.EventDone && !e.doneSent.CompareAndSwap(false, true) {
		return
	}
	ev := models.SyncEvent{Type: t, Timestamp: e.now().UTC(), RunID: e.runID, Payload: payload}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return
	}

	select {
	case e.queue <- ev:
		metrics.SyncEvents.WithLabelValues(string(t)).Inc()
		return
	default:
	}

	if !mustDeliver(t) {
		metrics.SyncEventsDropped.Inc()
		return
	}
	timer := time.NewTimer(terminalSendTimeout)
	defer timer.Stop()
	select {
	case e.queue <- ev:
		metrics.SyncEvents.WithLabelValues(string(t)).Inc()
	case <-timer.C:
		metrics.SyncEventsDropped.Inc()
		logging.Warn().Str("run_id", e.runID).Str("type", string(t)).Msg("Event queue full, final event dropped")
	}
}

// mustDeliver reports whether a full queue should be waited on rather than
// dropping the event.
func mustDeliver(t models.EventType) bool {
	switch t {
	case models.EventSnapshot, models.EventComplete, models.EventError, models.EventDone:
		return true
	}
	return false
}

// StartHeartbeat emits a heartbeat every interval until Close.
func (e *Emitter) StartHeartbeat(interval time.Duration) {
	if interval <= 0 || e.closed.Load() {
		return
	}
	e.mu.Lock()
	if e.hbStop != nil {
		e.mu.Unlock()
		return
	}
	e.hbStop = make(chan struct{})
	e.hbDone = make(chan struct{})
	stop, done := e.hbStop, e.hbDone
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Emit(models.EventHeartbeat, models.HeartbeatPayload{
					Elapsed: e.now().Sub(e.started).Round(time.Second).String(),
				})
			case <-stop:
				return
			}
		}
	}()
}

// Detached reports whether the subscriber has gone away.
func (e *Emitter) Detached() bool {
	return e.detached.Load()
}

// Close stops the heartbeat, flushes queued events and closes the sink.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		stop, hbDone := e.hbStop, e.hbDone
		e.mu.Unlock()
		if stop != nil {
			close(stop)
			<-hbDone
		}

		e.mu.Lock()
		e.closed.Store(true)
		close(e.queue)
		e.mu.Unlock()

		select {
		case <-e.writerDone:
		case <-time.After(drainTimeout):
			logging.Warn().Str("run_id", e.runID).Msg("Event writer did not drain before close")
		}

		if e.sink != nil {
			if err := e.sink.Close(); err != nil {
				logging.Debug().Err(err).Str("run_id", e.runID).Msg("Closing event sink failed")
			}
		}
	})
}

func (e *Emitter) writer() {
	defer close(e.writerDone)
	for ev := range e.queue {
		for _, o := range e.observers {
			e.notify(o, ev)
		}
		if e.detached.Load() {
			continue
		}
		if err := e.sink.Send(ev); err != nil {
			e.detached.Store(true)
			logging.Debug().Err(err).Str("run_id", e.runID).Msg("Subscriber gone, continuing without it")
		}
	}
}

func (e *Emitter) notify(o Observer, ev models.SyncEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("run_id", e.runID).Msg("Event observer panicked")
		}
	}()
	o.Observe(ev)
}
