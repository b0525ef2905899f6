// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/models"
)

// sseSink writes a run's events to an HTTP response as server-sent events.
// Headers are written on the first event, so a rejected StartSync can still
// answer with a JSON error.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	started bool
	gone    bool
	seq     int

	closed chan struct{}
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &sseSink{w: w, flusher: flusher, closed: make(chan struct{})}, nil
}

// Send writes one event. It returns ErrStreamClosed once the client is gone,
// which detaches the subscriber from the run.
func (s *sseSink) Send(ev models.SyncEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return ErrStreamClosed
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, ev.Type, data); err != nil {
		s.gone = true
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	s.flusher.Flush()
	return nil
}

// Close ends the stream and rejects later writes. The handler returns once
// Close has run. Repeated calls are no-ops.
func (s *sseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone = true
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// abandon stops all further writes; the handler is about to return.
func (s *sseSink) abandon() {
	s.mu.Lock()
	s.gone = true
	s.mu.Unlock()
}
