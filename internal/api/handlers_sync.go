// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/logging"
	syncpkg "github.com/tomtom215/listingsync/internal/sync"
	"github.com/tomtom215/listingsync/internal/validation"
)

// StartSync handles POST /api/v1/sync.
//
// By default the response is a text/event-stream carrying every event of the
// run, ending after the done event. With ?async=true the run starts in the
// background and 202 returns its id; progress is then available over the
// websocket and the runs endpoints. The run is never tied to the request:
// a client that disconnects only stops receiving events.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body StartSyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&body); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}
	req := body.toStartRequest(time.Now())

	if r.URL.Query().Get("async") == "true" {
		runID, err := h.sync.StartSync(r.Context(), req, nil)
		if err != nil {
			h.writeStartError(rw, r, err)
			return
		}
		rw.Accepted(StartSyncResponse{RunID: runID})
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		rw.InternalError(err.Error())
		return
	}
	runID, err := h.sync.StartSync(r.Context(), req, sink)
	if err != nil {
		h.writeStartError(rw, r, err)
		return
	}

	log := logging.Ctx(r.Context())
	select {
	case <-sink.closed:
		log.Debug().Str("run_id", runID).Msg("Sync event stream finished")
	case <-r.Context().Done():
		sink.abandon()
		log.Info().Str("run_id", runID).Msg("Sync subscriber disconnected; run continues")
	}
}

func (h *Handler) writeStartError(rw *ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, syncpkg.ErrTooManyRuns):
		rw.TooManyRequests(err.Error())
	case errors.Is(err, syncpkg.ErrRunNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, syncpkg.ErrRunNotResumable):
		rw.Conflict(err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to start sync run")
		rw.ServiceUnavailable(err.Error())
	}
}

// ListRuns handles GET /api/v1/sync/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	runs, err := h.sync.Runs(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list sync runs")
		rw.InternalError("failed to list sync runs")
		return
	}
	rw.SuccessList(runs, len(runs))
}

// GetRun handles GET /api/v1/sync/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	run, err := h.sync.Run(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, syncpkg.ErrRunNotFound):
		rw.NotFound("sync run not found")
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to load sync run")
		rw.InternalError("failed to load sync run")
	default:
		rw.Success(run)
	}
}

// CancelRun handles POST /api/v1/sync/runs/{id}/cancel. The run still emits
// its terminal events.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if err := h.sync.Cancel(id); err != nil {
		if errors.Is(err, syncpkg.ErrRunNotFound) {
			rw.NotFound("no active sync run with that id")
			return
		}
		rw.InternalError(err.Error())
		return
	}
	logging.Ctx(r.Context()).Info().Str("run_id", id).Msg("Sync run cancel requested")
	rw.Accepted(StartSyncResponse{RunID: id})
}
