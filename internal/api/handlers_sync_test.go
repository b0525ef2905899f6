// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/listingsync/internal/models"
	syncpkg "github.com/tomtom215/listingsync/internal/sync"
)

const validBody = `{"access_token":"tok","email":"owner@example.com","max_concurrent_locations":3}`

func postSync(h *Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.StartSync(rec, req)
	return rec
}

// streamEvents replays events into the sink from another goroutine, the way
// the emitter's writer does, then closes it.
func streamEvents(events ...models.EventType) func(context.Context, syncpkg.StartRequest, syncpkg.Sink) (string, error) {
	return func(_ context.Context, _ syncpkg.StartRequest, sink syncpkg.Sink) (string, error) {
		go func() {
			for _, typ := range events {
				if err := sink.Send(models.SyncEvent{Type: typ, Timestamp: time.Now(), RunID: "run-1"}); err != nil {
					break
				}
			}
			_ = sink.Close()
		}()
		return "run-1", nil
	}
}

func TestStartSync_StreamsEvents(t *testing.T) {
	svc := newFakeSync()
	svc.startFn = streamEvents(models.EventProgress, models.EventAccount, models.EventComplete, models.EventDone)

	rec := postSync(newTestHandler(svc), "/api/v1/sync", validBody)
	checkStatus(t, rec, http.StatusOK)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	last := -1
	for i, typ := range []string{"progress", "account", "complete", "done"} {
		idx := strings.Index(body, fmt.Sprintf("id: %d\nevent: %s\ndata: {", i+1, typ))
		if idx < 0 {
			t.Fatalf("event %q missing from stream:\n%s", typ, body)
		}
		if idx < last {
			t.Errorf("event %q out of order", typ)
		}
		last = idx
	}
	if !strings.Contains(body, `"run_id":"run-1"`) {
		t.Errorf("events should carry the run id:\n%s", body)
	}
}

func TestStartSync_MapsRequest(t *testing.T) {
	svc := newFakeSync()
	svc.startFn = streamEvents(models.EventDone)
	body := `{"access_token":"tok","refresh_token":"ref","expires_in":60,"email":"a@b.co",` +
		`"account_name":"accounts/42","max_concurrent_locations":7,"resume_run_id":"0b6f3c2e-8d1a-4f5b-9c7e-2a4d6e8f0b1c"}`

	before := time.Now()
	checkStatus(t, postSync(newTestHandler(svc), "/api/v1/sync", body), http.StatusOK)

	req := svc.lastRequest(t)
	if req.Credentials.AccessToken != "tok" || req.Credentials.RefreshToken != "ref" || req.Credentials.Email != "a@b.co" {
		t.Errorf("credentials = %+v", req.Credentials)
	}
	if req.Credentials.Expiry.Before(before.Add(59 * time.Second)) {
		t.Errorf("expiry = %v, want about a minute from now", req.Credentials.Expiry)
	}
	if req.AccountName != "accounts/42" || req.MaxConcurrentLocations != 7 || req.ResumeRunID != "0b6f3c2e-8d1a-4f5b-9c7e-2a4d6e8f0b1c" {
		t.Errorf("request = %+v", req)
	}
}

func TestStartSync_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"access_token":`, ErrCodeBadRequest},
		{"unknown field", `{"access_token":"t","colour":"red"}`, ErrCodeBadRequest},
		{"missing token", `{"email":"a@b.co"}`, ErrCodeValidationFailed},
		{"bad email", `{"access_token":"t","email":"nope"}`, ErrCodeValidationFailed},
		{"bad account", `{"access_token":"t","account_name":"locations/1"}`, ErrCodeValidationFailed},
		{"zero concurrency is default", `{"access_token":"t","max_concurrent_locations":0}`, ""},
		{"concurrency too high", `{"access_token":"t","max_concurrent_locations":500}`, ErrCodeValidationFailed},
		{"resume id not a uuid", `{"access_token":"t","resume_run_id":"old"}`, ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeSync()
			svc.startFn = streamEvents(models.EventDone)
			rec := postSync(newTestHandler(svc), "/api/v1/sync", tt.body)
			if tt.code == "" {
				checkStatus(t, rec, http.StatusOK)
				return
			}
			checkStatus(t, rec, http.StatusBadRequest)
			resp := decodeResponse(t, rec)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("response = %+v, want error code %s", resp, tt.code)
			}
			if len(svc.requests) != 0 {
				t.Error("StartSync should not be called for an invalid body")
			}
		})
	}
}

func TestStartSync_StartErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"too many runs", syncpkg.ErrTooManyRuns, http.StatusTooManyRequests},
		{"unknown resume id", fmt.Errorf("resume x: %w", syncpkg.ErrRunNotFound), http.StatusNotFound},
		{"not resumable", syncpkg.ErrRunNotResumable, http.StatusConflict},
		{"manager stopped", errors.New("sync manager stopped"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		for _, target := range []string{"/api/v1/sync", "/api/v1/sync?async=true"} {
			t.Run(tt.name+" "+target, func(t *testing.T) {
				svc := newFakeSync()
				svc.startFn = func(context.Context, syncpkg.StartRequest, syncpkg.Sink) (string, error) {
					return "", tt.err
				}
				rec := postSync(newTestHandler(svc), target, validBody)
				checkStatus(t, rec, tt.want)
				if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
					t.Errorf("Content-Type = %q, want JSON error", ct)
				}
			})
		}
	}
}

func TestStartSync_Async(t *testing.T) {
	svc := newFakeSync()
	var gotSink syncpkg.Sink = &sseSink{}
	svc.startFn = func(_ context.Context, _ syncpkg.StartRequest, sink syncpkg.Sink) (string, error) {
		gotSink = sink
		return "run-async", nil
	}

	rec := postSync(newTestHandler(svc), "/api/v1/sync?async=true", validBody)
	checkStatus(t, rec, http.StatusAccepted)
	if gotSink != nil {
		t.Error("async start should not attach a sink")
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["run_id"] != "run-async" {
		t.Errorf("data = %#v, want run_id run-async", resp.Data)
	}
}

func TestStartSync_SubscriberDisconnect(t *testing.T) {
	svc := newFakeSync()
	var captured syncpkg.Sink
	ctx, cancel := context.WithCancel(context.Background())
	svc.startFn = func(_ context.Context, _ syncpkg.StartRequest, sink syncpkg.Sink) (string, error) {
		captured = sink
		if err := sink.Send(models.SyncEvent{Type: models.EventProgress, RunID: "run-1"}); err != nil {
			t.Errorf("first Send() error = %v", err)
		}
		cancel() // the client goes away
		return "run-1", nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(validBody)).WithContext(ctx)
	rec := httptest.NewRecorder()
	newTestHandler(svc).StartSync(rec, req)

	err := captured.Send(models.SyncEvent{Type: models.EventDone, RunID: "run-1"})
	if !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Send() after disconnect error = %v, want ErrStreamClosed", err)
	}
	if strings.Contains(rec.Body.String(), "event: done") {
		t.Error("nothing should be written after the handler returned")
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListAndGetRuns(t *testing.T) {
	svc := newFakeSync()
	svc.runs["run-1"] = &models.SyncRun{ID: "run-1", Status: models.RunCompleted}
	h := newTestHandler(svc)

	rec := httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil))
	checkStatus(t, rec, http.StatusOK)
	resp := decodeResponse(t, rec)
	if resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != 1 {
		t.Errorf("meta = %+v, want count 1", resp.Meta)
	}

	tests := []struct {
		id   string
		want int
	}{
		{"run-1", http.StatusOK},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs/"+tt.id, nil), "id", tt.id)
			h.GetRun(rec, req)
			checkStatus(t, rec, tt.want)
		})
	}
}

func TestCancelRun(t *testing.T) {
	svc := newFakeSync()
	svc.active["run-1"] = true
	h := newTestHandler(svc)

	tests := []struct {
		id   string
		want int
	}{
		{"run-1", http.StatusAccepted},
		{"finished", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/v1/sync/runs/"+tt.id+"/cancel", nil), "id", tt.id)
			h.CancelRun(rec, req)
			checkStatus(t, rec, tt.want)
		})
	}
	if len(svc.canceled) != 1 || svc.canceled[0] != "run-1" {
		t.Errorf("canceled = %v, want [run-1]", svc.canceled)
	}
}
