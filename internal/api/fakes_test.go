// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/models"
	syncpkg "github.com/tomtom215/listingsync/internal/sync"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

// fakeSync implements SyncService with function fields.
type fakeSync struct {
	mu       sync.Mutex
	startFn  func(ctx context.Context, req syncpkg.StartRequest, sink syncpkg.Sink) (string, error)
	requests []syncpkg.StartRequest
	runs     map[string]*models.SyncRun
	active   map[string]bool
	canceled []string
}

func newFakeSync() *fakeSync {
	return &fakeSync{runs: map[string]*models.SyncRun{}, active: map[string]bool{}}
}

func (f *fakeSync) StartSync(ctx context.Context, req syncpkg.StartRequest, sink syncpkg.Sink) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.startFn
	f.mu.Unlock()
	if fn == nil {
		return "run-1", nil
	}
	return fn(ctx, req, sink)
}

func (f *fakeSync) Run(_ context.Context, runID string) (*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, syncpkg.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeSync) Runs(context.Context) ([]*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.SyncRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSync) Cancel(runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[runID] {
		return syncpkg.ErrRunNotFound
	}
	f.canceled = append(f.canceled, runID)
	return nil
}

func (f *fakeSync) ActiveRuns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

func (f *fakeSync) lastRequest(t *testing.T) syncpkg.StartRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("StartSync was not called")
	}
	return f.requests[len(f.requests)-1]
}

type fakeDB struct {
	err     error
	version int
}

func (p fakeDB) Ping(context.Context) error { return p.err }

func (p fakeDB) SchemaVersion(context.Context) (int, error) { return p.version, p.err }

var errDBDown = errors.New("database is down")

func newTestConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			CORSOrigins:   []string{"http://dashboard.local"},
			RateLimitReqs: 1000,
		},
	}
}

func newTestHandler(svc SyncService) *Handler {
	return NewHandler(newTestConfig(), svc, fakeDB{}, nil)
}

// decodeResponse parses an APIResponse envelope.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func checkStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
