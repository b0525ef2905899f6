// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tomtom215/listingsync/internal/models"
)

func newTestRouter(svc *fakeSync) http.Handler {
	cfg := newTestConfig()
	return NewRouter(NewHandler(cfg, svc, fakeDB{}, nil), NewChiMiddlewareConfig(cfg.Security)).Setup()
}

func TestRouter_Routes(t *testing.T) {
	svc := newFakeSync()
	svc.runs["run-1"] = &models.SyncRun{ID: "run-1"}
	svc.startFn = streamEvents(models.EventDone)
	router := newTestRouter(svc)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health/ready", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sync", validBody, http.StatusOK},
		{http.MethodGet, "/api/v1/sync/runs", "", http.StatusOK},
		{http.MethodGet, "/api/v1/sync/runs/run-1", "", http.StatusOK},
		{http.MethodGet, "/api/v1/sync/runs/nope", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/sync/runs/nope/cancel", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/ws", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/sync/runs", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			checkStatus(t, rec, tt.want)
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header missing")
			}
		})
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(newFakeSync()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(newFakeSync())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://dashboard.local", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.allowed && got != "" {
				t.Errorf("Allow-Origin = %q, want none", got)
			}
		})
	}
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := newTestConfig()
	cfg.Security.RateLimitReqs = 2
	router := NewRouter(NewHandler(cfg, newFakeSync(), fakeDB{}, nil), NewChiMiddlewareConfig(cfg.Security)).Setup()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"listed", []string{"http://dashboard.local"}, "http://dashboard.local", true},
		{"unlisted", []string{"http://dashboard.local"}, "http://other.local", false},
		{"wildcard", []string{"*"}, "http://any.local", true},
		{"missing origin", []string{"*"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.Security.CORSOrigins = tt.origins
			h := NewHandler(cfg, newFakeSync(), nil, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkWebSocketOrigin(req); got != tt.want {
				t.Errorf("checkWebSocketOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
