// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package models

import "time"

// RunState is a step of the sync state machine. Transitions only move forward,
// except that any state may move to StateFailed.
type RunState string

const (
	StateInit             RunState = "INIT"
	StateFetchAccount     RunState = "FETCH_ACCOUNT"
	StateFetchLocations   RunState = "FETCH_LOCATIONS"
	StateProcessLocations RunState = "PROCESS_LOCATIONS"
	StateFinalize         RunState = "FINALIZE"
	StateComplete         RunState = "COMPLETE"
	StateFailed           RunState = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// RunStatus is the coarse outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// FacetCounters counts records for one facet across a run.
type FacetCounters struct {
	Fetched  int `json:"fetched"`
	Saved    int `json:"saved"`
	Inserted int `json:"inserted"`
	Modified int `json:"modified"`
	Failed   int `json:"failed"` // fetch or save failures
}

// SyncRun is the persisted record of one synchronization.
type SyncRun struct {
	ID                     string                  `json:"id"`
	AccountName            string                  `json:"account_name,omitempty"`
	BrandID                string                  `json:"brand_id,omitempty"`
	Email                  string                  `json:"email,omitempty"`
	State                  RunState                `json:"state"`
	Status                 RunStatus               `json:"status"`
	MaxConcurrentLocations int                     `json:"max_concurrent_locations"`
	LocationsTotal         int                     `json:"locations_total"`
	LocationsProcessed     int                     `json:"locations_processed"`
	LocationsSkipped       int                     `json:"locations_skipped"`
	Warnings               int                     `json:"warnings"`
	Counters               map[Facet]FacetCounters `json:"counters"`
	CompletedLocations     []string                `json:"completed_locations,omitempty"`
	Error                  string                  `json:"error,omitempty"`
	ResumedFrom            string                  `json:"resumed_from,omitempty"`
	StartedAt              time.Time               `json:"started_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
	FinishedAt             *time.Time              `json:"finished_at,omitempty"`
}

// Resumable reports whether the run can be re-entered.
func (r *SyncRun) Resumable() bool {
	return r.Status != RunCompleted
}

// EventType is the kind of a progress event.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventAccount      EventType = "account"
	EventLocations    EventType = "locations"
	EventWarning      EventType = "warning"
	EventSaveProgress EventType = "save-progress"
	EventSaveComplete EventType = "save-complete"
	EventSaveError    EventType = "save-error"
	EventHeartbeat    EventType = "heartbeat"
	EventSnapshot     EventType = "snapshot"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// SyncEvent is one message on the progress stream.
type SyncEvent struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ProgressPayload reports a phase change or a per-location start/finish.
type ProgressPayload struct {
	Phase        RunState `json:"phase"`
	Message      string   `json:"message"`
	LocationName string   `json:"location_name,omitempty"`
	LocationID   string   `json:"location_id,omitempty"`
	Status       string   `json:"status,omitempty"` // started, completed, skipped
	Processed    int      `json:"processed,omitempty"`
	Total        int      `json:"total,omitempty"`
}

// AccountPayload announces the account and Brand the run is working on.
type AccountPayload struct {
	AccountName string `json:"account_name"`
	DisplayName string `json:"display_name"`
	BrandID     string `json:"brand_id"`
	BrandSlug   string `json:"brand_slug"`
	Created     bool   `json:"created"`
}

// LocationsPayload reports discovery results.
type LocationsPayload struct {
	Count    int `json:"count"`
	Accounts int `json:"accounts"`
	Pending  int `json:"pending"` // locations left after resume filtering
}

// WarningPayload reports a non-fatal failure.
type WarningPayload struct {
	LocationName string `json:"location_name,omitempty"`
	LocationID   string `json:"location_id,omitempty"`
	Facet        Facet  `json:"facet,omitempty"`
	Class        string `json:"class"`
	Message      string `json:"message"`
}

// SavePayload is used by save-progress, save-complete and save-error.
type SavePayload struct {
	Facet      Facet  `json:"facet"`
	LocationID string `json:"location_id"`
	StoreID    string `json:"store_id"`
	Count      int    `json:"count"`
	Attempt    int    `json:"attempt,omitempty"`
	Inserted   int    `json:"inserted,omitempty"`
	Modified   int    `json:"modified,omitempty"`
	Upserted   int    `json:"upserted,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HeartbeatPayload keeps idle connections open.
type HeartbeatPayload struct {
	Elapsed string `json:"elapsed"`
}

// LocationSnapshot summarizes one processed location in the complete event.
type LocationSnapshot struct {
	LocationName string          `json:"location_name"`
	StoreID      string          `json:"store_id"`
	Title        string          `json:"title"`
	Saved        map[Facet]int   `json:"saved"`
	Failed       []Facet         `json:"failed,omitempty"`
	Insight      *InsightSummary `json:"insight,omitempty"`
}

// InsightSummary is the headline performance numbers for a snapshot.
type InsightSummary struct {
	TotalImpressions int64   `json:"total_impressions"`
	TotalActions     int64   `json:"total_actions"`
	ConversionRate   float64 `json:"conversion_rate"`
}

// SnapshotPayload carries the records saved during a run, emitted once
// before complete. Each facet holds at most the configured snapshot limit;
// Truncated lists the facets that had more.
type SnapshotPayload struct {
	Reviews   []Review              `json:"reviews"`
	Posts     []Post                `json:"posts"`
	Insights  []PerformanceSample   `json:"insights"`
	Keywords  []SearchKeywordSample `json:"keywords"`
	Truncated []Facet               `json:"truncated,omitempty"`
}

// CompletePayload carries the run totals.
type CompletePayload struct {
	BrandID            string                  `json:"brand_id"`
	LocationsTotal     int                     `json:"locations_total"`
	LocationsProcessed int                     `json:"locations_processed"`
	LocationsSkipped   int                     `json:"locations_skipped"`
	Warnings           int                     `json:"warnings"`
	Counters           map[Facet]FacetCounters `json:"counters"`
	Duration           string                  `json:"duration"`
	Snapshots          []LocationSnapshot      `json:"snapshots"`
	SnapshotsTruncated bool                    `json:"snapshots_truncated,omitempty"`
}

// ErrorPayload reports a fatal failure.
type ErrorPayload struct {
	State   RunState `json:"state"`
	Class   string   `json:"class"`
	Message string   `json:"message"`
}

// DonePayload is the terminal sentinel.
type DonePayload struct {
	Status RunStatus `json:"status"`
}
