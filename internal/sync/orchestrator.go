// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
orchestrator.go - Sync Run State Machine

One Orchestrator drives one run through

	INIT -> FETCH_ACCOUNT -> FETCH_LOCATIONS -> PROCESS_LOCATIONS -> FINALIZE -> COMPLETE

or to FAILED from any state. Transitions only move forward.

  - INIT: start the heartbeat, build the fetcher from the caller's credentials
  - FETCH_ACCOUNT: list accounts, resolve the primary account's Brand
  - FETCH_LOCATIONS: union the locations of every visible account; one
    account failing is a warning, all failing is fatal
  - PROCESS_LOCATIONS: worker pool over the pending locations
  - FINALIZE: stamp the Brand, emit complete with per-location snapshots

Whatever happens, Run emits exactly one done event and closes the emitter
exactly once before returning. Panics are recovered into FAILED.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

// Fetcher reads listing data for one set of credentials.
// *listing.Client and *listing.CachingSource implement it.
type Fetcher interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListLocations(ctx context.Context, accountName string) ([]models.Location, error)
	FetchReviews(ctx context.Context, ref models.LocationRef) ([]models.Review, error)
	FetchPosts(ctx context.Context, ref models.LocationRef) ([]models.Post, error)
	FetchInsights(ctx context.Context, ref models.LocationRef, start, end time.Time) (*models.PerformanceSample, error)
	FetchKeywords(ctx context.Context, ref models.LocationRef, fromYear, fromMonth, toYear, toMonth int) ([]models.SearchKeywordSample, error)
}

// FetcherFactory builds a Fetcher from caller credentials.
type FetcherFactory func(ctx context.Context, creds models.Credentials) (Fetcher, error)

// RunStore persists SyncRun records for inspection and resume.
// *checkpoint.Store implements it.
type RunStore interface {
	Save(ctx context.Context, run *models.SyncRun) error
	MarkLocationComplete(ctx context.Context, runID, locationName string) error
}

// Settings tunes a run.
type Settings struct {
	MaxConcurrentLocations int
	FetchTimeout           time.Duration
	PersistTimeout         time.Duration
	HeartbeatInterval      time.Duration
	InsightsDays           int
	KeywordMonths          int
	SnapshotLimit          int
	EventBuffer            int

	// Now is the clock for reporting windows and timestamps; nil is time.Now.
	Now func() time.Time
}

// SettingsFromConfig maps the sync configuration section onto Settings.
func SettingsFromConfig(cfg config.SyncConfig) Settings {
	return Settings{
		MaxConcurrentLocations: cfg.MaxConcurrentLocations,
		FetchTimeout:           cfg.FetchTimeout,
		PersistTimeout:         cfg.PersistTimeout,
		HeartbeatInterval:      cfg.HeartbeatInterval,
		InsightsDays:           cfg.InsightsDays,
		KeywordMonths:          cfg.KeywordMonths,
		SnapshotLimit:          cfg.SnapshotLimit,
		EventBuffer:            cfg.EventBuffer,
	}
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Dependencies are the collaborators shared by every run.
type Dependencies struct {
	Fetchers FetcherFactory
	Entities EntityStore
	Facets   FacetStore
	Runs     RunStore // optional
	Policy   RetryPolicy
	Settings Settings
}

// RunRequest is what a caller supplies to start a run.
type RunRequest struct {
	Credentials models.Credentials
	// AccountName restricts the run to one account ("accounts/X").
	AccountName            string
	MaxConcurrentLocations int
	// Resume, when set, is the earlier run whose completed locations are skipped.
	Resume *models.SyncRun
}

var stateOrder = map[models.RunState]int{
	models.StateInit:             0,
	models.StateFetchAccount:     1,
	models.StateFetchLocations:   2,
	models.StateProcessLocations: 3,
	models.StateFinalize:         4,
	models.StateComplete:         5,
}

// Orchestrator runs one sync.
type Orchestrator struct {
	deps     Dependencies
	req      RunRequest
	emitter  *Emitter
	resolver *Resolver
	upserter *Upserter
	stats    *runStats
	records  *recordSet

	mu  sync.Mutex // guards run
	run *models.SyncRun

	fetcher   Fetcher
	brand     *models.Brand
	accounts  []models.Account
	pending   []models.Location
	startedAt time.Time

	insightStart, insightEnd time.Time
	kwFromY, kwFromM         int
	kwToY, kwToM             int
}

// NewOrchestrator prepares run runID. The emitter is owned by the
// orchestrator from here on: Run closes it.
func NewOrchestrator(runID string, req RunRequest, deps Dependencies, emitter *Emitter) *Orchestrator {
	if req.MaxConcurrentLocations <= 0 {
		req.MaxConcurrentLocations = deps.Settings.MaxConcurrentLocations
	}
	if req.MaxConcurrentLocations <= 0 {
		req.MaxConcurrentLocations = DefaultMaxConcurrentLocations
	}

	now := deps.Settings.now().UTC()
	run := &models.SyncRun{
		ID:                     runID,
		AccountName:            req.AccountName,
		Email:                  req.Credentials.Email,
		State:                  models.StateInit,
		Status:                 models.RunRunning,
		MaxConcurrentLocations: req.MaxConcurrentLocations,
		StartedAt:              now,
		UpdatedAt:              now,
	}
	if req.Resume != nil {
		run.ResumedFrom = req.Resume.ID
		if run.AccountName == "" {
			run.AccountName = req.Resume.AccountName
			req.AccountName = req.Resume.AccountName
		}
	}

	o := &Orchestrator{
		deps:      deps,
		req:       req,
		emitter:   emitter,
		resolver:  NewResolver(deps.Entities),
		upserter:  NewUpserter(deps.Facets, deps.Policy, emitter, deps.Settings.PersistTimeout),
		stats:     newRunStats(req.Resume),
		records:   newRecordSet(deps.Settings.SnapshotLimit),
		run:       run,
		startedAt: now,
	}
	o.resolver.now = deps.Settings.now
	o.insightStart, o.insightEnd = insightWindow(now, deps.Settings.InsightsDays)
	o.kwFromY, o.kwFromM, o.kwToY, o.kwToM = keywordWindow(now, deps.Settings.KeywordMonths)
	return o
}

// ID returns the run id.
func (o *Orchestrator) ID() string {
	return o.run.ID
}

// Snapshot returns a copy of the run with current counters.
func (o *Orchestrator) Snapshot() *models.SyncRun {
	o.mu.Lock()
	cp := *o.run
	o.mu.Unlock()
	o.stats.apply(&cp)
	return &cp
}

// Run executes the state machine and returns the final run record.
func (o *Orchestrator) Run(ctx context.Context) (result *models.SyncRun) {
	ctx = logging.ContextWithRunID(ctx, o.run.ID)
	metrics.SyncActiveRuns.Inc()

	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Msg("Sync run panicked")
			o.fail(ctx, fmt.Errorf("internal error: %v", r))
		}
		metrics.SyncActiveRuns.Dec()
		o.emitter.Emit(models.EventDone, models.DonePayload{Status: o.status()})
		o.emitter.Close()
		result = o.Snapshot()
	}()

	if err := o.execute(ctx); err != nil {
		o.fail(ctx, err)
	}
	return nil
}

func (o *Orchestrator) status() models.RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run.Status
}

func (o *Orchestrator) execute(ctx context.Context) error {
	logging.Ctx(ctx).Info().Str("account", o.req.AccountName).Int("max_concurrent_locations", o.req.MaxConcurrentLocations).
		Str("resumed_from", o.run.ResumedFrom).Msg("Sync run starting")

	o.emitter.StartHeartbeat(o.deps.Settings.HeartbeatInterval)
	o.emitProgress(models.StateInit, "Sync started")
	o.checkpoint(ctx)

	fetcher, err := o.deps.Fetchers(ctx, o.req.Credentials)
	if err != nil {
		return fmt.Errorf("build listing client: %w", err)
	}
	o.fetcher = fetcher

	steps := []struct {
		state models.RunState
		fn    func(context.Context) error
	}{
		{models.StateFetchAccount, o.fetchAccount},
		{models.StateFetchLocations, o.fetchLocations},
		{models.StateProcessLocations, o.processLocations},
		{models.StateFinalize, o.finalize},
	}
	for _, step := range steps {
		if err := o.transition(ctx, step.state); err != nil {
			return err
		}
		if err := step.fn(ctx); err != nil {
			return err
		}
	}
	return o.complete(ctx)
}

// transition moves the run forward to next.
func (o *Orchestrator) transition(ctx context.Context, next models.RunState) error {
	o.mu.Lock()
	cur := o.run.State
	if stateOrder[next] <= stateOrder[cur] || cur.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s", cur, next)
	}
	o.run.State = next
	o.run.UpdatedAt = o.deps.Settings.now().UTC()
	o.mu.Unlock()

	logging.Ctx(ctx).Debug().Str("from", string(cur)).Str("to", string(next)).Msg("Sync state transition")
	o.emitProgress(next, phaseMessage(next))
	o.checkpoint(ctx)
	return nil
}

func phaseMessage(s models.RunState) string {
	switch s {
	case models.StateFetchAccount:
		return "Fetching account"
	case models.StateFetchLocations:
		return "Fetching locations"
	case models.StateProcessLocations:
		return "Processing locations"
	case models.StateFinalize:
		return "Finalizing"
	case models.StateComplete:
		return "Sync complete"
	default:
		return string(s)
	}
}

func (o *Orchestrator) fetchAccount(ctx context.Context) error {
	accounts, err := withTimeout(ctx, o.deps.Settings.FetchTimeout, o.fetcher.ListAccounts)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}
	if len(accounts) == 0 {
		return ErrNoAccounts
	}

	primary := accounts[0]
	if o.req.AccountName != "" {
		found := false
		for _, a := range accounts {
			if a.Name == o.req.AccountName {
				primary, found = a, true
				break
			}
		}
		if !found {
			return fmt.Errorf("account %s: %w", o.req.AccountName, ErrNoAccounts)
		}
		accounts = []models.Account{primary}
	}
	o.accounts = accounts

	brand, created, err := o.resolver.ResolveBrand(ctx, primary, o.req.Credentials.Email)
	if err != nil {
		return fmt.Errorf("resolve brand: %w", err)
	}
	o.brand = brand

	o.mu.Lock()
	o.run.AccountName = primary.Name
	o.run.BrandID = brand.ID
	o.mu.Unlock()

	logging.Ctx(ctx).Info().Str("account", primary.Name).Str("brand_id", brand.ID).Bool("created", created).
		Int("accounts", len(accounts)).Msg("Brand resolved")
	o.emitter.Emit(models.EventAccount, models.AccountPayload{
		AccountName: primary.Name,
		DisplayName: primary.DisplayName,
		BrandID:     brand.ID,
		BrandSlug:   brand.Slug,
		Created:     created,
	})
	return nil
}

func (o *Orchestrator) fetchLocations(ctx context.Context) error {
	var (
		all     []models.Location
		seen    = make(map[string]bool)
		failed  int
		lastErr error
	)
	for _, acct := range o.accounts {
		locs, err := withTimeout(ctx, o.deps.Settings.FetchTimeout, func(ctx context.Context) ([]models.Location, error) {
			return o.fetcher.ListLocations(ctx, acct.Name)
		})
		if err != nil {
			failed++
			lastErr = err
			o.warn(ctx, models.WarningPayload{
				Class:   string(Classify(err)),
				Message: fmt.Sprintf("list locations for %s: %v", acct.Name, err),
			})
			continue
		}
		for _, l := range locs {
			if seen[l.Name] {
				continue
			}
			seen[l.Name] = true
			all = append(all, l)
		}
	}
	if failed == len(o.accounts) {
		return fmt.Errorf("could not enumerate locations for any account: %w", lastErr)
	}

	done := make(map[string]bool)
	if o.req.Resume != nil {
		for _, name := range o.req.Resume.CompletedLocations {
			done[name] = true
		}
	}
	o.pending = o.pending[:0]
	for _, l := range all {
		if !done[l.Name] {
			o.pending = append(o.pending, l)
		}
	}

	o.mu.Lock()
	o.run.LocationsTotal = len(all)
	o.mu.Unlock()

	logging.Ctx(ctx).Info().Int("locations", len(all)).Int("pending", len(o.pending)).
		Int("accounts", len(o.accounts)).Msg("Locations discovered")
	o.emitter.Emit(models.EventLocations, models.LocationsPayload{
		Count:    len(all),
		Accounts: len(o.accounts),
		Pending:  len(o.pending),
	})
	return nil
}

func (o *Orchestrator) processLocations(ctx context.Context) error {
	err := runPool(ctx, len(o.pending), o.req.MaxConcurrentLocations, func(ctx context.Context, i int) error {
		return o.processLocation(ctx, o.pending[i])
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sync canceled: %w", err)
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context) error {
	now := o.deps.Settings.now().UTC()
	touchCtx, cancel := withDeadline(ctx, o.deps.Settings.PersistTimeout)
	err := o.deps.Entities.TouchBrand(touchCtx, o.brand.ID, now)
	cancel()
	if err != nil {
		o.warn(ctx, models.WarningPayload{Class: string(Classify(err)), Message: fmt.Sprintf("record brand sync time: %v", err)})
	}

	o.emitter.Emit(models.EventSnapshot, o.records.payload())

	snap := o.Snapshot()
	snapshots, truncated := o.stats.snapshotList(o.deps.Settings.SnapshotLimit)
	o.emitter.Emit(models.EventComplete, models.CompletePayload{
		BrandID:            o.brand.ID,
		LocationsTotal:     snap.LocationsTotal,
		LocationsProcessed: snap.LocationsProcessed,
		LocationsSkipped:   snap.LocationsSkipped,
		Warnings:           snap.Warnings,
		Counters:           snap.Counters,
		Duration:           now.Sub(o.startedAt).Round(time.Millisecond).String(),
		Snapshots:          snapshots,
		SnapshotsTruncated: truncated,
	})
	return nil
}

func (o *Orchestrator) complete(ctx context.Context) error {
	if err := o.transition(ctx, models.StateComplete); err != nil {
		return err
	}
	now := o.deps.Settings.now().UTC()
	o.mu.Lock()
	o.run.Status = models.RunCompleted
	o.run.FinishedAt = &now
	o.run.UpdatedAt = now
	o.mu.Unlock()
	o.checkpoint(ctx)

	metrics.RecordSyncRun(string(models.RunCompleted), now.Sub(o.startedAt))
	snap := o.Snapshot()
	logging.Ctx(ctx).Info().Int("processed", snap.LocationsProcessed).Int("skipped", snap.LocationsSkipped).
		Int("warnings", snap.Warnings).Dur("duration", now.Sub(o.startedAt)).Msg("Sync run completed")
	return nil
}

// fail moves the run to FAILED and emits the error event.
func (o *Orchestrator) fail(ctx context.Context, err error) {
	now := o.deps.Settings.now().UTC()
	o.mu.Lock()
	if o.run.State == models.StateFailed {
		o.mu.Unlock()
		return
	}
	from := o.run.State
	o.run.State = models.StateFailed
	o.run.Status = models.RunFailed
	o.run.Error = err.Error()
	o.run.FinishedAt = &now
	o.run.UpdatedAt = now
	o.mu.Unlock()

	class := Classify(err)
	logging.Ctx(ctx).Error().Err(err).Str("state", string(from)).Str("class", string(class)).Msg("Sync run failed")
	o.emitter.Emit(models.EventError, models.ErrorPayload{State: from, Class: string(class), Message: err.Error()})
	o.checkpoint(ctx)
	metrics.RecordSyncRun(string(models.RunFailed), now.Sub(o.startedAt))
}

func (o *Orchestrator) emitProgress(state models.RunState, msg string) {
	o.emitter.Emit(models.EventProgress, models.ProgressPayload{Phase: state, Message: msg})
}

func (o *Orchestrator) warn(ctx context.Context, w models.WarningPayload) {
	o.stats.warn()
	logging.Ctx(ctx).Warn().Str("location", w.LocationName).Str("facet", string(w.Facet)).
		Str("class", w.Class).Msg(w.Message)
	o.emitter.Emit(models.EventWarning, w)
}

// checkpoint saves the run. Failures are logged; they never fail the run.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	if o.deps.Runs == nil {
		return
	}
	snap := o.Snapshot()
	saveCtx, cancel := withDeadline(context.WithoutCancel(ctx), o.deps.Settings.PersistTimeout)
	defer cancel()
	if err := o.deps.Runs.Save(saveCtx, snap); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to checkpoint sync run")
	}
}

func (o *Orchestrator) markComplete(ctx context.Context, locationName string) {
	if o.deps.Runs == nil {
		return
	}
	markCtx, cancel := withDeadline(context.WithoutCancel(ctx), o.deps.Settings.PersistTimeout)
	defer cancel()
	if err := o.deps.Runs.MarkLocationComplete(markCtx, o.run.ID, locationName); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to checkpoint completed location")
	}
}

// withTimeout runs fn under an optional timeout.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := withDeadline(ctx, d)
	defer cancel()
	return fn(callCtx)
}

func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// insightWindow covers days whole days ending yesterday (UTC).
func insightWindow(now time.Time, days int) (start, end time.Time) {
	if days <= 0 {
		days = 30
	}
	y, m, d := now.UTC().Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	start = end.AddDate(0, 0, -(days - 1))
	return start, end
}

// keywordWindow covers the months complete months before the current one.
func keywordWindow(now time.Time, months int) (fromYear, fromMonth, toYear, toMonth int) {
	if months <= 0 {
		months = 3
	}
	y, m, _ := now.UTC().Date()
	to := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	from := to.AddDate(0, -(months - 1), 0)
	return from.Year(), int(from.Month()), to.Year(), int(to.Month())
}

var errLocationPanic = errors.New("location processing panicked")
