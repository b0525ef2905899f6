// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
manager.go - Sync Manager Lifecycle and Orchestration

The Manager owns every collaborator shared between runs and starts one
Orchestrator per sync request.

Manager Components:
  - FetcherFactory: builds a listing client per caller credentials, sharing
    one rate limiter, one circuit breaker and the discovery caches
  - EntityStore / FacetStore: DuckDB persistence
  - CheckpointStore: optional BadgerDB run records used for resume
  - Observers: process-wide event fan-out (event bus, websocket hub)

Lifecycle Methods:
  - NewManager(): wire dependencies from configuration
  - Start(): begin the maintenance loop (cache cleanup, checkpoint pruning)
  - StartSync(): admit and launch a run; returns its id immediately
  - Cancel(): stop one active run
  - Stop(): cancel active runs and wait for them to finish

Runs are detached from the request that started them: the caller's context
carries logging values only. Stop cancels every run.

Thread Safety:
  - runSlots: bounds concurrent runs (MaxConcurrentRuns)
  - mu: protects active, recent and running
  - wg / runsWg: coordinated shutdown of the loop and of runs
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/listingsync/internal/checkpoint"
	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/listing"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/models"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = checkpoint.ErrRunNotFound

const (
	// recentRunsLimit caps the in-memory history kept without a checkpoint store.
	recentRunsLimit  = 100
	stopWaitTimeout  = 30 * time.Second
	defaultMaxRuns   = 4
	defaultRetention = 7 * 24 * time.Hour
)

// CheckpointStore is the run store used for inspection and resume.
// *checkpoint.Store implements it.
type CheckpointStore interface {
	RunStore
	Get(ctx context.Context, id string) (*models.SyncRun, error)
	List(ctx context.Context) ([]*models.SyncRun, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// StartRequest is a caller's request to sync.
type StartRequest struct {
	Credentials            models.Credentials
	AccountName            string
	MaxConcurrentLocations int
	// ResumeRunID names an interrupted run whose completed locations are skipped.
	ResumeRunID string
}

type activeRun struct {
	orch   *Orchestrator
	cancel context.CancelFunc
}

// Manager admits and tracks sync runs.
type Manager struct {
	cfg         *config.Config
	deps        Dependencies
	checkpoints CheckpointStore
	observers   []Observer
	caches      *listing.Caches
	newID       func() string

	runSlots *semaphore.Weighted

	mu      sync.Mutex
	active  map[string]*activeRun
	recent  []*models.SyncRun
	running bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runsWg  sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCheckpoints enables resumable runs.
func WithCheckpoints(store CheckpointStore) ManagerOption {
	return func(m *Manager) { m.checkpoints = store }
}

// WithObservers adds process-wide event observers.
func WithObservers(obs ...Observer) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// WithFetcherFactory replaces the listing API client factory.
func WithFetcherFactory(f FetcherFactory) ManagerOption {
	return func(m *Manager) { m.deps.Fetchers = f }
}

// WithCaches shares discovery caches with the default fetcher factory.
func WithCaches(c *listing.Caches) ManagerOption {
	return func(m *Manager) { m.caches = c }
}

// WithRetryPolicy overrides the persistence retry policy.
func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(m *Manager) { m.deps.Policy = p }
}

// NewManager wires a Manager from configuration.
func NewManager(cfg *config.Config, entities EntityStore, facets FacetStore, opts ...ManagerOption) *Manager {
	policy := DefaultRetryPolicy()
	if cfg.Sync.RetryMax > 0 {
		policy.MaxRetries = cfg.Sync.RetryMax
	}
	if cfg.Sync.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.Sync.RetryBaseDelay
	}

	m := &Manager{
		cfg: cfg,
		deps: Dependencies{
			Entities: entities,
			Facets:   facets,
			Policy:   policy,
			Settings: SettingsFromConfig(cfg.Sync),
		},
		newID:  uuid.NewString,
		active: make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.caches == nil {
		m.caches = listing.NewCaches(cfg.Cache.Capacity, cfg.Cache.TTL)
	}
	if m.deps.Fetchers == nil {
		m.deps.Fetchers = ListingFetchers(cfg.Listing, m.caches, listing.NewBreaker("listing-api", listing.BreakerSettings{}))
	}
	if m.checkpoints != nil {
		m.deps.Runs = m.checkpoints
	}

	maxRuns := cfg.Sync.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = defaultMaxRuns
	}
	m.runSlots = semaphore.NewWeighted(int64(maxRuns))
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	return m
}

// ListingFetchers returns a FetcherFactory for the live listing API. All
// clients share one rate limiter and circuit breaker, so the process as a
// whole honors the API quota.
func ListingFetchers(cfg config.ListingConfig, caches *listing.Caches, breaker *listing.Breaker) FetcherFactory {
	limiter := listing.NewLimiter(cfg)
	return func(ctx context.Context, creds models.Credentials) (Fetcher, error) {
		if creds.AccessToken == "" && creds.RefreshToken == "" {
			return nil, errors.New("no listing credentials supplied")
		}
		client := listing.NewClient(ctx, cfg, creds, listing.WithBreaker(breaker), listing.WithLimiter(limiter))
		if caches == nil {
			return client, nil
		}
		return listing.NewCachingSource(client, caches, creds), nil
	}
}

// StartSync admits a run and starts it in the background. It returns the new
// run id, ErrTooManyRuns when every slot is taken, or ErrRunNotResumable /
// ErrRunNotFound for a bad resume request. sink may be nil.
func (m *Manager) StartSync(ctx context.Context, req StartRequest, sink Sink) (string, error) {
	if m.baseCtx.Err() != nil {
		return "", errors.New("sync manager stopped")
	}
	resume, err := m.resumeTarget(ctx, req.ResumeRunID)
	if err != nil {
		return "", err
	}
	if !m.runSlots.TryAcquire(1) {
		return "", ErrTooManyRuns
	}

	id := m.newID()
	emitter := NewEmitter(id, sink, m.deps.Settings.EventBuffer, m.observers...)
	orch := NewOrchestrator(id, RunRequest{
		Credentials:            req.Credentials,
		AccountName:            req.AccountName,
		MaxConcurrentLocations: req.MaxConcurrentLocations,
		Resume:                 resume,
	}, m.deps, emitter)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopAfter := context.AfterFunc(m.baseCtx, cancel)

	m.mu.Lock()
	m.active[id] = &activeRun{orch: orch, cancel: cancel}
	m.mu.Unlock()

	m.runsWg.Add(1)
	go func() {
		defer m.runsWg.Done()
		defer stopAfter()
		defer cancel()

		result := orch.Run(runCtx)
		m.runSlots.Release(1)

		m.mu.Lock()
		delete(m.active, id)
		m.remember(result)
		m.mu.Unlock()
	}()

	logging.Ctx(ctx).Info().Str("run_id", id).Str("resumed_from", req.ResumeRunID).Msg("Sync run admitted")
	return id, nil
}

func (m *Manager) resumeTarget(ctx context.Context, runID string) (*models.SyncRun, error) {
	if runID == "" {
		return nil, nil
	}
	m.mu.Lock()
	_, busy := m.active[runID]
	m.mu.Unlock()
	if busy {
		return nil, fmt.Errorf("run %s is still active: %w", runID, ErrRunNotResumable)
	}
	if m.checkpoints == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	prev, err := m.checkpoints.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if !prev.Resumable() {
		return nil, fmt.Errorf("run %s is %s: %w", runID, prev.Status, ErrRunNotResumable)
	}
	return prev, nil
}

// remember keeps finished runs in memory when nothing else records them.
// Callers hold m.mu.
func (m *Manager) remember(run *models.SyncRun) {
	if m.checkpoints != nil || run == nil {
		return
	}
	m.recent = append(m.recent, run)
	if len(m.recent) > recentRunsLimit {
		m.recent = m.recent[len(m.recent)-recentRunsLimit:]
	}
}

// Cancel stops an active run. The run still finishes its event stream.
func (m *Manager) Cancel(runID string) error {
	m.mu.Lock()
	ar, ok := m.active[runID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	ar.cancel()
	return nil
}

// Run returns the current record of a run.
func (m *Manager) Run(ctx context.Context, runID string) (*models.SyncRun, error) {
	m.mu.Lock()
	if ar, ok := m.active[runID]; ok {
		m.mu.Unlock()
		return ar.orch.Snapshot(), nil
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		if m.recent[i].ID == runID {
			r := m.recent[i]
			m.mu.Unlock()
			return r, nil
		}
	}
	m.mu.Unlock()

	if m.checkpoints == nil {
		return nil, ErrRunNotFound
	}
	return m.checkpoints.Get(ctx, runID)
}

// Runs lists known runs, newest first. Active runs report live counters.
func (m *Manager) Runs(ctx context.Context) ([]*models.SyncRun, error) {
	byID := make(map[string]*models.SyncRun)
	if m.checkpoints != nil {
		stored, err := m.checkpoints.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		for _, r := range stored {
			byID[r.ID] = r
		}
	}

	m.mu.Lock()
	for _, r := range m.recent {
		byID[r.ID] = r
	}
	for id, ar := range m.active {
		byID[id] = ar.orch.Snapshot()
	}
	m.mu.Unlock()

	runs := make([]*models.SyncRun, 0, len(byID))
	for _, r := range byID {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

// ActiveRuns returns the number of runs in progress.
func (m *Manager) ActiveRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Start begins the maintenance loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager already running")
	}
	m.running = true
	m.mu.Unlock()

	interval := m.cfg.Sync.MaintenanceInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	m.wg.Add(1)
	go m.maintenanceLoop(ctx, interval)

	logging.Info().Dur("interval", interval).Msg("Sync manager started")
	return nil
}

func (m *Manager) maintenanceLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunMaintenance(ctx)
		case <-ctx.Done():
			return
		case <-m.baseCtx.Done():
			return
		}
	}
}

// RunMaintenance drops expired cache entries and prunes old checkpoints.
func (m *Manager) RunMaintenance(ctx context.Context) {
	evicted := m.caches.CleanupExpired()

	pruned := 0
	if m.checkpoints != nil {
		retention := m.cfg.Checkpoint.Retention
		if retention <= 0 {
			retention = defaultRetention
		}
		n, err := m.checkpoints.PruneOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to prune sync checkpoints")
		}
		pruned = n
	}
	if evicted > 0 || pruned > 0 {
		logging.Debug().Int("cache_evicted", evicted).Int("checkpoints_pruned", pruned).Msg("Sync maintenance done")
	}
}

// Stop cancels every active run and waits for runs and the maintenance loop
// to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	done := make(chan struct{})
	go func() {
		m.runsWg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logging.Info().Msg("Sync manager stopped")
		return nil
	case <-time.After(stopWaitTimeout):
		return fmt.Errorf("timed out waiting for %d sync runs to stop", m.ActiveRuns())
	}
}
