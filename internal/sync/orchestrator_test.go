// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/listingsync/internal/listing"
	"github.com/tomtom215/listingsync/internal/models"
)

func completePayload(t *testing.T, sink *recordingSink) models.CompletePayload {
	t.Helper()
	evs := sink.ofType(models.EventComplete)
	if len(evs) != 1 {
		t.Fatalf("complete events: expected 1, got %d", len(evs))
	}
	p, ok := evs[0].Payload.(models.CompletePayload)
	if !ok {
		t.Fatalf("complete payload has type %T", evs[0].Payload)
	}
	return p
}

func TestOrchestrator_AllFacetsSucceed(t *testing.T) {
	env := newTestEnv("1", "2", "3")
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "state", string(run.State), string(models.StateComplete))
	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "locations processed", run.LocationsProcessed, 3)
	checkIntEqual(t, "warnings", run.Warnings, 0)

	p := completePayload(t, env.sink)
	checkIntEqual(t, "complete.locations_total", p.LocationsTotal, 3)
	for _, f := range models.Facets {
		checkIntEqual(t, "saved "+string(f), p.Counters[f].Saved, 3)
	}
	checkIntEqual(t, "snapshots", len(p.Snapshots), 3)
	for _, s := range p.Snapshots {
		if s.Insight == nil {
			t.Errorf("snapshot %s has no insight summary", s.LocationName)
		}
	}

	reviews, posts, insights, keywords := env.facets.counts()
	checkIntEqual(t, "stored reviews", reviews, 3)
	checkIntEqual(t, "stored posts", posts, 3)
	checkIntEqual(t, "stored insight samples", insights, 3)
	checkIntEqual(t, "stored keyword samples", keywords, 3)
	checkIntEqual(t, "brands", env.entities.brandCount(), 1)
	checkIntEqual(t, "stores", env.entities.storeCount(), 3)
	checkIntEqual(t, "brand touched", env.entities.touched, 1)

	checkTerminal(t, env.sink, models.RunCompleted)
}

func TestOrchestrator_ScopeErrorIsolatedToFacet(t *testing.T) {
	env := newTestEnv("1", "2", "3")
	env.fetcher.reviews = func(ref models.LocationRef) ([]models.Review, error) {
		if ref.LocationID == "2" {
			return nil, &listing.APIError{Op: "reviews", StatusCode: 403, Message: "insufficient scope"}
		}
		return []models.Review{{ReviewID: "r-" + ref.LocationID}}, nil
	}
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "failed reviews", run.Counters[models.FacetReviews].Failed, 1)

	warnings := env.sink.ofType(models.EventWarning)
	if len(warnings) != 1 {
		t.Fatalf("warnings: expected 1, got %d", len(warnings))
	}
	w := warnings[0].Payload.(models.WarningPayload)
	checkStringEqual(t, "warning.facet", string(w.Facet), string(models.FacetReviews))
	checkStringEqual(t, "warning.location_id", w.LocationID, "2")
	checkStringEqual(t, "warning.class", w.Class, string(ClassPermission))

	reviews, posts, insights, keywords := env.facets.counts()
	checkIntEqual(t, "stored reviews", reviews, 2)
	checkIntEqual(t, "stored posts", posts, 3)
	checkIntEqual(t, "stored insight samples", insights, 3)
	checkIntEqual(t, "stored keyword samples", keywords, 3)

	p := completePayload(t, env.sink)
	for _, s := range p.Snapshots {
		if strings.HasSuffix(s.LocationName, "/2") {
			if len(s.Failed) != 1 || s.Failed[0] != models.FacetReviews {
				t.Errorf("location 2 failed facets: expected [reviews], got %v", s.Failed)
			}
			checkIntEqual(t, "location 2 posts saved", s.Saved[models.FacetPosts], 1)
		}
	}
	checkTerminal(t, env.sink, models.RunCompleted)
}

func TestOrchestrator_EmptyInsightsPersistZeroSample(t *testing.T) {
	env := newTestEnv("1")
	env.fetcher.insights = func(ref models.LocationRef) (*models.PerformanceSample, error) { return nil, nil }
	env.run(t, RunRequest{})

	env.facets.mu.Lock()
	defer env.facets.mu.Unlock()
	if len(env.facets.insights) != 1 {
		t.Fatalf("insight samples: expected 1, got %d", len(env.facets.insights))
	}
	for _, s := range env.facets.insights {
		if s.TotalImpressions != 0 || s.TotalActions != 0 || s.ConversionRate != 0 {
			t.Errorf("expected zero sample, got %+v", s)
		}
		wantStart, wantEnd := insightWindow(testNow, 30)
		if !s.PeriodStart.Equal(wantStart) || !s.PeriodEnd.Equal(wantEnd) {
			t.Errorf("period = %v..%v, want %v..%v", s.PeriodStart, s.PeriodEnd, wantStart, wantEnd)
		}
		if s.StoreID == "" || s.BrandID == "" {
			t.Errorf("sample not stamped with store and brand: %+v", s)
		}
	}
}

func TestOrchestrator_BrandResolutionFailure(t *testing.T) {
	env := newTestEnv("1", "2")
	env.entities.findBrandErr = errors.New("dial tcp: connection refused")
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "state", string(run.State), string(models.StateFailed))
	checkStringEqual(t, "status", string(run.Status), string(models.RunFailed))

	errs := env.sink.ofType(models.EventError)
	if len(errs) != 1 {
		t.Fatalf("error events: expected 1, got %d", len(errs))
	}
	p := errs[0].Payload.(models.ErrorPayload)
	checkStringEqual(t, "error.state", string(p.State), string(models.StateFetchAccount))
	if len(env.sink.ofType(models.EventComplete)) != 0 {
		t.Error("complete must not be emitted for a failed run")
	}
	checkTerminal(t, env.sink, models.RunFailed)

	saved := env.runs.saved["run-test"]
	if saved == nil || saved.State != models.StateFailed {
		t.Errorf("checkpoint not saved as FAILED: %+v", saved)
	}
}

func TestOrchestrator_StoreCreationFailureIsFatal(t *testing.T) {
	env := newTestEnv("1")
	env.entities.createStoreErr = errors.New("disk full")
	run := env.run(t, RunRequest{})
	checkStringEqual(t, "status", string(run.Status), string(models.RunFailed))
	checkTerminal(t, env.sink, models.RunFailed)
}

func TestOrchestrator_StoreCreationRetriesUniqueViolation(t *testing.T) {
	env := newTestEnv("1")
	env.entities.storeConflicts = 2
	run := env.run(t, RunRequest{})
	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "stores", env.entities.storeCount(), 1)
}

func TestOrchestrator_Idempotent(t *testing.T) {
	env := newTestEnv("1", "2")
	env.run(t, RunRequest{})
	r1, p1, i1, k1 := env.facets.counts()

	env.sink = &recordingSink{}
	run := env.run(t, RunRequest{})
	r2, p2, i2, k2 := env.facets.counts()

	if r1 != r2 || p1 != p2 || i1 != i2 || k1 != k2 {
		t.Errorf("second run changed record counts: (%d,%d,%d,%d) -> (%d,%d,%d,%d)", r1, p1, i1, k1, r2, p2, i2, k2)
	}
	checkIntEqual(t, "brands", env.entities.brandCount(), 1)
	checkIntEqual(t, "stores", env.entities.storeCount(), 2)
	checkIntEqual(t, "inserted reviews on rerun", run.Counters[models.FacetReviews].Inserted, 0)
	checkIntEqual(t, "modified reviews on rerun", run.Counters[models.FacetReviews].Modified, 2)
}

func TestOrchestrator_ConcurrencyBound(t *testing.T) {
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	env := newTestEnv(ids...)
	env.fetcher.delay = 5 * time.Millisecond

	var inFlight, peak atomic.Int32
	env.fetcher.posts = func(ref models.LocationRef) ([]models.Post, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	}

	deps := env.deps()
	emitter := NewEmitter("bounded", env.sink, 1024)
	orch := NewOrchestrator("bounded", RunRequest{
		Credentials:            models.Credentials{AccessToken: "t"},
		MaxConcurrentLocations: 3,
	}, deps, emitter)
	run := orch.Run(t.Context())

	checkIntEqual(t, "processed", run.LocationsProcessed, 12)
	if got := orch.stats.peakInFlight(); got > 3 {
		t.Errorf("peak locations in flight = %d, want <= 3", got)
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrent posts fetches = %d, want <= 3", got)
	}
}

func TestOrchestrator_ReviewsAfterOtherFacets(t *testing.T) {
	env := newTestEnv("1", "2")
	env.fetcher.delay = 2 * time.Millisecond
	env.run(t, RunRequest{})

	env.fetcher.mu.Lock()
	defer env.fetcher.mu.Unlock()
	for _, id := range []string{"1", "2"} {
		reviewStart := env.fetcher.started["reviews:"+id]
		for _, f := range []string{"posts", "insights", "keywords"} {
			end, ok := env.fetcher.finished[f+":"+id]
			if !ok {
				t.Fatalf("%s for location %s never finished", f, id)
			}
			if reviewStart.Before(end) {
				t.Errorf("location %s: reviews started before %s finished", id, f)
			}
		}
	}
}

func TestOrchestrator_MalformedLocationSkipped(t *testing.T) {
	env := newTestEnv("1")
	env.fetcher.locations["accounts/100"] = append(env.fetcher.locations["accounts/100"],
		models.Location{Name: "locations/orphan", Title: "Orphan"})
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "processed", run.LocationsProcessed, 1)
	checkIntEqual(t, "skipped", run.LocationsSkipped, 1)
	checkIntEqual(t, "stores", env.entities.storeCount(), 1)

	warnings := env.sink.ofType(models.EventWarning)
	if len(warnings) != 1 {
		t.Fatalf("warnings: expected 1, got %d", len(warnings))
	}
	checkStringEqual(t, "warning.class", warnings[0].Payload.(models.WarningPayload).Class, string(ClassMalformed))
}

func TestOrchestrator_SaveExhaustionAbandonsBatchOnly(t *testing.T) {
	env := newTestEnv("1", "2")
	env.facets.fail = func(f models.Facet, attempt int) error {
		if f == models.FacetPosts {
			return errTransient
		}
		return nil
	}
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "posts failed", run.Counters[models.FacetPosts].Failed, 2)
	checkIntEqual(t, "reviews saved", run.Counters[models.FacetReviews].Saved, 2)
	// 1 initial + 3 retries per batch.
	checkIntEqual(t, "posts write attempts", env.facets.calls[models.FacetPosts], 8)
	checkIntEqual(t, "save-error events", len(env.sink.ofType(models.EventSaveError)), 2)
}

func TestOrchestrator_AllLocationListingsFail(t *testing.T) {
	env := newTestEnv("1")
	env.fetcher.locErr["accounts/100"] = &listing.APIError{Op: "locations", StatusCode: 500}
	run := env.run(t, RunRequest{})
	checkStringEqual(t, "status", string(run.Status), string(models.RunFailed))
	checkTerminal(t, env.sink, models.RunFailed)
}

func TestOrchestrator_OneAccountListingFails(t *testing.T) {
	env := newTestEnv("1")
	env.fetcher.accounts = append(env.fetcher.accounts, models.Account{Name: "accounts/200"})
	env.fetcher.locErr["accounts/200"] = &listing.APIError{Op: "locations", StatusCode: 403}
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "warnings", run.Warnings, 1)
	checkIntEqual(t, "processed", run.LocationsProcessed, 1)
}

func TestOrchestrator_NoAccounts(t *testing.T) {
	env := newTestEnv()
	env.fetcher.accounts = nil
	run := env.run(t, RunRequest{})
	checkStringEqual(t, "status", string(run.Status), string(models.RunFailed))
	if !strings.Contains(run.Error, ErrNoAccounts.Error()) {
		t.Errorf("error = %q, want it to mention %q", run.Error, ErrNoAccounts)
	}
}

func TestOrchestrator_ResumeSkipsCompletedLocations(t *testing.T) {
	env := newTestEnv("1", "2", "3")
	prev := &models.SyncRun{
		ID:                 "earlier",
		AccountName:        "accounts/100",
		Status:             models.RunFailed,
		CompletedLocations: []string{"accounts/100/locations/1", "accounts/100/locations/2"},
	}
	run := env.run(t, RunRequest{Resume: prev})

	checkStringEqual(t, "resumed_from", run.ResumedFrom, "earlier")
	checkIntEqual(t, "processed", run.LocationsProcessed, 1)
	checkIntEqual(t, "completed locations", len(run.CompletedLocations), 3)
	checkIntEqual(t, "stores", env.entities.storeCount(), 1)

	locs := env.sink.ofType(models.EventLocations)
	if len(locs) != 1 {
		t.Fatalf("locations events: expected 1, got %d", len(locs))
	}
	p := locs[0].Payload.(models.LocationsPayload)
	checkIntEqual(t, "locations.count", p.Count, 3)
	checkIntEqual(t, "locations.pending", p.Pending, 1)
}

func TestOrchestrator_TouchBrandFailureIsWarning(t *testing.T) {
	env := newTestEnv("1")
	env.entities.touchErr = errors.New("lock timeout")
	run := env.run(t, RunRequest{})
	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "warnings", run.Warnings, 1)
}

func TestOrchestrator_FetcherPanicRecovered(t *testing.T) {
	env := newTestEnv("1")
	env.fetcher.keywords = func(ref models.LocationRef) ([]models.SearchKeywordSample, error) {
		panic("boom")
	}
	run := env.run(t, RunRequest{})
	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	checkIntEqual(t, "keywords failed", run.Counters[models.FacetKeywords].Failed, 1)
	checkTerminal(t, env.sink, models.RunCompleted)
}

func TestOrchestrator_SubscriberLossDoesNotAffectRun(t *testing.T) {
	env := newTestEnv("1", "2", "3")
	env.sink.failAfter = 2
	run := env.run(t, RunRequest{})

	checkStringEqual(t, "status", string(run.Status), string(models.RunCompleted))
	reviews, _, _, _ := env.facets.counts()
	checkIntEqual(t, "stored reviews", reviews, 3)
	checkIntEqual(t, "delivered events", len(env.sink.all()), 2)
	if got := env.sink.closes.Load(); got != 1 {
		t.Errorf("sink closes: expected 1, got %d", got)
	}
}

func TestOrchestrator_EventOrder(t *testing.T) {
	env := newTestEnv("1")
	env.run(t, RunRequest{})

	var order []models.EventType
	for _, ev := range env.sink.all() {
		switch ev.Type {
		case models.EventAccount, models.EventLocations, models.EventComplete, models.EventDone:
			order = append(order, ev.Type)
		}
		if ev.RunID != "run-test" {
			t.Errorf("event %s has run id %q", ev.Type, ev.RunID)
		}
	}
	want := []models.EventType{models.EventAccount, models.EventLocations, models.EventComplete, models.EventDone}
	if len(order) != len(want) {
		t.Fatalf("milestones = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("milestone %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestOrchestrator_SnapshotLimit(t *testing.T) {
	env := newTestEnv("c", "a", "b")
	deps := env.deps()
	deps.Settings.SnapshotLimit = 2
	orch := NewOrchestrator("limited", RunRequest{Credentials: models.Credentials{AccessToken: "t"}}, deps,
		NewEmitter("limited", env.sink, 1024))
	orch.Run(t.Context())

	p := completePayload(t, env.sink)
	if !p.SnapshotsTruncated || len(p.Snapshots) != 2 {
		t.Fatalf("snapshots = %d truncated=%v, want 2 truncated", len(p.Snapshots), p.SnapshotsTruncated)
	}
	checkStringEqual(t, "first snapshot", p.Snapshots[0].LocationName, "accounts/100/locations/a")
}

func snapshotPayload(t *testing.T, sink *recordingSink) models.SnapshotPayload {
	t.Helper()
	evs := sink.ofType(models.EventSnapshot)
	if len(evs) != 1 {
		t.Fatalf("snapshot events: expected 1, got %d", len(evs))
	}
	p, ok := evs[0].Payload.(models.SnapshotPayload)
	if !ok {
		t.Fatalf("snapshot payload has type %T", evs[0].Payload)
	}
	return p
}

func TestOrchestrator_RecordSnapshot(t *testing.T) {
	env := newTestEnv("1", "2", "3")
	env.run(t, RunRequest{})

	p := snapshotPayload(t, env.sink)
	reviewIDs := make([]string, 0, len(p.Reviews))
	for _, r := range p.Reviews {
		reviewIDs = append(reviewIDs, r.ReviewID)
	}
	sort.Strings(reviewIDs)
	checkStringEqual(t, "review ids", strings.Join(reviewIDs, ","), "r-1,r-2,r-3")

	postIDs := make([]string, 0, len(p.Posts))
	for _, r := range p.Posts {
		postIDs = append(postIDs, r.PostID)
	}
	sort.Strings(postIDs)
	checkStringEqual(t, "post ids", strings.Join(postIDs, ","), "p-1,p-2,p-3")

	checkIntEqual(t, "keywords", len(p.Keywords), 3)
	for _, k := range p.Keywords {
		checkStringEqual(t, "keyword", k.Keyword, "coffee")
		if k.StoreID == "" {
			t.Errorf("keyword sample has no store id")
		}
	}
	checkIntEqual(t, "insights", len(p.Insights), 3)
	if len(p.Truncated) != 0 {
		t.Errorf("truncated = %v, want none", p.Truncated)
	}

	// snapshot precedes complete
	var order []models.EventType
	for _, ev := range env.sink.all() {
		if ev.Type == models.EventSnapshot || ev.Type == models.EventComplete {
			order = append(order, ev.Type)
		}
	}
	if len(order) != 2 || order[0] != models.EventSnapshot {
		t.Errorf("event order = %v, want [snapshot complete]", order)
	}
}

func TestOrchestrator_RecordSnapshotLimit(t *testing.T) {
	env := newTestEnv("1", "2", "3")
	deps := env.deps()
	deps.Settings.SnapshotLimit = 2
	orch := NewOrchestrator("capped", RunRequest{Credentials: models.Credentials{AccessToken: "t"}}, deps,
		NewEmitter("capped", env.sink, 1024))
	orch.Run(t.Context())

	p := snapshotPayload(t, env.sink)
	checkIntEqual(t, "reviews", len(p.Reviews), 2)
	checkIntEqual(t, "posts", len(p.Posts), 2)
	checkIntEqual(t, "keywords", len(p.Keywords), 2)
	checkIntEqual(t, "truncated facets", len(p.Truncated), len(models.Facets))
}

func TestOrchestrator_AccountRestriction(t *testing.T) {
	env := newTestEnv("1")
	env.fetcher.accounts = append([]models.Account{{Name: "accounts/999", DisplayName: "Other"}}, env.fetcher.accounts...)
	run := env.run(t, RunRequest{AccountName: "accounts/100"})
	checkStringEqual(t, "account", run.AccountName, "accounts/100")
	checkIntEqual(t, "processed", run.LocationsProcessed, 1)

	env.sink = &recordingSink{}
	run = env.run(t, RunRequest{AccountName: "accounts/404"})
	checkStringEqual(t, "status", string(run.Status), string(models.RunFailed))
}

func TestWindows(t *testing.T) {
	now := time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC)

	start, end := insightWindow(now, 30)
	checkStringEqual(t, "insight end", end.Format(time.DateOnly), "2026-01-09")
	checkStringEqual(t, "insight start", start.Format(time.DateOnly), "2025-12-11")

	fy, fm, ty, tm := keywordWindow(now, 3)
	if fy != 2025 || fm != 10 || ty != 2025 || tm != 12 {
		t.Errorf("keywordWindow = %d-%d..%d-%d, want 2025-10..2025-12", fy, fm, ty, tm)
	}
}
