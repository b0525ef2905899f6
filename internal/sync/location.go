// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

// snapshotBuilder collects one location's outcome from its facet goroutines.
type snapshotBuilder struct {
	mu   sync.Mutex
	snap models.LocationSnapshot
}

func (b *snapshotBuilder) saved(f models.Facet, n int) {
	b.mu.Lock()
	b.snap.Saved[f] = n
	b.mu.Unlock()
}

func (b *snapshotBuilder) failed(f models.Facet) {
	b.mu.Lock()
	b.snap.Failed = append(b.snap.Failed, f)
	b.mu.Unlock()
}

func (b *snapshotBuilder) insight(s *models.PerformanceSample) {
	b.mu.Lock()
	b.snap.Insight = &models.InsightSummary{
		TotalImpressions: s.TotalImpressions,
		TotalActions:     s.TotalActions,
		ConversionRate:   s.ConversionRate,
	}
	b.mu.Unlock()
}

func (b *snapshotBuilder) result() models.LocationSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// processLocation syncs one location: validate, resolve its Store, fetch
// posts, insights and keywords concurrently, then reviews. Facet failures
// are warnings; only a Store resolution failure is returned (fatal).
func (o *Orchestrator) processLocation(ctx context.Context, loc models.Location) (err error) {
	o.stats.enter()
	metrics.SyncLocationsInProgress.Inc()
	defer func() {
		metrics.SyncLocationsInProgress.Dec()
		o.stats.leave()
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", errLocationPanic, loc.Name, r)
		}
	}()

	ref, perr := models.ParseLocationName(loc.Name)
	if perr != nil {
		o.stats.skip()
		metrics.SyncLocations.WithLabelValues("skipped").Inc()
		o.warn(ctx, models.WarningPayload{
			LocationName: loc.Name,
			Class:        string(ClassMalformed),
			Message:      fmt.Sprintf("%v: %v", ErrMalformedLocation, perr),
		})
		o.emitter.Emit(models.EventProgress, models.ProgressPayload{
			Phase:        models.StateProcessLocations,
			Message:      "Location skipped",
			LocationName: loc.Name,
			Status:       "skipped",
		})
		return nil
	}

	ctx = logging.ContextWithLocation(ctx, loc.Name)
	o.emitter.Emit(models.EventProgress, models.ProgressPayload{
		Phase:        models.StateProcessLocations,
		Message:      "Processing " + displayName(loc, ref),
		LocationName: loc.Name,
		LocationID:   ref.LocationID,
		Status:       "started",
	})

	resolveCtx, cancel := withDeadline(ctx, o.deps.Settings.PersistTimeout)
	store, _, err := o.resolver.ResolveStore(resolveCtx, o.brand.ID, ref, loc)
	cancel()
	if err != nil {
		metrics.SyncLocations.WithLabelValues("failed").Inc()
		return fmt.Errorf("resolve store for %s: %w", loc.Name, err)
	}

	sc := SaveContext{BrandID: store.BrandID, StoreID: store.ID, LocationID: ref.LocationID}
	snap := &snapshotBuilder{snap: models.LocationSnapshot{
		LocationName: loc.Name,
		StoreID:      store.ID,
		Title:        store.Name,
		Saved:        make(map[models.Facet]int, len(models.Facets)),
	}}

	var wg sync.WaitGroup
	wg.Add(3)
	go o.facet(ctx, &wg, loc, ref, models.FacetPosts, snap, func(ctx context.Context) (int, error) {
		return syncFacet(ctx, o, ref, models.FacetPosts, snap,
			func(ctx context.Context) ([]models.Post, error) { return o.fetcher.FetchPosts(ctx, ref) },
			func(ctx context.Context, posts []models.Post) (models.UpsertResult, error) {
				return o.upserter.SavePosts(ctx, sc, posts)
			})
	})
	go o.facet(ctx, &wg, loc, ref, models.FacetInsights, snap, func(ctx context.Context) (int, error) {
		return syncFacet(ctx, o, ref, models.FacetInsights, snap,
			func(ctx context.Context) ([]models.PerformanceSample, error) {
				s, err := o.fetcher.FetchInsights(ctx, ref, o.insightStart, o.insightEnd)
				if err != nil {
					return nil, err
				}
				if s == nil {
					// No data still records the period, as zeros.
					s = &models.PerformanceSample{PeriodStart: o.insightStart, PeriodEnd: o.insightEnd}
				}
				s.ComputeDerived()
				snap.insight(s)
				return []models.PerformanceSample{*s}, nil
			},
			func(ctx context.Context, samples []models.PerformanceSample) (models.UpsertResult, error) {
				return o.upserter.SaveInsights(ctx, sc, samples)
			})
	})
	go o.facet(ctx, &wg, loc, ref, models.FacetKeywords, snap, func(ctx context.Context) (int, error) {
		return syncFacet(ctx, o, ref, models.FacetKeywords, snap,
			func(ctx context.Context) ([]models.SearchKeywordSample, error) {
				return o.fetcher.FetchKeywords(ctx, ref, o.kwFromY, o.kwFromM, o.kwToY, o.kwToM)
			},
			func(ctx context.Context, samples []models.SearchKeywordSample) (models.UpsertResult, error) {
				return o.upserter.SaveKeywords(ctx, sc, samples)
			})
	})
	wg.Wait()

	// Reviews only start once the other three facets have settled.
	o.facet(ctx, nil, loc, ref, models.FacetReviews, snap, func(ctx context.Context) (int, error) {
		return syncFacet(ctx, o, ref, models.FacetReviews, snap,
			func(ctx context.Context) ([]models.Review, error) { return o.fetcher.FetchReviews(ctx, ref) },
			func(ctx context.Context, reviews []models.Review) (models.UpsertResult, error) {
				return o.upserter.SaveReviews(ctx, sc, reviews)
			})
	})

	processed := o.stats.finish(loc.Name, snap.result())
	o.markComplete(ctx, loc.Name)
	metrics.SyncLocations.WithLabelValues("completed").Inc()

	o.mu.Lock()
	total := o.run.LocationsTotal
	o.mu.Unlock()
	o.emitter.Emit(models.EventProgress, models.ProgressPayload{
		Phase:        models.StateProcessLocations,
		Message:      "Processed " + displayName(loc, ref),
		LocationName: loc.Name,
		LocationID:   ref.LocationID,
		Status:       "completed",
		Processed:    processed,
		Total:        total,
	})
	return nil
}

// facet runs one facet step, turning a panic into a facet failure.
func (o *Orchestrator) facet(ctx context.Context, wg *sync.WaitGroup, loc models.Location, ref models.LocationRef,
	f models.Facet, snap *snapshotBuilder, step func(context.Context) (int, error)) {
	if wg != nil {
		defer wg.Done()
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Str("facet", string(f)).Msg("Facet sync panicked")
			o.stats.failed(f)
			snap.failed(f)
			o.warn(ctx, models.WarningPayload{
				LocationName: loc.Name,
				LocationID:   ref.LocationID,
				Facet:        f,
				Class:        string(ClassFatal),
				Message:      fmt.Sprintf("internal error: %v", r),
			})
		}
	}()
	_, _ = step(ctx) //nolint:errcheck // outcome is recorded by syncFacet
}

// syncFacet fetches one facet and persists it. A fetch failure becomes a
// warning tagged with the location and facet; a save failure has already
// been reported as save-error by the upserter.
func syncFacet[T any](ctx context.Context, o *Orchestrator, ref models.LocationRef, f models.Facet, snap *snapshotBuilder,
	fetch func(context.Context) ([]T, error), save func(context.Context, []T) (models.UpsertResult, error)) (int, error) {
	records, err := withTimeout(ctx, o.deps.Settings.FetchTimeout, fetch)
	if err != nil {
		class := Classify(err)
		metrics.RecordFacetFetch(string(f), string(class))
		o.stats.failed(f)
		snap.failed(f)
		o.warn(ctx, models.WarningPayload{
			LocationName: ref.String(),
			LocationID:   ref.LocationID,
			Facet:        f,
			Class:        string(class),
			Message:      fmt.Sprintf("fetch %s: %v", f, err),
		})
		return 0, err
	}
	metrics.RecordFacetFetch(string(f), "success")
	o.stats.fetched(f, len(records))

	if len(records) == 0 {
		snap.saved(f, 0)
		return 0, nil
	}
	res, err := save(ctx, records)
	if err != nil {
		o.stats.failed(f)
		snap.failed(f)
		return 0, err
	}
	o.stats.saved(f, res)
	o.records.add(f, records)
	snap.saved(f, res.Upserted)
	return res.Upserted, nil
}

func displayName(loc models.Location, ref models.LocationRef) string {
	if loc.Title != "" {
		return loc.Title
	}
	return "location " + ref.LocationID
}
