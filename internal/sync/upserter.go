// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"time"

	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/metrics"
	"github.com/tomtom215/listingsync/internal/models"
)

// FacetStore writes facet batches by natural key. *database.DB implements it.
type FacetStore interface {
	UpsertReviews(ctx context.Context, reviews []models.Review) (models.UpsertResult, error)
	UpsertPosts(ctx context.Context, posts []models.Post) (models.UpsertResult, error)
	UpsertPerformanceSamples(ctx context.Context, samples []models.PerformanceSample) (models.UpsertResult, error)
	UpsertKeywordSamples(ctx context.Context, samples []models.SearchKeywordSample) (models.UpsertResult, error)
}

// SaveContext ties a batch to the Brand and Store it belongs to.
type SaveContext struct {
	BrandID    string
	StoreID    string
	LocationID string
}

// Upserter persists facet batches with retry. A batch that still fails after
// the policy's retries is reported as save-error and abandoned; the error is
// returned so the caller can count it, but it never aborts the run.
type Upserter struct {
	store   FacetStore
	policy  RetryPolicy
	emitter *Emitter
	timeout time.Duration
}

// NewUpserter returns an upserter reporting to emitter. timeout bounds each
// attempt; zero means no per-attempt timeout.
func NewUpserter(store FacetStore, policy RetryPolicy, emitter *Emitter, timeout time.Duration) *Upserter {
	return &Upserter{store: store, policy: policy, emitter: emitter, timeout: timeout}
}

// SaveReviews stamps and writes reviews.
func (u *Upserter) SaveReviews(ctx context.Context, sc SaveContext, reviews []models.Review) (models.UpsertResult, error) {
	for i := range reviews {
		reviews[i].StoreID, reviews[i].BrandID = sc.StoreID, sc.BrandID
	}
	return u.save(ctx, models.FacetReviews, sc, len(reviews), func(ctx context.Context) (models.UpsertResult, error) {
		return u.store.UpsertReviews(ctx, reviews)
	})
}

// SavePosts stamps and writes posts.
func (u *Upserter) SavePosts(ctx context.Context, sc SaveContext, posts []models.Post) (models.UpsertResult, error) {
	for i := range posts {
		posts[i].StoreID, posts[i].BrandID = sc.StoreID, sc.BrandID
	}
	return u.save(ctx, models.FacetPosts, sc, len(posts), func(ctx context.Context) (models.UpsertResult, error) {
		return u.store.UpsertPosts(ctx, posts)
	})
}

// SaveInsights stamps and writes performance samples. Derived rates are
// computed by the store at write time.
func (u *Upserter) SaveInsights(ctx context.Context, sc SaveContext, samples []models.PerformanceSample) (models.UpsertResult, error) {
	for i := range samples {
		samples[i].StoreID, samples[i].BrandID = sc.StoreID, sc.BrandID
	}
	return u.save(ctx, models.FacetInsights, sc, len(samples), func(ctx context.Context) (models.UpsertResult, error) {
		return u.store.UpsertPerformanceSamples(ctx, samples)
	})
}

// SaveKeywords stamps and writes search keyword samples.
func (u *Upserter) SaveKeywords(ctx context.Context, sc SaveContext, samples []models.SearchKeywordSample) (models.UpsertResult, error) {
	for i := range samples {
		samples[i].StoreID, samples[i].BrandID = sc.StoreID, sc.BrandID
	}
	return u.save(ctx, models.FacetKeywords, sc, len(samples), func(ctx context.Context) (models.UpsertResult, error) {
		return u.store.UpsertKeywordSamples(ctx, samples)
	})
}

func (u *Upserter) save(ctx context.Context, facet models.Facet, sc SaveContext, count int,
	write func(context.Context) (models.UpsertResult, error)) (models.UpsertResult, error) {
	if count == 0 {
		return models.UpsertResult{}, nil
	}

	base := models.SavePayload{Facet: facet, LocationID: sc.LocationID, StoreID: sc.StoreID, Count: count}
	progress := base
	progress.Attempt = 1
	u.emitter.Emit(models.EventSaveProgress, progress)

	var result models.UpsertResult
	err := u.policy.Execute(ctx, func(attempt int) error {
		attemptCtx, cancel := u.attemptContext(ctx)
		defer cancel()
		var err error
		result, err = write(attemptCtx)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		metrics.SyncUpsertRetries.WithLabelValues(string(facet)).Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("facet", string(facet)).Str("store_id", sc.StoreID).
			Int("attempt", attempt).Dur("delay", delay).Msg("Facet upsert failed, retrying")
		retry := base
		retry.Attempt = attempt + 1
		retry.Error = err.Error()
		u.emitter.Emit(models.EventSaveProgress, retry)
	})

	if err != nil {
		metrics.SyncBatchesAbandoned.WithLabelValues(string(facet)).Inc()
		logging.Ctx(ctx).Error().Err(err).Str("facet", string(facet)).Str("store_id", sc.StoreID).
			Int("count", count).Msg("Facet batch abandoned")
		failed := base
		failed.Error = err.Error()
		u.emitter.Emit(models.EventSaveError, failed)
		return models.UpsertResult{}, err
	}

	metrics.RecordUpsert(string(facet), result.Inserted, result.Modified)
	done := base
	done.Inserted, done.Modified, done.Upserted = result.Inserted, result.Modified, result.Upserted
	u.emitter.Emit(models.EventSaveComplete, done)
	return result, nil
}

func (u *Upserter) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, u.timeout)
}
