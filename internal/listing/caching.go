// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package listing

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/tomtom215/listingsync/internal/cache"
	"github.com/tomtom215/listingsync/internal/models"
)

// Source is the set of listing reads the sync engine performs.
type Source interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListLocations(ctx context.Context, accountName string) ([]models.Location, error)
	FetchReviews(ctx context.Context, ref models.LocationRef) ([]models.Review, error)
	FetchPosts(ctx context.Context, ref models.LocationRef) ([]models.Post, error)
	FetchInsights(ctx context.Context, ref models.LocationRef, start, end time.Time) (*models.PerformanceSample, error)
	FetchKeywords(ctx context.Context, ref models.LocationRef, fromYear, fromMonth, toYear, toMonth int) ([]models.SearchKeywordSample, error)
}

var _ Source = (*Client)(nil)

// Caches holds the discovery caches shared by every run. They are owned by
// the caller and live as long as the process.
type Caches struct {
	Accounts  *cache.LRU[[]models.Account]
	Locations *cache.LRU[[]models.Location]
}

// NewCaches builds both discovery caches with the same capacity and TTL.
func NewCaches(capacity int, ttl time.Duration) *Caches {
	return &Caches{
		Accounts:  cache.New[[]models.Account]("accounts", capacity, ttl),
		Locations: cache.New[[]models.Location]("locations", capacity, ttl),
	}
}

// CleanupExpired drops expired entries from both caches.
func (c *Caches) CleanupExpired() int {
	return c.Accounts.CleanupExpired() + c.Locations.CleanupExpired()
}

// CachingSource serves account and location discovery from Caches. Facet
// reads always go to the wrapped Source.
type CachingSource struct {
	Source
	caches *Caches
	scope  string
}

// NewCachingSource wraps src. Entries are scoped to the credential identity
// so one caller never sees another caller's accounts.
func NewCachingSource(src Source, caches *Caches, creds models.Credentials) *CachingSource {
	return &CachingSource{Source: src, caches: caches, scope: credentialScope(creds)}
}

func credentialScope(creds models.Credentials) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(creds.AccessToken)) //nolint:errcheck // hash writes never fail
	_, _ = h.Write([]byte{0})                 //nolint:errcheck // hash writes never fail
	_, _ = h.Write([]byte(creds.Email))       //nolint:errcheck // hash writes never fail
	return strconv.FormatUint(h.Sum64(), 16)
}

// ListAccounts returns cached accounts when present.
func (s *CachingSource) ListAccounts(ctx context.Context) ([]models.Account, error) {
	key := s.scope
	if v, ok := s.caches.Accounts.Get(key); ok {
		return v, nil
	}
	v, err := s.Source.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	s.caches.Accounts.Set(key, v)
	return v, nil
}

// ListLocations returns cached locations when present.
func (s *CachingSource) ListLocations(ctx context.Context, accountName string) ([]models.Location, error) {
	key := s.scope + "|" + accountName
	if v, ok := s.caches.Locations.Get(key); ok {
		return v, nil
	}
	v, err := s.Source.ListLocations(ctx, accountName)
	if err != nil {
		return nil, err
	}
	s.caches.Locations.Set(key, v)
	return v, nil
}
