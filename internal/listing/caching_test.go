// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package listing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/listingsync/internal/models"
)

type countingSource struct {
	Source
	accountCalls  int
	locationCalls int
	err           error
}

func (s *countingSource) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.accountCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []models.Account{{Name: "accounts/1"}}, nil
}

func (s *countingSource) ListLocations(ctx context.Context, accountName string) ([]models.Location, error) {
	s.locationCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []models.Location{{Name: accountName + "/locations/1"}}, nil
}

func TestCachingSource(t *testing.T) {
	caches := NewCaches(10, time.Minute)
	inner := &countingSource{}
	alice := models.Credentials{AccessToken: "a", Email: "alice@example.com"}
	bob := models.Credentials{AccessToken: "b", Email: "bob@example.com"}
	ctx := context.Background()

	src := NewCachingSource(inner, caches, alice)
	for i := 0; i < 3; i++ {
		if _, err := src.ListAccounts(ctx); err != nil {
			t.Fatal(err)
		}
		locs, err := src.ListLocations(ctx, "accounts/1")
		if err != nil {
			t.Fatal(err)
		}
		if len(locs) != 1 || locs[0].Name != "accounts/1/locations/1" {
			t.Fatalf("locations = %+v", locs)
		}
	}
	if inner.accountCalls != 1 || inner.locationCalls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", inner.accountCalls, inner.locationCalls)
	}

	if _, err := src.ListLocations(ctx, "accounts/2"); err != nil {
		t.Fatal(err)
	}
	if inner.locationCalls != 2 {
		t.Errorf("different account should miss, calls = %d", inner.locationCalls)
	}

	other := NewCachingSource(inner, caches, bob)
	if _, err := other.ListAccounts(ctx); err != nil {
		t.Fatal(err)
	}
	if inner.accountCalls != 2 {
		t.Errorf("different credentials should miss, calls = %d", inner.accountCalls)
	}
}

func TestCachingSourceDoesNotCacheErrors(t *testing.T) {
	caches := NewCaches(10, time.Minute)
	inner := &countingSource{err: errors.New("boom")}
	src := NewCachingSource(inner, caches, models.Credentials{AccessToken: "a"})

	for i := 0; i < 2; i++ {
		if _, err := src.ListAccounts(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.accountCalls != 2 {
		t.Errorf("calls = %d, want 2", inner.accountCalls)
	}
	if caches.Accounts.Len() != 0 {
		t.Errorf("cache len = %d, want 0", caches.Accounts.Len())
	}
}
