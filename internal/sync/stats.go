// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"sort"
	"sync"

	"github.com/tomtom215/listingsync/internal/models"
)

// runStats accumulates a run's counters. Workers update it concurrently.
type runStats struct {
	mu          sync.Mutex
	counters    map[models.Facet]models.FacetCounters
	processed   int
	skipped     int
	warnings    int
	inFlight    int
	maxInFlight int
	completed   []string
	snapshots   []models.LocationSnapshot
}

func newRunStats(prev *models.SyncRun) *runStats {
	s := &runStats{counters: make(map[models.Facet]models.FacetCounters, len(models.Facets))}
	for _, f := range models.Facets {
		s.counters[f] = models.FacetCounters{}
	}
	if prev != nil {
		s.completed = append(s.completed, prev.CompletedLocations...)
	}
	return s
}

func (s *runStats) enter() {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
}

func (s *runStats) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *runStats) warn() {
	s.mu.Lock()
	s.warnings++
	s.mu.Unlock()
}

func (s *runStats) skip() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *runStats) fetched(f models.Facet, n int) {
	s.mu.Lock()
	c := s.counters[f]
	c.Fetched += n
	s.counters[f] = c
	s.mu.Unlock()
}

func (s *runStats) saved(f models.Facet, r models.UpsertResult) {
	s.mu.Lock()
	c := s.counters[f]
	c.Saved += r.Upserted
	c.Inserted += r.Inserted
	c.Modified += r.Modified
	s.counters[f] = c
	s.mu.Unlock()
}

func (s *runStats) failed(f models.Facet) {
	s.mu.Lock()
	c := s.counters[f]
	c.Failed++
	s.counters[f] = c
	s.mu.Unlock()
}

// finish records a processed location and returns the processed count.
func (s *runStats) finish(name string, snap models.LocationSnapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.completed = append(s.completed, name)
	s.snapshots = append(s.snapshots, snap)
	return s.processed
}

// apply copies the counters onto run.
func (s *runStats) apply(run *models.SyncRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.LocationsProcessed = s.processed
	run.LocationsSkipped = s.skipped
	run.Warnings = s.warnings
	run.Counters = make(map[models.Facet]models.FacetCounters, len(s.counters))
	for f, c := range s.counters {
		run.Counters[f] = c
	}
	run.CompletedLocations = append([]string(nil), s.completed...)
}

// snapshotList returns up to limit snapshots ordered by location name, and
// whether any were left out.
func (s *runStats) snapshotList(limit int) ([]models.LocationSnapshot, bool) {
	s.mu.Lock()
	out := append([]models.LocationSnapshot(nil), s.snapshots...)
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LocationName < out[j].LocationName })
	if limit > 0 && len(out) > limit {
		return out[:limit], true
	}
	return out, false
}

func (s *runStats) peakInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// recordSet collects saved records for the FINALIZE snapshot, keeping at
// most limit per facet (no cap when limit <= 0).
type recordSet struct {
	mu        sync.Mutex
	limit     int
	snap      models.SnapshotPayload
	truncated map[models.Facet]bool
}

func newRecordSet(limit int) *recordSet {
	return &recordSet{
		limit: limit,
		snap: models.SnapshotPayload{
			Reviews:  []models.Review{},
			Posts:    []models.Post{},
			Insights: []models.PerformanceSample{},
			Keywords: []models.SearchKeywordSample{},
		},
		truncated: make(map[models.Facet]bool),
	}
}

// add appends a saved batch. records is one of the four facet slice types.
func (r *recordSet) add(f models.Facet, records any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch recs := records.(type) {
	case []models.Review:
		r.snap.Reviews = appendCapped(r, f, r.snap.Reviews, recs)
	case []models.Post:
		r.snap.Posts = appendCapped(r, f, r.snap.Posts, recs)
	case []models.PerformanceSample:
		r.snap.Insights = appendCapped(r, f, r.snap.Insights, recs)
	case []models.SearchKeywordSample:
		r.snap.Keywords = appendCapped(r, f, r.snap.Keywords, recs)
	}
}

func appendCapped[T any](r *recordSet, f models.Facet, dst, src []T) []T {
	if r.limit > 0 && len(dst)+len(src) > r.limit {
		r.truncated[f] = true
		src = src[:r.limit-len(dst)]
	}
	return append(dst, src...)
}

// payload returns a copy of the collected records.
func (r *recordSet) payload() models.SnapshotPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := models.SnapshotPayload{
		Reviews:  append([]models.Review{}, r.snap.Reviews...),
		Posts:    append([]models.Post{}, r.snap.Posts...),
		Insights: append([]models.PerformanceSample{}, r.snap.Insights...),
		Keywords: append([]models.SearchKeywordSample{}, r.snap.Keywords...),
	}
	for _, f := range models.Facets {
		if r.truncated[f] {
			p.Truncated = append(p.Truncated, f)
		}
	}
	return p
}
