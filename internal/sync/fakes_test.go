// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/listingsync/internal/database"
	"github.com/tomtom215/listingsync/internal/models"
)

// fakeFetcher serves canned listing data. Facet hooks default to one record
// per location; set a hook to inject failures or delays.
type fakeFetcher struct {
	accounts    []models.Account
	accountsErr error
	locations   map[string][]models.Location
	locErr      map[string]error

	reviews  func(ref models.LocationRef) ([]models.Review, error)
	posts    func(ref models.LocationRef) ([]models.Post, error)
	insights func(ref models.LocationRef) (*models.PerformanceSample, error)
	keywords func(ref models.LocationRef) ([]models.SearchKeywordSample, error)

	delay time.Duration

	mu       sync.Mutex
	calls    []string // "facet:locationID" in call order
	finished map[string]time.Time
	started  map[string]time.Time
}

func newFakeFetcher(accountID string, locationIDs ...string) *fakeFetcher {
	acct := "accounts/" + accountID
	f := &fakeFetcher{
		accounts:  []models.Account{{Name: acct, DisplayName: "Acme Coffee"}},
		locations: map[string][]models.Location{},
		locErr:    map[string]error{},
		finished:  map[string]time.Time{},
		started:   map[string]time.Time{},
	}
	for _, id := range locationIDs {
		f.locations[acct] = append(f.locations[acct], models.Location{
			Name:      acct + "/locations/" + id,
			Title:     "Acme " + id,
			StoreCode: "S" + id,
			Address:   models.Address{Lines: []string{id + " Main St"}, Locality: "Springfield", Region: "IL", PostalCode: "62701", Country: "US"},
		})
	}
	return f
}

func (f *fakeFetcher) record(facet string, ref models.LocationRef) func() {
	key := facet + ":" + ref.LocationID
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.started[key] = time.Now()
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() {
		f.mu.Lock()
		f.finished[key] = time.Now()
		f.mu.Unlock()
	}
}

func (f *fakeFetcher) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeFetcher) ListLocations(ctx context.Context, accountName string) ([]models.Location, error) {
	if err := f.locErr[accountName]; err != nil {
		return nil, err
	}
	return f.locations[accountName], nil
}

func (f *fakeFetcher) FetchReviews(ctx context.Context, ref models.LocationRef) ([]models.Review, error) {
	defer f.record("reviews", ref)()
	if f.reviews != nil {
		return f.reviews(ref)
	}
	return []models.Review{{ReviewID: "r-" + ref.LocationID, StarRating: 5, CreateTime: time.Now()}}, nil
}

func (f *fakeFetcher) FetchPosts(ctx context.Context, ref models.LocationRef) ([]models.Post, error) {
	defer f.record("posts", ref)()
	if f.posts != nil {
		return f.posts(ref)
	}
	return []models.Post{{PostID: "p-" + ref.LocationID, TopicType: "STANDARD"}}, nil
}

func (f *fakeFetcher) FetchInsights(ctx context.Context, ref models.LocationRef, start, end time.Time) (*models.PerformanceSample, error) {
	defer f.record("insights", ref)()
	if f.insights != nil {
		return f.insights(ref)
	}
	return &models.PerformanceSample{PeriodStart: start, PeriodEnd: end, MobileMapsImpressions: 100, CallClicks: 5}, nil
}

func (f *fakeFetcher) FetchKeywords(ctx context.Context, ref models.LocationRef, fromYear, fromMonth, toYear, toMonth int) ([]models.SearchKeywordSample, error) {
	defer f.record("keywords", ref)()
	if f.keywords != nil {
		return f.keywords(ref)
	}
	return []models.SearchKeywordSample{{Keyword: "coffee", Year: toYear, Month: toMonth, Impressions: 40}}, nil
}

func (f *fakeFetcher) factory() FetcherFactory {
	return func(ctx context.Context, creds models.Credentials) (Fetcher, error) { return f, nil }
}

// memEntities is an in-memory EntityStore.
type memEntities struct {
	mu     sync.Mutex
	brands map[string]*models.Brand
	stores map[string]*models.Store

	findBrandErr   error
	createStoreErr error
	touchErr       error

	// storeConflicts makes that many CreateStore calls fail with a unique
	// violation, storeConflictErr when set and errDuplicate otherwise.
	storeConflicts   int
	storeConflictErr error
	storeCreates     int
	touched          int
}

func newMemEntities() *memEntities {
	return &memEntities{brands: map[string]*models.Brand{}, stores: map[string]*models.Store{}}
}

var errDuplicate = errors.New(`Constraint Error: Duplicate key "slug: acme" violates unique constraint`)

func (m *memEntities) FindBrand(ctx context.Context, externalAccountID, email string) (*models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findBrandErr != nil {
		return nil, m.findBrandErr
	}
	for _, b := range m.brands {
		if b.ExternalAccountID == externalAccountID || (email != "" && b.ContactEmail == email) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memEntities) BrandSlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.brands {
		if b.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEntities) CreateBrand(ctx context.Context, b *models.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.brands[b.ID] = &cp
	return nil
}

func (m *memEntities) UpdateBrandAccount(ctx context.Context, b *models.Brand, linkAccount bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.brands[b.ID] = &cp
	return nil
}

func (m *memEntities) TouchBrand(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched++
	if b, ok := m.brands[id]; ok {
		b.LastSyncAt = &at
	}
	return nil
}

func (m *memEntities) FindStore(ctx context.Context, externalLocationID string) (*models.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stores {
		if s.ExternalLocationID == externalLocationID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memEntities) StoreSlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stores {
		if s.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEntities) StoreCodeExists(ctx context.Context, brandID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stores {
		if s.BrandID == brandID && s.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memEntities) CreateStore(ctx context.Context, s *models.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createStoreErr != nil {
		return m.createStoreErr
	}
	m.storeCreates++
	if m.storeConflicts > 0 {
		m.storeConflicts--
		if m.storeConflictErr != nil {
			return m.storeConflictErr
		}
		return errDuplicate
	}
	cp := *s
	m.stores[s.ID] = &cp
	return nil
}

func (m *memEntities) UpdateStoreListing(ctx context.Context, s *models.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stores[s.ID] = &cp
	return nil
}

func (m *memEntities) storeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

func (m *memEntities) brandCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.brands)
}

// memFacets is an in-memory FacetStore keyed by natural key.
type memFacets struct {
	mu       sync.Mutex
	reviews  map[string]models.Review
	posts    map[string]models.Post
	insights map[string]models.PerformanceSample
	keywords map[string]models.SearchKeywordSample

	// fail, when set, is consulted before every write.
	fail  func(f models.Facet, attempt int) error
	calls map[models.Facet]int
}

func newMemFacets() *memFacets {
	return &memFacets{
		reviews:  map[string]models.Review{},
		posts:    map[string]models.Post{},
		insights: map[string]models.PerformanceSample{},
		keywords: map[string]models.SearchKeywordSample{},
		calls:    map[models.Facet]int{},
	}
}

func (m *memFacets) check(f models.Facet) error {
	m.calls[f]++
	if m.fail != nil {
		return m.fail(f, m.calls[f])
	}
	return nil
}

func upsertInto[T any](dst map[string]T, key string, v T, res *models.UpsertResult) {
	if _, ok := dst[key]; ok {
		res.Modified++
	} else {
		res.Inserted++
	}
	dst[key] = v
	res.Upserted++
}

func (m *memFacets) UpsertReviews(ctx context.Context, reviews []models.Review) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.UpsertResult
	if err := m.check(models.FacetReviews); err != nil {
		return res, err
	}
	for _, r := range reviews {
		upsertInto(m.reviews, r.ReviewID, r, &res)
	}
	return res, nil
}

func (m *memFacets) UpsertPosts(ctx context.Context, posts []models.Post) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.UpsertResult
	if err := m.check(models.FacetPosts); err != nil {
		return res, err
	}
	for _, p := range posts {
		upsertInto(m.posts, p.PostID, p, &res)
	}
	return res, nil
}

func (m *memFacets) UpsertPerformanceSamples(ctx context.Context, samples []models.PerformanceSample) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.UpsertResult
	if err := m.check(models.FacetInsights); err != nil {
		return res, err
	}
	for _, s := range samples {
		key := fmt.Sprintf("%s|%s|%s", s.StoreID, s.PeriodStart.Format(time.DateOnly), s.PeriodEnd.Format(time.DateOnly))
		upsertInto(m.insights, key, s, &res)
	}
	return res, nil
}

func (m *memFacets) UpsertKeywordSamples(ctx context.Context, samples []models.SearchKeywordSample) (models.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.UpsertResult
	if err := m.check(models.FacetKeywords); err != nil {
		return res, err
	}
	for _, s := range samples {
		key := fmt.Sprintf("%s|%s|%d|%d", s.StoreID, s.Keyword, s.Year, s.Month)
		upsertInto(m.keywords, key, s, &res)
	}
	return res, nil
}

func (m *memFacets) counts() (reviews, posts, insights, keywords int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews), len(m.posts), len(m.insights), len(m.keywords)
}

// recordingSink collects delivered events. failAfter > 0 makes every Send
// after that many events fail, as a disconnected client would.
type recordingSink struct {
	mu        sync.Mutex
	events    []models.SyncEvent
	failAfter int
	closes    atomic.Int32
}

func (s *recordingSink) Send(ev models.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("client disconnected")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *recordingSink) all() []models.SyncEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SyncEvent(nil), s.events...)
}

func (s *recordingSink) ofType(t models.EventType) []models.SyncEvent {
	var out []models.SyncEvent
	for _, ev := range s.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// recordingRuns is an in-memory RunStore.
type recordingRuns struct {
	mu        sync.Mutex
	saved     map[string]*models.SyncRun
	completed map[string][]string
}

func newRecordingRuns() *recordingRuns {
	return &recordingRuns{saved: map[string]*models.SyncRun{}, completed: map[string][]string{}}
}

func (r *recordingRuns) Save(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.saved[run.ID] = &cp
	return nil
}

func (r *recordingRuns) MarkLocationComplete(ctx context.Context, runID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[runID] = append(r.completed[runID], name)
	return nil
}

func (r *recordingRuns) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.saved[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	cp.CompletedLocations = append(append([]string(nil), run.CompletedLocations...), r.completed[id]...)
	return &cp, nil
}

func (r *recordingRuns) List(ctx context.Context) ([]*models.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SyncRun
	for _, run := range r.saved {
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (r *recordingRuns) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// noSleep makes retry policies instantaneous.
func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type testEnv struct {
	fetcher  *fakeFetcher
	entities *memEntities
	facets   *memFacets
	runs     *recordingRuns
	sink     *recordingSink
}

func newTestEnv(locationIDs ...string) *testEnv {
	return &testEnv{
		fetcher:  newFakeFetcher("100", locationIDs...),
		entities: newMemEntities(),
		facets:   newMemFacets(),
		runs:     newRecordingRuns(),
		sink:     &recordingSink{},
	}
}

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func (e *testEnv) deps() Dependencies {
	return Dependencies{
		Fetchers: e.fetcher.factory(),
		Entities: e.entities,
		Facets:   e.facets,
		Runs:     e.runs,
		Policy:   RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Sleep: noSleep},
		Settings: Settings{
			MaxConcurrentLocations: 5,
			FetchTimeout:           5 * time.Second,
			PersistTimeout:         5 * time.Second,
			SnapshotLimit:          100,
			Now:                    func() time.Time { return testNow },
		},
	}
}

// run executes one sync to completion and returns the final record.
func (e *testEnv) run(t *testing.T, req RunRequest) *models.SyncRun {
	t.Helper()
	if req.Credentials.AccessToken == "" {
		req.Credentials = models.Credentials{AccessToken: "token", Email: "owner@example.com"}
	}
	deps := e.deps()
	emitter := NewEmitter("run-test", e.sink, 1024)
	orch := NewOrchestrator("run-test", req, deps, emitter)

	done := make(chan *models.SyncRun, 1)
	go func() { done <- orch.Run(context.Background()) }()
	select {
	case r := <-done:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("sync run did not finish")
		return nil
	}
}

func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

// checkTerminal asserts the stream ends with exactly one done and the sink
// was closed exactly once.
func checkTerminal(t *testing.T, sink *recordingSink, want models.RunStatus) {
	t.Helper()
	events := sink.all()
	if len(events) == 0 {
		t.Fatal("no events delivered")
	}
	if got := len(sink.ofType(models.EventDone)); got != 1 {
		t.Errorf("done events: expected 1, got %d", got)
	}
	last := events[len(events)-1]
	if last.Type != models.EventDone {
		t.Errorf("last event: expected done, got %s", last.Type)
	} else if p, ok := last.Payload.(models.DonePayload); !ok || p.Status != want {
		t.Errorf("done payload: expected status %s, got %+v", want, last.Payload)
	}
	if got := sink.closes.Load(); got != 1 {
		t.Errorf("sink closes: expected 1, got %d", got)
	}
}
