// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

// Package checkpoint persists sync run records in BadgerDB so that an
// interrupted run can be inspected and resumed after a restart.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/models"
)

const (
	runKeyPrefix = "run:"

	// Concurrent workers of one run update the same key.
	maxConflictRetries = 5
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("sync run not found")

// Store keeps SyncRun records keyed by run id.
type Store struct {
	db *badger.DB
}

// Open opens the store described by cfg. InMemory wins over Path.
func Open(cfg config.CheckpointConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory || cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Bool("in_memory", opts.InMemory).Msg("Checkpoint store opened")
	return New(db), nil
}

// New wraps an open database.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

func runKey(id string) []byte {
	return []byte(runKeyPrefix + id)
}

// Save writes run, replacing any earlier record with the same id.
func (s *Store) Save(ctx context.Context, run *models.SyncRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), data)
	})
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var run models.SyncRun
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRunNotFound
		}
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// MarkLocationComplete appends locationName to the run's completed list.
// It is a no-op when the location is already recorded.
func (s *Store) MarkLocationComplete(ctx context.Context, runID, locationName string) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return appendCompleted(txn, runID, locationName)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func appendCompleted(txn *badger.Txn, runID, locationName string) error {
	item, err := txn.Get(runKey(runID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	var run models.SyncRun
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &run) }); err != nil {
		return fmt.Errorf("unmarshal run: %w", err)
	}
	for _, name := range run.CompletedLocations {
		if name == locationName {
			return nil
		}
	}
	run.CompletedLocations = append(run.CompletedLocations, locationName)
	data, err := json.Marshal(&run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return txn.Set(runKey(runID), data)
}

// List returns every stored run, newest first.
func (s *Store) List(ctx context.Context) ([]*models.SyncRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var runs []*models.SyncRun
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var run models.SyncRun
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

// PruneOlderThan deletes finished runs whose last update is before cutoff
// and returns how many were removed. Running records are kept.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	runs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var stale [][]byte
	for _, r := range runs {
		if r.Status != models.RunRunning && r.UpdatedAt.Before(cutoff) {
			stale = append(stale, runKey(r.ID))
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete run: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	return len(stale), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
