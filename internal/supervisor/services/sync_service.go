// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package services

import (
	"context"
	"fmt"
)

// StartStopManager is a component with a non-blocking Start and a blocking Stop.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// Maintainer is implemented by managers that can run housekeeping on demand.
type Maintainer interface {
	RunMaintenance(ctx context.Context)
}

// SyncService adapts the sync run manager to suture.Service. Stop cancels
// in-flight runs, so the service is only stopped on process shutdown.
type SyncService struct {
	manager StartStopManager
	name    string
}

func NewSyncService(manager StartStopManager) *SyncService {
	return &SyncService{
		manager: manager,
		name:    "sync-manager",
	}
}

// Serve implements suture.Service. Managers that implement Maintainer get
// one maintenance pass on startup so stale checkpoints from a previous
// process are pruned without waiting a full interval.
func (s *SyncService) Serve(ctx context.Context) error {
	if m, ok := s.manager.(Maintainer); ok {
		m.RunMaintenance(ctx)
	}
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("sync manager start failed: %w", err)
	}

	<-ctx.Done()

	// Stop blocks until runs and the maintenance loop have exited.
	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("sync manager stop failed: %w", err)
	}
	return ctx.Err()
}

func (s *SyncService) String() string {
	return s.name
}
