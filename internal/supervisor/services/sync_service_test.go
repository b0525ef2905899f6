// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockSyncManager struct {
	started    atomic.Bool
	stopped    atomic.Bool
	maintained atomic.Int32
	startErr   error
	stopErr    error
}

func (m *mockSyncManager) Start(context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started.Store(true)
	return nil
}

func (m *mockSyncManager) Stop() error {
	m.stopped.Store(true)
	return m.stopErr
}

// maintainingManager also implements Maintainer.
type maintainingManager struct {
	mockSyncManager
}

func (m *maintainingManager) RunMaintenance(context.Context) {
	m.maintained.Add(1)
}

var _ suture.Service = (*SyncService)(nil)

func serveUntilStarted(t *testing.T, svc *SyncService, mgr *mockSyncManager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !mgr.started.Load() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("manager was not started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cancel, errCh
}

func TestSyncService_StartStop(t *testing.T) {
	mgr := &mockSyncManager{}
	cancel, errCh := serveUntilStarted(t, NewSyncService(mgr), mgr)

	if mgr.stopped.Load() {
		t.Fatal("manager stopped before shutdown")
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if !mgr.stopped.Load() {
		t.Error("manager was not stopped")
	}
}

func TestSyncService_MaintenanceOnStart(t *testing.T) {
	mgr := &maintainingManager{}
	cancel, errCh := serveUntilStarted(t, NewSyncService(mgr), &mgr.mockSyncManager)
	cancel()
	<-errCh

	if got := mgr.maintained.Load(); got != 1 {
		t.Errorf("RunMaintenance called %d times, want 1", got)
	}
}

func TestSyncService_Errors(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		startErr := errors.New("already running")
		mgr := &mockSyncManager{startErr: startErr}
		if err := NewSyncService(mgr).Serve(context.Background()); !errors.Is(err, startErr) {
			t.Errorf("Serve() = %v, want %v", err, startErr)
		}
		if mgr.stopped.Load() {
			t.Error("Stop called after failed Start")
		}
	})

	t.Run("stop", func(t *testing.T) {
		stopErr := errors.New("timed out waiting for 2 sync runs to stop")
		mgr := &mockSyncManager{stopErr: stopErr}
		cancel, errCh := serveUntilStarted(t, NewSyncService(mgr), mgr)
		cancel()
		if err := <-errCh; !errors.Is(err, stopErr) {
			t.Errorf("Serve() = %v, want %v", err, stopErr)
		}
	})
}

func TestSyncService_String(t *testing.T) {
	if got := NewSyncService(&mockSyncManager{}).String(); got != "sync-manager" {
		t.Errorf("String() = %q", got)
	}
}
