// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

//go:build integration

package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// SkipIfNoDocker skips t unless the container provider answers a health check.
func SkipIfNoDocker(t *testing.T) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// testLogger routes testcontainers lifecycle output to t.Logf.
type testLogger struct {
	t *testing.T
}

func (l testLogger) Printf(format string, v ...interface{}) {
	l.t.Helper()
	l.t.Logf(format, v...)
}

// terminateOnCleanup registers container termination with t. Failures are
// logged, never fatal: the test result is already decided by then.
func terminateOnCleanup(t *testing.T, container testcontainers.Container) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
}

// StartNATS runs a JetStream NATS container for the lifetime of t and
// returns its client URL. It skips t when Docker is unavailable.
func StartNATS(t *testing.T, opts ...NATSOption) string {
	t.Helper()
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	nc, err := NewNATSContainer(ctx, append([]NATSOption{WithTestLogger(t)}, opts...)...)
	if err != nil {
		t.Fatalf("start nats container: %v", err)
	}
	terminateOnCleanup(t, nc)
	return nc.URL
}
