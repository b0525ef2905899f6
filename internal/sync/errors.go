// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"errors"
	"net"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrorClass is the handling category of a failure.
type ErrorClass string

const (
	// ClassTransient failures are retried by the upserter and become facet
	// warnings at the fetch boundary.
	ClassTransient ErrorClass = "transient"
	// ClassPermission failures (missing scope) are facet warnings.
	ClassPermission ErrorClass = "permission"
	// ClassMalformed failures skip the affected unit with a warning.
	ClassMalformed ErrorClass = "malformed"
	// ClassFatal failures abort the run.
	ClassFatal ErrorClass = "fatal"
)

var (
	// ErrMalformedLocation is returned for location names that are not
	// accounts/{id}/locations/{id}.
	ErrMalformedLocation = errors.New("malformed location name")

	// ErrTooManyRuns is returned when max_concurrent_runs runs are active.
	ErrTooManyRuns = errors.New("too many concurrent sync runs")

	// ErrRunNotResumable is returned when resuming a completed or active run.
	ErrRunNotResumable = errors.New("sync run is not resumable")

	// ErrNoAccounts is returned when the credentials see no account.
	ErrNoAccounts = errors.New("no accounts visible to the credentials")
)

type temporary interface{ Temporary() bool }
type permissionDenied interface{ PermissionDenied() bool }
type malformed interface{ Malformed() bool }

// Classify maps err onto an ErrorClass. Errors advertise their class through
// Temporary, PermissionDenied or Malformed methods anywhere in the wrap
// chain; context deadlines, network timeouts and an open circuit breaker are
// transient. Anything unrecognized is fatal.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMalformedLocation) {
		return ClassMalformed
	}

	var p permissionDenied
	if errors.As(err, &p) && p.PermissionDenied() {
		return ClassPermission
	}
	var m malformed
	if errors.As(err, &m) && m.Malformed() {
		return ClassMalformed
	}
	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return ClassTransient
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	return ClassFatal
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return Classify(err) == ClassTransient
}
