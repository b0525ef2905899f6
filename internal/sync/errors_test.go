// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/listingsync/internal/listing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"rate limited", &listing.APIError{StatusCode: 429}, ClassTransient},
		{"server error", &listing.APIError{StatusCode: 503}, ClassTransient},
		{"missing scope", &listing.APIError{StatusCode: 403}, ClassPermission},
		{"unauthorized", &listing.APIError{StatusCode: 401}, ClassPermission},
		{"not found", &listing.APIError{StatusCode: 404}, ClassMalformed},
		{"wrapped api error", fmt.Errorf("fetch reviews: %w", &listing.APIError{StatusCode: 403}), ClassPermission},
		{"db write conflict", errTransient, ClassTransient},
		{"deadline", fmt.Errorf("save: %w", context.DeadlineExceeded), ClassTransient},
		{"breaker open", gobreaker.ErrOpenState, ClassTransient},
		{"malformed location", fmt.Errorf("x: %w", ErrMalformedLocation), ClassMalformed},
		{"unknown", errors.New("constraint violated"), ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(errTransient) {
		t.Error("transient database error should be retryable")
	}
	if Retryable(&listing.APIError{StatusCode: 403}) {
		t.Error("permission error should not be retryable")
	}
}
