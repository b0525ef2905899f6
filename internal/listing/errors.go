// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package listing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// APIError is returned for every failed listing API call. The sync engine
// classifies it through Temporary, PermissionDenied and Malformed.
type APIError struct {
	Op         string // endpoint name, e.g. "reviews"
	StatusCode int    // 0 when no response was received
	Status     string // API status such as PERMISSION_DENIED, when reported
	Message    string
	Err        error // transport, decode or breaker error
	decode     bool
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Status != "":
		return fmt.Sprintf("listing %s: HTTP %d %s: %s", e.Op, e.StatusCode, e.Status, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("listing %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("listing %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("listing %s: %s", e.Op, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Temporary reports rate limiting, server errors, timeouts, dropped
// connections and an open circuit breaker.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, gobreaker.ErrOpenState) || errors.Is(e.Err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	return false
}

// PermissionDenied reports missing scopes, revoked access or expired credentials.
func (e *APIError) PermissionDenied() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Malformed reports a request the API rejected as invalid, a resource that
// does not exist, or a response that could not be decoded.
func (e *APIError) Malformed() bool {
	if e.decode {
		return true
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// clientSideFailure is true for errors caused by the request rather than the
// API's health; they do not count against the circuit breaker.
func clientSideFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.PermissionDenied() || apiErr.Malformed() || errors.Is(apiErr.Err, context.Canceled)
}
