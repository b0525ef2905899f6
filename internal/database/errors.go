// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/listingsync/internal/logging"
)

// ErrNotFound is returned by Find* lookups that match nothing.
var ErrNotFound = errors.New("database: record not found")

// TransientError marks a failure that may succeed on retry: DuckDB write
// conflicts, dropped connections, and timeouts.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Temporary reports that the operation can be retried.
func (e *TransientError) Temporary() bool { return true }

// wrapError annotates err with op and marks retryable driver errors.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransactionConflict(err) || isConnectionError(err) || errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransactionConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "cannot update a table that has been altered")
}

// IsUniqueViolation reports whether err came from a unique or primary key
// constraint, e.g. two creators racing for the same slug.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "violates unique constraint") ||
		strings.Contains(msg, "violates primary key constraint")
}

// IsUniqueViolationOn reports whether err is a unique violation of column.
func IsUniqueViolationOn(err error, column string) bool {
	return IsUniqueViolation(err) && strings.Contains(err.Error(), column)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "bad connection", "database is closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// closeWithLog closes closer, logging a failure.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// rollbackQuietly is for error paths where the original error is what matters.
func rollbackQuietly(tx interface{ Rollback() error }) {
	_ = tx.Rollback() //nolint:errcheck // best-effort on error path
}
