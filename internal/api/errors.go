// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package api

import "errors"

var (
	// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
	ErrStreamingUnsupported = errors.New("response writer does not support streaming")

	// ErrStreamClosed is returned by Send after the client went away.
	ErrStreamClosed = errors.New("event stream closed")
)
