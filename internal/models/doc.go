// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

// Package models defines the persisted entities (Brand, Store and the four
// facet record types), the listing API's wire shapes, and the sync run,
// checkpoint and event types shared by the engine and its transports.
package models
