// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

/*
Package sync synchronizes business listing data into the local database.

A sync run walks every location visible to the caller's credentials, maps
the external account and locations onto internal Brand and Store records,
and upserts four facets per location: posts, insights, search keywords and
reviews. Progress is streamed to the caller as typed events.

Key Components:

  - Manager: admits runs (bounded by max_concurrent_runs), resumes
    interrupted runs from checkpoints, and runs periodic maintenance
  - Orchestrator: the per-run state machine
    (INIT -> FETCH_ACCOUNT -> FETCH_LOCATIONS -> PROCESS_LOCATIONS -> FINALIZE -> COMPLETE)
  - Worker pool: a fixed number of workers claim locations from a shared cursor
  - Resolver: finds or creates Brands and Stores with collision-free slugs and codes
  - Upserter: batched writes with a bounded retry policy for transient failures
  - Emitter: ordered event delivery to the subscriber and process-wide observers

Per-location Flow:

 1. Validate the location name (accounts/{id}/locations/{id}); malformed names are skipped
 2. Resolve the Store (create on first sight)
 3. Fetch and save posts, insights and keywords concurrently
 4. Once all three have settled, fetch and save reviews

Failure Handling:

Failures are classified as transient, permission, malformed or fatal. A facet
failure is a warning scoped to that location and facet; other facets and
locations continue. A batch whose writes keep failing after three retries is
reported as save-error and abandoned. Only failures that make the run's
results meaningless (no accounts, Brand or Store persistence unavailable)
move the run to FAILED.

Every run ends with exactly one done event, and the subscriber's sink is
closed exactly once, whatever the outcome. A subscriber that disconnects
never stops the run.

Usage Example:

	mgr := sync.NewManager(cfg, db, db,
	    sync.WithCheckpoints(checkpoints),
	    sync.WithObservers(publisher),
	)
	if err := mgr.Start(ctx); err != nil {
	    return err
	}
	defer mgr.Stop()

	runID, err := mgr.StartSync(ctx, sync.StartRequest{Credentials: creds}, sink)
*/
package sync
