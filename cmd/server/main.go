// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/listingsync/internal/api"
	"github.com/tomtom215/listingsync/internal/checkpoint"
	"github.com/tomtom215/listingsync/internal/config"
	"github.com/tomtom215/listingsync/internal/database"
	"github.com/tomtom215/listingsync/internal/eventbus"
	"github.com/tomtom215/listingsync/internal/logging"
	"github.com/tomtom215/listingsync/internal/supervisor"
	"github.com/tomtom215/listingsync/internal/supervisor/services"
	"github.com/tomtom215/listingsync/internal/sync"
	ws "github.com/tomtom215/listingsync/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("listingsync exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

// app holds the wired components and the resources to release on exit.
type app struct {
	tree    *supervisor.SupervisorTree
	server  *http.Server
	closers []io.Closer
}

func (a *app) close() {
	// Release in reverse order of acquisition.
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logging.Error().Err(err).Msg("Error releasing resource")
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("checkpoints", cfg.Checkpoint.Enabled).
		Bool("events", cfg.Events.Enabled).
		Str("events_backend", cfg.Events.Backend).
		Int("max_concurrent_locations", cfg.Sync.MaxConcurrentLocations).
		Msg("Starting listingsync with supervisor tree")

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	errCh := a.tree.ServeBackground(ctx)
	logging.Info().Str("addr", a.server.Addr).Msg("Supervisor tree started")

	var serveErr error
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
			serveErr = err
		}
	}

	if n := a.tree.LogUnstopped(); n > 0 {
		logging.Warn().Int("count", n).Msg("Services failed to stop within timeout")
	}
	return serveErr
}

// build wires storage, the sync manager, messaging and the HTTP server into
// a supervisor tree. On error every resource opened so far is closed.
func build(cfg *config.Config) (*app, error) {
	a := &app{}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.closers = append(a.closers, db)
	version, err := db.SchemaVersion(context.Background())
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	logging.Info().Int("schema_version", version).Msg("Database initialized successfully")

	hub := ws.NewHub()
	opts := []sync.ManagerOption{}

	if cfg.Checkpoint.Enabled {
		store, cerr := checkpoint.Open(cfg.Checkpoint)
		if cerr != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", cerr)
		}
		a.closers = append(a.closers, store)
		opts = append(opts, sync.WithCheckpoints(store))
	}

	var forwarder *ws.BusForwarder
	if cfg.Events.Enabled {
		bus, berr := eventbus.New(cfg.Events)
		if berr != nil {
			return nil, fmt.Errorf("create event bus: %w", berr)
		}
		a.closers = append(a.closers, bus)
		// Events reach the hub through the bus so remote subscribers and
		// local WebSocket clients see the same stream.
		opts = append(opts, sync.WithObservers(bus))
		forwarder = ws.NewBusForwarder(hub, bus)
		logging.Info().Str("backend", cfg.Events.Backend).Str("topic", bus.Topic()).Msg("Event bus enabled")
	} else {
		opts = append(opts, sync.WithObservers(hub))
	}

	manager := sync.NewManager(cfg, db, db, opts...)

	handler := api.NewHandler(cfg, manager, db, hub)
	router := api.NewRouter(handler, api.NewChiMiddlewareConfig(cfg.Security))
	a.server = newHTTPServer(cfg.Server, router.Setup())

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: shutdownBudget(cfg.Server.ShutdownTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	a.tree = tree

	a.tree.AddSyncService(services.NewSyncService(manager))
	a.tree.AddMessagingService(services.NewWebSocketHubService(hub))
	if forwarder != nil {
		a.tree.AddMessagingService(forwarder)
	}
	a.tree.AddAPIService(services.NewHTTPServerService(a.server, cfg.Server.ShutdownTimeout))

	built = true
	return a, nil
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout, // zero keeps SSE streams open
		IdleTimeout:       60 * time.Second,
	}
}

// shutdownBudget gives each supervised service a little longer than the
// HTTP drain so the server can finish before suture gives up on it.
func shutdownBudget(httpDrain time.Duration) time.Duration {
	if httpDrain <= 0 {
		httpDrain = 10 * time.Second
	}
	return httpDrain + 5*time.Second
}
