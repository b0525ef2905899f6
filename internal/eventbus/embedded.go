// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

//go:build nats

package eventbus

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/listingsync/internal/logging"
)

const (
	embeddedReadyTimeout = 30 * time.Second
	embeddedMaxPayload   = 1 << 20
)

// EmbeddedServer is an in-process NATS JetStream server for single-node
// deployments that still want durable event streams.
type EmbeddedServer struct {
	server   *server.Server
	storeDir string
	tempDir  bool
}

// StartEmbeddedServer starts a JetStream server on a random loopback port.
// An empty storeDir uses a temporary directory that Shutdown removes.
func StartEmbeddedServer(storeDir string) (*EmbeddedServer, error) {
	temp := false
	if storeDir == "" {
		dir, err := os.MkdirTemp("", "listingsync-nats-*")
		if err != nil {
			return nil, fmt.Errorf("create NATS store dir: %w", err)
		}
		storeDir, temp = dir, true
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: "listingsync-events",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		JetStream:  true,
		StoreDir:   storeDir,
		MaxPayload: embeddedMaxPayload,
		NoSigs:     true,
	})
	if err != nil {
		if temp {
			os.RemoveAll(storeDir)
		}
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		if temp {
			os.RemoveAll(storeDir)
		}
		return nil, fmt.Errorf("NATS server not ready within %s", embeddedReadyTimeout)
	}

	logging.Info().Str("url", ns.ClientURL()).Str("store_dir", storeDir).Msg("Embedded NATS server started")
	return &EmbeddedServer{server: ns, storeDir: storeDir, tempDir: temp}, nil
}

// ClientURL is the URL clients connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// JetStreamEnabled reports whether JetStream came up.
func (s *EmbeddedServer) JetStreamEnabled() bool {
	return s.server.JetStreamEnabled()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
	if s.tempDir {
		if err := os.RemoveAll(s.storeDir); err != nil {
			logging.Warn().Err(err).Str("dir", s.storeDir).Msg("Failed to remove NATS store dir")
		}
	}
}
