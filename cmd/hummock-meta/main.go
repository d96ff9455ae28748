// SPDX-License-Identifier: AGPL-3.0-only

// Command hummock-meta hosts a Hummock Manager over an in-process
// metastore. RPC transport is an explicit Non-goal (spec.md §1), so this
// process only wires configuration, logging and metrics, and keeps the
// manager's background loops (heartbeat checker, checkpoint worker)
// running until terminated — a realistic entry point for exercising the
// ambient stack without a network surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/risingwavelabs/hummock/pkg/hummock/manager"
	"github.com/risingwavelabs/hummock/pkg/hummock/metastore"
)

func main() {
	var cfg manager.Config
	fs := flag.NewFlagSet("hummock-meta", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	reg := prometheus.NewRegistry()
	store := metastore.NewInMemory()

	m, err := manager.New(cfg, store, logger, reg)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build hummock manager", "err", err)
		os.Exit(1)
	}

	if err := services.StartAndAwaitRunning(context.Background(), m); err != nil {
		level.Error(logger).Log("msg", "failed to start hummock manager", "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "hummock-meta running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	level.Info(logger).Log("msg", "shutting down")
	if err := services.StopAndAwaitTerminated(context.Background(), m); err != nil {
		level.Error(logger).Log("msg", "failed to stop hummock manager cleanly", "err", err)
		os.Exit(1)
	}
}
