// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tombee/mcpdispatch/internal/config"
	"github.com/tombee/mcpdispatch/internal/dispatch"
	"github.com/tombee/mcpdispatch/internal/log"
	"github.com/tombee/mcpdispatch/internal/mcpsession"
	"github.com/tombee/mcpdispatch/internal/tracing"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// dispatchShutdownTimeout bounds how long graceful shutdown of the metrics
// server and the meter provider may take. Dispatcher.Stop returns without
// waiting for in-flight tasks.
const dispatchShutdownTimeout = 10 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file (default: XDG config dir)")
		toolCommand = flag.String("tool-command", "", "Executable launched per worker to back an MCP tool session")
		toolArgs    = flag.String("tool-args", "", "Space-separated arguments passed to -tool-command")
		metricsAddr = flag.String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("mcpdispatchd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", log.Error(err))
		os.Exit(1)
	}

	weights, err := cfg.ToWeightTable()
	if err != nil {
		logger.Error("failed to build weight table", log.Error(err))
		os.Exit(1)
	}

	if *toolCommand == "" {
		logger.Error("-tool-command is required")
		os.Exit(1)
	}
	var args []string
	if *toolArgs != "" {
		args = strings.Fields(*toolArgs)
	}
	factory := func(ctx context.Context, lane dispatch.Lane) (mcpsession.Session, error) {
		return mcpsession.NewProcess(ctx, mcpsession.ProcessConfig{
			Command: *toolCommand,
			Args:    args,
		})
	}

	provider, err := tracing.NewProvider("mcpdispatch", version)
	if err != nil {
		logger.Error("failed to create metrics provider", log.Error(err))
		os.Exit(1)
	}

	d := dispatch.New(cfg.ToDispatchConfig(), weights, factory, provider.Collector(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", log.Error(err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.MetricsHandler())
	server := &http.Server{Addr: *metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("metrics server error", log.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), dispatchShutdownTimeout)
	defer shutdownCancel()

	_ = server.Shutdown(shutdownCtx)
	if err := d.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping dispatcher", log.Error(err))
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down metrics provider", log.Error(err))
	}
}
