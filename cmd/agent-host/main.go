//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// agent-host supervises an agent-worker process and serves the HTTP API
// that runs and configures the two agents.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/host"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/server/api"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        string
		workerPath  string
		executable  string
		workerArgs  []string
		watch       []string
		stateDir    string
		origins     []string
		logLevel    string
		telemetryOn bool
	)
	flagSet := pflag.NewFlagSet("agent-host", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flagSet.StringVar(&workerPath, "worker", envOr("AGENT_WORKER_PATH", "agent-worker"), "path of the worker program")
	flagSet.StringVar(&executable, "executable", os.Getenv("AGENT_WORKER_EXECUTABLE"), "interpreter that runs the worker path, if any")
	flagSet.StringSliceVar(&workerArgs, "worker-arg", nil, "extra worker argument, repeatable")
	flagSet.StringSliceVar(&watch, "watch", nil, "glob of worker sources whose changes restart the worker (default: the worker path)")
	flagSet.StringVar(&stateDir, "state-dir", envOr("AGENT_STATE_DIR", ".agent_state"), "directory of the configuration file")
	flagSet.StringSliceVar(&origins, "cors-origin", []string{"*"}, "allowed CORS origin, repeatable")
	flagSet.StringVar(&logLevel, "log-level", log.LevelInfo, "debug, info, warn, error or fatal")
	flagSet.BoolVar(&telemetryOn, "telemetry", false, "export traces and metrics over OTLP gRPC")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	log.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if telemetryOn {
		cleanTrace, err := trace.Start(ctx)
		if err != nil {
			return fmt.Errorf("start tracing: %w", err)
		}
		defer cleanTrace()
		cleanMetric, err := metric.Start(ctx)
		if err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
		defer cleanMetric()
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	store := config.NewStore(filepath.Join(stateDir, "agent_config.json"))

	supOpts := []bridge.Option{
		bridge.WithArgs(workerArgs...),
		bridge.WithEnv("AGENT_STATE_DIR=" + stateDir),
	}
	if executable != "" {
		supOpts = append(supOpts, bridge.WithExecutable(executable))
	}
	if len(watch) > 0 {
		supOpts = append(supOpts, bridge.WithWatch(watch...))
	}
	sup := bridge.NewSupervisor(workerPath, supOpts...)
	defer sup.Close()
	if err := sup.Open(ctx); err != nil {
		return err
	}

	h, err := host.New(sup, store)
	if err != nil {
		return err
	}
	defer h.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(h, api.WithAllowedOrigins(origins...)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("agent-host: listening on %s, worker %s", addr, workerPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
