//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// agent-worker holds the agent sessions and answers bridge commands read
// from stdin, one JSON object per line, on stdout. Logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"trpc.group/trpc-go/trpc-agent-bridge/bridge/worker"
	"trpc.group/trpc-go/trpc-agent-bridge/config"
	"trpc.group/trpc-go/trpc-agent-bridge/log"
	"trpc.group/trpc-go/trpc-agent-bridge/model/openai"
	"trpc.group/trpc-go/trpc-agent-bridge/runner"
	"trpc.group/trpc-go/trpc-agent-bridge/session/inmemory"
	"trpc.group/trpc-go/trpc-agent-bridge/session/summary"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-bridge/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-bridge/tool/support"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		stateDir       string
		apiKey         string
		baseURL        string
		modelName      string
		summaryModel   string
		poolSize       int
		ticketTools    bool
		retrievalTools []string
		logLevel       string
		telemetryOn    bool
	)
	flagSet := pflag.NewFlagSet("agent-worker", pflag.ContinueOnError)
	flagSet.StringVar(&stateDir, "state-dir", envOr("AGENT_STATE_DIR", ".agent_state"), "directory for the policy data and the cross-session summary")
	flagSet.StringVar(&apiKey, "api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key")
	flagSet.StringVar(&baseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible API base URL")
	flagSet.StringVar(&modelName, "model", config.DefaultModel, "model used when a run does not name one")
	flagSet.StringVar(&summaryModel, "summary-model", summary.DefaultModel, "model used for summaries")
	flagSet.IntVar(&poolSize, "pool-size", worker.DefaultPoolSize, "commands processed at once")
	flagSet.BoolVar(&ticketTools, "ticket-tools", false, "expose the ticket and scheduling tools to the model")
	flagSet.StringSliceVar(&retrievalTools, "retrieval-tools", usage.DefaultRetrievalTools, "tools whose payloads count as retrieval")
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

	modelOpts := []openai.Option{openai.WithAPIKey(apiKey)}
	if baseURL != "" {
		modelOpts = append(modelOpts, openai.WithBaseURL(baseURL))
	}
	m := openai.New(modelName, modelOpts...)

	store := support.NewStore(support.WithStateDir(stateDir))
	sessions := inmemory.NewSessionService(inmemory.WithResetHook(func(context.Context) error {
		store.Reset()
		return nil
	}))
	defer sessions.Close()

	var toolOpts []support.ToolsOption
	if ticketTools {
		toolOpts = append(toolOpts, support.WithTicketTools())
	}
	r := runner.New(sessions, m,
		runner.WithTools(store.Tools(toolOpts...)...),
		runner.WithSummarizer(summary.NewSummarizer(m, summary.WithModelName(summaryModel))),
		runner.WithSummaryStore(summary.NewFileStore(stateDir)),
		runner.WithClassifier(usage.NewClassifier(retrievalTools...)),
	)

	log.Infof("agent-worker: serving on stdio, state in %s", stateDir)
	return worker.New(sessions, r, worker.WithPoolSize(poolSize)).Serve(ctx, os.Stdin, os.Stdout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
