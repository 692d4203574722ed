//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package metric provides the bridge's OpenTelemetry meter and the
// instruments recorded by the transport, the supervisor and the runner.
package metric

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"google.golang.org/grpc"

	itelemetry "trpc.group/trpc-go/trpc-agent-bridge/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-bridge/usage"
)

// Instrument names.
const (
	NameRequests        = "bridge.requests"
	NameWorkerSpawns    = "bridge.worker.spawns"
	NameStrategyApplied = "session.strategy.applied"
	NameTokens          = "session.tokens"
)

var (
	// Meter is the global OpenTelemetry meter for the bridge.
	Meter metric.Meter = noopm.Meter{}

	current atomic.Pointer[instruments]
)

func init() {
	current.Store(newInstruments(Meter))
}

type instruments struct {
	requests        metric.Int64Counter
	workerSpawns    metric.Int64Counter
	strategyApplied metric.Int64Counter
	tokens          metric.Int64Histogram
}

func newInstruments(m metric.Meter) *instruments {
	// Instrument creation only fails on invalid names; the noop
	// instruments returned alongside the error are still usable.
	requests, _ := m.Int64Counter(NameRequests,
		metric.WithDescription("Requests sent to the worker, by command type and status."))
	spawns, _ := m.Int64Counter(NameWorkerSpawns,
		metric.WithDescription("Worker processes started by the supervisor."))
	applied, _ := m.Int64Counter(NameStrategyApplied,
		metric.WithDescription("Memory strategy applications that changed a session."))
	tokens, _ := m.Int64Histogram(NameTokens,
		metric.WithDescription("Estimated tokens of one run, by usage category."),
		metric.WithUnit("{token}"))
	return &instruments{
		requests:        requests,
		workerSpawns:    spawns,
		strategyApplied: applied,
		tokens:          tokens,
	}
}

// setMeter replaces the global meter and rebuilds the instruments on it.
func setMeter(m metric.Meter) {
	Meter = m
	current.Store(newInstruments(m))
}

// RecordRequest counts one request sent over the transport.
func RecordRequest(ctx context.Context, commandType, status string) {
	current.Load().requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", commandType),
		attribute.String("status", status),
	))
}

// RecordWorkerSpawn counts one worker process start.
func RecordWorkerSpawn(ctx context.Context) {
	current.Load().workerSpawns.Add(ctx, 1)
}

// RecordStrategyApplied counts one memory strategy application.
func RecordStrategyApplied(ctx context.Context, strategy string) {
	current.Load().strategyApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
	))
}

// RecordTokens records every category of a run's usage.
func RecordTokens(ctx context.Context, u usage.Usage) {
	h := current.Load().tokens
	for _, c := range usage.Categories {
		h.Record(ctx, int64(u.Get(c)), metric.WithAttributes(
			attribute.String("category", string(c)),
		))
	}
}

// Start collects telemetry with optional configuration.
// The environment variables described below can be used for Endpoint configuration.
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_METRICS_ENDPOINT (default: "localhost:4317")
// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	options := &options{
		metricsEndpoint:  metricsEndpoint(),
		serviceName:      itelemetry.ServiceName,
		serviceVersion:   itelemetry.ServiceVersion,
		serviceNamespace: itelemetry.ServiceNamespace,
	}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(options.serviceNamespace),
			semconv.ServiceName(options.serviceName),
			semconv.ServiceVersion(options.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	metricsConn, err := itelemetry.NewConn(options.metricsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics connection: %w", err)
	}

	shutdownMeterProvider, err := initMeterProvider(ctx, res, metricsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}

	setMeter(otel.Meter(itelemetry.InstrumentName))
	return func() error {
		if err := shutdownMeterProvider(ctx); err != nil {
			return fmt.Errorf("failed to shutdown MeterProvider: %w", err)
		}
		return nil
	}, nil
}

func metricsEndpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "localhost:4317"
}

// Initializes an OTLP exporter, and configures the corresponding meter provider.
func initMeterProvider(ctx context.Context, res *resource.Resource, conn *grpc.ClientConn) (func(context.Context) error, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}

// Option is a function that configures meter options.
type Option func(*options)

// options holds the configuration options for meter.
type options struct {
	metricsEndpoint  string
	serviceName      string
	serviceVersion   string
	serviceNamespace string
}

// WithEndpoint sets the metrics endpoint(host and port) the Exporter will connect to.
// The provided endpoint should resemble "example.com:4317" (no scheme or path).
// If an environment variable is set, and this option is passed, this option will take precedence.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.metricsEndpoint = endpoint
	}
}

// WithServiceName overrides the service name reported with every metric.
func WithServiceName(name string) Option {
	return func(opts *options) {
		opts.serviceName = name
	}
}
