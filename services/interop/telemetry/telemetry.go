// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry tracing and metrics for a batch run.
//
// Traces go to stdout or an OTLP collector. Metrics go to stdout or into a
// Prometheus registry; since a run is short-lived, the registry (together
// with the process-wide promauto counters) is written to a node-exporter
// textfile on shutdown instead of being scraped.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Traces is "none", "stdout" or "otlp".
	Traces string

	// OTLPEndpoint is the collector address for Traces == "otlp".
	OTLPEndpoint string

	// Metrics is "none", "stdout" or "prometheus".
	Metrics string

	// MetricsFile is the textfile written on shutdown. Only used with
	// Metrics == "prometheus"; empty disables the export.
	MetricsFile string

	// Output receives stdout exporter output. Nil means os.Stderr.
	Output io.Writer
}

// Setup installs the global tracer and meter providers.
//
// Outputs:
//
//	shutdown - Flushes exporters and writes the metrics textfile. Must be
//	           called once the run is over.
//	error - ErrNilContext, ErrUnknownExporter or an exporter failure.
//
// Thread Safety: Call once at process startup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.Traces != "" && cfg.Traces != "none" {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.Metrics != "" && cfg.Metrics != "none" {
		mp, flush, err := newMeterProvider(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		// The textfile gathers through the reader, which stops serving
		// once the provider is shut down.
		if flush != nil {
			shutdownFuncs = append(shutdownFuncs, flush)
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}
	return shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error
	switch cfg.Traces {
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(cfg.Output))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Traces)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

// newMeterProvider returns the provider and, for the Prometheus exporter,
// a function writing the textfile.
func newMeterProvider(cfg Config, res *resource.Resource) (*metric.MeterProvider, func(context.Context) error, error) {
	switch cfg.Metrics {
	case "prometheus":
		reg := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(exporter))
		if cfg.MetricsFile == "" {
			return mp, nil, nil
		}
		gatherers := prometheus.Gatherers{reg, prometheus.DefaultGatherer}
		flush := func(context.Context) error {
			return WriteTextfile(cfg.MetricsFile, gatherers)
		}
		return mp, flush, nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Output))
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Metrics)
	}
}

// WriteTextfile writes every metric of g to path in the node-exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
