// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("interopscan.pipeline")
	meter  = otel.Meter("interopscan.pipeline")
)

type runIDKey struct{}

// RunID returns the run identifier attached to ctx by Executor.Run.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Result summarizes one pipeline run.
type Result struct {
	RunID         string
	Duration      time.Duration
	NodesExecuted int
	NodeDurations map[string]time.Duration

	// FailedNode is empty on success.
	FailedNode string
}

// Executor runs a DAG strictly sequentially.
//
// Description:
//
//	Nodes run one at a time in the DAG's order. Each node gets a child
//	span and a latency sample. The first error aborts the run; later nodes
//	never start.
//
// Thread Safety:
//
//	Executor is safe for concurrent use; each Run has its own state.
type Executor struct {
	dag    *DAG
	logger *slog.Logger

	metricsOnce     sync.Once
	nodeLatency     metric.Float64Histogram
	nodeFailures    metric.Int64Counter
	pipelineLatency metric.Float64Histogram
}

// NewExecutor creates an executor for dag. A nil logger uses slog.Default().
func NewExecutor(dag *DAG, logger *slog.Logger) (*Executor, error) {
	if dag == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{dag: dag, logger: logger}, nil
}

func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		e.nodeLatency, err = meter.Float64Histogram("pipeline_node_duration_seconds",
			metric.WithDescription("Time spent executing each pipeline node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeFailures, err = meter.Int64Counter("pipeline_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		e.pipelineLatency, err = meter.Float64Histogram("pipeline_duration_seconds",
			metric.WithDescription("Total pipeline execution time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pipeline_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run executes every node in order.
//
// Outputs:
//
//	*Result - Always non-nil once ctx is valid, also on failure.
//	error - *NodeError wrapping the failing node's error, or ctx.Err().
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	e.initMetrics()

	runID := uuid.NewString()[:12]
	ctx = context.WithValue(ctx, runIDKey{}, runID)
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(
			attribute.String("pipeline.name", e.dag.Name()),
			attribute.String("pipeline.run_id", runID),
			attribute.Int("pipeline.node_count", e.dag.NodeCount()),
		),
	)
	defer span.End()

	logger := e.logger.With(slog.String("run_id", runID))
	logger.Info("pipeline started",
		slog.String("pipeline", e.dag.Name()),
		slog.Int("nodes", e.dag.NodeCount()),
	)

	start := time.Now()
	res := &Result{RunID: runID, NodeDurations: make(map[string]time.Duration)}
	for _, name := range e.dag.order {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context canceled")
			res.Duration = time.Since(start)
			return res, err
		}
		node := e.dag.nodes[name]
		d, err := e.executeNode(ctx, logger, node)
		res.NodeDurations[name] = d
		if err != nil {
			res.FailedNode = name
			res.Duration = time.Since(start)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("pipeline failed",
				slog.String("failed_node", name),
				slog.String("error", err.Error()),
			)
			return res, NewNodeError(name, err)
		}
		res.NodesExecuted++
	}

	res.Duration = time.Since(start)
	if e.pipelineLatency != nil {
		e.pipelineLatency.Record(ctx, res.Duration.Seconds(),
			metric.WithAttributes(attribute.String("pipeline", e.dag.Name())),
		)
	}
	span.SetStatus(codes.Ok, "")
	logger.Info("pipeline completed",
		slog.Duration("duration", res.Duration),
		slog.Int("nodes_executed", res.NodesExecuted),
	)
	return res, nil
}

func (e *Executor) executeNode(ctx context.Context, logger *slog.Logger, node Node) (time.Duration, error) {
	ctx, span := tracer.Start(ctx, node.Name(),
		trace.WithAttributes(
			attribute.String("pipeline.node", node.Name()),
			attribute.StringSlice("pipeline.dependencies", node.Dependencies()),
		),
	)
	defer span.End()

	logger.Debug("node starting", slog.String("node", node.Name()))
	start := time.Now()
	err := node.Execute(ctx)
	d := time.Since(start)

	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, d.Seconds(),
			metric.WithAttributes(attribute.String("node", node.Name())),
		)
	}
	if err != nil {
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node.Name())))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return d, err
	}
	span.SetStatus(codes.Ok, "")
	logger.Debug("node completed",
		slog.String("node", node.Name()),
		slog.Duration("duration", d),
	)
	return d, nil
}
