// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/interopscan/services/interop/index"
	"github.com/AleutianAI/interopscan/services/interop/storage"
)

var (
	tracer = otel.Tracer("interopscan.analysis")
	meter  = otel.Meter("interopscan.analysis")
)

// DefaultProgressInterval spaces traversal progress logs.
const DefaultProgressInterval = 5 * time.Second

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore enables loading and persisting results.
func WithStore(s storage.Store) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithFingerprint sets the input fingerprint stored with results. A cached
// snapshot is reused only when its fingerprint matches.
func WithFingerprint(fp string) RunnerOption {
	return func(r *Runner) { r.fingerprint = fp }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProgressInterval sets the minimum spacing of progress logs.
func WithProgressInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.progress = rate.Sometimes{Interval: d} }
}

// Runner executes passes over one indexed universe.
//
// Thread Safety:
//
//	Passes must run sequentially. A Runner may be reused for several passes.
type Runner struct {
	idx         *index.Index
	store       storage.Store
	fingerprint string
	logger      *slog.Logger
	progress    rate.Sometimes

	metricsOnce sync.Once
	passLatency metric.Float64Histogram
	visited     metric.Int64Counter
	cacheLoads  metric.Int64Counter
}

// NewRunner returns a Runner for idx.
func NewRunner(idx *index.Index, opts ...RunnerOption) (*Runner, error) {
	if idx == nil {
		return nil, errors.New("analysis: index must not be nil")
	}
	r := &Runner{
		idx:      idx,
		logger:   slog.Default(),
		progress: rate.Sometimes{Interval: DefaultProgressInterval},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Index returns the runner's declaration index.
func (r *Runner) Index() *index.Index { return r.idx }

// Logger returns the runner's logger.
func (r *Runner) Logger() *slog.Logger { return r.logger }

func (r *Runner) initMetrics() {
	r.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		r.passLatency, err = meter.Float64Histogram("interop_pass_duration_seconds",
			metric.WithDescription("Time spent computing one analysis pass"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pass_latency: "+err.Error())
		}

		r.visited, err = meter.Int64Counter("interop_declarations_visited_total",
			metric.WithDescription("Declarations dispatched to pass handlers"),
		)
		if err != nil {
			initErrors = append(initErrors, "visited: "+err.Error())
		}

		r.cacheLoads, err = meter.Int64Counter("interop_result_cache_total",
			metric.WithDescription("Result cache lookups by outcome"),
		)
		if err != nil {
			initErrors = append(initErrors, "cache_loads: "+err.Error())
		}

		if len(initErrors) > 0 {
			r.logger.Error("failed to initialize some analysis metrics",
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run computes or loads the results of pass p.
//
// Description:
//
//	When a store is configured and holds a snapshot with a matching
//	fingerprint that decodes cleanly, the cached results are returned.
//	Otherwise the universe is traversed once in total order, dispatching
//	each selected canonical declaration to the handler for its kind. Then
//	Complete (if implemented) runs, then Finalize for every entry. Every
//	entry must be Final afterwards. The sealed result is persisted.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	r - The runner.
//	p - The pass.
//
// Outputs:
//
//	*Result[T] - The sealed result.
//	error - An *InvariantError from the pass or framework, or a storage error.
func Run[T any](ctx context.Context, r *Runner, p Pass[T]) (*Result[T], error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if p == nil {
		return nil, ErrNilPass
	}
	r.initMetrics()

	name := p.Name()
	ctx, span := tracer.Start(ctx, "analysis.Run",
		trace.WithAttributes(attribute.String("pass", name)))
	defer span.End()

	start := time.Now()
	if res, ok := loadCached(ctx, r, p); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return res, nil
	}

	res, err := compute(ctx, r, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.seal()

	if r.store != nil {
		snap := storage.NewSnapshot(name, r.fingerprint, Encode(res, p.Codec()))
		if err := r.store.Save(ctx, snap); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("pass %s: persist results: %w", name, err)
		}
	}

	duration := time.Since(start)
	if r.passLatency != nil {
		r.passLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("pass", name)))
	}
	span.SetStatus(codes.Ok, "")
	r.logger.Info("pass completed",
		slog.String("pass", name),
		slog.Int("results", res.Len()),
		slog.Duration("duration", duration),
	)
	return res, nil
}

func compute[T any](ctx context.Context, r *Runner, p Pass[T]) (*Result[T], error) {
	name := p.Name()
	res := NewResult[T](name, r.idx)
	handlers := p.Handlers()
	u := r.idx.Universe()

	ids := r.idx.CanonicalIDs()
	visited := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pass %s: %w", name, err)
		}
		d, ok := u.Get(id)
		if !ok {
			continue
		}
		if !p.VisitAll() && !u.EarliestInCodebase(id) {
			continue
		}
		h, ok := handlers[d.Kind]
		if !ok {
			continue
		}
		if err := h(ctx, res, d); err != nil {
			return nil, err
		}
		visited++
		r.progress.Do(func() {
			r.logger.Info("pass progress",
				slog.String("pass", name),
				slog.Int("done", i+1),
				slog.Int("total", len(ids)),
			)
		})
	}
	if r.visited != nil {
		r.visited.Add(ctx, int64(visited), metric.WithAttributes(attribute.String("pass", name)))
	}

	if c, ok := p.(Completer[T]); ok {
		if err := c.Complete(ctx, res); err != nil {
			return nil, err
		}
	}
	if f, ok := p.(Finalizer[T]); ok {
		for _, id := range res.IDs() {
			if err := f.Finalize(ctx, res, id); err != nil {
				return nil, err
			}
		}
	}

	if id, ok := res.firstProvisional(); ok {
		return nil, &InvariantError{
			Pass:      name,
			Decl:      id,
			Signature: r.idx.Signature(id),
			Reason:    "value still provisional after finalize",
			Err:       ErrNotFinal,
		}
	}
	return res, nil
}

// loadCached returns the stored result for p when it is present, current
// and decodable. Every failure is a logged cache miss.
func loadCached[T any](ctx context.Context, r *Runner, p Pass[T]) (*Result[T], bool) {
	if r.store == nil {
		return nil, false
	}
	name := p.Name()
	outcome := "miss"
	defer func() {
		if r.cacheLoads != nil {
			r.cacheLoads.Add(ctx, 1, metric.WithAttributes(
				attribute.String("pass", name),
				attribute.String("outcome", outcome),
			))
		}
	}()

	snap, err := r.store.Load(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, false
	case err != nil:
		outcome = "invalid"
		r.logger.Warn("ignoring unreadable cached results",
			slog.String("pass", name), slog.String("error", err.Error()))
		return nil, false
	case snap.Pass != name:
		outcome = "invalid"
		r.logger.Warn("ignoring cached results of another pass",
			slog.String("pass", name), slog.String("stored", snap.Pass))
		return nil, false
	case snap.Fingerprint != r.fingerprint:
		outcome = "stale"
		r.logger.Info("cached results are stale",
			slog.String("pass", name))
		return nil, false
	}

	res := NewResult[T](name, r.idx)
	if err := Decode(res, p.Codec(), snap.Lines); err != nil {
		outcome = "invalid"
		r.logger.Warn("ignoring undecodable cached results",
			slog.String("pass", name), slog.String("error", err.Error()))
		return nil, false
	}
	res.seal()
	outcome = "hit"
	r.logger.Info("loaded cached results",
		slog.String("pass", name), slog.Int("results", res.Len()))
	return res, true
}
