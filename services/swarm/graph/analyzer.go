// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

var tracer = otel.Tracer("swarm.graph")

// Analyzer runs the full structural analysis over a task set.
//
// # Thread Safety
//
// Safe for concurrent use; every Analyze call builds a fresh graph.
type Analyzer struct {
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an Analyzer with the given options.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes order, phases, critical path, and bottlenecks for a
// task set.
//
// # Description
//
// Builds the adjacency structure, detects all cycles, computes the
// topological order (degraded to advisory input order when cycles
// exist), groups tasks into parallel phases, finds the critical path,
// and ranks bottlenecks. The analysis is pure: no task is mutated and
// nothing is persisted, so running it twice over an unchanged task set
// yields an identical result.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - tasks: The task set. An empty set returns an empty result, not an
//     error.
//
// # Outputs
//
//   - *Result: The structural analysis. Never nil on success.
//   - error: Non-nil for nil context or duplicate task ids.
func (a *Analyzer) Analyze(ctx context.Context, tasks []*datatypes.Task) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	_, span := tracer.Start(ctx, "graph.Analyze",
		trace.WithAttributes(attribute.Int("task_count", len(tasks))),
	)
	defer span.End()

	start := time.Now()

	if len(tasks) == 0 {
		span.SetStatus(codes.Ok, "")
		return &Result{Elapsed: time.Since(start)}, nil
	}

	g, err := Build(tasks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &Result{
		Warnings: g.Warnings(),
	}

	result.Cycles = g.DetectCycles()
	for _, cycle := range result.Cycles {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnDependencyCycle,
			Message: "dependency cycle: " + strings.Join(cycle, " -> "),
			TaskIDs: cycle,
		})
	}

	result.Order, result.OrderAdvisory = g.TopologicalOrder()
	result.Phases = g.Phases()
	result.CriticalPath, result.CriticalPathLength = g.CriticalPath()
	result.Bottlenecks = g.Bottlenecks(result.CriticalPath)
	result.ParallelizationScore = ParallelizationScore(result.Phases, g.Size())
	result.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("cycles", len(result.Cycles)),
		attribute.Int("phases", len(result.Phases)),
		attribute.Int("bottlenecks", len(result.Bottlenecks)),
		attribute.Bool("order_advisory", result.OrderAdvisory),
		attribute.Float64("parallelization_score", result.ParallelizationScore),
	)
	span.SetStatus(codes.Ok, "")

	a.logger.Debug("graph analysis complete",
		slog.Int("tasks", g.Size()),
		slog.Int("cycles", len(result.Cycles)),
		slog.Int("phases", len(result.Phases)),
		slog.Bool("order_advisory", result.OrderAdvisory),
		slog.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}
