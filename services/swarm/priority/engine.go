// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package priority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/graph"
)

var tracer = otel.Tracer("swarm.priority")

// ErrNilContext is returned when a nil context is passed to Rebalance.
var ErrNilContext = errors.New("context must not be nil")

// DefaultMinScoreChange is the composite-score delta below which a
// proposed priority change is suppressed. Prevents thrashing from noisy
// signal changes.
const DefaultMinScoreChange = 15.0

// Engine scores tasks and proposes priority changes.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the per-call inputs.
type Engine struct {
	logger         *slog.Logger
	minScoreChange float64
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMinScoreChange sets the materiality threshold. Non-positive
// values keep the default.
func WithMinScoreChange(delta float64) Option {
	return func(e *Engine) {
		if delta > 0 {
			e.minScoreChange = delta
		}
	}
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:         slog.Default(),
		minScoreChange: DefaultMinScoreChange,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Change is one proposed (or applied) priority change.
type Change struct {
	TaskID string                 `json:"task_id"`
	From   datatypes.TaskPriority `json:"from"`
	To     datatypes.TaskPriority `json:"to"`

	// Score is the composite score that produced the new bucket.
	Score float64 `json:"score"`

	// PreviousScore is the composite implied by the old priority bucket
	// (the bucket's business-value representative).
	PreviousScore float64 `json:"previous_score"`

	// Clamped marks a change that was limited by the one-tier guard for
	// in-progress tasks.
	Clamped bool `json:"clamped,omitempty"`

	// Reasoning names the factors that crossed materiality thresholds.
	Reasoning []string `json:"reasoning,omitempty"`
}

// RebalanceOptions tunes one rebalance pass.
type RebalanceOptions struct {
	// DryRun computes changes without mutating any task.
	DryRun bool

	// MinScoreChange overrides the engine threshold when positive.
	MinScoreChange float64

	// Override disables the one-tier drop guard for in-progress tasks.
	Override bool
}

// RebalanceResult is the output of one rebalance pass.
type RebalanceResult struct {
	Changes     []Change           `json:"changes"`
	Bottlenecks []RankedBottleneck `json:"bottlenecks,omitempty"`
	Warnings    []graph.Warning    `json:"warnings,omitempty"`
}

// Score computes the five factors for one task against an analysis.
//
// # Inputs
//
//   - task: The task to score.
//   - dependentCount: Direct dependents from the graph.
//   - onCriticalPath: Critical-path membership from the analysis.
//
// # Outputs
//
//   - Factors: The five factor values, each in [0,100].
func (e *Engine) Score(task *datatypes.Task, dependentCount int, onCriticalPath bool) Factors {
	return Factors{
		Dependency:    dependencyWeight(dependentCount),
		CriticalPath:  criticalPathWeight(onCriticalPath),
		Progress:      progressWeight(task.Status),
		Deadline:      deadlineWeight(task.Deadline, e.now()),
		BusinessValue: businessValueWeight(task.Priority),
	}
}

// Rebalance rescores a task set and proposes priority changes.
//
// # Description
//
// Runs a structural analysis, scores every non-terminal task, and
// buckets the composite back to a priority tier. A change is emitted
// only when the bucketed tier differs AND the bucket-value delta
// exceeds the materiality threshold. An in-progress task is never
// dropped more than one tier unless the override flag is set; a
// clamped change is marked as such.
//
// Unless DryRun is set, accepted changes are applied to the passed
// task structs. Persisting them is the caller's concern. Dry-run never
// mutates state.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - tasks: The task set. Terminal tasks are skipped.
//   - opts: Rebalance options.
//
// # Outputs
//
//   - *RebalanceResult: Changes, ranked bottlenecks, and structural
//     warnings.
//   - error: Non-nil for nil context or duplicate task ids.
func (e *Engine) Rebalance(ctx context.Context, tasks []*datatypes.Task, opts RebalanceOptions) (*RebalanceResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "priority.Rebalance")
	defer span.End()

	threshold := e.minScoreChange
	if opts.MinScoreChange > 0 {
		threshold = opts.MinScoreChange
	}

	analyzer := graph.NewAnalyzer(graph.WithLogger(e.logger))
	analysis, err := analyzer.Analyze(ctx, tasks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	g, err := graph.Build(tasks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &RebalanceResult{
		Bottlenecks: rankBottlenecks(analysis.Bottlenecks),
		Warnings:    analysis.Warnings,
	}

	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}

		factors := e.Score(task, g.DependentCount(task.ID), analysis.OnCriticalPath(task.ID))
		score := factors.Composite()
		proposed := bucketFor(score)
		if proposed == task.Priority {
			continue
		}

		// Materiality: compare against the score implied by the current
		// bucket so a score hovering at a boundary does not thrash.
		previousScore := businessValueWeight(task.Priority)
		delta := score - previousScore
		if delta < 0 {
			delta = -delta
		}
		if delta <= threshold {
			continue
		}

		change := Change{
			TaskID:        task.ID,
			From:          task.Priority,
			To:            proposed,
			Score:         score,
			PreviousScore: previousScore,
			Reasoning:     factors.reasoning(g.DependentCount(task.ID)),
		}

		// An in-progress task never drops more than one tier without an
		// explicit override.
		if task.Status == datatypes.TaskStatusInProgress && !opts.Override {
			if drop := task.Priority.Tier() - proposed.Tier(); drop > 1 {
				change.To = tierBelow(task.Priority)
				change.Clamped = true
				change.Reasoning = append(change.Reasoning,
					fmt.Sprintf("drop clamped to one tier while %s", task.Status))
			}
		}

		if !opts.DryRun {
			task.Priority = change.To
		}
		result.Changes = append(result.Changes, change)
	}

	span.SetAttributes(
		attribute.Int("changes", len(result.Changes)),
		attribute.Int("bottlenecks", len(result.Bottlenecks)),
		attribute.Bool("dry_run", opts.DryRun),
	)
	span.SetStatus(codes.Ok, "")

	e.logger.Debug("rebalance complete",
		slog.Int("tasks", len(tasks)),
		slog.Int("changes", len(result.Changes)),
		slog.Bool("dry_run", opts.DryRun),
	)

	return result, nil
}

// tierBelow returns the priority one tier below p (floor: low).
func tierBelow(p datatypes.TaskPriority) datatypes.TaskPriority {
	switch p {
	case datatypes.PriorityCritical:
		return datatypes.PriorityHigh
	case datatypes.PriorityHigh:
		return datatypes.PriorityMedium
	default:
		return datatypes.PriorityLow
	}
}
