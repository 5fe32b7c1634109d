// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the swarm
// orchestration core: tasks, change requests, executors, and the
// request/response payloads exchanged over the swarm API.
//
// # Ownership Model
//
// The task store is the single source of truth for Task and
// ChangeRequest rows. Everything derived from them (the dependency
// graph, phases, priority scores) is recomputed on demand and never
// persisted.
//
// # Thread Safety
//
// Types in this package are plain data carriers. Callers must not
// mutate a Task or ChangeRequest that has been handed to another
// component; copy first via Clone().
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// swarmValidate is the validator instance for swarm datatypes.
var swarmValidate *validator.Validate

func init() {
	swarmValidate = validator.New()
}

// =============================================================================
// Task Status and Priority
// =============================================================================

// TaskStatus represents the lifecycle state of a task.
//
// Valid transitions are owned by the lifecycle package; this package
// only defines the vocabulary.
type TaskStatus string

const (
	// TaskStatusPending means the task exists but its dependencies are
	// not yet satisfied.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusReady means all dependencies are satisfied and the task
	// is eligible for claiming.
	TaskStatusReady TaskStatus = "ready"

	// TaskStatusInProgress means an executor has claimed the task and is
	// working in an isolated workspace.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusInReview means a change request has been opened for the
	// task's changes.
	TaskStatusInReview TaskStatus = "in_review"

	// TaskStatusCompleted means the task's change request merged, or the
	// task was an epic whose children all completed.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusBlocked means the task cannot proceed: repeated failure,
	// a missing resource, an approval gate, or an unresolved conflict.
	// BlockedUntil and BlockedReason carry the backoff window and cause.
	TaskStatusBlocked TaskStatus = "blocked"

	// TaskStatusCancelled means the task was explicitly cancelled. The
	// cancellation cascades to non-completed descendants.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TaskPriority is the manually or automatically assigned priority tier.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// Tier returns the numeric rank of the priority (critical=4 ... low=1).
// Unknown priorities rank 0.
func (p TaskPriority) Tier() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// Task
// =============================================================================

// Task is a unit of work with a status, priority, and dependency set.
//
// # Description
//
// Tasks form two overlapping structures: a dependency DAG (DependsOn,
// analyzed by the graph package) and an epic tree (ParentTaskID/Depth,
// driven by the lifecycle package). A top-level task (Depth 0) is an
// epic whose completion is derived from its subtasks.
//
// # Invariants
//
//   - Depth increases by exactly 1 from parent to child.
//   - A task never depends on its own descendant in the epic tree.
//   - The dependency set may reference unknown or cyclic ids; the graph
//     package reports these as structural warnings instead of rejecting
//     the task (input data may already be damaged).
type Task struct {
	ID          string       `json:"id" validate:"required"`
	Title       string       `json:"title" validate:"required,max=512"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status" validate:"required,oneof=pending ready in_progress in_review completed blocked cancelled"`
	Priority    TaskPriority `json:"priority" validate:"required,oneof=critical high medium low"`

	// DependsOn lists the ids of tasks that must complete before this
	// task may become ready. Order is not significant.
	DependsOn []string `json:"depends_on,omitempty" validate:"max=256,dive,required"`

	// ParentTaskID links a subtask to its epic. Empty for top-level
	// epics.
	ParentTaskID string `json:"parent_task_id,omitempty"`

	// Depth is the epic-tree nesting level: 0 for top-level epics,
	// parent depth + 1 for subtasks. Distinct from the dependency-graph
	// phase depth computed by the graph package.
	Depth int `json:"depth" validate:"gte=0"`

	// AssignedExecutorID is the executor currently bound to the task.
	// Empty unless the task is claimed.
	AssignedExecutorID string `json:"assigned_executor_id,omitempty"`

	// Workspace is the isolated workspace path bound on claim. The path
	// is deterministic from executor+task ids and reconstructable if
	// this field is lost.
	Workspace string `json:"workspace,omitempty"`

	// RetryCount is the number of failed execution attempts.
	RetryCount int `json:"retry_count" validate:"gte=0"`

	// BlockedUntil is the end of the current backoff window. Nil unless
	// the task is blocked with a timed backoff.
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`

	// BlockedReason describes why the task is blocked.
	BlockedReason string `json:"blocked_reason,omitempty"`

	// Deadline is the optional business deadline feeding the priority
	// engine's deadline factor.
	Deadline *time.Time `json:"deadline,omitempty"`

	// EstimatedDuration optionally weights the task on critical-path
	// computation. Zero means "count as one task".
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the task against its validation tags.
//
// # Outputs
//
//   - error: Non-nil with field-level details if validation fails.
func (t *Task) Validate() error {
	return swarmValidate.Struct(t)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	out := *t
	if t.DependsOn != nil {
		out.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.BlockedUntil != nil {
		u := *t.BlockedUntil
		out.BlockedUntil = &u
	}
	if t.Deadline != nil {
		d := *t.Deadline
		out.Deadline = &d
	}
	return &out
}

// DependsOnSet returns the dependency ids as a set for O(1) lookups.
func (t *Task) DependsOnSet() map[string]bool {
	set := make(map[string]bool, len(t.DependsOn))
	for _, id := range t.DependsOn {
		set[id] = true
	}
	return set
}
