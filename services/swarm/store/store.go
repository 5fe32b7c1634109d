// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the shared task store: the sole arbiter of
// task ownership.
//
// Two implementations share one interface: an in-memory store for
// tests and single-process runs, and a BadgerDB-backed store for
// durable local deployments.
//
// # Concurrency Contract
//
// ClaimTask is an atomic compare-and-set on status+assignee: exactly
// one concurrent claimant wins, losers receive ErrClaimConflict and
// simply move on to the next ready task. OpenChangeRequest is the one
// hard transactional boundary in the system: the change request row is
// created and the task advances to in_review in a single atomic unit,
// or neither happens.
//
// # Ownership Model
//
// The store owns its rows. Get/List return deep copies; callers mutate
// their copy and write it back via Update.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a task, change request, or executor
	// id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a row with an id that
	// is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrClaimConflict is returned when a compare-and-set claim loses
	// the race: the task is no longer ready or already assigned. Not a
	// failure; the claimant retries against the next ready task.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrExecutorBusy is returned when a claim would exceed the
	// executor's concurrency limit.
	ErrExecutorBusy = errors.New("executor at concurrency limit")

	// ErrStaleClaim is returned when opening a change request for a task
	// that is no longer in progress. The caller discards the result: a
	// task cancelled mid-flight stays cancelled.
	ErrStaleClaim = errors.New("task is not in progress")
)

// Store is the shared task store consumed by the orchestration core.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
type Store interface {
	// CreateTask inserts a new task. ErrAlreadyExists on duplicate id.
	CreateTask(ctx context.Context, task *datatypes.Task) error

	// GetTask returns a copy of the task. ErrNotFound if unknown.
	GetTask(ctx context.Context, id string) (*datatypes.Task, error)

	// UpdateTask overwrites the stored task. ErrNotFound if unknown.
	UpdateTask(ctx context.Context, task *datatypes.Task) error

	// ListTasks returns copies of all tasks, in creation order.
	ListTasks(ctx context.Context) ([]*datatypes.Task, error)

	// ListTasksByStatus returns copies of tasks with the given status,
	// in creation order.
	ListTasksByStatus(ctx context.Context, status datatypes.TaskStatus) ([]*datatypes.Task, error)

	// ChildrenOf returns copies of the direct children of a parent
	// task, in creation order.
	ChildrenOf(ctx context.Context, parentID string) ([]*datatypes.Task, error)

	// ClaimTask atomically binds a ready task to an executor: status
	// ready -> in_progress and assignee set in one compare-and-set.
	// ErrClaimConflict when the task is not ready or already assigned;
	// ErrExecutorBusy when the executor has no claim capacity.
	ClaimTask(ctx context.Context, taskID, executorID string) (*datatypes.Task, error)

	// ReleaseClaim unbinds an executor from a task without changing the
	// task status, returning claim capacity to the executor. Used on
	// cancellation and terminal transitions.
	ReleaseClaim(ctx context.Context, taskID string) error

	// OpenChangeRequest atomically creates the change request and moves
	// its task to in_review. Either both happen or neither does.
	// ErrStaleClaim when the task is not in_progress: the work that
	// produced the change request lost its claim and its result is
	// discarded.
	OpenChangeRequest(ctx context.Context, cr *datatypes.ChangeRequest) error

	// GetChangeRequest returns a copy of the change request.
	GetChangeRequest(ctx context.Context, id string) (*datatypes.ChangeRequest, error)

	// GetChangeRequestForTask returns the newest change request linked
	// to a task. ErrNotFound when the task has none.
	GetChangeRequestForTask(ctx context.Context, taskID string) (*datatypes.ChangeRequest, error)

	// UpdateChangeRequest overwrites the stored change request.
	UpdateChangeRequest(ctx context.Context, cr *datatypes.ChangeRequest) error

	// ListChangeRequests returns copies of all change requests, in
	// creation order.
	ListChangeRequests(ctx context.Context) ([]*datatypes.ChangeRequest, error)

	// PutExecutor inserts or replaces an executor registration.
	PutExecutor(ctx context.Context, exec *datatypes.Executor) error

	// GetExecutor returns a copy of the executor.
	GetExecutor(ctx context.Context, id string) (*datatypes.Executor, error)

	// ListExecutors returns copies of all executors, in registration
	// order.
	ListExecutors(ctx context.Context) ([]*datatypes.Executor, error)

	// Close releases underlying resources.
	Close() error
}
