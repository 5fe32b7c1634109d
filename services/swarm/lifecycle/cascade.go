// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// =============================================================================
// Completion Cascade
// =============================================================================

// completeTask marks a task completed and runs both cascades: ancestor
// epics whose children are all done complete transitively, and pending
// dependents whose dependency sets are now satisfied move to ready.
func (c *Controller) completeTask(ctx context.Context, task *datatypes.Task) error {
	if task.AssignedExecutorID != "" {
		if err := c.store.ReleaseClaim(ctx, task.ID); err != nil {
			c.logger.Warn("release claim failed", "task_id", task.ID, "error", err)
		}
		task.AssignedExecutorID = ""
	}
	task.Status = datatypes.TaskStatusCompleted
	task.BlockedUntil = nil
	task.BlockedReason = ""
	task.UpdatedAt = c.now()
	if err := c.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	c.logger.Info("task completed", "task_id", task.ID)
	c.notifier.TaskTerminal(ctx, task)

	if err := c.cascadeParent(ctx, task.ParentTaskID); err != nil {
		return err
	}
	return c.readyDependents(ctx)
}

// cascadeParent completes the parent when all of its direct children
// are done, then recurses toward the root. A parent already terminal or
// still holding live children stops the walk.
func (c *Controller) cascadeParent(ctx context.Context, parentID string) error {
	for parentID != "" {
		parent, err := c.store.GetTask(ctx, parentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if parent.Status.IsTerminal() {
			return nil
		}

		children, err := c.store.ChildrenOf(ctx, parentID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if !c.childDone(child) {
				return nil
			}
		}

		if parent.AssignedExecutorID != "" {
			if err := c.store.ReleaseClaim(ctx, parent.ID); err != nil {
				c.logger.Warn("release claim failed", "task_id", parent.ID, "error", err)
			}
			parent.AssignedExecutorID = ""
		}
		parent.Status = datatypes.TaskStatusCompleted
		parent.UpdatedAt = c.now()
		if err := c.store.UpdateTask(ctx, parent); err != nil {
			return err
		}
		c.logger.Info("epic completed by cascade", "task_id", parent.ID)
		c.notifier.TaskTerminal(ctx, parent)

		parentID = parent.ParentTaskID
	}
	return nil
}

// childDone reports whether a child counts toward its parent's
// completion. Cancelled children count only when the controller is
// configured to treat cancellation as completion.
func (c *Controller) childDone(child *datatypes.Task) bool {
	if child.Status == datatypes.TaskStatusCompleted {
		return true
	}
	return c.cancelledCounts && child.Status == datatypes.TaskStatusCancelled
}

// =============================================================================
// Dependency Unblocking
// =============================================================================

// readyDependents scans pending tasks and readies those whose
// dependency sets are fully satisfied. Blocked tasks with an elapsed
// backoff window are re-evaluated too, so a dependent unblocks at
// merge time instead of waiting for the next sweep.
func (c *Controller) readyDependents(ctx context.Context) error {
	pending, err := c.store.ListTasksByStatus(ctx, datatypes.TaskStatusPending)
	if err != nil {
		return err
	}
	for _, task := range pending {
		ok, err := c.dependenciesSatisfied(ctx, task)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		task.Status = datatypes.TaskStatusReady
		task.UpdatedAt = c.now()
		if err := c.store.UpdateTask(ctx, task); err != nil {
			return err
		}
		c.logger.Info("task ready", "task_id", task.ID, "cause", "dependencies satisfied")
	}

	_, err = c.ReevaluateBlocked(ctx)
	return err
}

// dependenciesSatisfied reports whether every dependency of a task is
// done. A dependency id the store does not know is treated as satisfied
// so damaged references never wedge a task forever.
func (c *Controller) dependenciesSatisfied(ctx context.Context, task *datatypes.Task) (bool, error) {
	for _, depID := range task.DependsOn {
		dep, err := c.store.GetTask(ctx, depID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.logger.Warn("dangling dependency ignored", "task_id", task.ID, "dep_id", depID)
				continue
			}
			return false, err
		}
		if !c.childDone(dep) {
			return false, nil
		}
	}
	return true, nil
}
