// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/observability"
)

// RepairReport summarizes what one reconciliation sweep fixed.
type RepairReport struct {
	// TasksForcedInReview lists tasks realigned with their live change
	// request.
	TasksForcedInReview []string `json:"tasks_forced_in_review,omitempty"`

	// BlockedReleased lists blocked tasks whose backoff elapsed.
	BlockedReleased []string `json:"blocked_released,omitempty"`

	// WorkspacesCleaned lists terminal tasks whose worktrees were
	// removed.
	WorkspacesCleaned []string `json:"workspaces_cleaned,omitempty"`
}

// Reconcile runs one repair sweep over the store.
//
// # Description
//
//	Three independent sweeps run concurrently:
//
//	  1. Change-request alignment: a task with a live change request
//	     (draft, ready_for_review, or approved) must be in_review,
//	     blocked, or terminal. Anything else is crash residue and the
//	     task is forced back to in_review. Terminal tasks are never
//	     touched: a cancelled task stays cancelled, its change request
//	     is closed by the cancel cascade.
//	  2. Backoff release: blocked tasks with an elapsed window and
//	     satisfied dependencies return to ready.
//	  3. Workspace cleanup: worktrees of terminal tasks are removed.
//
// # Outputs
//
//   - *RepairReport: what was fixed.
//   - error: first sweep error; remaining sweeps are cancelled.
func (c *Coordinator) Reconcile(ctx context.Context) (*RepairReport, error) {
	started := c.now()
	defer func() {
		observability.ReconcileDuration.Observe(c.now().Sub(started).Seconds())
	}()

	report := &RepairReport{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fixed, err := c.alignWithChangeRequests(ctx)
		report.TasksForcedInReview = fixed
		return err
	})
	g.Go(func() error {
		released, err := c.lifecycle.ReevaluateBlocked(ctx)
		report.BlockedReleased = released
		return err
	})
	g.Go(func() error {
		cleaned, err := c.cleanWorkspaces(ctx)
		report.WorkspacesCleaned = cleaned
		return err
	})

	if err := g.Wait(); err != nil {
		return report, err
	}

	observability.ReconcileRepairs.WithLabelValues("cr_alignment").Add(float64(len(report.TasksForcedInReview)))
	observability.ReconcileRepairs.WithLabelValues("backoff_release").Add(float64(len(report.BlockedReleased)))
	observability.ReconcileRepairs.WithLabelValues("workspace_cleanup").Add(float64(len(report.WorkspacesCleaned)))

	if len(report.TasksForcedInReview)+len(report.BlockedReleased)+len(report.WorkspacesCleaned) > 0 {
		c.logger.Info("reconciliation repairs applied",
			"cr_alignment", len(report.TasksForcedInReview),
			"backoff_release", len(report.BlockedReleased),
			"workspace_cleanup", len(report.WorkspacesCleaned))
	}
	return report, nil
}

// liveCRStatus reports whether a change request still demands its task
// be in review. changes_requested deliberately excluded: its task is
// legitimately back in ready.
func liveCRStatus(s datatypes.ChangeRequestStatus) bool {
	switch s {
	case datatypes.CRStatusDraft, datatypes.CRStatusReadyForReview, datatypes.CRStatusApproved:
		return true
	}
	return false
}

// alignWithChangeRequests forces tasks with live change requests back
// to in_review.
func (c *Coordinator) alignWithChangeRequests(ctx context.Context) ([]string, error) {
	crs, err := c.store.ListChangeRequests(ctx)
	if err != nil {
		return nil, err
	}

	var fixed []string
	for _, cr := range crs {
		if !liveCRStatus(cr.Status) {
			continue
		}
		task, err := c.store.GetTask(ctx, cr.TaskID)
		if err != nil {
			return fixed, err
		}
		if task.Status == datatypes.TaskStatusInReview ||
			task.Status == datatypes.TaskStatusBlocked ||
			task.Status.IsTerminal() {
			continue
		}

		task.Status = datatypes.TaskStatusInReview
		task.UpdatedAt = c.now()
		if err := c.store.UpdateTask(ctx, task); err != nil {
			return fixed, err
		}
		fixed = append(fixed, task.ID)
		c.logger.Warn("task realigned with live change request",
			"task_id", task.ID, "cr_id", cr.ID, "cr_status", cr.Status)
	}
	return fixed, nil
}

// cleanWorkspaces removes worktrees left behind by terminal tasks.
func (c *Coordinator) cleanWorkspaces(ctx context.Context) ([]string, error) {
	tasks, err := c.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var cleaned []string
	for _, task := range tasks {
		if task.Workspace == "" || !task.Status.IsTerminal() {
			continue
		}
		if c.repo != nil {
			if err := c.repo.RemoveWorktree(ctx, task.Workspace, true); err != nil {
				c.logger.Warn("worktree removal failed",
					"task_id", task.ID, "workspace", task.Workspace, "error", err)
				continue
			}
		}
		task.Workspace = ""
		task.UpdatedAt = c.now()
		if err := c.store.UpdateTask(ctx, task); err != nil {
			return cleaned, err
		}
		cleaned = append(cleaned, task.ID)
	}
	return cleaned, nil
}
