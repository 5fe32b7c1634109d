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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

var tracer = otel.Tracer("swarm.lifecycle")

// =============================================================================
// Controller
// =============================================================================

// Controller drives all task and change-request status mutations.
type Controller struct {
	store     store.Store
	logger    *slog.Logger
	notifier  Notifier
	directory ReviewerDirectory

	// cancelledCounts treats cancelled children as complete for the
	// purposes of the epic completion cascade.
	cancelledCounts bool

	now func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithNotifier sets the terminal-event notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithReviewerDirectory sets the specialized-reviewer directory used
// when no registered executor is eligible to review.
func WithReviewerDirectory(d ReviewerDirectory) Option {
	return func(c *Controller) { c.directory = d }
}

// WithCancelledCountsComplete makes cancelled children count toward
// their parent's completion cascade. Off by default: a cancelled
// subtask normally means the epic's scope was not delivered.
func WithCancelledCountsComplete(v bool) Option {
	return func(c *Controller) { c.cancelledCounts = v }
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a lifecycle controller bound to a store.
func NewController(st store.Store, opts ...Option) *Controller {
	c := &Controller{
		store:    st,
		logger:   slog.Default(),
		notifier: NopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.directory == nil {
		c.directory = NewStoreDirectory(st)
	}
	return c
}

// =============================================================================
// Task Transitions
// =============================================================================

// TransitionTask applies a validated status change to a task.
//
// # Description
//
//	The generic entry point for API-driven transitions. Side-effectful
//	transitions (cancellation cascades, completion cascades) are routed
//	to their dedicated operations so the side effects always run.
//
// # Inputs
//
//   - ctx: request context.
//   - taskID: the task to transition.
//   - to: target status.
//   - reason: free-form cause, stored on blocking transitions.
//
// # Outputs
//
//   - *datatypes.Task: the updated task.
//   - error: ErrInvalidTransition, store.ErrNotFound, or a store error.
func (c *Controller) TransitionTask(ctx context.Context, taskID string, to datatypes.TaskStatus, reason string) (*datatypes.Task, error) {
	switch to {
	case datatypes.TaskStatusCancelled:
		return c.Cancel(ctx, taskID)
	case datatypes.TaskStatusCompleted:
		return c.Complete(ctx, taskID)
	case datatypes.TaskStatusBlocked:
		return c.Block(ctx, taskID, reason, nil)
	}

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTask(task.Status, to) {
		return nil, transitionTaskErr(task.Status, to)
	}

	from := task.Status
	// Release before writing back: the store resolves the executor from
	// its own copy of the assignee.
	if task.AssignedExecutorID != "" && to == datatypes.TaskStatusReady {
		if err := c.store.ReleaseClaim(ctx, taskID); err != nil {
			c.logger.Warn("release claim failed", "task_id", taskID, "error", err)
		}
	}
	task.Status = to
	if to == datatypes.TaskStatusReady {
		task.AssignedExecutorID = ""
		task.BlockedUntil = nil
		task.BlockedReason = ""
	}
	task.UpdatedAt = c.now()
	if err := c.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	c.logger.Info("task transition", "task_id", taskID, "from", from, "to", to)
	return task, nil
}

// Release moves a pending or blocked task to ready, clearing any
// backoff window. A manual override: dependency satisfaction is not
// re-checked.
func (c *Controller) Release(ctx context.Context, taskID string) (*datatypes.Task, error) {
	return c.TransitionTask(ctx, taskID, datatypes.TaskStatusReady, "")
}

// Block moves a task to blocked with a reason and optional backoff
// window. Legal from any non-terminal state.
func (c *Controller) Block(ctx context.Context, taskID, reason string, until *time.Time) (*datatypes.Task, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTask(task.Status, datatypes.TaskStatusBlocked) {
		return nil, transitionTaskErr(task.Status, datatypes.TaskStatusBlocked)
	}

	from := task.Status
	if task.AssignedExecutorID != "" {
		if err := c.store.ReleaseClaim(ctx, taskID); err != nil {
			c.logger.Warn("release claim failed", "task_id", taskID, "error", err)
		}
		task.AssignedExecutorID = ""
	}
	task.Status = datatypes.TaskStatusBlocked
	task.BlockedReason = reason
	task.BlockedUntil = until
	task.UpdatedAt = c.now()
	if err := c.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	c.logger.Info("task blocked", "task_id", taskID, "from", from, "reason", reason)
	return task, nil
}

// Escalate blocks a task for human attention. No backoff window: the
// task stays blocked until a person releases or cancels it.
func (c *Controller) Escalate(ctx context.Context, taskID, reason string) (*datatypes.Task, error) {
	return c.Block(ctx, taskID, "escalated: "+reason, nil)
}

// Complete marks a task completed and runs the completion cascade.
//
// # Description
//
//	Normally reached through Merge; exposed directly for tasks that
//	produce no change request (epics completed by hand, documentation
//	chores). Releases any claim, notifies, completes ancestors whose
//	children are all done, and readies dependents whose dependency sets
//	are now satisfied.
func (c *Controller) Complete(ctx context.Context, taskID string) (*datatypes.Task, error) {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTask(task.Status, datatypes.TaskStatusCompleted) {
		return nil, transitionTaskErr(task.Status, datatypes.TaskStatusCompleted)
	}
	if err := c.completeTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Cancel cancels a task and cascades the cancellation to every
// non-completed descendant in the epic tree.
//
// # Edge Cases
//
//   - Completed descendants keep their status; work that already merged
//     is not un-done.
//   - Claims held on cancelled tasks are released.
func (c *Controller) Cancel(ctx context.Context, taskID string) (*datatypes.Task, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", taskID))

	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, taskID)
	}
	if err := c.cancelSubtree(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// cancelSubtree cancels a task and recurses into its children.
func (c *Controller) cancelSubtree(ctx context.Context, task *datatypes.Task) error {
	if task.Status != datatypes.TaskStatusCompleted {
		from := task.Status
		task.Status = datatypes.TaskStatusCancelled
		task.UpdatedAt = c.now()
		if err := c.store.UpdateTask(ctx, task); err != nil {
			return err
		}
		if task.AssignedExecutorID != "" {
			if err := c.store.ReleaseClaim(ctx, task.ID); err != nil {
				c.logger.Warn("release claim failed", "task_id", task.ID, "error", err)
			}
		}
		if err := c.closeLinkedChangeRequest(ctx, task.ID); err != nil {
			return err
		}
		c.logger.Info("task cancelled", "task_id", task.ID, "from", from)
		c.notifier.TaskTerminal(ctx, task)
	}

	children, err := c.store.ChildrenOf(ctx, task.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Status.IsTerminal() {
			continue
		}
		if err := c.cancelSubtree(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// closeLinkedChangeRequest closes a cancelled task's newest live
// change request so crash repair never resurrects the task around it.
func (c *Controller) closeLinkedChangeRequest(ctx context.Context, taskID string) error {
	cr, err := c.store.GetChangeRequestForTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if cr.Status.IsTerminal() {
		return nil
	}
	cr.Status = datatypes.CRStatusClosed
	cr.UpdatedAt = c.now()
	if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
		return err
	}
	c.logger.Info("change request closed with cancelled task", "cr_id", cr.ID, "task_id", taskID)
	c.notifier.ChangeRequestTerminal(ctx, cr)
	return nil
}

// ReevaluateBlocked readies blocked tasks whose backoff window has
// elapsed and whose dependency sets are satisfied. Called by the
// coordinator's reconciliation sweep.
//
// # Outputs
//
//   - []string: ids of tasks moved to ready.
//   - error: first store error encountered.
func (c *Controller) ReevaluateBlocked(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.ReevaluateBlocked")
	defer span.End()

	blocked, err := c.store.ListTasksByStatus(ctx, datatypes.TaskStatusBlocked)
	if err != nil {
		return nil, err
	}

	var released []string
	now := c.now()
	for _, task := range blocked {
		if task.BlockedUntil == nil || task.BlockedUntil.After(now) {
			continue
		}
		ok, err := c.dependenciesSatisfied(ctx, task)
		if err != nil {
			return released, err
		}
		if !ok {
			continue
		}
		task.Status = datatypes.TaskStatusReady
		task.BlockedUntil = nil
		task.BlockedReason = ""
		task.AssignedExecutorID = ""
		task.UpdatedAt = now
		if err := c.store.UpdateTask(ctx, task); err != nil {
			return released, err
		}
		released = append(released, task.ID)
	}
	if len(released) > 0 {
		c.logger.Info("blocked tasks released", "count", len(released))
	}
	return released, nil
}

// =============================================================================
// Change Request Transitions
// =============================================================================

// SubmitForReview moves a draft change request to ready_for_review,
// assigning a reviewer if one is not already set.
func (c *Controller) SubmitForReview(ctx context.Context, crID string) (*datatypes.ChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.SubmitForReview")
	defer span.End()
	span.SetAttributes(attribute.String("cr_id", crID))

	cr, err := c.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionCR(cr.Status, datatypes.CRStatusReadyForReview) {
		return nil, transitionCRErr(cr.Status, datatypes.CRStatusReadyForReview)
	}

	if cr.ReviewerExecutorID == "" {
		task, err := c.store.GetTask(ctx, cr.TaskID)
		if err != nil {
			return nil, err
		}
		reviewer, class, err := c.assignReviewer(ctx, cr, task)
		if err != nil {
			return nil, err
		}
		cr.ReviewerExecutorID = reviewer.ID
		cr.ReviewerClass = class
	} else if cr.ReviewerExecutorID == cr.AuthorExecutorID {
		return nil, ErrReviewerIsAuthor
	}

	cr.Status = datatypes.CRStatusReadyForReview
	cr.UpdatedAt = c.now()
	if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
		return nil, err
	}
	c.logger.Info("change request submitted for review",
		"cr_id", cr.ID, "reviewer", cr.ReviewerExecutorID, "class", cr.ReviewerClass)
	return cr, nil
}

// Approve records a reviewer approval on a change request.
func (c *Controller) Approve(ctx context.Context, crID, reviewerID string) (*datatypes.ChangeRequest, error) {
	cr, err := c.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if reviewerID == cr.AuthorExecutorID {
		return nil, ErrReviewerIsAuthor
	}
	if !CanTransitionCR(cr.Status, datatypes.CRStatusApproved) {
		return nil, transitionCRErr(cr.Status, datatypes.CRStatusApproved)
	}

	now := c.now()
	cr.Status = datatypes.CRStatusApproved
	cr.ReviewerExecutorID = reviewerID
	cr.ApprovedAt = &now
	cr.UpdatedAt = now
	if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
		return nil, err
	}
	c.logger.Info("change request approved", "cr_id", cr.ID, "reviewer", reviewerID)
	return cr, nil
}

// RequestChanges records a changes-requested decision. The change
// request moves to changes_requested and its task returns to ready so
// an executor can rework it.
func (c *Controller) RequestChanges(ctx context.Context, crID, reviewerID, body string) (*datatypes.ChangeRequest, error) {
	cr, err := c.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionCR(cr.Status, datatypes.CRStatusChangesRequested) {
		return nil, transitionCRErr(cr.Status, datatypes.CRStatusChangesRequested)
	}

	now := c.now()
	cr.Status = datatypes.CRStatusChangesRequested
	if body != "" {
		cr.Comments = append(cr.Comments, datatypes.ReviewComment{
			AuthorID:  reviewerID,
			Body:      body,
			CreatedAt: now,
		})
	}
	cr.UpdatedAt = now
	if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
		return nil, err
	}

	if err := c.reopenTask(ctx, cr.TaskID); err != nil {
		return nil, err
	}
	c.logger.Info("changes requested", "cr_id", cr.ID, "task_id", cr.TaskID)
	return cr, nil
}

// Merge lands an approved change request and completes its task.
//
// # Description
//
//	The only path to merged is through approved; an auto-resolved
//	conflict resets the change request to ready_for_review, so a stale
//	approval can never merge silently. Completion cascades to ancestor
//	epics and readies dependent tasks.
func (c *Controller) Merge(ctx context.Context, crID string) (*datatypes.ChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.Merge")
	defer span.End()
	span.SetAttributes(attribute.String("cr_id", crID))

	cr, err := c.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if cr.Status != datatypes.CRStatusApproved {
		return nil, fmt.Errorf("%w: status %s", ErrNotApproved, cr.Status)
	}

	now := c.now()
	cr.Status = datatypes.CRStatusMerged
	cr.MergedAt = &now
	cr.UpdatedAt = now
	if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
		return nil, err
	}
	c.notifier.ChangeRequestTerminal(ctx, cr)

	task, err := c.store.GetTask(ctx, cr.TaskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		if err := c.completeTask(ctx, task); err != nil {
			return nil, err
		}
	}
	c.logger.Info("change request merged", "cr_id", cr.ID, "task_id", cr.TaskID)
	return cr, nil
}

// Close abandons a change request without merging. If its task was in
// review, the task returns to ready.
func (c *Controller) Close(ctx context.Context, crID string) (*datatypes.ChangeRequest, error) {
	cr, err := c.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionCR(cr.Status, datatypes.CRStatusClosed) {
		return nil, transitionCRErr(cr.Status, datatypes.CRStatusClosed)
	}

	cr.Status = datatypes.CRStatusClosed
	cr.UpdatedAt = c.now()
	if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
		return nil, err
	}
	c.notifier.ChangeRequestTerminal(ctx, cr)

	if err := c.reopenTask(ctx, cr.TaskID); err != nil {
		return nil, err
	}
	c.logger.Info("change request closed", "cr_id", cr.ID)
	return cr, nil
}

// reopenTask returns an in-review task to ready, releasing its claim.
// A no-op for tasks in any other state.
func (c *Controller) reopenTask(ctx context.Context, taskID string) error {
	task, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != datatypes.TaskStatusInReview {
		return nil
	}
	if task.AssignedExecutorID != "" {
		if err := c.store.ReleaseClaim(ctx, taskID); err != nil {
			c.logger.Warn("release claim failed", "task_id", taskID, "error", err)
		}
	}
	task.Status = datatypes.TaskStatusReady
	task.AssignedExecutorID = ""
	task.UpdatedAt = c.now()
	return c.store.UpdateTask(ctx, task)
}
