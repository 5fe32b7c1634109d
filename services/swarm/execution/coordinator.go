// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package execution runs the claim-execute-review pipeline: executors
// claim ready tasks through the store's compare-and-set, work in
// deterministic isolated workspaces, and hand results to the review
// flow. A periodic reconciliation sweep repairs state left behind by
// crashes.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/executor"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/observability"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/vcs"
)

var tracer = otel.Tracer("swarm.execution")

// ErrNoReadyTasks is returned when the claim scan finds nothing to do.
var ErrNoReadyTasks = errors.New("no ready tasks")

// Defaults for the coordinator's tunables.
const (
	DefaultMaxAttempts   = 5
	DefaultRetryCooldown = 15 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultPollInterval  = 10 * time.Second
)

// GitFactory opens a version-control client scoped to a workspace
// directory.
type GitFactory func(path string) (vcs.Git, error)

// Coordinator drives task execution for one or more executors.
//
// # Thread Safety
//
// Safe for concurrent use; per-task state lives in the store.
type Coordinator struct {
	store     store.Store
	lifecycle *lifecycle.Controller
	invoker   executor.Invoker
	repo      vcs.Git // mainline repository; nil disables vcs steps
	host      vcs.Host
	gitAt     GitFactory
	logger    *slog.Logger

	root          string
	mainline      string
	maxAttempts   uint
	retryCooldown time.Duration
	invokeTimeout time.Duration
	sweepInterval time.Duration
	pollInterval  time.Duration
	now           func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithWorkspaceRoot sets the directory workspaces are created under.
func WithWorkspaceRoot(root string) Option {
	return func(c *Coordinator) { c.root = root }
}

// WithMainline sets the branch diffs are summarized against.
func WithMainline(branch string) Option {
	return func(c *Coordinator) { c.mainline = branch }
}

// WithMaxAttempts caps the cumulative attempt budget before a task is
// escalated to a human.
func WithMaxAttempts(n uint) Option {
	return func(c *Coordinator) { c.maxAttempts = n }
}

// WithRetryCooldown sets the backoff window applied when an execution
// fails with attempt budget remaining.
func WithRetryCooldown(d time.Duration) Option {
	return func(c *Coordinator) { c.retryCooldown = d }
}

// WithInvocationTimeout bounds each backend invocation.
func WithInvocationTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.invokeTimeout = d }
}

// WithSweepInterval sets the reconciliation sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.sweepInterval = d }
}

// WithPollInterval sets the idle wait between claim scans.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithGitFactory overrides how workspace-scoped git clients are opened.
func WithGitFactory(f GitFactory) Option {
	return func(c *Coordinator) { c.gitAt = f }
}

// withClock overrides the time source in tests.
func withClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator. repo and host may be nil for
// store-only deployments; vcs steps are then skipped.
func NewCoordinator(st store.Store, lc *lifecycle.Controller, inv executor.Invoker, repo vcs.Git, host vcs.Host, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         st,
		lifecycle:     lc,
		invoker:       inv,
		repo:          repo,
		host:          host,
		logger:        slog.Default(),
		root:          "/var/lib/swarm/workspaces",
		mainline:      "main",
		maxAttempts:   DefaultMaxAttempts,
		retryCooldown: DefaultRetryCooldown,
		invokeTimeout: 10 * time.Minute,
		sweepInterval: DefaultSweepInterval,
		pollInterval:  DefaultPollInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gitAt == nil {
		c.gitAt = func(path string) (vcs.Git, error) {
			return vcs.NewGitClient(path, 30*time.Second)
		}
	}
	if c.host == nil {
		c.host = vcs.NewLocalHost(c.logger)
	}
	return c
}

// =============================================================================
// Claiming
// =============================================================================

// ClaimNext claims the first ready task the executor can take.
//
// # Description
//
//	Scans ready tasks in creation order and races the store's
//	compare-and-set for each. Losing a claim is not an error; the scan
//	moves on. The winning claim binds the deterministic workspace path
//	to the task.
//
// # Outputs
//
//   - *datatypes.Task: the claimed task with Workspace set.
//   - error: ErrNoReadyTasks when nothing is claimable;
//     store.ErrExecutorBusy when the executor has no capacity.
func (c *Coordinator) ClaimNext(ctx context.Context, executorID string) (*datatypes.Task, error) {
	ready, err := c.store.ListTasksByStatus(ctx, datatypes.TaskStatusReady)
	if err != nil {
		return nil, err
	}

	for _, candidate := range ready {
		task, err := c.store.ClaimTask(ctx, candidate.ID, executorID)
		if errors.Is(err, store.ErrClaimConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// Subtasks share their parent's workspace so sibling work lands
		// in one checkout.
		workspaceID := task.ID
		if task.ParentTaskID != "" {
			workspaceID = task.ParentTaskID
		}
		task.Workspace = WorkspacePath(c.root, executorID, workspaceID)
		if err := c.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
		observability.TasksClaimed.Inc()
		c.logger.Info("task claimed",
			"task_id", task.ID, "executor_id", executorID, "workspace", task.Workspace)
		return task, nil
	}
	return nil, ErrNoReadyTasks
}

// =============================================================================
// Execution
// =============================================================================

// Execute runs one claimed task end to end: workspace setup, backend
// invocation with retry, and change-request submission.
//
// # Edge Cases
//
//   - An attempt budget exhausted across executions escalates the task
//     to a human: blocked with no backoff window, released only
//     explicitly. Failures with budget remaining block with a cooldown
//     the reconciliation sweep clears.
//   - A task cancelled while the backend was working keeps its terminal
//     status; the result is discarded, never applied.
//   - Context cancellation is never retried.
func (c *Coordinator) Execute(ctx context.Context, task *datatypes.Task) error {
	ctx, span := tracer.Start(ctx, "execution.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", task.ID))

	if err := c.prepareWorkspace(ctx, task); err != nil {
		return c.failTask(ctx, task, 1, fmt.Errorf("workspace setup: %w", err))
	}

	result, attempts, err := c.invokeWithRetry(ctx, task)
	if err != nil {
		return c.failTask(ctx, task, attempts, err)
	}
	observability.InvocationCostUSD.Add(result.CostUSD)

	if err := c.submitResult(ctx, task, result); err != nil {
		if errors.Is(err, store.ErrStaleClaim) {
			c.logger.Info("result discarded, task no longer in progress",
				"task_id", task.ID)
			return nil
		}
		return c.failTask(ctx, task, 1, fmt.Errorf("submitting result: %w", err))
	}
	return nil
}

// invokeWithRetry calls the backend under exponential backoff, spending
// whatever attempt budget the task has left. Returns the number of
// attempts made alongside the result.
func (c *Coordinator) invokeWithRetry(ctx context.Context, task *datatypes.Task) (*executor.InvokeResult, uint, error) {
	remaining := c.maxAttempts
	if used := uint(task.RetryCount); used < remaining {
		remaining -= used
	} else {
		return nil, 0, fmt.Errorf("attempt budget exhausted after %d attempts", task.RetryCount)
	}

	var attempts uint
	started := c.now()
	operation := func() (*executor.InvokeResult, error) {
		attempts++
		res, err := c.invoker.Invoke(ctx, executor.InvokeRequest{
			Prompt:           taskPrompt(task),
			WorkingDirectory: task.Workspace,
			Timeout:          c.invokeTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if !res.Success {
			return nil, fmt.Errorf("backend reported failure: %s", res.Output)
		}
		return res, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(remaining),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.TaskRetries.Inc()
			c.logger.Warn("execution attempt failed",
				"task_id", task.ID, "retry_in", next, "error", err)
		}),
	)
	observability.InvocationDuration.Observe(c.now().Sub(started).Seconds())
	return result, attempts, err
}

// submitResult commits the workspace changes and opens the change
// request for review. Opening the change request and moving the task
// to in_review is a single transactional step in the store.
func (c *Coordinator) submitResult(ctx context.Context, task *datatypes.Task, result *executor.InvokeResult) error {
	branch := BranchName(task.ID)
	var stat *datatypes.DiffStat
	if c.repo != nil {
		ws, err := c.gitAt(task.Workspace)
		if err != nil {
			return err
		}
		clean, err := ws.IsClean(ctx)
		if err != nil {
			return err
		}
		if !clean {
			if err := ws.AddAll(ctx); err != nil {
				return err
			}
			if err := ws.Commit(ctx, task.Title); err != nil {
				return err
			}
		}
		if !c.repo.BranchExists(ctx, branch) {
			head, err := ws.RevParse(ctx, "HEAD")
			if err != nil {
				return err
			}
			if err := c.repo.CreateBranch(ctx, branch, head); err != nil {
				return err
			}
		}
		stat = c.summarizeDiff(ctx, ws, task)
	}

	cr := &datatypes.ChangeRequest{
		ID:               uuid.NewString(),
		TaskID:           task.ID,
		Status:           datatypes.CRStatusDraft,
		AuthorExecutorID: task.AssignedExecutorID,
		Branch:           branch,
		Stat:             stat,
	}
	if err := c.store.OpenChangeRequest(ctx, cr); err != nil {
		return err
	}

	handle, err := c.host.Publish(ctx, cr)
	if err != nil {
		c.logger.Warn("publishing change request failed", "cr_id", cr.ID, "error", err)
	} else if handle != "" {
		cr.RemoteHandle = handle
		if err := c.store.UpdateChangeRequest(ctx, cr); err != nil {
			return err
		}
	}

	if _, err := c.lifecycle.SubmitForReview(ctx, cr.ID); err != nil {
		return err
	}
	observability.TaskTransitions.WithLabelValues(string(datatypes.TaskStatusInReview)).Inc()
	c.logger.Info("task submitted for review",
		"task_id", task.ID, "cr_id", cr.ID, "output_bytes", len(result.Output))
	return nil
}

// summarizeDiff reduces the branch's diff against mainline to a stat
// for reviewers. Best effort; a broken diff never fails the submission.
func (c *Coordinator) summarizeDiff(ctx context.Context, ws vcs.Git, task *datatypes.Task) *datatypes.DiffStat {
	unified, err := ws.DiffAgainst(ctx, c.mainline)
	if err != nil {
		c.logger.Warn("diff summary failed", "task_id", task.ID, "error", err)
		return nil
	}
	stat, err := vcs.Summarize(unified)
	if err != nil {
		c.logger.Warn("diff summary failed", "task_id", task.ID, "error", err)
		return nil
	}
	return stat
}

// failTask records an execution failure, charging the attempts made
// against the task's budget. Within budget the task is blocked with a
// cooldown window the sweep clears; an exhausted budget escalates the
// task to a human, who must release it explicitly.
func (c *Coordinator) failTask(ctx context.Context, task *datatypes.Task, attempts uint, cause error) error {
	stored, err := c.store.GetTask(ctx, task.ID)
	if err != nil {
		return err
	}
	stored.RetryCount += int(attempts)
	stored.ErrorMessage = cause.Error()
	if updateErr := c.store.UpdateTask(ctx, stored); updateErr != nil {
		return updateErr
	}

	if stored.RetryCount >= int(c.maxAttempts) {
		if _, blockErr := c.lifecycle.Escalate(ctx, task.ID,
			fmt.Sprintf("attempt budget exhausted after %d attempts: %v", stored.RetryCount, cause)); blockErr != nil {
			return blockErr
		}
		observability.TasksBlocked.Inc()
		c.logger.Error("task escalated after exhausting attempts",
			"task_id", task.ID, "retry_count", stored.RetryCount, "error", cause)
		return cause
	}

	until := c.now().Add(c.retryCooldown)
	if _, blockErr := c.lifecycle.Block(ctx, task.ID,
		fmt.Sprintf("execution failed (attempt %d): %v", stored.RetryCount, cause), &until); blockErr != nil {
		return blockErr
	}
	observability.TasksBlocked.Inc()
	c.logger.Error("task blocked after execution failure",
		"task_id", task.ID, "retry_count", stored.RetryCount, "error", cause)
	return cause
}

// prepareWorkspace materializes the task's isolated worktree. A retry
// or a sibling subtask may have created it already; `git worktree add`
// refuses an existing path, so a present worktree counts as done.
func (c *Coordinator) prepareWorkspace(ctx context.Context, task *datatypes.Task) error {
	if c.repo == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(task.Workspace, ".git")); err == nil {
		return nil
	}
	return c.repo.CreateWorktree(ctx, task.Workspace, "HEAD")
}

// taskPrompt renders the backend instruction for a task.
func taskPrompt(task *datatypes.Task) string {
	prompt := "Complete the following engineering task.\n\nTitle: " + task.Title
	if task.Description != "" {
		prompt += "\n\n" + task.Description
	}
	prompt += "\n\nMake the required code changes in the workspace. Leave the worktree in a committable state."
	return prompt
}

// =============================================================================
// Worker Loop
// =============================================================================

// Run drives one executor until the context ends: claim, execute,
// repeat, idling on the poll interval when nothing is ready. The
// reconciliation sweep runs on its own ticker.
func (c *Coordinator) Run(ctx context.Context, executorID string) error {
	sweep := time.NewTicker(c.sweepInterval)
	defer sweep.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		task, err := c.ClaimNext(ctx, executorID)
		switch {
		case err == nil:
			if execErr := c.Execute(ctx, task); execErr != nil {
				c.logger.Warn("task execution failed", "task_id", task.ID, "error", execErr)
			}
			continue
		case errors.Is(err, ErrNoReadyTasks), errors.Is(err, store.ErrExecutorBusy):
			// Idle until something changes.
		default:
			c.logger.Error("claim scan failed", "executor_id", executorID, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			if _, err := c.Reconcile(ctx); err != nil {
				c.logger.Error("reconciliation sweep failed", "error", err)
			}
		case <-poll.C:
		}
	}
}
