// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conflict resolves merge conflicts between a change request's
// branch and mainline at two checkpoints: before CI runs, and before
// merge.
//
// A resolution that succeeds after review never merges silently. The
// change request is annotated as auto-resolved and forced back to
// ready_for_review so a reviewer sees the rebased result. A resolution
// that fails aborts cleanly, marks the change request
// changes_requested, and returns the task to ready.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/executor"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/vcs"
)

var tracer = otel.Tracer("swarm.conflict")

// resolverID is the actor recorded on comments the resolver leaves.
const resolverID = "conflict-resolver"

// ErrNotResolvable is returned when a resolution is requested for a
// change request that is not under review: drafts have not been
// published, changes_requested is reworked by its author, and terminal
// change requests are settled.
var ErrNotResolvable = errors.New("change request is not under review")

// Checkpoint identifies where in the pipeline a conflict was detected.
type Checkpoint string

const (
	// CheckpointPreCI runs after the branch is published, before CI.
	// A successful resolution triggers a fresh CI run.
	CheckpointPreCI Checkpoint = "pre_ci"

	// CheckpointPreMerge runs after approval, before the merge. A
	// successful resolution invalidates the approval: the change
	// request returns to ready_for_review carrying an auto-resolved
	// annotation.
	CheckpointPreMerge Checkpoint = "pre_merge"
)

// Action describes what a resolution attempt did.
type Action string

const (
	ActionNoConflict Action = "no_conflict"
	ActionCIRerun    Action = "ci_rerun"
	ActionReReview   Action = "re_review"
	ActionAborted    Action = "aborted"
)

// Outcome reports the result of one resolution attempt.
type Outcome struct {
	Resolved        bool     `json:"resolved"`
	Action          Action   `json:"action"`
	ConflictedFiles []string `json:"conflicted_files,omitempty"`
}

// Resolver drives conflict resolution for change-request branches.
type Resolver struct {
	git       vcs.Git
	host      vcs.Host
	store     store.Store
	lifecycle *lifecycle.Controller
	invoker   executor.Invoker
	logger    *slog.Logger

	mainline string
	remote   string
	timeout  time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMainline overrides the mainline branch name (default "main").
func WithMainline(branch string) Option {
	return func(r *Resolver) { r.mainline = branch }
}

// WithRemote overrides the remote name (default "origin").
func WithRemote(remote string) Option {
	return func(r *Resolver) { r.remote = remote }
}

// WithInvocationTimeout bounds the backend call that resolves
// conflicted files.
func WithInvocationTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// NewResolver creates a conflict resolver.
func NewResolver(git vcs.Git, host vcs.Host, st store.Store, lc *lifecycle.Controller, inv executor.Invoker, opts ...Option) *Resolver {
	r := &Resolver{
		git:       git,
		host:      host,
		store:     st,
		lifecycle: lc,
		invoker:   inv,
		logger:    slog.Default(),
		mainline:  "main",
		remote:    "origin",
		timeout:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve attempts to reconcile a change request's branch with
// mainline at the given checkpoint.
//
// # Description
//
//	Checks the branch out, stashes any local noise, and rebases onto
//	the mainline tracking ref. Conflicts are handed to the coding
//	backend file by file; staged resolutions continue the rebase and
//	the branch is force-pushed with lease. Failure at any step aborts
//	the rebase, restores the stash, marks the change request
//	changes_requested, and readies the task.
//
// # Inputs
//
//   - ctx: cancellation and tracing context.
//   - crID: the change request to reconcile.
//   - checkpoint: where the conflict was detected.
//
// # Outputs
//
//   - *Outcome: what happened; never nil on nil error.
//   - error: ErrNotResolvable when the change request is not under
//     review, or store and git failures that prevented a clean verdict.
func (r *Resolver) Resolve(ctx context.Context, crID string, checkpoint Checkpoint) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "conflict.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("cr_id", crID),
		attribute.String("checkpoint", string(checkpoint)),
	)

	cr, err := r.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	switch cr.Status {
	case datatypes.CRStatusReadyForReview, datatypes.CRStatusApproved:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResolvable, crID, cr.Status)
	}
	if cr.Branch == "" {
		return nil, fmt.Errorf("change request %s has no branch", crID)
	}

	if err := r.git.Fetch(ctx, r.remote); err != nil {
		return nil, err
	}
	upstream := r.remote + "/" + r.mainline

	clean, err := r.git.Mergeable(ctx, upstream, cr.Branch)
	if err != nil {
		return nil, err
	}
	if clean {
		return &Outcome{Resolved: true, Action: ActionNoConflict}, nil
	}

	if err := r.git.Checkout(ctx, cr.Branch); err != nil {
		return nil, err
	}
	stashed, err := r.stashIfDirty(ctx, cr)
	if err != nil {
		return nil, err
	}

	files, err := r.rebaseAndRepair(ctx, cr, upstream)
	if err != nil {
		r.abort(ctx, cr, stashed)
		if failErr := r.markFailed(ctx, cr, files, err); failErr != nil {
			return nil, failErr
		}
		r.logger.Warn("conflict resolution failed",
			"cr_id", cr.ID, "checkpoint", checkpoint, "error", err)
		return &Outcome{Resolved: false, Action: ActionAborted, ConflictedFiles: files}, nil
	}

	if err := r.git.ForcePushWithLease(ctx, r.remote, cr.Branch); err != nil {
		r.abort(ctx, cr, stashed)
		if failErr := r.markFailed(ctx, cr, files, err); failErr != nil {
			return nil, failErr
		}
		return &Outcome{Resolved: false, Action: ActionAborted, ConflictedFiles: files}, nil
	}
	if stashed {
		if err := r.git.StashPop(ctx); err != nil {
			r.logger.Warn("stash pop failed after resolution", "cr_id", cr.ID, "error", err)
		}
	}

	return r.finish(ctx, cr, checkpoint, files)
}

// stashIfDirty stashes uncommitted workspace changes before the rebase.
func (r *Resolver) stashIfDirty(ctx context.Context, cr *datatypes.ChangeRequest) (bool, error) {
	clean, err := r.git.IsClean(ctx)
	if err != nil {
		return false, err
	}
	if clean {
		return false, nil
	}
	if err := r.git.StashPush(ctx, "conflict-resolver: "+cr.ID); err != nil {
		return false, err
	}
	return true, nil
}

// rebaseAndRepair rebases onto upstream, handing each conflicted stop
// to the coding backend. Returns the union of conflicted files seen.
func (r *Resolver) rebaseAndRepair(ctx context.Context, cr *datatypes.ChangeRequest, upstream string) ([]string, error) {
	rebaseErr := r.git.RebaseOnto(ctx, upstream)
	var seen []string
	for rebaseErr != nil {
		if !r.git.HasRebaseInProgress(ctx) {
			return seen, rebaseErr
		}
		files, err := r.git.ConflictedFiles(ctx)
		if err != nil {
			return seen, err
		}
		if len(files) == 0 {
			return seen, rebaseErr
		}
		seen = mergeFiles(seen, files)

		task, err := r.store.GetTask(ctx, cr.TaskID)
		if err != nil {
			return seen, err
		}
		result, err := r.invoker.Invoke(ctx, executor.InvokeRequest{
			Prompt:           conflictPrompt(task, files, upstream),
			WorkingDirectory: task.Workspace,
			Timeout:          r.timeout,
		})
		if err != nil {
			return seen, fmt.Errorf("backend conflict repair: %w", err)
		}
		if !result.Success {
			return seen, fmt.Errorf("backend declined conflict repair: %s", firstLine(result.Output))
		}

		if err := r.git.AddAll(ctx); err != nil {
			return seen, err
		}
		rebaseErr = r.git.RebaseContinue(ctx)
	}
	return seen, nil
}

// finish applies the checkpoint policy after a successful rebase.
func (r *Resolver) finish(ctx context.Context, cr *datatypes.ChangeRequest, checkpoint Checkpoint, files []string) (*Outcome, error) {
	switch checkpoint {
	case CheckpointPreMerge:
		// Never merge an auto-resolved change silently: the approval is
		// stale against the rebased branch.
		cr.AutoResolved = true
		cr.Comments = append(cr.Comments, datatypes.ReviewComment{
			AuthorID:  resolverID,
			Body:      "auto-resolved: rebased onto " + r.mainline + ", conflicts repaired in " + strings.Join(files, ", "),
			CreatedAt: time.Now(),
		})
		if err := r.store.UpdateChangeRequest(ctx, cr); err != nil {
			return nil, err
		}
		if err := r.host.Annotate(ctx, cr, "auto-resolved"); err != nil {
			r.logger.Warn("host annotation failed", "cr_id", cr.ID, "error", err)
		}
		if _, err := r.lifecycle.SubmitForReview(ctx, cr.ID); err != nil {
			return nil, err
		}
		r.logger.Info("conflict auto-resolved, re-review required", "cr_id", cr.ID, "files", len(files))
		return &Outcome{Resolved: true, Action: ActionReReview, ConflictedFiles: files}, nil

	default:
		if err := r.host.TriggerCI(ctx, cr); err != nil {
			r.logger.Warn("ci trigger failed", "cr_id", cr.ID, "error", err)
		}
		r.logger.Info("conflict resolved before ci", "cr_id", cr.ID, "files", len(files))
		return &Outcome{Resolved: true, Action: ActionCIRerun, ConflictedFiles: files}, nil
	}
}

// abort restores the repository after a failed attempt.
func (r *Resolver) abort(ctx context.Context, cr *datatypes.ChangeRequest, stashed bool) {
	if r.git.HasRebaseInProgress(ctx) {
		if err := r.git.RebaseAbort(ctx); err != nil {
			r.logger.Error("rebase abort failed", "cr_id", cr.ID, "error", err)
		}
	}
	if stashed {
		if err := r.git.StashPop(ctx); err != nil {
			r.logger.Warn("stash pop failed after abort", "cr_id", cr.ID, "error", err)
		}
	}
}

// markFailed records the failed resolution: the change request moves to
// changes_requested and its task returns to ready.
func (r *Resolver) markFailed(ctx context.Context, cr *datatypes.ChangeRequest, files []string, cause error) error {
	body := "automatic conflict resolution failed: " + cause.Error()
	if len(files) > 0 {
		body += " (conflicts in " + strings.Join(files, ", ") + ")"
	}
	_, err := r.lifecycle.RequestChanges(ctx, cr.ID, resolverID, body)
	return err
}

// conflictPrompt builds the backend instruction for one conflicted
// rebase stop.
func conflictPrompt(task *datatypes.Task, files []string, upstream string) string {
	var b strings.Builder
	b.WriteString("A rebase of your branch onto " + upstream + " stopped on merge conflicts.\n")
	b.WriteString("Task: " + task.Title + "\n")
	if task.Description != "" {
		b.WriteString(task.Description + "\n")
	}
	b.WriteString("\nResolve the conflict markers in these files, keeping both the upstream intent and the task's changes:\n")
	for _, f := range files {
		b.WriteString("  - " + f + "\n")
	}
	b.WriteString("\nEdit the files in place. Do not run git commands; staging and continuing the rebase is handled for you.")
	return b.String()
}

// mergeFiles unions two file lists preserving first-seen order.
func mergeFiles(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, f := range a {
		seen[f] = true
	}
	for _, f := range b {
		if !seen[f] {
			seen[f] = true
			a = append(a, f)
		}
	}
	return a
}

// firstLine truncates multi-line backend output for error messages.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
