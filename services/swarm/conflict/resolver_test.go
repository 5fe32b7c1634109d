// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conflict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/executor"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeGit scripts the repository behavior one resolution encounters.
type fakeGit struct {
	mergeable bool
	conflicts int // rebase stops remaining
	files     []string
	dirty     bool

	fetched     bool
	checkedOut  string
	inRebase    bool
	aborted     bool
	forcePushed bool
	stashPushes int
	stashPops   int
}

func (g *fakeGit) CurrentBranch(context.Context) (string, error)    { return "work", nil }
func (g *fakeGit) RevParse(_ context.Context, r string) (string, error) {
	return "sha-" + r, nil
}
func (g *fakeGit) BranchExists(context.Context, string) bool              { return true }
func (g *fakeGit) CreateBranch(context.Context, string, string) error     { return nil }
func (g *fakeGit) DeleteBranch(context.Context, string, bool) error       { return nil }
func (g *fakeGit) Fetch(context.Context, string) error                    { g.fetched = true; return nil }
func (g *fakeGit) StashPush(context.Context, string) error                { g.stashPushes++; return nil }
func (g *fakeGit) StashPop(context.Context) error                         { g.stashPops++; return nil }
func (g *fakeGit) AddAll(context.Context) error                           { return nil }
func (g *fakeGit) Commit(context.Context, string) error                   { return nil }
func (g *fakeGit) RebaseAbort(context.Context) error                      { g.aborted = true; g.inRebase = false; return nil }
func (g *fakeGit) HasRebaseInProgress(context.Context) bool               { return g.inRebase }
func (g *fakeGit) ConflictedFiles(context.Context) ([]string, error)      { return g.files, nil }
func (g *fakeGit) DiffAgainst(context.Context, string) (string, error)    { return "", nil }
func (g *fakeGit) CreateWorktree(context.Context, string, string) error   { return nil }
func (g *fakeGit) RemoveWorktree(context.Context, string, bool) error     { return nil }
func (g *fakeGit) IsClean(context.Context) (bool, error)                  { return !g.dirty, nil }
func (g *fakeGit) ForcePushWithLease(context.Context, string, string) error {
	g.forcePushed = true
	return nil
}

func (g *fakeGit) Checkout(_ context.Context, ref string) error {
	g.checkedOut = ref
	return nil
}

func (g *fakeGit) Mergeable(context.Context, string, string) (bool, error) {
	return g.mergeable, nil
}

func (g *fakeGit) RebaseOnto(context.Context, string) error {
	if g.conflicts > 0 {
		g.inRebase = true
		return errors.New("could not apply; fix conflicts")
	}
	return nil
}

func (g *fakeGit) RebaseContinue(context.Context) error {
	g.conflicts--
	if g.conflicts > 0 {
		return errors.New("could not apply; fix conflicts")
	}
	g.inRebase = false
	return nil
}

type fakeHost struct {
	annotations []string
	ciRuns      int
}

func (h *fakeHost) Publish(_ context.Context, cr *datatypes.ChangeRequest) (string, error) {
	return "fake/" + cr.Branch, nil
}
func (h *fakeHost) Annotate(_ context.Context, _ *datatypes.ChangeRequest, note string) error {
	h.annotations = append(h.annotations, note)
	return nil
}
func (h *fakeHost) TriggerCI(context.Context, *datatypes.ChangeRequest) error {
	h.ciRuns++
	return nil
}

type fakeInvoker struct {
	succeed bool
	err     error
	calls   int
	prompts []string
}

func (f *fakeInvoker) Invoke(_ context.Context, req executor.InvokeRequest) (*executor.InvokeResult, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &executor.InvokeResult{Success: f.succeed, Output: "done"}, nil
}

// =============================================================================
// Fixture
// =============================================================================

type harness struct {
	resolver *Resolver
	store    store.Store
	git      *fakeGit
	host     *fakeHost
	invoker  *fakeInvoker
}

func newHarness(t *testing.T, crStatus datatypes.ChangeRequestStatus) *harness {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.PutExecutor(ctx, &datatypes.Executor{ID: "author"}))
	require.NoError(t, st.PutExecutor(ctx, &datatypes.Executor{ID: "rev"}))
	require.NoError(t, st.CreateTask(ctx, &datatypes.Task{
		ID:       "t1",
		Title:    "implement widget",
		Status:   datatypes.TaskStatusReady,
		Priority: datatypes.PriorityMedium,
	}))
	_, err := st.ClaimTask(ctx, "t1", "author")
	require.NoError(t, err)
	require.NoError(t, st.OpenChangeRequest(ctx, &datatypes.ChangeRequest{
		ID:               "cr1",
		TaskID:           "t1",
		Status:           datatypes.CRStatusDraft,
		AuthorExecutorID: "author",
		Branch:           "task/t1",
	}))

	// Advance the change request to the checkpoint's starting state.
	cr, err := st.GetChangeRequest(ctx, "cr1")
	require.NoError(t, err)
	cr.Status = crStatus
	cr.ReviewerExecutorID = "rev"
	require.NoError(t, st.UpdateChangeRequest(ctx, cr))

	git := &fakeGit{files: []string{"pkg/widget/widget.go"}}
	host := &fakeHost{}
	inv := &fakeInvoker{succeed: true}
	lc := lifecycle.NewController(st)

	return &harness{
		resolver: NewResolver(git, host, st, lc, inv),
		store:    st,
		git:      git,
		host:     host,
		invoker:  inv,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestResolver_NoConflict(t *testing.T) {
	h := newHarness(t, datatypes.CRStatusReadyForReview)
	h.git.mergeable = true

	out, err := h.resolver.Resolve(context.Background(), "cr1", CheckpointPreCI)
	require.NoError(t, err)
	assert.True(t, out.Resolved)
	assert.Equal(t, ActionNoConflict, out.Action)
	assert.Zero(t, h.invoker.calls)
	assert.True(t, h.git.fetched)
	assert.Empty(t, h.git.checkedOut, "clean probe must not touch the worktree")
}

func TestResolver_PreCISuccess(t *testing.T) {
	h := newHarness(t, datatypes.CRStatusReadyForReview)
	h.git.conflicts = 1

	out, err := h.resolver.Resolve(context.Background(), "cr1", CheckpointPreCI)
	require.NoError(t, err)
	assert.True(t, out.Resolved)
	assert.Equal(t, ActionCIRerun, out.Action)
	assert.Equal(t, []string{"pkg/widget/widget.go"}, out.ConflictedFiles)
	assert.Equal(t, 1, h.invoker.calls)
	assert.Contains(t, h.invoker.prompts[0], "pkg/widget/widget.go")
	assert.True(t, h.git.forcePushed)
	assert.Equal(t, 1, h.host.ciRuns)

	// The change request state is untouched before review.
	cr, err := h.store.GetChangeRequest(context.Background(), "cr1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CRStatusReadyForReview, cr.Status)
	assert.False(t, cr.AutoResolved)
}

func TestResolver_PreMergeForcesReReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, datatypes.CRStatusApproved)
	h.git.conflicts = 1

	out, err := h.resolver.Resolve(ctx, "cr1", CheckpointPreMerge)
	require.NoError(t, err)
	assert.True(t, out.Resolved)
	assert.Equal(t, ActionReReview, out.Action)
	assert.True(t, h.git.forcePushed)
	assert.Contains(t, h.host.annotations, "auto-resolved")

	cr, err := h.store.GetChangeRequest(ctx, "cr1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CRStatusReadyForReview, cr.Status)
	assert.True(t, cr.AutoResolved)
	assert.Equal(t, "rev", cr.ReviewerExecutorID, "reviewer assignment survives")
	require.NotEmpty(t, cr.Comments)
	assert.Contains(t, cr.Comments[len(cr.Comments)-1].Body, "auto-resolved")

	// The stale approval can no longer merge.
	lc := lifecycle.NewController(h.store)
	_, err = lc.Merge(ctx, "cr1")
	require.ErrorIs(t, err, lifecycle.ErrNotApproved)
}

func TestResolver_MultipleConflictedStops(t *testing.T) {
	h := newHarness(t, datatypes.CRStatusReadyForReview)
	h.git.conflicts = 3

	out, err := h.resolver.Resolve(context.Background(), "cr1", CheckpointPreCI)
	require.NoError(t, err)
	assert.True(t, out.Resolved)
	assert.Equal(t, 3, h.invoker.calls, "every conflicted stop goes to the backend")
}

func TestResolver_BackendDeclines(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, datatypes.CRStatusReadyForReview)
	h.git.conflicts = 1
	h.invoker.succeed = false

	out, err := h.resolver.Resolve(ctx, "cr1", CheckpointPreCI)
	require.NoError(t, err)
	assert.False(t, out.Resolved)
	assert.Equal(t, ActionAborted, out.Action)
	assert.Equal(t, []string{"pkg/widget/widget.go"}, out.ConflictedFiles)
	assert.True(t, h.git.aborted)
	assert.False(t, h.git.forcePushed)

	cr, err := h.store.GetChangeRequest(ctx, "cr1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CRStatusChangesRequested, cr.Status)
	require.NotEmpty(t, cr.Comments)
	assert.Contains(t, cr.Comments[0].Body, "conflict resolution failed")

	task, err := h.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.TaskStatusReady, task.Status)
	assert.Empty(t, task.AssignedExecutorID)
}

func TestResolver_FailureAtPreMerge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, datatypes.CRStatusApproved)
	h.git.conflicts = 1
	h.invoker.err = errors.New("backend unavailable")

	out, err := h.resolver.Resolve(ctx, "cr1", CheckpointPreMerge)
	require.NoError(t, err)
	assert.False(t, out.Resolved)

	cr, err := h.store.GetChangeRequest(ctx, "cr1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CRStatusChangesRequested, cr.Status, "stale approval is revoked")
}

func TestResolver_RejectsUnreviewedChangeRequest(t *testing.T) {
	for _, status := range []datatypes.ChangeRequestStatus{
		datatypes.CRStatusDraft,
		datatypes.CRStatusChangesRequested,
		datatypes.CRStatusMerged,
		datatypes.CRStatusClosed,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t, status)

			_, err := h.resolver.Resolve(context.Background(), "cr1", CheckpointPreCI)
			require.ErrorIs(t, err, ErrNotResolvable)
			assert.False(t, h.git.fetched, "rejected before touching the repository")

			cr, err := h.store.GetChangeRequest(context.Background(), "cr1")
			require.NoError(t, err)
			assert.Equal(t, status, cr.Status)
		})
	}
}

func TestResolver_StashRestoredOnFailure(t *testing.T) {
	h := newHarness(t, datatypes.CRStatusReadyForReview)
	h.git.conflicts = 1
	h.git.dirty = true
	h.invoker.succeed = false

	_, err := h.resolver.Resolve(context.Background(), "cr1", CheckpointPreCI)
	require.NoError(t, err)
	assert.Equal(t, 1, h.git.stashPushes)
	assert.Equal(t, 1, h.git.stashPops)
}
