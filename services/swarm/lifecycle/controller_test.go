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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// =============================================================================
// Fixtures
// =============================================================================

func newHarness(t *testing.T, opts ...Option) (*Controller, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	opts = append(opts, withClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}))
	return NewController(st, opts...), st
}

func mustCreate(t *testing.T, st store.Store, task *datatypes.Task) {
	t.Helper()
	if task.Status == "" {
		task.Status = datatypes.TaskStatusReady
	}
	if task.Priority == "" {
		task.Priority = datatypes.PriorityMedium
	}
	if task.Title == "" {
		task.Title = "task " + task.ID
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
}

func mustExecutor(t *testing.T, st store.Store, e *datatypes.Executor) {
	t.Helper()
	require.NoError(t, st.PutExecutor(context.Background(), e))
}

// claimAndOpen claims a task for an executor and opens a draft change
// request for it.
func claimAndOpen(t *testing.T, st store.Store, taskID, execID, crID string) {
	t.Helper()
	ctx := context.Background()
	_, err := st.ClaimTask(ctx, taskID, execID)
	require.NoError(t, err)
	require.NoError(t, st.OpenChangeRequest(ctx, &datatypes.ChangeRequest{
		ID:               crID,
		TaskID:           taskID,
		Status:           datatypes.CRStatusDraft,
		AuthorExecutorID: execID,
	}))
}

// =============================================================================
// State Machine Tables
// =============================================================================

func TestCanTransitionTask(t *testing.T) {
	cases := []struct {
		from, to datatypes.TaskStatus
		want     bool
	}{
		{datatypes.TaskStatusPending, datatypes.TaskStatusReady, true},
		{datatypes.TaskStatusReady, datatypes.TaskStatusInProgress, true},
		{datatypes.TaskStatusInProgress, datatypes.TaskStatusInReview, true},
		{datatypes.TaskStatusInProgress, datatypes.TaskStatusReady, true},
		{datatypes.TaskStatusInReview, datatypes.TaskStatusCompleted, true},
		{datatypes.TaskStatusInReview, datatypes.TaskStatusReady, true},
		{datatypes.TaskStatusBlocked, datatypes.TaskStatusReady, true},
		{datatypes.TaskStatusPending, datatypes.TaskStatusBlocked, true},
		{datatypes.TaskStatusInReview, datatypes.TaskStatusCancelled, true},

		{datatypes.TaskStatusPending, datatypes.TaskStatusInProgress, false},
		{datatypes.TaskStatusReady, datatypes.TaskStatusCompleted, false},
		{datatypes.TaskStatusCompleted, datatypes.TaskStatusReady, false},
		{datatypes.TaskStatusCancelled, datatypes.TaskStatusBlocked, false},
		{datatypes.TaskStatusReady, datatypes.TaskStatusReady, false},
	}
	for _, tc := range cases {
		got := CanTransitionTask(tc.from, tc.to)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransitionCR(t *testing.T) {
	cases := []struct {
		from, to datatypes.ChangeRequestStatus
		want     bool
	}{
		{datatypes.CRStatusDraft, datatypes.CRStatusReadyForReview, true},
		{datatypes.CRStatusReadyForReview, datatypes.CRStatusApproved, true},
		{datatypes.CRStatusReadyForReview, datatypes.CRStatusChangesRequested, true},
		{datatypes.CRStatusApproved, datatypes.CRStatusMerged, true},
		{datatypes.CRStatusApproved, datatypes.CRStatusReadyForReview, true},
		{datatypes.CRStatusApproved, datatypes.CRStatusChangesRequested, true},
		{datatypes.CRStatusChangesRequested, datatypes.CRStatusReadyForReview, true},
		{datatypes.CRStatusDraft, datatypes.CRStatusClosed, true},

		{datatypes.CRStatusDraft, datatypes.CRStatusMerged, false},
		{datatypes.CRStatusReadyForReview, datatypes.CRStatusMerged, false},
		{datatypes.CRStatusMerged, datatypes.CRStatusClosed, false},
		{datatypes.CRStatusClosed, datatypes.CRStatusReadyForReview, false},
	}
	for _, tc := range cases {
		got := CanTransitionCR(tc.from, tc.to)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.from, tc.to)
	}
}

// =============================================================================
// Task Operations
// =============================================================================

func TestController_TransitionTask(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects illegal edge", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "t1", Status: datatypes.TaskStatusPending})

		_, err := c.TransitionTask(ctx, "t1", datatypes.TaskStatusInProgress, "")
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown task", func(t *testing.T) {
		c, _ := newHarness(t)
		_, err := c.TransitionTask(ctx, "nope", datatypes.TaskStatusReady, "")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("release clears backoff and claim", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "e1"})
		mustCreate(t, st, &datatypes.Task{ID: "t1"})
		_, err := st.ClaimTask(ctx, "t1", "e1")
		require.NoError(t, err)
		until := time.Now().Add(time.Hour)
		_, err = c.Block(ctx, "t1", "flaky ci", &until)
		require.NoError(t, err)

		got, err := c.Release(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusReady, got.Status)
		assert.Empty(t, got.AssignedExecutorID)
		assert.Nil(t, got.BlockedUntil)
		assert.Empty(t, got.BlockedReason)

		exec, err := st.GetExecutor(ctx, "e1")
		require.NoError(t, err)
		assert.Zero(t, exec.ActiveTasks, "claim capacity must be returned")
	})

	t.Run("escalate blocks without backoff window", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "t1"})

		got, err := c.Escalate(ctx, "t1", "needs human sign-off")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusBlocked, got.Status)
		assert.Nil(t, got.BlockedUntil)
		assert.Contains(t, got.BlockedReason, "needs human sign-off")
	})
}

func TestController_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades to non-completed descendants", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "epic", Status: datatypes.TaskStatusPending})
		mustCreate(t, st, &datatypes.Task{ID: "a", ParentTaskID: "epic", Depth: 1})
		mustCreate(t, st, &datatypes.Task{ID: "b", ParentTaskID: "epic", Depth: 1, Status: datatypes.TaskStatusCompleted})
		mustCreate(t, st, &datatypes.Task{ID: "a1", ParentTaskID: "a", Depth: 2, Status: datatypes.TaskStatusPending})

		_, err := c.Cancel(ctx, "epic")
		require.NoError(t, err)

		for id, want := range map[string]datatypes.TaskStatus{
			"epic": datatypes.TaskStatusCancelled,
			"a":    datatypes.TaskStatusCancelled,
			"a1":   datatypes.TaskStatusCancelled,
			"b":    datatypes.TaskStatusCompleted,
		} {
			got, err := st.GetTask(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, want, got.Status, "task %s", id)
		}
	})

	t.Run("terminal task rejected", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "t1", Status: datatypes.TaskStatusCompleted})
		_, err := c.Cancel(ctx, "t1")
		require.ErrorIs(t, err, ErrTerminal)
	})

	t.Run("releases held claims", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "e1"})
		mustCreate(t, st, &datatypes.Task{ID: "t1"})
		_, err := st.ClaimTask(ctx, "t1", "e1")
		require.NoError(t, err)

		_, err = c.Cancel(ctx, "t1")
		require.NoError(t, err)
		exec, err := st.GetExecutor(ctx, "e1")
		require.NoError(t, err)
		assert.Zero(t, exec.ActiveTasks)
	})

	t.Run("closes the live change request", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "e1"})
		mustCreate(t, st, &datatypes.Task{ID: "t1"})
		claimAndOpen(t, st, "t1", "e1", "cr1")

		_, err := c.Cancel(ctx, "t1")
		require.NoError(t, err)

		cr, err := st.GetChangeRequest(ctx, "cr1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.CRStatusClosed, cr.Status)

		got, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusCancelled, got.Status)
	})
}

func TestController_CompletionCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("epic completes when last child completes", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "root", Status: datatypes.TaskStatusPending})
		mustCreate(t, st, &datatypes.Task{ID: "mid", ParentTaskID: "root", Depth: 1, Status: datatypes.TaskStatusPending})
		mustCreate(t, st, &datatypes.Task{ID: "leaf1", ParentTaskID: "mid", Depth: 2, Status: datatypes.TaskStatusCompleted})
		mustCreate(t, st, &datatypes.Task{ID: "leaf2", ParentTaskID: "mid", Depth: 2, Status: datatypes.TaskStatusInReview})

		_, err := c.Complete(ctx, "leaf2")
		require.NoError(t, err)

		for _, id := range []string{"leaf2", "mid", "root"} {
			got, err := st.GetTask(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, datatypes.TaskStatusCompleted, got.Status, "task %s", id)
		}
	})

	t.Run("cascade stops at parent with live children", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "epic", Status: datatypes.TaskStatusPending})
		mustCreate(t, st, &datatypes.Task{ID: "done", ParentTaskID: "epic", Depth: 1, Status: datatypes.TaskStatusInReview})
		mustCreate(t, st, &datatypes.Task{ID: "live", ParentTaskID: "epic", Depth: 1})

		_, err := c.Complete(ctx, "done")
		require.NoError(t, err)

		epic, err := st.GetTask(ctx, "epic")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusPending, epic.Status)
	})

	t.Run("cancelled child blocks cascade by default", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "epic", Status: datatypes.TaskStatusPending})
		mustCreate(t, st, &datatypes.Task{ID: "c1", ParentTaskID: "epic", Depth: 1, Status: datatypes.TaskStatusCancelled})
		mustCreate(t, st, &datatypes.Task{ID: "c2", ParentTaskID: "epic", Depth: 1, Status: datatypes.TaskStatusInReview})

		_, err := c.Complete(ctx, "c2")
		require.NoError(t, err)
		epic, err := st.GetTask(ctx, "epic")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusPending, epic.Status)
	})

	t.Run("cancelled child counts when configured", func(t *testing.T) {
		c, st := newHarness(t, WithCancelledCountsComplete(true))
		mustCreate(t, st, &datatypes.Task{ID: "epic", Status: datatypes.TaskStatusPending})
		mustCreate(t, st, &datatypes.Task{ID: "c1", ParentTaskID: "epic", Depth: 1, Status: datatypes.TaskStatusCancelled})
		mustCreate(t, st, &datatypes.Task{ID: "c2", ParentTaskID: "epic", Depth: 1, Status: datatypes.TaskStatusInReview})

		_, err := c.Complete(ctx, "c2")
		require.NoError(t, err)
		epic, err := st.GetTask(ctx, "epic")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusCompleted, epic.Status)
	})

	t.Run("completion readies dependents", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "dep", Status: datatypes.TaskStatusInReview})
		mustCreate(t, st, &datatypes.Task{ID: "waiting", Status: datatypes.TaskStatusPending, DependsOn: []string{"dep"}})
		mustCreate(t, st, &datatypes.Task{ID: "still-waiting", Status: datatypes.TaskStatusPending, DependsOn: []string{"dep", "other"}})
		mustCreate(t, st, &datatypes.Task{ID: "other", Status: datatypes.TaskStatusPending})

		_, err := c.Complete(ctx, "dep")
		require.NoError(t, err)

		waiting, err := st.GetTask(ctx, "waiting")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusReady, waiting.Status)

		still, err := st.GetTask(ctx, "still-waiting")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusPending, still.Status)
	})

	t.Run("dangling dependency does not wedge", func(t *testing.T) {
		c, st := newHarness(t)
		mustCreate(t, st, &datatypes.Task{ID: "dep", Status: datatypes.TaskStatusInReview})
		mustCreate(t, st, &datatypes.Task{ID: "waiting", Status: datatypes.TaskStatusPending, DependsOn: []string{"dep", "ghost"}})

		_, err := c.Complete(ctx, "dep")
		require.NoError(t, err)
		waiting, err := st.GetTask(ctx, "waiting")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusReady, waiting.Status)
	})

	t.Run("completion unblocks elapsed dependents immediately", func(t *testing.T) {
		c, st := newHarness(t)
		past := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)

		mustCreate(t, st, &datatypes.Task{ID: "dep", Status: datatypes.TaskStatusInReview})
		mustCreate(t, st, &datatypes.Task{
			ID: "cooled", Status: datatypes.TaskStatusBlocked,
			DependsOn: []string{"dep"}, BlockedUntil: &past, BlockedReason: "backoff",
		})
		mustCreate(t, st, &datatypes.Task{
			ID: "held", Status: datatypes.TaskStatusBlocked,
			BlockedReason: "escalated: needs a human",
		})

		_, err := c.Complete(ctx, "dep")
		require.NoError(t, err)

		cooled, err := st.GetTask(ctx, "cooled")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusReady, cooled.Status)
		assert.Nil(t, cooled.BlockedUntil)

		// A hold with no window waits for an explicit release.
		held, err := st.GetTask(ctx, "held")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusBlocked, held.Status)
	})
}

func TestController_ReevaluateBlocked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c, st := newHarness(t)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	mustCreate(t, st, &datatypes.Task{ID: "elapsed", Status: datatypes.TaskStatusBlocked, BlockedUntil: &past, BlockedReason: "backoff"})
	mustCreate(t, st, &datatypes.Task{ID: "waiting", Status: datatypes.TaskStatusBlocked, BlockedUntil: &future})
	mustCreate(t, st, &datatypes.Task{ID: "held", Status: datatypes.TaskStatusBlocked}) // no window: human hold
	mustCreate(t, st, &datatypes.Task{ID: "dep", Status: datatypes.TaskStatusPending})
	mustCreate(t, st, &datatypes.Task{ID: "dep-blocked", Status: datatypes.TaskStatusBlocked, BlockedUntil: &past, DependsOn: []string{"dep"}})

	released, err := c.ReevaluateBlocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"elapsed"}, released)

	elapsed, err := st.GetTask(ctx, "elapsed")
	require.NoError(t, err)
	assert.Equal(t, datatypes.TaskStatusReady, elapsed.Status)
	assert.Empty(t, elapsed.BlockedReason)

	for _, id := range []string{"waiting", "held", "dep-blocked"} {
		got, err := st.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusBlocked, got.Status, "task %s", id)
	}
}

// =============================================================================
// Change Request Operations
// =============================================================================

func TestController_ReviewFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("submit assigns same-team idle reviewer", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author", Team: "core"})
		mustExecutor(t, st, &datatypes.Executor{ID: "other-team"})
		mustExecutor(t, st, &datatypes.Executor{ID: "teammate", Team: "core"})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "add pagination"})
		claimAndOpen(t, st, "t1", "author", "cr1")

		cr, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.CRStatusReadyForReview, cr.Status)
		assert.Equal(t, "teammate", cr.ReviewerExecutorID)
		assert.Equal(t, datatypes.ReviewerGeneralist, cr.ReviewerClass)
	})

	t.Run("author never reviews own change", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author", Team: "core", MaxConcurrent: 2})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "tidy imports"})
		claimAndOpen(t, st, "t1", "author", "cr1")

		cr, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)
		assert.NotEqual(t, "author", cr.ReviewerExecutorID)
		assert.NotEmpty(t, cr.ReviewerExecutorID, "directory must supply a reviewer")
	})

	t.Run("security change routed to specialist", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author", Team: "core"})
		mustExecutor(t, st, &datatypes.Executor{ID: "teammate", Team: "core"})
		mustExecutor(t, st, &datatypes.Executor{ID: "sec", Specialties: []datatypes.ReviewerClass{datatypes.ReviewerSecurity}})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "rotate auth token signing secret"})
		claimAndOpen(t, st, "t1", "author", "cr1")

		cr, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)
		assert.Equal(t, "sec", cr.ReviewerExecutorID)
		assert.Equal(t, datatypes.ReviewerSecurity, cr.ReviewerClass)
	})

	t.Run("approve then merge completes task", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author"})
		mustExecutor(t, st, &datatypes.Executor{ID: "rev"})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "implement widget"})
		claimAndOpen(t, st, "t1", "author", "cr1")

		_, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)
		_, err = c.Approve(ctx, "cr1", "rev")
		require.NoError(t, err)

		cr, err := c.Merge(ctx, "cr1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.CRStatusMerged, cr.Status)
		require.NotNil(t, cr.MergedAt)

		task, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusCompleted, task.Status)
		assert.Empty(t, task.AssignedExecutorID)
	})

	t.Run("approve by author rejected", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author"})
		mustExecutor(t, st, &datatypes.Executor{ID: "rev"})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "implement widget"})
		claimAndOpen(t, st, "t1", "author", "cr1")
		_, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)

		_, err = c.Approve(ctx, "cr1", "author")
		require.ErrorIs(t, err, ErrReviewerIsAuthor)
	})

	t.Run("merge requires approval", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author"})
		mustExecutor(t, st, &datatypes.Executor{ID: "rev"})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "implement widget"})
		claimAndOpen(t, st, "t1", "author", "cr1")
		_, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)

		_, err = c.Merge(ctx, "cr1")
		require.ErrorIs(t, err, ErrNotApproved)
	})

	t.Run("changes requested reopens task", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author"})
		mustExecutor(t, st, &datatypes.Executor{ID: "rev"})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "implement widget"})
		claimAndOpen(t, st, "t1", "author", "cr1")
		_, err := c.SubmitForReview(ctx, "cr1")
		require.NoError(t, err)

		cr, err := c.RequestChanges(ctx, "cr1", "rev", "missing tests")
		require.NoError(t, err)
		assert.Equal(t, datatypes.CRStatusChangesRequested, cr.Status)
		require.Len(t, cr.Comments, 1)
		assert.Equal(t, "missing tests", cr.Comments[0].Body)

		task, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusReady, task.Status)
		assert.Empty(t, task.AssignedExecutorID)

		// The same executor can claim again for the rework.
		_, err = st.ClaimTask(ctx, "t1", "author")
		require.NoError(t, err)
	})

	t.Run("close reopens in-review task", func(t *testing.T) {
		c, st := newHarness(t)
		mustExecutor(t, st, &datatypes.Executor{ID: "author"})
		mustCreate(t, st, &datatypes.Task{ID: "t1", Title: "implement widget"})
		claimAndOpen(t, st, "t1", "author", "cr1")

		cr, err := c.Close(ctx, "cr1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.CRStatusClosed, cr.Status)

		task, err := st.GetTask(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, datatypes.TaskStatusReady, task.Status)
	})
}

// =============================================================================
// Classification and Directory
// =============================================================================

func TestClassifyChange(t *testing.T) {
	cases := []struct {
		title string
		want  datatypes.ReviewerClass
	}{
		{"add CSV export", datatypes.ReviewerGeneralist},
		{"fix SQL injection in search endpoint", datatypes.ReviewerSecurity},
		{"refactor storage interface boundary", datatypes.ReviewerArchitecture},
		{"reduce p99 latency with response cache", datatypes.ReviewerPerformance},
		// Security outweighs performance on a tie.
		{"optimize auth cache token path security", datatypes.ReviewerSecurity},
	}
	for _, tc := range cases {
		got := ClassifyChange(&datatypes.Task{Title: tc.title})
		assert.Equal(t, tc.want, got, "title %q", tc.title)
	}
}

func TestStoreDirectory_LookupOrCreate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	d := NewStoreDirectory(st)

	t.Run("creates when none registered", func(t *testing.T) {
		got, err := d.LookupOrCreate(ctx, datatypes.ReviewerSecurity, "author")
		require.NoError(t, err)
		assert.True(t, got.HasSpecialty(datatypes.ReviewerSecurity))

		// The created reviewer is registered and found next time.
		again, err := d.LookupOrCreate(ctx, datatypes.ReviewerSecurity, "author")
		require.NoError(t, err)
		assert.Equal(t, got.ID, again.ID)
	})

	t.Run("excludes the author", func(t *testing.T) {
		require.NoError(t, st.PutExecutor(ctx, &datatypes.Executor{
			ID:          "self",
			Specialties: []datatypes.ReviewerClass{datatypes.ReviewerPerformance},
		}))
		got, err := d.LookupOrCreate(ctx, datatypes.ReviewerPerformance, "self")
		require.NoError(t, err)
		assert.NotEqual(t, "self", got.ID)
	})

	t.Run("busy specialist still usable as fallback", func(t *testing.T) {
		require.NoError(t, st.PutExecutor(ctx, &datatypes.Executor{
			ID:          "arch",
			Specialties: []datatypes.ReviewerClass{datatypes.ReviewerArchitecture},
			ActiveTasks: 1,
		}))
		got, err := d.LookupOrCreate(ctx, datatypes.ReviewerArchitecture, "author")
		require.NoError(t, err)
		assert.Equal(t, "arch", got.ID)
	})
}
