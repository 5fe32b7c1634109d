// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Change Request Status and Reviewer Class
// =============================================================================

// ChangeRequestStatus represents the review/merge state of a change
// request. Transitions are owned by the lifecycle package.
type ChangeRequestStatus string

const (
	// CRStatusDraft is the initial state after the coordinator opens a
	// change request but before a reviewer is assigned.
	CRStatusDraft ChangeRequestStatus = "draft"

	// CRStatusReadyForReview means a reviewer has been assigned and the
	// change request awaits a review decision.
	CRStatusReadyForReview ChangeRequestStatus = "ready_for_review"

	// CRStatusApproved means the reviewer approved. The only state from
	// which a merge is permitted.
	CRStatusApproved ChangeRequestStatus = "approved"

	// CRStatusChangesRequested means the reviewer (or a failed conflict
	// resolution) requested changes; the task returns to ready for a
	// resubmission.
	CRStatusChangesRequested ChangeRequestStatus = "changes_requested"

	// CRStatusMerged is terminal: the change landed on mainline.
	CRStatusMerged ChangeRequestStatus = "merged"

	// CRStatusClosed is terminal: abandoned without merging. Reachable
	// from any non-merged state.
	CRStatusClosed ChangeRequestStatus = "closed"
)

// IsTerminal reports whether the status is merged or closed.
func (s ChangeRequestStatus) IsTerminal() bool {
	return s == CRStatusMerged || s == CRStatusClosed
}

// ReviewerClass categorizes the review expertise a change request needs.
type ReviewerClass string

const (
	ReviewerGeneralist   ReviewerClass = "generalist"
	ReviewerSecurity     ReviewerClass = "security"
	ReviewerArchitecture ReviewerClass = "architecture"
	ReviewerPerformance  ReviewerClass = "performance"
)

// =============================================================================
// Change Request
// =============================================================================

// DiffStat summarizes a change request's branch diff against mainline.
type DiffStat struct {
	FilesChanged int      `json:"files_changed"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	Files        []string `json:"files,omitempty"`
}

// ReviewComment is a single comment left on a change request.
type ReviewComment struct {
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeRequest is the review/merge unit produced by a task's code
// changes.
//
// # Invariants
//
//   - Merged is reachable only from Approved.
//   - ReviewerExecutorID never equals AuthorExecutorID.
//   - A change request is never deleted, only closed.
type ChangeRequest struct {
	ID     string              `json:"id" validate:"required"`
	TaskID string              `json:"task_id" validate:"required"`
	Status ChangeRequestStatus `json:"status" validate:"required,oneof=draft ready_for_review approved changes_requested merged closed"`

	AuthorExecutorID   string        `json:"author_executor_id" validate:"required"`
	ReviewerExecutorID string        `json:"reviewer_executor_id,omitempty" validate:"omitempty,nefield=AuthorExecutorID"`
	ReviewerClass      ReviewerClass `json:"reviewer_class,omitempty"`

	// Branch is the workspace branch holding the change.
	Branch string `json:"branch,omitempty"`

	// RemoteHandle addresses the change request on the hosting backend.
	RemoteHandle string `json:"remote_handle,omitempty"`

	Comments []ReviewComment `json:"comments,omitempty"`

	// Stat summarizes the branch diff against mainline at submission.
	Stat *DiffStat `json:"stat,omitempty"`

	// AutoResolved marks that a merge conflict was resolved
	// automatically after review, requiring a fresh reviewer decision
	// before merging.
	AutoResolved bool `json:"auto_resolved,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	MergedAt   *time.Time `json:"merged_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the change request against its validation tags.
func (cr *ChangeRequest) Validate() error {
	return swarmValidate.Struct(cr)
}

// Clone returns a deep copy of the change request.
func (cr *ChangeRequest) Clone() *ChangeRequest {
	out := *cr
	if cr.Comments != nil {
		out.Comments = append([]ReviewComment(nil), cr.Comments...)
	}
	if cr.Stat != nil {
		stat := *cr.Stat
		stat.Files = append([]string(nil), cr.Stat.Files...)
		out.Stat = &stat
	}
	if cr.ApprovedAt != nil {
		t := *cr.ApprovedAt
		out.ApprovedAt = &t
	}
	if cr.MergedAt != nil {
		t := *cr.MergedAt
		out.MergedAt = &t
	}
	return &out
}
