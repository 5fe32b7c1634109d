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

// MaxTasksPerRequest caps the number of tasks accepted in a single
// analyze or rebalance request. Prevents memory exhaustion from
// unbounded task sets.
const MaxTasksPerRequest = 10000

// AnalyzeRequest asks the core to compute structure for a task set.
type AnalyzeRequest struct {
	Tasks []*Task `json:"tasks" validate:"required,max=10000,dive,required"`
}

// Validate checks the request and every embedded task.
func (r *AnalyzeRequest) Validate() error {
	if err := swarmValidate.Struct(r); err != nil {
		return err
	}
	for _, t := range r.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RebalanceRequest asks the priority engine to rescore a task set.
type RebalanceRequest struct {
	Tasks []*Task `json:"tasks" validate:"required,max=10000,dive,required"`

	// DryRun computes proposed changes without persisting them.
	DryRun bool `json:"dry_run,omitempty"`

	// MinScoreChange overrides the materiality threshold below which a
	// priority change is suppressed. Zero uses the engine default.
	MinScoreChange float64 `json:"min_score_change,omitempty" validate:"gte=0,lte=100"`
}

// Validate checks the request and every embedded task.
func (r *RebalanceRequest) Validate() error {
	if err := swarmValidate.Struct(r); err != nil {
		return err
	}
	for _, t := range r.Tasks {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TransitionRequest drives a manual task transition.
type TransitionRequest struct {
	// To is the target task status.
	To TaskStatus `json:"to" validate:"required"`

	// Reason is required for escalations and recorded on the task.
	Reason string `json:"reason,omitempty" validate:"max=2048"`
}

// ClaimRequest binds a ready task to an executor.
type ClaimRequest struct {
	ExecutorID string `json:"executor_id" validate:"required,max=256"`
}

// ReviewRequest carries a review verdict on a change request.
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required,max=256"`

	// Body is the review comment, required when requesting changes.
	Body string `json:"body,omitempty" validate:"max=65536"`
}

// ResolveConflictRequest triggers conflict resolution at a checkpoint.
type ResolveConflictRequest struct {
	// Checkpoint is pre_ci or pre_merge.
	Checkpoint string `json:"checkpoint" validate:"required,oneof=pre_ci pre_merge"`
}

// ErrorResponse is the uniform error payload for the swarm API.
type ErrorResponse struct {
	Error string `json:"error"`
}
