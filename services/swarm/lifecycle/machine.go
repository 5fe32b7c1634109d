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
	"fmt"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// =============================================================================
// Transition Tables
// =============================================================================

// taskTransitions enumerates the legal forward edges of the task state
// machine. Blocked and cancelled are reachable from every non-terminal
// state and are handled separately in CanTransitionTask.
var taskTransitions = map[datatypes.TaskStatus][]datatypes.TaskStatus{
	datatypes.TaskStatusPending:    {datatypes.TaskStatusReady},
	datatypes.TaskStatusReady:      {datatypes.TaskStatusInProgress},
	datatypes.TaskStatusInProgress: {datatypes.TaskStatusInReview, datatypes.TaskStatusReady},
	datatypes.TaskStatusInReview:   {datatypes.TaskStatusCompleted, datatypes.TaskStatusReady},
	datatypes.TaskStatusBlocked:    {datatypes.TaskStatusReady, datatypes.TaskStatusPending},
}

// crTransitions enumerates the legal edges of the change-request state
// machine. Approved may return to ready-for-review: an automated
// conflict resolution invalidates a prior approval and the change must
// be re-reviewed.
var crTransitions = map[datatypes.ChangeRequestStatus][]datatypes.ChangeRequestStatus{
	datatypes.CRStatusDraft: {
		datatypes.CRStatusReadyForReview,
		datatypes.CRStatusClosed,
	},
	datatypes.CRStatusReadyForReview: {
		datatypes.CRStatusApproved,
		datatypes.CRStatusChangesRequested,
		datatypes.CRStatusClosed,
	},
	datatypes.CRStatusApproved: {
		datatypes.CRStatusMerged,
		datatypes.CRStatusReadyForReview,
		datatypes.CRStatusChangesRequested,
		datatypes.CRStatusClosed,
	},
	datatypes.CRStatusChangesRequested: {
		datatypes.CRStatusReadyForReview,
		datatypes.CRStatusClosed,
	},
}

// CanTransitionTask reports whether a task may move from one status to
// another.
//
// # Description
//
//	Terminal states admit no exits. Blocked and cancelled are reachable
//	from any non-terminal state; all other edges come from the
//	transition table. A no-op transition (from == to) is never legal.
//
// # Inputs
//
//   - from: current status.
//   - to: proposed status.
//
// # Outputs
//
//   - bool: true when the transition is legal.
func CanTransitionTask(from, to datatypes.TaskStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	if to == datatypes.TaskStatusBlocked || to == datatypes.TaskStatusCancelled {
		return true
	}
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionCR reports whether a change request may move from one
// status to another.
func CanTransitionCR(from, to datatypes.ChangeRequestStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	for _, next := range crTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionTaskErr wraps an illegal task transition with both endpoints.
func transitionTaskErr(from, to datatypes.TaskStatus) error {
	return fmt.Errorf("%w: task %s -> %s", ErrInvalidTransition, from, to)
}

// transitionCRErr wraps an illegal change-request transition with both
// endpoints.
func transitionCRErr(from, to datatypes.ChangeRequestStatus) error {
	return fmt.Errorf("%w: change request %s -> %s", ErrInvalidTransition, from, to)
}
