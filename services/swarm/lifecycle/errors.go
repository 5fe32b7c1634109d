// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle owns the task and change-request state machines.
//
// Every status mutation in the system flows through the Controller:
// manual transitions (release, cancel, escalate), review decisions,
// merges, the completion cascade up the epic tree, and dependent
// unblocking. The controller validates transitions against explicit
// tables; an invalid transition is an error, never a silent overwrite.
//
// # Thread Safety
//
// The Controller is safe for concurrent use; all state lives in the
// store, which arbitrates races.
package lifecycle

import "errors"

// Sentinel errors for lifecycle operations.
var (
	// ErrInvalidTransition is returned when a status change is not
	// permitted by the state machine.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrReviewerIsAuthor is returned when reviewer assignment would
	// select the change request's author. The author is never eligible.
	ErrReviewerIsAuthor = errors.New("reviewer must not be the author")

	// ErrNotApproved is returned when a merge is attempted from any
	// state other than approved.
	ErrNotApproved = errors.New("change request is not approved")

	// ErrNoReviewer is returned when no eligible reviewer exists and
	// the specialized-reviewer directory cannot supply one.
	ErrNoReviewer = errors.New("no eligible reviewer available")

	// ErrTerminal is returned when mutating a task already in a
	// terminal state.
	ErrTerminal = errors.New("task is in a terminal state")
)
