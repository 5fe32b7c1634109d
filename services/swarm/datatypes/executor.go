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

// Executor is an autonomous or human agent that claims and performs
// tasks, and may review other executors' change requests.
type Executor struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name,omitempty"`

	// Team groups executors for reviewer assignment; generalist review
	// prefers an idle same-team executor first.
	Team string `json:"team,omitempty"`

	// Specialties lists reviewer classes this executor can serve beyond
	// generalist review.
	Specialties []ReviewerClass `json:"specialties,omitempty"`

	// ActiveTasks is the number of tasks currently claimed.
	ActiveTasks int `json:"active_tasks"`

	// MaxConcurrent caps concurrent claims. Zero means the default
	// limit of one task at a time.
	MaxConcurrent int `json:"max_concurrent,omitempty"`
}

// ConcurrencyLimit returns the effective concurrent-claim cap.
func (e *Executor) ConcurrencyLimit() int {
	if e.MaxConcurrent <= 0 {
		return 1
	}
	return e.MaxConcurrent
}

// Idle reports whether the executor has claim capacity left.
func (e *Executor) Idle() bool {
	return e.ActiveTasks < e.ConcurrencyLimit()
}

// HasSpecialty reports whether the executor serves the given reviewer
// class.
func (e *Executor) HasSpecialty(class ReviewerClass) bool {
	for _, s := range e.Specialties {
		if s == class {
			return true
		}
	}
	return false
}
