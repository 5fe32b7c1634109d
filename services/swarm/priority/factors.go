// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package priority scores tasks and proposes priority changes.
//
// Five factors, each in [0,100], combine into a composite score that is
// bucketed back into a priority tier. A change is applied only when the
// score delta crosses a materiality threshold, preventing thrashing
// from noisy signal changes. Scoring is pure; persistence of accepted
// changes is the caller's concern.
package priority

import (
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Composite weights. They sum to 1.
const (
	weightDependency    = 0.25
	weightCriticalPath  = 0.30
	weightProgress      = 0.15
	weightDeadline      = 0.15
	weightBusinessValue = 0.15
)

// Bucket boundaries for mapping a composite score to a priority tier.
const (
	bucketCritical = 80
	bucketHigh     = 60
	bucketMedium   = 40
)

// materialFactor is the per-factor threshold above which a factor is
// named in the reasoning output.
const materialFactor = 70

// Factors holds the five scoring factors for one task, each in [0,100].
type Factors struct {
	Dependency    float64 `json:"dependency"`
	CriticalPath  float64 `json:"critical_path"`
	Progress      float64 `json:"progress"`
	Deadline      float64 `json:"deadline"`
	BusinessValue float64 `json:"business_value"`
}

// Composite returns the weighted composite score in [0,100].
func (f Factors) Composite() float64 {
	return weightDependency*f.Dependency +
		weightCriticalPath*f.CriticalPath +
		weightProgress*f.Progress +
		weightDeadline*f.Deadline +
		weightBusinessValue*f.BusinessValue
}

// dependencyWeight scores fan-out: min(100, dependents x 20).
func dependencyWeight(dependentCount int) float64 {
	w := float64(dependentCount) * 20
	if w > 100 {
		return 100
	}
	return w
}

// criticalPathWeight is all-or-nothing: 100 on the critical path.
func criticalPathWeight(onPath bool) float64 {
	if onPath {
		return 100
	}
	return 0
}

// progressWeight favors tasks already in motion.
func progressWeight(status datatypes.TaskStatus) float64 {
	switch status {
	case datatypes.TaskStatusInProgress:
		return 100
	case datatypes.TaskStatusInReview:
		return 80
	case datatypes.TaskStatusReady:
		return 60
	case datatypes.TaskStatusPending:
		return 40
	case datatypes.TaskStatusBlocked:
		return 20
	default:
		return 0
	}
}

// deadlineWeight scores deadline pressure relative to now.
func deadlineWeight(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 30
	}
	until := deadline.Sub(now)
	switch {
	case until < 0:
		return 100 // overdue
	case until < 3*24*time.Hour:
		return 90
	case until < 7*24*time.Hour:
		return 70
	case until < 14*24*time.Hour:
		return 50
	default:
		return 30
	}
}

// businessValueWeight mirrors the manually set priority tier.
func businessValueWeight(p datatypes.TaskPriority) float64 {
	switch p {
	case datatypes.PriorityCritical:
		return 100
	case datatypes.PriorityHigh:
		return 75
	case datatypes.PriorityMedium:
		return 50
	case datatypes.PriorityLow:
		return 25
	default:
		return 0
	}
}

// bucketFor maps a composite score to a priority tier.
func bucketFor(score float64) datatypes.TaskPriority {
	switch {
	case score >= bucketCritical:
		return datatypes.PriorityCritical
	case score >= bucketHigh:
		return datatypes.PriorityHigh
	case score >= bucketMedium:
		return datatypes.PriorityMedium
	default:
		return datatypes.PriorityLow
	}
}

// reasoning names the factors that crossed the materiality threshold.
func (f Factors) reasoning(dependentCount int) []string {
	var out []string
	if f.Dependency >= materialFactor {
		out = append(out, fmt.Sprintf("%d tasks depend on this one", dependentCount))
	}
	if f.CriticalPath >= materialFactor {
		out = append(out, "on the critical path")
	}
	if f.Progress >= materialFactor {
		out = append(out, "work already in motion")
	}
	if f.Deadline >= materialFactor {
		out = append(out, "deadline pressure")
	}
	if f.BusinessValue >= materialFactor {
		out = append(out, "high business value")
	}
	return out
}
