// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package priority

import "github.com/AleutianAI/AleutianSwarm/services/swarm/graph"

// Severity ranks how badly a bottleneck delays the graph.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severity thresholds by direct-dependent count.
const (
	severityCriticalDeps = 10
	severityHighDeps     = 7
	severityMediumDeps   = 5
)

// escalate bumps a severity one level, capped at critical.
func (s Severity) escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// RankedBottleneck is a graph bottleneck with an assigned severity.
type RankedBottleneck struct {
	graph.Bottleneck
	Severity Severity `json:"severity"`
}

// rankBottlenecks assigns severity to each bottleneck.
//
// Dependent count thresholds: >=10 critical, >=7 high, >=5 medium,
// else low. A bottleneck sitting on the critical path is escalated one
// level.
func rankBottlenecks(bottlenecks []graph.Bottleneck) []RankedBottleneck {
	if len(bottlenecks) == 0 {
		return nil
	}

	ranked := make([]RankedBottleneck, 0, len(bottlenecks))
	for _, b := range bottlenecks {
		var severity Severity
		switch {
		case b.DependentCount >= severityCriticalDeps:
			severity = SeverityCritical
		case b.DependentCount >= severityHighDeps:
			severity = SeverityHigh
		case b.DependentCount >= severityMediumDeps:
			severity = SeverityMedium
		default:
			severity = SeverityLow
		}
		if b.OnCriticalPath {
			severity = severity.escalate()
		}
		ranked = append(ranked, RankedBottleneck{Bottleneck: b, Severity: severity})
	}
	return ranked
}
