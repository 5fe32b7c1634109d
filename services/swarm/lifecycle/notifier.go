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

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Notifier receives terminal lifecycle events. Implementations must be
// safe for concurrent use; delivery is best-effort and never blocks a
// transition.
type Notifier interface {
	// TaskTerminal fires when a task reaches completed or cancelled.
	TaskTerminal(ctx context.Context, task *datatypes.Task)

	// ChangeRequestTerminal fires when a change request reaches merged
	// or closed.
	ChangeRequestTerminal(ctx context.Context, cr *datatypes.ChangeRequest)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TaskTerminal(context.Context, *datatypes.Task)                   {}
func (NopNotifier) ChangeRequestTerminal(context.Context, *datatypes.ChangeRequest) {}
