// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Host is the change-request hosting backend: the system of record for
// published review branches and their CI runs.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Host interface {
	// Publish pushes the change request's branch and registers it with
	// the host, returning the remote handle.
	Publish(ctx context.Context, cr *datatypes.ChangeRequest) (string, error)

	// Annotate attaches a visible note to the hosted change request.
	Annotate(ctx context.Context, cr *datatypes.ChangeRequest, note string) error

	// TriggerCI requests a fresh CI run against the branch head.
	TriggerCI(ctx context.Context, cr *datatypes.ChangeRequest) error
}

// LocalHost is a Host for single-machine deployments with no hosting
// backend: branches stay in the local repository and notes go to the
// log.
type LocalHost struct {
	logger *slog.Logger
}

// NewLocalHost creates a LocalHost. A nil logger uses the default.
func NewLocalHost(logger *slog.Logger) *LocalHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalHost{logger: logger}
}

func (h *LocalHost) Publish(_ context.Context, cr *datatypes.ChangeRequest) (string, error) {
	h.logger.Info("change request published locally", "cr_id", cr.ID, "branch", cr.Branch)
	return "local/" + cr.Branch, nil
}

func (h *LocalHost) Annotate(_ context.Context, cr *datatypes.ChangeRequest, note string) error {
	h.logger.Info("change request annotated", "cr_id", cr.ID, "note", note)
	return nil
}

func (h *LocalHost) TriggerCI(_ context.Context, cr *datatypes.ChangeRequest) error {
	h.logger.Info("ci run requested", "cr_id", cr.ID, "branch", cr.Branch)
	return nil
}
