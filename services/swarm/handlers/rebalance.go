// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/observability"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/priority"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// HandleRebalance rescores a task set and adjusts priority buckets.
//
// # Description
//
// POST /v1/priority/rebalance. The task set comes from the request
// body; an empty body rebalances every task in the store, and in that
// case (unless dry_run is set) applied changes are persisted.
func HandleRebalance(engine *priority.Engine, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleRebalance")
		defer span.End()

		var request datatypes.RebalanceRequest
		if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind rebalance request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		tasks := request.Tasks
		fromStore := len(tasks) == 0
		if fromStore {
			stored, err := st.ListTasks(ctx)
			if err != nil {
				span.RecordError(err)
				abortWithError(c, err)
				return
			}
			tasks = stored
		} else if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(
			attribute.Int("task_count", len(tasks)),
			attribute.Bool("dry_run", request.DryRun),
		)

		result, err := engine.Rebalance(ctx, tasks, priority.RebalanceOptions{
			DryRun:         request.DryRun,
			MinScoreChange: request.MinScoreChange,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Priority rebalance failed", "error", err)
			abortWithError(c, err)
			return
		}

		if fromStore && !request.DryRun {
			byID := make(map[string]*datatypes.Task, len(tasks))
			for _, t := range tasks {
				byID[t.ID] = t
			}
			for _, change := range result.Changes {
				task, ok := byID[change.TaskID]
				if !ok {
					continue
				}
				if err := st.UpdateTask(ctx, task); err != nil {
					slog.Warn("Failed to persist priority change",
						"task_id", change.TaskID, "error", err)
				}
			}
		}
		observability.RebalanceChanges.Observe(float64(len(result.Changes)))
		c.JSON(http.StatusOK, result)
	}
}
