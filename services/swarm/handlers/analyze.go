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
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/graph"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/observability"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// HandleAnalyze runs a structural analysis over a task set.
//
// # Description
//
// POST /v1/graph/analyze. The task set comes from the request body; an
// empty body analyzes every task in the store. Cycles degrade the
// result instead of failing it, so a 200 may still carry warnings.
func HandleAnalyze(analyzer *graph.Analyzer, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleAnalyze")
		defer span.End()

		var request datatypes.AnalyzeRequest
		if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind analyze request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		tasks := request.Tasks
		if len(tasks) == 0 {
			stored, err := st.ListTasks(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				abortWithError(c, err)
				return
			}
			tasks = stored
		} else if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.Int("task_count", len(tasks)))

		started := time.Now()
		result, err := analyzer.Analyze(ctx, tasks)
		observability.AnalyzeDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Graph analysis failed", "error", err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
