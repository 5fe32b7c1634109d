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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// HandleRegisterExecutor registers or updates an executor.
// PUT /v1/executors.
func HandleRegisterExecutor(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleRegisterExecutor")
		defer span.End()

		var exec datatypes.Executor
		if err := c.ShouldBindJSON(&exec); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if exec.ID == "" {
			exec.ID = uuid.New().String()
		}
		span.SetAttributes(attribute.String("executor_id", exec.ID))

		if err := st.PutExecutor(ctx, &exec); err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, exec)
	}
}

// HandleListExecutors lists registered executors. GET /v1/executors.
func HandleListExecutors(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleListExecutors")
		defer span.End()

		execs, err := st.ListExecutors(ctx)
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"executors": execs, "count": len(execs)})
	}
}
