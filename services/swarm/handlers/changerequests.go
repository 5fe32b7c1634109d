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

	"github.com/AleutianAI/AleutianSwarm/services/swarm/conflict"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/observability"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// HandleGetChangeRequest returns one change request.
// GET /v1/change-requests/:id.
func HandleGetChangeRequest(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleGetChangeRequest")
		defer span.End()

		cr, err := st.GetChangeRequest(ctx, c.Param("id"))
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cr)
	}
}

// HandleListChangeRequests lists all change requests.
// GET /v1/change-requests.
func HandleListChangeRequests(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleListChangeRequests")
		defer span.End()

		crs, err := st.ListChangeRequests(ctx)
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"change_requests": crs, "count": len(crs)})
	}
}

// HandleApproveChangeRequest records an approval from a reviewer.
// POST /v1/change-requests/:id/approve.
func HandleApproveChangeRequest(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleApproveChangeRequest")
		defer span.End()

		var request datatypes.ReviewRequest
		if err := c.ShouldBindJSON(&request); err != nil || request.ReviewerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer_id is required"})
			return
		}
		crID := c.Param("id")
		span.SetAttributes(
			attribute.String("cr_id", crID),
			attribute.String("reviewer_id", request.ReviewerID),
		)

		cr, err := lc.Approve(ctx, crID, request.ReviewerID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cr)
	}
}

// HandleRequestChanges records a changes-requested verdict and reopens
// the task. POST /v1/change-requests/:id/request-changes.
func HandleRequestChanges(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleRequestChanges")
		defer span.End()

		var request datatypes.ReviewRequest
		if err := c.ShouldBindJSON(&request); err != nil || request.ReviewerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reviewer_id is required"})
			return
		}

		cr, err := lc.RequestChanges(ctx, c.Param("id"), request.ReviewerID, request.Body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cr)
	}
}

// HandleMergeChangeRequest merges an approved change request and
// completes its task. POST /v1/change-requests/:id/merge.
func HandleMergeChangeRequest(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleMergeChangeRequest")
		defer span.End()

		cr, err := lc.Merge(ctx, c.Param("id"))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Merge rejected", "cr_id", c.Param("id"), "error", err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cr)
	}
}

// HandleCloseChangeRequest closes a change request without merging.
// POST /v1/change-requests/:id/close.
func HandleCloseChangeRequest(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleCloseChangeRequest")
		defer span.End()

		cr, err := lc.Close(ctx, c.Param("id"))
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cr)
	}
}

// HandleResolveConflict rebases a change request branch onto the
// mainline, repairing conflicts through the backend.
// POST /v1/change-requests/:id/resolve-conflict.
//
// Returns 503 when the service runs without a repository.
func HandleResolveConflict(resolver *conflict.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleResolveConflict")
		defer span.End()

		if resolver == nil {
			c.JSON(http.StatusServiceUnavailable,
				gin.H{"error": "conflict resolution requires a configured repository"})
			return
		}

		var request datatypes.ResolveConflictRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		var checkpoint conflict.Checkpoint
		switch request.Checkpoint {
		case string(conflict.CheckpointPreCI):
			checkpoint = conflict.CheckpointPreCI
		case string(conflict.CheckpointPreMerge):
			checkpoint = conflict.CheckpointPreMerge
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "checkpoint must be pre_ci or pre_merge"})
			return
		}
		crID := c.Param("id")
		span.SetAttributes(
			attribute.String("cr_id", crID),
			attribute.String("checkpoint", request.Checkpoint),
		)

		outcome, err := resolver.Resolve(ctx, crID, checkpoint)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Conflict resolution failed", "cr_id", crID, "error", err)
			abortWithError(c, err)
			return
		}
		observability.ConflictResolutions.WithLabelValues(
			request.Checkpoint, string(outcome.Action)).Inc()
		c.JSON(http.StatusOK, outcome)
	}
}
