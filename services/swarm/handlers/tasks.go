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
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/observability"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// HandleCreateTask registers a new task. POST /v1/tasks.
//
// An omitted id is generated; an omitted status defaults to pending.
func HandleCreateTask(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleCreateTask")
		defer span.End()

		var task datatypes.Task
		if err := c.ShouldBindJSON(&task); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		if task.Status == "" {
			task.Status = datatypes.TaskStatusPending
		}
		if task.Priority == "" {
			task.Priority = datatypes.PriorityMedium
		}
		if err := task.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("task_id", task.ID))

		if err := st.CreateTask(ctx, &task); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to create task", "task_id", task.ID, "error", err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, task)
	}
}

// HandleGetTask returns one task. GET /v1/tasks/:id.
func HandleGetTask(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleGetTask")
		defer span.End()

		task, err := st.GetTask(ctx, c.Param("id"))
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleListTasks lists tasks, optionally filtered by ?status=.
// GET /v1/tasks.
func HandleListTasks(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleListTasks")
		defer span.End()

		var (
			tasks []*datatypes.Task
			err   error
		)
		if status := c.Query("status"); status != "" {
			tasks, err = st.ListTasksByStatus(ctx, datatypes.TaskStatus(status))
		} else {
			tasks, err = st.ListTasks(ctx)
		}
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
	}
}

// HandleTransitionTask moves a task to a new status under the state
// machine. POST /v1/tasks/:id/transition.
func HandleTransitionTask(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleTransitionTask")
		defer span.End()

		var request datatypes.TransitionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		taskID := c.Param("id")
		span.SetAttributes(
			attribute.String("task_id", taskID),
			attribute.String("to", string(request.To)),
		)

		task, err := lc.TransitionTask(ctx, taskID, request.To, request.Reason)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Task transition rejected",
				"task_id", taskID, "to", request.To, "error", err)
			abortWithError(c, err)
			return
		}
		observability.TaskTransitions.WithLabelValues(string(request.To)).Inc()
		c.JSON(http.StatusOK, task)
	}
}

// HandleClaimTask atomically binds a ready task to an executor.
// POST /v1/tasks/:id/claim.
func HandleClaimTask(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleClaimTask")
		defer span.End()

		var request datatypes.ClaimRequest
		if err := c.ShouldBindJSON(&request); err != nil || request.ExecutorID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "executor_id is required"})
			return
		}
		taskID := c.Param("id")
		span.SetAttributes(
			attribute.String("task_id", taskID),
			attribute.String("executor_id", request.ExecutorID),
		)

		task, err := st.ClaimTask(ctx, taskID, request.ExecutorID)
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		observability.TasksClaimed.Inc()
		c.JSON(http.StatusOK, task)
	}
}

// HandleReleaseTask returns a claimed task to the ready pool.
// POST /v1/tasks/:id/release.
func HandleReleaseTask(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleReleaseTask")
		defer span.End()

		task, err := lc.Release(ctx, c.Param("id"))
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleCancelTask cancels a task and its non-completed subtree.
// POST /v1/tasks/:id/cancel.
func HandleCancelTask(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleCancelTask")
		defer span.End()

		task, err := lc.Cancel(ctx, c.Param("id"))
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleEscalateTask blocks a task pending human intervention.
// POST /v1/tasks/:id/escalate.
func HandleEscalateTask(lc *lifecycle.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleEscalateTask")
		defer span.End()

		var request datatypes.TransitionRequest
		if err := c.ShouldBindJSON(&request); err != nil || request.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}

		task, err := lc.Escalate(ctx, c.Param("id"), request.Reason)
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		observability.TasksBlocked.Inc()
		c.JSON(http.StatusOK, task)
	}
}
