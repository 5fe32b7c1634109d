// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/conflict"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/graph"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/handlers"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/priority"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// SetupRoutes registers the swarm API surface on the router. The
// resolver may be nil when no repository is configured; its endpoint
// then answers 503.
func SetupRoutes(router *gin.Engine, st store.Store, analyzer *graph.Analyzer,
	engine *priority.Engine, lc *lifecycle.Controller, resolver *conflict.Resolver) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/graph/analyze", handlers.HandleAnalyze(analyzer, st))
		v1.POST("/priority/rebalance", handlers.HandleRebalance(engine, st))

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", handlers.HandleCreateTask(st))
			tasks.GET("", handlers.HandleListTasks(st))
			tasks.GET("/:id", handlers.HandleGetTask(st))
			tasks.POST("/:id/transition", handlers.HandleTransitionTask(lc))
			tasks.POST("/:id/claim", handlers.HandleClaimTask(st))
			tasks.POST("/:id/release", handlers.HandleReleaseTask(lc))
			tasks.POST("/:id/cancel", handlers.HandleCancelTask(lc))
			tasks.POST("/:id/escalate", handlers.HandleEscalateTask(lc))
		}

		crs := v1.Group("/change-requests")
		{
			crs.GET("", handlers.HandleListChangeRequests(st))
			crs.GET("/:id", handlers.HandleGetChangeRequest(st))
			crs.POST("/:id/approve", handlers.HandleApproveChangeRequest(lc))
			crs.POST("/:id/request-changes", handlers.HandleRequestChanges(lc))
			crs.POST("/:id/merge", handlers.HandleMergeChangeRequest(lc))
			crs.POST("/:id/close", handlers.HandleCloseChangeRequest(lc))
			crs.POST("/:id/resolve-conflict", handlers.HandleResolveConflict(resolver))
		}

		executors := v1.Group("/executors")
		{
			executors.PUT("", handlers.HandleRegisterExecutor(st))
			executors.GET("", handlers.HandleListExecutors(st))
		}
	}
}
