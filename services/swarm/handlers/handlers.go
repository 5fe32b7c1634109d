// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin HTTP handlers for the swarm API. Each
// handler is a closure over its dependencies so routes can be wired
// without package-level state.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/conflict"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

var tracer = otel.Tracer("swarm.handlers")

// httpStatus maps domain sentinel errors onto HTTP status codes.
// Anything unrecognized is a 500.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrClaimConflict),
		errors.Is(err, store.ErrExecutorBusy),
		errors.Is(err, store.ErrStaleClaim),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrNotApproved),
		errors.Is(err, lifecycle.ErrTerminal),
		errors.Is(err, conflict.ErrNotResolvable):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrReviewerIsAuthor):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}
