// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor abstracts the coding-agent backend that performs a
// task's actual work inside its workspace.
//
// The coordinator treats the backend as a black box: a prompt goes in,
// an outcome comes out. Backends must honor the request timeout via the
// context and report best-effort cost accounting.
package executor

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for executor backends.
var (
	// ErrNoAPIKey is returned when a remote backend has no credential.
	ErrNoAPIKey = errors.New("api key not configured")

	// ErrEmptyResponse is returned when the backend produced no usable
	// output.
	ErrEmptyResponse = errors.New("backend returned empty response")
)

// InvokeRequest describes one unit of work handed to the backend.
type InvokeRequest struct {
	// Prompt is the full task instruction, including workspace context.
	Prompt string

	// WorkingDirectory is the isolated workspace the backend operates
	// in. Backends that run remotely receive it as context only.
	WorkingDirectory string

	// Timeout bounds the invocation. Zero means the backend default.
	Timeout time.Duration
}

// InvokeResult is the outcome of one backend invocation.
type InvokeResult struct {
	// Success reports whether the backend considers the work done.
	// False with a nil error means the backend ran but did not produce
	// an acceptable outcome; the coordinator treats it as a retryable
	// failure.
	Success bool

	// Output is the backend's textual result or failure explanation.
	Output string

	// CostUSD is the best-effort invocation cost. Zero when the backend
	// cannot account for cost.
	CostUSD float64
}

// Invoker is a coding-agent backend.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the coordinator
// invokes one Invoker from many worker goroutines.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}
