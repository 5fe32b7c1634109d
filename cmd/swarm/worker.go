// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

var (
	workerID   string
	workerTeam string

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run an executor loop that claims and performs tasks",
		Long: `Registers an executor against the task store, then repeatedly
claims a ready task, invokes the backend in an isolated workspace, and
submits the result for review. Requires OPENAI_API_KEY.`,
		Run: runWorker,
	}
)

func init() {
	workerCmd.Flags().StringVar(&workerID, "id", "", "executor id (required)")
	workerCmd.Flags().StringVar(&workerTeam, "team", "", "team for reviewer assignment")
	_ = workerCmd.MarkFlagRequired("id")
}

func runWorker(cmd *cobra.Command, args []string) {
	deps, err := buildDeps(cfg)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer deps.Close()

	if deps.invoker == nil {
		log.Fatal("FATAL: the worker requires a backend invoker; set OPENAI_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := deps.store.PutExecutor(ctx, &datatypes.Executor{
		ID:   workerID,
		Team: workerTeam,
	}); err != nil {
		log.Fatalf("FATAL: registering executor %s: %v", workerID, err)
	}
	slog.Info("Executor registered, entering claim loop", "executor_id", workerID)

	if err := deps.coordinator.Run(ctx, workerID); err != nil &&
		!errors.Is(err, context.Canceled) {
		log.Fatalf("Worker exited: %v", err)
	}
	slog.Info("Worker stopped", "executor_id", workerID)
}
