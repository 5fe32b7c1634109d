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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/config"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/conflict"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/execution"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/executor"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/lifecycle"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/vcs"
)

// deps bundles the long-lived components both commands wire up.
type deps struct {
	logger      *logging.Logger
	store       store.Store
	lifecycle   *lifecycle.Controller
	invoker     executor.Invoker
	coordinator *execution.Coordinator

	// resolver is nil when no repository is configured.
	resolver *conflict.Resolver
}

// buildDeps constructs the component graph from the configuration.
// A missing OPENAI_API_KEY degrades to a server without execution or
// conflict resolution instead of failing startup.
func buildDeps(cfg config.Config) (*deps, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "swarm",
	})
	slog.SetDefault(logger.Slog())

	var st store.Store
	if cfg.DataDir != "" {
		badgerStore, err := store.OpenBadger(store.BadgerConfig{Path: cfg.DataDir})
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("opening task store at %s: %w", cfg.DataDir, err)
		}
		st = badgerStore
		slog.Info("Task store opened", "path", cfg.DataDir)
	} else {
		st = store.NewMemoryStore()
		slog.Warn("SWARM_DATA_DIR not set, using ephemeral in-memory store")
	}

	lc := lifecycle.NewController(st,
		lifecycle.WithLogger(logger.Slog()),
		lifecycle.WithCancelledCountsComplete(cfg.CancelledCountsComplete),
	)

	var invoker executor.Invoker
	openai, err := executor.NewOpenAIInvoker(
		executor.WithDefaultTimeout(cfg.InvocationTimeout.Std()))
	switch {
	case err == nil:
		invoker = openai
	case errors.Is(err, executor.ErrNoAPIKey):
		slog.Warn("OPENAI_API_KEY not set, task execution and conflict resolution disabled")
	default:
		logger.Close()
		return nil, fmt.Errorf("building backend invoker: %w", err)
	}

	var repo vcs.Git
	host := vcs.Host(vcs.NewLocalHost(logger.Slog()))
	if cfg.RepoPath != "" {
		client, err := vcs.NewGitClient(cfg.RepoPath, 30*time.Second)
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("opening repository %s: %w", cfg.RepoPath, err)
		}
		repo = client
	}

	coordinator := execution.NewCoordinator(st, lc, invoker, repo, host,
		execution.WithLogger(logger.Slog()),
		execution.WithWorkspaceRoot(cfg.WorkspaceRoot),
		execution.WithMainline(cfg.Mainline),
		execution.WithMaxAttempts(cfg.MaxAttempts),
		execution.WithRetryCooldown(cfg.RetryCooldown.Std()),
		execution.WithInvocationTimeout(cfg.InvocationTimeout.Std()),
		execution.WithSweepInterval(cfg.SweepInterval.Std()),
	)

	var resolver *conflict.Resolver
	if repo != nil && invoker != nil {
		resolver = conflict.NewResolver(repo, host, st, lc, invoker,
			conflict.WithLogger(logger.Slog()),
			conflict.WithMainline(cfg.Mainline),
			conflict.WithRemote(cfg.Remote),
			conflict.WithInvocationTimeout(cfg.InvocationTimeout.Std()),
		)
	}

	return &deps{
		logger:      logger,
		store:       st,
		lifecycle:   lc,
		invoker:     invoker,
		coordinator: coordinator,
		resolver:    resolver,
	}, nil
}

func (d *deps) Close() {
	if err := d.store.Close(); err != nil {
		slog.Error("Failed to close task store", "error", err)
	}
	d.logger.Close()
}
