// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
	"github.com/AleutianAI/AleutianSwarm/services/swarm/store"
)

// =============================================================================
// Change Classification
// =============================================================================

// classKeywords maps reviewer classes to the task-text keywords that
// select them. Substring match against the lowercased title plus
// description.
var classKeywords = map[datatypes.ReviewerClass][]string{
	datatypes.ReviewerSecurity: {
		"security", "auth", "crypt", "token", "password", "secret",
		"vulnerab", "sanitiz", "injection", "xss", "csrf", "tls", "cve",
	},
	datatypes.ReviewerArchitecture: {
		"architect", "refactor", "redesign", "migration", "schema",
		"interface", "boundary", "module layout", "api design",
	},
	datatypes.ReviewerPerformance: {
		"performance", "latency", "throughput", "optimiz", "cache",
		"benchmark", "profil", "memory usage", "slow",
	},
}

// classPrecedence breaks keyword-count ties: a change that is equally
// security- and performance-flavored gets the security reviewer.
var classPrecedence = []datatypes.ReviewerClass{
	datatypes.ReviewerSecurity,
	datatypes.ReviewerArchitecture,
	datatypes.ReviewerPerformance,
}

// ClassifyChange derives the reviewer class a task's change needs from
// its title and description. No keyword hits means generalist.
func ClassifyChange(task *datatypes.Task) datatypes.ReviewerClass {
	text := strings.ToLower(task.Title + " " + task.Description)

	best := datatypes.ReviewerGeneralist
	bestHits := 0
	for _, class := range classPrecedence {
		hits := 0
		for _, kw := range classKeywords[class] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = class
			bestHits = hits
		}
	}
	return best
}

// =============================================================================
// Reviewer Directory
// =============================================================================

// ReviewerDirectory supplies specialized reviewers when the registered
// executor pool has no eligible candidate.
type ReviewerDirectory interface {
	// LookupOrCreate returns an executor serving the given class,
	// excluding the id passed (the author is never eligible). Creates
	// and registers one when none exists.
	LookupOrCreate(ctx context.Context, class datatypes.ReviewerClass, excludeID string) (*datatypes.Executor, error)
}

// StoreDirectory backs ReviewerDirectory with the executor registry:
// it finds a registered specialist or registers a fresh one.
type StoreDirectory struct {
	store store.Store
}

// NewStoreDirectory creates a directory over the given store.
func NewStoreDirectory(st store.Store) *StoreDirectory {
	return &StoreDirectory{store: st}
}

// LookupOrCreate finds a registered executor with the specialty,
// preferring idle ones, or registers a new dedicated reviewer.
func (d *StoreDirectory) LookupOrCreate(ctx context.Context, class datatypes.ReviewerClass, excludeID string) (*datatypes.Executor, error) {
	execs, err := d.store.ListExecutors(ctx)
	if err != nil {
		return nil, err
	}

	var fallback *datatypes.Executor
	for _, e := range execs {
		if e.ID == excludeID || !e.HasSpecialty(class) {
			continue
		}
		if e.Idle() {
			return e, nil
		}
		if fallback == nil {
			fallback = e
		}
	}
	if fallback != nil {
		return fallback, nil
	}

	created := &datatypes.Executor{
		ID:          "reviewer-" + string(class) + "-" + uuid.NewString()[:8],
		Name:        string(class) + " reviewer",
		Specialties: []datatypes.ReviewerClass{class},
	}
	if err := d.store.PutExecutor(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// Assignment
// =============================================================================

// assignReviewer selects a reviewer for a change request.
//
// # Description
//
//	The change is classified from its task text. Generalist changes
//	walk the executor pool: an idle same-team executor first, then any
//	idle executor, then the directory. Specialist changes go straight
//	to the directory. The author is excluded at every step.
func (c *Controller) assignReviewer(ctx context.Context, cr *datatypes.ChangeRequest, task *datatypes.Task) (*datatypes.Executor, datatypes.ReviewerClass, error) {
	class := ClassifyChange(task)

	if class == datatypes.ReviewerGeneralist {
		execs, err := c.store.ListExecutors(ctx)
		if err != nil {
			return nil, class, err
		}
		authorTeam := ""
		if author, err := c.store.GetExecutor(ctx, cr.AuthorExecutorID); err == nil {
			authorTeam = author.Team
		}

		var anyIdle *datatypes.Executor
		for _, e := range execs {
			if e.ID == cr.AuthorExecutorID || !e.Idle() {
				continue
			}
			if authorTeam != "" && e.Team == authorTeam {
				return e, class, nil
			}
			if anyIdle == nil {
				anyIdle = e
			}
		}
		if anyIdle != nil {
			return anyIdle, class, nil
		}
	}

	reviewer, err := c.directory.LookupOrCreate(ctx, class, cr.AuthorExecutorID)
	if err != nil {
		return nil, class, err
	}
	if reviewer.ID == cr.AuthorExecutorID {
		return nil, class, ErrReviewerIsAuthor
	}
	return reviewer, class, nil
}
