// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
//
// # Thread Safety
//
// Safe for concurrent use; one mutex guards all maps so the claim CAS
// and the change-request transaction are trivially atomic.
type MemoryStore struct {
	mu sync.RWMutex

	tasks     map[string]*datatypes.Task
	taskOrder []string

	crs     map[string]*datatypes.ChangeRequest
	crOrder []string
	// crByTask maps task id to its change request ids, oldest first.
	crByTask map[string][]string

	executors map[string]*datatypes.Executor
	execOrder []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]*datatypes.Task),
		crs:       make(map[string]*datatypes.ChangeRequest),
		crByTask:  make(map[string][]string),
		executors: make(map[string]*datatypes.Executor),
	}
}

func (s *MemoryStore) CreateTask(_ context.Context, task *datatypes.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now()
	stored := task.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.tasks[task.ID] = stored
	s.taskOrder = append(s.taskOrder, task.ID)
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*datatypes.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, task *datatypes.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	stored := task.Clone()
	stored.UpdatedAt = time.Now()
	s.tasks[task.ID] = stored
	return nil
}

func (s *MemoryStore) ListTasks(_ context.Context) ([]*datatypes.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*datatypes.Task, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListTasksByStatus(_ context.Context, status datatypes.TaskStatus) ([]*datatypes.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*datatypes.Task
	for _, id := range s.taskOrder {
		if s.tasks[id].Status == status {
			out = append(out, s.tasks[id].Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ChildrenOf(_ context.Context, parentID string) ([]*datatypes.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*datatypes.Task
	for _, id := range s.taskOrder {
		if s.tasks[id].ParentTaskID == parentID {
			out = append(out, s.tasks[id].Clone())
		}
	}
	return out, nil
}

// ClaimTask implements the atomic compare-and-set claim.
func (s *MemoryStore) ClaimTask(_ context.Context, taskID, executorID string) (*datatypes.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	exec, ok := s.executors[executorID]
	if !ok {
		return nil, ErrNotFound
	}

	// The CAS: only a ready, unassigned task can be claimed.
	if task.Status != datatypes.TaskStatusReady || task.AssignedExecutorID != "" {
		return nil, ErrClaimConflict
	}
	if !exec.Idle() {
		return nil, ErrExecutorBusy
	}

	task.Status = datatypes.TaskStatusInProgress
	task.AssignedExecutorID = executorID
	task.UpdatedAt = time.Now()
	exec.ActiveTasks++

	return task.Clone(), nil
}

func (s *MemoryStore) ReleaseClaim(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if task.AssignedExecutorID == "" {
		return nil // idempotent
	}
	if exec, ok := s.executors[task.AssignedExecutorID]; ok && exec.ActiveTasks > 0 {
		exec.ActiveTasks--
	}
	task.AssignedExecutorID = ""
	task.UpdatedAt = time.Now()
	return nil
}

// OpenChangeRequest creates the change request and advances the task to
// in_review in one atomic unit.
func (s *MemoryStore) OpenChangeRequest(_ context.Context, cr *datatypes.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.crs[cr.ID]; exists {
		return ErrAlreadyExists
	}
	task, ok := s.tasks[cr.TaskID]
	if !ok {
		return ErrNotFound
	}
	if task.Status != datatypes.TaskStatusInProgress {
		return fmt.Errorf("%w: task %s is %s", ErrStaleClaim, task.ID, task.Status)
	}

	now := time.Now()
	stored := cr.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.crs[cr.ID] = stored
	s.crOrder = append(s.crOrder, cr.ID)
	s.crByTask[cr.TaskID] = append(s.crByTask[cr.TaskID], cr.ID)

	task.Status = datatypes.TaskStatusInReview
	task.UpdatedAt = now
	return nil
}

func (s *MemoryStore) GetChangeRequest(_ context.Context, id string) (*datatypes.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cr, ok := s.crs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cr.Clone(), nil
}

func (s *MemoryStore) GetChangeRequestForTask(_ context.Context, taskID string) (*datatypes.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.crByTask[taskID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.crs[ids[len(ids)-1]].Clone(), nil
}

func (s *MemoryStore) UpdateChangeRequest(_ context.Context, cr *datatypes.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.crs[cr.ID]; !ok {
		return ErrNotFound
	}
	stored := cr.Clone()
	stored.UpdatedAt = time.Now()
	s.crs[cr.ID] = stored
	return nil
}

func (s *MemoryStore) ListChangeRequests(_ context.Context) ([]*datatypes.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*datatypes.ChangeRequest, 0, len(s.crOrder))
	for _, id := range s.crOrder {
		out = append(out, s.crs[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) PutExecutor(_ context.Context, exec *datatypes.Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executors[exec.ID]; !exists {
		s.execOrder = append(s.execOrder, exec.ID)
	}
	copied := *exec
	if exec.Specialties != nil {
		copied.Specialties = append([]datatypes.ReviewerClass(nil), exec.Specialties...)
	}
	s.executors[exec.ID] = &copied
	return nil
}

func (s *MemoryStore) GetExecutor(_ context.Context, id string) (*datatypes.Executor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executors[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *exec
	return &copied, nil
}

func (s *MemoryStore) ListExecutors(_ context.Context) ([]*datatypes.Executor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*datatypes.Executor, 0, len(s.execOrder))
	for _, id := range s.execOrder {
		copied := *s.executors[id]
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
