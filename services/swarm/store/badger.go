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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Key prefixes. Row keys are prefix + id; order keys hold a JSON id
// list preserving creation order.
const (
	keyTask     = "task:"
	keyCR       = "cr:"
	keyExecutor = "exec:"
	keyCRByTask = "crtask:"

	keyTaskOrder = "order:task"
	keyCROrder   = "order:cr"
	keyExecOrder = "order:exec"
)

// BadgerStore is a BadgerDB-backed Store for durable local deployments.
//
// # Description
//
// Rows are JSON-encoded under prefixed keys. Badger's serializable
// transactions provide the claim CAS and the change-request
// transactional boundary: a conflicting concurrent claim surfaces as a
// transaction conflict and is mapped to ErrClaimConflict.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// BadgerConfig holds configuration for opening a BadgerStore.
type BadgerConfig struct {
	// Path is the directory for database files. Required unless
	// InMemory is true.
	Path string

	// InMemory opens an ephemeral database for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB log output. Nil disables
	// BadgerDB's internal logging and uses slog.Default() for the
	// store's own messages.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens a BadgerDB-backed store.
//
// # Inputs
//
//   - cfg: Database configuration. Path is required unless InMemory.
//
// # Outputs
//
//   - *BadgerStore: The opened store. Caller must Close().
//   - error: Non-nil if the database cannot be opened.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		logger = slog.Default()
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// getJSON reads and decodes a key inside a transaction.
func getJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON encodes and writes a key inside a transaction.
func setJSON(txn *badger.Txn, key string, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

// appendOrder appends an id to an order list key.
func appendOrder(txn *badger.Txn, key, id string) error {
	var order []string
	if err := getJSON(txn, key, &order); err != nil && err != ErrNotFound {
		return err
	}
	return setJSON(txn, key, append(order, id))
}

func (s *BadgerStore) CreateTask(_ context.Context, task *datatypes.Task) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyTask + task.ID)); err == nil {
			return ErrAlreadyExists
		}
		stored := task.Clone()
		stamp(stored)
		if err := setJSON(txn, keyTask+task.ID, stored); err != nil {
			return err
		}
		return appendOrder(txn, keyTaskOrder, task.ID)
	})
}

func (s *BadgerStore) GetTask(_ context.Context, id string) (*datatypes.Task, error) {
	var task datatypes.Task
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyTask+id, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BadgerStore) UpdateTask(_ context.Context, task *datatypes.Task) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyTask + task.ID)); err != nil {
			return ErrNotFound
		}
		stored := task.Clone()
		stamp(stored)
		return setJSON(txn, keyTask+task.ID, stored)
	})
}

func (s *BadgerStore) ListTasks(_ context.Context) ([]*datatypes.Task, error) {
	var out []*datatypes.Task
	err := s.db.View(func(txn *badger.Txn) error {
		var order []string
		if err := getJSON(txn, keyTaskOrder, &order); err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		for _, id := range order {
			var task datatypes.Task
			if err := getJSON(txn, keyTask+id, &task); err != nil {
				return err
			}
			out = append(out, &task)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) ListTasksByStatus(ctx context.Context, status datatypes.TaskStatus) ([]*datatypes.Task, error) {
	all, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []*datatypes.Task
	for _, task := range all {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *BadgerStore) ChildrenOf(ctx context.Context, parentID string) ([]*datatypes.Task, error) {
	all, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []*datatypes.Task
	for _, task := range all {
		if task.ParentTaskID == parentID {
			out = append(out, task)
		}
	}
	return out, nil
}

// ClaimTask implements the compare-and-set claim inside one
// serializable transaction. A concurrent conflicting claim surfaces as
// badger.ErrConflict and is mapped to ErrClaimConflict.
func (s *BadgerStore) ClaimTask(_ context.Context, taskID, executorID string) (*datatypes.Task, error) {
	var claimed *datatypes.Task
	err := s.db.Update(func(txn *badger.Txn) error {
		var task datatypes.Task
		if err := getJSON(txn, keyTask+taskID, &task); err != nil {
			return err
		}
		var exec datatypes.Executor
		if err := getJSON(txn, keyExecutor+executorID, &exec); err != nil {
			return err
		}

		if task.Status != datatypes.TaskStatusReady || task.AssignedExecutorID != "" {
			return ErrClaimConflict
		}
		if !exec.Idle() {
			return ErrExecutorBusy
		}

		task.Status = datatypes.TaskStatusInProgress
		task.AssignedExecutorID = executorID
		stamp(&task)
		exec.ActiveTasks++

		if err := setJSON(txn, keyTask+taskID, &task); err != nil {
			return err
		}
		if err := setJSON(txn, keyExecutor+executorID, &exec); err != nil {
			return err
		}
		claimed = &task
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, ErrClaimConflict
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *BadgerStore) ReleaseClaim(_ context.Context, taskID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var task datatypes.Task
		if err := getJSON(txn, keyTask+taskID, &task); err != nil {
			return err
		}
		if task.AssignedExecutorID == "" {
			return nil
		}
		var exec datatypes.Executor
		if err := getJSON(txn, keyExecutor+task.AssignedExecutorID, &exec); err == nil {
			if exec.ActiveTasks > 0 {
				exec.ActiveTasks--
			}
			if err := setJSON(txn, keyExecutor+exec.ID, &exec); err != nil {
				return err
			}
		}
		task.AssignedExecutorID = ""
		stamp(&task)
		return setJSON(txn, keyTask+taskID, &task)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Lost a race against another mutation; the claim release is
		// idempotent, let the caller retry.
		return ErrClaimConflict
	}
	return err
}

// OpenChangeRequest creates the change request and moves the task to
// in_review inside one transaction: the hard transactional boundary.
func (s *BadgerStore) OpenChangeRequest(_ context.Context, cr *datatypes.ChangeRequest) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyCR + cr.ID)); err == nil {
			return ErrAlreadyExists
		}
		var task datatypes.Task
		if err := getJSON(txn, keyTask+cr.TaskID, &task); err != nil {
			return err
		}
		if task.Status != datatypes.TaskStatusInProgress {
			return fmt.Errorf("%w: task %s is %s", ErrStaleClaim, task.ID, task.Status)
		}

		stored := cr.Clone()
		stampCR(stored)
		if err := setJSON(txn, keyCR+cr.ID, stored); err != nil {
			return err
		}
		if err := appendOrder(txn, keyCROrder, cr.ID); err != nil {
			return err
		}
		if err := appendOrder(txn, keyCRByTask+cr.TaskID, cr.ID); err != nil {
			return err
		}

		task.Status = datatypes.TaskStatusInReview
		stamp(&task)
		return setJSON(txn, keyTask+cr.TaskID, &task)
	})
}

func (s *BadgerStore) GetChangeRequest(_ context.Context, id string) (*datatypes.ChangeRequest, error) {
	var cr datatypes.ChangeRequest
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyCR+id, &cr)
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (s *BadgerStore) GetChangeRequestForTask(_ context.Context, taskID string) (*datatypes.ChangeRequest, error) {
	var cr datatypes.ChangeRequest
	err := s.db.View(func(txn *badger.Txn) error {
		var ids []string
		if err := getJSON(txn, keyCRByTask+taskID, &ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNotFound
		}
		return getJSON(txn, keyCR+ids[len(ids)-1], &cr)
	})
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (s *BadgerStore) UpdateChangeRequest(_ context.Context, cr *datatypes.ChangeRequest) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyCR + cr.ID)); err != nil {
			return ErrNotFound
		}
		stored := cr.Clone()
		stampCR(stored)
		return setJSON(txn, keyCR+cr.ID, stored)
	})
}

func (s *BadgerStore) ListChangeRequests(_ context.Context) ([]*datatypes.ChangeRequest, error) {
	var out []*datatypes.ChangeRequest
	err := s.db.View(func(txn *badger.Txn) error {
		var order []string
		if err := getJSON(txn, keyCROrder, &order); err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		for _, id := range order {
			var cr datatypes.ChangeRequest
			if err := getJSON(txn, keyCR+id, &cr); err != nil {
				return err
			}
			out = append(out, &cr)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) PutExecutor(_ context.Context, exec *datatypes.Executor) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(keyExecutor + exec.ID)); err != nil {
			if err := appendOrder(txn, keyExecOrder, exec.ID); err != nil {
				return err
			}
		}
		return setJSON(txn, keyExecutor+exec.ID, exec)
	})
}

func (s *BadgerStore) GetExecutor(_ context.Context, id string) (*datatypes.Executor, error) {
	var exec datatypes.Executor
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyExecutor+id, &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (s *BadgerStore) ListExecutors(_ context.Context) ([]*datatypes.Executor, error) {
	var out []*datatypes.Executor
	err := s.db.View(func(txn *badger.Txn) error {
		var order []string
		if err := getJSON(txn, keyExecOrder, &order); err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		for _, id := range order {
			var exec datatypes.Executor
			if err := getJSON(txn, keyExecutor+id, &exec); err != nil {
				return err
			}
			out = append(out, &exec)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
