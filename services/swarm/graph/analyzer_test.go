// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Helper to build a minimal pending task with dependencies.
func testTask(id string, deps ...string) *datatypes.Task {
	return &datatypes.Task{
		ID:        id,
		Title:     "task " + id,
		Status:    datatypes.TaskStatusPending,
		Priority:  datatypes.PriorityMedium,
		DependsOn: deps,
	}
}

// indexOf returns the position of id in order, or -1.
func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestBuild(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		g, err := Build(nil)
		if err != nil {
			t.Fatalf("Build(nil) error: %v", err)
		}
		if g.Size() != 0 {
			t.Errorf("expected empty graph, got %d nodes", g.Size())
		}
	})

	t.Run("duplicate ids rejected", func(t *testing.T) {
		_, err := Build([]*datatypes.Task{testTask("a"), testTask("a")})
		if err != ErrDuplicateTask {
			t.Errorf("expected ErrDuplicateTask, got %v", err)
		}
	})

	t.Run("dangling dependency dropped with warning", func(t *testing.T) {
		g, err := Build([]*datatypes.Task{testTask("a", "ghost")})
		if err != nil {
			t.Fatalf("Build error: %v", err)
		}
		node, _ := g.Node("a")
		if len(node.Dependencies) != 0 {
			t.Errorf("dangling edge not dropped: %v", node.Dependencies)
		}
		if len(g.Warnings()) != 1 || g.Warnings()[0].Code != WarnDanglingDependency {
			t.Errorf("expected one dangling warning, got %v", g.Warnings())
		}
	})

	t.Run("edges wired both directions", func(t *testing.T) {
		g, err := Build([]*datatypes.Task{testTask("a"), testTask("b", "a")})
		if err != nil {
			t.Fatalf("Build error: %v", err)
		}
		if g.DependentCount("a") != 1 {
			t.Errorf("expected a to have 1 dependent, got %d", g.DependentCount("a"))
		}
		node, _ := g.Node("b")
		if len(node.Dependencies) != 1 || node.Dependencies[0] != "a" {
			t.Errorf("unexpected dependencies for b: %v", node.Dependencies)
		}
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		g, _ := Build([]*datatypes.Task{testTask("a"), testTask("b", "a")})
		if cycles := g.DetectCycles(); cycles != nil {
			t.Errorf("expected no cycles, got %v", cycles)
		}
	})

	t.Run("two-node cycle", func(t *testing.T) {
		g, _ := Build([]*datatypes.Task{testTask("a", "b"), testTask("b", "a")})
		cycles := g.DetectCycles()
		if len(cycles) == 0 {
			t.Fatal("expected at least one cycle")
		}
		if len(cycles[0]) == 0 {
			t.Fatal("cycle must be a non-empty id list")
		}
		ids := map[string]bool{}
		for _, id := range cycles[0] {
			ids[id] = true
		}
		if !ids["a"] || !ids["b"] {
			t.Errorf("cycle should contain a and b: %v", cycles[0])
		}
	})

	t.Run("self dependency", func(t *testing.T) {
		g, _ := Build([]*datatypes.Task{testTask("a", "a")})
		cycles := g.DetectCycles()
		if len(cycles) != 1 || len(cycles[0]) != 1 || cycles[0][0] != "a" {
			t.Errorf("expected self cycle [a], got %v", cycles)
		}
	})

	t.Run("multiple disjoint cycles all reported", func(t *testing.T) {
		g, _ := Build([]*datatypes.Task{
			testTask("a", "b"), testTask("b", "a"),
			testTask("c", "d"), testTask("d", "c"),
		})
		cycles := g.DetectCycles()
		if len(cycles) != 2 {
			t.Errorf("expected 2 cycles, got %d: %v", len(cycles), cycles)
		}
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("valid linearization", func(t *testing.T) {
		tasks := []*datatypes.Task{
			testTask("d", "c"),
			testTask("c", "a", "b"),
			testTask("a"),
			testTask("b"),
		}
		g, _ := Build(tasks)
		order, advisory := g.TopologicalOrder()
		if advisory {
			t.Fatal("acyclic graph must not be advisory")
		}
		if len(order) != 4 {
			t.Fatalf("expected 4 tasks, got %v", order)
		}
		// Every dependency precedes its dependents.
		for _, task := range tasks {
			for _, dep := range task.DependsOn {
				if indexOf(order, dep) > indexOf(order, task.ID) {
					t.Errorf("dependency %s after dependent %s in %v", dep, task.ID, order)
				}
			}
		}
	})

	t.Run("cycle falls back to input order", func(t *testing.T) {
		tasks := []*datatypes.Task{
			testTask("x", "y"),
			testTask("y", "x"),
			testTask("z"),
		}
		g, _ := Build(tasks)
		order, advisory := g.TopologicalOrder()
		if !advisory {
			t.Fatal("cyclic graph must be advisory")
		}
		want := []string{"x", "y", "z"}
		if !reflect.DeepEqual(order, want) {
			t.Errorf("expected input order %v, got %v", want, order)
		}
	})
}

func TestCriticalPath(t *testing.T) {
	t.Run("longest chain wins", func(t *testing.T) {
		// a -> b -> c and a -> d : critical path is a,b,c
		g, _ := Build([]*datatypes.Task{
			testTask("a"),
			testTask("b", "a"),
			testTask("c", "b"),
			testTask("d", "a"),
		})
		path, length := g.CriticalPath()
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(path, want) {
			t.Errorf("expected path %v, got %v", want, path)
		}
		if length != 3 {
			t.Errorf("expected length 3, got %v", length)
		}
	})

	t.Run("durations weight the path", func(t *testing.T) {
		long := testTask("long", "root")
		long.EstimatedDuration = 10 * time.Second
		g, _ := Build([]*datatypes.Task{
			testTask("root"),
			long,
			testTask("c1", "root"),
			testTask("c2", "c1"),
		})
		path, _ := g.CriticalPath()
		// 1 + 10 beats 1 + 1 + 1.
		want := []string{"root", "long"}
		if !reflect.DeepEqual(path, want) {
			t.Errorf("expected %v, got %v", want, path)
		}
	})

	t.Run("cyclic graph terminates", func(t *testing.T) {
		g, _ := Build([]*datatypes.Task{
			testTask("root"),
			testTask("a", "root", "b"),
			testTask("b", "a"),
		})
		path, _ := g.CriticalPath()
		if len(path) == 0 {
			t.Error("expected a non-empty path from root")
		}
	})
}

func TestBottlenecks(t *testing.T) {
	t.Run("threshold is three dependents", func(t *testing.T) {
		g, _ := Build([]*datatypes.Task{
			testTask("hub"),
			testTask("d1", "hub"),
			testTask("d2", "hub"),
			testTask("d3", "hub"),
			testTask("quiet"),
			testTask("q1", "quiet"),
			testTask("q2", "quiet"),
		})
		found := g.Bottlenecks(nil)
		if len(found) != 1 || found[0].TaskID != "hub" {
			t.Errorf("expected only hub, got %v", found)
		}
	})

	t.Run("ranked descending", func(t *testing.T) {
		tasks := []*datatypes.Task{testTask("small"), testTask("big")}
		for _, d := range []string{"s1", "s2", "s3"} {
			tasks = append(tasks, testTask(d, "small"))
		}
		for _, d := range []string{"b1", "b2", "b3", "b4", "b5"} {
			tasks = append(tasks, testTask(d, "big"))
		}
		g, _ := Build(tasks)
		found := g.Bottlenecks(nil)
		if len(found) != 2 || found[0].TaskID != "big" || found[1].TaskID != "small" {
			t.Errorf("expected [big small], got %v", found)
		}
	})
}

func TestAnalyzer_Analyze(t *testing.T) {
	analyzer := NewAnalyzer()
	ctx := context.Background()

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck // intentionally nil
		if _, err := analyzer.Analyze(nil, nil); err != ErrNilContext {
			t.Errorf("expected ErrNilContext, got %v", err)
		}
	})

	t.Run("empty task set", func(t *testing.T) {
		result, err := analyzer.Analyze(ctx, nil)
		if err != nil {
			t.Fatalf("Analyze error: %v", err)
		}
		if len(result.Order) != 0 || len(result.Phases) != 0 {
			t.Errorf("expected empty result, got %+v", result)
		}
	})

	t.Run("diamond scenario", func(t *testing.T) {
		// A(no deps), B(no deps), C(deps=[A,B]), D(deps=[C])
		tasks := []*datatypes.Task{
			testTask("A"),
			testTask("B"),
			testTask("C", "A", "B"),
			testTask("D", "C"),
		}
		result, err := analyzer.Analyze(ctx, tasks)
		if err != nil {
			t.Fatalf("Analyze error: %v", err)
		}

		if got := result.Order; !reflect.DeepEqual(got, []string{"A", "B", "C", "D"}) &&
			!reflect.DeepEqual(got, []string{"B", "A", "C", "D"}) {
			t.Errorf("unexpected order %v", got)
		}

		if len(result.Phases) != 3 {
			t.Fatalf("expected 3 phases, got %v", result.Phases)
		}
		if !reflect.DeepEqual(result.Phases[0].TaskIDs, []string{"A", "B"}) {
			t.Errorf("phase 0 should be {A,B}, got %v", result.Phases[0].TaskIDs)
		}
		if !reflect.DeepEqual(result.Phases[1].TaskIDs, []string{"C"}) {
			t.Errorf("phase 1 should be {C}, got %v", result.Phases[1].TaskIDs)
		}
		if !reflect.DeepEqual(result.Phases[2].TaskIDs, []string{"D"}) {
			t.Errorf("phase 2 should be {D}, got %v", result.Phases[2].TaskIDs)
		}
		if !result.Phases[0].Parallelizable || result.Phases[1].Parallelizable {
			t.Error("only the two-task phase is parallelizable")
		}

		if result.ParallelizationScore != 50 {
			t.Errorf("expected score 50, got %v", result.ParallelizationScore)
		}
	})

	t.Run("phase partition and ordering", func(t *testing.T) {
		tasks := []*datatypes.Task{
			testTask("r1"), testTask("r2"),
			testTask("m", "r1"), testTask("n", "r2", "m"),
		}
		result, err := analyzer.Analyze(ctx, tasks)
		if err != nil {
			t.Fatalf("Analyze error: %v", err)
		}

		seen := map[string]int{}
		phaseOf := map[string]int{}
		for _, phase := range result.Phases {
			for _, id := range phase.TaskIDs {
				seen[id]++
				phaseOf[id] = phase.Index
			}
		}
		for _, task := range tasks {
			if seen[task.ID] != 1 {
				t.Errorf("task %s appears %d times in phases", task.ID, seen[task.ID])
			}
			for _, dep := range task.DependsOn {
				if phaseOf[dep] >= phaseOf[task.ID] {
					t.Errorf("task %s (phase %d) does not strictly follow dep %s (phase %d)",
						task.ID, phaseOf[task.ID], dep, phaseOf[dep])
				}
			}
		}
	})

	t.Run("idempotent on unchanged input", func(t *testing.T) {
		tasks := []*datatypes.Task{
			testTask("a"), testTask("b", "a"), testTask("c", "a"), testTask("d", "b", "c"),
		}
		first, err := analyzer.Analyze(ctx, tasks)
		if err != nil {
			t.Fatalf("Analyze error: %v", err)
		}
		second, err := analyzer.Analyze(ctx, tasks)
		if err != nil {
			t.Fatalf("Analyze error: %v", err)
		}
		if !reflect.DeepEqual(first.Order, second.Order) {
			t.Errorf("order not stable: %v vs %v", first.Order, second.Order)
		}
		if !reflect.DeepEqual(first.Phases, second.Phases) {
			t.Errorf("phases not stable: %v vs %v", first.Phases, second.Phases)
		}
		if !reflect.DeepEqual(first.CriticalPath, second.CriticalPath) {
			t.Errorf("critical path not stable: %v vs %v", first.CriticalPath, second.CriticalPath)
		}
	})

	t.Run("cycle produces warning and advisory order", func(t *testing.T) {
		tasks := []*datatypes.Task{testTask("x", "y"), testTask("y", "x")}
		result, err := analyzer.Analyze(ctx, tasks)
		if err != nil {
			t.Fatalf("Analyze error: %v", err)
		}
		if !result.OrderAdvisory {
			t.Error("expected advisory order")
		}
		if len(result.Cycles) == 0 || len(result.Cycles[0]) == 0 {
			t.Error("expected a non-empty cycle report")
		}
		hasCycleWarning := false
		for _, w := range result.Warnings {
			if w.Code == WarnDependencyCycle {
				hasCycleWarning = true
			}
		}
		if !hasCycleWarning {
			t.Error("expected a cycle warning")
		}
	})
}
