// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vcs wraps the version-control operations the coordinator and
// conflict resolver need: workspace branches, rebases, mergeability
// probes, and publishing to a change-request host.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrDirtyWorktree is returned when an operation requires a clean
// worktree and uncommitted changes are present.
var ErrDirtyWorktree = errors.New("worktree has uncommitted changes")

// Git is the version-control surface consumed by the execution and
// conflict packages. Satisfied by GitClient; test doubles mock it.
type Git interface {
	CurrentBranch(ctx context.Context) (string, error)
	RevParse(ctx context.Context, ref string) (string, error)
	BranchExists(ctx context.Context, name string) bool
	CreateBranch(ctx context.Context, name, startPoint string) error
	Checkout(ctx context.Context, ref string) error
	DeleteBranch(ctx context.Context, name string, force bool) error

	Fetch(ctx context.Context, remote string) error
	StashPush(ctx context.Context, message string) error
	StashPop(ctx context.Context) error
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error

	RebaseOnto(ctx context.Context, upstream string) error
	RebaseContinue(ctx context.Context) error
	RebaseAbort(ctx context.Context) error
	HasRebaseInProgress(ctx context.Context) bool
	ConflictedFiles(ctx context.Context) ([]string, error)

	Mergeable(ctx context.Context, base, head string) (bool, error)
	DiffAgainst(ctx context.Context, base string) (string, error)
	ForcePushWithLease(ctx context.Context, remote, branch string) error

	CreateWorktree(ctx context.Context, path, ref string) error
	RemoveWorktree(ctx context.Context, path string, force bool) error

	IsClean(ctx context.Context) (bool, error)
}

// GitClient implements Git using the git command line.
//
// # Description
//
// Executes git commands with configurable timeout in the configured
// repository path.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type GitClient struct {
	repoPath string
	timeout  time.Duration
}

// NewGitClient creates a git client for the specified repository.
//
// # Inputs
//
//   - repoPath: Absolute path to the git repository.
//   - timeout: Maximum duration for each git operation.
//
// # Outputs
//
//   - *GitClient: Ready-to-use git client.
//   - error: Non-nil if repoPath is not absolute.
func NewGitClient(repoPath string, timeout time.Duration) (*GitClient, error) {
	if !filepath.IsAbs(repoPath) {
		return nil, fmt.Errorf("repoPath must be absolute: %s", repoPath)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitClient{repoPath: repoPath, timeout: timeout}, nil
}

// run executes a git command and returns stdout.
func (g *GitClient) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s: timeout after %v", args[0], g.timeout)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()), nil
}

// runSilent executes a git command and returns only success/failure.
func (g *GitClient) runSilent(ctx context.Context, args ...string) error {
	_, err := g.run(ctx, args...)
	return err
}

// CurrentBranch returns the current branch name, or "HEAD" when
// detached.
func (g *GitClient) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("getting current branch: %w", err)
	}
	return branch, nil
}

// RevParse resolves a git ref to a full commit SHA.
func (g *GitClient) RevParse(ctx context.Context, ref string) (string, error) {
	sha, err := g.run(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("resolving ref %s: %w", ref, err)
	}
	return sha, nil
}

// BranchExists checks whether a local branch exists.
func (g *GitClient) BranchExists(ctx context.Context, name string) bool {
	return g.runSilent(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name) == nil
}

// CreateBranch creates a branch at the given start point without
// switching to it. An empty start point means the current HEAD.
func (g *GitClient) CreateBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	return g.runSilent(ctx, args...)
}

// Checkout switches to the specified ref.
func (g *GitClient) Checkout(ctx context.Context, ref string) error {
	return g.runSilent(ctx, "checkout", ref)
}

// DeleteBranch deletes a branch. Use force for unmerged branches.
func (g *GitClient) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	return g.runSilent(ctx, "branch", flag, name)
}

// Fetch updates remote tracking refs.
func (g *GitClient) Fetch(ctx context.Context, remote string) error {
	return g.runSilent(ctx, "fetch", remote)
}

// StashPush stashes all changes, including untracked files.
func (g *GitClient) StashPush(ctx context.Context, message string) error {
	return g.runSilent(ctx, "stash", "push", "-u", "-m", message)
}

// StashPop applies and removes the top stash.
func (g *GitClient) StashPop(ctx context.Context) error {
	return g.runSilent(ctx, "stash", "pop")
}

// AddAll stages all tracked and untracked changes.
func (g *GitClient) AddAll(ctx context.Context) error {
	return g.runSilent(ctx, "add", "-A")
}

// Commit creates a commit from the staged changes. Fails if nothing is
// staged.
func (g *GitClient) Commit(ctx context.Context, message string) error {
	return g.runSilent(ctx, "commit", "-m", message)
}

// RebaseOnto rebases the current branch onto the given upstream.
// Returns an error when the rebase stops on conflicts; the repository
// is then left mid-rebase for inspection.
func (g *GitClient) RebaseOnto(ctx context.Context, upstream string) error {
	return g.runSilent(ctx, "rebase", upstream)
}

// RebaseContinue resumes a conflicted rebase after resolution. Staged
// resolutions are committed without opening an editor.
func (g *GitClient) RebaseContinue(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rebase", "--continue")
	cmd.Dir = g.repoPath
	cmd.Env = append(os.Environ(), "GIT_EDITOR=true")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git rebase --continue: %w: %s", err, stderr.String())
	}
	return nil
}

// RebaseAbort abandons an in-progress rebase, restoring the branch.
func (g *GitClient) RebaseAbort(ctx context.Context) error {
	return g.runSilent(ctx, "rebase", "--abort")
}

// HasRebaseInProgress checks for rebase state directories.
func (g *GitClient) HasRebaseInProgress(ctx context.Context) bool {
	gitDir, err := g.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(g.repoPath, gitDir, dir)); err == nil {
			return true
		}
	}
	return false
}

// ConflictedFiles lists paths with unresolved merge conflicts.
func (g *GitClient) ConflictedFiles(ctx context.Context) ([]string, error) {
	output, err := g.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("listing conflicted files: %w", err)
	}
	if output == "" {
		return nil, nil
	}
	return strings.Split(output, "\n"), nil
}

// Mergeable probes whether head merges cleanly into base without
// touching the worktree. Uses `git merge-tree --write-tree`, which
// exits non-zero on conflicts.
func (g *GitClient) Mergeable(ctx context.Context, base, head string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "merge-tree", "--write-tree", base, head)
	cmd.Dir = g.repoPath

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("git merge-tree: %w: %s", err, stderr.String())
}

// DiffAgainst returns the unified diff of the worktree HEAD against a
// base ref.
func (g *GitClient) DiffAgainst(ctx context.Context, base string) (string, error) {
	out, err := g.run(ctx, "diff", base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("diffing against %s: %w", base, err)
	}
	return out, nil
}

// ForcePushWithLease force-pushes a branch, refusing to clobber remote
// commits the local repo has not seen.
func (g *GitClient) ForcePushWithLease(ctx context.Context, remote, branch string) error {
	return g.runSilent(ctx, "push", "--force-with-lease", remote, branch)
}

// CreateWorktree creates a detached worktree at the given path.
func (g *GitClient) CreateWorktree(ctx context.Context, path, ref string) error {
	return g.runSilent(ctx, "worktree", "add", "--detach", path, ref)
}

// RemoveWorktree removes a worktree. Use force to discard uncommitted
// changes.
func (g *GitClient) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return g.runSilent(ctx, args...)
}

// IsClean reports whether the worktree has no staged, unstaged, or
// untracked changes.
func (g *GitClient) IsClean(ctx context.Context) (bool, error) {
	output, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("getting status: %w", err)
	}
	return output == "", nil
}
