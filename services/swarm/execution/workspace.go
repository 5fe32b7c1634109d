// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"path/filepath"
	"strings"
)

// WorkspacePath derives the isolated workspace directory for an
// executor working a task.
//
// # Description
//
//	The path is a pure function of the executor and task ids: losing
//	the stored Workspace field never strands a worktree, the path can
//	always be reconstructed.
//
// # Inputs
//
//   - root: workspace root directory.
//   - executorID: claiming executor.
//   - taskID: claimed task.
//
// # Outputs
//
//   - string: root/<executor>--<task> with unsafe characters replaced.
func WorkspacePath(root, executorID, taskID string) string {
	return filepath.Join(root, sanitizeID(executorID)+"--"+sanitizeID(taskID))
}

// BranchName derives the branch carrying a task's changes.
func BranchName(taskID string) string {
	return "task/" + sanitizeID(taskID)
}

// sanitizeID maps an id onto the filesystem- and ref-safe alphabet
// [a-z0-9._-]. Anything else becomes '-'.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
