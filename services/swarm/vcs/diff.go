// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Summarize parses a unified multi-file diff into a DiffStat.
//
// # Inputs
//
//   - unified: raw `git diff` output.
//
// # Outputs
//
//   - *datatypes.DiffStat: per-diff totals. Empty input yields zero
//     totals.
//   - error: Non-nil on malformed diff text.
func Summarize(unified string) (*datatypes.DiffStat, error) {
	stat := &datatypes.DiffStat{}
	if strings.TrimSpace(unified) == "" {
		return stat, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(unified))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	for _, fd := range fileDiffs {
		stat.FilesChanged++
		stat.Files = append(stat.Files, diffPath(fd))
		s := fd.Stat()
		stat.Additions += int(s.Added + s.Changed)
		stat.Deletions += int(s.Deleted + s.Changed)
	}
	return stat, nil
}

// diffPath picks the post-image path, falling back to the pre-image
// for deletions. The a/ and b/ prefixes are stripped.
func diffPath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "b/")
	name = strings.TrimPrefix(name, "a/")
	return name
}
