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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/pkg/widget/widget.go b/pkg/widget/widget.go
index 1111111..2222222 100644
--- a/pkg/widget/widget.go
+++ b/pkg/widget/widget.go
@@ -1,4 +1,5 @@
 package widget

+// Widget spins.
 type Widget struct {
-	speed int
+	Speed int
 }
diff --git a/README.md b/README.md
index 3333333..4444444 100644
--- a/README.md
+++ b/README.md
@@ -1,2 +1,3 @@
 # widgets
+Now with spinning.
 `

func TestSummarize(t *testing.T) {
	t.Run("empty diff", func(t *testing.T) {
		stat, err := Summarize("")
		require.NoError(t, err)
		assert.Zero(t, stat.FilesChanged)
		assert.Zero(t, stat.Additions)
		assert.Zero(t, stat.Deletions)
	})

	t.Run("multi-file diff", func(t *testing.T) {
		stat, err := Summarize(sampleDiff)
		require.NoError(t, err)
		assert.Equal(t, 2, stat.FilesChanged)
		assert.Equal(t, []string{"pkg/widget/widget.go", "README.md"}, stat.Files)
		assert.Equal(t, 3, stat.Additions)
		assert.Equal(t, 1, stat.Deletions)
	})
}
