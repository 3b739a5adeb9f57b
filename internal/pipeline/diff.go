// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-udiff"
)

// buildDiff renders a unified diff of every successfully rendered rule
// against the file currently on disk (empty content for a file that
// does not exist yet), concatenated in rule order. Preview mode calls
// this instead of writing anything, so the caller sees exactly what an
// apply would change.
func buildDiff(outputRoot string, outcomes []RuleOutcome) string {
	var sb strings.Builder
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		target := filepath.Join(outputRoot, o.FileEntry.Path)
		before := ""
		if data, err := os.ReadFile(target); err == nil { //nolint:gosec // G304: path confined to output root
			before = string(data)
		}
		if before == o.Rendered {
			continue
		}
		label := o.FileEntry.Path
		sb.WriteString(udiff.Unified(label, label, before, o.Rendered))
	}
	return sb.String()
}
