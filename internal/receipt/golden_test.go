// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareGolden_NoDriftOnIdenticalReceipts(t *testing.T) {
	r := Receipt{
		Mode:         ModeApply,
		OntologyHash: "h1",
		PerFile:      []FileEntry{{Path: "a.rs", OutputHash: "oa"}},
	}
	assert.Empty(t, CompareGolden(r, r))
}

func TestCompareGolden_DetectsNonDeterminismRegression(t *testing.T) {
	golden := Receipt{
		OntologyHash: "h1",
		PerFile:      []FileEntry{{Path: "a.rs", OutputHash: "oa", TemplateHash: "ta", QueryHash: "qa"}},
	}
	current := Receipt{
		OntologyHash: "h1",
		PerFile:      []FileEntry{{Path: "a.rs", OutputHash: "different", TemplateHash: "ta", QueryHash: "qa"}},
	}

	drifts := CompareGolden(golden, current)
	require := assert.New(t)
	require.Len(drifts, 1)
	require.Equal("per_file[a.rs].output_hash", drifts[0].Field)
}

func TestCompareGolden_DetectsAddedAndRemovedFiles(t *testing.T) {
	golden := Receipt{PerFile: []FileEntry{{Path: "a.rs", OutputHash: "oa"}}}
	current := Receipt{PerFile: []FileEntry{{Path: "b.rs", OutputHash: "ob"}}}

	drifts := CompareGolden(golden, current)
	fields := make([]string, len(drifts))
	for i, d := range drifts {
		fields[i] = d.Field
	}
	assert.Contains(t, fields, "per_file[b.rs]")
	assert.Contains(t, fields, "per_file[a.rs]")
}

func TestCompareGolden_DetectsGuardStatusFlip(t *testing.T) {
	golden := Receipt{GuardVerdicts: []GuardVerdict{{GuardID: "G4", Status: "pass"}}}
	current := Receipt{GuardVerdicts: []GuardVerdict{{GuardID: "G4", Status: "fail"}}}

	drifts := CompareGolden(golden, current)
	require := assert.New(t)
	require.Len(drifts, 1)
	require.Equal("guard_verdicts[G4].status", drifts[0].Field)
}
