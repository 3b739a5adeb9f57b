// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package receipt

import "fmt"

// Drift is one field that differs between a golden reference receipt
// and a freshly built one.
type Drift struct {
	Field   string
	Golden  string
	Current string
}

// CompareGolden reports field-level differences between a golden
// reference receipt and current. Timestamp and receipt_id are expected
// to differ run-to-run and are never reported. Per-file context_hash,
// guard verdict details, and guard verdicts present on only one side
// are not compared. A same-inputs,
// different-output_hash drift is the signature of a non-determinism
// regression: the same ontology and rule set produced different bytes.
func CompareGolden(golden, current Receipt) []Drift {
	var drifts []Drift

	if golden.Mode != current.Mode {
		drifts = append(drifts, Drift{Field: "mode", Golden: string(golden.Mode), Current: string(current.Mode)})
	}
	if golden.OntologyHash != current.OntologyHash {
		drifts = append(drifts, Drift{Field: "ontology_hash", Golden: golden.OntologyHash, Current: current.OntologyHash})
	}
	if golden.RuleManifestHash != current.RuleManifestHash {
		drifts = append(drifts, Drift{Field: "rule_manifest_hash", Golden: golden.RuleManifestHash, Current: current.RuleManifestHash})
	}
	if golden.ToolVersion != current.ToolVersion {
		drifts = append(drifts, Drift{Field: "tool_version", Golden: golden.ToolVersion, Current: current.ToolVersion})
	}
	if golden.WorkspaceFingerprint != current.WorkspaceFingerprint {
		drifts = append(drifts, Drift{Field: "workspace_fingerprint", Golden: golden.WorkspaceFingerprint, Current: current.WorkspaceFingerprint})
	}

	drifts = append(drifts, comparePerFile(golden.PerFile, current.PerFile)...)
	drifts = append(drifts, compareGuardVerdicts(golden.GuardVerdicts, current.GuardVerdicts)...)

	return drifts
}

func comparePerFile(golden, current []FileEntry) []Drift {
	var drifts []Drift
	goldenByPath := make(map[string]FileEntry, len(golden))
	for _, e := range golden {
		goldenByPath[e.Path] = e
	}
	seen := make(map[string]bool, len(current))

	for _, c := range current {
		seen[c.Path] = true
		g, ok := goldenByPath[c.Path]
		if !ok {
			drifts = append(drifts, Drift{Field: fmt.Sprintf("per_file[%s]", c.Path), Golden: "(absent)", Current: "added"})
			continue
		}
		if g.OutputHash != c.OutputHash {
			drifts = append(drifts, Drift{
				Field:   fmt.Sprintf("per_file[%s].output_hash", c.Path),
				Golden:  g.OutputHash,
				Current: c.OutputHash,
			})
		}
		if g.TemplateHash != c.TemplateHash {
			drifts = append(drifts, Drift{Field: fmt.Sprintf("per_file[%s].template_hash", c.Path), Golden: g.TemplateHash, Current: c.TemplateHash})
		}
		if g.QueryHash != c.QueryHash {
			drifts = append(drifts, Drift{Field: fmt.Sprintf("per_file[%s].query_hash", c.Path), Golden: g.QueryHash, Current: c.QueryHash})
		}
	}
	for path := range goldenByPath {
		if !seen[path] {
			drifts = append(drifts, Drift{Field: fmt.Sprintf("per_file[%s]", path), Golden: "present", Current: "(absent)"})
		}
	}
	return drifts
}

func compareGuardVerdicts(golden, current []GuardVerdict) []Drift {
	var drifts []Drift
	goldenByID := make(map[string]GuardVerdict, len(golden))
	for _, v := range golden {
		goldenByID[v.GuardID] = v
	}
	for _, c := range current {
		g, ok := goldenByID[c.GuardID]
		if ok && g.Status != c.Status {
			drifts = append(drifts, Drift{Field: fmt.Sprintf("guard_verdicts[%s].status", c.GuardID), Golden: g.Status, Current: c.Status})
		}
	}
	return drifts
}
