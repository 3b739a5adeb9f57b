// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/proofc/proofc/internal/graphstore"
	"github.com/proofc/proofc/internal/rules"
)

// CheckID names one of the seven post-facto verify checks.
type CheckID string

const (
	V1ToolVersion         CheckID = "V1"
	V2OntologyHash        CheckID = "V2"
	V3QueryTemplateHash   CheckID = "V3"
	V4OutputHash          CheckID = "V4"
	V5PathWithinRoot      CheckID = "V5"
	V6ReceiptIDMatch      CheckID = "V6"
	V7WorkspaceFingerprint CheckID = "V7"
)

// CheckResult is the outcome of one verify check.
type CheckResult struct {
	ID     CheckID
	Name   string
	Passed bool
	Detail string
}

// VerifyResult is the complete set of V1-V7 outcomes. Verification is
// total: every check runs regardless of earlier failures.
type VerifyResult struct {
	Checks []CheckResult
}

// Passed reports whether every check passed.
func (r VerifyResult) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failures returns only the failing checks.
func (r VerifyResult) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Workspace bundles the on-disk state Verify re-derives each check
// against.
type Workspace struct {
	OutputRoot         string
	OntologyPath       string
	RuleSet            *rules.RuleSet
	CurrentToolVersion string
	// TrackedPaths is the ordered manifest of output-root-relative paths
	// the workspace fingerprint covers. When nil, the receipt's own
	// per_file paths are used.
	TrackedPaths []string
}

// Verify re-derives V1-V7 for r against ws and reports every check,
// passing or failing.
func Verify(r Receipt, ws Workspace) VerifyResult {
	return VerifyResult{Checks: []CheckResult{
		checkToolVersion(r, ws),
		checkOntologyHash(r, ws),
		checkQueryTemplateHash(r, ws),
		checkOutputHash(r, ws),
		checkPathWithinRoot(r, ws),
		checkReceiptIDMatch(r),
		checkWorkspaceFingerprint(r, ws),
	}}
}

func checkToolVersion(r Receipt, ws Workspace) CheckResult {
	if isCompatibleVersion(r.ToolVersion, ws.CurrentToolVersion) {
		return CheckResult{ID: V1ToolVersion, Name: "Tool Version", Passed: true,
			Detail: fmt.Sprintf("receipt built with %s, running %s", r.ToolVersion, ws.CurrentToolVersion)}
	}
	return CheckResult{ID: V1ToolVersion, Name: "Tool Version", Passed: false,
		Detail: fmt.Sprintf("receipt built with incompatible tool version %s (running %s)", r.ToolVersion, ws.CurrentToolVersion)}
}

// isCompatibleVersion treats two versions as compatible when they share
// a major component (the "x." prefix up to the first dot); an empty or
// malformed version on either side is never compatible.
func isCompatibleVersion(receiptVersion, currentVersion string) bool {
	if receiptVersion == "" || currentVersion == "" {
		return false
	}
	return majorOf(receiptVersion) == majorOf(currentVersion)
}

func majorOf(version string) string {
	if i := strings.Index(version, "."); i >= 0 {
		return version[:i]
	}
	return version
}

func checkOntologyHash(r Receipt, ws Workspace) CheckResult {
	data, err := os.ReadFile(ws.OntologyPath) //nolint:gosec // G304: path from verified workspace config
	if err != nil {
		return CheckResult{ID: V2OntologyHash, Name: "Ontology Hash", Passed: false,
			Detail: fmt.Sprintf("cannot read ontology at %q: %v", ws.OntologyPath, err)}
	}
	ont, err := graphstore.Load(string(data))
	if err != nil {
		return CheckResult{ID: V2OntologyHash, Name: "Ontology Hash", Passed: false,
			Detail: fmt.Sprintf("cannot parse ontology at %q: %v", ws.OntologyPath, err)}
	}
	actual := ont.Hash()
	if actual != r.OntologyHash {
		return CheckResult{ID: V2OntologyHash, Name: "Ontology Hash", Passed: false,
			Detail: fmt.Sprintf("ontology hash mismatch: receipt has %s, workspace has %s", r.OntologyHash, actual)}
	}
	return CheckResult{ID: V2OntologyHash, Name: "Ontology Hash", Passed: true, Detail: actual}
}

func checkQueryTemplateHash(r Receipt, ws Workspace) CheckResult {
	if ws.RuleSet == nil {
		return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: true, Detail: "no rule set to check"}
	}
	byOutputPath := make(map[string]rules.Rule, ws.RuleSet.Len())
	for _, rule := range ws.RuleSet.Ordered() {
		byOutputPath[filepath.Clean(rule.OutputPath)] = rule
	}

	for _, entry := range r.PerFile {
		rule, ok := byOutputPath[filepath.Clean(entry.Path)]
		if !ok {
			return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: false,
				Detail: fmt.Sprintf("no rule in the current rule set targets %q", entry.Path)}
		}

		query, err := os.ReadFile(ws.RuleSet.QueryPath(rule)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: false,
				Detail: fmt.Sprintf("rule %q: cannot read query file: %v", rule.Name, err)}
		}
		if actual := HashBytes(query); actual != entry.QueryHash {
			return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: false,
				Detail: fmt.Sprintf("rule %q: query hash mismatch: receipt has %s, workspace has %s", rule.Name, entry.QueryHash, actual)}
		}

		tmpl, err := os.ReadFile(ws.RuleSet.TemplatePath(rule)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: false,
				Detail: fmt.Sprintf("rule %q: cannot read template file: %v", rule.Name, err)}
		}
		if actual := HashBytes(tmpl); actual != entry.TemplateHash {
			return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: false,
				Detail: fmt.Sprintf("rule %q: template hash mismatch: receipt has %s, workspace has %s", rule.Name, entry.TemplateHash, actual)}
		}
	}
	return CheckResult{ID: V3QueryTemplateHash, Name: "Query/Template Hash", Passed: true,
		Detail: fmt.Sprintf("%d entries checked", len(r.PerFile))}
}

func checkOutputHash(r Receipt, ws Workspace) CheckResult {
	var mismatched []string
	for _, entry := range r.PerFile {
		full := filepath.Join(ws.OutputRoot, entry.Path)
		data, err := os.ReadFile(full) //nolint:gosec // G304: path confined to output root by V5
		if err != nil {
			mismatched = append(mismatched, fmt.Sprintf("%s (missing: %v)", entry.Path, err))
			continue
		}
		if actual := HashBytes(data); actual != entry.OutputHash {
			mismatched = append(mismatched, entry.Path)
		}
	}
	if len(mismatched) > 0 {
		return CheckResult{ID: V4OutputHash, Name: "Output Hash", Passed: false,
			Detail: fmt.Sprintf("offending paths: %s", strings.Join(mismatched, ", "))}
	}
	return CheckResult{ID: V4OutputHash, Name: "Output Hash", Passed: true,
		Detail: fmt.Sprintf("%d files match", len(r.PerFile))}
}

func checkPathWithinRoot(r Receipt, ws Workspace) CheckResult {
	absRoot, err := filepath.Abs(ws.OutputRoot)
	if err != nil {
		return CheckResult{ID: V5PathWithinRoot, Name: "Path Within Root", Passed: false, Detail: err.Error()}
	}
	for _, entry := range r.PerFile {
		if !filepath.IsLocal(entry.Path) {
			return CheckResult{ID: V5PathWithinRoot, Name: "Path Within Root", Passed: false,
				Detail: fmt.Sprintf("%q is absolute or escapes the workspace", entry.Path)}
		}
		abs, err := filepath.Abs(filepath.Join(ws.OutputRoot, entry.Path))
		if err != nil {
			return CheckResult{ID: V5PathWithinRoot, Name: "Path Within Root", Passed: false, Detail: err.Error()}
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return CheckResult{ID: V5PathWithinRoot, Name: "Path Within Root", Passed: false,
				Detail: fmt.Sprintf("%q resolves outside the output root %q", entry.Path, ws.OutputRoot)}
		}
	}
	return CheckResult{ID: V5PathWithinRoot, Name: "Path Within Root", Passed: true,
		Detail: fmt.Sprintf("%d paths checked", len(r.PerFile))}
}

func checkReceiptIDMatch(r Receipt) CheckResult {
	recomputed, err := computeReceiptID(r)
	if err != nil {
		return CheckResult{ID: V6ReceiptIDMatch, Name: "Receipt ID Match", Passed: false, Detail: err.Error()}
	}
	if recomputed != r.ReceiptID {
		return CheckResult{ID: V6ReceiptIDMatch, Name: "Receipt ID Match", Passed: false,
			Detail: fmt.Sprintf("recomputed receipt_id %s does not match stored %s", recomputed, r.ReceiptID)}
	}
	return CheckResult{ID: V6ReceiptIDMatch, Name: "Receipt ID Match", Passed: true, Detail: recomputed}
}

func checkWorkspaceFingerprint(r Receipt, ws Workspace) CheckResult {
	paths := ws.TrackedPaths
	if paths == nil {
		paths = make([]string, len(r.PerFile))
		for i, entry := range r.PerFile {
			paths[i] = entry.Path
		}
	}
	actual, err := ComputeWorkspaceFingerprint(ws.OutputRoot, paths)
	if err != nil {
		return CheckResult{ID: V7WorkspaceFingerprint, Name: "Workspace Fingerprint", Passed: false, Detail: err.Error()}
	}
	if actual != r.WorkspaceFingerprint {
		return CheckResult{ID: V7WorkspaceFingerprint, Name: "Workspace Fingerprint", Passed: false,
			Detail: fmt.Sprintf("fingerprint mismatch: receipt has %s, workspace has %s", r.WorkspaceFingerprint, actual)}
	}
	return CheckResult{ID: V7WorkspaceFingerprint, Name: "Workspace Fingerprint", Passed: true, Detail: actual}
}

// ComputeWorkspaceFingerprint hashes an ordered manifest of tracked
// paths (relative to outputRoot) and their content hashes: the
// glossary's "SHA-256 over an ordered manifest of tracked file paths
// and their hashes in the output root". Paths are sorted so the
// fingerprint does not depend on caller-supplied ordering.
func ComputeWorkspaceFingerprint(outputRoot string, paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var manifest strings.Builder
	for _, p := range sorted {
		data, err := os.ReadFile(filepath.Join(outputRoot, p)) //nolint:gosec // G304: path confined to output root by caller
		if err != nil {
			return "", fmt.Errorf("fingerprint: read %s: %w", p, err)
		}
		manifest.WriteString(p)
		manifest.WriteByte(':')
		manifest.WriteString(HashBytes(data))
		manifest.WriteByte('\n')
	}
	return sha256Hex([]byte(manifest.String())), nil
}

// FingerprintFromEntries computes the same ordered-manifest fingerprint
// as ComputeWorkspaceFingerprint, but directly from in-memory per-file
// entries instead of reading the output root from disk. The orchestrator
// uses this to seal a receipt's workspace_fingerprint in both preview
// mode (nothing has been written yet) and apply mode (the just-written
// output_hash values are, by construction, identical to what a disk read
// would produce), so the two code paths always agree on format.
func FingerprintFromEntries(entries []FileEntry) string {
	sorted := append([]FileEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var manifest strings.Builder
	for _, e := range sorted {
		manifest.WriteString(e.Path)
		manifest.WriteByte(':')
		manifest.WriteString(e.OutputHash)
		manifest.WriteByte('\n')
	}
	return sha256Hex([]byte(manifest.String()))
}
