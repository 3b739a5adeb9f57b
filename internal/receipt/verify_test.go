// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package receipt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofc/proofc/internal/graphstore"
	"github.com/proofc/proofc/internal/rules"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func buildWorkspace(t *testing.T) (Receipt, Workspace, string) {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "component.sparql", `SELECT ?c WHERE { ?c rdf:type ex:Component . }`)
	writeFixture(t, dir, "component.tmpl", `struct {{ .name }} {}`)
	rulesPath := writeFixture(t, dir, "rules.toml", `
[[rule]]
name = "component"
query = "component.sparql"
template = "component.tmpl"
output_path = "component.rs"
`)
	outputRoot := filepath.Join(dir, "out")
	rs, err := rules.Load(rulesPath, "out")
	require.NoError(t, err)

	ontologyPath := writeFixture(t, dir, "ontology.ttl", `@prefix ex: <http://example.org/> .
ex:Widget ex:name "Widget" .`)
	outputContent := "struct Widget {}"
	writeFixture(t, dir, "out/component.rs", outputContent)

	queryBytes, err := os.ReadFile(rs.QueryPath(rs.Ordered()[0]))
	require.NoError(t, err)
	tmplBytes, err := os.ReadFile(rs.TemplatePath(rs.Ordered()[0]))
	require.NoError(t, err)
	ontBytes, err := os.ReadFile(ontologyPath)
	require.NoError(t, err)
	ont, err := graphstore.Load(string(ontBytes))
	require.NoError(t, err)

	fingerprint, err := ComputeWorkspaceFingerprint(outputRoot, []string{"component.rs"})
	require.NoError(t, err)

	r, err := Build(BuildInput{
		Mode:                 ModeApply,
		WorkspaceFingerprint: fingerprint,
		OntologyHash:         ont.Hash(),
		RuleManifestHash:     "rm1",
		ToolVersion:          "0.1.0",
		PerFile: []FileEntry{
			{Path: "component.rs", TemplateHash: HashBytes(tmplBytes), QueryHash: HashBytes(queryBytes), OutputHash: HashBytes([]byte(outputContent))},
		},
		GuardVerdicts: []GuardVerdict{{GuardID: "G1", Status: "pass"}},
		Timestamp:     time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	ws := Workspace{
		OutputRoot:         outputRoot,
		OntologyPath:       ontologyPath,
		RuleSet:            rs,
		CurrentToolVersion: "0.1.2",
	}
	return r, ws, dir
}

func TestVerify_AllPassOnFreshWorkspace(t *testing.T) {
	r, ws, _ := buildWorkspace(t)
	result := Verify(r, ws)
	assert.True(t, result.Passed(), "%+v", result.Failures())
	assert.Len(t, result.Checks, 7)
}

func TestVerify_V4FailsWhenOutputTampered(t *testing.T) {
	r, ws, dir := buildWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out", "component.rs"), []byte("struct Widget { tampered: true }"), 0o644))

	result := Verify(r, ws)
	assert.False(t, result.Passed())

	var v4 *CheckResult
	for i := range result.Checks {
		if result.Checks[i].ID == V4OutputHash {
			v4 = &result.Checks[i]
		}
	}
	require.NotNil(t, v4)
	assert.False(t, v4.Passed)
	assert.Contains(t, v4.Detail, "component.rs")
}

func TestVerify_V2FailsWhenOntologyChanges(t *testing.T) {
	r, ws, dir := buildWorkspace(t)
	require.NoError(t, os.WriteFile(ws.OntologyPath, []byte("@prefix ex: <http://example.org/other> ."), 0o644))
	_ = dir

	result := Verify(r, ws)
	var v2 *CheckResult
	for i := range result.Checks {
		if result.Checks[i].ID == V2OntologyHash {
			v2 = &result.Checks[i]
		}
	}
	require.NotNil(t, v2)
	assert.False(t, v2.Passed)
}

func TestVerify_V6FailsWhenReceiptTampered(t *testing.T) {
	r, ws, _ := buildWorkspace(t)
	r.RuleManifestHash = "tampered"

	result := Verify(r, ws)
	var v6 *CheckResult
	for i := range result.Checks {
		if result.Checks[i].ID == V6ReceiptIDMatch {
			v6 = &result.Checks[i]
		}
	}
	require.NotNil(t, v6)
	assert.False(t, v6.Passed)
}

func TestVerify_V1FailsOnIncompatibleMajorVersion(t *testing.T) {
	r, ws, _ := buildWorkspace(t)
	ws.CurrentToolVersion = "1.0.0"

	result := Verify(r, ws)
	var v1 *CheckResult
	for i := range result.Checks {
		if result.Checks[i].ID == V1ToolVersion {
			v1 = &result.Checks[i]
		}
	}
	require.NotNil(t, v1)
	assert.False(t, v1.Passed)
}

func TestVerify_V5FailsOnPathEscapingRoot(t *testing.T) {
	r, ws, _ := buildWorkspace(t)
	r.PerFile[0].Path = "../escape.rs"

	result := Verify(r, ws)
	var v5 *CheckResult
	for i := range result.Checks {
		if result.Checks[i].ID == V5PathWithinRoot {
			v5 = &result.Checks[i]
		}
	}
	require.NotNil(t, v5)
	assert.False(t, v5.Passed)
}
