// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofc/proofc/internal/config"
	"github.com/proofc/proofc/internal/receipt"
	"github.com/proofc/proofc/internal/rules"
)

const fixtureOntology = `
@prefix ex: <http://example.org/> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
ex:Widget rdf:type ex:Component ;
    ex:name "Widget" .
ex:Gadget rdf:type ex:Component ;
    ex:name "Gadget" .
`

const fixtureQuery = `SELECT ?c WHERE { ?c rdf:type ex:Component . }`

const fixtureTemplate = `package generated

{{ range .Rows }}type {{ localName .c | upperCamel }} struct{}
{{ end }}`

const fixtureRuleToml = `
[[rule]]
name = "component"
query = "component.sparql"
template = "component.tmpl"
output_path = "widget.go"
output_lang = "go"
`

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestOptions(t *testing.T, ontology string) (string, Options) {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "ontology.ttl", ontology)
	writeFixture(t, dir, "component.sparql", fixtureQuery)
	writeFixture(t, dir, "component.tmpl", fixtureTemplate)
	writeFixture(t, dir, "rules.toml", fixtureRuleToml)

	cfg := config.Default()
	cfg.OutputRoot = "out"
	cfg.RuleSetPath = "rules.toml"
	cfg.OntologyPath = "ontology.ttl"
	cfg.ManifestPath = ".proofc/manifest.json"
	cfg.ArtifactsRoot = ".proofc/artifacts"
	cfg.Guard.RowCap = 1000
	cfg.Guard.QueryBudget = 5 * time.Second

	return dir, Options{
		WorkspaceDir: dir,
		Config:       cfg,
		RunID:        "test-run",
		Now:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRun_PreviewEmitsDiffWithoutWriting(t *testing.T) {
	dir, opts := newTestOptions(t, fixtureOntology)

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.FinalState)
	assert.NotEmpty(t, res.Diff)
	assert.Contains(t, res.Diff, "widget.go")

	_, statErr := os.Stat(filepath.Join(dir, "out", "widget.go"))
	assert.True(t, os.IsNotExist(statErr), "preview must not write any output file")
}

func TestRun_ApplyWritesFilesAndSealsVerifiableReceipt(t *testing.T) {
	dir, opts := newTestOptions(t, fixtureOntology)
	opts.Apply = true

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.FinalState)
	require.NotEmpty(t, res.Receipt.ReceiptID)

	data, err := os.ReadFile(filepath.Join(dir, "out", "widget.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "type Widget struct{}")
	assert.Contains(t, string(data), "type Gadget struct{}")

	rs, err := rules.Load(filepath.Join(dir, "rules.toml"), filepath.Join(dir, "out"))
	require.NoError(t, err)

	vr := receipt.Verify(res.Receipt, receipt.Workspace{
		OutputRoot:         filepath.Join(dir, "out"),
		OntologyPath:       filepath.Join(dir, "ontology.ttl"),
		RuleSet:            rs,
		CurrentToolVersion: config.ToolVersion,
	})
	assert.True(t, vr.Passed(), "verify failures: %+v", vr.Failures())
}

func TestRun_ApplyTwiceIsDeterministicAndLeavesNothingStale(t *testing.T) {
	dir, opts := newTestOptions(t, fixtureOntology)
	opts.Apply = true

	first, err := Run(context.Background(), opts)
	require.NoError(t, err)

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, first.Receipt.PerFile, 1)
	require.Len(t, second.Receipt.PerFile, 1)
	assert.Equal(t, first.Receipt.PerFile[0].OutputHash, second.Receipt.PerFile[0].OutputHash)
	assert.Empty(t, second.StaleSet, "re-running apply against unchanged inputs must not report staleness")

	_ = dir
}

func TestRun_GuardFailureStopsBeforeRendering(t *testing.T) {
	_, opts := newTestOptions(t, `@prefix ex: <http://example.org/> .`)

	res, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, StateGuardsFailed, res.FinalState)
	assert.Empty(t, res.RuleOutcomes, "render must never run once a guard has failed")
	assert.False(t, res.GuardResult.Passed())
}

func TestRun_ApplyRefusesAfterUnverifiedHandEdit(t *testing.T) {
	dir, opts := newTestOptions(t, fixtureOntology)
	opts.Apply = true

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "out", "widget.go"), []byte("// tampered\n"), 0o644))

	_, err = Run(context.Background(), opts)
	require.Error(t, err)

	opts.Force = true
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.FinalState)
}
