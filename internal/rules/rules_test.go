// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_OrdersByDependency(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "queries/entity.sparql", "SELECT ?s WHERE { ?s ?p ?o . }")
	writeFixture(t, dir, "queries/index.sparql", "SELECT ?s WHERE { ?s ?p ?o . }")
	writeFixture(t, dir, "templates/entity.tmpl", "struct {{ .Name }} {}")
	writeFixture(t, dir, "templates/index.tmpl", "mod index;")

	rulesToml := `
[[rule]]
name = "index"
query = "queries/index.sparql"
template = "templates/index.tmpl"
output_path = "index.rs"
depends_on = ["entity"]

[[rule]]
name = "entity"
query = "queries/entity.sparql"
template = "templates/entity.tmpl"
output_path = "entity.rs"
`
	path := writeFixture(t, dir, "rules.toml", rulesToml)

	rs, err := Load(path, "out")
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, "entity", rs.Ordered()[0].Name)
	assert.Equal(t, "index", rs.Ordered()[1].Name)
}

func TestLoad_DetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "q.sparql", "SELECT ?s WHERE { ?s ?p ?o . }")
	writeFixture(t, dir, "t.tmpl", "x")

	rulesToml := `
[[rule]]
name = "a"
query = "q.sparql"
template = "t.tmpl"
output_path = "a.rs"
depends_on = ["b"]

[[rule]]
name = "b"
query = "q.sparql"
template = "t.tmpl"
output_path = "b.rs"
depends_on = ["a"]
`
	path := writeFixture(t, dir, "rules.toml", rulesToml)

	_, err := Load(path, "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_RejectsDuplicateOutputPath(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "q.sparql", "SELECT ?s WHERE { ?s ?p ?o . }")
	writeFixture(t, dir, "t.tmpl", "x")

	rulesToml := `
[[rule]]
name = "a"
query = "q.sparql"
template = "t.tmpl"
output_path = "same.rs"

[[rule]]
name = "b"
query = "q.sparql"
template = "t.tmpl"
output_path = "same.rs"
`
	path := writeFixture(t, dir, "rules.toml", rulesToml)

	_, err := Load(path, "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate output_path")
}

func TestLoad_RejectsOutputPathEscapingRoot(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "q.sparql", "SELECT ?s WHERE { ?s ?p ?o . }")
	writeFixture(t, dir, "t.tmpl", "x")

	rulesToml := `
[[rule]]
name = "a"
query = "q.sparql"
template = "t.tmpl"
output_path = "../escape.rs"
`
	path := writeFixture(t, dir, "rules.toml", rulesToml)

	_, err := Load(path, "out")
	require.Error(t, err)
}

func TestLoad_DisabledRuleIsSkippedFromValidationAndOrder(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "q.sparql", "SELECT ?s WHERE { ?s ?p ?o . }")
	writeFixture(t, dir, "t.tmpl", "x")

	rulesToml := `
[[rule]]
name = "a"
query = "q.sparql"
template = "t.tmpl"
output_path = "a.rs"

[[rule]]
name = "b"
query = "missing.sparql"
template = "missing.tmpl"
output_path = "a.rs"
enabled = false
`
	path := writeFixture(t, dir, "rules.toml", rulesToml)

	rs, err := Load(path, "out")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestLoad_MissingQueryFileIsConfigError(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "t.tmpl", "x")

	rulesToml := `
[[rule]]
name = "a"
query = "missing.sparql"
template = "t.tmpl"
output_path = "a.rs"
`
	path := writeFixture(t, dir, "rules.toml", rulesToml)

	_, err := Load(path, "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing query file")
}
