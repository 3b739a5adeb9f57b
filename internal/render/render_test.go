// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofc/proofc/internal/graphstore"
)

func rowOf(t *testing.T, vars map[string]graphstore.Term) Row {
	t.Helper()
	row := make(Row, len(vars))
	for k, v := range vars {
		row[k] = TermValue{Term: v}
	}
	return row
}

func TestRender_BasicSubstitution(t *testing.T) {
	ctx := Context{
		Rows: []Row{rowOf(t, map[string]graphstore.Term{
			"name": graphstore.PlainLiteral("Widget"),
		})},
	}
	out, err := Render("t", `{{ range .Rows }}struct {{ escapeIdent .name }} {}{{ end }}`, LangRust, ctx)
	require.NoError(t, err)
	assert.Equal(t, "struct Widget {}", out)
}

func TestRender_UndefinedRowVariableIsError(t *testing.T) {
	ctx := Context{Rows: []Row{rowOf(t, map[string]graphstore.Term{"name": graphstore.PlainLiteral("Widget")})}}
	_, err := Render("t", `{{ range .Rows }}{{ .missing }}{{ end }}`, LangRust, ctx)
	require.Error(t, err)
}

func TestRender_UndefinedTopLevelFieldIsError(t *testing.T) {
	ctx := Context{}
	_, err := Render("t", `{{ .NoSuchField }}`, LangRust, ctx)
	require.Error(t, err)
}

func TestRender_EscapeRejectsIRIWhereLiteralExpected(t *testing.T) {
	ctx := Context{Rows: []Row{rowOf(t, map[string]graphstore.Term{
		"x": graphstore.IRI("http://example.org/Widget"),
	})}}
	_, err := Render("t", `{{ range .Rows }}{{ escape .x }}{{ end }}`, LangRust, ctx)
	require.Error(t, err)

	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RenderErrTypeMismatch, rerr.Kind)
}

func TestRender_LocalNameExtractsIRITail(t *testing.T) {
	ctx := Context{Rows: []Row{rowOf(t, map[string]graphstore.Term{
		"t": graphstore.IRI("http://example.org/ontology#Widget"),
	})}}
	out, err := Render("t", `{{ range .Rows }}{{ localName .t }}{{ end }}`, LangRust, ctx)
	require.NoError(t, err)
	assert.Equal(t, "Widget", out)
}

func TestRender_ParamHelper(t *testing.T) {
	ctx := Context{Parameters: map[string]string{"module": "widgets"}}
	out, err := Render("t", `{{ param . "module" }}`, LangGo, ctx)
	require.NoError(t, err)
	assert.Equal(t, "widgets", out)
}

func TestRender_ParamHelperMissingKeyIsError(t *testing.T) {
	ctx := Context{Parameters: map[string]string{}}
	_, err := Render("t", `{{ param . "module" }}`, LangGo, ctx)
	require.Error(t, err)
}

func TestRender_IsDeterministicAcrossRuns(t *testing.T) {
	ctx := Context{Rows: []Row{
		rowOf(t, map[string]graphstore.Term{"name": graphstore.PlainLiteral("A")}),
		rowOf(t, map[string]graphstore.Term{"name": graphstore.PlainLiteral("B")}),
	}}
	tmpl := `{{ range .Rows }}{{ escape .name }}{{ end }}`

	first, err := Render("t", tmpl, LangJSON, ctx)
	require.NoError(t, err)
	second, err := Render("t", tmpl, LangJSON, ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompileCheck_RejectsMalformedTemplate(t *testing.T) {
	err := CompileCheck("t", `{{ .Unclosed`, LangRust)
	require.Error(t, err)
}

func TestCompileCheck_AcceptsWellFormedTemplate(t *testing.T) {
	err := CompileCheck("t", `{{ range .Rows }}{{ escape .name }}{{ end }}`, LangRust)
	require.NoError(t, err)
}

func TestOutputLanguage_EscapeIdentRejectsInvalidIdentifier(t *testing.T) {
	_, err := LangRust.EscapeIdent("1bad")
	require.Error(t, err)

	ok, err := LangRust.EscapeIdent("good_name")
	require.NoError(t, err)
	assert.Equal(t, "good_name", ok)
}

func TestParseOutputLanguage_RejectsUnknown(t *testing.T) {
	_, err := ParseOutputLanguage("cobol")
	require.Error(t, err)
}
