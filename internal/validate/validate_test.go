// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofc/proofc/internal/render"
)

func TestValidate_Go_AcceptsWellFormedSource(t *testing.T) {
	result, err := Validate("package generated\n\nfunc Add(a, b int) int { return a + b }\n", render.LangGo)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestValidate_Go_ReportsSyntaxError(t *testing.T) {
	result, err := Validate("package generated\n\nfunc Add(a, b int int { return a + b }\n", render.LangGo)
	require.NoError(t, err)
	assert.False(t, result.Passed())
	assert.NotEmpty(t, result.Diagnostics)
}

func TestValidate_JSON_AcceptsWellFormed(t *testing.T) {
	result, err := Validate(`{"name": "widget"}`, render.LangJSON)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestValidate_JSON_ReportsSyntaxError(t *testing.T) {
	result, err := Validate(`{"name": }`, render.LangJSON)
	require.NoError(t, err)
	assert.False(t, result.Passed())
}

func TestValidate_YAML_AcceptsWellFormed(t *testing.T) {
	result, err := Validate("name: widget\nversion: 1\n", render.LangYAML)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestValidate_YAML_ReportsSyntaxError(t *testing.T) {
	result, err := Validate("name: [widget\n", render.LangYAML)
	require.NoError(t, err)
	assert.False(t, result.Passed())
}

func TestValidate_Rust_AcceptsWellFormed(t *testing.T) {
	result, err := Validate("struct Widget {\n    name: String,\n}\n", render.LangRust)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestValidate_Rust_ReportsSyntaxError(t *testing.T) {
	result, err := Validate("struct Widget {\n    name: String\n", render.LangRust)
	require.NoError(t, err)
	assert.False(t, result.Passed())
}

func TestValidate_TypeScript_AcceptsWellFormed(t *testing.T) {
	result, err := Validate("interface Widget {\n  name: string;\n}\n", render.LangTypeScript)
	require.NoError(t, err)
	assert.True(t, result.Passed())
}

func TestValidate_UnknownLanguageIsError(t *testing.T) {
	_, err := Validate("x", render.OutputLanguage("cobol"))
	require.Error(t, err)
}

func TestValidateTOML_AcceptsWellFormed(t *testing.T) {
	_, err := ValidateTOML("name = \"widget\"\nversion = 1\n")
	require.NoError(t, err)
}

func TestValidateTOML_ReportsSyntaxError(t *testing.T) {
	_, err := ValidateTOML("name = \n")
	require.Error(t, err)
}
