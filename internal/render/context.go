// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"github.com/proofc/proofc/internal/graphstore"
)

// TermValue is the template-facing wrapper around a bound SPARQL term.
// Templates call the escape/escapeIdent helpers on it rather than
// reading Value directly, so interpolation always goes through
// per-language escaping.
type TermValue struct {
	graphstore.Term
}

// IsIRI reports whether the bound term is an IRI.
func (t TermValue) IsIRI() bool { return t.Kind == graphstore.KindIRI }

// IsLiteral reports whether the bound term is a literal.
func (t TermValue) IsLiteral() bool { return t.Kind == graphstore.KindLiteral }

// Row is one result row, keyed by SPARQL variable name (without '?').
// It is a plain map so text/template's Option("missingkey=error")
// makes referencing an unbound variable a render error rather than a
// silent empty string.
type Row map[string]TermValue

// Context is the root template data for one rule's render: one Row per
// query result plus the rule's static parameters.
type Context struct {
	Rows       []Row
	Parameters map[string]string
}

// NewContext builds a Context from a query result and a rule's static
// parameters.
func NewContext(result graphstore.QueryResult, parameters map[string]string) Context {
	rows := make([]Row, 0, len(result.Rows))
	for _, binding := range result.Rows {
		row := make(Row, len(result.Vars))
		for _, v := range result.Vars {
			row[v] = TermValue{Term: binding[v]}
		}
		rows = append(rows, row)
	}
	return Context{Rows: rows, Parameters: parameters}
}
