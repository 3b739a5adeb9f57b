// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTurtle_BasicTriples(t *testing.T) {
	src := `
@prefix ex: <http://example.org/> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .

ex:Widget rdf:type ex:Component ;
    ex:name "widget" ;
    ex:version 2 .
`
	triples, err := parseTurtle(src)
	require.NoError(t, err)
	assert.Len(t, triples, 3)

	assert.Equal(t, IRI("http://example.org/Widget"), triples[0].Subject)
	assert.Equal(t, IRI(rdfType), triples[0].Predicate)
	assert.Equal(t, IRI("http://example.org/Component"), triples[0].Object)

	assert.Equal(t, PlainLiteral("widget"), triples[1].Object)
	assert.Equal(t, TypedLiteral("2", "http://www.w3.org/2001/XMLSchema#integer"), triples[2].Object)
}

func TestParseTurtle_UnknownPrefixFailsLoudly(t *testing.T) {
	_, err := parseTurtle(`ex:Widget ex:name "widget" .`)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Msg, "unknown prefix")
}

func TestParseTurtle_ObjectListAndBlankNode(t *testing.T) {
	src := `
@prefix ex: <http://example.org/> .
ex:Widget ex:dependsOn ex:A, ex:B .
_:gen1 ex:label "generated" .
`
	triples, err := parseTurtle(src)
	require.NoError(t, err)
	require.Len(t, triples, 3)

	assert.Equal(t, IRI("http://example.org/A"), triples[0].Object)
	assert.Equal(t, IRI("http://example.org/B"), triples[1].Object)
	assert.Equal(t, Blank("gen1"), triples[2].Subject)
}

func TestParseTurtle_LangAndDatatypeLiterals(t *testing.T) {
	src := `
@prefix ex: <http://example.org/> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
ex:Widget ex:label "widget"@en ;
    ex:weight "1.5"^^xsd:decimal .
`
	triples, err := parseTurtle(src)
	require.NoError(t, err)
	require.Len(t, triples, 2)

	assert.Equal(t, LangLiteral("widget", "en"), triples[0].Object)
	assert.Equal(t, TypedLiteral("1.5", "http://www.w3.org/2001/XMLSchema#decimal"), triples[1].Object)
}

func TestParseTurtle_MissingDotIsASyntaxError(t *testing.T) {
	_, err := parseTurtle(`
@prefix ex: <http://example.org/> .
ex:Widget ex:name "widget"
ex:Gadget ex:name "gadget" .
`)
	require.Error(t, err)
}

func TestTripleLess_CanonicalOrdering(t *testing.T) {
	a := Triple{Subject: IRI("http://example.org/A"), Predicate: IRI(rdfType), Object: IRI("http://example.org/T")}
	b := Triple{Subject: IRI("http://example.org/B"), Predicate: IRI(rdfType), Object: IRI("http://example.org/T")}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}
