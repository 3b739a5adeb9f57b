// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOntology_HashIsStableUnderReorderingAndComments(t *testing.T) {
	a, err := Load(`
@prefix ex: <http://example.org/> .
ex:Widget ex:name "Widget" .
ex:Gadget ex:name "Gadget" .
`)
	require.NoError(t, err)

	b, err := Load(`
# comment that should not affect the hash
@prefix ex: <http://example.org/> .
ex:Gadget ex:name "Gadget" .

ex:Widget   ex:name   "Widget" .
`)
	require.NoError(t, err)

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestOntology_HashChangesWithContent(t *testing.T) {
	a, err := Load(`@prefix ex: <http://example.org/> . ex:Widget ex:name "Widget" .`)
	require.NoError(t, err)

	b, err := Load(`@prefix ex: <http://example.org/> . ex:Widget ex:name "Gadget" .`)
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestOntology_Canonical_IsSortedAndTerminated(t *testing.T) {
	ont, err := Load(`
@prefix ex: <http://example.org/> .
ex:B ex:name "b" .
ex:A ex:name "a" .
`)
	require.NoError(t, err)

	out := ont.Canonical()
	assert.Equal(t,
		"<http://example.org/A> <http://example.org/name> \"a\"\n"+
			"<http://example.org/B> <http://example.org/name> \"b\"\n",
		out)
}

func TestOntology_TripleCount(t *testing.T) {
	ont, err := Load(`
@prefix ex: <http://example.org/> .
ex:A ex:name "a" ;
    ex:label "x" .
`)
	require.NoError(t, err)
	assert.Equal(t, 2, ont.TripleCount())
}
