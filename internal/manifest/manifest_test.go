// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsFreshManifest(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestSaveThenLoad_RoundTripsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := New()
	m.Set(Entry{OutputPath: "user.rs", RuleName: "user", OntologyHash: "o1", RuleHash: "r1", OutputHash: "h1"})

	require.NoError(t, Save(m, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	e, ok := loaded.Get("user.rs")
	require.True(t, ok)
	assert.Equal(t, "h1", e.OutputHash)
}

func TestSave_WritesNoTempFileLeftBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, Save(New(), path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestIsStale_TrueForUntrackedPath(t *testing.T) {
	m := New()
	assert.True(t, m.IsStale(Current{OutputPath: "new.rs", OntologyHash: "o1", RuleHash: "r1"}))
}

func TestIsStale_FalseWhenHashesUnchanged(t *testing.T) {
	m := New()
	m.Set(Entry{OutputPath: "user.rs", OntologyHash: "o1", RuleHash: "r1"})
	assert.False(t, m.IsStale(Current{OutputPath: "user.rs", OntologyHash: "o1", RuleHash: "r1"}))
}

func TestIsStale_TrueWhenOntologyHashChanged(t *testing.T) {
	m := New()
	m.Set(Entry{OutputPath: "user.rs", OntologyHash: "o1", RuleHash: "r1"})
	assert.True(t, m.IsStale(Current{OutputPath: "user.rs", OntologyHash: "o2", RuleHash: "r1"}))
}

func TestStaleSet_ListsOnlyChangedOrNewPaths(t *testing.T) {
	m := New()
	m.Set(Entry{OutputPath: "a.rs", OntologyHash: "o1", RuleHash: "r1"})
	m.Set(Entry{OutputPath: "b.rs", OntologyHash: "o1", RuleHash: "r1"})

	stale := m.StaleSet([]Current{
		{OutputPath: "a.rs", OntologyHash: "o1", RuleHash: "r1"},
		{OutputPath: "b.rs", OntologyHash: "o2", RuleHash: "r1"},
		{OutputPath: "c.rs", OntologyHash: "o1", RuleHash: "r1"},
	})
	assert.Equal(t, []string{"b.rs", "c.rs"}, stale)
}

func TestOrphanSet_ListsTrackedPathsNoLongerProduced(t *testing.T) {
	m := New()
	m.Set(Entry{OutputPath: "a.rs"})
	m.Set(Entry{OutputPath: "gone.rs"})

	orphans := m.OrphanSet([]Current{{OutputPath: "a.rs"}})
	assert.Equal(t, []string{"gone.rs"}, orphans)
}

func TestOnDiskOrphans_FindsUntrackedFilesUnderRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tracked.rs"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.rs"), []byte("y"), 0o644))

	m := New()
	m.Set(Entry{OutputPath: "tracked.rs"})

	orphans, err := m.OnDiskOrphans(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"stray.rs"}, orphans)
}
