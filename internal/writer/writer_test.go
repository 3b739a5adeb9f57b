// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit_WritesNewFiles(t *testing.T) {
	root := t.TempDir()
	txn, err := Begin(root)
	require.NoError(t, err)
	require.NoError(t, txn.Stage("src/gen/user.rs", []byte("struct User {}")))

	require.NoError(t, txn.Commit())

	data, err := os.ReadFile(filepath.Join(root, "src/gen/user.rs"))
	require.NoError(t, err)
	assert.Equal(t, "struct User {}", string(data))
}

func TestCommit_OverwritesExistingFileAndRemovesBackup(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "user.rs")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))

	txn, err := Begin(root)
	require.NoError(t, err)
	require.NoError(t, txn.Stage("user.rs", []byte("new")))
	require.NoError(t, txn.Commit())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	_, err = os.Stat(target + ".bak")
	assert.True(t, os.IsNotExist(err), "backup should be removed after a full-success commit")
}

func TestStage_RejectsPathEscapingOutputRoot(t *testing.T) {
	root := t.TempDir()
	txn, err := Begin(root)
	require.NoError(t, err)

	err = txn.Stage("../escape.rs", nil)
	require.Error(t, err)
}

func TestStage_RejectsSymlinkInTargetPrefix(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "real")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	linkDir := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(realDir, linkDir))

	txn, err := Begin(root)
	require.NoError(t, err)

	err = txn.Stage("link/user.rs", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symlink")
}

func TestRollback_DiscardsStagedContentWithoutWriting(t *testing.T) {
	root := t.TempDir()
	txn, err := Begin(root)
	require.NoError(t, err)
	require.NoError(t, txn.Stage("user.rs", []byte("x")))

	txn.Rollback()
	require.NoError(t, txn.Commit())

	_, err = os.Stat(filepath.Join(root, "user.rs"))
	assert.True(t, os.IsNotExist(err))
}

func TestCommit_RollsBackAllFilesWhenOneStepFails(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "keep.rs")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	txn, err := Begin(root)
	require.NoError(t, err)
	require.NoError(t, txn.Stage("keep.rs", []byte("updated")))

	badDir := filepath.Join(root, "blocked")
	require.NoError(t, os.WriteFile(badDir, []byte("i am a file, not a dir"), 0o644))
	require.NoError(t, txn.Stage("blocked/nested.rs", []byte("y")))

	err = txn.Commit()
	require.Error(t, err)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data), "the successfully-committed file must be restored on rollback")
}

func TestStaged_ReturnsSortedResolvedPaths(t *testing.T) {
	root := t.TempDir()
	txn, err := Begin(root)
	require.NoError(t, err)
	require.NoError(t, txn.Stage("b.rs", []byte("b")))
	require.NoError(t, txn.Stage("a.rs", []byte("a")))

	paths := txn.Staged()
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "a.rs")
	assert.Contains(t, paths[1], "b.rs")
}
