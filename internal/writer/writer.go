// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package writer commits rendered artifacts to disk as a single atomic
// transaction: every staged file is backed up, written to a temp file
// next to its target, fsynced, and renamed over the target; any failure
// unwinds the journal in reverse and restores the prior on-disk state.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cierrors "github.com/proofc/proofc/internal/errors"
)

// step records one completed action of a commit, in order, so rollback
// can unwind exactly what happened.
type step struct {
	target     string
	tempPath   string
	backupPath string
	hadBackup  bool
	renamed    bool
}

// Txn is a single staged, all-or-nothing write operation against an
// output root. Stage as many files as needed, then Commit or Rollback.
type Txn struct {
	outputRoot string
	staged     []stagedFile
}

type stagedFile struct {
	path    string
	content []byte
}

// Begin opens a transaction confined to outputRoot. outputRoot must be
// an absolute or caller-resolved directory; every staged path is
// checked against it before any write happens.
func Begin(outputRoot string) (*Txn, error) {
	abs, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, cierrors.NewWriteError("invalid output root", err.Error(), "pass an existing directory as the output root", err)
	}
	return &Txn{outputRoot: abs}, nil
}

// Stage records content to be written to path on Commit. path may be
// relative to the output root or absolute; either way it must resolve
// under the output root with no symlink in its directory prefix.
func (t *Txn) Stage(path string, content []byte) error {
	target, err := t.resolveTarget(path)
	if err != nil {
		return err
	}
	t.staged = append(t.staged, stagedFile{path: target, content: content})
	return nil
}

// resolveTarget joins path against the output root (when relative),
// rejects escapes, and rejects any symlink along the directory prefix.
func (t *Txn) resolveTarget(path string) (string, error) {
	var target string
	if filepath.IsAbs(path) {
		target = filepath.Clean(path)
	} else {
		if !filepath.IsLocal(path) {
			return "", cierrors.NewWriteError("unsafe output path", fmt.Sprintf("%q escapes the output root", path), "use a path local to the output root", nil)
		}
		target = filepath.Clean(filepath.Join(t.outputRoot, path))
	}

	rel, err := filepath.Rel(t.outputRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", cierrors.NewWriteError("unsafe output path", fmt.Sprintf("%q is outside the output root %q", target, t.outputRoot), "keep generated files under the configured output root", nil)
	}

	if err := checkNoSymlinkPrefix(t.outputRoot, filepath.Dir(target)); err != nil {
		return "", err
	}
	return target, nil
}

// checkNoSymlinkPrefix walks dir's path segments from root downward and
// fails if any segment is a symlink, preventing writes that would
// escape the output root via an indirect link.
func checkNoSymlinkPrefix(root, dir string) error {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return cierrors.NewWriteError("unsafe output path", "cannot resolve path relative to output root", "", err)
	}
	if rel == "." {
		return nil
	}

	segments := splitPath(rel)
	cur := root
	for _, seg := range segments {
		cur = filepath.Join(cur, seg)
		info, err := os.Lstat(cur)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cierrors.NewWriteError("unsafe output path", "cannot stat path segment", "", err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return cierrors.NewWriteError("UnsafePath", fmt.Sprintf("%q is a symlink in the output path prefix", cur), "remove the symlink or target a path outside its tree", nil)
		}
	}
	return nil
}

func splitPath(rel string) []string {
	var out []string
	for {
		dir, file := filepath.Split(rel)
		if file != "" {
			out = append([]string{file}, out...)
		}
		if dir == "" || dir == rel {
			break
		}
		rel = filepath.Clean(dir)
		if rel == "." {
			break
		}
	}
	return out
}

// Commit executes the atomic commit protocol over all staged files:
// backup, write-temp+fsync+rename, journal each step, and on any
// failure roll the journal back in reverse before returning the error.
func (t *Txn) Commit() error {
	journal := make([]step, 0, len(t.staged))

	for _, f := range t.staged {
		s, err := commitOne(f.path, f.content)
		if err != nil {
			rollback(journal)
			return err
		}
		journal = append(journal, s)
	}

	for _, s := range journal {
		if s.hadBackup {
			_ = os.Remove(s.backupPath)
		}
	}
	return nil
}

func commitOne(target string, content []byte) (step, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return step{}, cierrors.NewWriteError("cannot create output directory", dir, "", err)
	}

	s := step{target: target, backupPath: target + ".bak"}

	if _, err := os.Stat(target); err == nil {
		if err := copyFile(target, s.backupPath); err != nil {
			return step{}, cierrors.NewWriteError("backup failed", target, "", err)
		}
		s.hadBackup = true
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return step{}, cierrors.NewWriteError("cannot create temp file", dir, "", err)
	}
	s.tempPath = tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(s.tempPath)
		return step{}, cierrors.NewWriteError("write failed", target, "", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(s.tempPath)
		return step{}, cierrors.NewWriteError("fsync failed", target, "", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(s.tempPath)
		return step{}, cierrors.NewWriteError("close failed", target, "", err)
	}

	if err := os.Rename(s.tempPath, target); err != nil {
		os.Remove(s.tempPath)
		return step{}, cierrors.NewWriteError("rename failed", target, "", err)
	}
	s.renamed = true
	return s, nil
}

// rollback walks completed steps in reverse, restoring each target to
// its pre-commit state: a backup is renamed back over the target; with
// no backup, a file that did not exist before is removed.
func rollback(journal []step) {
	for i := len(journal) - 1; i >= 0; i-- {
		s := journal[i]
		if !s.renamed {
			continue
		}
		if s.hadBackup {
			_ = os.Rename(s.backupPath, s.target)
		} else {
			_ = os.Remove(s.target)
		}
	}
}

// Rollback discards all staged content without writing anything. It is
// a no-op once Commit has returned; mid-commit failures roll back on
// their own inside Commit.
func (t *Txn) Rollback() {
	t.staged = nil
}

// Staged returns the resolved target paths currently staged, sorted,
// for callers that need a preview of what Commit would touch.
func (t *Txn) Staged() []string {
	paths := make([]string, len(t.staged))
	for i, f := range t.staged {
		paths[i] = f.path
	}
	sort.Strings(paths)
	return paths
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}
