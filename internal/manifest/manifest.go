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

// Package manifest tracks what the compiler generated on the last run,
// persisted as one JSON file at a well-known path, so later runs can
// tell which outputs are stale (an input hash changed) or orphaned (a
// file under the output root the manifest no longer accounts for).
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/proofc/proofc/internal/errors"
)

// ManifestVersion is the current schema version.
const ManifestVersion = 1

// Entry tracks one rule's generated output for staleness and orphan
// detection across runs.
type Entry struct {
	OutputPath   string    `json:"output_path"`
	RuleName     string    `json:"rule_name"`
	OntologyHash string    `json:"ontology_hash"`
	RuleHash     string    `json:"rule_hash"`
	OutputHash   string    `json:"output_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// ArtifactManifest is the complete persisted state of a project's last
// successful apply run.
type ArtifactManifest struct {
	Version   int              `json:"version"`
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`

	mu sync.RWMutex `json:"-"`
}

// New creates a new, empty manifest.
func New() *ArtifactManifest {
	return &ArtifactManifest{
		Version: ManifestVersion,
		Entries: make(map[string]Entry),
	}
}

// Get returns the entry for outputPath, and whether it exists.
func (m *ArtifactManifest) Get(outputPath string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.Entries[outputPath]
	return e, ok
}

// Set records or replaces an entry.
func (m *ArtifactManifest) Set(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[e.OutputPath] = e
	m.UpdatedAt = time.Now()
}

// Remove deletes the entry for outputPath, if any.
func (m *ArtifactManifest) Remove(outputPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, outputPath)
	m.UpdatedAt = time.Now()
}

// Paths returns every tracked output path, sorted.
func (m *ArtifactManifest) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len reports the number of tracked entries.
func (m *ArtifactManifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Entries)
}

// Current describes one rule's present-run identity, used to compute
// staleness against the manifest from a prior run.
type Current struct {
	OutputPath   string
	RuleName     string
	OntologyHash string
	RuleHash     string
}

// IsStale reports whether cur's recorded hashes differ from the
// manifest's entry for its output path (or the path isn't tracked yet).
func (m *ArtifactManifest) IsStale(cur Current) bool {
	e, ok := m.Get(cur.OutputPath)
	if !ok {
		return true
	}
	return e.OntologyHash != cur.OntologyHash || e.RuleHash != cur.RuleHash
}

// StaleSet returns the output paths among current whose recorded
// ontology_hash or rule_hash differs from the manifest (or are new).
func (m *ArtifactManifest) StaleSet(current []Current) []string {
	var stale []string
	for _, cur := range current {
		if m.IsStale(cur) {
			stale = append(stale, cur.OutputPath)
		}
	}
	sort.Strings(stale)
	return stale
}

// OrphanSet returns manifest-tracked output paths that are no longer
// produced by any rule in current.
func (m *ArtifactManifest) OrphanSet(current []Current) []string {
	produced := make(map[string]bool, len(current))
	for _, cur := range current {
		produced[cur.OutputPath] = true
	}

	var orphans []string
	for _, p := range m.Paths() {
		if !produced[p] {
			orphans = append(orphans, p)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// OnDiskOrphans returns files under outputRoot that exist on disk but
// are not tracked by the manifest at all (distinct from OrphanSet,
// which compares against the current rule set rather than the
// filesystem). Deletion of either kind of orphan is always an explicit,
// separate operation from loading or saving the manifest.
func (m *ArtifactManifest) OnDiskOrphans(outputRoot string) ([]string, error) {
	tracked := make(map[string]bool, m.Len())
	for _, p := range m.Paths() {
		tracked[p] = true
	}

	var orphans []string
	err := filepath.Walk(outputRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputRoot, path)
		if err != nil {
			return err
		}
		if !tracked[rel] {
			orphans = append(orphans, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewInternalError("Cannot walk output root", outputRoot, "check output root permissions", err)
	}
	sort.Strings(orphans)
	return orphans, nil
}

// Load reads the manifest from path. A missing file is not an error:
// it returns a fresh empty manifest, matching a project's first run.
func Load(path string) (*ArtifactManifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from project config
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.NewInternalError("Cannot read artifact manifest", path, "check file permissions", err)
	}

	var m ArtifactManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewInternalError("Cannot parse artifact manifest", path, "the manifest file is corrupt; remove it to start fresh", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]Entry)
	}
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	return &m, nil
}

// Save writes m to path atomically: marshal, write to a sibling temp
// file, then rename over the target.
func Save(m *ArtifactManifest, path string) error {
	m.mu.Lock()
	m.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return errors.NewInternalError("Cannot encode artifact manifest", "", "this is a bug; please report it", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.NewInternalError("Cannot create manifest directory", dir, "", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return errors.NewInternalError("Cannot write manifest temp file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.NewInternalError("Cannot rename manifest into place", path, "", err)
	}
	return nil
}

// Stats summarizes a manifest for reporting.
type Stats struct {
	EntryCount int
	UpdatedAt  time.Time
}

// GetStats computes summary statistics for the manifest.
func (m *ArtifactManifest) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{EntryCount: len(m.Entries), UpdatedAt: m.UpdatedAt}
}
