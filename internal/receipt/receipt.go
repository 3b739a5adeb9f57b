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

// Package receipt builds and verifies the cryptographic receipt that
// proves what a pipeline run generated from what inputs. A receipt's
// receipt_id is the SHA-256 of its own canonical JSON form (keys
// sorted, no insignificant whitespace), computed over every other
// field; verify re-derives V1-V7 against a workspace on disk.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Mode is the pipeline mode a receipt was built under.
type Mode string

const (
	ModePreview Mode = "preview"
	ModeApply   Mode = "apply"
)

// FileEntry is one rule's generated output, as recorded in a receipt.
type FileEntry struct {
	Path         string `json:"path"`
	TemplateHash string `json:"template_hash"`
	QueryHash    string `json:"query_hash"`
	ContextHash  string `json:"context_hash"`
	OutputHash   string `json:"output_hash"`
}

// GuardVerdict is one guard's outcome (G1-G7), as recorded in a compile
// receipt.
type GuardVerdict struct {
	GuardID string `json:"guard_id"`
	Status  string `json:"status"` // "pass" | "fail"
	Detail  string `json:"detail,omitempty"`
}

// Receipt is the sealed record of one pipeline run.
type Receipt struct {
	ReceiptID            string         `json:"receipt_id"`
	Timestamp            string         `json:"timestamp"`
	Mode                 Mode           `json:"mode"`
	WorkspaceFingerprint string         `json:"workspace_fingerprint"`
	OntologyHash         string         `json:"ontology_hash"`
	RuleManifestHash     string         `json:"rule_manifest_hash"`
	ToolVersion          string         `json:"tool_version"`
	PerFile              []FileEntry    `json:"per_file"`
	GuardVerdicts        []GuardVerdict `json:"guard_verdicts"`
}

// BuildInput gathers everything build needed to assemble a receipt.
// Fields mirror the pipeline state a run accumulates by the time it
// reaches the sealing stage.
type BuildInput struct {
	Mode                 Mode
	WorkspaceFingerprint string
	OntologyHash         string
	RuleManifestHash     string
	ToolVersion          string
	PerFile              []FileEntry
	GuardVerdicts        []GuardVerdict
	// Timestamp is the pinned SOURCE_DATE_EPOCH time when set, or the
	// wall-clock time of sealing otherwise. Callers resolve this choice
	// before calling Build so the package itself never reads the clock.
	Timestamp time.Time
}

// Build assembles a Receipt from in. Fields are filled in the order the
// spec's receipt-building contract specifies: workspace_fingerprint,
// ontology_hash, rule_manifest_hash, per-file entries (sorted by path),
// guard_verdicts, tool_version, mode, timestamp, then receipt_id is
// computed as the SHA-256 of the canonical JSON of everything before it.
func Build(in BuildInput) (Receipt, error) {
	perFile := append([]FileEntry(nil), in.PerFile...)
	sort.Slice(perFile, func(i, j int) bool { return perFile[i].Path < perFile[j].Path })

	r := Receipt{
		Timestamp:            in.Timestamp.UTC().Format(time.RFC3339),
		Mode:                 in.Mode,
		WorkspaceFingerprint: in.WorkspaceFingerprint,
		OntologyHash:         in.OntologyHash,
		RuleManifestHash:     in.RuleManifestHash,
		ToolVersion:          in.ToolVersion,
		PerFile:              perFile,
		GuardVerdicts:        append([]GuardVerdict(nil), in.GuardVerdicts...),
	}

	id, err := computeReceiptID(r)
	if err != nil {
		return Receipt{}, err
	}
	r.ReceiptID = id
	return r, nil
}

// computeReceiptID hashes the canonical JSON form of r with receipt_id
// itself cleared, since the id covers every other field.
func computeReceiptID(r Receipt) (string, error) {
	r.ReceiptID = ""
	canon, err := canonicalize(r)
	if err != nil {
		return "", err
	}
	return sha256Hex(canon), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashBytes is the SHA-256 hex digest used throughout the receipt
// (ontology/query/template/context/output hashes) and the rest of the
// pipeline for content hashing.
func HashBytes(content []byte) string {
	return sha256Hex(content)
}
