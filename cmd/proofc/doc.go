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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the proofc CLI: a proof-first code compiler
// that turns an RDF/Turtle ontology and a declarative rule set into
// generated source files plus a cryptographic receipt proving what was
// built from what.
//
// # Quick Start
//
// Initialize a new project in your repository:
//
//	cd /path/to/your/project
//	proofc init
//
// Preview what a compile would produce, without writing anything:
//
//	proofc compile
//
// Apply the compile, writing generated files and sealing a receipt:
//
//	proofc compile --apply
//
// Re-verify a sealed receipt against the workspace on disk:
//
//	proofc verify .proofc/artifacts/receipts/latest.json
//
// Check for stale or orphaned outputs:
//
//	proofc status
//
// # Commands
//
//	init      Create .proofc/project.yaml and a starter rule set
//	compile   Run the pipeline; preview by default, --apply to write
//	verify    Re-derive V1-V7 for a sealed receipt against the workspace
//	status    Report stale and orphaned generated outputs
//	watch     Re-run a preview compile whenever tracked inputs change
//
// Global flags:
//
//	--version      Show version information and exit
//	--config PATH  Path to .proofc/project.yaml configuration file
//	--json         Emit machine-readable JSON instead of human output
//	--no-color     Disable color output (respects NO_COLOR env var)
//
// # Configuration
//
// proofc is configured through a local .proofc/project.yaml file. The
// init command creates a default configuration; PROOFC_CONFIG_PATH
// points the CLI at an explicit file when one isn't discoverable by
// walking up from the working directory.
//
// SOURCE_DATE_EPOCH pins the timestamp embedded in sealed receipts so
// two identical runs produce a byte-identical receipt_id.
// OUTPUT_ROOT overrides the configured output root when set and safe
// (relative, no ".." segments).
//
// # Exit Codes
//
//	0  success
//	1  guard failure (G1-G7)
//	2  render or validate failure
//	3  write failure (transaction rolled back)
//	4  verify failure (one or more of V1-V7)
//	5  configuration error
package main
