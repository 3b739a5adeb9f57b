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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/proofc/proofc/internal/config"
	cierrors "github.com/proofc/proofc/internal/errors"
	"github.com/proofc/proofc/internal/graphstore"
	"github.com/proofc/proofc/internal/manifest"
	"github.com/proofc/proofc/internal/receipt"
	"github.com/proofc/proofc/internal/rules"
	"github.com/proofc/proofc/internal/ui"
)

// StatusResult reports a workspace's stale and orphaned generated
// outputs relative to its persisted artifact manifest.
type StatusResult struct {
	EntryCount   int      `json:"entry_count"`
	StaleSet     []string `json:"stale_set,omitempty"`
	OrphanSet    []string `json:"orphan_set,omitempty"`
	OnDiskOrphan []string `json:"on_disk_orphans,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// runStatus handles `proofc status`.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: proofc status

Reports which generated outputs are stale (their ontology or rule
hash changed since the last apply) or orphaned (no longer produced
by any rule, or present on disk but untracked).
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	workspaceDir, cfg, err := loadWorkspace(configPath)
	if err != nil {
		cierrors.FatalError(err, globals.JSON)
	}

	result, err := computeStatus(workspaceDir, cfg)
	if err != nil {
		if globals.JSON {
			_ = json.NewEncoder(os.Stdout).Encode(StatusResult{Error: err.Error()})
			os.Exit(cierrors.ExitCode(err))
		}
		cierrors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	printStatusHuman(result)
}

func computeStatus(workspaceDir string, cfg *config.Config) (*StatusResult, error) {
	ontPath := filepath.Join(workspaceDir, cfg.OntologyPath)
	ontBytes, err := os.ReadFile(ontPath) //nolint:gosec // G304: path from validated project config
	if err != nil {
		return nil, cierrors.NewConfigError("Cannot read ontology", ontPath, "check the ontology path in the project config", err)
	}
	ont, err := graphstore.Load(string(ontBytes))
	if err != nil {
		return nil, err
	}

	ruleSetPath := filepath.Join(workspaceDir, cfg.RuleSetPath)
	ruleSet, err := rules.Load(ruleSetPath, filepath.Join(workspaceDir, cfg.ResolveOutputRoot()))
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(workspaceDir, cfg.ManifestPath)
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	current := make([]manifest.Current, 0, ruleSet.Len())
	for _, r := range ruleSet.Ordered() {
		queryBytes, err := os.ReadFile(ruleSet.QueryPath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return nil, cierrors.NewConfigError("Cannot read query", ruleSet.QueryPath(r), "", err)
		}
		tmplBytes, err := os.ReadFile(ruleSet.TemplatePath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return nil, cierrors.NewConfigError("Cannot read template", ruleSet.TemplatePath(r), "", err)
		}
		current = append(current, manifest.Current{
			OutputPath:   filepath.Clean(r.OutputPath),
			RuleName:     r.Name,
			OntologyHash: ont.Hash(),
			RuleHash:     receipt.HashBytes(tmplBytes) + receipt.HashBytes(queryBytes),
		})
	}

	outputRoot := filepath.Join(workspaceDir, cfg.ResolveOutputRoot())
	onDiskOrphans, err := mf.OnDiskOrphans(outputRoot)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		EntryCount:   mf.GetStats().EntryCount,
		StaleSet:     mf.StaleSet(current),
		OrphanSet:    mf.OrphanSet(current),
		OnDiskOrphan: onDiskOrphans,
	}, nil
}

func printStatusHuman(r *StatusResult) {
	ui.Header("proofc status")
	fmt.Printf("%s %s\n\n", ui.Label("tracked outputs:"), ui.CountText(r.EntryCount))

	ui.SubHeader("stale outputs")
	if len(r.StaleSet) == 0 {
		fmt.Println("  none")
	}
	for _, p := range r.StaleSet {
		fmt.Printf("  %s\n", p)
	}

	ui.SubHeader("orphaned outputs (no longer produced)")
	if len(r.OrphanSet) == 0 {
		fmt.Println("  none")
	}
	for _, p := range r.OrphanSet {
		fmt.Printf("  %s\n", p)
	}

	ui.SubHeader("untracked files under the output root")
	if len(r.OnDiskOrphan) == 0 {
		fmt.Println("  none")
	}
	for _, p := range r.OnDiskOrphan {
		fmt.Printf("  %s\n", p)
	}

	if len(r.StaleSet) == 0 && len(r.OrphanSet) == 0 && len(r.OnDiskOrphan) == 0 {
		ui.OK("workspace is clean")
	}
}
