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
	"github.com/proofc/proofc/internal/receipt"
	"github.com/proofc/proofc/internal/rules"
	"github.com/proofc/proofc/internal/ui"
)

// runVerify handles `proofc verify [receipt.json]`.
func runVerify(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: proofc verify [receipt.json]

Re-derives V1-V7 for a sealed receipt against the workspace on disk.
With no argument, verifies receipts/latest.json under the configured
artifacts root.
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var arg string
	if fs.NArg() > 0 {
		arg = fs.Arg(0)
	}

	workspaceDir, cfg, err := loadWorkspace(configPath)
	if err != nil {
		cierrors.FatalError(err, globals.JSON)
	}

	receiptPath, err := resolveReceiptArg(workspaceDir, cfg, arg)
	if err != nil {
		cierrors.FatalError(cierrors.NewVerifyError(
			"Cannot resolve receipt path", err.Error(), "", err), globals.JSON)
	}

	data, err := os.ReadFile(receiptPath) //nolint:gosec // G304: path from --config/argument or configured artifacts root
	if err != nil {
		cierrors.FatalError(cierrors.NewVerifyError(
			"Cannot read receipt",
			fmt.Sprintf("failed to read %s", displayPath(workspaceDir, receiptPath)),
			"run 'proofc compile --apply' to produce a receipt",
			err), globals.JSON)
	}

	var r receipt.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		cierrors.FatalError(cierrors.NewVerifyError(
			"Receipt is not valid JSON",
			fmt.Sprintf("failed to parse %s", displayPath(workspaceDir, receiptPath)),
			"", err), globals.JSON)
	}

	ruleSetPath := filepath.Join(workspaceDir, cfg.RuleSetPath)
	ruleSet, err := rules.Load(ruleSetPath, filepath.Join(workspaceDir, cfg.ResolveOutputRoot()))
	if err != nil {
		cierrors.FatalError(err, globals.JSON)
	}

	ws := receipt.Workspace{
		OutputRoot:         filepath.Join(workspaceDir, cfg.ResolveOutputRoot()),
		OntologyPath:       filepath.Join(workspaceDir, cfg.OntologyPath),
		RuleSet:            ruleSet,
		CurrentToolVersion: config.ToolVersion,
	}

	vr := receipt.Verify(r, ws)

	if globals.JSON {
		printVerifyJSON(r, vr)
	} else {
		printVerifyHuman(r, vr, receiptPath, workspaceDir)
	}

	if !vr.Passed() {
		os.Exit(cierrors.ExitCode(cierrors.NewVerifyError("verify failed", "", "", nil)))
	}
	os.Exit(0)
}

func printVerifyJSON(r receipt.Receipt, vr receipt.VerifyResult) {
	type check struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Passed bool   `json:"passed"`
		Detail string `json:"detail,omitempty"`
	}
	type out struct {
		ReceiptID string  `json:"receipt_id"`
		Passed    bool    `json:"passed"`
		Checks    []check `json:"checks"`
	}
	o := out{ReceiptID: r.ReceiptID, Passed: vr.Passed()}
	for _, c := range vr.Checks {
		o.Checks = append(o.Checks, check{ID: string(c.ID), Name: c.Name, Passed: c.Passed, Detail: c.Detail})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(o)
}

func printVerifyHuman(r receipt.Receipt, vr receipt.VerifyResult, receiptPath, workspaceDir string) {
	ui.Header("proofc verify")
	fmt.Printf("%s %s\n", ui.Label("receipt:"), ui.DimText(displayPath(workspaceDir, receiptPath)))
	fmt.Printf("%s %s\n\n", ui.Label("receipt_id:"), r.ReceiptID)

	for _, c := range vr.Checks {
		mark := "pass"
		if !c.Passed {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %s %s: %s\n", mark, c.ID, c.Name, c.Detail)
	}

	fmt.Println()
	if vr.Passed() {
		ui.OK("verify: all checks passed")
	} else {
		ui.Error(fmt.Sprintf("verify: %d check(s) failed", len(vr.Failures())))
	}
}
