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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/schollz/progressbar/v3"

	"github.com/proofc/proofc/internal/config"
	cierrors "github.com/proofc/proofc/internal/errors"
	"github.com/proofc/proofc/internal/metrics"
	"github.com/proofc/proofc/internal/pipeline"
	"github.com/proofc/proofc/internal/ui"
)

// barProgress adapts a schollz/progressbar/v3 bar to pipeline.ProgressReporter.
type barProgress struct {
	bar *progressbar.ProgressBar
}

func (p *barProgress) Start(total int, phase string) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(phase),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *barProgress) Tick() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *barProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// runCompile handles `proofc compile [--apply] [--force]`.
func runCompile(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	apply := fs.Bool("apply", false, "Write generated files and seal a receipt (default: preview only)")
	force := fs.Bool("force", false, "Apply despite an unverified workspace (receipts/latest.json disagrees with disk)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: proofc compile [--apply] [--force]

Runs the ontology/rule-set pipeline. Without --apply, nothing is
written: the command prints a diff of what would change. With
--apply, the generated files are written and a receipt is sealed.

Options:
  --apply   Write files and seal a receipt
  --force   Apply even if the workspace fingerprint looks unverified
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	workspaceDir, cfg, err := loadWorkspace(configPath)
	if err != nil {
		cierrors.FatalError(err, globals.JSON)
	}

	now := time.Now()
	if sde, ok := config.SourceDateEpoch(); ok {
		now = sde
	}

	var progress pipeline.ProgressReporter = pipeline.NoopProgress{}
	if !globals.Quiet && ui.Enabled() {
		progress = &barProgress{}
	}

	logLevel := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		logLevel = slog.LevelDebug
	case globals.Verbose == 1:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	sink := metrics.NewPrometheusSink()

	res, runErr := pipeline.Run(context.Background(), pipeline.Options{
		WorkspaceDir: workspaceDir,
		Config:       cfg,
		Apply:        *apply,
		Force:        *force,
		Now:          now,
		Metrics:      sink,
		Logger:       logger,
		Progress:     progress,
	})

	if globals.JSON {
		printCompileJSON(res)
	} else {
		printCompileHuman(res, *apply)
	}

	if runErr != nil {
		os.Exit(cierrors.ExitCode(runErr))
	}
	os.Exit(0)
}

func printCompileJSON(res *pipeline.Result) {
	type out struct {
		FinalState  string   `json:"final_state"`
		ReceiptID   string   `json:"receipt_id,omitempty"`
		ReceiptPath string   `json:"receipt_path,omitempty"`
		DiffPath    string   `json:"diff_path,omitempty"`
		ReportMD    string   `json:"report_md_path,omitempty"`
		ReportJSON  string   `json:"report_json_path,omitempty"`
		StaleSet    []string `json:"stale_set,omitempty"`
		OrphanSet   []string `json:"orphan_set,omitempty"`
		Error       string   `json:"error,omitempty"`
	}
	o := out{
		FinalState:  string(res.FinalState),
		ReceiptID:   res.Receipt.ReceiptID,
		ReceiptPath: res.ReceiptPath,
		DiffPath:    res.DiffPath,
		ReportMD:    res.ReportMDPath,
		ReportJSON:  res.ReportJSONPath,
		StaleSet:    res.StaleSet,
		OrphanSet:   res.OrphanSet,
	}
	if res.Err != nil {
		o.Error = res.Err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(o)
}

func printCompileHuman(res *pipeline.Result, apply bool) {
	ui.Header("proofc compile")
	fmt.Printf("%s %s\n", ui.Label("state:"), res.FinalState)

	ui.SubHeader("guard verdicts")
	for _, v := range res.GuardResult.Verdicts {
		mark := "pass"
		if !v.Passed {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %s %s: %s\n", mark, v.ID, v.Name, v.Detail)
	}

	ui.SubHeader("rules")
	for _, o := range res.RuleOutcomes {
		if o.Err != nil {
			fmt.Printf("  [FAIL] %s -> %s: %v\n", o.Rule.Name, o.Rule.OutputPath, o.Err)
			continue
		}
		fmt.Printf("  [ok]   %s -> %s\n", o.Rule.Name, o.Rule.OutputPath)
	}

	if len(res.StaleSet) > 0 {
		ui.SubHeader("stale outputs")
		for _, p := range res.StaleSet {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(res.OrphanSet) > 0 {
		ui.SubHeader("orphaned outputs")
		for _, p := range res.OrphanSet {
			fmt.Printf("  %s\n", p)
		}
	}

	if res.Receipt.ReceiptID != "" {
		fmt.Printf("%s %s\n", ui.Label("receipt:"), res.Receipt.ReceiptID)
	}
	if res.ReceiptPath != "" {
		fmt.Printf("%s %s\n", ui.Label("receipt path:"), ui.DimText(res.ReceiptPath))
	}
	if res.DiffPath != "" {
		fmt.Printf("%s %s\n", ui.Label("diff:"), ui.DimText(res.DiffPath))
	}
	if res.ReportMDPath != "" {
		fmt.Printf("%s %s\n", ui.Label("report:"), ui.DimText(res.ReportMDPath))
	}

	if res.Err != nil {
		return
	}
	if apply {
		ui.OKf("applied: %d rule(s) written", len(res.RuleOutcomes))
	} else {
		ui.OKf("preview complete: %d rule(s) evaluated", len(res.RuleOutcomes))
	}
}
