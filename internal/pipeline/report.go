// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proofc/proofc/internal/receipt"
)

// reportDoc is the JSON form of a run's report, the machine-readable
// twin of the markdown rendered alongside it.
type reportDoc struct {
	RunID       string         `json:"run_id"`
	Mode        receipt.Mode   `json:"mode"`
	FinalState  State          `json:"final_state"`
	Timestamp   string         `json:"timestamp"`
	Stages      []stageTiming  `json:"stages"`
	Rules       []ruleStatus   `json:"rules"`
	Guards      []guardSummary `json:"guards"`
	StaleSet    []string       `json:"stale_set,omitempty"`
	OrphanSet   []string       `json:"orphan_set,omitempty"`
	ReceiptID   string         `json:"receipt_id,omitempty"`
	ReceiptPath string         `json:"receipt_path,omitempty"`
	DiffPath    string         `json:"diff_path,omitempty"`
}

type stageTiming struct {
	State     State  `json:"state"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

type ruleStatus struct {
	Name        string   `json:"name"`
	OutputPath  string   `json:"output_path"`
	Status      string   `json:"status"` // "ok" | "failed"
	Error       string   `json:"error,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

type guardSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// writeArtifacts persists the run's receipt, report (markdown + JSON),
// and, in preview mode, its diff, under the workspace's configured
// artifacts root: reports/, receipts/, diffs/. Every run gets a file
// named by its run ID plus a "latest" copy; receipts/latest.json is
// special in that it is only ever updated by a successful apply, since
// it is also the reference point checkUnverifiedWorkspace compares
// against before the next apply is allowed to proceed.
func writeArtifacts(res *Result, li *loadedInputs, opts Options, mode receipt.Mode) {
	root := filepath.Join(opts.WorkspaceDir, opts.Config.ArtifactsRoot)
	reportsDir := filepath.Join(root, "reports")
	receiptsDir := filepath.Join(root, "receipts")
	diffsDir := filepath.Join(root, "diffs")

	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	if err := os.MkdirAll(receiptsDir, 0o750); err == nil {
		if data, err := json.MarshalIndent(res.Receipt, "", "  "); err == nil {
			receiptPath := filepath.Join(receiptsDir, runID+".json")
			if err := os.WriteFile(receiptPath, data, 0o640); err == nil {
				res.ReceiptPath = receiptPath
			}
			if mode == receipt.ModeApply && res.GuardResult.Passed() {
				_ = os.WriteFile(filepath.Join(receiptsDir, "latest.json"), data, 0o640)
			}
		}
	}

	if mode == receipt.ModePreview && res.Diff != "" {
		if err := os.MkdirAll(diffsDir, 0o750); err == nil {
			diffPath := filepath.Join(diffsDir, runID+".patch")
			if err := os.WriteFile(diffPath, []byte(res.Diff), 0o640); err == nil {
				res.DiffPath = diffPath
			}
			_ = os.WriteFile(filepath.Join(diffsDir, "latest.patch"), []byte(res.Diff), 0o640)
		}
	}

	doc := buildReportDoc(runID, mode, res, opts)
	md := renderReportMarkdown(doc, res)

	if err := os.MkdirAll(reportsDir, 0o750); err == nil {
		if jsonData, err := json.MarshalIndent(doc, "", "  "); err == nil {
			jsonPath := filepath.Join(reportsDir, runID+".json")
			if err := os.WriteFile(jsonPath, jsonData, 0o640); err == nil {
				res.ReportJSONPath = jsonPath
			}
			_ = os.WriteFile(filepath.Join(reportsDir, "latest.json"), jsonData, 0o640)
		}
		mdPath := filepath.Join(reportsDir, runID+".md")
		if err := os.WriteFile(mdPath, []byte(md), 0o640); err == nil {
			res.ReportMDPath = mdPath
		}
		_ = os.WriteFile(filepath.Join(reportsDir, "latest.md"), []byte(md), 0o640)
	}
}

func buildReportDoc(runID string, mode receipt.Mode, res *Result, opts Options) reportDoc {
	doc := reportDoc{
		RunID:       runID,
		Mode:        mode,
		FinalState:  res.FinalState,
		Timestamp:   opts.Now.UTC().Format(time.RFC3339),
		StaleSet:    res.StaleSet,
		OrphanSet:   res.OrphanSet,
		ReceiptID:   res.Receipt.ReceiptID,
		ReceiptPath: res.ReceiptPath,
		DiffPath:    res.DiffPath,
	}
	for _, ev := range res.Events {
		doc.Stages = append(doc.Stages, stageTiming{
			State:     ev.State,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
			Detail:    ev.Detail,
		})
	}
	for _, o := range res.RuleOutcomes {
		rs := ruleStatus{Name: o.Rule.Name, OutputPath: o.Rule.OutputPath, Status: "ok"}
		if o.Err != nil {
			rs.Status = "failed"
			rs.Error = o.Err.Error()
		}
		for _, d := range o.ValidateResult.Diagnostics {
			rs.Diagnostics = append(rs.Diagnostics, fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message))
		}
		doc.Rules = append(doc.Rules, rs)
	}
	for _, v := range res.GuardResult.Verdicts {
		status := "pass"
		if !v.Passed {
			status = "fail"
		}
		doc.Guards = append(doc.Guards, guardSummary{ID: string(v.ID), Name: v.Name, Status: status, Detail: v.Detail})
	}
	return doc
}

// renderReportMarkdown is the "First Light" report: a human-readable
// summary of one compile run, in the order a reviewer would want to
// read it - outcome and artifact pointers first, then guard verdicts,
// per-rule results with validation detail, the stale and orphaned
// sets, and the stage timeline.
func renderReportMarkdown(doc reportDoc, res *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Compile report: %s\n\n", doc.RunID)
	fmt.Fprintf(&sb, "- Mode: `%s`\n", doc.Mode)
	fmt.Fprintf(&sb, "- Final state: `%s`\n", doc.FinalState)
	fmt.Fprintf(&sb, "- Timestamp: %s\n", doc.Timestamp)
	if doc.ReceiptID != "" {
		fmt.Fprintf(&sb, "- Receipt: `%s` (%s)\n", doc.ReceiptID, doc.ReceiptPath)
	}
	if doc.DiffPath != "" {
		fmt.Fprintf(&sb, "- Diff: %s\n", doc.DiffPath)
	}
	sb.WriteString("\n## Guard verdicts\n\n")
	if len(doc.Guards) == 0 {
		sb.WriteString("no guards ran\n")
	}
	for _, g := range doc.Guards {
		fmt.Fprintf(&sb, "- %s %s (%s): %s\n", statusMark(g.Status == "pass"), g.ID, g.Name, g.Detail)
	}

	sb.WriteString("\n## Rules\n\n")
	if len(doc.Rules) == 0 {
		sb.WriteString("no rules ran\n")
	}
	for _, r := range doc.Rules {
		fmt.Fprintf(&sb, "- %s %s -> %s\n", statusMark(r.Status == "ok"), r.Name, r.OutputPath)
		if r.Error != "" {
			fmt.Fprintf(&sb, "  - error: %s\n", r.Error)
		}
		for _, d := range r.Diagnostics {
			fmt.Fprintf(&sb, "  - %s\n", d)
		}
	}

	if len(doc.StaleSet) > 0 {
		sb.WriteString("\n## Stale outputs\n\n")
		for _, p := range doc.StaleSet {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}
	if len(doc.OrphanSet) > 0 {
		sb.WriteString("\n## Orphaned outputs\n\n")
		for _, p := range doc.OrphanSet {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	sb.WriteString("\n## Stages\n\n")
	for _, s := range doc.Stages {
		fmt.Fprintf(&sb, "- %s %s", s.Timestamp, s.State)
		if s.Detail != "" {
			fmt.Fprintf(&sb, " - %s", s.Detail)
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

func statusMark(ok bool) string {
	if ok {
		return "[pass]"
	}
	return "[FAIL]"
}
