// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/proofc/proofc/internal/config"
)

// defaultReceiptPath is the well-known receipts/latest.json path under
// ws, used when `proofc verify` is invoked with no explicit argument.
func defaultReceiptPath(workspaceDir string, cfg *config.Config) string {
	return filepath.Join(workspaceDir, cfg.ArtifactsRoot, "receipts", "latest.json")
}

// resolveReceiptArg turns a `proofc verify` positional argument into an
// absolute path. An empty argument resolves to the workspace's latest
// sealed receipt; anything else is resolved relative to the current
// working directory, matching how a user invokes the command from a
// shell rather than relative to the discovered workspace root.
func resolveReceiptArg(workspaceDir string, cfg *config.Config, arg string) (string, error) {
	if arg == "" {
		return defaultReceiptPath(workspaceDir, cfg), nil
	}
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(filepath.Join(cwd, arg)), nil
}

// displayPath renders an absolute path relative to the workspace root
// for human-facing CLI output, falling back to the absolute path when
// it falls outside the workspace entirely.
func displayPath(workspaceDir, absPath string) string {
	rel, err := filepath.Rel(workspaceDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return absPath
	}
	return rel
}
