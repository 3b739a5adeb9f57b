// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"path/filepath"

	"github.com/proofc/proofc/internal/config"
)

// loadWorkspace resolves the project config (an explicit --config path,
// PROOFC_CONFIG_PATH, or an upward search from the working directory)
// and returns the directory every path in the loaded Config is relative
// to, alongside the Config itself. Every subcommand that touches the
// ontology, rule set, output root, or artifacts root starts here.
func loadWorkspace(configPath string) (workspaceDir string, cfg *config.Config, err error) {
	resolved, err := config.Locate(configPath)
	if err != nil {
		return "", nil, err
	}

	cfg, err = config.Load(resolved)
	if err != nil {
		return "", nil, err
	}

	return workspaceRootOf(resolved), cfg, nil
}

// workspaceRootOf derives the workspace directory from a resolved
// config file path. A config path ending in .proofc/project.yaml has
// its workspace root two levels up; any other explicit path (e.g. a
// --config flag pointing somewhere unconventional) uses its own parent
// directory, so relative paths in that file still resolve sensibly.
func workspaceRootOf(configFilePath string) string {
	dir := filepath.Dir(configFilePath)
	if filepath.Base(dir) == config.DefaultConfigDir {
		return filepath.Dir(dir)
	}
	return dir
}
