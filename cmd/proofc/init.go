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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/proofc/proofc/internal/config"
	cierrors "github.com/proofc/proofc/internal/errors"
	"github.com/proofc/proofc/internal/ui"
)

// initFlags holds parsed flags for the init command.
type initFlags struct {
	force          bool
	nonInteractive bool
	outputRoot     string
	ruleSetPath    string
	ontologyPath   string
}

// runInit executes the 'init' CLI command, creating a .proofc/project.yaml
// configuration file and, unless one already exists, a starter rule set
// and ontology so `proofc compile` has something to run on immediately.
func runInit(args []string, globals GlobalFlags) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		cierrors.FatalError(cierrors.NewInternalError(
			"Cannot access working directory",
			"failed to determine current directory path",
			"check system permissions and try again",
			err,
		), globals.JSON)
	}

	configPath := config.Path(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		cierrors.FatalError(cierrors.NewConfigError(
			"Configuration already exists",
			fmt.Sprintf("%s already exists in this directory", configPath),
			"use 'proofc init --force' to overwrite the existing configuration",
			nil,
		), globals.JSON)
	}

	cfg := config.Default()
	if flags.outputRoot != "" {
		cfg.OutputRoot = flags.outputRoot
	}
	if flags.ruleSetPath != "" {
		cfg.RuleSetPath = flags.ruleSetPath
	}
	if flags.ontologyPath != "" {
		cfg.OntologyPath = flags.ontologyPath
	}

	if !flags.nonInteractive {
		reader := bufio.NewReader(os.Stdin)
		runInteractiveConfig(reader, cfg)
	}

	if err := config.Save(cfg, configPath); err != nil {
		cierrors.FatalError(err, globals.JSON)
	}
	ui.OKf("Created %s", configPath)
	addToGitignore(cwd)

	if err := scaffoldStarterProject(cwd, cfg); err != nil {
		ui.Warningf("could not write starter project files: %v", err)
	}

	printNextSteps()
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVarP(&f.nonInteractive, "yes", "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.outputRoot, "output-root", "", "Workspace-relative directory for generated output")
	fs.StringVar(&f.ruleSetPath, "rule-set", "", "Path to the TOML rule set")
	fs.StringVar(&f.ontologyPath, "ontology", "", "Path to the Turtle ontology")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: proofc init [options]

Creates a .proofc/project.yaml configuration file for the current
repository, plus a starter rule set and ontology if none exist yet.

By default, runs in interactive mode with prompts for each setting.
Use -y for non-interactive mode with sensible defaults.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func runInteractiveConfig(reader *bufio.Reader, cfg *config.Config) {
	ui.Header("proofc project configuration")
	fmt.Println()

	cfg.OutputRoot = prompt(reader, "Output root (generated source directory)", cfg.OutputRoot)
	cfg.RuleSetPath = prompt(reader, "Rule set path", cfg.RuleSetPath)
	cfg.OntologyPath = prompt(reader, "Ontology path", cfg.OntologyPath)
	fmt.Println()
}

// prompt displays an interactive prompt and reads user input from stdin.
// If the user presses Enter without input, defaultValue is returned.
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

// addToGitignore appends .proofc/artifacts/ to the project's .gitignore
// file unless a .proofc entry is already present. A missing or
// unwritable .gitignore is not an error.
func addToGitignore(dir string) {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}

	lines := strings.Split(string(content), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == ".proofc/" || line == ".proofc" || line == "/.proofc/" || line == "/.proofc" {
			return
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, _ = f.WriteString("\n# proofc artifacts\n.proofc/artifacts/\n")
	fmt.Println("Added .proofc/artifacts/ to .gitignore")
}

const starterOntology = `@prefix ex: <http://example.org/> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .

ex:Widget rdf:type ex:Component ;
    ex:name "Widget" .
ex:Gadget rdf:type ex:Component ;
    ex:name "Gadget" .
`

const starterRuleSet = `[[rule]]
name = "components"
query = "queries/components.rq"
template = "templates/components.tmpl"
output_path = "components.go"
output_lang = "go"
`

const starterQuery = `SELECT ?c ?name WHERE {
  ?c rdf:type ex:Component .
  ?c ex:name ?name .
} ORDER BY ?name
`

const starterTemplate = `// Code generated by proofc. DO NOT EDIT.

package generated

var Components = []string{
{{- range .Rows }}
	{{ escape .name }},
{{- end }}
}
`

// scaffoldStarterProject writes a minimal ontology, rule set, query, and
// template so a freshly initialized project has something to compile.
// Existing files are left untouched.
func scaffoldStarterProject(cwd string, cfg *config.Config) error {
	writeIfAbsent := func(relPath, content string) error {
		abs := filepath.Join(cwd, relPath)
		if _, err := os.Stat(abs); err == nil {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			return err
		}
		return os.WriteFile(abs, []byte(content), 0o640)
	}

	if err := writeIfAbsent(cfg.OntologyPath, starterOntology); err != nil {
		return err
	}
	if err := writeIfAbsent(cfg.RuleSetPath, starterRuleSet); err != nil {
		return err
	}
	ruleSetDir := filepath.Dir(cfg.RuleSetPath)
	if err := writeIfAbsent(filepath.Join(ruleSetDir, "queries/components.rq"), starterQuery); err != nil {
		return err
	}
	return writeIfAbsent(filepath.Join(ruleSetDir, "templates/components.tmpl"), starterTemplate)
}

func printNextSteps() {
	fmt.Println()
	ui.SubHeader("Next steps:")
	fmt.Printf("  1. Review and edit %s if needed\n", ui.DimText(".proofc/project.yaml"))
	fmt.Printf("  2. Run '%s' to preview a compile\n", ui.Label("proofc compile"))
	fmt.Printf("  3. Run '%s' to write output and seal a receipt\n", ui.Label("proofc compile --apply"))
}
