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
// Package main implements the proofc CLI for compiling an ontology and
// rule set into generated source plus a verifiable receipt.
//
// Usage:
//
//	proofc init                   Create .proofc/project.yaml
//	proofc compile                Preview the compile (no files written)
//	proofc compile --apply        Apply the compile and seal a receipt
//	proofc verify <receipt.json>  Re-verify a sealed receipt
//	proofc status                 Report stale/orphaned outputs
//	proofc watch                  Re-run a preview on input changes
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/proofc/proofc/internal/ui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the global CLI flags that apply to every subcommand.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output (progress bars, info messages)
}

// main is the entry point for the proofc CLI. It parses global flags
// and dispatches to one of the subcommand handlers.
func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .proofc/project.yaml (default: discovered by walking up from cwd)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument (the command name), so
	// subcommand-specific flags like "compile --apply --force" are
	// passed through to the subcommand's own flag set.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `proofc - proof-first code compiler

proofc turns an RDF/Turtle ontology and a declarative rule set into
generated source files plus a cryptographic receipt proving what was
generated from what.

Usage:
  proofc <command> [options]

Commands:
  init       Create .proofc/project.yaml and a starter rule set
  compile    Run the pipeline (preview by default; --apply to write)
  verify     Re-derive V1-V7 for a sealed receipt against the workspace
  status     Report stale and orphaned generated outputs
  watch      Re-run a preview compile whenever tracked inputs change

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  -c, --config      Path to .proofc/project.yaml
  -V, --version     Show version and exit

Examples:
  proofc init                    Create configuration interactively
  proofc compile                 Preview the compile, emit a diff
  proofc compile --apply         Apply the compile, write files, seal receipt
  proofc verify .proofc/artifacts/receipts/latest.json
  proofc status --json           Stale/orphan report as JSON

Environment Variables:
  PROOFC_CONFIG_PATH  Explicit path to .proofc/project.yaml
  SOURCE_DATE_EPOCH   Pins the receipt timestamp for reproducible builds
  OUTPUT_ROOT         Overrides the configured output root when safe

For detailed command help: proofc <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("proofc version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet so progress bars never corrupt the
	// machine-readable stream on stdout.
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "compile":
		runCompile(cmdArgs, *configPath, globals)
	case "verify":
		runVerify(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "watch":
		runWatch(cmdArgs, *configPath, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
