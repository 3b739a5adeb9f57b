// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rules loads and statically validates a TOML rule set: the
// bindings from a SPARQL query and a template to a single generated
// output file. It computes the topological execution order when rules
// declare dependencies on one another.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/proofc/proofc/internal/errors"
)

// Rule binds one generated output to the query and template that
// produce it.
type Rule struct {
	Name       string
	Query      string
	Template   string
	OutputPath string
	OutputLang string
	Parameters map[string]string
	DependsOn  []string
	Enabled    bool
}

// rawRule mirrors the TOML shape with Enabled as a pointer, so absence
// of the key can be told apart from an explicit `enabled = false`.
type rawRule struct {
	Name       string            `toml:"name"`
	Query      string            `toml:"query"`
	Template   string            `toml:"template"`
	OutputPath string            `toml:"output_path"`
	OutputLang string            `toml:"output_lang"`
	Parameters map[string]string `toml:"parameters"`
	DependsOn  []string          `toml:"depends_on"`
	Enabled    *bool             `toml:"enabled"`
}

func (r rawRule) toRule() Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return Rule{
		Name:       r.Name,
		Query:      r.Query,
		Template:   r.Template,
		OutputPath: r.OutputPath,
		OutputLang: r.OutputLang,
		Parameters: r.Parameters,
		DependsOn:  r.DependsOn,
		Enabled:    enabled,
	}
}

type ruleSetFile struct {
	Rule []rawRule `toml:"rule"`
}

// RuleSet is a loaded, validated, topologically ordered collection of
// rules. Iterating Ordered() always yields rules in an order where
// every rule appears after everything it depends on.
type RuleSet struct {
	rules   map[string]Rule
	ordered []Rule
	dir     string // directory the rule-set file lives in, for resolving query/template refs
}

// Load reads, statically validates, and topologically orders the rule
// set at path. outputRoot is joined onto the rule-set file's directory,
// and every rule's output_path must resolve inside the result.
func Load(path, outputRoot string) (*RuleSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from validated project config
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read rule set",
			fmt.Sprintf("failed to read %s", path),
			"check the rule_set path in the project config",
			err,
		)
	}

	var file ruleSetFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, errors.NewConfigError(
			"Invalid rule set format",
			"TOML parsing failed - the rule set file contains syntax errors",
			fmt.Sprintf("fix the syntax in %s", path),
			err,
		)
	}

	dir := filepath.Dir(path)
	rs := &RuleSet{rules: make(map[string]Rule, len(file.Rule)), dir: dir}

	for i := range file.Rule {
		r := file.Rule[i].toRule()
		if r.Name == "" {
			return nil, errors.NewConfigError(
				"Rule missing a name",
				fmt.Sprintf("rule at index %d has no name", i),
				"add a unique name field to every [[rule]] table",
				nil,
			)
		}
		if _, dup := rs.rules[r.Name]; dup {
			return nil, errors.NewConfigError(
				"Duplicate rule name",
				fmt.Sprintf("rule %q is declared more than once", r.Name),
				"rule names must be unique within a rule set",
				nil,
			)
		}
		rs.rules[r.Name] = r
	}

	if err := rs.validateStatic(dir, outputRoot); err != nil {
		return nil, err
	}

	ordered, err := rs.topoSort()
	if err != nil {
		return nil, err
	}
	rs.ordered = ordered

	return rs, nil
}

// validateStatic checks query/template existence, output_path safety,
// and output_path uniqueness across enabled rules (G1/G2 also re-check
// this at guard time; the registry catches it earlier as a config
// error per the spec's load-time contract).
func (rs *RuleSet) validateStatic(dir, outputRoot string) error {
	seen := make(map[string]string, len(rs.rules))
	absRoot, err := filepath.Abs(filepath.Join(dir, outputRoot))
	if err != nil {
		return errors.NewInternalError("Cannot resolve output root", err.Error(), "this is a bug; please report it", err)
	}

	names := sortedNames(rs.rules)
	for _, name := range names {
		r := rs.rules[name]
		if !r.Enabled {
			continue
		}

		queryPath := filepath.Join(dir, r.Query)
		if _, err := os.Stat(queryPath); err != nil {
			return errors.NewConfigError(
				"Rule references a missing query file",
				fmt.Sprintf("rule %q references query %q, which does not exist", r.Name, r.Query),
				"fix the query path or add the missing file",
				err,
			)
		}

		templatePath := filepath.Join(dir, r.Template)
		if _, err := os.Stat(templatePath); err != nil {
			return errors.NewConfigError(
				"Rule references a missing template file",
				fmt.Sprintf("rule %q references template %q, which does not exist", r.Name, r.Template),
				"fix the template path or add the missing file",
				err,
			)
		}

		if r.OutputPath == "" {
			return errors.NewConfigError(
				"Rule has no output_path",
				fmt.Sprintf("rule %q does not declare an output_path", r.Name),
				"add an output_path to the rule",
				nil,
			)
		}
		if !filepath.IsLocal(r.OutputPath) {
			return errors.NewConfigError(
				"Rule output_path escapes the workspace",
				fmt.Sprintf("rule %q has output_path %q, which is absolute or contains '..'", r.Name, r.OutputPath),
				"output_path must be a workspace-relative path with no '..' segments",
				nil,
			)
		}
		absOut, err := filepath.Abs(filepath.Join(dir, outputRoot, r.OutputPath))
		if err != nil {
			return errors.NewInternalError("Cannot resolve output path", err.Error(), "this is a bug; please report it", err)
		}
		if !withinRoot(absRoot, absOut) {
			return errors.NewConfigError(
				"Rule output_path escapes the output root",
				fmt.Sprintf("rule %q resolves to %q, outside the declared output root %q", r.Name, absOut, absRoot),
				"move the output under the configured output_root",
				nil,
			)
		}

		if prior, dup := seen[r.OutputPath]; dup {
			return errors.NewConfigError(
				"Duplicate output_path",
				fmt.Sprintf("rules %q and %q both target output_path %q", prior, r.Name, r.OutputPath),
				"every enabled rule must have a unique output_path",
				nil,
			)
		}
		seen[r.OutputPath] = r.Name

		for _, dep := range r.DependsOn {
			if _, ok := rs.rules[dep]; !ok {
				return errors.NewConfigError(
					"Rule depends on an unknown rule",
					fmt.Sprintf("rule %q declares depends_on %q, which is not defined", r.Name, dep),
					"fix the depends_on reference or remove it",
					nil,
				)
			}
		}
	}
	return nil
}

func withinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && filepath.IsLocal(rel))
}

func sortedNames(m map[string]Rule) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// topoSort orders enabled rules so every rule follows its dependencies,
// using Kahn's algorithm. Ties are broken lexically by rule name to
// keep the order deterministic across runs.
func (rs *RuleSet) topoSort() ([]Rule, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	names := sortedNames(rs.rules)
	for _, name := range names {
		r := rs.rules[name]
		if !r.Enabled {
			continue
		}
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
		for _, dep := range r.DependsOn {
			if !rs.rules[dep].Enabled {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, name := range names {
		if _, ok := inDegree[name]; ok && inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var ordered []Rule
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, rs.rules[name])

		next := append([]string(nil), dependents[name]...)
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(ordered) != len(inDegree) {
		cycle := cycleMembers(inDegree, ordered)
		return nil, errors.NewConfigError(
			"Cyclic rule dependencies",
			fmt.Sprintf("the following rules form a dependency cycle: %s", strings.Join(cycle, ", ")),
			"remove the circular depends_on reference",
			nil,
		)
	}

	return ordered, nil
}

func cycleMembers(inDegree map[string]int, resolved []Rule) []string {
	done := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		done[r.Name] = true
	}
	var remaining []string
	for name := range inDegree {
		if !done[name] {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	return remaining
}

// Ordered returns enabled rules in topological order.
func (rs *RuleSet) Ordered() []Rule {
	return rs.ordered
}

// Len reports the number of enabled rules.
func (rs *RuleSet) Len() int {
	return len(rs.ordered)
}

// Dir returns the directory the rule-set file was loaded from, used to
// resolve each rule's query/template paths.
func (rs *RuleSet) Dir() string {
	return rs.dir
}

// QueryPath resolves a rule's query reference to a filesystem path.
func (rs *RuleSet) QueryPath(r Rule) string {
	return filepath.Join(rs.dir, r.Query)
}

// TemplatePath resolves a rule's template reference to a filesystem path.
func (rs *RuleSet) TemplatePath(r Rule) string {
	return filepath.Join(rs.dir, r.Template)
}
