// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package guard runs the seven pre-generation safety checks (G1-G7)
// that must pass before the pipeline renders or writes anything. Each
// check is independent; the kernel aggregates verdicts and either
// aborts on the first failure or collects all seven, depending on
// configuration.
package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/proofc/proofc/internal/graphstore"
	"github.com/proofc/proofc/internal/render"
	"github.com/proofc/proofc/internal/rules"
)

// ID names one of the seven guards.
type ID string

const (
	G1PathSafety      ID = "G1"
	G2OutputOverlap   ID = "G2"
	G3TemplateCompile ID = "G3"
	G4TurtleParse     ID = "G4"
	G5SPARQLDryRun    ID = "G5"
	G6Determinism     ID = "G6"
	G7Bounds          ID = "G7"
)

// Verdict is the outcome of one guard.
type Verdict struct {
	ID     ID
	Name   string
	Passed bool
	Detail string
}

// Config controls the kernel's bounds and sampling policy.
type Config struct {
	FailFast       bool
	MaxOutputBytes int64
	MaxOutputFiles int
	// Sample is "one" (default) or "all"; see Open Questions in DESIGN.md.
	Sample     string
	OutputRoot string
}

// Input bundles everything the seven guards need. Ontology may be nil
// when G4 itself is expected to fail on a load error captured upstream.
type Input struct {
	Ontology     *graphstore.Ontology
	OntologyErr  error
	Store        *graphstore.Store
	RuleSet      *rules.RuleSet
	TemplateText map[string]string // rule name -> raw template source
	OutputLangs  map[string]render.OutputLanguage
}

// Result is the kernel's full verdict set.
type Result struct {
	Verdicts []Verdict
}

// Passed reports whether every guard passed.
func (r Result) Passed() bool {
	for _, v := range r.Verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}

// Failures returns only the failing verdicts.
func (r Result) Failures() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

type checkFunc func(ctx context.Context, in Input, cfg Config) Verdict

// Run executes G1-G7 in order. When cfg.FailFast is true, it stops and
// returns as soon as one guard fails; otherwise all seven always run so
// the report carries maximal diagnostics. Verdicts for guards skipped
// by fail-fast are never synthesized - the report simply has fewer
// than seven entries in that case, matching the spec's "aborts before
// any file write" contract.
func Run(ctx context.Context, in Input, cfg Config) Result {
	checks := []checkFunc{
		checkPathSafety,
		checkOutputOverlap,
		checkTemplateCompile,
		checkTurtleParse,
		checkSPARQLDryRun,
		checkDeterminism,
		checkBounds,
	}

	var result Result
	for _, check := range checks {
		v := check(ctx, in, cfg)
		result.Verdicts = append(result.Verdicts, v)
		if cfg.FailFast && !v.Passed {
			break
		}
	}
	return result
}

// checkPathSafety is G1: every output_path is workspace-relative, has
// no ".." segments, and canonicalizes inside the declared output root.
func checkPathSafety(_ context.Context, in Input, cfg Config) Verdict {
	if in.RuleSet == nil {
		return Verdict{ID: G1PathSafety, Name: "Path Safety", Passed: true, Detail: "no rules to check"}
	}
	absRoot, err := filepath.Abs(cfg.OutputRoot)
	if err != nil {
		return Verdict{ID: G1PathSafety, Name: "Path Safety", Passed: false, Detail: err.Error()}
	}
	for _, r := range in.RuleSet.Ordered() {
		if !filepath.IsLocal(r.OutputPath) {
			return Verdict{ID: G1PathSafety, Name: "Path Safety", Passed: false,
				Detail: fmt.Sprintf("rule %q output_path %q is absolute or escapes the workspace", r.Name, r.OutputPath)}
		}
		abs, err := filepath.Abs(filepath.Join(cfg.OutputRoot, r.OutputPath))
		if err != nil {
			return Verdict{ID: G1PathSafety, Name: "Path Safety", Passed: false, Detail: err.Error()}
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return Verdict{ID: G1PathSafety, Name: "Path Safety", Passed: false,
				Detail: fmt.Sprintf("rule %q output_path %q resolves outside the output root", r.Name, r.OutputPath)}
		}
	}
	return Verdict{ID: G1PathSafety, Name: "Path Safety", Passed: true,
		Detail: fmt.Sprintf("%d output paths checked", in.RuleSet.Len())}
}

// checkOutputOverlap is G2: no two rules share an output_path, and no
// output_path is a prefix-directory of another.
func checkOutputOverlap(_ context.Context, in Input, _ Config) Verdict {
	if in.RuleSet == nil {
		return Verdict{ID: G2OutputOverlap, Name: "Output Overlap", Passed: true, Detail: "no rules to check"}
	}
	paths := make([]string, 0, in.RuleSet.Len())
	owners := make(map[string]string, in.RuleSet.Len())
	for _, r := range in.RuleSet.Ordered() {
		clean := filepath.Clean(r.OutputPath)
		if prior, dup := owners[clean]; dup {
			return Verdict{ID: G2OutputOverlap, Name: "Output Overlap", Passed: false,
				Detail: fmt.Sprintf("rules %q and %q both target %q", prior, r.Name, clean)}
		}
		owners[clean] = r.Name
		paths = append(paths, clean)
	}
	sort.Strings(paths)
	for i := 1; i < len(paths); i++ {
		if strings.HasPrefix(paths[i], paths[i-1]+string(filepath.Separator)) {
			return Verdict{ID: G2OutputOverlap, Name: "Output Overlap", Passed: false,
				Detail: fmt.Sprintf("output path %q is nested under %q", paths[i], paths[i-1])}
		}
	}
	return Verdict{ID: G2OutputOverlap, Name: "Output Overlap", Passed: true,
		Detail: fmt.Sprintf("%d output paths, no overlaps", len(paths))}
}

// checkTemplateCompile is G3: every template parses in the renderer's
// syntax without executing it.
func checkTemplateCompile(_ context.Context, in Input, _ Config) Verdict {
	if in.RuleSet == nil {
		return Verdict{ID: G3TemplateCompile, Name: "Template Compile", Passed: true, Detail: "no rules to check"}
	}
	for _, r := range in.RuleSet.Ordered() {
		src, ok := in.TemplateText[r.Name]
		if !ok {
			return Verdict{ID: G3TemplateCompile, Name: "Template Compile", Passed: false,
				Detail: fmt.Sprintf("rule %q has no loaded template text", r.Name)}
		}
		lang := in.OutputLangs[r.Name]
		if err := render.CompileCheck(r.Name, src, lang); err != nil {
			return Verdict{ID: G3TemplateCompile, Name: "Template Compile", Passed: false,
				Detail: fmt.Sprintf("rule %q: %v", r.Name, err)}
		}
	}
	return Verdict{ID: G3TemplateCompile, Name: "Template Compile", Passed: true,
		Detail: fmt.Sprintf("%d templates compiled", in.RuleSet.Len())}
}

// checkTurtleParse is G4: the ontology parses without error and has a
// non-zero triple count.
func checkTurtleParse(_ context.Context, in Input, _ Config) Verdict {
	if in.OntologyErr != nil {
		return Verdict{ID: G4TurtleParse, Name: "Turtle Parse", Passed: false, Detail: in.OntologyErr.Error()}
	}
	if in.Ontology == nil {
		return Verdict{ID: G4TurtleParse, Name: "Turtle Parse", Passed: false, Detail: "no ontology loaded"}
	}
	if in.Ontology.TripleCount() == 0 {
		return Verdict{ID: G4TurtleParse, Name: "Turtle Parse", Passed: false, Detail: "ontology parsed but contains zero triples"}
	}
	return Verdict{ID: G4TurtleParse, Name: "Turtle Parse", Passed: true,
		Detail: fmt.Sprintf("%d triples", in.Ontology.TripleCount())}
}

// checkSPARQLDryRun is G5: every rule's query parses, passes the
// unsafe-form filter, and a bounded sample execution succeeds.
func checkSPARQLDryRun(ctx context.Context, in Input, _ Config) Verdict {
	if in.RuleSet == nil || in.Store == nil {
		return Verdict{ID: G5SPARQLDryRun, Name: "SPARQL Dry-run", Passed: true, Detail: "no rules to check"}
	}
	for _, r := range in.RuleSet.Ordered() {
		query, err := os.ReadFile(in.RuleSet.QueryPath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return Verdict{ID: G5SPARQLDryRun, Name: "SPARQL Dry-run", Passed: false,
				Detail: fmt.Sprintf("rule %q: cannot read query file: %v", r.Name, err)}
		}
		if err := in.Store.DryRun(string(query)); err != nil {
			return Verdict{ID: G5SPARQLDryRun, Name: "SPARQL Dry-run", Passed: false,
				Detail: fmt.Sprintf("rule %q: %v", r.Name, err)}
		}
		if _, err := in.Store.Query(ctx, string(query)); err != nil {
			return Verdict{ID: G5SPARQLDryRun, Name: "SPARQL Dry-run", Passed: false,
				Detail: fmt.Sprintf("rule %q: sample execution failed: %v", r.Name, err)}
		}
	}
	return Verdict{ID: G5SPARQLDryRun, Name: "SPARQL Dry-run", Passed: true,
		Detail: fmt.Sprintf("%d queries validated", in.RuleSet.Len())}
}

// checkDeterminism is G6: render one deterministically-selected rule
// twice in isolation and compare SHA-256 of the outputs.
func checkDeterminism(ctx context.Context, in Input, cfg Config) Verdict {
	if in.RuleSet == nil || in.RuleSet.Len() == 0 {
		return Verdict{ID: G6Determinism, Name: "Determinism", Passed: true, Detail: "no rules to sample"}
	}

	sampled := sampleRules(in.RuleSet, cfg.Sample)
	for _, r := range sampled {
		src, ok := in.TemplateText[r.Name]
		if !ok {
			return Verdict{ID: G6Determinism, Name: "Determinism", Passed: false,
				Detail: fmt.Sprintf("rule %q has no loaded template text", r.Name)}
		}
		query, err := os.ReadFile(in.RuleSet.QueryPath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return Verdict{ID: G6Determinism, Name: "Determinism", Passed: false,
				Detail: fmt.Sprintf("rule %q: cannot read query file: %v", r.Name, err)}
		}
		result, err := in.Store.Query(ctx, string(query))
		if err != nil {
			return Verdict{ID: G6Determinism, Name: "Determinism", Passed: false,
				Detail: fmt.Sprintf("rule %q: query failed during determinism probe: %v", r.Name, err)}
		}
		lang := in.OutputLangs[r.Name]
		rctx := render.NewContext(result, r.Parameters)

		first, err := render.Render(r.Name, src, lang, rctx)
		if err != nil {
			return Verdict{ID: G6Determinism, Name: "Determinism", Passed: false,
				Detail: fmt.Sprintf("rule %q: first render failed: %v", r.Name, err)}
		}
		second, err := render.Render(r.Name, src, lang, rctx)
		if err != nil {
			return Verdict{ID: G6Determinism, Name: "Determinism", Passed: false,
				Detail: fmt.Sprintf("rule %q: second render failed: %v", r.Name, err)}
		}
		if sha256Hex(first) != sha256Hex(second) {
			return Verdict{ID: G6Determinism, Name: "Determinism", Passed: false,
				Detail: fmt.Sprintf("rule %q: two dry renders produced different output", r.Name)}
		}
	}
	return Verdict{ID: G6Determinism, Name: "Determinism", Passed: true,
		Detail: fmt.Sprintf("%d rule(s) sampled, outputs stable", len(sampled))}
}

// sampleRules picks "one" (lexically-first rule name, the default) or
// "all" rules for the determinism probe.
func sampleRules(rs *rules.RuleSet, mode string) []rules.Rule {
	ordered := rs.Ordered()
	if mode == "all" {
		return ordered
	}
	best := ordered[0]
	for _, r := range ordered[1:] {
		if r.Name < best.Name {
			best = r
		}
	}
	return []rules.Rule{best}
}

// checkBounds is G7: projected output size (the sum of each rule's dry-
// rendered length) and file count stay within the configured limits.
// The dry render here is a projection, not the pipeline's real render
// stage - its output is discarded either way.
func checkBounds(ctx context.Context, in Input, cfg Config) Verdict {
	if in.RuleSet == nil {
		return Verdict{ID: G7Bounds, Name: "Bounds", Passed: true, Detail: "no rules to check"}
	}
	fileCount := in.RuleSet.Len()
	if cfg.MaxOutputFiles > 0 && fileCount > cfg.MaxOutputFiles {
		return Verdict{ID: G7Bounds, Name: "Bounds", Passed: false,
			Detail: fmt.Sprintf("%d output files exceeds max_output_files %d", fileCount, cfg.MaxOutputFiles)}
	}

	var total int64
	for _, r := range in.RuleSet.Ordered() {
		src, ok := in.TemplateText[r.Name]
		if !ok {
			return Verdict{ID: G7Bounds, Name: "Bounds", Passed: false,
				Detail: fmt.Sprintf("rule %q has no loaded template text", r.Name)}
		}
		query, err := os.ReadFile(in.RuleSet.QueryPath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return Verdict{ID: G7Bounds, Name: "Bounds", Passed: false,
				Detail: fmt.Sprintf("rule %q: cannot read query file: %v", r.Name, err)}
		}
		result, err := in.Store.Query(ctx, string(query))
		if err != nil {
			return Verdict{ID: G7Bounds, Name: "Bounds", Passed: false,
				Detail: fmt.Sprintf("rule %q: query failed during bounds projection: %v", r.Name, err)}
		}
		out, err := render.Render(r.Name, src, in.OutputLangs[r.Name], render.NewContext(result, r.Parameters))
		if err != nil {
			return Verdict{ID: G7Bounds, Name: "Bounds", Passed: false,
				Detail: fmt.Sprintf("rule %q: dry render failed during bounds projection: %v", r.Name, err)}
		}
		total += int64(len(out))
	}
	if cfg.MaxOutputBytes > 0 && total > cfg.MaxOutputBytes {
		return Verdict{ID: G7Bounds, Name: "Bounds", Passed: false,
			Detail: fmt.Sprintf("projected %d bytes exceeds max_output_bytes %d", total, cfg.MaxOutputBytes)}
	}
	return Verdict{ID: G7Bounds, Name: "Bounds", Passed: true,
		Detail: fmt.Sprintf("%d files, %d bytes projected", fileCount, total)}
}

func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
