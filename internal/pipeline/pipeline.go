// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline is the stage sequencer: it drives an ontology and a
// rule set through the guard kernel, a bounded render/validate worker
// pool, a staged write transaction, and receipt sealing, emitting a
// single report per run. It owns the preview/apply state machine; every
// other component (graphstore, rules, guard, render, validate, writer,
// receipt, manifest) is a pure function or narrow-contract type this
// package composes, mirroring the teacher's LocalPipeline, which
// composes RepoLoader/CodeParser/EmbeddingGenerator/storage the same way.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/proofc/proofc/internal/config"
	cierrors "github.com/proofc/proofc/internal/errors"
	"github.com/proofc/proofc/internal/graphstore"
	"github.com/proofc/proofc/internal/guard"
	"github.com/proofc/proofc/internal/manifest"
	"github.com/proofc/proofc/internal/metrics"
	"github.com/proofc/proofc/internal/receipt"
	"github.com/proofc/proofc/internal/render"
	"github.com/proofc/proofc/internal/rules"
	"github.com/proofc/proofc/internal/validate"
	"github.com/proofc/proofc/internal/writer"
)

// State names the pipeline's state machine positions, exactly as
// enumerated in the spec: each is one-way, and every run ends in Done or
// one of the *Failed/RolledBack terminal states.
type State string

const (
	StateIdle          State = "Idle"
	StateLoading       State = "Loading"
	StateGuardsRunning State = "GuardsRunning"
	StateGuardsFailed  State = "GuardsFailed"
	StateRendering     State = "Rendering"
	StateRenderFailed  State = "RenderFailed"
	StateValidating    State = "Validating"
	StateValidateFailed State = "ValidateFailed"
	StateStaging       State = "Staging"
	StatePreview       State = "Preview"
	StateApplying      State = "Applying"
	StateApplied       State = "Applied"
	StateRolledBack    State = "RolledBack"
	StateSealingReceipt State = "SealingReceipt"
	StateDone          State = "Done"
)

// Event is one timestamped state transition, recorded for the report.
type Event struct {
	State     State
	Timestamp time.Time
	Detail    string
}

// RuleOutcome is one rule's render/validate result.
type RuleOutcome struct {
	Rule           rules.Rule
	FileEntry      receipt.FileEntry
	Rendered       string
	ValidateResult validate.Result
	Err            error
}

// Options configures one pipeline run.
type Options struct {
	// WorkspaceDir is the directory .proofc/project.yaml's relative
	// paths (ontology, rule set, output root, artifacts root) resolve
	// against.
	WorkspaceDir string
	Config       *config.Config

	Apply bool
	// Force allows apply to proceed despite an unverified workspace
	// (Open Question 2 in DESIGN.md): receipts/latest.json's fingerprint
	// disagreeing with the current on-disk output root.
	Force bool

	RunID string
	Now   time.Time // resolved by the caller from SOURCE_DATE_EPOCH or time.Now()

	Metrics  metrics.Sink
	Logger   *slog.Logger
	Progress ProgressReporter
}

// ProgressReporter receives render/validate stage progress ticks; the
// CLI wires a TTY progress bar, tests and JSON mode wire a no-op.
type ProgressReporter interface {
	Start(total int, phase string)
	Tick()
	Finish()
}

// NoopProgress discards every tick.
type NoopProgress struct{}

func (NoopProgress) Start(int, string) {}
func (NoopProgress) Tick()             {}
func (NoopProgress) Finish()           {}

// Result is everything a completed (or failed) run produced.
type Result struct {
	FinalState    State
	Events        []Event
	GuardResult   guard.Result
	RuleOutcomes  []RuleOutcome
	Receipt       receipt.Receipt
	Diff          string // unified diff text, preview mode only
	StaleSet      []string
	OrphanSet     []string
	ReportMDPath  string
	ReportJSONPath string
	ReceiptPath   string
	DiffPath      string
	Err           error
}

// Run drives one pipeline invocation start to finish. It never panics on
// expected failures: every *Failed/RolledBack terminal state is
// returned in Result with Err set, so the caller (cmd/proofc) maps Err
// to an exit code via cierrors.ExitCode.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Progress == nil {
		opts.Progress = NoopProgress{}
	}

	res := &Result{FinalState: StateIdle}
	transition := func(s State, detail string) {
		res.FinalState = s
		res.Events = append(res.Events, Event{State: s, Timestamp: time.Now(), Detail: detail})
		opts.Logger.Info("pipeline.transition", "state", s, "detail", detail)
	}

	mode := receipt.ModePreview
	if opts.Apply {
		mode = receipt.ModeApply
	}

	transition(StateLoading, "loading ontology and rule set")
	loaded, err := loadInputs(opts)
	if err != nil {
		res.Err = err
		opts.Metrics.ObserveRun(string(mode), "load_failed")
		return res, err
	}

	transition(StateGuardsRunning, fmt.Sprintf("running guard kernel (fail_fast=%v)", opts.Config.Guard.FailFast))
	guardResult := runGuards(ctx, loaded, opts)
	res.GuardResult = guardResult
	for _, v := range guardResult.Verdicts {
		opts.Metrics.ObserveGuard(string(v.ID), v.Passed)
	}
	if !guardResult.Passed() {
		transition(StateGuardsFailed, fmt.Sprintf("%d guard(s) failed", len(guardResult.Failures())))
		res.Receipt = sealReceipt(mode, loaded, guardResult, nil, opts)
		writeArtifacts(res, loaded, opts, mode)
		res.Err = cierrors.NewGuardError("Guard kernel rejected the run",
			firstFailureDetail(guardResult), "fix the failing guard and re-run", nil)
		opts.Metrics.ObserveRun(string(mode), "guards_failed")
		return res, res.Err
	}

	transition(StateRendering, fmt.Sprintf("rendering %d rule(s)", loaded.ruleSet.Len()))
	outcomes := renderAndValidate(ctx, loaded, opts)
	res.RuleOutcomes = outcomes

	if renderErr := firstRuleError(outcomes, isRenderErr); renderErr != nil {
		transition(StateRenderFailed, renderErr.Error())
		res.Err = cierrors.NewRenderError("Rule failed to render", renderErr.Error(), "", renderErr)
		opts.Metrics.ObserveRun(string(mode), "render_failed")
		return res, res.Err
	}

	transition(StateValidating, fmt.Sprintf("validating %d rendered artifact(s)", len(outcomes)))
	if validateErr := firstRuleError(outcomes, isValidateErr); validateErr != nil {
		transition(StateValidateFailed, validateErr.Error())
		res.Err = validateErr
		opts.Metrics.ObserveRun(string(mode), "validate_failed")
		return res, res.Err
	}

	transition(StateStaging, "staging rendered artifacts into a write transaction")
	outputRootAbs := filepath.Join(opts.WorkspaceDir, opts.Config.ResolveOutputRoot())
	txn, err := writer.Begin(outputRootAbs)
	if err != nil {
		res.Err = err
		opts.Metrics.ObserveRun(string(mode), "stage_failed")
		return res, err
	}
	for _, o := range outcomes {
		if err := txn.Stage(o.Rule.OutputPath, []byte(o.Rendered)); err != nil {
			res.Err = err
			opts.Metrics.ObserveRun(string(mode), "stage_failed")
			return res, err
		}
	}

	if !opts.Apply {
		transition(StatePreview, "emitting diff, no files written")
		res.Diff = buildDiff(outputRootAbs, outcomes)
	} else {
		if err := checkUnverifiedWorkspace(opts); err != nil {
			res.Err = err
			opts.Metrics.ObserveRun(string(mode), "unverified_workspace")
			return res, err
		}
		transition(StateApplying, "committing write transaction")
		if err := txn.Commit(); err != nil {
			transition(StateRolledBack, err.Error())
			res.Err = err
			opts.Metrics.ObserveRun(string(mode), "rolled_back")
			return res, err
		}
		transition(StateApplied, fmt.Sprintf("%d file(s) written", len(outcomes)))
	}

	transition(StateSealingReceipt, "assembling receipt")
	rcpt := sealReceipt(mode, loaded, guardResult, outcomes, opts)
	res.Receipt = rcpt

	if opts.Apply {
		updateManifest(loaded, outcomes, rcpt, opts)
	}
	res.StaleSet, res.OrphanSet = computeStaleAndOrphans(loaded, opts)

	writeArtifacts(res, loaded, opts, mode)
	transition(StateDone, "run complete")
	opts.Metrics.ObserveRun(string(mode), "done")
	return res, nil
}

type loadedInputs struct {
	ontology     *graphstore.Ontology
	ontologyErr  error
	store        *graphstore.Store
	ruleSet      *rules.RuleSet
	ruleSetBytes []byte
	templateText map[string]string
	outputLangs  map[string]render.OutputLanguage
	queryText    map[string]string
}

func loadInputs(opts Options) (*loadedInputs, error) {
	cfg := opts.Config
	ontPath := filepath.Join(opts.WorkspaceDir, cfg.OntologyPath)
	ontBytes, err := os.ReadFile(ontPath) //nolint:gosec // G304: path from validated project config
	var li loadedInputs
	if err != nil {
		li.ontologyErr = cierrors.NewParseError("Cannot read ontology", ontPath, "check the ontology path in the project config", err)
	} else {
		ont, err := graphstore.Load(string(ontBytes))
		if err != nil {
			li.ontologyErr = err
		} else {
			li.ontology = ont
		}
	}

	if li.ontology != nil {
		li.store = graphstore.NewStore(li.ontology, cfg.Guard.RowCap, cfg.Guard.QueryBudget, 256)
	}

	ruleSetPath := filepath.Join(opts.WorkspaceDir, cfg.RuleSetPath)
	ruleSet, err := rules.Load(ruleSetPath, filepath.Join(opts.WorkspaceDir, cfg.ResolveOutputRoot()))
	if err != nil {
		return nil, err
	}
	li.ruleSet = ruleSet

	if b, err := os.ReadFile(ruleSetPath); err == nil { //nolint:gosec // G304: path from validated project config
		li.ruleSetBytes = b
	}

	li.templateText = make(map[string]string, ruleSet.Len())
	li.outputLangs = make(map[string]render.OutputLanguage, ruleSet.Len())
	li.queryText = make(map[string]string, ruleSet.Len())
	for _, r := range ruleSet.Ordered() {
		tmplBytes, err := os.ReadFile(ruleSet.TemplatePath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return nil, cierrors.NewConfigError("Cannot read template", ruleSet.TemplatePath(r), "", err)
		}
		li.templateText[r.Name] = string(tmplBytes)

		lang, err := render.ParseOutputLanguage(r.OutputLang)
		if err != nil {
			return nil, cierrors.NewConfigError("Rule has an invalid output_lang",
				fmt.Sprintf("rule %q: %v", r.Name, err), "use one of: rust, go, typescript, json, yaml, sql", err)
		}
		li.outputLangs[r.Name] = lang

		queryBytes, err := os.ReadFile(ruleSet.QueryPath(r)) //nolint:gosec // G304: path validated at rule-load time
		if err != nil {
			return nil, cierrors.NewConfigError("Cannot read query", ruleSet.QueryPath(r), "", err)
		}
		li.queryText[r.Name] = string(queryBytes)
	}

	return &li, nil
}

func runGuards(ctx context.Context, li *loadedInputs, opts Options) guard.Result {
	in := guard.Input{
		Ontology:     li.ontology,
		OntologyErr:  li.ontologyErr,
		Store:        li.store,
		RuleSet:      li.ruleSet,
		TemplateText: li.templateText,
		OutputLangs:  li.outputLangs,
	}
	cfg := guard.Config{
		FailFast:       opts.Config.Guard.FailFast,
		MaxOutputBytes: opts.Config.Guard.MaxOutputBytes,
		MaxOutputFiles: opts.Config.Guard.MaxOutputFiles,
		Sample:         opts.Config.Guard.G6Sample,
		OutputRoot:     filepath.Join(opts.WorkspaceDir, opts.Config.ResolveOutputRoot()),
	}
	return guard.Run(ctx, in, cfg)
}

// renderAndValidate renders and validates every rule concurrently over a
// bounded worker pool (default runtime.NumCPU()), mirroring the
// teacher's parseFilesParallel jobs-channel/results-channel shape: each
// rule's render+validate is independent and pure over its own inputs, so
// ordering the results back by index is enough to keep the receipt's
// per-file list deterministic regardless of completion order.
func renderAndValidate(ctx context.Context, li *loadedInputs, opts Options) []RuleOutcome {
	ordered := li.ruleSet.Ordered()
	outcomes := make([]RuleOutcome, len(ordered))
	if len(ordered) == 0 {
		return outcomes
	}

	workers := opts.Config.Pipeline.RenderWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(ordered) {
		workers = len(ordered)
	}

	opts.Progress.Start(len(ordered), "rendering")
	defer opts.Progress.Finish()

	jobs := make(chan int, len(ordered))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					outcomes[i] = RuleOutcome{Rule: ordered[i], Err: ctx.Err()}
					opts.Progress.Tick()
					continue
				default:
				}
				start := time.Now()
				outcomes[i] = renderOneRule(ctx, ordered[i], li)
				opts.Metrics.ObserveStage("render_validate", ordered[i].Name, time.Since(start))
				opts.Progress.Tick()
			}
		}()
	}
	for i := range ordered {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func renderOneRule(ctx context.Context, r rules.Rule, li *loadedInputs) RuleOutcome {
	lang := li.outputLangs[r.Name]
	queryHash := receipt.HashBytes([]byte(li.queryText[r.Name]))
	templateHash := receipt.HashBytes([]byte(li.templateText[r.Name]))

	result, err := li.store.Query(ctx, li.queryText[r.Name])
	if err != nil {
		return RuleOutcome{Rule: r, Err: err}
	}

	contextHash := computeContextHash(queryHash, result)
	rctx := render.NewContext(result, r.Parameters)

	rendered, err := render.Render(r.Name, li.templateText[r.Name], lang, rctx)
	if err != nil {
		return RuleOutcome{Rule: r, Err: err}
	}

	vres, err := validate.Validate(rendered, lang)
	if err != nil {
		return RuleOutcome{Rule: r, Rendered: rendered, Err: cierrors.NewValidateError(
			"Validator failed to run", fmt.Sprintf("rule %q: %v", r.Name, err), "", err)}
	}
	if !vres.Passed() {
		return RuleOutcome{Rule: r, Rendered: rendered, ValidateResult: vres, Err: cierrors.NewValidateError(
			"Rendered output failed syntax validation",
			fmt.Sprintf("rule %q produced %d diagnostic(s) in %s", r.Name, len(vres.Diagnostics), lang),
			"fix the template or the underlying ontology data", nil)}
	}

	return RuleOutcome{
		Rule:           r,
		Rendered:       rendered,
		ValidateResult: vres,
		FileEntry: receipt.FileEntry{
			Path:         filepath.Clean(r.OutputPath),
			TemplateHash: templateHash,
			QueryHash:    queryHash,
			ContextHash:  contextHash,
			OutputHash:   receipt.HashBytes([]byte(rendered)),
		},
	}
}

// computeContextHash is the spec's input_context_hash: SHA-256 over the
// canonicalized (query_hash, result_bindings) pair. Rows are already in
// deterministic order by the time they reach here (graphstore.Store
// returns ORDER BY order, or its own canonical sort otherwise), so a
// stable textual serialization of each binding is enough to make the
// hash reproducible run to run.
func computeContextHash(queryHash string, result graphstore.QueryResult) string {
	var sb strings.Builder
	sb.WriteString(queryHash)
	sb.WriteByte('\n')
	for _, row := range result.Rows {
		for _, v := range result.Vars {
			sb.WriteString(v)
			sb.WriteByte('=')
			sb.WriteString(row[v].String())
			sb.WriteByte('\x1f')
		}
		sb.WriteByte('\x1e')
	}
	return receipt.HashBytes([]byte(sb.String()))
}

func isRenderErr(err error) bool {
	var e *render.RenderError
	return errors.As(err, &e)
}

func isValidateErr(err error) bool {
	var e *cierrors.Error
	return errors.As(err, &e) && e.Kind == cierrors.KindValidate
}

// firstRuleError returns the first outcome error matching kind, in rule
// order, wrapped with the rule name so the caller's report names which
// rule failed. A render/validate failure is fatal for the whole run:
// the orchestrator's state machine has one RenderFailed/ValidateFailed
// transition, not a per-rule partial-success path.
func firstRuleError(outcomes []RuleOutcome, kind func(error) bool) error {
	for _, o := range outcomes {
		if o.Err != nil && kind(o.Err) {
			return fmt.Errorf("rule %q: %w", o.Rule.Name, o.Err)
		}
	}
	// A non-matching-kind error (e.g. a QueryError surfacing during
	// render) is still fatal; surface it as a render failure since it
	// occurred in the render stage.
	for _, o := range outcomes {
		if o.Err != nil && !isValidateErr(o.Err) {
			return fmt.Errorf("rule %q: %w", o.Rule.Name, o.Err)
		}
	}
	return nil
}

func firstFailureDetail(r guard.Result) string {
	failures := r.Failures()
	if len(failures) == 0 {
		return "guard kernel reported no verdicts"
	}
	return fmt.Sprintf("%s (%s): %s", failures[0].ID, failures[0].Name, failures[0].Detail)
}

func sealReceipt(mode receipt.Mode, li *loadedInputs, gr guard.Result, outcomes []RuleOutcome, opts Options) receipt.Receipt {
	var perFile []receipt.FileEntry
	for _, o := range outcomes {
		if o.Err == nil {
			perFile = append(perFile, o.FileEntry)
		}
	}

	var verdicts []receipt.GuardVerdict
	for _, v := range gr.Verdicts {
		status := "pass"
		if !v.Passed {
			status = "fail"
		}
		verdicts = append(verdicts, receipt.GuardVerdict{GuardID: string(v.ID), Status: status, Detail: v.Detail})
	}

	ts := opts.Now
	if sde, ok := config.SourceDateEpoch(); ok {
		ts = sde
	}

	ontologyHash := ""
	if li.ontology != nil {
		ontologyHash = li.ontology.Hash()
	}

	r, err := receipt.Build(receipt.BuildInput{
		Mode:                 mode,
		WorkspaceFingerprint: receipt.FingerprintFromEntries(perFile),
		OntologyHash:         ontologyHash,
		RuleManifestHash:     receipt.HashBytes(li.ruleSetBytes),
		ToolVersion:          config.ToolVersion,
		PerFile:              perFile,
		GuardVerdicts:        verdicts,
		Timestamp:            ts,
	})
	if err != nil {
		// Build only fails on a JSON marshal error, which cannot happen
		// for this fixed, JSON-marshalable shape; surface a zero-value
		// receipt rather than panicking mid-run.
		opts.Logger.Error("pipeline.seal_receipt.failed", "err", err)
		return receipt.Receipt{}
	}
	return r
}

func checkUnverifiedWorkspace(opts Options) error {
	if opts.Force {
		return nil
	}
	latestPath := filepath.Join(opts.WorkspaceDir, opts.Config.ArtifactsRoot, "receipts", "latest.json")
	prior, ok := readReceipt(latestPath)
	if !ok {
		return nil
	}
	outputRoot := filepath.Join(opts.WorkspaceDir, opts.Config.ResolveOutputRoot())
	paths := make([]string, len(prior.PerFile))
	for i, e := range prior.PerFile {
		paths[i] = e.Path
	}
	current, err := receipt.ComputeWorkspaceFingerprint(outputRoot, paths)
	if err != nil {
		// Output files referenced by the prior receipt are missing or
		// unreadable: that is itself evidence of an unverified hand-edit.
		return cierrors.NewConfigError("Unverified workspace",
			fmt.Sprintf("cannot recompute the prior workspace fingerprint: %v", err),
			"run 'proofc verify' to see what changed, or pass --force to proceed anyway", err)
	}
	if current != prior.WorkspaceFingerprint {
		return cierrors.NewConfigError("Unverified workspace",
			"receipts/latest.json's recorded fingerprint does not match the current output root; an unverified hand-edit may exist",
			"run 'proofc verify' to see what changed, or pass --force to proceed anyway", nil)
	}
	return nil
}

func updateManifest(li *loadedInputs, outcomes []RuleOutcome, rcpt receipt.Receipt, opts Options) {
	manifestPath := filepath.Join(opts.WorkspaceDir, opts.Config.ManifestPath)
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		opts.Logger.Error("pipeline.manifest_load.failed", "err", err)
		return
	}
	ts := opts.Now
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		mf.Set(manifest.Entry{
			OutputPath:   o.FileEntry.Path,
			RuleName:     o.Rule.Name,
			OntologyHash: rcpt.OntologyHash,
			RuleHash:     o.FileEntry.TemplateHash + o.FileEntry.QueryHash,
			OutputHash:   o.FileEntry.OutputHash,
			Timestamp:    ts,
		})
	}
	if err := manifest.Save(mf, manifestPath); err != nil {
		opts.Logger.Error("pipeline.manifest_save.failed", "err", err)
	}
}

func computeStaleAndOrphans(li *loadedInputs, opts Options) (stale, orphans []string) {
	manifestPath := filepath.Join(opts.WorkspaceDir, opts.Config.ManifestPath)
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, nil
	}
	ontologyHash := ""
	if li.ontology != nil {
		ontologyHash = li.ontology.Hash()
	}
	current := make([]manifest.Current, 0, li.ruleSet.Len())
	for _, r := range li.ruleSet.Ordered() {
		current = append(current, manifest.Current{
			OutputPath:   filepath.Clean(r.OutputPath),
			RuleName:     r.Name,
			OntologyHash: ontologyHash,
			RuleHash:     receipt.HashBytes([]byte(li.templateText[r.Name])) + receipt.HashBytes([]byte(li.queryText[r.Name])),
		})
	}
	return mf.StaleSet(current), mf.OrphanSet(current)
}

func readReceipt(path string) (receipt.Receipt, bool) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path under configured artifacts root
	if err != nil {
		return receipt.Receipt{}, false
	}
	var r receipt.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return receipt.Receipt{}, false
	}
	return r, true
}
