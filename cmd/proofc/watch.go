// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	"github.com/proofc/proofc/internal/config"
	cierrors "github.com/proofc/proofc/internal/errors"
	"github.com/proofc/proofc/internal/metrics"
	"github.com/proofc/proofc/internal/pipeline"
	"github.com/proofc/proofc/internal/rules"
)

const watchDebounce = 2 * time.Second

// runWatch handles `proofc watch`: it tracks the ontology, the rule set,
// and every query/template file a rule references, and re-runs a
// preview compile whenever one of them changes.
func runWatch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: proofc watch

Watches the ontology, rule set, and every query/template file a rule
references, and re-runs a preview compile on every change.
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	workspaceDir, cfg, err := loadWorkspace(configPath)
	if err != nil {
		cierrors.FatalError(err, globals.JSON)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[proofc watch] fsnotify failed: %v\n", err)
		os.Exit(1)
	}
	defer watcher.Close()

	watched, err := addWatchTargets(watcher, workspaceDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[proofc watch] %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "[proofc watch] watching %d file(s)\n", watched)

	runPreview(workspaceDir, cfg)

	var debounceTimer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "[proofc watch] event: %s op=%s\n", event.Name, event.Op)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(watchDebounce)
			timerCh = debounceTimer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "[proofc watch] fsnotify error: %v\n", err)
		case <-timerCh:
			timerCh = nil
			fmt.Fprintf(os.Stderr, "[proofc watch] debounce fired, re-running preview\n")
			runPreview(workspaceDir, cfg)

			// A rule set edit may add or remove query/template files; the
			// watch list is rebuilt after every run so newly referenced
			// files are tracked without restarting the command.
			drainWatches(watcher)
			if n, err := addWatchTargets(watcher, workspaceDir, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "[proofc watch] %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "[proofc watch] watching %d file(s)\n", n)
			}
		}
	}
}

func drainWatches(watcher *fsnotify.Watcher) {
	for _, name := range watcher.WatchList() {
		_ = watcher.Remove(name)
	}
}

// addWatchTargets registers the ontology, rule set, and every enabled
// rule's query/template file with watcher. A missing rule set (e.g. mid
// edit) is not fatal: the ontology and rule-set file are still watched.
func addWatchTargets(watcher *fsnotify.Watcher, workspaceDir string, cfg *config.Config) (int, error) {
	count := 0
	add := func(path string) {
		if err := watcher.Add(path); err == nil {
			count++
		}
	}

	add(filepath.Join(workspaceDir, cfg.OntologyPath))
	ruleSetPath := filepath.Join(workspaceDir, cfg.RuleSetPath)
	add(ruleSetPath)

	ruleSet, err := rules.Load(ruleSetPath, filepath.Join(workspaceDir, cfg.ResolveOutputRoot()))
	if err != nil {
		return count, nil //nolint:nilerr // the rule set may be mid-edit; ontology/rule-set files are still watched
	}
	for _, r := range ruleSet.Ordered() {
		add(ruleSet.QueryPath(r))
		add(ruleSet.TemplatePath(r))
	}
	return count, nil
}

func runPreview(workspaceDir string, cfg *config.Config) {
	res, err := pipeline.Run(context.Background(), pipeline.Options{
		WorkspaceDir: workspaceDir,
		Config:       cfg,
		Apply:        false,
		Now:          time.Now(),
		Metrics:      metrics.NoopSink{},
		Progress:     pipeline.NoopProgress{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[proofc watch] preview failed: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "[proofc watch] preview complete: %d rule(s), state=%s\n", len(res.RuleOutcomes), res.FinalState)
}
