// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"path/filepath"
	"testing"

	"github.com/proofc/proofc/internal/config"
)

func TestDefaultReceiptPath(t *testing.T) {
	cfg := config.Default()
	cfg.ArtifactsRoot = ".proofc/artifacts"

	got := defaultReceiptPath("/repo", cfg)
	want := filepath.Join("/repo", ".proofc", "artifacts", "receipts", "latest.json")
	if got != want {
		t.Fatalf("defaultReceiptPath() = %q, want %q", got, want)
	}
}

func TestResolveReceiptArg_EmptyUsesDefault(t *testing.T) {
	cfg := config.Default()
	cfg.ArtifactsRoot = ".proofc/artifacts"

	got, err := resolveReceiptArg("/repo", cfg, "")
	if err != nil {
		t.Fatalf("resolveReceiptArg() error = %v", err)
	}
	want := defaultReceiptPath("/repo", cfg)
	if got != want {
		t.Fatalf("resolveReceiptArg() = %q, want %q", got, want)
	}
}

func TestResolveReceiptArg_AbsolutePassesThrough(t *testing.T) {
	cfg := config.Default()
	got, err := resolveReceiptArg("/repo", cfg, "/tmp/receipt.json")
	if err != nil {
		t.Fatalf("resolveReceiptArg() error = %v", err)
	}
	if got != "/tmp/receipt.json" {
		t.Fatalf("resolveReceiptArg() = %q, want %q", got, "/tmp/receipt.json")
	}
}

func TestResolveReceiptArg_RelativeJoinsCwd(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	t.Chdir(dir)

	got, err := resolveReceiptArg("/repo", cfg, "receipt.json")
	if err != nil {
		t.Fatalf("resolveReceiptArg() error = %v", err)
	}
	want := filepath.Join(dir, "receipt.json")
	if got != want {
		t.Fatalf("resolveReceiptArg() = %q, want %q", got, want)
	}
}

func TestDisplayPath_RelativeInsideWorkspace(t *testing.T) {
	got := displayPath("/repo", "/repo/.proofc/artifacts/receipts/latest.json")
	want := filepath.Join(".proofc", "artifacts", "receipts", "latest.json")
	if got != want {
		t.Fatalf("displayPath() = %q, want %q", got, want)
	}
}

func TestDisplayPath_OutsideWorkspaceFallsBackToAbsolute(t *testing.T) {
	got := displayPath("/repo", "/tmp/other/receipt.json")
	if got != "/tmp/other/receipt.json" {
		t.Fatalf("displayPath() = %q, want unchanged absolute path", got)
	}
}
