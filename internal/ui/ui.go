// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders human-facing CLI output: headers, labels, and
// counts, colorized when stdout is a terminal and plain otherwise.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	enabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgWhite, color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	warnColor   = color.New(color.FgYellow, color.Bold)
	errColor    = color.New(color.FgRed, color.Bold)
	okColor     = color.New(color.FgGreen, color.Bold)
)

func init() {
	if !enabled {
		color.NoColor = true
	}
}

// InitColors applies a --no-color/NO_COLOR override on top of the
// terminal auto-detection performed at package init.
func InitColors(disable bool) {
	if disable {
		color.NoColor = true
	}
}

// Header prints a bold section title on its own line.
func Header(title string) {
	headerColor.Println(title)
}

// SubHeader prints a secondary section title.
func SubHeader(title string) {
	labelColor.Println(title)
}

// Label formats a field label for use inline with a value.
func Label(s string) string {
	return labelColor.Sprint(s)
}

// DimText formats low-priority text (paths, timestamps).
func DimText(s string) string {
	return dimColor.Sprint(s)
}

// CountText formats an integer count, dimmed when zero.
func CountText(n int) string {
	if n == 0 {
		return dimColor.Sprint("0")
	}
	return fmt.Sprintf("%d", n)
}

// Info prints an informational line to stdout.
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// Warning prints a yellow warning line to stderr.
func Warning(s string) {
	warnColor.Fprintln(os.Stderr, s)
}

// Warningf prints a formatted yellow warning line to stderr.
func Warningf(format string, args ...any) {
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

// Error prints a red error line to stderr.
func Error(s string) {
	errColor.Fprintln(os.Stderr, s)
}

// OK prints a green success line to stdout.
func OK(s string) {
	okColor.Println(s)
}

// OKf prints a formatted green success line to stdout.
func OKf(format string, args ...any) {
	okColor.Printf(format+"\n", args...)
}

// Enabled reports whether color output is active (stdout is a TTY).
func Enabled() bool {
	return enabled
}
