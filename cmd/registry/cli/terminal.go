// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotTerminal is returned by Confirm when stdin is not a terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal; pass --yes to skip the confirmation")

// NewCommandLogger returns the logger for command output: text on a
// terminal, JSON when stderr is redirected so scripts and log
// collectors can parse it.
func NewCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

// Confirm prints question to stderr and reads a yes/no answer from
// the terminal on stdin.
func Confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, ErrNotTerminal
	}
	return ConfirmFrom(os.Stdin, os.Stderr, question)
}

// ConfirmFrom is Confirm over explicit streams. Only "y" and "yes"
// accept, case-insensitively.
func ConfirmFrom(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
