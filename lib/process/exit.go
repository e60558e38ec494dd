// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exit is replaced in tests.
var (
	osExit = os.Exit
	exit   = osExit
)

// exitCoder is implemented by errors that carry their own exit status
// and whose command already printed its output.
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err and exits. An error carrying an exit code exits
// with that code silently; anything else prints "error: err" and
// exits 1.
func Fatal(err error) {
	exit(report(os.Stderr, err))
}

func report(w io.Writer, err error) int {
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
