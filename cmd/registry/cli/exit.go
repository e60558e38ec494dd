// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError ends the process with Code without printing anything
// more. The command has already written its own output, as "jobs run
// --once" does when jobs failed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is checked for by main.
func (e *ExitError) ExitCode() int {
	return e.Code
}
