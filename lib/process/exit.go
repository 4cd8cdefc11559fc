// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for lorachat
// binaries: reporting an error to stderr when the structured logger
// may not exist yet, and exiting with the right status.
package process

import (
	"errors"
	"fmt"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status.
type exitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// Exit terminates the process for err. A nil err exits 0. An error
// carrying an exit code exits with that code, printing its message
// only when it has one. Anything else goes through [Fatal].
func Exit(err error) {
	if err == nil {
		os.Exit(0)
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		if message := err.Error(); message != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", message)
		}
		os.Exit(coded.ExitCode())
	}
	Fatal(err)
}
