// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

// ExitError signals a non-zero exit for an outcome the command has
// already reported, such as `status` finding the appliance not ready.
// The entrypoint exits with Code and prints Message only when set.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
