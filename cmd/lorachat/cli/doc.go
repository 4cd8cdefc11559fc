// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the lorachat
// client.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory and a Run
// function. Commands are assembled into a tree in
// cmd/lorachat/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing and help output.
//
// Parameters are declared as tagged structs and bound with
// [FlagsFromParams]. Embedding [JSONOutput] adds a --json flag.
//
// When a user types an unknown subcommand or flag, the closest known
// name within an edit distance of 3 is suggested.
package cli
