// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the lorachat command tree.
//
// One-shot commands (status, lora, crypto, send, history and the
// rest) create an api.Client from the loaded configuration, make their
// requests and print the result as text or, with --json, as JSON.
// `watch` and `chat` run a full session with the push channel; `replay`
// works offline on a capture written by `watch --record`.
package commands
