// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Lorachat is the command-line client for the LoRa secure messaging
// appliance: one-shot commands for the radio link, the encryption key
// and the message history, a push channel watcher with capture and
// replay, and an interactive chat view.
//
// Run 'lorachat --help' for the command list.
package main
