// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package status merges the two sources of truth about the appliance
// into one [ConnectionStatus].
//
// The push channel owns ServerConnected. Health polls own the radio
// and crypto fields. Each source produces an [Update], and [Reduce]
// applies it to the previous snapshot, copying every field the update
// does not own. A push disconnect is the one update that touches
// fields it does not own: with the server gone, the radio and crypto
// state is unknowable, so it clears them.
//
// [Reconciler] owns the live status. It applies updates under one
// lock as a single read-modify-write, runs the health and stats
// pollers on independent tickers, and discards health results from
// polls that started before the most recent disconnect.
package status
