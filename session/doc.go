// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session wires the client components into one running
// session against an appliance: the push channel feeds the status
// reconciler and the message store, the reconciler polls health and
// stats, and commands go through the transport client (sends through
// the delivery engine).
//
// A Session is created with [New], started once with [Session.Start],
// and torn down with [Session.Close], which cancels every goroutine it
// started and waits for them. State-changing commands refresh health
// immediately rather than writing optimistic status.
package session
