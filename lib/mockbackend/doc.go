// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mockbackend is an in-memory stand-in for the appliance
// backend: the REST API under /api/ and the Socket.IO push channel
// under /socket.io/, with the appliance's validation rules and
// history numbering.
//
// The radio is a loopback. A message sent while both modules are
// connected comes back as a received message after EchoDelay, with a
// fixed signal reading. Nothing is encrypted; key material is kept so
// that init, export, import and fingerprint behave consistently.
//
// [Backend.FailSends] makes the next sends fail with a server error,
// which exercises client retry policies. cmd/lorachat-mock serves a
// Backend over TCP; tests mount [Backend.Handler] on httptest.
package mockbackend
