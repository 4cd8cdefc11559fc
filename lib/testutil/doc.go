// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for lorachat packages.
//
// [RequireReceive], [RequireClosed], and [Eventually] encapsulate the
// timeout safety valve (select with a time.After fallback) so that
// individual tests do not need direct time.After calls. Timers under
// test run on lib/clock's fake clock; these wall-clock timeouts only
// stop a broken test from hanging.
//
// [UniqueID] generates monotonically increasing identifiers, used for
// message texts that must be told apart across a test backend.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
