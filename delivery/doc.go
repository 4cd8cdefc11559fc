// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery sends a chat message under a priority-keyed retry
// policy and records every step in an [AttemptLog].
//
// Normal and high priority messages get exactly one attempt; the
// transport error is returned unchanged. Low priority messages get up
// to MaxRetries attempts with a linear backoff (RetryDelay after the
// first failure, twice that after the second, and so on) and fail with
// [ErrPolicyExhausted] once every attempt has failed.
//
// An [Engine] runs one send at a time. A second concurrent [Engine.Send]
// fails immediately with [ErrBusy] rather than queueing.
package delivery
