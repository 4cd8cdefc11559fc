// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store holds the in-memory message log of a session.
//
// Messages arrive from two racing sources: the history fetched at
// startup and live push events. Both go through [schema.Message.Key],
// so a message delivered by both appears once. [Store.Load] keeps the
// history order and then any pushed messages the history did not yet
// contain; [Store.Append] ignores messages already present.
package store
