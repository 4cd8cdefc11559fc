// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the JSON wire types exchanged with the radio
// appliance backend: chat messages as they appear in history and push
// events, and the request and response bodies of the REST API.
//
// Field names and JSON tags follow the backend exactly. Types here
// carry no behavior beyond validation and identity: [Message.Key]
// derives a stable identity for a backend history entry so that the
// copy delivered by a push event and the copy returned by a history
// fetch can be recognized as the same message.
//
// This package depends on no other lorachat packages.
package schema
