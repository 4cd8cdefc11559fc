// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the REST client for the radio appliance backend.
//
// [Client.Do] is the single request path: it encodes a JSON body,
// applies the fixed [RequestTimeout], tags the request with an
// X-Request-ID, and normalizes every failure into an [*Error] of one
// of three kinds:
//
//   - [KindServerError]: the backend answered with a non-2xx status.
//     The message is the body's "error" field, else its "message"
//     field, else "server error".
//   - [KindUnreachable]: no response arrived (connection refused,
//     timeout, cancelled context).
//   - [KindClientConfig]: the request could not be built.
//
// Error text is meant for display and is returned unchanged by the
// typed endpoint methods; the method, path and status are available on
// the error value. The client never retries. Retrying a send is the
// delivery package's decision, and no other request is retried at all.
package api
