// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engineio encodes and decodes the Engine.IO v4 and Socket.IO
// v5 text packets spoken by the appliance's push channel.
//
// Engine.IO is the transport layer: a connection opens with an [Open]
// packet carrying the session id and ping timing, the server sends
// [Ping] packets that the client answers with [Pong], and application
// data travels in [Message] packets. Over WebSocket each frame holds
// one packet; over HTTP long-polling a request or response body holds
// several, joined by [RecordSeparator].
//
// Socket.IO rides inside Message packets. A client joins the default
// namespace by sending CONNECT ("40" on the wire) and the server
// acknowledges with CONNECT carrying the Socket.IO session id. Server
// events arrive as EVENT packets whose data is a JSON array of the
// event name followed by its arguments: 42["message_sent",{...}].
//
// Binary attachments are not supported; the backend never sends them.
//
// This package is shared by the event stream client and the mock
// backend and depends on no other lorachat packages.
package engineio
