// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventstream maintains the push channel to the appliance
// backend and surfaces it as a sequence of typed events.
//
// The backend publishes over Socket.IO. [Client.Run] holds one logical
// connection at a time, trying WebSocket first and HTTP long-polling
// second (configurable), answers Engine.IO pings, and delivers
// [Event] values to a handler in arrival order:
//
//   - [Connected] after each successful handshake
//   - [Disconnected] once when an established connection ends
//   - [MessageSent] and [MessageReceived] with the decoded message
//   - [HistoryCleared] when any client clears the backend history
//
// Other server events (the backend greets each client with a
// "connected" event) are logged at debug and dropped.
//
// Reconnection is automatic. After a dropped connection or a failed
// dial the client waits ReconnectDelay, doubling per consecutive
// failure up to ReconnectDelayMax, and gives up with
// [ErrReconnectExhausted] after ReconnectAttempts consecutive failures.
// Consumers observe reconnection only as Connected and Disconnected
// transitions.
//
// A [Recorder] writes events to a compressed capture file and
// [ReadCapture] reads one back for offline replay.
package eventstream
