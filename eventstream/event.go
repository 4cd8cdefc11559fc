// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Type identifies an event.
type Type int

const (
	Connected Type = iota + 1
	Disconnected
	MessageSent
	MessageReceived
	HistoryCleared
)

// Wire names of the push events. The lifecycle names match the
// Socket.IO reserved connect and disconnect events.
const (
	nameConnect         = "connect"
	nameDisconnect      = "disconnect"
	nameMessageSent     = "message_sent"
	nameMessageReceived = "message_received"
	nameHistoryCleared  = "history_cleared"
)

var typeNames = map[Type]string{
	Connected:       nameConnect,
	Disconnected:    nameDisconnect,
	MessageSent:     nameMessageSent,
	MessageReceived: nameMessageReceived,
	HistoryCleared:  nameHistoryCleared,
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// MarshalText encodes the wire name.
func (t Type) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("eventstream: unknown event type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a wire name.
func (t *Type) UnmarshalText(text []byte) error {
	for candidate, name := range typeNames {
		if name == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("eventstream: unknown event name %q", text)
}

// Event is one item of the push stream.
type Event struct {
	Type Type `json:"type"`
	// At is when the client observed the event.
	At time.Time `json:"at"`
	// Message is set for MessageSent and MessageReceived.
	Message *schema.Message `json:"message,omitempty"`
	// Transport and SID describe the connection for Connected.
	Transport string `json:"transport,omitempty"`
	SID       string `json:"sid,omitempty"`
	// Reason describes why the connection ended, for Disconnected.
	Reason string `json:"reason,omitempty"`
}

// Handler receives events. It runs on the stream's goroutine and
// should not block for long: the connection is not read while it runs.
type Handler func(Event)
