// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Direction records whether a message left or arrived at this
// appliance.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Priority is the delivery urgency chosen by the sender. It selects
// the client retry policy and is carried in message metadata; it has
// no effect on the radio layer.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority in display order.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh}

// ParsePriority validates s. The empty string maps to normal, the
// backend's own default.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q (want low, normal or high)", s)
}

// Next returns the priority after p in [Priorities], wrapping around.
func (p Priority) Next() Priority {
	for i, candidate := range Priorities {
		if candidate == p {
			return Priorities[(i+1)%len(Priorities)]
		}
	}
	return PriorityNormal
}

// Metadata is the authenticated envelope the backend encrypts along
// with the message text.
type Metadata struct {
	Sender   string   `json:"sender,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	// Timestamp is Unix seconds at the sending appliance.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// SignalInfo is the radio link quality reported by the receiver.
type SignalInfo struct {
	RSSI      float64 `json:"rssi"`
	SNR       float64 `json:"snr"`
	Frequency float64 `json:"frequency,omitempty"`
}

// Message is one entry of the backend message history. Values are
// immutable once received.
type Message struct {
	// ID is the backend's position in its history, starting at 1. It
	// restarts after a history clear, so it is not an identity on its
	// own.
	ID        int64     `json:"id"`
	Text      string    `json:"message"`
	Direction Direction `json:"direction"`
	// Timestamp is kept exactly as the backend formats it (local time
	// without zone). Use [Message.Time] for a parsed value.
	Timestamp     string      `json:"timestamp"`
	Metadata      *Metadata   `json:"metadata,omitempty"`
	EncryptedSize int         `json:"encrypted_size,omitempty"`
	SignalInfo    *SignalInfo `json:"signal_info,omitempty"`
}

// Priority returns the priority recorded in the metadata, or the
// empty string when there is none.
func (m Message) Priority() Priority {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.Priority
}

// timestampLayouts are tried in order by [Message.Time].
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// Time parses Timestamp. Zone-less timestamps are interpreted in the
// local zone, matching the backend's own clock.
func (m Message) Time() (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, m.Timestamp, time.Local); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// MessageKey identifies one backend history entry.
type MessageKey [32]byte

// String returns the first 8 bytes in hex, enough to tell messages
// apart in logs.
func (k MessageKey) String() string {
	return hex.EncodeToString(k[:8])
}

// messageKeyDomain is the BLAKE3 key for message identities: the
// ASCII domain name, zero-padded to 32 bytes.
var messageKeyDomain = [32]byte{
	'l', 'o', 'r', 'a', 'c', 'h', 'a', 't', '.', 'm', 'e', 's', 's', 'a', 'g', 'e',
	'.', 'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Key derives the identity of m from its id, direction, timestamp and
// text. The id alone repeats after a history clear and the text alone
// repeats whenever a user sends the same words twice; together with
// the microsecond timestamp they are unique. Fields are length
// prefixed so that no two distinct tuples hash the same input.
func (m Message) Key() MessageKey {
	hasher, err := blake3.NewKeyed(messageKeyDomain[:])
	if err != nil {
		panic("schema: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var buffer [binary.MaxVarintLen64]byte
	hasher.Write(buffer[:binary.PutVarint(buffer[:], m.ID)])
	for _, field := range []string{string(m.Direction), m.Timestamp, m.Text} {
		hasher.Write(buffer[:binary.PutUvarint(buffer[:], uint64(len(field)))])
		hasher.Write([]byte(field))
	}
	var key MessageKey
	copy(key[:], hasher.Sum(nil))
	return key
}
