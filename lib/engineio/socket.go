// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engineio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SocketType is a Socket.IO packet type, carried as the first
// character of an Engine.IO message.
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
	SocketBinaryEvent  SocketType = '5'
	SocketBinaryAck    SocketType = '6'
)

// SocketPacket is one Socket.IO packet.
type SocketPacket struct {
	Type SocketType
	// Namespace is empty for the default namespace "/".
	Namespace string
	// HasAck is set when the sender wants an acknowledgement with
	// id AckID.
	HasAck bool
	AckID  int
	Data   json.RawMessage
}

// Encode returns the Socket.IO text form, to be carried in a [Message]
// packet.
func (p SocketPacket) Encode() string {
	var builder strings.Builder
	builder.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		builder.WriteString(p.Namespace)
		builder.WriteByte(',')
	}
	if p.HasAck {
		builder.WriteString(strconv.Itoa(p.AckID))
	}
	builder.Write(p.Data)
	return builder.String()
}

// Packet wraps p in an Engine.IO message packet.
func (p SocketPacket) Packet() Packet {
	return Packet{Type: Message, Data: p.Encode()}
}

// DecodeSocket parses the data of an Engine.IO message packet.
func DecodeSocket(text string) (SocketPacket, error) {
	if text == "" {
		return SocketPacket{}, errors.New("engineio: empty socket packet")
	}
	packet := SocketPacket{Type: SocketType(text[0])}
	if packet.Type < SocketConnect || packet.Type > SocketBinaryAck {
		return SocketPacket{}, fmt.Errorf("engineio: unknown socket packet type %q", text[0])
	}
	if packet.Type == SocketBinaryEvent || packet.Type == SocketBinaryAck {
		return SocketPacket{}, errors.New("engineio: binary socket packets are not supported")
	}
	rest := text[1:]

	if strings.HasPrefix(rest, "/") {
		namespace, remainder, found := strings.Cut(rest, ",")
		if !found {
			// A namespace with no payload, e.g. "0/admin".
			namespace, remainder = rest, ""
		}
		packet.Namespace = namespace
		rest = remainder
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return SocketPacket{}, fmt.Errorf("engineio: invalid ack id: %w", err)
		}
		packet.HasAck = true
		packet.AckID = id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return SocketPacket{}, fmt.Errorf("engineio: socket packet data is not JSON: %.40q", rest)
		}
		packet.Data = json.RawMessage(rest)
	}
	return packet, nil
}

// NewEvent builds an EVENT packet for the default namespace.
func NewEvent(name string, args ...any) (SocketPacket, error) {
	array := make([]any, 0, len(args)+1)
	array = append(array, name)
	array = append(array, args...)
	data, err := json.Marshal(array)
	if err != nil {
		return SocketPacket{}, fmt.Errorf("engineio: encoding event %s: %w", name, err)
	}
	return SocketPacket{Type: SocketEvent, Data: data}, nil
}

// Event splits an EVENT packet's data into the event name and its
// arguments.
func (p SocketPacket) Event() (string, []json.RawMessage, error) {
	if p.Type != SocketEvent {
		return "", nil, fmt.Errorf("engineio: not an event packet (type %q)", byte(p.Type))
	}
	var array []json.RawMessage
	if err := json.Unmarshal(p.Data, &array); err != nil {
		return "", nil, fmt.Errorf("engineio: event data is not an array: %w", err)
	}
	if len(array) == 0 {
		return "", nil, errors.New("engineio: event has no name")
	}
	var name string
	if err := json.Unmarshal(array[0], &name); err != nil {
		return "", nil, fmt.Errorf("engineio: event name is not a string: %w", err)
	}
	return name, array[1:], nil
}

// ConnectInfo is the data of a CONNECT acknowledgement.
type ConnectInfo struct {
	SID string `json:"sid"`
}

// ConnectErrorInfo is the data of a CONNECT_ERROR packet.
type ConnectErrorInfo struct {
	Message string `json:"message"`
}
