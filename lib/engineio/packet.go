// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engineio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ProtocolVersion is the Engine.IO protocol revision, sent as the EIO
// query parameter.
const ProtocolVersion = "4"

// Path is the default endpoint path on the server.
const Path = "/socket.io/"

// RecordSeparator joins packets in a long-polling payload.
const RecordSeparator = "\x1e"

// Transport names as they appear in the transport query parameter.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// PacketType is an Engine.IO packet type. The wire form is the ASCII
// digit.
type PacketType byte

const (
	Open    PacketType = '0'
	Close   PacketType = '1'
	Ping    PacketType = '2'
	Pong    PacketType = '3'
	Message PacketType = '4'
	Upgrade PacketType = '5'
	Noop    PacketType = '6'
)

func (t PacketType) String() string {
	switch t {
	case Open:
		return "open"
	case Close:
		return "close"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case Message:
		return "message"
	case Upgrade:
		return "upgrade"
	case Noop:
		return "noop"
	default:
		return fmt.Sprintf("unknown(%q)", byte(t))
	}
}

// Packet is one Engine.IO packet.
type Packet struct {
	Type PacketType
	Data string
}

// Encode returns the text wire form.
func (p Packet) Encode() string {
	return string(p.Type) + p.Data
}

// ErrEmptyPacket is returned when decoding zero bytes.
var ErrEmptyPacket = errors.New("engineio: empty packet")

// Decode parses one text packet.
func Decode(text string) (Packet, error) {
	if text == "" {
		return Packet{}, ErrEmptyPacket
	}
	packetType := PacketType(text[0])
	if packetType < Open || packetType > Noop {
		if text[0] == 'b' {
			return Packet{}, errors.New("engineio: binary packets are not supported")
		}
		return Packet{}, fmt.Errorf("engineio: unknown packet type %q", text[0])
	}
	return Packet{Type: packetType, Data: text[1:]}, nil
}

// EncodePayload joins packets for a long-polling body.
func EncodePayload(packets []Packet) string {
	encoded := make([]string, len(packets))
	for index, packet := range packets {
		encoded[index] = packet.Encode()
	}
	return strings.Join(encoded, RecordSeparator)
}

// DecodePayload splits a long-polling body into packets.
func DecodePayload(body string) ([]Packet, error) {
	if body == "" {
		return nil, ErrEmptyPacket
	}
	parts := strings.Split(body, RecordSeparator)
	packets := make([]Packet, 0, len(parts))
	for _, part := range parts {
		packet, err := Decode(part)
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

// OpenInfo is the JSON body of an [Open] packet.
type OpenInfo struct {
	SID      string   `json:"sid"`
	Upgrades []string `json:"upgrades"`
	// PingInterval and PingTimeout are in milliseconds.
	PingInterval int `json:"pingInterval"`
	PingTimeout  int `json:"pingTimeout"`
	MaxPayload   int `json:"maxPayload,omitempty"`
}

// ParseOpen decodes the body of an Open packet.
func ParseOpen(packet Packet) (*OpenInfo, error) {
	if packet.Type != Open {
		return nil, fmt.Errorf("engineio: expected open packet, got %s", packet.Type)
	}
	var info OpenInfo
	if err := json.Unmarshal([]byte(packet.Data), &info); err != nil {
		return nil, fmt.Errorf("engineio: invalid open packet: %w", err)
	}
	if info.SID == "" {
		return nil, errors.New("engineio: open packet has no sid")
	}
	return &info, nil
}

// EncodeOpen returns an Open packet for info.
func EncodeOpen(info OpenInfo) Packet {
	data, _ := json.Marshal(info)
	return Packet{Type: Open, Data: string(data)}
}

// PingDeadline is how long a client may go without hearing from the
// server before treating the connection as dead.
func (info OpenInfo) PingDeadline() time.Duration {
	return time.Duration(info.PingInterval+info.PingTimeout) * time.Millisecond
}

// Query returns the query parameters for a request on transport. sid
// is empty for the initial handshake.
func Query(transport, sid string) url.Values {
	query := url.Values{}
	query.Set("EIO", ProtocolVersion)
	query.Set("transport", transport)
	if sid != "" {
		query.Set("sid", sid)
	}
	return query
}
