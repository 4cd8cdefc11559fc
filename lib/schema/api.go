// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// Ack is the body of endpoints that only report a human-readable
// outcome.
type Ack struct {
	Message string `json:"message"`
}

// Health is the body of GET /api/health.
type Health struct {
	Status                string `json:"status"`
	Timestamp             string `json:"timestamp,omitempty"`
	LoRaSenderConnected   bool   `json:"lora_sender_connected"`
	LoRaReceiverConnected bool   `json:"lora_receiver_connected"`
	CryptoInitialized     bool   `json:"crypto_initialized"`
}

// Port is one serial port visible to the backend.
type Port struct {
	Port string `json:"port"`
	Name string `json:"name,omitempty"`
	HWID string `json:"hwid,omitempty"`
}

// PortList is the body of GET /api/ports.
type PortList struct {
	Ports []Port `json:"ports"`
}

// ConnectRequest is the body of POST /api/lora/connect.
type ConnectRequest struct {
	SenderPort   string `json:"sender_port"`
	ReceiverPort string `json:"receiver_port"`
	Baudrate     int    `json:"baudrate"`
}

// ConnectResult is the response to POST /api/lora/connect.
type ConnectResult struct {
	Message      string `json:"message"`
	SenderPort   string `json:"sender_port"`
	ReceiverPort string `json:"receiver_port"`
}

// CryptoInitRequest is the body of POST /api/crypto/init. An empty
// password asks the backend to generate one.
type CryptoInitRequest struct {
	Password string `json:"password"`
}

// CryptoInitResult is the response to POST /api/crypto/init.
// GeneratedPassword is set only when the backend chose the password.
type CryptoInitResult struct {
	Message           string  `json:"message"`
	KeyFingerprint    string  `json:"key_fingerprint"`
	GeneratedPassword *string `json:"generated_password"`
}

// ExportedKey is the response to GET /api/crypto/export.
type ExportedKey struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
}

// ImportKeyRequest is the body of POST /api/crypto/import. Both field
// names carry the same base64 key: deployed backends read `key`, the
// documented contract names `key_b64`.
type ImportKeyRequest struct {
	KeyB64 string `json:"key_b64"`
	Key    string `json:"key"`
}

// ImportKeyResult is the response to POST /api/crypto/import.
type ImportKeyResult struct {
	Message     string `json:"message"`
	Fingerprint string `json:"fingerprint"`
}

// Fingerprint is the response to GET /api/crypto/fingerprint.
type Fingerprint struct {
	Fingerprint string `json:"fingerprint"`
}

// History is the body of GET /api/messages/history.
type History struct {
	Messages []Message `json:"messages"`
}

// SendRequest is the body of POST /api/messages/send.
type SendRequest struct {
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

// SendResult is the response to a successful send.
type SendResult struct {
	Message       string `json:"message"`
	EncryptedSize int    `json:"encrypted_size"`
}

// LinkStatus is the backend's own view of the radio and crypto state
// embedded in [Stats].
type LinkStatus struct {
	SenderConnected   bool `json:"sender_connected"`
	ReceiverConnected bool `json:"receiver_connected"`
	CryptoInitialized bool `json:"crypto_initialized"`
}

// Stats is the body of GET /api/messages/stats. FetchedAt is set by
// the client when the counters arrive.
type Stats struct {
	TotalMessages    int        `json:"total_messages"`
	SentMessages     int        `json:"sent_messages"`
	ReceivedMessages int        `json:"received_messages"`
	ErrorMessages    int        `json:"error_messages,omitempty"`
	ConnectionStatus LinkStatus `json:"connection_status"`
	FetchedAt        time.Time  `json:"-"`
}

// SystemInfo is the body of GET /api/system/info. Its shape varies
// between backend builds, so it is kept as a generic document.
type SystemInfo map[string]any
