// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"strings"

	"github.com/bureau-foundation/lorachat/lib/schema"
)

// ConnectionStatus is one consistent view of the appliance. The zero
// value (everything false) is the state before any input arrives.
type ConnectionStatus struct {
	// ServerConnected is true while the push channel is connected.
	ServerConnected bool `json:"server_connected"`

	LoRaSenderConnected   bool `json:"lora_sender_connected"`
	LoRaReceiverConnected bool `json:"lora_receiver_connected"`
	CryptoInitialized     bool `json:"crypto_initialized"`
}

// FullyConnected reports whether both radio modules and the crypto
// engine are ready, which is the precondition for sending.
func (s ConnectionStatus) FullyConnected() bool {
	return s.LoRaSenderConnected && s.LoRaReceiverConnected && s.CryptoInitialized
}

// String renders the status as "server=up sender=down ...".
func (s ConnectionStatus) String() string {
	var builder strings.Builder
	for index, field := range []struct {
		name string
		up   bool
	}{
		{"server", s.ServerConnected},
		{"sender", s.LoRaSenderConnected},
		{"receiver", s.LoRaReceiverConnected},
		{"crypto", s.CryptoInitialized},
	} {
		if index > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(field.name)
		if field.up {
			builder.WriteString("=up")
		} else {
			builder.WriteString("=down")
		}
	}
	return builder.String()
}

// Update is a partial change produced by one source. The set is
// closed: PushConnected, PushDisconnected, HealthReport and
// HealthUnknown.
type Update interface {
	apply(ConnectionStatus) ConnectionStatus
}

// PushConnected records that the push channel connected.
type PushConnected struct{}

// PushDisconnected records that the push channel dropped. It clears
// every field.
type PushDisconnected struct{}

// HealthReport carries the fields of a successful health poll.
type HealthReport struct {
	LoRaSenderConnected   bool
	LoRaReceiverConnected bool
	CryptoInitialized     bool
}

// HealthUnknown records a failed health poll: the fields it owns are
// treated as down.
type HealthUnknown struct{}

// HealthReportFrom extracts the reconciled fields of a health body.
func HealthReportFrom(health *schema.Health) HealthReport {
	return HealthReport{
		LoRaSenderConnected:   health.LoRaSenderConnected,
		LoRaReceiverConnected: health.LoRaReceiverConnected,
		CryptoInitialized:     health.CryptoInitialized,
	}
}

func (PushConnected) apply(prev ConnectionStatus) ConnectionStatus {
	prev.ServerConnected = true
	return prev
}

func (PushDisconnected) apply(ConnectionStatus) ConnectionStatus {
	return ConnectionStatus{}
}

func (report HealthReport) apply(prev ConnectionStatus) ConnectionStatus {
	prev.LoRaSenderConnected = report.LoRaSenderConnected
	prev.LoRaReceiverConnected = report.LoRaReceiverConnected
	prev.CryptoInitialized = report.CryptoInitialized
	return prev
}

func (HealthUnknown) apply(prev ConnectionStatus) ConnectionStatus {
	return HealthReport{}.apply(prev)
}

// Reduce returns prev with update applied. Fields the update does not
// own are copied from prev.
func Reduce(prev ConnectionStatus, update Update) ConnectionStatus {
	return update.apply(prev)
}
