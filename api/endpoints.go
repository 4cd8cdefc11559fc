// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Backend REST paths.
const (
	PathHealth         = "/api/health"
	PathPorts          = "/api/ports"
	PathLoRaConnect    = "/api/lora/connect"
	PathLoRaDisconnect = "/api/lora/disconnect"
	PathLoRaSignal     = "/api/lora/signal"
	PathCryptoInit     = "/api/crypto/init"
	PathCryptoExport   = "/api/crypto/export"
	PathCryptoImport   = "/api/crypto/import"
	PathFingerprint    = "/api/crypto/fingerprint"
	PathHistory        = "/api/messages/history"
	PathSend           = "/api/messages/send"
	PathStats          = "/api/messages/stats"
	PathSystemInfo     = "/api/system/info"
	PathSystemRestart  = "/api/system/restart"
)

// Health returns the radio and crypto readiness of the backend.
func (c *Client) Health(ctx context.Context) (*schema.Health, error) {
	var health schema.Health
	if err := c.Do(ctx, http.MethodGet, PathHealth, nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// PingResult is the outcome of a [Client.Ping].
type PingResult struct {
	Health  *schema.Health
	Latency time.Duration
}

// Ping fetches health and measures the round trip.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	start := c.clock.Now()
	health, err := c.Health(ctx)
	if err != nil {
		return nil, err
	}
	return &PingResult{Health: health, Latency: clock.Since(c.clock, start)}, nil
}

// Ports lists the serial ports visible to the backend.
func (c *Client) Ports(ctx context.Context) ([]schema.Port, error) {
	var list schema.PortList
	if err := c.Do(ctx, http.MethodGet, PathPorts, nil, &list); err != nil {
		return nil, err
	}
	return list.Ports, nil
}

// ConnectLoRa opens the sender and receiver modules.
func (c *Client) ConnectLoRa(ctx context.Context, request schema.ConnectRequest) (*schema.ConnectResult, error) {
	var result schema.ConnectResult
	if err := c.Do(ctx, http.MethodPost, PathLoRaConnect, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DisconnectLoRa resets and closes both modules.
func (c *Client) DisconnectLoRa(ctx context.Context) (*schema.Ack, error) {
	var ack schema.Ack
	if err := c.Do(ctx, http.MethodPost, PathLoRaDisconnect, nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Signal returns the receiver's current link quality.
func (c *Client) Signal(ctx context.Context) (*schema.SignalInfo, error) {
	var signal schema.SignalInfo
	if err := c.Do(ctx, http.MethodGet, PathLoRaSignal, nil, &signal); err != nil {
		return nil, err
	}
	return &signal, nil
}

// InitCrypto derives the message key from password. An empty password
// makes the backend generate one and return it in the result.
func (c *Client) InitCrypto(ctx context.Context, password string) (*schema.CryptoInitResult, error) {
	var result schema.CryptoInitResult
	if err := c.Do(ctx, http.MethodPost, PathCryptoInit, schema.CryptoInitRequest{Password: password}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportKey returns the current key in base64.
func (c *Client) ExportKey(ctx context.Context) (*schema.ExportedKey, error) {
	var key schema.ExportedKey
	if err := c.Do(ctx, http.MethodGet, PathCryptoExport, nil, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ImportKey replaces the backend key with keyB64.
func (c *Client) ImportKey(ctx context.Context, keyB64 string) (*schema.ImportKeyResult, error) {
	request := schema.ImportKeyRequest{KeyB64: keyB64, Key: keyB64}
	var result schema.ImportKeyResult
	if err := c.Do(ctx, http.MethodPost, PathCryptoImport, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Fingerprint returns the fingerprint of the current key.
func (c *Client) Fingerprint(ctx context.Context) (string, error) {
	var fingerprint schema.Fingerprint
	if err := c.Do(ctx, http.MethodGet, PathFingerprint, nil, &fingerprint); err != nil {
		return "", err
	}
	return fingerprint.Fingerprint, nil
}

// History fetches up to limit messages, oldest first. A limit of zero
// or less omits the parameter.
func (c *Client) History(ctx context.Context, limit int) ([]schema.Message, error) {
	path := PathHistory
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var history schema.History
	if err := c.Do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return history.Messages, nil
}

// SendMessage encrypts and transmits text once. It does not retry.
func (c *Client) SendMessage(ctx context.Context, text string, priority schema.Priority) (*schema.SendResult, error) {
	var result schema.SendResult
	if err := c.Do(ctx, http.MethodPost, PathSend, schema.SendRequest{Message: text, Priority: priority}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClearHistory empties the backend history. The backend announces the
// clear to every push subscriber.
func (c *Client) ClearHistory(ctx context.Context) (*schema.Ack, error) {
	var ack schema.Ack
	if err := c.Do(ctx, http.MethodDelete, PathHistory, nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Stats fetches the message counters and stamps them with the fetch
// time.
func (c *Client) Stats(ctx context.Context) (*schema.Stats, error) {
	var stats schema.Stats
	if err := c.Do(ctx, http.MethodGet, PathStats, nil, &stats); err != nil {
		return nil, err
	}
	stats.FetchedAt = c.clock.Now()
	return &stats, nil
}

// SystemInfo returns backend diagnostics.
func (c *Client) SystemInfo(ctx context.Context) (schema.SystemInfo, error) {
	var info schema.SystemInfo
	if err := c.Do(ctx, http.MethodGet, PathSystemInfo, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// RestartSystem asks the backend to restart itself.
func (c *Client) RestartSystem(ctx context.Context) (*schema.Ack, error) {
	var ack schema.Ack
	if err := c.Do(ctx, http.MethodPost, PathSystemRestart, nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
