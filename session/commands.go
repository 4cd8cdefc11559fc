// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/bureau-foundation/lorachat/delivery"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Send delivers text with the retry policy of priority. It returns
// ErrNotReady without contacting the backend unless the session is
// fully connected, and delivery.ErrBusy while another send runs. The
// sent message reaches the store through the push channel.
func (s *Session) Send(ctx context.Context, text string, priority schema.Priority) (*delivery.Result, error) {
	if !s.status.FullyConnected() {
		return nil, ErrNotReady
	}
	return s.engine.Send(ctx, text, priority)
}

// ClearHistory clears the backend history, then the local store. The
// backend also announces the clear on the push channel; clearing twice
// is harmless.
func (s *Session) ClearHistory(ctx context.Context) error {
	if _, err := s.api.ClearHistory(ctx); err != nil {
		return err
	}
	s.store.Clear()
	return nil
}

// ConnectLoRa opens both radio modules.
func (s *Session) ConnectLoRa(ctx context.Context, request schema.ConnectRequest) (*schema.ConnectResult, error) {
	result, err := s.api.ConnectLoRa(ctx, request)
	s.status.RefreshHealth(ctx)
	return result, err
}

// DisconnectLoRa closes both radio modules.
func (s *Session) DisconnectLoRa(ctx context.Context) (*schema.Ack, error) {
	ack, err := s.api.DisconnectLoRa(ctx)
	s.status.RefreshHealth(ctx)
	return ack, err
}

// InitCrypto initializes the crypto engine. An empty password asks the
// backend to generate one.
func (s *Session) InitCrypto(ctx context.Context, password string) (*schema.CryptoInitResult, error) {
	result, err := s.api.InitCrypto(ctx, password)
	if err == nil {
		s.setFingerprint(result.KeyFingerprint)
	}
	s.status.RefreshHealth(ctx)
	return result, err
}

// ImportKey installs a base64 key exported from another appliance.
func (s *Session) ImportKey(ctx context.Context, keyB64 string) (*schema.ImportKeyResult, error) {
	result, err := s.api.ImportKey(ctx, keyB64)
	if err == nil {
		s.setFingerprint(result.Fingerprint)
	}
	s.status.RefreshHealth(ctx)
	return result, err
}

// ExportKey returns the current key.
func (s *Session) ExportKey(ctx context.Context) (*schema.ExportedKey, error) {
	key, err := s.api.ExportKey(ctx)
	if err == nil {
		s.setFingerprint(key.Fingerprint)
	}
	return key, err
}

// Signal reads the receiver's link quality and caches it in Info.
func (s *Session) Signal(ctx context.Context) (*schema.SignalInfo, error) {
	signal, err := s.api.Signal(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	cached := *signal
	s.info.Signal = &cached
	s.info.SignalAt = s.clock.Now()
	s.mu.Unlock()
	return signal, nil
}

// Ports lists the serial ports and caches them in Info.
func (s *Session) Ports(ctx context.Context) ([]schema.Port, error) {
	ports, err := s.api.Ports(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.info.Ports = append([]schema.Port(nil), ports...)
	s.mu.Unlock()
	return ports, nil
}

// SystemInfo returns the backend diagnostics.
func (s *Session) SystemInfo(ctx context.Context) (schema.SystemInfo, error) {
	return s.api.SystemInfo(ctx)
}
