// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mockbackend

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"runtime"
	"slices"
	"strconv"

	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/version"
)

func (b *Backend) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	health := schema.Health{
		Status:                "ok",
		Timestamp:             timestamp(b.clock.Now()),
		LoRaSenderConnected:   b.senderConnected,
		LoRaReceiverConnected: b.receiverConnected,
		CryptoInitialized:     b.key != nil,
	}
	b.mu.Unlock()
	writeJSON(writer, http.StatusOK, health)
}

func (b *Backend) handlePorts(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, schema.PortList{Ports: b.ports})
}

func (b *Backend) knownPort(port string) bool {
	return slices.ContainsFunc(b.ports, func(candidate schema.Port) bool { return candidate.Port == port })
}

func (b *Backend) handleConnect(writer http.ResponseWriter, request *http.Request) {
	var body schema.ConnectRequest
	if err := readBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, ErrorInvalidBody)
		return
	}
	if body.SenderPort == "" || body.ReceiverPort == "" {
		writeError(writer, http.StatusBadRequest, ErrorMissingPorts)
		return
	}
	if body.Baudrate == 0 {
		body.Baudrate = 9600
	}
	for _, port := range []string{body.SenderPort, body.ReceiverPort} {
		if !b.knownPort(port) {
			writeError(writer, http.StatusInternalServerError, ErrorUnknownPort+" "+port)
			return
		}
	}

	b.mu.Lock()
	b.senderConnected, b.receiverConnected = true, true
	b.senderPort, b.receiverPort = body.SenderPort, body.ReceiverPort
	b.mu.Unlock()

	b.logger.Info("radio connected", "sender_port", body.SenderPort, "receiver_port", body.ReceiverPort, "baudrate", body.Baudrate)
	writeJSON(writer, http.StatusOK, schema.ConnectResult{
		Message:      "LoRa modules connected",
		SenderPort:   body.SenderPort,
		ReceiverPort: body.ReceiverPort,
	})
}

func (b *Backend) handleDisconnect(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.senderConnected, b.receiverConnected = false, false
	b.senderPort, b.receiverPort = "", ""
	b.mu.Unlock()
	b.logger.Info("radio disconnected")
	writeJSON(writer, http.StatusOK, schema.Ack{Message: "LoRa modules disconnected and reset"})
}

func (b *Backend) handleSignal(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	connected := b.receiverConnected
	b.mu.Unlock()
	if !connected {
		writeError(writer, http.StatusBadRequest, ErrorReceiverOffline)
		return
	}
	writeJSON(writer, http.StatusOK, Signal)
}

func (b *Backend) handleCryptoInit(writer http.ResponseWriter, request *http.Request) {
	var body schema.CryptoInitRequest
	if err := readBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, ErrorInvalidBody)
		return
	}
	result := schema.CryptoInitResult{Message: "encryption initialized"}
	password := body.Password
	if password == "" {
		password = generatePassword()
		result.GeneratedPassword = &password
	}
	result.KeyFingerprint = b.InitCrypto(password)
	b.logger.Info("crypto initialized", "fingerprint", result.KeyFingerprint, "generated", result.GeneratedPassword != nil)
	writeJSON(writer, http.StatusOK, result)
}

func (b *Backend) handleCryptoExport(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	key := b.key
	b.mu.Unlock()
	if key == nil {
		writeError(writer, http.StatusBadRequest, ErrorCryptoMissing)
		return
	}
	writeJSON(writer, http.StatusOK, schema.ExportedKey{Key: encodeKey(key), Fingerprint: fingerprint(key)})
}

func (b *Backend) handleCryptoImport(writer http.ResponseWriter, request *http.Request) {
	var body schema.ImportKeyRequest
	if err := readBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, ErrorInvalidBody)
		return
	}
	encoded := body.Key
	if encoded == "" {
		encoded = body.KeyB64
	}
	if encoded == "" {
		writeError(writer, http.StatusBadRequest, ErrorMissingKey)
		return
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != keySize {
		writeError(writer, http.StatusInternalServerError, ErrorInvalidKey)
		return
	}

	b.mu.Lock()
	b.key = key
	b.mu.Unlock()
	writeJSON(writer, http.StatusOK, schema.ImportKeyResult{Message: "key imported", Fingerprint: fingerprint(key)})
}

func (b *Backend) handleFingerprint(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	key := b.key
	b.mu.Unlock()
	if key == nil {
		writeError(writer, http.StatusBadRequest, ErrorCryptoMissing)
		return
	}
	writeJSON(writer, http.StatusOK, schema.Fingerprint{Fingerprint: fingerprint(key)})
}

func (b *Backend) handleHistory(writer http.ResponseWriter, request *http.Request) {
	limit := 0
	if raw := request.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(writer, http.StatusBadRequest, ErrorHistoryLimitRange)
			return
		}
		limit = parsed
	}

	history := b.History()
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if history == nil {
		history = []schema.Message{}
	}
	writeJSON(writer, http.StatusOK, schema.History{Messages: history})
}

func (b *Backend) handleClear(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
	b.push.Emit("history_cleared")
	writeJSON(writer, http.StatusOK, schema.Ack{Message: "history cleared"})
}

func (b *Backend) handleSend(writer http.ResponseWriter, request *http.Request) {
	var body schema.SendRequest
	if err := readBody(writer, request, &body); err != nil {
		writeError(writer, http.StatusBadRequest, ErrorInvalidBody)
		return
	}
	priority, err := schema.ParsePriority(string(body.Priority))
	if err != nil {
		writeError(writer, http.StatusBadRequest, ErrorUnknownPriority)
		return
	}

	b.mu.Lock()
	switch {
	case !b.senderConnected:
		b.mu.Unlock()
		writeError(writer, http.StatusBadRequest, ErrorSenderOffline)
		return
	case b.key == nil:
		b.mu.Unlock()
		writeError(writer, http.StatusBadRequest, ErrorCryptoMissing)
		return
	case body.Message == "":
		b.mu.Unlock()
		writeError(writer, http.StatusBadRequest, ErrorEmptyMessage)
		return
	case b.pendingFailures > 0:
		b.pendingFailures--
		b.failedSends++
		b.mu.Unlock()
		writeError(writer, http.StatusInternalServerError, ErrorSendFailed)
		return
	}
	metadata := schema.Metadata{Sender: "web_interface", Priority: priority, Timestamp: b.clock.Now().Unix()}
	entry := b.appendLocked(body.Message, schema.DirectionSent, metadata)
	echo := b.receiverConnected && !b.closed
	if echo {
		b.wg.Add(1)
	}
	b.mu.Unlock()

	b.push.Emit("message_sent", entry)
	if echo {
		b.loopback(body.Message, metadata)
	}
	writeJSON(writer, http.StatusOK, schema.SendResult{Message: "message sent", EncryptedSize: entry.EncryptedSize})
}

// loopback delivers text back as a received message after the echo
// delay, if the receiver is still connected by then. The caller has
// added to b.wg.
func (b *Backend) loopback(text string, metadata schema.Metadata) {
	go func() {
		defer b.wg.Done()
		select {
		case <-b.ctx.Done():
			return
		case <-b.clock.After(b.echoDelay):
		}
		b.mu.Lock()
		if !b.receiverConnected || b.key == nil {
			b.mu.Unlock()
			return
		}
		entry := b.appendLocked(text, schema.DirectionReceived, metadata)
		b.mu.Unlock()
		b.push.Emit("message_received", entry)
	}()
}

func (b *Backend) appendLocked(text string, direction schema.Direction, metadata schema.Metadata) schema.Message {
	envelope, _ := json.Marshal(struct {
		Message  string          `json:"message"`
		Metadata schema.Metadata `json:"metadata"`
	}{text, metadata})
	entry := schema.Message{
		ID:            int64(len(b.history) + 1),
		Text:          text,
		Direction:     direction,
		Timestamp:     timestamp(b.clock.Now()),
		Metadata:      &metadata,
		EncryptedSize: len(envelope) + envelopeOverhead,
	}
	if direction == schema.DirectionReceived {
		signal := Signal
		entry.SignalInfo = &signal
	}
	b.history = append(b.history, entry)
	return entry
}

func (b *Backend) handleStats(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	stats := schema.Stats{
		TotalMessages: len(b.history),
		ErrorMessages: b.failedSends,
		ConnectionStatus: schema.LinkStatus{
			SenderConnected:   b.senderConnected,
			ReceiverConnected: b.receiverConnected,
			CryptoInitialized: b.key != nil,
		},
	}
	for _, message := range b.history {
		switch message.Direction {
		case schema.DirectionSent:
			stats.SentMessages++
		case schema.DirectionReceived:
			stats.ReceivedMessages++
		}
	}
	b.mu.Unlock()
	writeJSON(writer, http.StatusOK, stats)
}

func (b *Backend) handleSystemInfo(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	info := schema.SystemInfo{
		"backend":        "lorachat-mock",
		"version":        version.Short(),
		"go_version":     runtime.Version(),
		"uptime_seconds": int64(b.clock.Now().Sub(b.started).Seconds()),
		"sender_port":    b.senderPort,
		"receiver_port":  b.receiverPort,
		"history_size":   len(b.history),
		"push_clients":   b.push.Connected(),
	}
	b.mu.Unlock()
	writeJSON(writer, http.StatusOK, info)
}

// handleRestart resets the radio and crypto state and drops every push
// connection, as a process restart of the appliance would. History is
// kept.
func (b *Backend) handleRestart(writer http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.senderConnected, b.receiverConnected = false, false
	b.senderPort, b.receiverPort = "", ""
	b.key = nil
	b.mu.Unlock()
	writeJSON(writer, http.StatusOK, schema.Ack{Message: "restarting"})
	b.push.DisconnectAll()
}
