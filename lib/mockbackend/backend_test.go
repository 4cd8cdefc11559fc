// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mockbackend

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/lorachat/api"
	"github.com/bureau-foundation/lorachat/eventstream"
	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func startBackend(t *testing.T, fake *clock.FakeClock) (*Backend, *api.Client, string) {
	t.Helper()
	backend := New(Config{Clock: fake, PingInterval: 200 * time.Millisecond, Logger: quietLogger})
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(func() {
		backend.Close()
		server.Close()
	})
	client, err := api.NewClient(api.ClientConfig{BaseURL: server.URL, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	return backend, client, server.URL
}

func requireServerError(t *testing.T, err error, text string) {
	t.Helper()
	if !api.IsKind(err, api.KindServerError) || !strings.HasPrefix(err.Error(), text) {
		t.Fatalf("error = %v, want server error %q", err, text)
	}
}

func TestSendPreconditions(t *testing.T) {
	ctx := context.Background()
	_, client, _ := startBackend(t, clock.Fake(time.Now()))

	_, err := client.SendMessage(ctx, "hello", schema.PriorityNormal)
	requireServerError(t, err, ErrorSenderOffline)

	if _, err := client.ConnectLoRa(ctx, schema.ConnectRequest{SenderPort: "/dev/ttyUSB0", ReceiverPort: "/dev/ttyUSB1"}); err != nil {
		t.Fatalf("ConnectLoRa: %v", err)
	}
	_, err = client.SendMessage(ctx, "hello", schema.PriorityNormal)
	requireServerError(t, err, ErrorCryptoMissing)

	if _, err := client.InitCrypto(ctx, "correct horse"); err != nil {
		t.Fatalf("InitCrypto: %v", err)
	}
	_, err = client.SendMessage(ctx, "", schema.PriorityNormal)
	requireServerError(t, err, ErrorEmptyMessage)

	result, err := client.SendMessage(ctx, "hello", schema.PriorityHigh)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if result.EncryptedSize <= len("hello") {
		t.Errorf("EncryptedSize = %d", result.EncryptedSize)
	}

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !health.LoRaSenderConnected || !health.LoRaReceiverConnected || !health.CryptoInitialized {
		t.Errorf("health = %+v, want everything up", health)
	}
}

func TestConnectValidation(t *testing.T) {
	ctx := context.Background()
	_, client, _ := startBackend(t, clock.Fake(time.Now()))

	_, err := client.ConnectLoRa(ctx, schema.ConnectRequest{SenderPort: "/dev/ttyUSB0"})
	requireServerError(t, err, ErrorMissingPorts)

	_, err = client.ConnectLoRa(ctx, schema.ConnectRequest{SenderPort: "/dev/ttyUSB0", ReceiverPort: "/dev/ttyACM9"})
	requireServerError(t, err, ErrorUnknownPort)

	ports, err := client.Ports(ctx)
	if err != nil || len(ports) != len(DefaultPorts) {
		t.Errorf("Ports = %v, %v", ports, err)
	}
}

func TestLoopbackAndHistory(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	backend, client, _ := startBackend(t, fake)
	backend.ConnectRadio()
	backend.InitCrypto("pw")

	if _, err := client.SendMessage(ctx, "over", schema.PriorityLow); err != nil {
		t.Fatal(err)
	}
	fake.WaitForTimers(1)
	fake.Advance(500 * time.Millisecond)
	testutil.Eventually(t, func() bool { return len(backend.History()) == 2 }, 5*time.Second, "loopback delivery")

	history, err := client.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	sent, received := history[0], history[1]
	if sent.ID != 1 || sent.Direction != schema.DirectionSent || sent.Priority() != schema.PriorityLow {
		t.Errorf("sent = %+v", sent)
	}
	if received.ID != 2 || received.Direction != schema.DirectionReceived || received.Text != "over" {
		t.Errorf("received = %+v", received)
	}
	if received.SignalInfo == nil || *received.SignalInfo != Signal {
		t.Errorf("signal = %+v", received.SignalInfo)
	}
	if _, ok := sent.Time(); !ok {
		t.Errorf("timestamp %q does not parse", sent.Timestamp)
	}

	last, err := client.History(ctx, 1)
	if err != nil || len(last) != 1 || last[0].ID != 2 {
		t.Errorf("History(limit 1) = %+v, %v", last, err)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMessages != 2 || stats.SentMessages != 1 || stats.ReceivedMessages != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClearBothRoutes(t *testing.T) {
	ctx := context.Background()
	backend, client, baseURL := startBackend(t, clock.Fake(time.Now()))

	backend.Receive("one", schema.Metadata{Sender: "field unit"})
	if _, err := client.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if len(backend.History()) != 0 {
		t.Error("DELETE did not clear history")
	}

	backend.Receive("two", schema.Metadata{})
	response, err := http.Post(baseURL+"/api/messages/clear", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK || len(backend.History()) != 0 {
		t.Errorf("POST clear: status %d, history %d", response.StatusCode, len(backend.History()))
	}

	// Ids restart after a clear.
	if entry := backend.Receive("three", schema.Metadata{}); entry.ID != 1 {
		t.Errorf("id after clear = %d, want 1", entry.ID)
	}
}

func TestCryptoExportImport(t *testing.T) {
	ctx := context.Background()
	_, client, _ := startBackend(t, clock.Fake(time.Now()))

	_, err := client.ExportKey(ctx)
	requireServerError(t, err, ErrorCryptoMissing)
	_, err = client.Fingerprint(ctx)
	requireServerError(t, err, ErrorCryptoMissing)

	initResult, err := client.InitCrypto(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if initResult.GeneratedPassword == nil || *initResult.GeneratedPassword == "" {
		t.Error("empty password did not generate one")
	}
	exported, err := client.ExportKey(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if exported.Fingerprint != initResult.KeyFingerprint {
		t.Errorf("export fingerprint %q != init fingerprint %q", exported.Fingerprint, initResult.KeyFingerprint)
	}

	withPassword, err := client.InitCrypto(ctx, "other")
	if err != nil || withPassword.GeneratedPassword != nil {
		t.Fatalf("InitCrypto(password) = %+v, %v", withPassword, err)
	}

	imported, err := client.ImportKey(ctx, exported.Key)
	if err != nil {
		t.Fatal(err)
	}
	if imported.Fingerprint != exported.Fingerprint {
		t.Errorf("import fingerprint = %q, want %q", imported.Fingerprint, exported.Fingerprint)
	}
	if current, _ := client.Fingerprint(ctx); current != exported.Fingerprint {
		t.Errorf("Fingerprint = %q after import", current)
	}

	_, err = client.ImportKey(ctx, "bm90IGEga2V5")
	requireServerError(t, err, ErrorInvalidKey)
}

func TestFailSends(t *testing.T) {
	ctx := context.Background()
	backend, client, _ := startBackend(t, clock.Fake(time.Now()))
	backend.ConnectRadio()
	backend.InitCrypto("pw")
	backend.FailSends(2)

	for range 2 {
		_, err := client.SendMessage(ctx, "x", schema.PriorityNormal)
		requireServerError(t, err, ErrorSendFailed)
	}
	if _, err := client.SendMessage(ctx, "x", schema.PriorityNormal); err != nil {
		t.Fatalf("third send: %v", err)
	}
	stats, _ := client.Stats(ctx)
	if stats.ErrorMessages != 2 {
		t.Errorf("ErrorMessages = %d, want 2", stats.ErrorMessages)
	}
}

func TestSignalAndRestart(t *testing.T) {
	ctx := context.Background()
	backend, client, _ := startBackend(t, clock.Fake(time.Now()))

	_, err := client.Signal(ctx)
	requireServerError(t, err, ErrorReceiverOffline)

	backend.ConnectRadio()
	signal, err := client.Signal(ctx)
	if err != nil || *signal != Signal {
		t.Fatalf("Signal = %+v, %v", signal, err)
	}

	info, err := client.SystemInfo(ctx)
	if err != nil || info["backend"] != "lorachat-mock" {
		t.Errorf("SystemInfo = %v, %v", info, err)
	}

	if _, err := client.RestartSystem(ctx); err != nil {
		t.Fatal(err)
	}
	health, _ := client.Health(ctx)
	if health.LoRaSenderConnected || health.CryptoInitialized {
		t.Errorf("health after restart = %+v", health)
	}
}

func TestUnknownRouteIsJSONError(t *testing.T) {
	_, client, _ := startBackend(t, clock.Fake(time.Now()))
	err := client.Do(context.Background(), http.MethodGet, "/api/nowhere", nil, nil)
	requireServerError(t, err, "not found")
}

func TestPushEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend, client, baseURL := startBackend(t, clock.Fake(time.Now()))
	backend.ConnectRadio()
	backend.InitCrypto("pw")

	stream, err := eventstream.New(eventstream.Config{BaseURL: baseURL, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	events := make(chan eventstream.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.Run(ctx, func(event eventstream.Event) { events <- event })
	}()
	defer func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "stream stopping")
	}()

	if event := testutil.RequireReceive(t, events, 5*time.Second, "connect"); event.Type != eventstream.Connected {
		t.Fatalf("event = %+v", event)
	}
	testutil.Eventually(t, func() bool { return backend.Push().Connected() == 1 }, 5*time.Second, "socket joined")

	if _, err := client.SendMessage(ctx, "pushed", schema.PriorityNormal); err != nil {
		t.Fatal(err)
	}
	event := testutil.RequireReceive(t, events, 5*time.Second, "message_sent")
	if event.Type != eventstream.MessageSent || event.Message.Text != "pushed" {
		t.Errorf("event = %+v", event)
	}

	if _, err := client.ClearHistory(ctx); err != nil {
		t.Fatal(err)
	}
	if event := testutil.RequireReceive(t, events, 5*time.Second, "history_cleared"); event.Type != eventstream.HistoryCleared {
		t.Errorf("event = %+v", event)
	}
}
