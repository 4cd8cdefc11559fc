// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/lorachat/api"
	"github.com/bureau-foundation/lorachat/delivery"
	"github.com/bureau-foundation/lorachat/eventstream"
	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/mockbackend"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/testutil"
	"github.com/bureau-foundation/lorachat/status"
	"github.com/bureau-foundation/lorachat/store"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	backend *mockbackend.Backend
	clock   *clock.FakeClock
	session *Session

	mu     sync.Mutex
	events []eventstream.Event
}

func (f *fixture) observed() []eventstream.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]eventstream.Event(nil), f.events...)
}

// newFixture serves a mock backend and builds a session against it.
// prepare runs on the backend before the session starts.
func newFixture(t *testing.T, prepare func(*mockbackend.Backend)) *fixture {
	t.Helper()
	return newFixtureWith(t, fixtureOptions{prepare: prepare})
}

type fixtureOptions struct {
	prepare func(*mockbackend.Backend)
	// wrap, if set, sits between the HTTP server and the backend.
	wrap func(http.Handler) http.Handler
	// logger replaces quietLogger for the session.
	logger *slog.Logger
}

func newFixtureWith(t *testing.T, options fixtureOptions) *fixture {
	t.Helper()
	backend := mockbackend.New(mockbackend.Config{
		Clock:        clock.Fake(epoch),
		PingInterval: 200 * time.Millisecond,
		Logger:       quietLogger,
	})
	handler := backend.Handler()
	if options.wrap != nil {
		handler = options.wrap(handler)
	}
	server := httptest.NewServer(handler)
	if options.prepare != nil {
		options.prepare(backend)
	}
	logger := options.logger
	if logger == nil {
		logger = quietLogger
	}

	f := &fixture{backend: backend, clock: clock.Fake(epoch)}
	client, err := api.NewClient(api.ClientConfig{BaseURL: server.URL, Clock: f.clock, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	stream, err := eventstream.New(eventstream.Config{BaseURL: server.URL, Clock: f.clock, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	f.session, err = New(Config{
		API:    client,
		Stream: stream,
		Observer: func(event eventstream.Event) {
			f.mu.Lock()
			f.events = append(f.events, event)
			f.mu.Unlock()
		},
		Clock:  f.clock,
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.session.Start(context.Background())
	t.Cleanup(func() {
		f.session.Close()
		backend.Close()
		server.Close()
	})
	return f
}

func ready(backend *mockbackend.Backend) {
	backend.ConnectRadio()
	backend.InitCrypto("correct horse")
}

func waitStatus(t *testing.T, session *Session, want status.ConnectionStatus) {
	t.Helper()
	testutil.Eventually(t, func() bool { return session.Status().Status() == want }, 5*time.Second,
		"waiting for status %s", want)
}

var allUp = status.ConnectionStatus{
	ServerConnected: true, LoRaSenderConnected: true, LoRaReceiverConnected: true, CryptoInitialized: true,
}

func TestStartReconcilesAndLoads(t *testing.T) {
	f := newFixture(t, func(backend *mockbackend.Backend) {
		ready(backend)
		backend.Receive("earlier", schema.Metadata{Sender: "field unit"})
	})

	waitStatus(t, f.session, allUp)
	testutil.Eventually(t, func() bool { return f.session.Store().Len() == 1 }, 5*time.Second, "history load")
	testutil.Eventually(t, func() bool {
		info := f.session.Info()
		return len(info.Ports) == len(mockbackend.DefaultPorts) && info.Fingerprint != ""
	}, 5*time.Second, "ports and fingerprint")

	events := f.observed()
	if len(events) == 0 || events[0].Type != eventstream.Connected {
		t.Errorf("observer saw %+v, want Connected first", events)
	}
}

func TestSendRequiresFullConnection(t *testing.T) {
	f := newFixture(t, nil)
	waitStatus(t, f.session, status.ConnectionStatus{ServerConnected: true})

	if _, err := f.session.Send(context.Background(), "too early", schema.PriorityNormal); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Send = %v, want ErrNotReady", err)
	}
	if len(f.backend.History()) != 0 {
		t.Error("a refused send reached the backend")
	}
}

func TestCommandsRefreshHealth(t *testing.T) {
	f := newFixture(t, nil)
	waitStatus(t, f.session, status.ConnectionStatus{ServerConnected: true})
	ctx := context.Background()

	if _, err := f.session.ConnectLoRa(ctx, schema.ConnectRequest{SenderPort: "/dev/ttyUSB0", ReceiverPort: "/dev/ttyUSB1"}); err != nil {
		t.Fatal(err)
	}
	// No tick has happened: the command itself refreshed health.
	if current := f.session.Status().Status(); !current.LoRaSenderConnected || !current.LoRaReceiverConnected {
		t.Errorf("status after connect = %s", current)
	}

	result, err := f.session.InitCrypto(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !f.session.Status().FullyConnected() {
		t.Errorf("not fully connected after crypto init: %s", f.session.Status().Status())
	}
	if f.session.Info().Fingerprint != result.KeyFingerprint {
		t.Errorf("cached fingerprint = %q, want %q", f.session.Info().Fingerprint, result.KeyFingerprint)
	}

	exported, err := f.session.ExportKey(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.session.ImportKey(ctx, exported.Key); err != nil {
		t.Fatal(err)
	}

	signal, err := f.session.Signal(ctx)
	if err != nil || signal.RSSI != mockbackend.Signal.RSSI {
		t.Fatalf("Signal = %+v, %v", signal, err)
	}
	if info := f.session.Info(); info.Signal == nil || !info.SignalAt.Equal(epoch) {
		t.Errorf("cached signal = %+v at %s", info.Signal, info.SignalAt)
	}

	if _, err := f.session.DisconnectLoRa(ctx); err != nil {
		t.Fatal(err)
	}
	if current := f.session.Status().Status(); current != (status.ConnectionStatus{ServerConnected: true, CryptoInitialized: true}) {
		t.Errorf("status after disconnect = %s", current)
	}

	if info, err := f.session.SystemInfo(ctx); err != nil || info["backend"] != "lorachat-mock" {
		t.Errorf("SystemInfo = %v, %v", info, err)
	}
}

func TestSentMessageArrivesThroughPush(t *testing.T) {
	f := newFixture(t, ready)
	waitStatus(t, f.session, allUp)
	testutil.Eventually(t, func() bool { return f.backend.Push().Connected() == 1 }, 5*time.Second, "socket joined")

	text := testutil.UniqueID("hello")
	result, err := f.session.Send(context.Background(), text, schema.PriorityHigh)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Attempt != 1 {
		t.Errorf("Attempt = %d", result.Attempt)
	}
	testutil.Eventually(t, func() bool { return f.session.Store().Len() == 1 }, 5*time.Second, "message_sent event")
	if stored := f.session.Store().Snapshot()[0]; stored.Text != text || stored.Direction != schema.DirectionSent {
		t.Errorf("stored = %+v", stored)
	}
	if f.session.Status().Snapshot().LastActivity.IsZero() {
		t.Error("LastActivity not recorded for a pushed message")
	}
}

func TestLowPriorityRetriesThroughSession(t *testing.T) {
	f := newFixture(t, ready)
	waitStatus(t, f.session, allUp)
	// The health and stats tickers are registered once their first
	// polls are done.
	f.clock.WaitForTimers(2)
	f.backend.FailSends(2)

	outcome := make(chan error, 1)
	var result *delivery.Result
	go func() {
		var err error
		result, err = f.session.Send(context.Background(), "patient", schema.PriorityLow)
		outcome <- err
	}()

	f.clock.WaitForTimers(3)
	f.clock.Advance(2 * time.Second)
	f.clock.WaitForTimers(3)
	f.clock.Advance(4 * time.Second)

	if err := testutil.RequireReceive(t, outcome, 5*time.Second, "Send returning"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", result.Attempt)
	}
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t, func(backend *mockbackend.Backend) {
		backend.Receive("one", schema.Metadata{})
		backend.Receive("two", schema.Metadata{})
	})
	testutil.Eventually(t, func() bool { return f.session.Store().Len() == 2 }, 5*time.Second, "history load")

	if err := f.session.ClearHistory(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.session.Store().Len() != 0 || len(f.backend.History()) != 0 {
		t.Errorf("store %d, backend %d after clear", f.session.Store().Len(), len(f.backend.History()))
	}
}

// syncBuffer is a bytes.Buffer safe for a logger writing from session
// goroutines while the test reads.
type syncBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

func TestClearDuringHistoryLoadWins(t *testing.T) {
	fetched := make(chan struct{})
	release := make(chan struct{})
	var fetchOnce sync.Once
	holdHistory := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.Method != http.MethodGet || request.URL.Path != "/api/messages/history" {
				next.ServeHTTP(writer, request)
				return
			}
			// Capture the history as it was, then hold the reply until
			// the test has cleared.
			recorded := httptest.NewRecorder()
			next.ServeHTTP(recorded, request)
			fetchOnce.Do(func() { close(fetched) })
			<-release
			for name, values := range recorded.Header() {
				writer.Header()[name] = values
			}
			writer.WriteHeader(recorded.Code)
			writer.Write(recorded.Body.Bytes())
		})
	}

	var logs syncBuffer
	f := newFixtureWith(t, fixtureOptions{
		prepare: func(backend *mockbackend.Backend) {
			backend.Receive("before the clear", schema.Metadata{})
		},
		wrap:   holdHistory,
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})

	testutil.RequireClosed(t, fetched, 5*time.Second, "history request")
	if err := f.session.ClearHistory(context.Background()); err != nil {
		t.Fatal(err)
	}
	close(release)

	testutil.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "discarding history fetched before a clear")
	}, 5*time.Second, "stale history dropped")
	if n := f.session.Store().Len(); n != 0 {
		t.Errorf("store holds %d messages after a clear raced the history load", n)
	}
}

func TestPushClearAndReceive(t *testing.T) {
	f := newFixture(t, nil)
	testutil.Eventually(t, func() bool { return f.backend.Push().Connected() == 1 }, 5*time.Second, "socket joined")

	f.backend.Receive("incoming", schema.Metadata{Sender: "field unit"})
	testutil.Eventually(t, func() bool { return f.session.Store().Len() == 1 }, 5*time.Second, "message_received event")

	// Another client clears the history.
	f.backend.Push().Emit("history_cleared")
	testutil.Eventually(t, func() bool { return f.session.Store().Len() == 0 }, 5*time.Second, "history_cleared event")
}

func TestPushDropClearsStatus(t *testing.T) {
	f := newFixture(t, ready)
	waitStatus(t, f.session, allUp)
	testutil.Eventually(t, func() bool { return f.backend.Push().Connected() == 1 }, 5*time.Second, "socket joined")

	f.backend.Push().DisconnectAll()
	waitStatus(t, f.session, status.ConnectionStatus{})
}

func TestCloseStopsEverything(t *testing.T) {
	f := newFixture(t, nil)
	testutil.Eventually(t, func() bool { return f.backend.Push().Connected() == 1 }, 5*time.Second, "socket joined")

	f.session.Close()
	testutil.RequireClosed(t, f.session.StreamDone(), time.Second, "stream stopped")
	if err := f.session.StreamErr(); err != nil {
		t.Errorf("StreamErr after Close = %v", err)
	}
	f.session.Close()
}

func TestNewRequiresClients(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted a config without clients")
	}
}

func TestApplyFoldsEvents(t *testing.T) {
	messages := store.New()
	reconciler := status.New(status.Config{Clock: clock.Fake(epoch), Logger: quietLogger})

	sent := schema.Message{ID: 1, Text: "ping", Direction: schema.DirectionSent, Timestamp: "2026-03-01T10:00:01.000000"}
	events := []eventstream.Event{
		{Type: eventstream.Connected, At: epoch},
		{Type: eventstream.MessageSent, At: epoch.Add(time.Second), Message: &sent},
		{Type: eventstream.MessageSent, At: epoch.Add(2 * time.Second), Message: &sent},
		{Type: eventstream.MessageReceived, At: epoch.Add(3 * time.Second)},
	}
	for _, event := range events {
		Apply(event, messages, reconciler)
	}

	if messages.Len() != 1 {
		t.Errorf("store holds %d messages, want 1 (duplicate and empty events ignored)", messages.Len())
	}
	snapshot := reconciler.Snapshot()
	if !snapshot.Status.ServerConnected {
		t.Error("connect event should mark the server up")
	}
	if !snapshot.LastActivity.Equal(epoch.Add(time.Second)) {
		t.Errorf("last activity = %v, want the first append only", snapshot.LastActivity)
	}

	Apply(eventstream.Event{Type: eventstream.HistoryCleared}, messages, reconciler)
	Apply(eventstream.Event{Type: eventstream.Disconnected}, messages, reconciler)
	if messages.Len() != 0 {
		t.Errorf("store holds %d messages after clear", messages.Len())
	}
	if reconciler.Status().ServerConnected {
		t.Error("disconnect event should mark the server down")
	}
}
