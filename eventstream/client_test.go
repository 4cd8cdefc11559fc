// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/engineio"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// startBackend serves a Socket.IO endpoint that greets each socket the
// way the appliance does. wrap, if non-nil, sits in front of it.
func startBackend(t *testing.T, wrap func(http.Handler) http.Handler) (*engineio.Server, string) {
	t.Helper()
	push := engineio.NewServer(engineio.ServerConfig{
		PingInterval: 200 * time.Millisecond,
		PingTimeout:  500 * time.Millisecond,
		Greeting: func(string) []engineio.SocketPacket {
			greeting, _ := engineio.NewEvent("connected", map[string]string{"message": "connected to the LoRa server"})
			return []engineio.SocketPacket{greeting}
		},
		Logger: quietLogger,
	})
	var handler http.Handler = push
	if wrap != nil {
		handler = wrap(push)
	}
	mux := http.NewServeMux()
	mux.Handle(engineio.Path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		push.DisconnectAll()
		server.Close()
	})
	return push, server.URL
}

// runClient starts Run in the background and returns the event channel
// and a channel carrying Run's result. Run is stopped at cleanup.
func runClient(t *testing.T, config Config) (<-chan Event, <-chan error) {
	t.Helper()
	if config.Logger == nil {
		config.Logger = quietLogger
	}
	client, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 64)
	result := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result <- client.Run(ctx, func(event Event) { events <- event })
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "Run returning after cancellation")
	})
	return events, result
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	return testutil.RequireReceive(t, events, 5*time.Second, "waiting for an event")
}

func waitForSockets(t *testing.T, push *engineio.Server, n int) {
	t.Helper()
	testutil.Eventually(t, func() bool { return push.Connected() >= n }, 5*time.Second, "waiting for %d joined sockets", n)
}

func sampleMessage(id int64, direction schema.Direction) schema.Message {
	return schema.Message{
		ID:        id,
		Text:      "message " + string(direction),
		Direction: direction,
		Timestamp: "2026-03-01T10:00:00.000001",
		Metadata:  &schema.Metadata{Sender: "web_interface", Priority: schema.PriorityNormal},
	}
}

func TestRunDeliversEvents(t *testing.T) {
	for _, transport := range []string{TransportWebSocket, TransportPolling} {
		t.Run(transport, func(t *testing.T) {
			push, baseURL := startBackend(t, nil)
			events, _ := runClient(t, Config{BaseURL: baseURL, Transports: []string{transport}})

			connected := nextEvent(t, events)
			if connected.Type != Connected || connected.Transport != transport || connected.SID == "" {
				t.Fatalf("first event = %+v, want Connected over %s", connected, transport)
			}
			waitForSockets(t, push, 1)

			sent := sampleMessage(1, schema.DirectionSent)
			received := sampleMessage(2, schema.DirectionReceived)
			push.Emit("message_sent", sent)
			push.Emit("message_received", received)
			push.Emit("history_cleared")

			first := nextEvent(t, events)
			if first.Type != MessageSent || first.Message == nil || first.Message.Key() != sent.Key() {
				t.Errorf("second event = %+v, want MessageSent of id 1", first)
			}
			second := nextEvent(t, events)
			if second.Type != MessageReceived || second.Message == nil || second.Message.ID != 2 {
				t.Errorf("third event = %+v, want MessageReceived of id 2", second)
			}
			if third := nextEvent(t, events); third.Type != HistoryCleared {
				t.Errorf("fourth event = %+v, want HistoryCleared", third)
			}
		})
	}
}

func TestRunDropsMalformedAndUnknownEvents(t *testing.T) {
	push, baseURL := startBackend(t, nil)
	events, _ := runClient(t, Config{BaseURL: baseURL})

	nextEvent(t, events)
	waitForSockets(t, push, 1)

	push.Emit("message_sent", "not an object")
	push.Emit("message_received")
	push.Emit("status_update", map[string]bool{"ok": true})
	push.Emit("message_received", sampleMessage(9, schema.DirectionReceived))

	event := nextEvent(t, events)
	if event.Type != MessageReceived || event.Message.ID != 9 {
		t.Fatalf("event = %+v, want only the well-formed MessageReceived", event)
	}
}

func TestRunFallsBackToPolling(t *testing.T) {
	rejectWebSocket := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Query().Get("transport") == engineio.TransportWebSocket {
				http.Error(writer, "websocket disabled", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
	_, baseURL := startBackend(t, rejectWebSocket)
	events, _ := runClient(t, Config{BaseURL: baseURL})

	connected := nextEvent(t, events)
	if connected.Type != Connected || connected.Transport != TransportPolling {
		t.Fatalf("event = %+v, want Connected over polling", connected)
	}
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	push, baseURL := startBackend(t, nil)
	events, _ := runClient(t, Config{BaseURL: baseURL, Clock: fake, ReconnectDelay: time.Second})

	if event := nextEvent(t, events); event.Type != Connected {
		t.Fatalf("event = %+v, want Connected", event)
	}
	waitForSockets(t, push, 1)
	push.DisconnectAll()

	disconnected := nextEvent(t, events)
	if disconnected.Type != Disconnected || disconnected.Reason == "" {
		t.Fatalf("event = %+v, want Disconnected with a reason", disconnected)
	}

	// Reconnection waits on the clock, not on wall time.
	fake.WaitForTimers(1)
	select {
	case event := <-events:
		t.Fatalf("event %+v delivered before the reconnect delay elapsed", event)
	default:
	}
	fake.Advance(time.Second)

	if event := nextEvent(t, events); event.Type != Connected {
		t.Fatalf("event = %+v, want Connected after reconnect", event)
	}
}

func TestRunGivesUpAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	events, result := runClient(t, Config{
		BaseURL:           baseURL,
		Clock:             fake,
		ReconnectDelay:    time.Second,
		ReconnectDelayMax: 5 * time.Second,
		ReconnectAttempts: 3,
	})

	// Failures 1 and 2 are followed by 1s and 2s waits; failure 3 ends
	// the run.
	for _, delay := range []time.Duration{time.Second, 2 * time.Second} {
		fake.WaitForTimers(1)
		fake.Advance(delay - time.Millisecond)
		select {
		case err := <-result:
			t.Fatalf("Run returned %v before the %s wait elapsed", err, delay)
		default:
		}
		fake.Advance(time.Millisecond)
	}

	if err := testutil.RequireReceive(t, result, 5*time.Second, "Run giving up"); !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("Run = %v, want ErrReconnectExhausted", err)
	}
	select {
	case event := <-events:
		t.Errorf("unexpected event %+v from a server that never answered", event)
	default:
	}
}

func TestRunCancelStopsDelivery(t *testing.T) {
	push, baseURL := startBackend(t, nil)
	client, err := New(Config{BaseURL: baseURL, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 64)
	result := make(chan error, 1)
	go func() { result <- client.Run(ctx, func(event Event) { events <- event }) }()

	nextEvent(t, events)
	waitForSockets(t, push, 1)
	cancel()

	if err := testutil.RequireReceive(t, result, 5*time.Second, "Run returning after cancel"); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
	push.Emit("history_cleared")
	select {
	case event := <-events:
		t.Errorf("event %+v delivered after cancellation", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnectDelay(t *testing.T) {
	client, err := New(Config{BaseURL: "http://localhost:5000", ReconnectDelay: time.Second, ReconnectDelayMax: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for index, expected := range want {
		if got := client.ReconnectDelay(index + 1); got != expected {
			t.Errorf("ReconnectDelay(%d) = %s, want %s", index+1, got, expected)
		}
	}
}

func TestNewValidatesTransports(t *testing.T) {
	if _, err := New(Config{BaseURL: "http://localhost:5000", Transports: []string{"carrier-pigeon"}}); err == nil {
		t.Error("New accepted an unknown transport")
	}
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted an empty BaseURL")
	}
}

func TestAcknowledgedSID(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "sid", data: `{"sid":"abc123"}`, want: "abc123"},
		{name: "empty payload", data: ``, wantErr: true},
		{name: "not an object", data: `"abc123"`, wantErr: true},
		{name: "missing sid", data: `{}`, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sid, err := acknowledgedSID([]byte(test.data))
			if (err != nil) != test.wantErr {
				t.Fatalf("acknowledgedSID(%q) error = %v, wantErr %v", test.data, err, test.wantErr)
			}
			if sid != test.want {
				t.Errorf("acknowledgedSID(%q) = %q, want %q", test.data, sid, test.want)
			}
		})
	}
}

func TestRefusalError(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{`{"message":"not authorized"}`, "server refused connection: not authorized"},
		{`"namespace closed"`, "server refused connection: namespace closed"},
		{`{"code":4}`, `server refused connection: {"code":4}`},
		{``, "server refused connection"},
	}
	for _, test := range tests {
		if got := refusalError([]byte(test.data)).Error(); got != test.want {
			t.Errorf("refusalError(%q) = %q, want %q", test.data, got, test.want)
		}
	}
}
