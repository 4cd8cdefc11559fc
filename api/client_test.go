// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{BaseURL: "http://localhost:5000/"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.BaseURL() != "http://localhost:5000" {
			t.Errorf("BaseURL() = %q, want trailing slash trimmed", client.BaseURL())
		}
		if client.HTTPClient().Timeout != RequestTimeout {
			t.Errorf("default timeout = %s, want %s", client.HTTPClient().Timeout, RequestTimeout)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("non-http scheme", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{BaseURL: "ws://localhost:5000"}); err == nil {
			t.Fatal("expected error for ws scheme")
		}
	})
}

func TestDoSetsHeaders(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := request.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if _, err := uuid.Parse(request.Header.Get("X-Request-ID")); err != nil {
			t.Errorf("X-Request-ID %q is not a UUID: %v", request.Header.Get("X-Request-ID"), err)
		}
		writeJSON(writer, http.StatusOK, map[string]any{"status": "ok"})
	})

	if _, err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestServerErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"error field", http.StatusBadRequest, `{"error":"LoRa sender not connected"}`, "LoRa sender not connected"},
		{"message field", http.StatusInternalServerError, `{"message":"radio busy"}`, "radio busy"},
		{"error wins over message", http.StatusBadRequest, `{"error":"first","message":"second"}`, "first"},
		{"empty error falls through", http.StatusBadRequest, `{"error":"","message":"second"}`, "second"},
		{"no fields", http.StatusBadGateway, `{"detail":"nope"}`, MessageServerError},
		{"not JSON", http.StatusInternalServerError, `<html>oops</html>`, MessageServerError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(test.status)
				writer.Write([]byte(test.body))
			})

			_, err := client.SendMessage(context.Background(), "hello", schema.PriorityNormal)
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not *Error", err)
			}
			if apiErr.Kind != KindServerError {
				t.Errorf("Kind = %v, want server_error", apiErr.Kind)
			}
			if err.Error() != test.wantMessage {
				t.Errorf("Error() = %q, want %q", err.Error(), test.wantMessage)
			}
			if apiErr.StatusCode != test.status || apiErr.Body != test.body {
				t.Errorf("StatusCode/Body = %d/%q", apiErr.StatusCode, apiErr.Body)
			}
			if apiErr.Method != http.MethodPost || apiErr.Path != PathSend {
				t.Errorf("Method/Path = %s %s", apiErr.Method, apiErr.Path)
			}
		})
	}
}

func TestUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: baseURL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Health(context.Background())
	if !IsKind(err, KindUnreachable) {
		t.Fatalf("Health on a closed server = %v, want unreachable", err)
	}
	if err.Error() != MessageUnreachable {
		t.Errorf("Error() = %q", err.Error())
	}
	if errors.Unwrap(err) == nil {
		t.Error("unreachable error should wrap the transport cause")
	}
}

func TestTimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewClient(ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Health(context.Background()); !IsKind(err, KindUnreachable) {
		t.Fatalf("timed-out request = %v, want unreachable", err)
	}
}

func TestCancelledContextIsUnreachable(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, map[string]any{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Health(ctx)
	if !IsKind(err, KindUnreachable) {
		t.Fatalf("cancelled request = %v, want unreachable", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled: %v", err)
	}
}

func TestClientConfigErrors(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		t.Error("malformed request reached the server")
	})

	err := client.Do(context.Background(), http.MethodPost, "/api/x", map[string]any{"bad": make(chan int)}, nil)
	if !IsKind(err, KindClientConfig) {
		t.Errorf("unencodable body = %v, want client_config", err)
	}
	if err != nil && err.Error() != MessageClientConfig {
		t.Errorf("Error() = %q", err.Error())
	}

	err = client.Do(context.Background(), "BAD METHOD", "/api/x", nil, nil)
	if !IsKind(err, KindClientConfig) {
		t.Errorf("invalid method = %v, want client_config", err)
	}

	custom := NewClientConfigError(http.MethodPost, PathSend, "message text is empty")
	if !IsKind(custom, KindClientConfig) || custom.Error() != "message text is empty" {
		t.Errorf("NewClientConfigError = %+v", custom)
	}
}

func TestInvalidSuccessBody(t *testing.T) {
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte("not json"))
	})
	_, err := client.Health(context.Background())
	if !IsKind(err, KindServerError) {
		t.Fatalf("undecodable 200 = %v, want server_error", err)
	}
}

func TestEndpoints(t *testing.T) {
	var lastBody map[string]any
	var lastQuery string
	client := newTestClient(t, func(writer http.ResponseWriter, request *http.Request) {
		lastBody = nil
		lastQuery = request.URL.RawQuery
		if request.Body != nil {
			json.NewDecoder(request.Body).Decode(&lastBody)
		}
		route := request.Method + " " + request.URL.Path
		switch route {
		case "GET /api/ports":
			writeJSON(writer, 200, map[string]any{"ports": []map[string]any{{"port": "/dev/ttyUSB0", "name": "CP2102"}}})
		case "POST /api/lora/connect":
			writeJSON(writer, 200, map[string]any{"message": "connected", "sender_port": "/dev/ttyUSB0", "receiver_port": "/dev/ttyUSB1"})
		case "POST /api/crypto/import":
			writeJSON(writer, 200, map[string]any{"message": "imported", "fingerprint": "ab12cd34"})
		case "GET /api/crypto/fingerprint":
			writeJSON(writer, 200, map[string]any{"fingerprint": "ab12cd34"})
		case "GET /api/messages/history":
			writeJSON(writer, 200, map[string]any{"messages": []map[string]any{
				{"id": 1, "message": "one", "direction": "sent", "timestamp": "2026-03-01T10:00:00"},
				{"id": 2, "message": "two", "direction": "received", "timestamp": "2026-03-01T10:00:01"},
			}})
		case "DELETE /api/messages/history":
			writeJSON(writer, 200, map[string]any{"message": "cleared"})
		case "GET /api/messages/stats":
			writeJSON(writer, 200, map[string]any{"total_messages": 3, "sent_messages": 2, "received_messages": 1,
				"connection_status": map[string]any{"sender_connected": true}})
		case "GET /api/system/info":
			writeJSON(writer, 200, map[string]any{"platform": "linux"})
		default:
			writeJSON(writer, 404, map[string]any{"error": "not found: " + route})
		}
	})
	ctx := context.Background()

	ports, err := client.Ports(ctx)
	if err != nil || len(ports) != 1 || ports[0].Port != "/dev/ttyUSB0" {
		t.Errorf("Ports = %v, %v", ports, err)
	}

	connect, err := client.ConnectLoRa(ctx, schema.ConnectRequest{SenderPort: "/dev/ttyUSB0", ReceiverPort: "/dev/ttyUSB1", Baudrate: 9600})
	if err != nil || connect.ReceiverPort != "/dev/ttyUSB1" {
		t.Errorf("ConnectLoRa = %+v, %v", connect, err)
	}
	if lastBody["baudrate"] != float64(9600) || lastBody["sender_port"] != "/dev/ttyUSB0" {
		t.Errorf("connect body = %v", lastBody)
	}

	imported, err := client.ImportKey(ctx, "a2V5")
	if err != nil || imported.Fingerprint != "ab12cd34" {
		t.Errorf("ImportKey = %+v, %v", imported, err)
	}
	if lastBody["key_b64"] != "a2V5" || lastBody["key"] != "a2V5" {
		t.Errorf("import body = %v, want both key_b64 and key", lastBody)
	}

	fingerprint, err := client.Fingerprint(ctx)
	if err != nil || fingerprint != "ab12cd34" {
		t.Errorf("Fingerprint = %q, %v", fingerprint, err)
	}

	messages, err := client.History(ctx, 50)
	if err != nil || len(messages) != 2 || messages[1].Direction != schema.DirectionReceived {
		t.Errorf("History = %v, %v", messages, err)
	}
	if lastQuery != "limit=50" {
		t.Errorf("history query = %q", lastQuery)
	}
	if _, err := client.History(ctx, 0); err != nil || lastQuery != "" {
		t.Errorf("History(0) query = %q, err %v", lastQuery, err)
	}

	if ack, err := client.ClearHistory(ctx); err != nil || ack.Message != "cleared" {
		t.Errorf("ClearHistory = %+v, %v", ack, err)
	}

	info, err := client.SystemInfo(ctx)
	if err != nil || info["platform"] != "linux" {
		t.Errorf("SystemInfo = %v, %v", info, err)
	}

	if _, err := client.RestartSystem(ctx); !IsKind(err, KindServerError) {
		t.Errorf("RestartSystem against a backend without it = %v, want server_error", err)
	}
}

func TestStatsAndPingUseClock(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == PathHealth {
			fake.Advance(40 * time.Millisecond)
			writeJSON(writer, 200, map[string]any{"status": "ok", "crypto_initialized": true})
			return
		}
		writeJSON(writer, 200, map[string]any{"total_messages": 7})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Clock: fake})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalMessages != 7 || !stats.FetchedAt.Equal(fake.Now()) {
		t.Errorf("Stats = %+v", stats)
	}

	ping, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if ping.Latency != 40*time.Millisecond || !ping.Health.CryptoInitialized {
		t.Errorf("Ping = %+v", ping)
	}
}
