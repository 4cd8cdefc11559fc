// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/engineio"
	"github.com/bureau-foundation/lorachat/lib/netutil"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

// ErrReconnectExhausted is returned by [Client.Run] after the
// configured number of consecutive connection failures.
var ErrReconnectExhausted = errors.New("eventstream: reconnect attempts exhausted")

// Transport names accepted in Config.Transports.
const (
	TransportWebSocket = engineio.TransportWebSocket
	TransportPolling   = engineio.TransportPolling
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the backend address (e.g., "http://localhost:5000").
	BaseURL string
	// Transports lists transports in the order they are tried. If
	// empty, WebSocket then polling.
	Transports []string
	// HTTPClient is used by the polling transport. It must not impose
	// a timeout shorter than the server ping interval. If nil, a client
	// without a timeout is used.
	HTTPClient *http.Client
	// Dialer is used by the WebSocket transport. If nil,
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// ReconnectDelay is the wait after the first failure (default 1s).
	ReconnectDelay time.Duration
	// ReconnectDelayMax caps the doubling delay (default 5s).
	ReconnectDelayMax time.Duration
	// ReconnectAttempts bounds consecutive failures (default 10).
	ReconnectAttempts int
	// HandshakeTimeout bounds each dial and handshake (default 5s).
	HandshakeTimeout time.Duration

	// Clock times reconnect waits and stamps events. If nil, clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is the push channel. One Client runs at most one connection
// at a time; Run may be called again after it returns.
type Client struct {
	baseURL           string
	transports        []string
	httpClient        *http.Client
	dialer            *websocket.Dialer
	reconnectDelay    time.Duration
	reconnectDelayMax time.Duration
	reconnectAttempts int
	handshakeTimeout  time.Duration
	clock             clock.Clock
	logger            *slog.Logger
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("eventstream: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("eventstream: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	transports := config.Transports
	if len(transports) == 0 {
		transports = []string{TransportWebSocket, TransportPolling}
	}
	for _, name := range transports {
		if name != TransportWebSocket && name != TransportPolling {
			return nil, fmt.Errorf("eventstream: unknown transport %q", name)
		}
	}

	client := &Client{
		baseURL:           config.BaseURL,
		transports:        transports,
		httpClient:        config.HTTPClient,
		dialer:            config.Dialer,
		reconnectDelay:    config.ReconnectDelay,
		reconnectDelayMax: config.ReconnectDelayMax,
		reconnectAttempts: config.ReconnectAttempts,
		handshakeTimeout:  config.HandshakeTimeout,
		clock:             config.Clock,
		logger:            config.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	if client.dialer == nil {
		client.dialer = websocket.DefaultDialer
	}
	if client.reconnectDelay <= 0 {
		client.reconnectDelay = time.Second
	}
	if client.reconnectDelayMax < client.reconnectDelay {
		client.reconnectDelayMax = max(5*time.Second, client.reconnectDelay)
	}
	if client.reconnectAttempts <= 0 {
		client.reconnectAttempts = 10
	}
	if client.handshakeTimeout <= 0 {
		client.handshakeTimeout = 5 * time.Second
	}
	if client.clock == nil {
		client.clock = clock.Real()
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	return client, nil
}

// ReconnectDelay returns the wait before reconnect attempt n (1-based):
// ReconnectDelay doubled n-1 times, capped at ReconnectDelayMax.
func (c *Client) ReconnectDelay(n int) time.Duration {
	delay := c.reconnectDelay
	for i := 1; i < n && delay < c.reconnectDelayMax; i++ {
		delay *= 2
	}
	return min(delay, c.reconnectDelayMax)
}

// Run connects and delivers events to handler until ctx is cancelled
// (returns nil) or reconnection gives up (returns an error wrapping
// [ErrReconnectExhausted]). No event is delivered after ctx is done.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, info, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			c.logger.Warn("push channel connection failed",
				"attempt", failures, "max_attempts", c.reconnectAttempts, "error", err)
			if failures >= c.reconnectAttempts {
				return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, failures, err)
			}
		} else {
			failures = 0
			reason := c.serve(ctx, conn, info, handler)
			conn.close()
			if ctx.Err() != nil {
				return nil
			}
			if netutil.IsExpectedCloseError(reason) {
				c.logger.Info("push channel closed", "transport", conn.name(), "reason", reason)
			} else {
				c.logger.Warn("push channel lost", "transport", conn.name(), "reason", reason)
			}
			handler(Event{Type: Disconnected, At: c.clock.Now(), Reason: reason.Error()})
		}

		delay := c.ReconnectDelay(max(failures, 1))
		c.logger.Debug("reconnecting push channel", "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(delay):
		}
	}
}

// connection is an established Socket.IO session.
type connection struct {
	transport
	sid string
}

// connect tries each transport in order and completes the Socket.IO
// handshake on the first that opens.
func (c *Client) connect(ctx context.Context) (*connection, *engineio.OpenInfo, error) {
	var errs []error
	for _, name := range c.transports {
		conn, info, err := c.connectTransport(ctx, name)
		if err == nil {
			return conn, info, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		c.logger.Debug("push transport unavailable", "transport", name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return nil, nil, errors.Join(errs...)
}

func (c *Client) connectTransport(ctx context.Context, name string) (*connection, *engineio.OpenInfo, error) {
	var (
		t    transport
		info *engineio.OpenInfo
		err  error
	)
	switch name {
	case TransportWebSocket:
		t, info, err = dialWebSocket(ctx, c.dialer, c.baseURL, c.handshakeTimeout)
	case TransportPolling:
		t, info, err = dialPolling(ctx, c.httpClient, c.baseURL, c.handshakeTimeout)
	}
	if err != nil {
		return nil, nil, err
	}

	stop := context.AfterFunc(ctx, func() { t.close() })
	defer stop()

	if err := t.write(engineio.SocketPacket{Type: engineio.SocketConnect}.Packet()); err != nil {
		t.close()
		return nil, nil, fmt.Errorf("joining namespace: %w", err)
	}
	for {
		packet, err := t.read(c.handshakeTimeout)
		if err != nil {
			t.close()
			return nil, nil, fmt.Errorf("awaiting namespace acknowledgement: %w", err)
		}
		switch packet.Type {
		case engineio.Ping:
			if err := t.write(engineio.Packet{Type: engineio.Pong}); err != nil {
				t.close()
				return nil, nil, err
			}
			continue
		case engineio.Message:
		default:
			continue
		}
		socket, err := engineio.DecodeSocket(packet.Data)
		if err != nil {
			t.close()
			return nil, nil, err
		}
		switch socket.Type {
		case engineio.SocketConnect:
			sid, err := acknowledgedSID(socket.Data)
			if err != nil {
				// The session id is informational; the namespace is joined.
				c.logger.Debug("namespace acknowledgement without a session id",
					"transport", name, "data", string(socket.Data), "error", err)
			}
			return &connection{transport: t, sid: sid}, info, nil
		case engineio.SocketConnectError:
			t.close()
			return nil, nil, refusalError(socket.Data)
		}
	}
}

// acknowledgedSID extracts the session id from a CONNECT
// acknowledgement.
func acknowledgedSID(data json.RawMessage) (string, error) {
	var ack engineio.ConnectInfo
	if err := json.Unmarshal(data, &ack); err != nil {
		return "", fmt.Errorf("decoding namespace acknowledgement: %w", err)
	}
	if ack.SID == "" {
		return "", errors.New("namespace acknowledgement has no sid")
	}
	return ack.SID, nil
}

// refusalError describes a CONNECT_ERROR packet. Servers send either
// {"message": ...} or a bare JSON string; anything else is reported
// raw.
func refusalError(data json.RawMessage) error {
	var refusal engineio.ConnectErrorInfo
	if err := json.Unmarshal(data, &refusal); err == nil && refusal.Message != "" {
		return fmt.Errorf("server refused connection: %s", refusal.Message)
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil && text != "" {
		return fmt.Errorf("server refused connection: %s", text)
	}
	if len(data) == 0 {
		return errors.New("server refused connection")
	}
	return fmt.Errorf("server refused connection: %s", data)
}

// serve reads packets until the connection ends and returns the
// reason it ended.
func (c *Client) serve(ctx context.Context, conn *connection, info *engineio.OpenInfo, handler Handler) error {
	stop := context.AfterFunc(ctx, func() { conn.close() })
	defer stop()

	c.logger.Info("push channel connected", "transport", conn.name(), "sid", conn.sid)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	handler(Event{Type: Connected, At: c.clock.Now(), Transport: conn.name(), SID: conn.sid})

	for {
		packet, err := conn.read(info.PingDeadline())
		if err != nil {
			return err
		}
		switch packet.Type {
		case engineio.Ping:
			if err := conn.write(engineio.Packet{Type: engineio.Pong, Data: packet.Data}); err != nil {
				return err
			}
		case engineio.Close:
			return errors.New("server closed the session")
		case engineio.Message:
			if err := c.dispatch(ctx, packet.Data, handler); err != nil {
				return err
			}
		}
	}
}

// dispatch decodes one Socket.IO packet and delivers the resulting
// event, if any.
func (c *Client) dispatch(ctx context.Context, data string, handler Handler) error {
	socket, err := engineio.DecodeSocket(data)
	if err != nil {
		c.logger.Warn("dropping malformed push packet", "error", err)
		return nil
	}
	switch socket.Type {
	case engineio.SocketDisconnect:
		return errors.New("server disconnected the namespace")
	case engineio.SocketEvent:
	default:
		return nil
	}

	name, args, err := socket.Event()
	if err != nil {
		c.logger.Warn("dropping malformed push event", "error", err)
		return nil
	}

	event := Event{At: c.clock.Now()}
	switch name {
	case nameMessageSent, nameMessageReceived:
		event.Type = MessageSent
		if name == nameMessageReceived {
			event.Type = MessageReceived
		}
		if len(args) == 0 {
			c.logger.Warn("dropping push event without payload", "event", name)
			return nil
		}
		var message schema.Message
		if err := json.Unmarshal(args[0], &message); err != nil {
			c.logger.Warn("dropping push event with undecodable message", "event", name, "error", err)
			return nil
		}
		event.Message = &message
	case nameHistoryCleared:
		event.Type = HistoryCleared
	default:
		c.logger.Debug("ignoring push event", "event", name)
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	handler(event)
	return nil
}
