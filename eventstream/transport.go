// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/lorachat/lib/engineio"
	"github.com/bureau-foundation/lorachat/lib/netutil"
)

// transport carries Engine.IO packets for one session. read and write
// are called from a single goroutine; close may be called from any
// goroutine, any number of times, and unblocks a pending read.
type transport interface {
	name() string
	read(timeout time.Duration) (engineio.Packet, error)
	write(packet engineio.Packet) error
	close() error
}

// endpointURL returns the push endpoint for baseURL with the given
// scheme substitution and query.
func endpointURL(baseURL string, websocketScheme bool, query url.Values) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	if websocketScheme {
		switch parsed.Scheme {
		case "http":
			parsed.Scheme = "ws"
		case "https":
			parsed.Scheme = "wss"
		}
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + engineio.Path
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// webSocketTransport is one WebSocket connection; each text frame is
// one packet.
type webSocketTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// dialWebSocket connects and reads the Open packet.
func dialWebSocket(ctx context.Context, dialer *websocket.Dialer, baseURL string, timeout time.Duration) (*webSocketTransport, *engineio.OpenInfo, error) {
	endpoint, err := endpointURL(baseURL, true, engineio.Query(engineio.TransportWebSocket, ""))
	if err != nil {
		return nil, nil, err
	}
	conn, response, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if response != nil {
			return nil, nil, fmt.Errorf("websocket upgrade rejected with %s", response.Status)
		}
		return nil, nil, err
	}
	ws := &webSocketTransport{conn: conn}
	stop := context.AfterFunc(ctx, func() { ws.close() })
	defer stop()

	packet, err := ws.read(timeout)
	if err != nil {
		ws.close()
		return nil, nil, fmt.Errorf("reading open packet: %w", err)
	}
	info, err := engineio.ParseOpen(packet)
	if err != nil {
		ws.close()
		return nil, nil, err
	}
	return ws, info, nil
}

func (ws *webSocketTransport) name() string { return engineio.TransportWebSocket }

func (ws *webSocketTransport) read(timeout time.Duration) (engineio.Packet, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := ws.conn.SetReadDeadline(deadline); err != nil {
		return engineio.Packet{}, err
	}
	messageType, data, err := ws.conn.ReadMessage()
	if err != nil {
		return engineio.Packet{}, err
	}
	if messageType != websocket.TextMessage {
		return engineio.Packet{}, errors.New("binary frames are not supported")
	}
	return engineio.Decode(string(data))
}

func (ws *webSocketTransport) write(packet engineio.Packet) error {
	return ws.conn.WriteMessage(websocket.TextMessage, []byte(packet.Encode()))
}

func (ws *webSocketTransport) close() error {
	ws.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		ws.closeErr = ws.conn.Close()
	})
	return ws.closeErr
}

// pollingTransport is an HTTP long-polling session. Each read issues a
// GET that the server holds until it has packets; each write is a
// POST.
type pollingTransport struct {
	httpClient *http.Client
	endpoint   string

	// lifetime is cancelled by close and bounds every request.
	lifetime context.Context
	cancel   context.CancelFunc

	// queue holds packets received but not yet returned by read.
	queue []engineio.Packet

	closeOnce sync.Once
}

// dialPolling performs the handshake GET and returns the session.
func dialPolling(ctx context.Context, httpClient *http.Client, baseURL string, timeout time.Duration) (*pollingTransport, *engineio.OpenInfo, error) {
	handshakeURL, err := endpointURL(baseURL, false, engineio.Query(engineio.TransportPolling, ""))
	if err != nil {
		return nil, nil, err
	}
	lifetime, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	polling := &pollingTransport{httpClient: httpClient, lifetime: lifetime, cancel: cancel}
	packets, err := polling.get(handshakeURL, timeout)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	info, err := engineio.ParseOpen(packets[0])
	if err != nil {
		cancel()
		return nil, nil, err
	}
	polling.queue = packets[1:]
	polling.endpoint, err = endpointURL(baseURL, false, engineio.Query(engineio.TransportPolling, info.SID))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return polling, info, nil
}

func (p *pollingTransport) name() string { return engineio.TransportPolling }

func (p *pollingTransport) get(endpoint string, timeout time.Duration) ([]engineio.Packet, error) {
	ctx := p.lifetime
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	response, err := p.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll returned %s: %s", response.Status, bytes.TrimSpace(body))
	}
	return engineio.DecodePayload(string(body))
}

func (p *pollingTransport) read(timeout time.Duration) (engineio.Packet, error) {
	for len(p.queue) == 0 {
		if p.lifetime.Err() != nil {
			return engineio.Packet{}, net.ErrClosed
		}
		packets, err := p.get(p.endpoint, timeout)
		if err != nil {
			return engineio.Packet{}, err
		}
		p.queue = packets
	}
	packet := p.queue[0]
	p.queue = p.queue[1:]
	return packet, nil
}

func (p *pollingTransport) write(packet engineio.Packet) error {
	return p.post(p.lifetime, packet)
}

func (p *pollingTransport) post(ctx context.Context, packet engineio.Packet) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(engineio.EncodePayload([]engineio.Packet{packet})))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	response, err := p.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	io.Copy(io.Discard, io.LimitReader(response.Body, 1024))
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("post returned %s", response.Status)
	}
	return nil
}

// close tells the server the session is over and cancels any pending
// poll.
func (p *pollingTransport) close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.post(ctx, engineio.Packet{Type: engineio.Close})
	})
	return nil
}
