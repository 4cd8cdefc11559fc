// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engineio

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// PingInterval and PingTimeout are advertised to clients. Defaults
	// are 25s and 20s, the Socket.IO server defaults.
	PingInterval time.Duration
	PingTimeout  time.Duration
	// Greeting, if set, returns events sent to a socket right after it
	// joins the default namespace.
	Greeting func(sid string) []SocketPacket
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Server is a minimal Socket.IO server for the default namespace. It
// supports WebSocket and long-polling clients, broadcasts events to
// every joined socket, and ignores anything clients emit.
type Server struct {
	pingInterval time.Duration
	pingTimeout  time.Duration
	greeting     func(string) []SocketPacket
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*serverSession
}

// serverSession is one Engine.IO session.
type serverSession struct {
	sid       string
	transport string
	// outbox holds encoded packets awaiting delivery. A full outbox
	// drops packets rather than blocking a broadcast.
	outbox    chan Packet
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	joined bool
}

func (session *serverSession) close() {
	session.closeOnce.Do(func() { close(session.done) })
}

func (session *serverSession) send(packet Packet) bool {
	select {
	case <-session.done:
		return false
	default:
	}
	select {
	case session.outbox <- packet:
		return true
	default:
		return false
	}
}

// NewServer creates a Server. Mount it at [Path].
func NewServer(config ServerConfig) *Server {
	server := &Server{
		pingInterval: config.PingInterval,
		pingTimeout:  config.PingTimeout,
		greeting:     config.Greeting,
		logger:       config.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*serverSession),
	}
	if server.pingInterval <= 0 {
		server.pingInterval = 25 * time.Second
	}
	if server.pingTimeout <= 0 {
		server.pingTimeout = 20 * time.Second
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

// Emit broadcasts an event to every socket that has joined. It returns
// the number of sockets the event was queued for.
func (s *Server) Emit(name string, args ...any) (int, error) {
	event, err := NewEvent(name, args...)
	if err != nil {
		return 0, err
	}
	packet := event.Packet()

	s.mu.Lock()
	defer s.mu.Unlock()
	delivered := 0
	for _, session := range s.sessions {
		session.mu.Lock()
		joined := session.joined
		session.mu.Unlock()
		if joined && session.send(packet) {
			delivered++
		}
	}
	return delivered, nil
}

// Connected returns the number of sockets that have joined.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, session := range s.sessions {
		session.mu.Lock()
		if session.joined {
			count++
		}
		session.mu.Unlock()
	}
	return count
}

// DisconnectAll ends every session. Clients see their connection drop.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*serverSession)
	s.mu.Unlock()
	for _, session := range sessions {
		session.close()
	}
}

func (s *Server) newSession(transport string) *serverSession {
	session := &serverSession{
		sid:       uuid.NewString(),
		transport: transport,
		outbox:    make(chan Packet, 64),
		done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[session.sid] = session
	s.mu.Unlock()
	return session
}

func (s *Server) lookup(sid string) *serverSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sid]
}

func (s *Server) remove(session *serverSession) {
	session.close()
	s.mu.Lock()
	if s.sessions[session.sid] == session {
		delete(s.sessions, session.sid)
	}
	s.mu.Unlock()
}

func (s *Server) openPacket(session *serverSession) Packet {
	upgrades := []string{}
	if session.transport == TransportPolling {
		upgrades = []string{TransportWebSocket}
	}
	return EncodeOpen(OpenInfo{
		SID:          session.sid,
		Upgrades:     upgrades,
		PingInterval: int(s.pingInterval / time.Millisecond),
		PingTimeout:  int(s.pingTimeout / time.Millisecond),
		MaxPayload:   1_000_000,
	})
}

// handlePacket processes one client packet. It returns false when the
// client ended the session.
func (s *Server) handlePacket(session *serverSession, packet Packet) bool {
	switch packet.Type {
	case Close:
		return false
	case Message:
		socket, err := DecodeSocket(packet.Data)
		if err != nil {
			s.logger.Debug("ignoring malformed client packet", "sid", session.sid, "error", err)
			return true
		}
		switch socket.Type {
		case SocketConnect:
			ack, _ := json.Marshal(ConnectInfo{SID: uuid.NewString()})
			session.send(SocketPacket{Type: SocketConnect, Data: ack}.Packet())
			if s.greeting != nil {
				for _, greeting := range s.greeting(session.sid) {
					session.send(greeting.Packet())
				}
			}
			session.mu.Lock()
			session.joined = true
			session.mu.Unlock()
		case SocketDisconnect:
			session.mu.Lock()
			session.joined = false
			session.mu.Unlock()
		}
	}
	return true
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	if query.Get("EIO") != ProtocolVersion {
		http.Error(writer, `{"code":5,"message":"Unsupported protocol version"}`, http.StatusBadRequest)
		return
	}
	switch query.Get("transport") {
	case TransportWebSocket:
		s.serveWebSocket(writer, request)
	case TransportPolling:
		s.servePolling(writer, request, query.Get("sid"))
	default:
		http.Error(writer, `{"code":0,"message":"Transport unknown"}`, http.StatusBadRequest)
	}
}

func (s *Server) serveWebSocket(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	session := s.newSession(TransportWebSocket)
	defer s.remove(session)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(s.openPacket(session).Encode())); err != nil {
		conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			var packet Packet
			select {
			case <-session.done:
				return
			case <-ticker.C:
				packet = Packet{Type: Ping}
			case packet = <-session.outbox:
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(packet.Encode())); err != nil {
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(s.pingInterval + s.pingTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		packet, err := Decode(string(data))
		if err != nil {
			continue
		}
		if !s.handlePacket(session, packet) {
			break
		}
	}
	session.close()
	<-writerDone
}

func (s *Server) servePolling(writer http.ResponseWriter, request *http.Request, sid string) {
	if sid == "" {
		if request.Method != http.MethodGet {
			http.Error(writer, `{"code":3,"message":"Bad request"}`, http.StatusBadRequest)
			return
		}
		session := s.newSession(TransportPolling)
		writePayload(writer, []Packet{s.openPacket(session)})
		return
	}

	session := s.lookup(sid)
	if session == nil {
		http.Error(writer, `{"code":1,"message":"Session ID unknown"}`, http.StatusBadRequest)
		return
	}

	switch request.Method {
	case http.MethodGet:
		packets := collect(session, request, s.pingInterval)
		if packets == nil {
			// The session ended while the poll was held.
			writePayload(writer, []Packet{{Type: Close}})
			return
		}
		writePayload(writer, packets)
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(request.Body, 1_000_000))
		if err != nil {
			http.Error(writer, "read failed", http.StatusBadRequest)
			return
		}
		packets, err := DecodePayload(string(body))
		if err != nil {
			http.Error(writer, `{"code":3,"message":"Bad request"}`, http.StatusBadRequest)
			return
		}
		for _, packet := range packets {
			if !s.handlePacket(session, packet) {
				s.remove(session)
				break
			}
		}
		writer.Header().Set("Content-Type", "text/html")
		io.WriteString(writer, "ok")
	default:
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// collect holds a poll until at least one packet is queued, answering
// with a ping after pingInterval of silence. It returns nil if the
// session ends first.
func collect(session *serverSession, request *http.Request, pingInterval time.Duration) []Packet {
	timer := time.NewTimer(pingInterval)
	defer timer.Stop()

	var packets []Packet
	select {
	case packet := <-session.outbox:
		packets = append(packets, packet)
	case <-timer.C:
		return []Packet{{Type: Ping}}
	case <-session.done:
		return nil
	case <-request.Context().Done():
		return []Packet{{Type: Noop}}
	}
	for {
		select {
		case packet := <-session.outbox:
			packets = append(packets, packet)
		default:
			return packets
		}
	}
}

func writePayload(writer http.ResponseWriter, packets []Packet) {
	writer.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	io.WriteString(writer, EncodePayload(packets))
}
