// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mockbackend

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/engineio"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Error texts returned in {"error": ...} bodies.
const (
	ErrorMissingPorts      = "sender_port and receiver_port are required"
	ErrorUnknownPort       = "cannot open serial port"
	ErrorSenderOffline     = "LoRa sender not connected"
	ErrorReceiverOffline   = "LoRa receiver not connected"
	ErrorCryptoMissing     = "encryption not initialized"
	ErrorEmptyMessage      = "empty message"
	ErrorSendFailed        = "send failed"
	ErrorMissingKey        = "missing key"
	ErrorInvalidKey        = "invalid key: want 32 bytes of base64"
	ErrorInvalidBody       = "invalid JSON body"
	ErrorUnknownPriority   = "unknown priority"
	ErrorHistoryLimitRange = "limit must be a positive integer"
)

// keySize is the length of the symmetric key the appliance derives.
const keySize = 32

// envelopeOverhead approximates the nonce and tag the appliance adds
// to every encrypted frame.
const envelopeOverhead = 12 + 16

// DefaultPorts are the serial ports reported when Config.Ports is nil.
var DefaultPorts = []schema.Port{
	{Port: "/dev/ttyUSB0", Name: "ttyUSB0", HWID: "USB VID:PID=1A86:7523"},
	{Port: "/dev/ttyUSB1", Name: "ttyUSB1", HWID: "USB VID:PID=1A86:7523"},
}

// Signal is the reading attached to every looped-back message.
var Signal = schema.SignalInfo{RSSI: -50, SNR: 10, Frequency: 865.125}

// Config holds configuration for creating a Backend.
type Config struct {
	// Ports lists the serial ports the backend reports and accepts.
	// If nil, DefaultPorts.
	Ports []schema.Port
	// EchoDelay is the loopback latency (default 500ms).
	EchoDelay time.Duration
	// PingInterval and PingTimeout configure the push channel.
	PingInterval time.Duration
	PingTimeout  time.Duration
	// Clock stamps messages and times the loopback. If nil, clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Backend is the simulated appliance. All methods are safe for
// concurrent use.
type Backend struct {
	ports     []schema.Port
	echoDelay time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	started   time.Time
	push      *engineio.Server
	router    *mux.Router

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                sync.Mutex
	closed            bool
	senderConnected   bool
	receiverConnected bool
	senderPort        string
	receiverPort      string
	key               []byte
	history           []schema.Message
	failedSends       int
	pendingFailures   int
}

// New creates a Backend with no radio connected and no key.
func New(config Config) *Backend {
	backend := &Backend{
		ports:     config.Ports,
		echoDelay: config.EchoDelay,
		clock:     config.Clock,
		logger:    config.Logger,
	}
	if backend.ports == nil {
		backend.ports = DefaultPorts
	}
	if backend.echoDelay <= 0 {
		backend.echoDelay = 500 * time.Millisecond
	}
	if backend.clock == nil {
		backend.clock = clock.Real()
	}
	if backend.logger == nil {
		backend.logger = slog.Default()
	}
	backend.started = backend.clock.Now()
	backend.ctx, backend.cancel = context.WithCancel(context.Background())
	backend.push = engineio.NewServer(engineio.ServerConfig{
		PingInterval: config.PingInterval,
		PingTimeout:  config.PingTimeout,
		Greeting: func(string) []engineio.SocketPacket {
			greeting, _ := engineio.NewEvent("connected", schema.Ack{Message: "connected to the LoRa server"})
			return []engineio.SocketPacket{greeting}
		},
		Logger: backend.logger,
	})
	backend.router = backend.routes()
	return backend
}

// Handler returns the HTTP handler serving the API and the push
// channel.
func (b *Backend) Handler() http.Handler {
	return b.router
}

// Push returns the push channel server.
func (b *Backend) Push() *engineio.Server {
	return b.push
}

// Close stops pending loopback deliveries and drops every push
// connection.
func (b *Backend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
	b.push.DisconnectAll()
}

// FailSends makes the next n sends fail with a 500 response.
func (b *Backend) FailSends(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingFailures = n
}

// ConnectRadio connects both modules, as a successful
// POST /api/lora/connect would.
func (b *Backend) ConnectRadio() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.senderConnected, b.receiverConnected = true, true
	b.senderPort, b.receiverPort = b.ports[0].Port, b.ports[len(b.ports)-1].Port
}

// InitCrypto installs a key derived from password.
func (b *Backend) InitCrypto(password string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.key = deriveKey(password)
	return fingerprint(b.key)
}

// Receive injects a message arriving over the radio.
func (b *Backend) Receive(text string, metadata schema.Metadata) schema.Message {
	b.mu.Lock()
	entry := b.appendLocked(text, schema.DirectionReceived, metadata)
	b.mu.Unlock()
	b.push.Emit("message_received", entry)
	return entry
}

// History returns a copy of the backend history.
func (b *Backend) History() []schema.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schema.Message(nil), b.history...)
}

func (b *Backend) routes() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", b.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/ports", b.handlePorts).Methods(http.MethodGet)
	api.HandleFunc("/lora/connect", b.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/lora/disconnect", b.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/lora/signal", b.handleSignal).Methods(http.MethodGet)
	api.HandleFunc("/crypto/init", b.handleCryptoInit).Methods(http.MethodPost)
	api.HandleFunc("/crypto/export", b.handleCryptoExport).Methods(http.MethodGet)
	api.HandleFunc("/crypto/import", b.handleCryptoImport).Methods(http.MethodPost)
	api.HandleFunc("/crypto/fingerprint", b.handleFingerprint).Methods(http.MethodGet)
	api.HandleFunc("/messages/history", b.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/messages/history", b.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/messages/clear", b.handleClear).Methods(http.MethodPost)
	api.HandleFunc("/messages/send", b.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/messages/stats", b.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/system/info", b.handleSystemInfo).Methods(http.MethodGet)
	api.HandleFunc("/system/restart", b.handleRestart).Methods(http.MethodPost)
	router.PathPrefix(engineio.Path).Handler(b.push)
	router.NotFoundHandler = http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeError(writer, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeError(writer, http.StatusMethodNotAllowed, "method not allowed")
	})
	return router
}

// timestamp formats t the way the appliance does: local time, no zone,
// microseconds.
func timestamp(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05.000000")
}

func deriveKey(password string) []byte {
	sum := blake3.Sum256([]byte(password))
	return sum[:]
}

func fingerprint(key []byte) string {
	sum := blake3.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}

// readBody decodes a JSON request body. An empty body decodes as the
// zero value.
func readBody(writer http.ResponseWriter, request *http.Request, value any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, 1<<20))
	if err := decoder.Decode(value); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func generatePassword() string {
	return rand.Text()
}

func encodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
