// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/lorachat/api"
	"github.com/bureau-foundation/lorachat/delivery"
	"github.com/bureau-foundation/lorachat/eventstream"
	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/status"
	"github.com/bureau-foundation/lorachat/store"
)

// ErrNotReady is returned by Send unless both radio modules and the
// crypto engine are ready.
var ErrNotReady = errors.New("session: radio modules and encryption are not ready")

// DefaultHistoryLimit bounds the history fetched at startup.
const DefaultHistoryLimit = 100

// Config holds configuration for creating a Session.
type Config struct {
	// API is the transport client. Required.
	API *api.Client
	// Stream is the push channel. Required.
	Stream *eventstream.Client

	// MaxRetries and RetryDelay configure low priority sends.
	MaxRetries int
	RetryDelay time.Duration
	// HealthInterval and StatsInterval configure the pollers.
	HealthInterval time.Duration
	StatsInterval  time.Duration
	// HistoryLimit bounds the startup history fetch (default 100).
	HistoryLimit int

	// Observer, if set, receives every push event before the session
	// handles it. It runs on the stream goroutine.
	Observer eventstream.Handler

	// Clock drives timers. If nil, clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Info is what the session has learned about the appliance outside
// the reconciled status.
type Info struct {
	Ports       []schema.Port
	Fingerprint string
	Signal      *schema.SignalInfo
	SignalAt    time.Time
}

// Session is one running client session.
type Session struct {
	api          *api.Client
	stream       *eventstream.Client
	store        *store.Store
	status       *status.Reconciler
	engine       *delivery.Engine
	observer     eventstream.Handler
	historyLimit int
	clock        clock.Clock
	logger       *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	streamEnd chan struct{}

	mu        sync.Mutex
	info      Info
	streamErr error
}

// New creates a Session. Nothing runs until Start.
func New(config Config) (*Session, error) {
	if config.API == nil {
		return nil, errors.New("session: API client is required")
	}
	if config.Stream == nil {
		return nil, errors.New("session: event stream client is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}

	engine, err := delivery.New(delivery.Config{
		Sender:     config.API,
		MaxRetries: config.MaxRetries,
		RetryDelay: config.RetryDelay,
		Clock:      config.Clock,
		Logger:     config.Logger.With("component", "delivery"),
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		api:    config.API,
		stream: config.Stream,
		store:  store.New(),
		status: status.New(status.Config{
			Poller:         config.API,
			HealthInterval: config.HealthInterval,
			StatsInterval:  config.StatsInterval,
			Clock:          config.Clock,
			Logger:         config.Logger.With("component", "status"),
		}),
		engine:       engine,
		observer:     config.Observer,
		historyLimit: config.HistoryLimit,
		clock:        config.Clock,
		logger:       config.Logger,
		streamEnd:    make(chan struct{}),
	}, nil
}

// Store returns the message store.
func (s *Session) Store() *store.Store { return s.store }

// Status returns the status reconciler.
func (s *Session) Status() *status.Reconciler { return s.status }

// Engine returns the delivery engine.
func (s *Session) Engine() *delivery.Engine { return s.engine }

// Start launches the push channel, the pollers, and the startup
// history and port fetches. It returns immediately. Calls after the
// first do nothing.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)

		s.wg.Add(4)
		go func() {
			defer s.wg.Done()
			defer close(s.streamEnd)
			if err := s.stream.Run(ctx, s.handleEvent); err != nil {
				s.logger.Error("push channel stopped", "error", err)
				s.mu.Lock()
				s.streamErr = err
				s.mu.Unlock()
			}
		}()
		go func() {
			defer s.wg.Done()
			s.status.Run(ctx)
		}()
		go func() {
			defer s.wg.Done()
			s.loadHistory(ctx)
		}()
		go func() {
			defer s.wg.Done()
			s.loadInfo(ctx)
		}()
	})
}

// Close stops everything Start launched and waits for it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// StreamDone is closed when the push channel stops for good, either
// through Close or after reconnection gave up.
func (s *Session) StreamDone() <-chan struct{} {
	return s.streamEnd
}

// StreamErr returns the error that stopped the push channel, if it
// stopped on its own.
func (s *Session) StreamErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}

// Info returns a copy of the cached appliance information.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.Ports = append([]schema.Port(nil), s.info.Ports...)
	if s.info.Signal != nil {
		signal := *s.info.Signal
		info.Signal = &signal
	}
	return info
}

func (s *Session) loadHistory(ctx context.Context) {
	generation := s.store.Generation()
	history, err := s.api.History(ctx, s.historyLimit)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("loading message history failed", "error", err)
		}
		return
	}
	count, loaded := s.store.LoadAt(generation, history)
	if !loaded {
		s.logger.Debug("discarding history fetched before a clear", "fetched", len(history))
		return
	}
	s.logger.Debug("message history loaded", "fetched", len(history), "stored", count)
}

func (s *Session) loadInfo(ctx context.Context) {
	if _, err := s.Ports(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("listing serial ports failed", "error", err)
	}
	// A backend without a key answers with an error; that is normal.
	if fingerprint, err := s.api.Fingerprint(ctx); err == nil {
		s.setFingerprint(fingerprint)
	}
}

func (s *Session) setFingerprint(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.Fingerprint = fingerprint
}

// handleEvent applies one push event. It runs on the stream goroutine.
func (s *Session) handleEvent(event eventstream.Event) {
	if s.observer != nil {
		s.observer(event)
	}
	Apply(event, s.store, s.status)
}

// Apply folds one push event into messages and reconciler: lifecycle
// events update the status, message events append, and a history
// clear empties the store. Sessions apply live events this way; a
// recorded capture replays through the same function.
func Apply(event eventstream.Event, messages *store.Store, reconciler *status.Reconciler) {
	switch event.Type {
	case eventstream.Connected:
		reconciler.Apply(status.PushConnected{})
	case eventstream.Disconnected:
		reconciler.Apply(status.PushDisconnected{})
	case eventstream.MessageSent, eventstream.MessageReceived:
		if event.Message == nil {
			return
		}
		if messages.Append(*event.Message) {
			reconciler.NoteActivity(event.At)
		}
	case eventstream.HistoryCleared:
		messages.Clear()
	}
}
