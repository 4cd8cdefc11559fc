// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Default poll intervals.
const (
	DefaultHealthInterval = 5 * time.Second
	DefaultStatsInterval  = 10 * time.Second
)

// Poller fetches the polled inputs. *api.Client satisfies it.
type Poller interface {
	Health(ctx context.Context) (*schema.Health, error)
	Stats(ctx context.Context) (*schema.Stats, error)
}

// Config holds configuration for creating a Reconciler.
type Config struct {
	// Poller is the source of health and stats. Required for Run and
	// RefreshHealth.
	Poller Poller
	// HealthInterval is the health poll period (default 5s).
	HealthInterval time.Duration
	// StatsInterval is the stats poll period (default 10s).
	StatsInterval time.Duration
	// Clock drives the tickers and uptime. If nil, clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Snapshot is what subscribers receive: the status together with the
// display counters.
type Snapshot struct {
	Status ConnectionStatus
	// Stats is the last successful stats poll, nil before the first.
	Stats *schema.Stats
	// LastActivity is when a message was last seen, zero if never.
	LastActivity time.Time
}

// Reconciler owns the live ConnectionStatus and the display counters.
// All methods are safe for concurrent use.
type Reconciler struct {
	poller         Poller
	healthInterval time.Duration
	statsInterval  time.Duration
	clock          clock.Clock
	logger         *slog.Logger
	started        time.Time

	mu           sync.Mutex
	status       ConnectionStatus
	stats        *schema.Stats
	lastActivity time.Time
	// epoch advances on every PushDisconnected. Health results are
	// applied only if the epoch has not moved since the poll began.
	epoch uint64
	// healthStarted numbers health polls as they begin; healthApplied
	// is the number of the newest poll applied. An older poll that
	// finishes late is discarded.
	healthStarted uint64
	healthApplied uint64
	subscribers   map[chan Snapshot]struct{}
}

// New creates a Reconciler with every field false.
func New(config Config) *Reconciler {
	reconciler := &Reconciler{
		poller:         config.Poller,
		healthInterval: config.HealthInterval,
		statsInterval:  config.StatsInterval,
		clock:          config.Clock,
		logger:         config.Logger,
		subscribers:    make(map[chan Snapshot]struct{}),
	}
	if reconciler.healthInterval <= 0 {
		reconciler.healthInterval = DefaultHealthInterval
	}
	if reconciler.statsInterval <= 0 {
		reconciler.statsInterval = DefaultStatsInterval
	}
	if reconciler.clock == nil {
		reconciler.clock = clock.Real()
	}
	if reconciler.logger == nil {
		reconciler.logger = slog.Default()
	}
	reconciler.started = reconciler.clock.Now()
	return reconciler
}

// Apply merges update into the current status and returns the result.
func (r *Reconciler) Apply(update Update) ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(update)
}

func (r *Reconciler) applyLocked(update Update) ConnectionStatus {
	if _, ok := update.(PushDisconnected); ok {
		r.epoch++
	}
	next := Reduce(r.status, update)
	if next != r.status {
		r.status = next
		r.notifyLocked()
	}
	return next
}

// Status returns the current status.
func (r *Reconciler) Status() ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// FullyConnected reports whether a send is currently permitted.
func (r *Reconciler) FullyConnected() bool {
	return r.Status().FullyConnected()
}

// Stats returns the last successful stats poll, or nil.
func (r *Reconciler) Stats() *schema.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stats == nil {
		return nil
	}
	stats := *r.stats
	return &stats
}

// Snapshot returns the status and counters together.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	snapshot := Snapshot{Status: r.status, LastActivity: r.lastActivity}
	if r.stats != nil {
		stats := *r.stats
		snapshot.Stats = &stats
	}
	return snapshot
}

// Uptime is the time since the Reconciler was created.
func (r *Reconciler) Uptime() time.Duration {
	return clock.Since(r.clock, r.started)
}

// NoteActivity records that a message was seen at t.
func (r *Reconciler) NoteActivity(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.lastActivity) {
		r.lastActivity = t
		r.notifyLocked()
	}
}

// Subscribe returns a channel that receives the latest Snapshot after
// every change, and a function that ends the subscription. The
// channel holds one value; a slow reader sees only the newest
// snapshot. The current snapshot is delivered immediately.
func (r *Reconciler) Subscribe() (<-chan Snapshot, func()) {
	channel := make(chan Snapshot, 1)
	r.mu.Lock()
	r.subscribers[channel] = struct{}{}
	channel <- r.snapshotLocked()
	r.mu.Unlock()

	var once sync.Once
	return channel, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, channel)
			r.mu.Unlock()
		})
	}
}

func (r *Reconciler) notifyLocked() {
	snapshot := r.snapshotLocked()
	for channel := range r.subscribers {
		// Only this goroutine sends (under mu), so after draining
		// the stale value the send cannot block.
		select {
		case channel <- snapshot:
		default:
			select {
			case <-channel:
			default:
			}
			channel <- snapshot
		}
	}
}

// RefreshHealth runs one health poll and applies its outcome. A
// failed poll applies HealthUnknown. The result is discarded if a
// push disconnect happened while the poll was in flight, or if a poll
// that started later has already been applied.
func (r *Reconciler) RefreshHealth(ctx context.Context) ConnectionStatus {
	r.mu.Lock()
	epoch := r.epoch
	r.healthStarted++
	sequence := r.healthStarted
	r.mu.Unlock()

	var update Update
	health, err := r.poller.Health(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return r.Status()
		}
		r.logger.Warn("health poll failed", "error", err)
		update = HealthUnknown{}
	} else {
		update = HealthReportFrom(health)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		r.logger.Debug("discarding health result from before disconnect")
		return r.status
	}
	if sequence < r.healthApplied {
		r.logger.Debug("discarding health result overtaken by a newer poll")
		return r.status
	}
	r.healthApplied = sequence
	return r.applyLocked(update)
}

// RefreshStats runs one stats poll. Failures are logged and the
// previous counters kept.
func (r *Reconciler) RefreshStats(ctx context.Context) {
	stats, err := r.poller.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Debug("stats poll failed", "error", err)
		}
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
	r.notifyLocked()
}

// Run polls health and stats immediately and then on their intervals
// until ctx is done. The two pollers run in separate goroutines so a
// slow request on one does not delay the other.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("status reconciler started",
		"health_interval", r.healthInterval,
		"stats_interval", r.statsInterval,
	)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.poll(ctx, r.healthInterval, func(ctx context.Context) { r.RefreshHealth(ctx) })
	}()
	go func() {
		defer wg.Done()
		r.poll(ctx, r.statsInterval, r.RefreshStats)
	}()
	wg.Wait()
}

func (r *Reconciler) poll(ctx context.Context, interval time.Duration, refresh func(context.Context)) {
	refresh(ctx)

	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		refresh(ctx)
	}
}
