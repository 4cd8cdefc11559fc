// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/lorachat/api"
	"github.com/bureau-foundation/lorachat/lib/clock"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Policy defaults.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

var (
	// ErrBusy is returned by Send while another send is in flight.
	ErrBusy = errors.New("delivery: a send is already in progress")

	// ErrPolicyExhausted is matched (errors.Is) by the error of a low
	// priority send whose every attempt failed.
	ErrPolicyExhausted = errors.New("delivery: retry policy exhausted")
)

// Sender performs one send attempt. *api.Client satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, text string, priority schema.Priority) (*schema.SendResult, error)
}

// Policy is the attempt plan for one priority.
type Policy struct {
	// MaxAttempts is the total number of attempts, at least 1.
	MaxAttempts int
	// RetryDelay is multiplied by the failed attempt number to get the
	// wait before the next attempt.
	RetryDelay time.Duration
	// Retrying marks the low priority policy, whose final failure is
	// reported as ErrPolicyExhausted.
	Retrying bool
}

// Backoff returns the wait after failed attempt n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	return p.RetryDelay * time.Duration(n)
}

// Result is a successful send.
type Result struct {
	Data *schema.SendResult
	// Attempt is the 1-based attempt that succeeded.
	Attempt int
	Log     AttemptLog
}

// Error is a failed send. For a single-attempt policy its text is the
// transport error's text, unchanged; errors.As still reaches the
// underlying *api.Error.
type Error struct {
	Err      error
	Attempts int
	Log      AttemptLog
	// Exhausted is set when a retrying policy ran out of attempts.
	Exhausted bool
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Exhausted {
		return []error{ErrPolicyExhausted, e.Err}
	}
	return []error{e.Err}
}

// Config holds configuration for creating an Engine.
type Config struct {
	// Sender performs the attempts. Required.
	Sender Sender
	// MaxRetries is the attempt budget of low priority sends (default 3).
	MaxRetries int
	// RetryDelay is the backoff unit of low priority sends (default 2s).
	RetryDelay time.Duration
	// Clock times attempts and backoff waits. If nil, clock.Real().
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Engine runs sends one at a time.
type Engine struct {
	sender     Sender
	maxRetries int
	retryDelay time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	busy       atomic.Bool
}

// New creates an Engine.
func New(config Config) (*Engine, error) {
	if config.Sender == nil {
		return nil, errors.New("delivery: Sender is required")
	}
	engine := &Engine{
		sender:     config.Sender,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		clock:      config.Clock,
		logger:     config.Logger,
	}
	if engine.maxRetries <= 0 {
		engine.maxRetries = DefaultMaxRetries
	}
	if engine.retryDelay <= 0 {
		engine.retryDelay = DefaultRetryDelay
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	return engine, nil
}

// Policy returns the attempt plan for priority.
func (e *Engine) Policy(priority schema.Priority) Policy {
	if priority == schema.PriorityLow {
		return Policy{MaxAttempts: e.maxRetries, RetryDelay: e.retryDelay, Retrying: true}
	}
	return Policy{MaxAttempts: 1}
}

// Busy reports whether a send is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// Send delivers text under the policy for priority. On failure the
// returned error is an [*Error] carrying the attempt log, except for
// ErrBusy, which is returned bare and means nothing was attempted.
//
// Cancelling ctx aborts the current attempt through the transport and
// ends a backoff wait early; either way the send fails.
func (e *Engine) Send(ctx context.Context, text string, priority schema.Priority) (*Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	policy := e.Policy(priority)
	var log AttemptLog
	log.add(e.clock.Now(), LevelInfo, "send started: \"%s\" priority=%s max_attempts=%d",
		Preview(text), priority, policy.MaxAttempts)

	if strings.TrimSpace(text) == "" {
		err := api.NewClientConfigError(http.MethodPost, api.PathSend, "message text is empty")
		return nil, &Error{Err: err, Log: log}
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		started := e.clock.Now()
		log.add(started, LevelInfo, "attempt %d/%d starting", attempt, policy.MaxAttempts)

		data, err := e.sender.SendMessage(ctx, text, priority)
		finished := e.clock.Now()
		elapsed := finished.Sub(started).Round(time.Millisecond)
		if err == nil {
			log.add(finished, LevelSuccess, "attempt %d/%d succeeded in %s", attempt, policy.MaxAttempts, elapsed)
			e.logger.Info("message delivered", "priority", priority, "attempt", attempt, "elapsed", elapsed)
			return &Result{Data: data, Attempt: attempt, Log: log}, nil
		}

		lastErr = err
		log.add(finished, LevelError, "attempt %d/%d failed in %s: %v", attempt, policy.MaxAttempts, elapsed, err)
		e.logger.Warn("send attempt failed",
			"priority", priority, "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Backoff(attempt)
		log.add(e.clock.Now(), LevelInfo, "waiting %dms before attempt %d", delay.Milliseconds(), attempt+1)
		select {
		case <-ctx.Done():
			log.add(e.clock.Now(), LevelError, "cancelled while waiting: %v", ctx.Err())
			return nil, &Error{Err: fmt.Errorf("%w (cancelled: %w)", lastErr, ctx.Err()), Attempts: attempt, Log: log}
		case <-e.clock.After(delay):
		}
	}

	if !policy.Retrying {
		return nil, &Error{Err: lastErr, Attempts: policy.MaxAttempts, Log: log}
	}
	failure := &Error{Err: lastErr, Attempts: policy.MaxAttempts, Exhausted: true}
	log.add(e.clock.Now(), LevelError, "%s", failure.Error())
	failure.Log = log
	return nil, failure
}
