// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets time-dependent code run against either the wall
// clock or a deterministic fake.
//
// Every lorachat component that waits (delivery backoff, poll tickers,
// stream reconnection) takes a Clock instead of calling the time
// package. Production wiring passes Real(); tests pass Fake() and
// drive time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go engine.Send(ctx, "hello", schema.PriorityLow)
//	fake.WaitForTimers(1)         // the backoff wait is registered
//	fake.Advance(2 * time.Second) // and now it fires
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it, so tests never sleep on the
// real clock.
package clock
