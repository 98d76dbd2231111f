// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides injectable time for the server's timeouts and
// uptime reporting.
//
// Production code holds a Clock and never calls time.Now or
// time.AfterFunc directly. Real returns the standard library's
// behavior; Fake returns a clock that moves only when a test calls
// Advance:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := xserver.NewServer(xserver.Options{Clock: c, ...})
//	// ... connect a client that never finishes its handshake ...
//	c.WaitForTimers(1)
//	c.Advance(30 * time.Second) // the handshake timeout fires
package clock
