// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xserver is the protocol core of bureau-xserver: it accepts
// X11 clients on a stream socket, runs the connection handshake, and
// answers core protocol requests.
//
// A [Server] owns the process-wide atom table and the [Dispatcher],
// and runs one [Session] goroutine per client. Each session moves
// through four states:
//
//	AwaitingByteOrder → AwaitingSetupBody → Established → Closed
//
// A malformed handshake or request closes the session without a reply
// and is reported as a [*ProtocolViolation]. Well-formed requests
// always produce either a reply, a protocol Error, or (for requests
// the protocol defines as replyless) nothing.
//
// Within a session requests are handled strictly in order, so replies
// carry increasing sequence numbers. Sessions share only the atom
// table, which is safe for concurrent use.
package xserver
