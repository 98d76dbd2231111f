// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xproto defines the records of the X11 core protocol that the
// server speaks: the connection setup exchange, the request header and
// the opcode-specific request layouts, replies, and protocol errors.
//
// The protocol is implemented as described in
// https://www.x.org/releases/X11R7.7/doc/xproto/x11protocol.html.
//
// Every record has an explicit encoder and decoder written against
// lib/xwire. Encoders are used by the server for replies and by tests
// and tools for requests; decoders exist for both directions so that
// each record can be checked by round trip.
package xproto
