// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration used by the server's
// control socket.
//
// The X11 wire format is handled by lib/xwire; CBOR is only used for
// the administrative protocol between bureau-xserver and bureau-xctl.
// Encoding is Core Deterministic (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only travel over the control socket use `cbor` struct
// tags. Types that are also printed as JSON by bureau-xctl use `json`
// tags, which fxamacker/cbor reads when no `cbor` tag is present. A
// field never carries both.
package codec
