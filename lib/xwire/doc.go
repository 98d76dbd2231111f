// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xwire implements the primitive encoding rules of the X11 core
// protocol wire format: fixed-width unsigned integers in a negotiated
// byte order, counted byte strings, and the 4-byte alignment rule that
// follows every variable-length field.
//
// Decoding is bounds-checked and offset-based. A [Decoder] never reads
// past the end of its buffer; any attempt returns an error wrapping
// [ErrShortBuffer] or [ErrOffsetOutOfRange]. Decoders and encoders hold
// no shared state, so they may be used freely from any goroutine that
// owns them.
//
// Composite records (connection setup, screens, requests, replies) are
// built on top of this package in lib/xproto. Their field order is fixed
// by the protocol document, not by Go struct layout, so every record is
// encoded field by field rather than with encoding/binary reflection.
package xwire
