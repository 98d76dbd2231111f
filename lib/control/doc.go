// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the administrative socket of
// bureau-xserver: a CBOR request-response protocol on a Unix socket,
// separate from the X11 display socket.
//
// Each connection carries exactly one exchange. The client writes a
// CBOR map with an "action" field plus action-specific fields; the
// server replies with a [Response] envelope and closes the connection.
// CBOR is self-delimiting, so no further framing is needed.
//
// The actions and their payload types are declared in protocol.go so
// that the server (package xserver) and the CLI (bureau-xctl) share
// one definition.
package control
