// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a temporary directory in /tmp for Unix domain
// sockets. [RequireReceive], [RequireSend], and [RequireClosed] wrap
// the select-with-timeout pattern so that tests never hang on a
// channel and never call time.After themselves.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
