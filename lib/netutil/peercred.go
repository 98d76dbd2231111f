// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"log/slog"
)

// PeerCredentials identifies the process that opened a Unix socket
// connection, as reported by the kernel at connect time.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

// ErrNoPeerCredentials is returned when a connection is not a Unix
// socket or the platform does not report peer credentials.
var ErrNoPeerCredentials = errors.New("peer credentials unavailable")

// LogValue renders the credentials as a log group.
func (c PeerCredentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pid", int(c.PID)),
		slog.Uint64("uid", uint64(c.UID)),
		slog.Uint64("gid", uint64(c.GID)),
	)
}
