// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package netutil

import "net"

// PeerCredentialsOf is only implemented on Linux.
func PeerCredentialsOf(net.Conn) (PeerCredentials, error) {
	return PeerCredentials{}, ErrNoPeerCredentials
}
