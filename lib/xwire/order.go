// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import "encoding/binary"

// ByteOrder is the negotiated byte order of a connection. Both
// binary.LittleEndian and binary.BigEndian satisfy it.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Byte-order markers sent by the client as the first byte of a
// connection.
const (
	MarkerLSBFirst byte = 'l'
	MarkerMSBFirst byte = 'B'
)

// OrderForMarker maps a byte-order marker to its ByteOrder. The second
// result is false for any byte other than 'l' or 'B'.
func OrderForMarker(marker byte) (ByteOrder, bool) {
	switch marker {
	case MarkerLSBFirst:
		return binary.LittleEndian, true
	case MarkerMSBFirst:
		return binary.BigEndian, true
	default:
		return nil, false
	}
}
