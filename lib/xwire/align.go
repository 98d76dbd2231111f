// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

// Align returns the number of zero bytes that must follow n bytes so
// the next field starts on a multiple of to:
//
//	Align(4, n) = (4 - n%4) % 4
//
// Peers compute their own offsets with exactly this formula, so it must
// not be "simplified" into anything that rounds differently.
func Align(to, n int) int {
	return (to - n%to) % to
}

// Aligned returns n rounded up to the next multiple of to.
func Aligned(to, n int) int {
	return n + Align(to, n)
}

// Pad returns the padding after an n-byte variable-length field.
func Pad(n int) int {
	return Align(4, n)
}

// Padded returns n rounded up to a 4-byte boundary.
func Padded(n int) int {
	return Aligned(4, n)
}
