// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import "errors"

var (
	// ErrShortBuffer means fewer bytes remain than the field requires.
	ErrShortBuffer = errors.New("xwire: short buffer")

	// ErrOffsetOutOfRange means a seek or explicit offset lies outside
	// the buffer.
	ErrOffsetOutOfRange = errors.New("xwire: offset out of range")
)
