// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import "fmt"

// ViolationReason classifies why a session was closed without a reply.
// Values double as metric label values.
type ViolationReason string

const (
	ReasonByteOrder        ViolationReason = "bad_byte_order"
	ReasonTruncatedSetup   ViolationReason = "truncated_setup"
	ReasonVersion          ViolationReason = "unsupported_version"
	ReasonHandshakeTimeout ViolationReason = "handshake_timeout"
	ReasonTruncatedRequest ViolationReason = "truncated_request"
	ReasonBigRequest       ViolationReason = "big_request"
)

// ProtocolViolation is returned by Session.Run when the client broke
// the protocol badly enough that the connection cannot continue.
type ProtocolViolation struct {
	Reason ViolationReason
	Detail string
	Err    error
}

func (v *ProtocolViolation) Error() string {
	message := fmt.Sprintf("protocol violation (%s)", v.Reason)
	if v.Detail != "" {
		message += ": " + v.Detail
	}
	if v.Err != nil {
		message += ": " + v.Err.Error()
	}
	return message
}

func (v *ProtocolViolation) Unwrap() error { return v.Err }

func violation(reason ViolationReason, err error, format string, args ...any) *ProtocolViolation {
	return &ProtocolViolation{Reason: reason, Detail: fmt.Sprintf(format, args...), Err: err}
}
