// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproto

import (
	"fmt"

	"github.com/bureau-foundation/xserver/lib/xwire"
)

// ErrorCode identifies the kind of a protocol error.
type ErrorCode uint8

// Core protocol error codes.
const (
	ErrorRequest        ErrorCode = 1
	ErrorValue          ErrorCode = 2
	ErrorWindow         ErrorCode = 3
	ErrorPixmap         ErrorCode = 4
	ErrorAtom           ErrorCode = 5
	ErrorMatch          ErrorCode = 8
	ErrorAlloc          ErrorCode = 11
	ErrorLength         ErrorCode = 16
	ErrorImplementation ErrorCode = 17
)

var errorCodeNames = map[ErrorCode]string{
	ErrorRequest:        "Request",
	ErrorValue:          "Value",
	ErrorWindow:         "Window",
	ErrorPixmap:         "Pixmap",
	ErrorAtom:           "Atom",
	ErrorMatch:          "Match",
	ErrorAlloc:          "Alloc",
	ErrorLength:         "Length",
	ErrorImplementation: "Implementation",
}

// String returns the protocol name of the error code.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// Error is a protocol error sent to the client in place of a reply. It
// implements both error (handlers return it) and Reply (the dispatcher
// encodes it with the request's sequence number).
type Error struct {
	Code ErrorCode
	// BadValue is the offending resource id, atom, or value. Zero when
	// the error kind carries none.
	BadValue    uint32
	MinorOpcode uint16
	MajorOpcode Opcode
}

func (e *Error) Error() string {
	return fmt.Sprintf("x11 %s error on %s (bad value %d)", e.Code, e.MajorOpcode, e.BadValue)
}

// Encode returns the 32-byte error message.
func (e *Error) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := xwire.NewEncoderSize(order, ResponseSize)
	encoder.Card8(ResponseError)
	encoder.Card8(uint8(e.Code))
	encoder.Card16(sequence)
	encoder.Card32(e.BadValue)
	encoder.Card16(e.MinorOpcode)
	encoder.Card8(uint8(e.MajorOpcode))
	encoder.PadTo(ResponseSize)
	return encoder.Bytes()
}

// DecodeError decodes a 32-byte error message and returns it with its
// sequence number.
func DecodeError(buf []byte, order xwire.ByteOrder) (*Error, uint16, error) {
	if len(buf) != ResponseSize {
		return nil, 0, fmt.Errorf("error message: %d bytes, want %d", len(buf), ResponseSize)
	}
	if buf[0] != ResponseError {
		return nil, 0, fmt.Errorf("error message: response type %d is not an error", buf[0])
	}
	return &Error{
		Code:        ErrorCode(buf[1]),
		BadValue:    order.Uint32(buf[4:8]),
		MinorOpcode: order.Uint16(buf[8:10]),
		MajorOpcode: Opcode(buf[10]),
	}, order.Uint16(buf[2:4]), nil
}

// BadRequest reports an opcode the server does not implement.
func BadRequest(opcode Opcode) *Error {
	return &Error{Code: ErrorRequest, MajorOpcode: opcode}
}

// BadLength reports a request whose length does not match its layout.
func BadLength(opcode Opcode) *Error {
	return &Error{Code: ErrorLength, MajorOpcode: opcode}
}

// BadAtom reports an atom id that names no atom.
func BadAtom(opcode Opcode, atom uint32) *Error {
	return &Error{Code: ErrorAtom, BadValue: atom, MajorOpcode: opcode}
}

// BadValue reports a numeric argument outside its permitted range.
func BadValue(opcode Opcode, value uint32) *Error {
	return &Error{Code: ErrorValue, BadValue: value, MajorOpcode: opcode}
}

// BadImplementation reports a request the server recognizes but cannot
// carry out.
func BadImplementation(opcode Opcode) *Error {
	return &Error{Code: ErrorImplementation, MajorOpcode: opcode}
}
