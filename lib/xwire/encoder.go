// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

// Encoder appends wire fields to a growing buffer. Encoding cannot
// fail; callers are responsible for keeping lengths within the width of
// the fields that carry them.
type Encoder struct {
	buf   []byte
	order ByteOrder
}

// NewEncoder returns an empty Encoder.
func NewEncoder(order ByteOrder) *Encoder {
	return &Encoder{order: order}
}

// NewEncoderSize returns an Encoder with capacity for size bytes.
func NewEncoderSize(order ByteOrder, size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size), order: order}
}

// Bytes returns the encoded buffer. The slice aliases the encoder's
// storage until the next write.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

// Card8 appends an 8-bit unsigned integer.
func (e *Encoder) Card8(v uint8) {
	e.buf = append(e.buf, v)
}

// Card16 appends a 16-bit unsigned integer.
func (e *Encoder) Card16(v uint16) {
	e.buf = e.order.AppendUint16(e.buf, v)
}

// Card32 appends a 32-bit unsigned integer.
func (e *Encoder) Card32(v uint32) {
	e.buf = e.order.AppendUint32(e.buf, v)
}

// Bool appends a one-byte boolean (1 or 0).
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// Unused appends n zero bytes.
func (e *Encoder) Unused(n int) {
	for range n {
		e.buf = append(e.buf, 0)
	}
}

// Raw appends b without padding.
func (e *Encoder) Raw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Pad appends the alignment padding for an n-byte field.
func (e *Encoder) Pad(n int) {
	e.Unused(Pad(n))
}

// String8 appends s followed by its alignment padding. The length is
// not written; the enclosing record carries it in its own field.
func (e *Encoder) String8(s string) {
	e.buf = append(e.buf, s...)
	e.Pad(len(s))
}

// PadTo appends zero bytes until the buffer is size bytes long. It does
// nothing if the buffer is already at least that long.
func (e *Encoder) PadTo(size int) {
	if missing := size - len(e.buf); missing > 0 {
		e.Unused(missing)
	}
}

// PutCard16At overwrites a previously written 16-bit field. Used to
// back-patch length fields once the variable part is known.
func (e *Encoder) PutCard16At(offset int, v uint16) {
	e.order.PutUint16(e.buf[offset:], v)
}

// PutCard32At overwrites a previously written 32-bit field.
func (e *Encoder) PutCard32At(offset int, v uint32) {
	e.order.PutUint32(e.buf[offset:], v)
}
