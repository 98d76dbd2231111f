// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xwire

import "fmt"

// Card8At returns the byte at offset.
func Card8At(buf []byte, offset int) (uint8, error) {
	if err := checkRange(buf, offset, 1); err != nil {
		return 0, err
	}
	return buf[offset], nil
}

// Card16At decodes a 16-bit unsigned integer at offset.
func Card16At(buf []byte, offset int, order ByteOrder) (uint16, error) {
	if err := checkRange(buf, offset, 2); err != nil {
		return 0, err
	}
	return order.Uint16(buf[offset:]), nil
}

// Card32At decodes a 32-bit unsigned integer at offset.
func Card32At(buf []byte, offset int, order ByteOrder) (uint32, error) {
	if err := checkRange(buf, offset, 4); err != nil {
		return 0, err
	}
	return order.Uint32(buf[offset:]), nil
}

func checkRange(buf []byte, offset, size int) error {
	if offset < 0 || offset > len(buf) {
		return fmt.Errorf("offset %d in %d-byte buffer: %w", offset, len(buf), ErrOffsetOutOfRange)
	}
	if len(buf)-offset < size {
		return fmt.Errorf("need %d bytes at offset %d, have %d: %w", size, offset, len(buf)-offset, ErrShortBuffer)
	}
	return nil
}

// Decoder reads consecutive wire fields from a buffer. It tracks the
// current offset and fails, without advancing, when a field would run
// past the end of the buffer.
type Decoder struct {
	buf    []byte
	order  ByteOrder
	offset int
}

// NewDecoder returns a Decoder positioned at the start of buf.
func NewDecoder(buf []byte, order ByteOrder) *Decoder {
	return &Decoder{buf: buf, order: order}
}

// Offset returns the position of the next field.
func (d *Decoder) Offset() int { return d.offset }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.offset }

// Seek moves to an absolute offset. Seeking to len(buf) is allowed.
func (d *Decoder) Seek(offset int) error {
	if offset < 0 || offset > len(d.buf) {
		return fmt.Errorf("seek to %d in %d-byte buffer: %w", offset, len(d.buf), ErrOffsetOutOfRange)
	}
	d.offset = offset
	return nil
}

// Skip advances over n unused bytes.
func (d *Decoder) Skip(n int) error {
	if err := checkRange(d.buf, d.offset, n); err != nil {
		return err
	}
	d.offset += n
	return nil
}

// SkipPad advances over the alignment padding that follows an n-byte
// variable-length field.
func (d *Decoder) SkipPad(n int) error {
	return d.Skip(Pad(n))
}

// Card8 decodes an 8-bit unsigned integer.
func (d *Decoder) Card8() (uint8, error) {
	v, err := Card8At(d.buf, d.offset)
	if err != nil {
		return 0, err
	}
	d.offset++
	return v, nil
}

// Card16 decodes a 16-bit unsigned integer.
func (d *Decoder) Card16() (uint16, error) {
	v, err := Card16At(d.buf, d.offset, d.order)
	if err != nil {
		return 0, err
	}
	d.offset += 2
	return v, nil
}

// Card32 decodes a 32-bit unsigned integer.
func (d *Decoder) Card32() (uint32, error) {
	v, err := Card32At(d.buf, d.offset, d.order)
	if err != nil {
		return 0, err
	}
	d.offset += 4
	return v, nil
}

// Bool decodes a one-byte boolean. Any non-zero value is true.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Card8()
	return v != 0, err
}

// Bytes returns a copy of the next n bytes.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d: %w", n, ErrOffsetOutOfRange)
	}
	if err := checkRange(d.buf, d.offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.offset:d.offset+n])
	d.offset += n
	return out, nil
}

// String8 decodes an n-byte STRING8 followed by its alignment padding.
func (d *Decoder) String8(n int) (string, error) {
	start := d.offset
	raw, err := d.Bytes(n)
	if err != nil {
		return "", err
	}
	if err := d.SkipPad(n); err != nil {
		d.offset = start
		return "", err
	}
	return string(raw), nil
}
