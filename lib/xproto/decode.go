// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproto

import (
	"fmt"

	"github.com/bureau-foundation/xserver/lib/xwire"
)

// fieldDecoder wraps an xwire.Decoder with a sticky error so that long
// fixed layouts can be decoded field by field and checked once. After
// the first failure every further read returns a zero value.
type fieldDecoder struct {
	*xwire.Decoder
	err error
}

func (d *fieldDecoder) fail(field string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decoding %s: %w", field, err)
	}
}

func (d *fieldDecoder) card8(field string) uint8 {
	if d.err != nil {
		return 0
	}
	v, err := d.Card8()
	if err != nil {
		d.fail(field, err)
	}
	return v
}

func (d *fieldDecoder) card16(field string) uint16 {
	if d.err != nil {
		return 0
	}
	v, err := d.Card16()
	if err != nil {
		d.fail(field, err)
	}
	return v
}

func (d *fieldDecoder) card32(field string) uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.Card32()
	if err != nil {
		d.fail(field, err)
	}
	return v
}

func (d *fieldDecoder) boolean(field string) bool {
	return d.card8(field) != 0
}

func (d *fieldDecoder) string8(n int, field string) string {
	if d.err != nil {
		return ""
	}
	v, err := d.String8(n)
	if err != nil {
		d.fail(field, err)
	}
	return v
}

func (d *fieldDecoder) bytes(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	v, err := d.Bytes(n)
	if err != nil {
		d.fail(field, err)
	}
	return v
}

func (d *fieldDecoder) skip(n int) {
	if d.err != nil {
		return
	}
	if err := d.Skip(n); err != nil {
		d.fail("unused bytes", err)
	}
}
