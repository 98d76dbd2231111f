// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproto

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/xserver/lib/xwire"
)

// ResponseSize is the fixed size of every reply, error, and event. A
// reply may carry additional data after these 32 bytes; its length
// field counts that data in 4-byte units.
const ResponseSize = 32

// First byte of every server-to-client message other than the
// connection setup response. Values of 2 and above are events.
const (
	ResponseError uint8 = 0
	ResponseReply uint8 = 1
)

// Reply is anything the server sends in answer to a request. The
// sequence number is supplied by the caller: handlers build replies,
// the dispatcher stamps them.
type Reply interface {
	Encode(order xwire.ByteOrder, sequence uint16) []byte
}

// beginReply writes the common reply header with a zero length field.
func beginReply(order xwire.ByteOrder, detail uint8, sequence uint16) *xwire.Encoder {
	encoder := xwire.NewEncoderSize(order, ResponseSize)
	encoder.Card8(ResponseReply)
	encoder.Card8(detail)
	encoder.Card16(sequence)
	encoder.Card32(0)
	return encoder
}

// finishReply pads the fixed part to ResponseSize and back-patches the
// length field to cover any additional data.
func finishReply(encoder *xwire.Encoder) []byte {
	encoder.PadTo(ResponseSize)
	encoder.PutCard32At(4, uint32((encoder.Len()-ResponseSize)/4))
	return encoder.Bytes()
}

// ReplyHeader is the common prefix of a reply.
type ReplyHeader struct {
	Detail   uint8
	Sequence uint16
	// Length counts the bytes after the fixed 32, in 4-byte units.
	Length uint32
}

// DecodeReplyHeader decodes and validates the header of a complete
// reply buffer.
func DecodeReplyHeader(buf []byte, order xwire.ByteOrder) (ReplyHeader, error) {
	if len(buf) < ResponseSize {
		return ReplyHeader{}, fmt.Errorf("reply: %d bytes: %w", len(buf), xwire.ErrShortBuffer)
	}
	if buf[0] != ResponseReply {
		return ReplyHeader{}, fmt.Errorf("reply: response type %d is not a reply", buf[0])
	}
	header := ReplyHeader{
		Detail:   buf[1],
		Sequence: order.Uint16(buf[2:4]),
		Length:   order.Uint32(buf[4:8]),
	}
	if want := ResponseSize + 4*int(header.Length); want != len(buf) {
		return ReplyHeader{}, fmt.Errorf("reply: length field says %d bytes, buffer has %d", want, len(buf))
	}
	return header, nil
}

// ReadResponse reads one reply, error, or event from r: 32 bytes plus,
// for replies, the additional data announced in the length field.
func ReadResponse(r io.Reader, order xwire.ByteOrder) ([]byte, error) {
	fixed := make([]byte, ResponseSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, err
	}
	if fixed[0] != ResponseReply {
		return fixed, nil
	}
	extra := int(order.Uint32(fixed[4:8])) * 4
	if extra == 0 {
		return fixed, nil
	}
	buf := make([]byte, ResponseSize+extra)
	copy(buf, fixed)
	if _, err := io.ReadFull(r, buf[ResponseSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// replyBody returns a field decoder positioned after the 8-byte reply
// header, and the decoded header.
func replyBody(buf []byte, order xwire.ByteOrder) (*fieldDecoder, ReplyHeader, error) {
	header, err := DecodeReplyHeader(buf, order)
	if err != nil {
		return nil, ReplyHeader{}, err
	}
	decoder := xwire.NewDecoder(buf, order)
	if err := decoder.Seek(8); err != nil {
		return nil, ReplyHeader{}, err
	}
	return &fieldDecoder{Decoder: decoder}, header, nil
}

// InternAtomReply carries the atom for an InternAtom request, or 0
// when only-if-exists was set and the name is unknown.
type InternAtomReply struct {
	Atom uint32
}

// Encode returns the wire form of the reply.
func (p InternAtomReply) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := beginReply(order, 0, sequence)
	encoder.Card32(p.Atom)
	return finishReply(encoder)
}

// DecodeInternAtomReply decodes an InternAtom reply.
func DecodeInternAtomReply(buf []byte, order xwire.ByteOrder) (InternAtomReply, error) {
	d, _, err := replyBody(buf, order)
	if err != nil {
		return InternAtomReply{}, err
	}
	atom := d.card32("atom")
	return InternAtomReply{Atom: atom}, d.err
}

// GetAtomNameReply carries the name of an atom.
type GetAtomNameReply struct {
	Name string
}

// Encode returns the wire form of the reply.
func (p GetAtomNameReply) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := beginReply(order, 0, sequence)
	encoder.Card16(uint16(len(p.Name)))
	encoder.PadTo(ResponseSize)
	encoder.String8(p.Name)
	return finishReply(encoder)
}

// DecodeGetAtomNameReply decodes a GetAtomName reply.
func DecodeGetAtomNameReply(buf []byte, order xwire.ByteOrder) (GetAtomNameReply, error) {
	d, _, err := replyBody(buf, order)
	if err != nil {
		return GetAtomNameReply{}, err
	}
	nameLength := d.card16("name length")
	d.skip(ResponseSize - 10)
	name := d.string8(int(nameLength), "name")
	return GetAtomNameReply{Name: name}, d.err
}

// GetPropertyReply carries (part of) a property value. A Type of 0
// (None) means the property does not exist.
type GetPropertyReply struct {
	// Format is 8, 16, or 32: the unit size of Value in bits.
	Format     uint8
	Type       uint32
	BytesAfter uint32
	Value      []byte
}

// Encode returns the wire form of the reply. The value length field is
// expressed in Format-sized units.
func (p GetPropertyReply) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := beginReply(order, p.Format, sequence)
	encoder.Card32(p.Type)
	encoder.Card32(p.BytesAfter)
	var units uint32
	if p.Format >= 8 {
		units = uint32(len(p.Value) / int(p.Format/8))
	}
	encoder.Card32(units)
	encoder.PadTo(ResponseSize)
	encoder.Raw(p.Value)
	encoder.Pad(len(p.Value))
	return finishReply(encoder)
}

// DecodeGetPropertyReply decodes a GetProperty reply.
func DecodeGetPropertyReply(buf []byte, order xwire.ByteOrder) (GetPropertyReply, error) {
	d, header, err := replyBody(buf, order)
	if err != nil {
		return GetPropertyReply{}, err
	}
	reply := GetPropertyReply{Format: header.Detail}
	reply.Type = d.card32("type")
	reply.BytesAfter = d.card32("bytes after")
	units := d.card32("value length")
	d.skip(ResponseSize - 20)
	if reply.Format >= 8 && units > 0 {
		reply.Value = d.bytes(int(units)*int(reply.Format/8), "value")
	}
	return reply, d.err
}

// Revert-to values of GetInputFocus.
const (
	RevertToNone        uint8 = 0
	RevertToPointerRoot uint8 = 1
	RevertToParent      uint8 = 2
)

// GetInputFocusReply reports the focus window.
type GetInputFocusReply struct {
	RevertTo uint8
	Focus    uint32
}

// Encode returns the wire form of the reply.
func (p GetInputFocusReply) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := beginReply(order, p.RevertTo, sequence)
	encoder.Card32(p.Focus)
	return finishReply(encoder)
}

// DecodeGetInputFocusReply decodes a GetInputFocus reply.
func DecodeGetInputFocusReply(buf []byte, order xwire.ByteOrder) (GetInputFocusReply, error) {
	d, header, err := replyBody(buf, order)
	if err != nil {
		return GetInputFocusReply{}, err
	}
	focus := d.card32("focus")
	return GetInputFocusReply{RevertTo: header.Detail, Focus: focus}, d.err
}

// QueryExtensionReply reports whether an extension is present and, if
// so, where its opcodes, events, and errors start.
type QueryExtensionReply struct {
	Present     bool
	MajorOpcode uint8
	FirstEvent  uint8
	FirstError  uint8
}

// Encode returns the wire form of the reply.
func (p QueryExtensionReply) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := beginReply(order, 0, sequence)
	encoder.Bool(p.Present)
	encoder.Card8(p.MajorOpcode)
	encoder.Card8(p.FirstEvent)
	encoder.Card8(p.FirstError)
	return finishReply(encoder)
}

// DecodeQueryExtensionReply decodes a QueryExtension reply.
func DecodeQueryExtensionReply(buf []byte, order xwire.ByteOrder) (QueryExtensionReply, error) {
	d, _, err := replyBody(buf, order)
	if err != nil {
		return QueryExtensionReply{}, err
	}
	var reply QueryExtensionReply
	reply.Present = d.boolean("present")
	reply.MajorOpcode = d.card8("major opcode")
	reply.FirstEvent = d.card8("first event")
	reply.FirstError = d.card8("first error")
	return reply, d.err
}

// ListExtensionsReply lists extension names.
type ListExtensionsReply struct {
	Names []string
}

// Encode returns the wire form of the reply. Each name is a STR: one
// length byte followed by the text, with padding only after the whole
// list.
func (p ListExtensionsReply) Encode(order xwire.ByteOrder, sequence uint16) []byte {
	encoder := beginReply(order, uint8(len(p.Names)), sequence)
	encoder.PadTo(ResponseSize)
	listLength := 0
	for _, name := range p.Names {
		encoder.Card8(uint8(len(name)))
		encoder.Raw([]byte(name))
		listLength += 1 + len(name)
	}
	encoder.Pad(listLength)
	return finishReply(encoder)
}

// DecodeListExtensionsReply decodes a ListExtensions reply.
func DecodeListExtensionsReply(buf []byte, order xwire.ByteOrder) (ListExtensionsReply, error) {
	d, header, err := replyBody(buf, order)
	if err != nil {
		return ListExtensionsReply{}, err
	}
	d.skip(ResponseSize - 8)
	var reply ListExtensionsReply
	for range header.Detail {
		length := d.card8("name length")
		name := d.bytes(int(length), "name")
		if d.err != nil {
			return ListExtensionsReply{}, d.err
		}
		reply.Names = append(reply.Names, string(name))
	}
	return reply, d.err
}
