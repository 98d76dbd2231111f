// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproto

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/xserver/lib/xwire"
)

// RequestHeaderSize is the size of the header common to all requests:
// opcode, one detail byte, and the request length.
const RequestHeaderSize = 4

// ErrBigRequest is returned for a request header whose length field is
// zero. That form introduces a 32-bit length from the BIG-REQUESTS
// extension, which this server does not implement.
var ErrBigRequest = errors.New("xproto: request length 0 (BIG-REQUESTS) not supported")

// RequestHeader is the common prefix of every request.
type RequestHeader struct {
	Opcode Opcode
	Detail uint8
	// Length is the total request length in 4-byte units, header
	// included.
	Length uint16
}

// DecodeRequestHeader decodes the first four bytes of a request.
func DecodeRequestHeader(buf []byte, order xwire.ByteOrder) (RequestHeader, error) {
	if len(buf) < RequestHeaderSize {
		return RequestHeader{}, fmt.Errorf("request header: %d bytes: %w", len(buf), xwire.ErrShortBuffer)
	}
	length, err := xwire.Card16At(buf, 2, order)
	if err != nil {
		return RequestHeader{}, err
	}
	return RequestHeader{Opcode: Opcode(buf[0]), Detail: buf[1], Length: length}, nil
}

// BodyLength returns the number of bytes that follow the header.
func (h RequestHeader) BodyLength() (int, error) {
	if h.Length == 0 {
		return 0, ErrBigRequest
	}
	return 4 * (int(h.Length) - 1), nil
}

// Request is one complete request read from a connection.
type Request struct {
	Header RequestHeader
	// Data is the full request, header included.
	Data []byte
	// Sequence is the connection's sequence number for this request.
	Sequence uint16
}

// body returns a field decoder positioned after the common header.
func (r *Request) body(order xwire.ByteOrder) *fieldDecoder {
	decoder := xwire.NewDecoder(r.Data, order)
	if err := decoder.Seek(RequestHeaderSize); err != nil {
		return &fieldDecoder{Decoder: decoder, err: fmt.Errorf("%s request: %w", r.Header.Opcode, err)}
	}
	return &fieldDecoder{Decoder: decoder}
}

// EncodeRequest assembles a request from its opcode, detail byte, and
// body. The body is padded to 4 bytes and the length field computed.
func EncodeRequest(order xwire.ByteOrder, opcode Opcode, detail uint8, body []byte) []byte {
	encoder := xwire.NewEncoderSize(order, RequestHeaderSize+xwire.Padded(len(body)))
	encoder.Card8(uint8(opcode))
	encoder.Card8(detail)
	encoder.Card16(uint16((RequestHeaderSize + xwire.Padded(len(body))) / 4))
	encoder.Raw(body)
	encoder.Pad(len(body))
	return encoder.Bytes()
}

// InternAtomRequest asks for the atom naming Name.
type InternAtomRequest struct {
	OnlyIfExists bool
	Name         string
}

// DecodeInternAtom decodes an InternAtom request. The only-if-exists
// flag travels in the header's detail byte.
func DecodeInternAtom(r *Request, order xwire.ByteOrder) (InternAtomRequest, error) {
	d := r.body(order)
	nameLength := d.card16("name length")
	d.skip(2)
	name := d.string8(int(nameLength), "name")
	if d.err != nil {
		return InternAtomRequest{}, d.err
	}
	return InternAtomRequest{OnlyIfExists: r.Header.Detail != 0, Name: name}, nil
}

// Encode returns the wire form of the request.
func (q InternAtomRequest) Encode(order xwire.ByteOrder) []byte {
	body := xwire.NewEncoder(order)
	body.Card16(uint16(len(q.Name)))
	body.Unused(2)
	body.String8(q.Name)
	var detail uint8
	if q.OnlyIfExists {
		detail = 1
	}
	return EncodeRequest(order, OpInternAtom, detail, body.Bytes())
}

// GetAtomNameRequest asks for the name of an atom.
type GetAtomNameRequest struct {
	Atom uint32
}

// DecodeGetAtomName decodes a GetAtomName request.
func DecodeGetAtomName(r *Request, order xwire.ByteOrder) (GetAtomNameRequest, error) {
	d := r.body(order)
	atom := d.card32("atom")
	if d.err != nil {
		return GetAtomNameRequest{}, d.err
	}
	return GetAtomNameRequest{Atom: atom}, nil
}

// Encode returns the wire form of the request.
func (q GetAtomNameRequest) Encode(order xwire.ByteOrder) []byte {
	body := xwire.NewEncoder(order)
	body.Card32(q.Atom)
	return EncodeRequest(order, OpGetAtomName, 0, body.Bytes())
}

// GetPropertyRequest reads part of a window property.
type GetPropertyRequest struct {
	Delete     bool
	Window     uint32
	Property   uint32
	Type       uint32
	LongOffset uint32
	LongLength uint32
}

// DecodeGetProperty decodes a GetProperty request. The delete flag
// travels in the header's detail byte.
func DecodeGetProperty(r *Request, order xwire.ByteOrder) (GetPropertyRequest, error) {
	d := r.body(order)
	q := GetPropertyRequest{Delete: r.Header.Detail != 0}
	q.Window = d.card32("window")
	q.Property = d.card32("property")
	q.Type = d.card32("type")
	q.LongOffset = d.card32("long offset")
	q.LongLength = d.card32("long length")
	if d.err != nil {
		return GetPropertyRequest{}, d.err
	}
	return q, nil
}

// Encode returns the wire form of the request.
func (q GetPropertyRequest) Encode(order xwire.ByteOrder) []byte {
	body := xwire.NewEncoder(order)
	body.Card32(q.Window)
	body.Card32(q.Property)
	body.Card32(q.Type)
	body.Card32(q.LongOffset)
	body.Card32(q.LongLength)
	var detail uint8
	if q.Delete {
		detail = 1
	}
	return EncodeRequest(order, OpGetProperty, detail, body.Bytes())
}

// QueryExtensionRequest asks whether the named extension is present.
type QueryExtensionRequest struct {
	Name string
}

// DecodeQueryExtension decodes a QueryExtension request.
func DecodeQueryExtension(r *Request, order xwire.ByteOrder) (QueryExtensionRequest, error) {
	d := r.body(order)
	nameLength := d.card16("name length")
	d.skip(2)
	name := d.string8(int(nameLength), "name")
	if d.err != nil {
		return QueryExtensionRequest{}, d.err
	}
	return QueryExtensionRequest{Name: name}, nil
}

// Encode returns the wire form of the request.
func (q QueryExtensionRequest) Encode(order xwire.ByteOrder) []byte {
	body := xwire.NewEncoder(order)
	body.Card16(uint16(len(q.Name)))
	body.Unused(2)
	body.String8(q.Name)
	return EncodeRequest(order, OpQueryExtension, 0, body.Bytes())
}
