// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproto

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/xserver/lib/xwire"
)

// Protocol version implemented by this server.
const (
	MajorVersion uint16 = 11
	MinorVersion uint16 = 0
)

// SetupHeaderSize is the fixed part of the connection request that
// follows the byte-order marker: one unused byte, the protocol version,
// the two authorization lengths, and two more unused bytes.
const SetupHeaderSize = 11

// SetupHeader is the fixed part of a connection request.
type SetupHeader struct {
	ProtocolMajorVersion    uint16
	ProtocolMinorVersion    uint16
	AuthorizationNameLength uint16
	AuthorizationDataLength uint16
}

// DecodeSetupHeader decodes the 11 bytes that follow the byte-order
// marker.
func DecodeSetupHeader(buf []byte, order xwire.ByteOrder) (SetupHeader, error) {
	if len(buf) < SetupHeaderSize {
		return SetupHeader{}, fmt.Errorf("connection setup header: %d bytes: %w", len(buf), xwire.ErrShortBuffer)
	}
	decoder := xwire.NewDecoder(buf, order)
	var header SetupHeader
	var err error
	if err = decoder.Skip(1); err != nil {
		return SetupHeader{}, err
	}
	if header.ProtocolMajorVersion, err = decoder.Card16(); err != nil {
		return SetupHeader{}, err
	}
	if header.ProtocolMinorVersion, err = decoder.Card16(); err != nil {
		return SetupHeader{}, err
	}
	if header.AuthorizationNameLength, err = decoder.Card16(); err != nil {
		return SetupHeader{}, err
	}
	if header.AuthorizationDataLength, err = decoder.Card16(); err != nil {
		return SetupHeader{}, err
	}
	return header, nil
}

// AuthorizationLength returns the number of bytes that follow the
// header: both authorization fields, each padded to 4 bytes.
func (h SetupHeader) AuthorizationLength() int {
	return xwire.Padded(int(h.AuthorizationNameLength)) + xwire.Padded(int(h.AuthorizationDataLength))
}

// ConnectionSetup is the client's connection request.
type ConnectionSetup struct {
	ByteOrder                 byte
	ProtocolMajorVersion      uint16
	ProtocolMinorVersion      uint16
	AuthorizationProtocolName string
	AuthorizationProtocolData []byte
}

// DecodeConnectionSetup combines a decoded header with the
// authorization bytes read after it. body must hold exactly
// header.AuthorizationLength() bytes.
func DecodeConnectionSetup(marker byte, header SetupHeader, body []byte, order xwire.ByteOrder) (ConnectionSetup, error) {
	if len(body) < header.AuthorizationLength() {
		return ConnectionSetup{}, fmt.Errorf("connection setup authorization: have %d bytes, need %d: %w",
			len(body), header.AuthorizationLength(), xwire.ErrShortBuffer)
	}
	decoder := xwire.NewDecoder(body, order)
	name, err := decoder.String8(int(header.AuthorizationNameLength))
	if err != nil {
		return ConnectionSetup{}, fmt.Errorf("authorization protocol name: %w", err)
	}
	data, err := decoder.Bytes(int(header.AuthorizationDataLength))
	if err != nil {
		return ConnectionSetup{}, fmt.Errorf("authorization protocol data: %w", err)
	}
	return ConnectionSetup{
		ByteOrder:                 marker,
		ProtocolMajorVersion:      header.ProtocolMajorVersion,
		ProtocolMinorVersion:      header.ProtocolMinorVersion,
		AuthorizationProtocolName: name,
		AuthorizationProtocolData: data,
	}, nil
}

// Encode returns the complete connection request, starting with the
// byte-order marker. The marker is not validated against order.
func (s ConnectionSetup) Encode(order xwire.ByteOrder) []byte {
	encoder := xwire.NewEncoder(order)
	encoder.Card8(s.ByteOrder)
	encoder.Unused(1)
	encoder.Card16(s.ProtocolMajorVersion)
	encoder.Card16(s.ProtocolMinorVersion)
	encoder.Card16(uint16(len(s.AuthorizationProtocolName)))
	encoder.Card16(uint16(len(s.AuthorizationProtocolData)))
	encoder.Unused(2)
	encoder.String8(s.AuthorizationProtocolName)
	encoder.Raw(s.AuthorizationProtocolData)
	encoder.Pad(len(s.AuthorizationProtocolData))
	return encoder.Bytes()
}

// Setup status codes, the first byte of the server's setup response.
const (
	SetupFailed       uint8 = 0
	SetupSuccess      uint8 = 1
	SetupAuthenticate uint8 = 2
)

// Image byte order values.
const (
	ImageLSBFirst uint8 = 0
	ImageMSBFirst uint8 = 1
)

// Bitmap bit order values.
const (
	BitmapLeastSignificant uint8 = 0
	BitmapMostSignificant  uint8 = 1
)

// VisualClass is the class of a visual type.
type VisualClass uint8

const (
	StaticGray  VisualClass = 0
	GrayScale   VisualClass = 1
	StaticColor VisualClass = 2
	PseudoColor VisualClass = 3
	TrueColor   VisualClass = 4
	DirectColor VisualClass = 5
)

// BackingStores advertises when a screen maintains window contents.
type BackingStores uint8

const (
	BackingStoresNever      BackingStores = 0
	BackingStoresWhenMapped BackingStores = 1
	BackingStoresAlways     BackingStores = 2
)

// Format describes one pixmap format.
type Format struct {
	Depth        uint8
	BitsPerPixel uint8
	ScanlinePad  uint8
}

// formatSize is the encoded size of a Format: three fields and five
// unused bytes.
const formatSize = 8

// VisualType describes one visual of a depth.
type VisualType struct {
	VisualID        uint32
	Class           VisualClass
	BitsPerRGBValue uint8
	ColormapEntries uint16
	RedMask         uint32
	GreenMask       uint32
	BlueMask        uint32
}

const visualTypeSize = 24

// Depth lists the visuals available at one depth.
type Depth struct {
	Depth   uint8
	Visuals []VisualType
}

// Screen is one root window and its capabilities.
type Screen struct {
	Root                uint32
	DefaultColormap     uint32
	WhitePixel          uint32
	BlackPixel          uint32
	CurrentInputMasks   uint32
	WidthInPixels       uint16
	HeightInPixels      uint16
	WidthInMillimeters  uint16
	HeightInMillimeters uint16
	MinInstalledMaps    uint16
	MaxInstalledMaps    uint16
	RootVisual          uint32
	BackingStores       BackingStores
	SaveUnders          bool
	RootDepth           uint8
	AllowedDepths       []Depth
}

// ConnectionSetupSuccess is the server's reply to an accepted
// connection request.
type ConnectionSetupSuccess struct {
	ProtocolMajorVersion uint16
	ProtocolMinorVersion uint16
	ReleaseNumber        uint32
	ResourceIDBase       uint32
	ResourceIDMask       uint32
	MotionBufferSize     uint32
	Vendor               string
	MaximumRequestLength uint16
	ImageByteOrder       uint8
	BitmapBitOrder       uint8
	BitmapScanlineUnit   uint8
	BitmapScanlinePad    uint8
	MinKeycode           uint8
	MaxKeycode           uint8
	PixmapFormats        []Format
	Roots                []Screen
}

// setupPrefixSize is the part of the success reply that precedes the
// length field's coverage: status, unused, and the two version fields
// plus the length itself.
const setupPrefixSize = 8

// Encode returns the complete success reply.
func (s ConnectionSetupSuccess) Encode(order xwire.ByteOrder) []byte {
	encoder := xwire.NewEncoderSize(order, 256)
	encoder.Card8(SetupSuccess)
	encoder.Unused(1)
	encoder.Card16(s.ProtocolMajorVersion)
	encoder.Card16(s.ProtocolMinorVersion)
	lengthOffset := encoder.Len()
	encoder.Card16(0)
	encoder.Card32(s.ReleaseNumber)
	encoder.Card32(s.ResourceIDBase)
	encoder.Card32(s.ResourceIDMask)
	encoder.Card32(s.MotionBufferSize)
	encoder.Card16(uint16(len(s.Vendor)))
	encoder.Card16(s.MaximumRequestLength)
	encoder.Card8(uint8(len(s.Roots)))
	encoder.Card8(uint8(len(s.PixmapFormats)))
	encoder.Card8(s.ImageByteOrder)
	encoder.Card8(s.BitmapBitOrder)
	encoder.Card8(s.BitmapScanlineUnit)
	encoder.Card8(s.BitmapScanlinePad)
	encoder.Card8(s.MinKeycode)
	encoder.Card8(s.MaxKeycode)
	encoder.Unused(4)
	encoder.String8(s.Vendor)
	for _, format := range s.PixmapFormats {
		encoder.Card8(format.Depth)
		encoder.Card8(format.BitsPerPixel)
		encoder.Card8(format.ScanlinePad)
		encoder.Unused(formatSize - 3)
	}
	for _, screen := range s.Roots {
		encodeScreen(encoder, screen)
	}
	// Everything after the first 8 bytes, in 4-byte units. The body is
	// a multiple of 4 because every variable part is padded.
	encoder.PutCard16At(lengthOffset, uint16((encoder.Len()-setupPrefixSize)/4))
	return encoder.Bytes()
}

func encodeScreen(encoder *xwire.Encoder, screen Screen) {
	encoder.Card32(screen.Root)
	encoder.Card32(screen.DefaultColormap)
	encoder.Card32(screen.WhitePixel)
	encoder.Card32(screen.BlackPixel)
	encoder.Card32(screen.CurrentInputMasks)
	encoder.Card16(screen.WidthInPixels)
	encoder.Card16(screen.HeightInPixels)
	encoder.Card16(screen.WidthInMillimeters)
	encoder.Card16(screen.HeightInMillimeters)
	encoder.Card16(screen.MinInstalledMaps)
	encoder.Card16(screen.MaxInstalledMaps)
	encoder.Card32(screen.RootVisual)
	encoder.Card8(uint8(screen.BackingStores))
	encoder.Bool(screen.SaveUnders)
	encoder.Card8(screen.RootDepth)
	encoder.Card8(uint8(len(screen.AllowedDepths)))
	for _, depth := range screen.AllowedDepths {
		encoder.Card8(depth.Depth)
		encoder.Unused(1)
		encoder.Card16(uint16(len(depth.Visuals)))
		encoder.Unused(4)
		for _, visual := range depth.Visuals {
			encoder.Card32(visual.VisualID)
			encoder.Card8(uint8(visual.Class))
			encoder.Card8(visual.BitsPerRGBValue)
			encoder.Card16(visual.ColormapEntries)
			encoder.Card32(visual.RedMask)
			encoder.Card32(visual.GreenMask)
			encoder.Card32(visual.BlueMask)
			encoder.Unused(visualTypeSize - 20)
		}
	}
}

// ReadSetupResponse reads a complete setup response from r: the 8-byte
// prefix and the additional data its length field announces.
func ReadSetupResponse(r io.Reader, order xwire.ByteOrder) ([]byte, error) {
	prefix := make([]byte, setupPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	buf := make([]byte, setupPrefixSize+4*int(order.Uint16(prefix[6:8])))
	copy(buf, prefix)
	if _, err := io.ReadFull(r, buf[setupPrefixSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// DecodeConnectionSetupSuccess decodes a success reply produced by
// Encode. It is the client side of the exchange and is used by tools
// and tests.
func DecodeConnectionSetupSuccess(buf []byte, order xwire.ByteOrder) (ConnectionSetupSuccess, error) {
	d := &fieldDecoder{Decoder: xwire.NewDecoder(buf, order)}
	var s ConnectionSetupSuccess

	status := d.card8("status")
	d.skip(1)
	s.ProtocolMajorVersion = d.card16("protocol major version")
	s.ProtocolMinorVersion = d.card16("protocol minor version")
	length := d.card16("length")
	s.ReleaseNumber = d.card32("release number")
	s.ResourceIDBase = d.card32("resource id base")
	s.ResourceIDMask = d.card32("resource id mask")
	s.MotionBufferSize = d.card32("motion buffer size")
	vendorLength := d.card16("vendor length")
	s.MaximumRequestLength = d.card16("maximum request length")
	screenCount := d.card8("screen count")
	formatCount := d.card8("format count")
	s.ImageByteOrder = d.card8("image byte order")
	s.BitmapBitOrder = d.card8("bitmap bit order")
	s.BitmapScanlineUnit = d.card8("bitmap scanline unit")
	s.BitmapScanlinePad = d.card8("bitmap scanline pad")
	s.MinKeycode = d.card8("min keycode")
	s.MaxKeycode = d.card8("max keycode")
	d.skip(4)
	s.Vendor = d.string8(int(vendorLength), "vendor")
	if d.err != nil {
		return ConnectionSetupSuccess{}, d.err
	}
	if status != SetupSuccess {
		return ConnectionSetupSuccess{}, fmt.Errorf("connection setup status %d is not success", status)
	}
	if want := setupPrefixSize + 4*int(length); want != len(buf) {
		return ConnectionSetupSuccess{}, fmt.Errorf("connection setup length field says %d bytes, buffer has %d", want, len(buf))
	}

	for range formatCount {
		var format Format
		format.Depth = d.card8("format depth")
		format.BitsPerPixel = d.card8("format bits per pixel")
		format.ScanlinePad = d.card8("format scanline pad")
		d.skip(5)
		s.PixmapFormats = append(s.PixmapFormats, format)
	}
	for range screenCount {
		s.Roots = append(s.Roots, decodeScreen(d))
	}
	if d.err != nil {
		return ConnectionSetupSuccess{}, d.err
	}
	return s, nil
}

func decodeScreen(d *fieldDecoder) Screen {
	var screen Screen
	screen.Root = d.card32("root")
	screen.DefaultColormap = d.card32("default colormap")
	screen.WhitePixel = d.card32("white pixel")
	screen.BlackPixel = d.card32("black pixel")
	screen.CurrentInputMasks = d.card32("current input masks")
	screen.WidthInPixels = d.card16("width in pixels")
	screen.HeightInPixels = d.card16("height in pixels")
	screen.WidthInMillimeters = d.card16("width in millimeters")
	screen.HeightInMillimeters = d.card16("height in millimeters")
	screen.MinInstalledMaps = d.card16("min installed maps")
	screen.MaxInstalledMaps = d.card16("max installed maps")
	screen.RootVisual = d.card32("root visual")
	screen.BackingStores = BackingStores(d.card8("backing stores"))
	screen.SaveUnders = d.card8("save unders") != 0
	screen.RootDepth = d.card8("root depth")
	depthCount := d.card8("depth count")
	for range depthCount {
		var depth Depth
		depth.Depth = d.card8("depth")
		d.skip(1)
		visualCount := d.card16("visual count")
		d.skip(4)
		for range visualCount {
			var visual VisualType
			visual.VisualID = d.card32("visual id")
			visual.Class = VisualClass(d.card8("visual class"))
			visual.BitsPerRGBValue = d.card8("bits per rgb value")
			visual.ColormapEntries = d.card16("colormap entries")
			visual.RedMask = d.card32("red mask")
			visual.GreenMask = d.card32("green mask")
			visual.BlueMask = d.card32("blue mask")
			d.skip(4)
			depth.Visuals = append(depth.Visuals, visual)
			if d.err != nil {
				return screen
			}
		}
		screen.AllowedDepths = append(screen.AllowedDepths, depth)
		if d.err != nil {
			return screen
		}
	}
	return screen
}
