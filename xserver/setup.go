// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"github.com/bureau-foundation/xserver/lib/screen"
	"github.com/bureau-foundation/xserver/lib/xproto"
)

// Server-owned resource ids. Every screen reports the same root window
// and default colormap; the server does not allocate resources per
// connection.
const (
	RootWindow      uint32 = 0x01000000
	DefaultColormap uint32 = 0x02000000
)

// Values advertised in every setup reply.
const (
	resourceIDBase uint32 = 0
	resourceIDMask uint32 = 0x00ffffff

	rootDepth       uint8  = 32
	trueColorVisual uint32 = 0

	minKeycode uint8 = 8
	maxKeycode uint8 = 255
)

// SetupInfo is the server identity reported during the handshake.
type SetupInfo struct {
	Vendor        string
	ReleaseNumber uint32
}

// buildSetupSuccess describes layout as a setup reply. Every screen
// offers a single 32-bit TrueColor visual.
func buildSetupSuccess(info SetupInfo, layout []screen.Screen) xproto.ConnectionSetupSuccess {
	roots := make([]xproto.Screen, 0, len(layout))
	for _, s := range layout {
		roots = append(roots, xproto.Screen{
			Root:                RootWindow,
			DefaultColormap:     DefaultColormap,
			WhitePixel:          0x00ffffff,
			BlackPixel:          0x00000000,
			WidthInPixels:       s.Width,
			HeightInPixels:      s.Height,
			WidthInMillimeters:  s.WidthMM,
			HeightInMillimeters: s.HeightMM,
			MinInstalledMaps:    1,
			MaxInstalledMaps:    1,
			RootVisual:          trueColorVisual,
			BackingStores:       xproto.BackingStoresAlways,
			SaveUnders:          true,
			RootDepth:           rootDepth,
			AllowedDepths: []xproto.Depth{{
				Depth: rootDepth,
				Visuals: []xproto.VisualType{{
					VisualID:        trueColorVisual,
					Class:           xproto.TrueColor,
					BitsPerRGBValue: 8,
					ColormapEntries: 256,
					RedMask:         0x000000ff,
					GreenMask:       0x0000ff00,
					BlueMask:        0x00ff0000,
				}},
			}},
		})
	}

	return xproto.ConnectionSetupSuccess{
		ProtocolMajorVersion: xproto.MajorVersion,
		ProtocolMinorVersion: xproto.MinorVersion,
		ReleaseNumber:        info.ReleaseNumber,
		ResourceIDBase:       resourceIDBase,
		ResourceIDMask:       resourceIDMask,
		MotionBufferSize:     0,
		Vendor:               info.Vendor,
		MaximumRequestLength: 0xffff,
		ImageByteOrder:       xproto.ImageLSBFirst,
		BitmapBitOrder:       xproto.BitmapLeastSignificant,
		BitmapScanlineUnit:   32,
		BitmapScanlinePad:    32,
		MinKeycode:           minKeycode,
		MaxKeycode:           maxKeycode,
		PixmapFormats:        []xproto.Format{{Depth: 32, BitsPerPixel: 32, ScanlinePad: 32}},
		Roots:                roots,
	}
}
