// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package screen describes the display geometry the server advertises
// to clients during the connection handshake.
//
// A [Model] is the boundary between the windowing side (which knows the
// real outputs) and the protocol core (which reports them). The core
// only ever reads a layout; it never changes one.
package screen

import (
	"errors"
	"fmt"
	"math"
)

// Screen is one output's geometry. Millimeter fields are optional:
// zero means "derive from the configured DPI".
type Screen struct {
	Width    uint16 `json:"width" yaml:"width"`
	Height   uint16 `json:"height" yaml:"height"`
	WidthMM  uint16 `json:"width_mm,omitempty" yaml:"width_mm,omitempty"`
	HeightMM uint16 `json:"height_mm,omitempty" yaml:"height_mm,omitempty"`
}

// Model provides the current screen layout.
type Model interface {
	Layout() []Screen
}

// Static is a fixed layout.
type Static []Screen

// Layout returns a copy of the layout.
func (s Static) Layout() []Screen {
	return append([]Screen(nil), s...)
}

// DefaultDPI is used to derive physical size when neither the layout nor
// the configuration provides one.
const DefaultDPI = 96

// MaxScreens is the most screens the setup reply can describe; the
// count travels in a single byte.
const MaxScreens = 255

// Millimeters converts a pixel extent to millimeters at dpi.
func Millimeters(pixels uint16, dpi float64) uint16 {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	mm := math.Round(float64(pixels) * 25.4 / dpi)
	if mm > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(mm)
}

// Resolve returns a copy of layout with every missing physical size
// filled in from dpi.
func Resolve(layout []Screen, dpi float64) []Screen {
	resolved := make([]Screen, len(layout))
	for i, s := range layout {
		if s.WidthMM == 0 {
			s.WidthMM = Millimeters(s.Width, dpi)
		}
		if s.HeightMM == 0 {
			s.HeightMM = Millimeters(s.Height, dpi)
		}
		resolved[i] = s
	}
	return resolved
}

// Validate checks that layout can be advertised: at least one screen,
// no more than MaxScreens, and every screen with a nonzero size.
func Validate(layout []Screen) error {
	if len(layout) == 0 {
		return errors.New("screen layout is empty")
	}
	if len(layout) > MaxScreens {
		return fmt.Errorf("screen layout has %d screens, maximum is %d", len(layout), MaxScreens)
	}
	var errs []error
	for i, s := range layout {
		if s.Width == 0 || s.Height == 0 {
			errs = append(errs, fmt.Errorf("screen %d: size %dx%d must be nonzero", i, s.Width, s.Height))
		}
	}
	return errors.Join(errs...)
}
