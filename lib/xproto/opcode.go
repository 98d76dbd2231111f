// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproto

import "fmt"

// Opcode identifies the type of a core protocol request.
type Opcode uint8

// Core request opcodes known to the server. Only some have handlers;
// the rest are named so that logs and metrics are readable.
const (
	OpCreateWindow       Opcode = 1
	OpMapWindow          Opcode = 8
	OpInternAtom         Opcode = 16
	OpGetAtomName        Opcode = 17
	OpChangeProperty     Opcode = 18
	OpGetProperty        Opcode = 20
	OpGetInputFocus      Opcode = 43
	OpOpenFont           Opcode = 45
	OpCreatePixmap       Opcode = 53
	OpCreateGC           Opcode = 55
	OpCreateColormap     Opcode = 78
	OpQueryColors        Opcode = 91
	OpQueryExtension     Opcode = 98
	OpListExtensions     Opcode = 99
	OpGetKeyboardMapping Opcode = 101
	OpNoOperation        Opcode = 127
)

var opcodeNames = map[Opcode]string{
	OpCreateWindow:       "CreateWindow",
	OpMapWindow:          "MapWindow",
	OpInternAtom:         "InternAtom",
	OpGetAtomName:        "GetAtomName",
	OpChangeProperty:     "ChangeProperty",
	OpGetProperty:        "GetProperty",
	OpGetInputFocus:      "GetInputFocus",
	OpOpenFont:           "OpenFont",
	OpCreatePixmap:       "CreatePixmap",
	OpCreateGC:           "CreateGC",
	OpCreateColormap:     "CreateColormap",
	OpQueryColors:        "QueryColors",
	OpQueryExtension:     "QueryExtension",
	OpListExtensions:     "ListExtensions",
	OpGetKeyboardMapping: "GetKeyboardMapping",
	OpNoOperation:        "NoOperation",
}

// String returns the request name, or "Opcode(n)" for opcodes without
// a name.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}
