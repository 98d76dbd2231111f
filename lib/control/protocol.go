// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

// Action names understood by the display server.
const (
	ActionStatus     = "status"
	ActionListAtoms  = "list-atoms"
	ActionLookupAtom = "lookup-atom"
	ActionAtomName   = "atom-name"
)

// Status is the result of ActionStatus.
type Status struct {
	Display        int     `json:"display"`
	Vendor         string  `json:"vendor"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	ActiveSessions int     `json:"active_sessions"`
	TotalSessions  uint64  `json:"total_sessions"`
	Atoms          int     `json:"atoms"`
	Screens        int     `json:"screens"`
}

// Atom is one atom table entry, as returned by ActionListAtoms,
// ActionLookupAtom, and ActionAtomName. ID 0 means the name is not
// interned.
type Atom struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// ListAtomsRequest is the optional payload of ActionListAtoms.
type ListAtomsRequest struct {
	// DynamicOnly omits the predefined atoms.
	DynamicOnly bool `cbor:"dynamic_only"`
}

// LookupAtomRequest is the payload of ActionLookupAtom. The lookup never
// creates an atom.
type LookupAtomRequest struct {
	Name string `cbor:"name"`
}

// AtomNameRequest is the payload of ActionAtomName.
type AtomNameRequest struct {
	ID uint32 `cbor:"id"`
}
