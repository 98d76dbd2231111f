// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/xserver/lib/atom"
	"github.com/bureau-foundation/xserver/lib/codec"
	"github.com/bureau-foundation/xserver/lib/control"
)

// RegisterControlActions installs the display server's actions on a
// control socket server.
func RegisterControlActions(controlServer *control.Server, s *Server) {
	controlServer.Handle(control.ActionStatus, func(context.Context, []byte) (any, error) {
		return s.Status(), nil
	})

	controlServer.Handle(control.ActionListAtoms, func(_ context.Context, raw []byte) (any, error) {
		var request control.ListAtomsRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid list-atoms request: %w", err)
		}
		entries := s.atoms.Entries()
		if request.DynamicOnly {
			entries = s.atoms.Dynamic()
		}
		atoms := make([]control.Atom, len(entries))
		for i, entry := range entries {
			atoms[i] = control.Atom{ID: uint32(entry.ID), Name: entry.Name}
		}
		return atoms, nil
	})

	controlServer.Handle(control.ActionLookupAtom, func(_ context.Context, raw []byte) (any, error) {
		var request control.LookupAtomRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid lookup-atom request: %w", err)
		}
		id, _ := s.atoms.Lookup(request.Name)
		return control.Atom{ID: uint32(id), Name: request.Name}, nil
	})

	controlServer.Handle(control.ActionAtomName, func(_ context.Context, raw []byte) (any, error) {
		var request control.AtomNameRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid atom-name request: %w", err)
		}
		name, ok := s.atoms.Name(atom.ID(request.ID))
		if !ok {
			return nil, fmt.Errorf("atom %d does not exist", request.ID)
		}
		return control.Atom{ID: request.ID, Name: name}, nil
	})
}
