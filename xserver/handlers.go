// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"log/slog"

	"github.com/bureau-foundation/xserver/lib/atom"
	"github.com/bureau-foundation/xserver/lib/metrics"
	"github.com/bureau-foundation/xserver/lib/xproto"
	"github.com/bureau-foundation/xserver/lib/xwire"
)

// coreHandlers implements the core requests the server answers.
type coreHandlers struct {
	atoms   *atom.Table
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func registerCoreHandlers(d *Dispatcher, h *coreHandlers) {
	d.Handle(xproto.OpInternAtom, h.internAtom)
	d.Handle(xproto.OpGetAtomName, h.getAtomName)
	d.Handle(xproto.OpGetProperty, h.getProperty)
	d.Handle(xproto.OpGetInputFocus, h.getInputFocus)
	d.Handle(xproto.OpQueryExtension, h.queryExtension)
	d.Handle(xproto.OpListExtensions, h.listExtensions)
	d.Handle(xproto.OpNoOperation, h.noOperation)
}

// internAtom returns the atom for a name, creating it unless
// only-if-exists is set. An unknown name with only-if-exists yields
// None.
func (h *coreHandlers) internAtom(request *xproto.Request, order xwire.ByteOrder) (xproto.Reply, error) {
	q, err := xproto.DecodeInternAtom(request, order)
	if err != nil {
		return nil, err
	}

	if q.OnlyIfExists {
		id, _ := h.atoms.Lookup(q.Name)
		return xproto.InternAtomReply{Atom: uint32(id)}, nil
	}

	id, created := h.atoms.InternCreated(q.Name)
	if created {
		h.metrics.AtomInterned()
		h.logger.Debug("interned atom", "atom", uint32(id), "name", q.Name)
	}
	return xproto.InternAtomReply{Atom: uint32(id)}, nil
}

func (h *coreHandlers) getAtomName(request *xproto.Request, order xwire.ByteOrder) (xproto.Reply, error) {
	q, err := xproto.DecodeGetAtomName(request, order)
	if err != nil {
		return nil, err
	}
	name, ok := h.atoms.Name(atom.ID(q.Atom))
	if !ok {
		return nil, xproto.BadAtom(xproto.OpGetAtomName, q.Atom)
	}
	return xproto.GetAtomNameReply{Name: name}, nil
}

// getProperty reports every property as absent: no window carries
// properties.
func (h *coreHandlers) getProperty(request *xproto.Request, order xwire.ByteOrder) (xproto.Reply, error) {
	q, err := xproto.DecodeGetProperty(request, order)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("property requested",
		"window", q.Window,
		"property", q.Property,
		"type", q.Type,
	)
	return xproto.GetPropertyReply{Format: 8, Type: uint32(atom.None)}, nil
}

func (h *coreHandlers) getInputFocus(*xproto.Request, xwire.ByteOrder) (xproto.Reply, error) {
	return xproto.GetInputFocusReply{RevertTo: xproto.RevertToPointerRoot, Focus: RootWindow}, nil
}

// queryExtension answers every query with "not present".
func (h *coreHandlers) queryExtension(request *xproto.Request, order xwire.ByteOrder) (xproto.Reply, error) {
	q, err := xproto.DecodeQueryExtension(request, order)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("extension queried", "extension", q.Name)
	return xproto.QueryExtensionReply{Present: false}, nil
}

func (h *coreHandlers) listExtensions(*xproto.Request, xwire.ByteOrder) (xproto.Reply, error) {
	return xproto.ListExtensionsReply{}, nil
}

func (h *coreHandlers) noOperation(*xproto.Request, xwire.ByteOrder) (xproto.Reply, error) {
	return nil, nil
}
