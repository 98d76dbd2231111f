// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/xserver/lib/clock"
	"github.com/bureau-foundation/xserver/lib/metrics"
	"github.com/bureau-foundation/xserver/lib/xproto"
	"github.com/bureau-foundation/xserver/lib/xwire"
)

// HandlerFunc answers one request. A nil Reply with a nil error means
// the request produces no response. A returned *xproto.Error is sent to
// the client as a protocol Error; a decode error for a request that is
// too short becomes BadLength; any other error becomes
// BadImplementation.
type HandlerFunc func(request *xproto.Request, order xwire.ByteOrder) (xproto.Reply, error)

// Dispatcher routes requests to handlers by major opcode and encodes
// whatever they return with the request's sequence number.
type Dispatcher struct {
	handlers map[xproto.Opcode]HandlerFunc

	// silentUnknown drops requests with no handler instead of
	// answering them with BadRequest.
	silentUnknown bool

	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher with no handlers. Handler time is
// measured on clk, which defaults to the real clock when nil.
func NewDispatcher(silentUnknown bool, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		handlers:      make(map[xproto.Opcode]HandlerFunc),
		silentUnknown: silentUnknown,
		clock:         clk,
		metrics:       m,
		logger:        logger,
	}
}

// Handle registers handler for opcode. It panics if the opcode already
// has a handler.
func (d *Dispatcher) Handle(opcode xproto.Opcode, handler HandlerFunc) {
	if _, exists := d.handlers[opcode]; exists {
		panic(fmt.Sprintf("xserver.Dispatcher: duplicate handler for %s", opcode))
	}
	d.handlers[opcode] = handler
}

// Handles reports whether opcode has a handler.
func (d *Dispatcher) Handles(opcode xproto.Opcode) bool {
	_, exists := d.handlers[opcode]
	return exists
}

// Dispatch runs the handler for request and returns the bytes to write
// back, or nil when nothing is sent.
func (d *Dispatcher) Dispatch(request *xproto.Request, order xwire.ByteOrder, logger *slog.Logger) []byte {
	opcode := request.Header.Opcode
	start := d.clock.Now()

	handler, exists := d.handlers[opcode]
	if !exists {
		if d.silentUnknown {
			logger.Debug("dropping unhandled request", "opcode", opcode, "sequence", request.Sequence)
			d.metrics.Request(opcode.String(), metrics.OutcomeDropped, d.clock.Now().Sub(start))
			return nil
		}
		logger.Debug("unhandled request", "opcode", opcode, "sequence", request.Sequence)
		d.metrics.Request(opcode.String(), metrics.OutcomeError, d.clock.Now().Sub(start))
		return xproto.BadRequest(opcode).Encode(order, request.Sequence)
	}

	reply, err := handler(request, order)
	if err != nil {
		protocolError := asProtocolError(opcode, err)
		if protocolError.Code == xproto.ErrorImplementation {
			logger.Error("request handler failed", "opcode", opcode, "sequence", request.Sequence, "error", err)
		} else {
			logger.Debug("request failed", "opcode", opcode, "sequence", request.Sequence, "error", err)
		}
		d.metrics.Request(opcode.String(), metrics.OutcomeError, d.clock.Now().Sub(start))
		return protocolError.Encode(order, request.Sequence)
	}
	if reply == nil {
		d.metrics.Request(opcode.String(), metrics.OutcomeNoReply, d.clock.Now().Sub(start))
		return nil
	}
	d.metrics.Request(opcode.String(), metrics.OutcomeReply, d.clock.Now().Sub(start))
	return reply.Encode(order, request.Sequence)
}

// asProtocolError maps a handler error onto the protocol Error that
// reports it.
func asProtocolError(opcode xproto.Opcode, err error) *xproto.Error {
	var protocolError *xproto.Error
	switch {
	case errors.As(err, &protocolError):
		return protocolError
	case errors.Is(err, xwire.ErrShortBuffer), errors.Is(err, xwire.ErrOffsetOutOfRange):
		return xproto.BadLength(opcode)
	default:
		return xproto.BadImplementation(opcode)
	}
}
