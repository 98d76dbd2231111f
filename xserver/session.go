// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/xserver/lib/clock"
	"github.com/bureau-foundation/xserver/lib/metrics"
	"github.com/bureau-foundation/xserver/lib/netutil"
	"github.com/bureau-foundation/xserver/lib/xproto"
	"github.com/bureau-foundation/xserver/lib/xwire"
)

// SessionState is the protocol state of one client connection.
type SessionState int32

const (
	StateAwaitingByteOrder SessionState = iota
	StateAwaitingSetupBody
	StateEstablished
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingByteOrder:
		return "awaiting_byte_order"
	case StateAwaitingSetupBody:
		return "awaiting_setup_body"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// errClientClosed marks a clean end of stream at a message boundary.
var errClientClosed = errors.New("client closed connection")

// Session is one client connection. Run drives it from the byte-order
// marker to close; Close may be called from any goroutine.
type Session struct {
	id     uint64
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	state atomic.Int32
	order xwire.ByteOrder

	// sequence is the number of the last request read. Only the Run
	// goroutine touches it; it wraps at 2^16.
	sequence uint16

	closing   atomic.Bool
	timedOut  atomic.Bool
	closeOnce sync.Once
}

func newSession(server *Server, id uint64, conn net.Conn) *Session {
	logger := server.logger.With("session", id)
	if credentials, err := netutil.PeerCredentialsOf(conn); err == nil {
		logger = logger.With("peer", credentials)
	}
	return &Session{
		id:     id,
		server: server,
		conn:   conn,
		reader: bufio.NewReader(conn),
		logger: logger,
	}
}

// ID returns the server-assigned session number.
func (s *Session) ID() uint64 { return s.id }

// State returns the current protocol state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) setState(state SessionState) { s.state.Store(int32(state)) }

// Close shuts the connection down. A blocked Run returns promptly. Close
// is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.conn.Close()
	})
}

// Run performs the handshake and then serves requests until the client
// disconnects, Close is called, or the client violates the protocol.
// It returns nil for an orderly end and a *ProtocolViolation when the
// client broke the protocol. The connection is closed on return.
func (s *Session) Run() (err error) {
	defer func() {
		err = s.finish(err)
		s.Close()
		s.setState(StateClosed)
		s.report(err)
	}()

	if err := s.handshake(); err != nil {
		return err
	}

	for {
		request, err := s.readRequest()
		if err != nil {
			return err
		}
		response := s.server.dispatcher.Dispatch(request, s.order, s.logger)
		if response == nil {
			continue
		}
		if _, err := s.conn.Write(response); err != nil {
			return fmt.Errorf("writing response to %s (sequence %d): %w", request.Header.Opcode, request.Sequence, err)
		}
	}
}

// finish turns the error that ended Run into its result. Errors caused
// by Close or by the client hanging up are not failures.
func (s *Session) finish(err error) error {
	if s.timedOut.Load() {
		return violation(ReasonHandshakeTimeout, nil, "no connection setup within %s", s.server.handshakeTimeout)
	}
	if err == nil || errors.Is(err, errClientClosed) {
		return nil
	}
	var protocolViolation *ProtocolViolation
	if errors.As(err, &protocolViolation) {
		return err
	}
	if s.closing.Load() || netutil.IsExpectedCloseError(err) {
		return nil
	}
	return err
}

// report logs the end of the session and records it in metrics.
func (s *Session) report(err error) {
	m := s.server.metrics
	// order is set only once the setup reply has been written.
	established := s.order != nil

	var protocolViolation *ProtocolViolation
	switch {
	case errors.As(err, &protocolViolation):
		m.Violation(string(protocolViolation.Reason))
		s.logger.Warn("closing session after protocol violation",
			"reason", protocolViolation.Reason,
			"error", err,
			"requests", s.sequence,
		)
	case err != nil:
		s.logger.Error("session failed", "error", err, "requests", s.sequence)
	default:
		s.logger.Debug("session closed", "requests", s.sequence)
	}

	if established {
		return
	}
	switch {
	case protocolViolation != nil && protocolViolation.Reason == ReasonHandshakeTimeout:
		m.Handshake(metrics.HandshakeTimedOut)
	case protocolViolation != nil && (protocolViolation.Reason == ReasonByteOrder || protocolViolation.Reason == ReasonVersion):
		m.Handshake(metrics.HandshakeRejected)
	default:
		m.Handshake(metrics.HandshakeFailed)
	}
}

// handshake reads the connection setup and writes the success reply.
func (s *Session) handshake() error {
	var timer *clock.Timer
	if timeout := s.server.handshakeTimeout; timeout > 0 {
		timer = s.server.clock.AfterFunc(timeout, func() {
			s.timedOut.Store(true)
			s.Close()
		})
		defer timer.Stop()
	}

	s.setState(StateAwaitingByteOrder)
	marker, err := s.reader.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errClientClosed
		}
		return fmt.Errorf("reading byte-order marker: %w", err)
	}
	order, ok := xwire.OrderForMarker(marker)
	if !ok || (marker == xwire.MarkerMSBFirst && !s.server.allowMSBFirst) {
		return violation(ReasonByteOrder, nil, "byte-order marker %#02x", marker)
	}

	s.setState(StateAwaitingSetupBody)
	headerBytes := make([]byte, xproto.SetupHeaderSize)
	if err := s.readFull(headerBytes, ReasonTruncatedSetup); err != nil {
		return err
	}
	header, err := xproto.DecodeSetupHeader(headerBytes, order)
	if err != nil {
		return violation(ReasonTruncatedSetup, err, "setup header")
	}
	if header.ProtocolMajorVersion != xproto.MajorVersion {
		return violation(ReasonVersion, nil, "protocol %d.%d", header.ProtocolMajorVersion, header.ProtocolMinorVersion)
	}

	body := make([]byte, header.AuthorizationLength())
	if err := s.readFull(body, ReasonTruncatedSetup); err != nil {
		return err
	}
	setup, err := xproto.DecodeConnectionSetup(marker, header, body, order)
	if err != nil {
		return violation(ReasonTruncatedSetup, err, "authorization")
	}

	// A timer that can no longer be stopped has fired and closed the
	// connection.
	if timer != nil && !timer.Stop() {
		return errClientClosed
	}

	success := buildSetupSuccess(s.server.setupInfo, s.server.screens.Layout())
	if _, err := s.conn.Write(success.Encode(order)); err != nil {
		return fmt.Errorf("writing setup reply: %w", err)
	}

	s.order = order
	s.setState(StateEstablished)
	s.server.metrics.Handshake(metrics.HandshakeAccepted)
	s.logger.Info("client connected",
		"byte_order", string(marker),
		"protocol_minor", setup.ProtocolMinorVersion,
		"auth_protocol", setup.AuthorizationProtocolName,
		"screens", len(success.Roots),
	)
	return nil
}

// readRequest reads one complete request and assigns it the next
// sequence number.
func (s *Session) readRequest() (*xproto.Request, error) {
	headerBytes := make([]byte, xproto.RequestHeaderSize)
	if _, err := io.ReadFull(s.reader, headerBytes); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, errClientClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, violation(ReasonTruncatedRequest, err, "request header")
		default:
			return nil, fmt.Errorf("reading request header: %w", err)
		}
	}
	header, err := xproto.DecodeRequestHeader(headerBytes, s.order)
	if err != nil {
		return nil, violation(ReasonTruncatedRequest, err, "request header")
	}
	bodyLength, err := header.BodyLength()
	if err != nil {
		return nil, violation(ReasonBigRequest, err, "%s request", header.Opcode)
	}

	data := make([]byte, xproto.RequestHeaderSize+bodyLength)
	copy(data, headerBytes)
	if err := s.readFull(data[xproto.RequestHeaderSize:], ReasonTruncatedRequest); err != nil {
		return nil, err
	}

	s.sequence++
	return &xproto.Request{Header: header, Data: data, Sequence: s.sequence}, nil
}

// readFull fills buf. Running out of input part way through a message
// is a protocol violation of the given reason.
func (s *Session) readFull(buf []byte, reason ViolationReason) error {
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return violation(reason, io.ErrUnexpectedEOF, "needed %d bytes", len(buf))
		}
		return err
	}
	return nil
}
