// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/xserver/lib/clock"
	"github.com/bureau-foundation/xserver/lib/screen"
	"github.com/bureau-foundation/xserver/lib/testutil"
	"github.com/bureau-foundation/xserver/lib/xproto"
	"github.com/bureau-foundation/xserver/lib/xwire"
)

// pipeSession runs a session for server over an in-memory connection
// and returns the client end and the channel Run's result arrives on.
func pipeSession(t *testing.T, server *Server) (net.Conn, *Session, <-chan error) {
	t.Helper()
	client, serverEnd := net.Pipe()
	session := newSession(server, 1, serverEnd)
	result := make(chan error, 1)
	go func() {
		result <- session.Run()
	}()
	t.Cleanup(func() {
		client.Close()
		session.Close()
	})
	client.SetDeadline(time.Now().Add(10 * time.Second))
	return client, session, result
}

func connectionSetup(marker byte, major uint16) []byte {
	order, ok := xwire.OrderForMarker(marker)
	if !ok {
		order = little
	}
	return xproto.ConnectionSetup{
		ByteOrder:                 marker,
		ProtocolMajorVersion:      major,
		AuthorizationProtocolName: "MIT-MAGIC-COOKIE-1",
		AuthorizationProtocolData: make([]byte, 16),
	}.Encode(order)
}

// completeHandshake sends a little-endian connection setup and decodes
// the server's reply.
func completeHandshake(t *testing.T, conn net.Conn) xproto.ConnectionSetupSuccess {
	t.Helper()
	if _, err := conn.Write(connectionSetup(xwire.MarkerLSBFirst, xproto.MajorVersion)); err != nil {
		t.Fatalf("writing connection setup: %v", err)
	}
	wire, err := xproto.ReadSetupResponse(conn, little)
	if err != nil {
		t.Fatalf("reading setup response: %v", err)
	}
	success, err := xproto.DecodeConnectionSetupSuccess(wire, little)
	if err != nil {
		t.Fatalf("decoding setup response: %v", err)
	}
	return success
}

// requireNoBytes asserts that the server closes conn without sending
// anything.
func requireNoBytes(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("read after violation = (%d, %v), want (0, EOF)", n, err)
	}
}

// roundtrip sends GetInputFocus and waits for its reply, so that
// everything the session did before reading it has completed.
func roundtrip(t *testing.T, conn net.Conn) {
	t.Helper()
	if _, err := conn.Write(xproto.EncodeRequest(little, xproto.OpGetInputFocus, 0, nil)); err != nil {
		t.Fatalf("writing GetInputFocus: %v", err)
	}
	if _, err := xproto.ReadResponse(conn, little); err != nil {
		t.Fatalf("reading GetInputFocus reply: %v", err)
	}
}

func requireViolation(t *testing.T, err error, reason ViolationReason) {
	t.Helper()
	var protocolViolation *ProtocolViolation
	if !errors.As(err, &protocolViolation) {
		t.Fatalf("Run() = %v, want a protocol violation", err)
	}
	if protocolViolation.Reason != reason {
		t.Fatalf("violation reason = %s, want %s (%v)", protocolViolation.Reason, reason, err)
	}
}

func TestHandshakeSetupReply(t *testing.T) {
	server := NewServer(Options{
		Vendor:        "Test Vendor",
		ReleaseNumber: 12,
		Screens:       screen.Static(screen.Resolve([]screen.Screen{{Width: 1280, Height: 720}}, 96)),
	})
	conn, session, _ := pipeSession(t, server)

	success := completeHandshake(t, conn)
	if success.Vendor != "Test Vendor" || success.ReleaseNumber != 12 {
		t.Errorf("vendor %q release %d", success.Vendor, success.ReleaseNumber)
	}
	if success.ProtocolMajorVersion != 11 || success.ProtocolMinorVersion != 0 {
		t.Errorf("protocol %d.%d, want 11.0", success.ProtocolMajorVersion, success.ProtocolMinorVersion)
	}
	if success.ResourceIDMask != 0x00ffffff || success.MaximumRequestLength != 0xffff {
		t.Errorf("resource mask %#x max request length %d", success.ResourceIDMask, success.MaximumRequestLength)
	}
	if len(success.Roots) != 1 {
		t.Fatalf("%d screens, want 1", len(success.Roots))
	}
	root := success.Roots[0]
	if root.WidthInPixels != 1280 || root.HeightInPixels != 720 {
		t.Errorf("screen %dx%d, want 1280x720", root.WidthInPixels, root.HeightInPixels)
	}
	if root.WidthInMillimeters != 339 || root.HeightInMillimeters != 191 {
		t.Errorf("screen %dx%d mm, want 339x191", root.WidthInMillimeters, root.HeightInMillimeters)
	}
	if root.Root != RootWindow || root.RootDepth != 32 {
		t.Errorf("root window %#x depth %d", root.Root, root.RootDepth)
	}
	if len(root.AllowedDepths) != 1 || len(root.AllowedDepths[0].Visuals) != 1 ||
		root.AllowedDepths[0].Visuals[0].Class != xproto.TrueColor {
		t.Errorf("allowed depths = %+v, want one TrueColor visual", root.AllowedDepths)
	}
	roundtrip(t, conn)
	if session.State() != StateEstablished {
		t.Errorf("state after handshake = %s, want established", session.State())
	}
}

func TestHandshakeReportsEveryScreen(t *testing.T) {
	layout := screen.Resolve([]screen.Screen{
		{Width: 800, Height: 600},
		{Width: 1024, Height: 768, WidthMM: 271, HeightMM: 203},
	}, 96)
	server := NewServer(Options{Screens: screen.Static(layout)})
	conn, _, _ := pipeSession(t, server)

	setup := xproto.ConnectionSetup{ByteOrder: xwire.MarkerLSBFirst, ProtocolMajorVersion: xproto.MajorVersion}
	if _, err := conn.Write(setup.Encode(little)); err != nil {
		t.Fatalf("writing connection setup: %v", err)
	}
	wire, err := xproto.ReadSetupResponse(conn, little)
	if err != nil {
		t.Fatalf("reading setup response: %v", err)
	}
	success, err := xproto.DecodeConnectionSetupSuccess(wire, little)
	if err != nil {
		t.Fatalf("decoding setup response: %v", err)
	}

	if len(success.Roots) != 2 {
		t.Fatalf("%d screens, want 2", len(success.Roots))
	}
	for i, want := range []struct{ width, height, widthMM, heightMM uint16 }{
		{800, 600, 212, 159},
		{1024, 768, 271, 203},
	} {
		root := success.Roots[i]
		if root.WidthInPixels != want.width || root.HeightInPixels != want.height {
			t.Errorf("screen %d: %dx%d, want %dx%d", i, root.WidthInPixels, root.HeightInPixels, want.width, want.height)
		}
		if root.WidthInMillimeters != want.widthMM || root.HeightInMillimeters != want.heightMM {
			t.Errorf("screen %d: %dx%d mm, want %dx%d", i, root.WidthInMillimeters, root.HeightInMillimeters, want.widthMM, want.heightMM)
		}
		if len(root.AllowedDepths) != 1 || len(root.AllowedDepths[0].Visuals) != 1 {
			t.Errorf("screen %d: allowed depths = %+v, want one depth with one visual", i, root.AllowedDepths)
		}
	}
	roundtrip(t, conn)
}

func TestRejectedByteOrder(t *testing.T) {
	for _, marker := range []byte{'X', xwire.MarkerMSBFirst} {
		server := NewServer(Options{})
		conn, _, result := pipeSession(t, server)

		// The session reads the whole write before rejecting the marker.
		if _, err := conn.Write(connectionSetup(marker, xproto.MajorVersion)); err != nil {
			t.Fatalf("marker %q: writing setup: %v", marker, err)
		}
		requireNoBytes(t, conn)
		requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonByteOrder)
	}
}

func TestMSBFirstWhenAllowed(t *testing.T) {
	server := NewServer(Options{AllowMSBFirst: true})
	conn, _, _ := pipeSession(t, server)
	big := xproto.ConnectionSetup{ByteOrder: xwire.MarkerMSBFirst, ProtocolMajorVersion: 11}
	order, _ := xwire.OrderForMarker(xwire.MarkerMSBFirst)

	if _, err := conn.Write(big.Encode(order)); err != nil {
		t.Fatal(err)
	}
	wire, err := xproto.ReadSetupResponse(conn, order)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := xproto.DecodeConnectionSetupSuccess(wire, order); err != nil {
		t.Fatalf("decoding big-endian setup reply: %v", err)
	}

	if _, err := conn.Write(xproto.InternAtomRequest{Name: "PRIMARY"}.Encode(order)); err != nil {
		t.Fatal(err)
	}
	response, err := xproto.ReadResponse(conn, order)
	if err != nil {
		t.Fatal(err)
	}
	reply, err := xproto.DecodeInternAtomReply(response, order)
	if err != nil || reply.Atom != 1 {
		t.Errorf("big-endian InternAtom(PRIMARY) = %+v, %v", reply, err)
	}
}

func TestUnsupportedProtocolVersion(t *testing.T) {
	server := NewServer(Options{})
	conn, _, result := pipeSession(t, server)

	if _, err := conn.Write(connectionSetup(xwire.MarkerLSBFirst, 10)); err != nil {
		t.Fatal(err)
	}
	requireNoBytes(t, conn)
	requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonVersion)
}

func TestTruncatedAuthorization(t *testing.T) {
	server := NewServer(Options{})
	conn, _, result := pipeSession(t, server)

	wire := connectionSetup(xwire.MarkerLSBFirst, xproto.MajorVersion)
	if _, err := conn.Write(wire[:len(wire)-6]); err != nil {
		t.Fatal(err)
	}
	conn.Close()
	requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonTruncatedSetup)
}

func TestAuthorizationNameLongerThanInput(t *testing.T) {
	server := NewServer(Options{})
	conn, _, result := pipeSession(t, server)

	header := xwire.NewEncoder(little)
	header.Card8(xwire.MarkerLSBFirst)
	header.Unused(1)
	header.Card16(xproto.MajorVersion)
	header.Card16(0)
	header.Card16(64)
	header.Card16(0)
	header.Unused(2)
	header.Raw([]byte("MIT-"))
	if _, err := conn.Write(header.Bytes()); err != nil {
		t.Fatal(err)
	}
	conn.Close()
	requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonTruncatedSetup)
}

func TestDisconnectBeforeSetup(t *testing.T) {
	server := NewServer(Options{})
	conn, session, result := pipeSession(t, server)

	conn.Close()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"); err != nil {
		t.Errorf("Run() = %v, want nil for a client that never spoke", err)
	}
	if session.State() != StateClosed {
		t.Errorf("state = %s, want closed", session.State())
	}
}

func TestHandshakeTimeout(t *testing.T) {
	fake := clock.Fake(time.Unix(1_800_000_000, 0))
	server := NewServer(Options{Clock: fake, HandshakeTimeout: 30 * time.Second})
	_, _, result := pipeSession(t, server)

	fake.WaitForTimers(1)
	fake.Advance(29 * time.Second)
	select {
	case err := <-result:
		t.Fatalf("session ended before the timeout: %v", err)
	default:
	}
	fake.Advance(time.Second)

	requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonHandshakeTimeout)
}

func TestHandshakeTimerStoppedAfterSetup(t *testing.T) {
	fake := clock.Fake(time.Unix(1_800_000_000, 0))
	server := NewServer(Options{Clock: fake, HandshakeTimeout: 30 * time.Second})
	conn, session, _ := pipeSession(t, server)

	completeHandshake(t, conn)
	if pending := fake.PendingCount(); pending != 0 {
		t.Fatalf("%d timers pending after handshake, want 0", pending)
	}
	fake.Advance(time.Hour)
	roundtrip(t, conn)
	if session.State() != StateEstablished {
		t.Errorf("state = %s after advancing past the timeout, want established", session.State())
	}
}

func TestSequenceNumbers(t *testing.T) {
	server := NewServer(Options{})
	conn, _, result := pipeSession(t, server)
	completeHandshake(t, conn)

	requests := [][]byte{
		xproto.InternAtomRequest{Name: "WM_PROTOCOLS"}.Encode(little),
		xproto.EncodeRequest(little, xproto.OpCreateGC, 0, make([]byte, 12)),
		xproto.EncodeRequest(little, xproto.OpNoOperation, 0, nil),
		xproto.QueryExtensionRequest{Name: "XFIXES"}.Encode(little),
		xproto.GetAtomNameRequest{Atom: 1}.Encode(little),
	}
	// One write: the pipe is unbuffered, so the server could not read a
	// second write while blocked sending the first response.
	var batch []byte
	for _, wire := range requests {
		batch = append(batch, wire...)
	}
	if _, err := conn.Write(batch); err != nil {
		t.Fatal(err)
	}

	// NoOperation (sequence 3) has no response.
	for _, want := range []uint16{1, 2, 4, 5} {
		response, err := xproto.ReadResponse(conn, little)
		if err != nil {
			t.Fatalf("reading response %d: %v", want, err)
		}
		if got := little.Uint16(response[2:4]); got != want {
			t.Errorf("response sequence = %d, want %d", got, want)
		}
		if want == 2 && response[0] != xproto.ResponseError {
			t.Errorf("CreateGC answered with response type %d, want error", response[0])
		}
	}

	conn.Close()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"); err != nil {
		t.Errorf("Run() after client close = %v, want nil", err)
	}
}

func TestSequenceNumberWraps(t *testing.T) {
	server := NewServer(Options{})
	conn, session, _ := pipeSession(t, server)
	completeHandshake(t, conn)
	// Run's goroutine is blocked reading the next request header, so
	// the field is not being written concurrently.
	session.sequence = 65534

	for _, want := range []uint16{65535, 0, 1} {
		if _, err := conn.Write(xproto.EncodeRequest(little, xproto.OpGetInputFocus, 0, nil)); err != nil {
			t.Fatal(err)
		}
		response, err := xproto.ReadResponse(conn, little)
		if err != nil {
			t.Fatal(err)
		}
		if got := little.Uint16(response[2:4]); got != want {
			t.Errorf("sequence = %d, want %d", got, want)
		}
	}
}

func TestTruncatedRequest(t *testing.T) {
	server := NewServer(Options{})
	conn, _, result := pipeSession(t, server)
	completeHandshake(t, conn)

	wire := xproto.InternAtomRequest{Name: "_NET_SUPPORTED"}.Encode(little)
	if _, err := conn.Write(wire[:len(wire)-4]); err != nil {
		t.Fatal(err)
	}
	conn.Close()
	requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonTruncatedRequest)
	if _, ok := server.Atoms().Lookup("_NET_SUPPORTED"); ok {
		t.Error("truncated request interned its atom")
	}
}

func TestBigRequestRejected(t *testing.T) {
	server := NewServer(Options{})
	conn, _, result := pipeSession(t, server)
	completeHandshake(t, conn)

	if _, err := conn.Write([]byte{byte(xproto.OpInternAtom), 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	requireNoBytes(t, conn)
	requireViolation(t, testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"), ReasonBigRequest)
}

func TestCloseUnblocksRun(t *testing.T) {
	server := NewServer(Options{})
	conn, session, result := pipeSession(t, server)
	completeHandshake(t, conn)

	session.Close()
	session.Close()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run"); err != nil {
		t.Errorf("Run() after Close = %v, want nil", err)
	}
	if session.State() != StateClosed {
		t.Errorf("state = %s, want closed", session.State())
	}
}
