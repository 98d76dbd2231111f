// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/xserver/lib/control"
	"github.com/bureau-foundation/xserver/lib/testutil"
	"github.com/bureau-foundation/xserver/lib/xproto"
	"github.com/bureau-foundation/xserver/lib/xwire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for {
		if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
			return
		}
		if t.Context().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}

// startServer listens on a fresh display socket and serves until the
// test ends. It returns the socket path and the channel Serve's result
// arrives on.
func startServer(t *testing.T, server *Server) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "X0")
	listener, err := Listen(socketPath, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx, listener)
	}()
	t.Cleanup(cancel)
	waitForSocket(t, socketPath)
	return socketPath, cancel, serveDone
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to display: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func TestServeHandshakeAndRequests(t *testing.T) {
	server := NewServer(Options{Logger: testLogger()})
	socketPath, cancel, serveDone := startServer(t, server)
	conn := dial(t, socketPath)

	success := completeHandshake(t, conn)
	if success.Vendor != DefaultVendor {
		t.Errorf("vendor = %q, want %q", success.Vendor, DefaultVendor)
	}
	if len(success.Roots) != 1 || success.Roots[0].WidthInPixels != 1920 || success.Roots[0].WidthInMillimeters != 508 {
		t.Errorf("default screens = %+v", success.Roots)
	}

	if _, err := conn.Write(xproto.InternAtomRequest{Name: "_NET_ACTIVE_WINDOW"}.Encode(little)); err != nil {
		t.Fatal(err)
	}
	response, err := xproto.ReadResponse(conn, little)
	if err != nil {
		t.Fatal(err)
	}
	reply, err := xproto.DecodeInternAtomReply(response, little)
	if err != nil || reply.Atom != 69 {
		t.Errorf("InternAtom = %+v, %v; want atom 69", reply, err)
	}
	if sequence := little.Uint16(response[2:4]); sequence != 1 {
		t.Errorf("first reply sequence = %d, want 1", sequence)
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "waiting for Serve"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	if server.ActiveSessions() != 0 {
		t.Errorf("%d sessions open after Serve returned", server.ActiveSessions())
	}
}

func TestAtomsSharedAcrossSessions(t *testing.T) {
	server := NewServer(Options{Logger: testLogger()})
	socketPath, _, _ := startServer(t, server)

	intern := func(conn net.Conn, name string) uint32 {
		t.Helper()
		if _, err := conn.Write(xproto.InternAtomRequest{Name: name}.Encode(little)); err != nil {
			t.Fatal(err)
		}
		response, err := xproto.ReadResponse(conn, little)
		if err != nil {
			t.Fatal(err)
		}
		reply, err := xproto.DecodeInternAtomReply(response, little)
		if err != nil {
			t.Fatal(err)
		}
		return reply.Atom
	}

	first := dial(t, socketPath)
	second := dial(t, socketPath)
	completeHandshake(t, first)
	completeHandshake(t, second)

	if id := intern(first, "WM_STATE"); id != 69 {
		t.Errorf("first session WM_STATE = %d, want 69", id)
	}
	if id := intern(second, "WM_STATE"); id != 69 {
		t.Errorf("second session WM_STATE = %d, want 69", id)
	}
	if id := intern(second, "WM_CHANGE_STATE"); id != 70 {
		t.Errorf("second session WM_CHANGE_STATE = %d, want 70", id)
	}
}

func TestConcurrentSessions(t *testing.T) {
	server := NewServer(Options{Logger: testLogger()})
	socketPath, _, _ := startServer(t, server)

	const clients = 8
	ids := make([]uint32, clients)
	var wg sync.WaitGroup
	for i := range clients {
		conn := dial(t, socketPath)
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Write(connectionSetup(xwire.MarkerLSBFirst, xproto.MajorVersion))
			if _, err := xproto.ReadSetupResponse(conn, little); err != nil {
				t.Errorf("client %d: setup: %v", i, err)
				return
			}
			conn.Write(xproto.InternAtomRequest{Name: "_BUREAU_SHARED"}.Encode(little))
			response, err := xproto.ReadResponse(conn, little)
			if err != nil {
				t.Errorf("client %d: %v", i, err)
				return
			}
			reply, err := xproto.DecodeInternAtomReply(response, little)
			if err != nil {
				t.Errorf("client %d: %v", i, err)
				return
			}
			ids[i] = reply.Atom
		}()
	}
	wg.Wait()

	for i, id := range ids {
		if id != 69 {
			t.Errorf("client %d got atom %d, want 69", i, id)
		}
	}
}

func TestServeBadMarkerClosesConnection(t *testing.T) {
	server := NewServer(Options{Logger: testLogger()})
	socketPath, _, _ := startServer(t, server)
	conn := dial(t, socketPath)

	if _, err := conn.Write(connectionSetup('Q', xproto.MajorVersion)); err != nil {
		t.Fatal(err)
	}
	requireNoBytes(t, conn)

	// The server keeps accepting after rejecting a client.
	completeHandshake(t, dial(t, socketPath))
}

// failOnceListener returns EMFILE from its first Accept.
type failOnceListener struct {
	net.Listener
	failed atomic.Bool
}

func (l *failOnceListener) Accept() (net.Conn, error) {
	if l.failed.CompareAndSwap(false, true) {
		return nil, &net.OpError{Op: "accept", Net: "unix", Err: os.NewSyscallError("accept", syscall.EMFILE)}
	}
	return l.Listener.Accept()
}

func TestServeSurvivesAcceptFailure(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "X5")
	listener, err := Listen(socketPath, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	flaky := &failOnceListener{Listener: listener}

	server := NewServer(Options{Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx, flaky)
	}()
	waitForSocket(t, socketPath)

	conn := dial(t, socketPath)
	completeHandshake(t, conn)
	roundtrip(t, conn)
	if !flaky.failed.Load() {
		t.Error("listener never returned its Accept error")
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "waiting for Serve"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestExitWhenIdle(t *testing.T) {
	server := NewServer(Options{Logger: testLogger(), ExitWhenIdle: true})
	socketPath, _, serveDone := startServer(t, server)

	first := dial(t, socketPath)
	completeHandshake(t, first)
	second := dial(t, socketPath)
	completeHandshake(t, second)

	first.Close()
	roundtrip(t, second)
	select {
	case err := <-serveDone:
		t.Fatalf("Serve returned with a session still open: %v", err)
	default:
	}

	second.Close()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "waiting for Serve to exit when idle"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "X3")

	stale, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	// Leave the socket file behind with nobody accepting on it.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()

	listener, err := Listen(socketPath, testLogger())
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	defer listener.Close()

	if _, err := Listen(socketPath, testLogger()); err == nil || !strings.Contains(err.Error(), "in use") {
		t.Errorf("second Listen on a live socket = %v, want in-use error", err)
	}
}

func TestListenCreatesSocketDirectory(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), ".X11-unix", "X1")
	listener, err := Listen(socketPath, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	if info, err := os.Stat(socketPath); err != nil || info.Mode()&os.ModeSocket == 0 {
		t.Errorf("socket not created at %s: %v", socketPath, err)
	}
}

func TestControlActions(t *testing.T) {
	server := NewServer(Options{Display: 7, Logger: testLogger()})
	server.Atoms().Intern("_NET_WM_PID")

	controlPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	controlServer := control.NewServer(controlPath, testLogger())
	RegisterControlActions(controlServer, server)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go controlServer.Serve(ctx)
	waitForSocket(t, controlPath)

	client := control.NewClient(controlPath)

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Display != 7 || status.Vendor != DefaultVendor || status.Atoms != 69 || status.Screens != 1 {
		t.Errorf("Status = %+v", status)
	}

	atoms, err := client.ListAtoms(ctx, false)
	if err != nil {
		t.Fatalf("ListAtoms: %v", err)
	}
	if len(atoms) != 69 || atoms[68] != (control.Atom{ID: 69, Name: "_NET_WM_PID"}) {
		t.Errorf("ListAtoms returned %d atoms, last %+v", len(atoms), atoms[len(atoms)-1])
	}
	dynamic, err := client.ListAtoms(ctx, true)
	if err != nil {
		t.Fatalf("ListAtoms(dynamic): %v", err)
	}
	if len(dynamic) != 1 || dynamic[0].Name != "_NET_WM_PID" {
		t.Errorf("dynamic atoms = %+v, want only _NET_WM_PID", dynamic)
	}

	found, err := client.LookupAtom(ctx, "_NET_WM_PID")
	if err != nil || found.ID != 69 {
		t.Errorf("LookupAtom(_NET_WM_PID) = %+v, %v", found, err)
	}
	missing, err := client.LookupAtom(ctx, "_NET_WM_ICON")
	if err != nil || missing.ID != 0 {
		t.Errorf("LookupAtom(_NET_WM_ICON) = %+v, %v; want id 0", missing, err)
	}
	if server.Atoms().Len() != 69 {
		t.Error("LookupAtom created an atom")
	}

	named, err := client.AtomName(ctx, 1)
	if err != nil || named.Name != "PRIMARY" {
		t.Errorf("AtomName(1) = %+v, %v", named, err)
	}
	if _, err := client.AtomName(ctx, 9999); err == nil {
		t.Error("AtomName(9999) succeeded")
	}
}
