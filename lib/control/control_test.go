// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/xserver/lib/codec"
	"github.com/bureau-foundation/xserver/lib/testutil"
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

// startServer runs server until the test ends and returns the channel
// Serve's result is delivered on.
func startServer(t *testing.T, server *Server, socketPath string) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	t.Cleanup(cancel)
	waitForSocket(t, socketPath)
	return cancel, serveDone
}

func sendRaw(t *testing.T, socketPath string, payload []byte) Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	conn.(*net.UnixConn).CloseWrite()

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

func TestClientServerActions(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, testLogger())

	server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
		return Status{Display: 1, Vendor: "test", UptimeSeconds: 1.5, ActiveSessions: 2, TotalSessions: 7, Atoms: 70, Screens: 1}, nil
	})
	server.Handle(ActionLookupAtom, func(ctx context.Context, raw []byte) (any, error) {
		var request LookupAtomRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		if request.Name == "PRIMARY" {
			return Atom{ID: 1, Name: request.Name}, nil
		}
		return Atom{Name: request.Name}, nil
	})
	server.Handle(ActionAtomName, func(ctx context.Context, raw []byte) (any, error) {
		var request AtomNameRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return nil, errors.New("no such atom")
	})

	cancel, serveDone := startServer(t, server, socketPath)
	client := NewClient(socketPath)
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.ActiveSessions != 2 || status.TotalSessions != 7 || status.UptimeSeconds != 1.5 {
		t.Errorf("Status = %+v", status)
	}

	atom, err := client.LookupAtom(ctx, "PRIMARY")
	if err != nil || atom.ID != 1 {
		t.Errorf("LookupAtom(PRIMARY) = %+v, %v", atom, err)
	}
	atom, err = client.LookupAtom(ctx, "NOPE")
	if err != nil || atom.ID != 0 || atom.Name != "NOPE" {
		t.Errorf("LookupAtom(NOPE) = %+v, %v", atom, err)
	}

	_, err = client.AtomName(ctx, 4000)
	var actionError *ActionError
	if !errors.As(err, &actionError) || actionError.Message != "no such atom" {
		t.Errorf("AtomName error = %v", err)
	}

	_, err = client.ListAtoms(ctx, false)
	if !errors.As(err, &actionError) || !strings.Contains(actionError.Message, "unknown action") {
		t.Errorf("unregistered action error = %v", err)
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "Serve did not return"); err != nil {
		t.Errorf("Serve returned error: %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after Serve returned")
	}
}

func TestServerRejectsMalformedRequests(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, testLogger())
	startServer(t, server, socketPath)

	missingAction, err := codec.Marshal(map[string]string{"name": "x"})
	if err != nil {
		t.Fatal(err)
	}
	response := sendRaw(t, socketPath, missingAction)
	if response.OK || response.Error != "missing required field: action" {
		t.Errorf("missing action: %+v", response)
	}

	response = sendRaw(t, socketPath, []byte{0xff, 0xff})
	if response.OK || !strings.HasPrefix(response.Error, "invalid request") {
		t.Errorf("invalid CBOR: %+v", response)
	}
}

func TestServerNilResult(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, testLogger())
	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
	startServer(t, server, socketPath)

	request, err := codec.Marshal(map[string]string{"action": "ping"})
	if err != nil {
		t.Fatal(err)
	}
	response := sendRaw(t, socketPath, request)
	if !response.OK || len(response.Data) != 0 {
		t.Errorf("nil result response = %+v", response)
	}
}

func TestServerRemovesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	server := NewServer(socketPath, testLogger())
	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) { return "pong", nil })
	startServer(t, server, socketPath)

	var result string
	if err := NewClient(socketPath).Call(context.Background(), "ping", nil, &result); err != nil || result != "pong" {
		t.Errorf("ping = %q, %v", result, err)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewServer("/tmp/unused.sock", testLogger())
	server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) { return nil, nil })
}

func TestServerRecoversFromPanickingAction(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, testLogger())
	server.Handle("explode", func(ctx context.Context, raw []byte) (any, error) {
		panic("atom table corrupted")
	})
	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) { return "pong", nil })
	startServer(t, server, socketPath)

	client := NewClient(socketPath)
	err := client.Call(context.Background(), "explode", nil, nil)
	var actionError *ActionError
	if !errors.As(err, &actionError) || !strings.Contains(actionError.Message, `action "explode" failed`) {
		t.Errorf("panicking action error = %v", err)
	}

	var result string
	if err := client.Call(context.Background(), "ping", nil, &result); err != nil || result != "pong" {
		t.Errorf("ping after panic = %q, %v", result, err)
	}
}
