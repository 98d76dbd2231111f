// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bureau-foundation/xserver/lib/control"
	"github.com/bureau-foundation/xserver/lib/testutil"
	"github.com/bureau-foundation/xserver/xserver"
)

// startControl serves a display server's control actions and returns
// the socket path.
func startControl(t *testing.T) (string, *xserver.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := xserver.NewServer(xserver.Options{Display: 2, Logger: logger})

	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	controlServer := control.NewServer(socketPath, logger)
	xserver.RegisterControlActions(controlServer, server)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go controlServer.Serve(ctx)

	for {
		if info, err := os.Stat(socketPath); err == nil && info.Mode()&os.ModeSocket != 0 {
			break
		}
		if t.Context().Err() != nil {
			t.Fatalf("control socket did not appear")
		}
		runtime.Gosched()
	}
	return socketPath, server
}

func TestStatusText(t *testing.T) {
	socketPath, _ := startControl(t)
	var stdout bytes.Buffer
	if err := run(t.Context(), []string{"--socket", socketPath, "status"}, &stdout); err != nil {
		t.Fatal(err)
	}
	output := stdout.String()
	for _, want := range []string{":2", "Bureau XServer", "0 active, 0 total", "68"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
}

func TestLookupJSON(t *testing.T) {
	socketPath, server := startControl(t)
	server.Atoms().Intern("_NET_WM_STATE")

	var stdout bytes.Buffer
	if err := run(t.Context(), []string{"--socket", socketPath, "--json", "lookup", "_NET_WM_STATE"}, &stdout); err != nil {
		t.Fatal(err)
	}
	var atom control.Atom
	if err := json.Unmarshal(stdout.Bytes(), &atom); err != nil {
		t.Fatalf("decoding output %q: %v", stdout.String(), err)
	}
	if atom.ID != 69 || atom.Name != "_NET_WM_STATE" {
		t.Errorf("lookup = %+v, want 69 _NET_WM_STATE", atom)
	}
}

func TestAtomsText(t *testing.T) {
	socketPath, _ := startControl(t)
	var stdout bytes.Buffer
	if err := run(t.Context(), []string{"--socket", socketPath, "atoms"}, &stdout); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 69 {
		t.Fatalf("atoms printed %d lines, want header plus 68", len(lines))
	}
	if fields := strings.Fields(lines[68]); len(fields) != 2 || fields[0] != "68" || fields[1] != "WM_TRANSIENT_FOR" {
		t.Errorf("last line = %q", lines[68])
	}
}

func TestAtomNameErrors(t *testing.T) {
	socketPath, _ := startControl(t)
	for _, args := range [][]string{
		{"atom-name", "abc"},
		{"atom-name", "5000"},
		{"atom-name"},
		{"frobnicate"},
		{},
	} {
		err := run(t.Context(), append([]string{"--socket", socketPath}, args...), io.Discard)
		if err == nil {
			t.Errorf("run(%q) succeeded, want an error", args)
		}
	}
}
