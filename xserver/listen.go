// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Socket activation environment, as set by a service manager that
// passes listening sockets starting at file descriptor 3.
const (
	listenFDsEnv  = "LISTEN_FDS"
	listenPIDEnv  = "LISTEN_PID"
	listenFDStart = 3
)

// Listen returns the display listener. A socket passed by the service
// manager is used when present; otherwise Listen binds socketPath,
// creating its directory and replacing a stale socket left by a
// previous server.
func Listen(socketPath string, logger *slog.Logger) (net.Listener, error) {
	listener, err := activationListener()
	if err != nil {
		return nil, err
	}
	if listener != nil {
		logger.Info("using socket from service manager", "address", listener.Addr().String())
		return listener, nil
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := removeStaleSocket(socketPath); err != nil {
		return nil, err
	}
	listener, err = net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	return listener, nil
}

// activationListener returns the first inherited listening socket, or
// nil when the process was not socket-activated.
func activationListener() (net.Listener, error) {
	fds := os.Getenv(listenFDsEnv)
	if fds == "" {
		return nil, nil
	}
	if pid := os.Getenv(listenPIDEnv); pid != "" && pid != strconv.Itoa(os.Getpid()) {
		return nil, nil
	}
	count, err := strconv.Atoi(fds)
	if err != nil || count < 1 {
		return nil, fmt.Errorf("invalid %s=%q", listenFDsEnv, fds)
	}

	os.Unsetenv(listenFDsEnv)
	os.Unsetenv(listenPIDEnv)

	file := os.NewFile(uintptr(listenFDStart), "listen-fd-3")
	defer file.Close()
	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("using inherited socket: %w", err)
	}
	return listener, nil
}

// removeStaleSocket deletes socketPath if it is a socket nobody is
// accepting on. A live socket means another server owns the display.
func removeStaleSocket(socketPath string) error {
	info, err := os.Lstat(socketPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", socketPath, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", socketPath)
	}
	if conn, err := net.DialTimeout("unix", socketPath, time.Second); err == nil {
		conn.Close()
		return fmt.Errorf("display socket %s is in use by another server", socketPath)
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}
	return nil
}
