// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/xserver/lib/codec"
)

// ActionFunc handles one action. raw is the complete CBOR request,
// action field included; handlers decode their own fields from it.
//
// A nil result produces {ok: true}. A non-nil result is encoded into
// the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Server serves registered actions on a Unix socket.
type Server struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger
}

// NewServer creates a server that will listen on socketPath. Register
// actions with Handle before calling Serve.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers handler for action. It panics if the action is
// already registered.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("control.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve listens on the socket path and answers requests until ctx is
// cancelled. It then waits for requests in flight and removes the
// socket file. A leftover file at the path is replaced.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer os.Remove(s.socketPath)
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("control socket listening", "path", s.socketPath, "actions", len(s.handlers))

	var inFlight sync.WaitGroup
	defer inFlight.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Error("control socket accept failed", "error", err)
			continue
		}
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	return listener, nil
}

const (
	// ioTimeout bounds both reading the request and writing the reply.
	ioTimeout = 10 * time.Second

	// Control requests are a few dozen bytes.
	maxRequestSize = 64 * 1024
)

// serveConn answers the single request carried by conn.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ioTimeout))

	started := time.Now()
	action, raw, err := readRequest(conn)
	if errors.Is(err, io.EOF) {
		return
	}
	var response Response
	if err != nil {
		response = Response{Error: err.Error()}
	} else {
		response = s.call(ctx, action, raw)
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing control response", "action", action, "error", err)
	}
	s.logger.Debug("control request",
		"action", action,
		"ok", response.OK,
		"error", response.Error,
		"elapsed", time.Since(started),
	)
}

// readRequest decodes one CBOR request and returns its action name with
// the raw bytes the handler decodes its own fields from. io.EOF means
// the peer connected and sent nothing.
func readRequest(conn net.Conn) (string, []byte, error) {
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil, io.EOF
		}
		return "", nil, fmt.Errorf("invalid request: %w", err)
	}
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return "", nil, fmt.Errorf("invalid request: %w", err)
	}
	if header.Action == "" {
		return "", nil, errors.New("missing required field: action")
	}
	return header.Action, raw, nil
}

// call runs the handler for action and builds the reply. A panicking
// handler fails its own request only.
func (s *Server) call(ctx context.Context, action string, raw []byte) (response Response) {
	handler, exists := s.handlers[action]
	if !exists {
		return Response{Error: fmt.Sprintf("unknown action %q", action)}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("control action panicked", "action", action, "panic", recovered)
			response = Response{Error: fmt.Sprintf("internal: action %q failed", action)}
		}
	}()

	result, err := handler(ctx, raw)
	if err != nil {
		return Response{Error: err.Error()}
	}
	if result == nil {
		return Response{OK: true}
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)}
	}
	return Response{OK: true, Data: data}
}
