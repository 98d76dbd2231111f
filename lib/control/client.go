// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/xserver/lib/codec"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = ioTimeout + ioTimeout
	maxResponseSize     = 1024 * 1024
)

// ActionError is returned by Call when the server answers ok=false.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("control action %q failed: %s", e.Action, e.Message)
}

// Client calls actions on a control socket, one connection per call.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with the given extra fields and decodes the
// response data into result, if result is non-nil and data is present.
// fields must not contain an "action" key. A server-side failure is
// returned as *ActionError.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ActionError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// Status calls ActionStatus.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.Call(ctx, ActionStatus, nil, &status)
	return status, err
}

// ListAtoms calls ActionListAtoms. With dynamicOnly set, only atoms
// interned at runtime are returned.
func (c *Client) ListAtoms(ctx context.Context, dynamicOnly bool) ([]Atom, error) {
	var atoms []Atom
	err := c.Call(ctx, ActionListAtoms, map[string]any{"dynamic_only": dynamicOnly}, &atoms)
	return atoms, err
}

// LookupAtom calls ActionLookupAtom. An unknown name yields ID 0.
func (c *Client) LookupAtom(ctx context.Context, name string) (Atom, error) {
	var atom Atom
	err := c.Call(ctx, ActionLookupAtom, map[string]any{"name": name}, &atom)
	return atom, err
}

// AtomName calls ActionAtomName.
func (c *Client) AtomName(ctx context.Context, id uint32) (Atom, error) {
	var atom Atom
	err := c.Call(ctx, ActionAtomName, map[string]any{"id": id}, &atom)
	return atom, err
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
