// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/xserver/lib/atom"
	"github.com/bureau-foundation/xserver/lib/clock"
	"github.com/bureau-foundation/xserver/lib/control"
	"github.com/bureau-foundation/xserver/lib/metrics"
	"github.com/bureau-foundation/xserver/lib/screen"
)

// Options configures a Server. Zero values select the defaults noted
// on each field.
type Options struct {
	// Atoms is the atom table shared by every session. Defaults to a
	// fresh table holding the predefined atoms.
	Atoms *atom.Table

	// Screens supplies the layout reported in each setup reply.
	// Defaults to a single 1920x1080 screen at 96 DPI.
	Screens screen.Model

	// Display is the display number, reported by Status.
	Display int

	// Vendor and ReleaseNumber identify the server in setup replies.
	Vendor        string
	ReleaseNumber uint32

	// HandshakeTimeout bounds the time between accepting a connection
	// and reading its complete connection setup. Zero disables it.
	HandshakeTimeout time.Duration

	// ExitWhenIdle makes Serve return once the last session closes.
	ExitWhenIdle bool

	// SilentUnknownRequests drops requests that have no handler instead
	// of answering them with a Request error.
	SilentUnknownRequests bool

	// AllowMSBFirst accepts clients that announce big-endian byte
	// order. By default only 'l' is accepted.
	AllowMSBFirst bool

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// DefaultVendor is the vendor string used when Options.Vendor is empty.
const DefaultVendor = "Bureau XServer"

// Server accepts X11 clients and runs a Session for each.
type Server struct {
	atoms      *atom.Table
	screens    screen.Model
	display    int
	setupInfo  SetupInfo
	dispatcher *Dispatcher

	handshakeTimeout time.Duration
	exitWhenIdle     bool
	allowMSBFirst    bool

	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	started time.Time

	mu            sync.Mutex
	sessions      map[uint64]*Session
	nextSessionID uint64

	// activeSessions lets Serve wait for session goroutines on return.
	activeSessions sync.WaitGroup

	// idle is closed when ExitWhenIdle is set and the last session ends.
	idle     chan struct{}
	idleOnce sync.Once
}

// NewServer creates a server with the core request handlers installed.
func NewServer(options Options) *Server {
	if options.Atoms == nil {
		options.Atoms = atom.NewTable()
	}
	if options.Screens == nil {
		options.Screens = screen.Static(screen.Resolve([]screen.Screen{{Width: 1920, Height: 1080}}, screen.DefaultDPI))
	}
	if options.Vendor == "" {
		options.Vendor = DefaultVendor
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	dispatcher := NewDispatcher(options.SilentUnknownRequests, options.Clock, options.Metrics, options.Logger)
	registerCoreHandlers(dispatcher, &coreHandlers{
		atoms:   options.Atoms,
		metrics: options.Metrics,
		logger:  options.Logger,
	})

	return &Server{
		atoms:            options.Atoms,
		screens:          options.Screens,
		display:          options.Display,
		setupInfo:        SetupInfo{Vendor: options.Vendor, ReleaseNumber: options.ReleaseNumber},
		dispatcher:       dispatcher,
		handshakeTimeout: options.HandshakeTimeout,
		exitWhenIdle:     options.ExitWhenIdle,
		allowMSBFirst:    options.AllowMSBFirst,
		clock:            options.Clock,
		metrics:          options.Metrics,
		logger:           options.Logger,
		started:          options.Clock.Now(),
		sessions:         make(map[uint64]*Session),
		idle:             make(chan struct{}),
	}
}

// Atoms returns the server's atom table.
func (s *Server) Atoms() *atom.Table { return s.atoms }

// Dispatcher returns the request dispatcher, for registering handlers
// beyond the core set before Serve is called.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Serve accepts connections from listener until ctx is cancelled, the
// listener is closed, or (with ExitWhenIdle) the last session closes.
// Other Accept errors are logged and retried after a short pause. On
// return every session has been closed and its goroutine has exited.
// Serve closes listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.idle:
		case <-done:
		}
		listener.Close()
	}()

	defer s.shutdown()

	s.logger.Info("accepting X11 clients",
		"address", listener.Addr().String(),
		"display", s.display,
		"exit_when_idle", s.exitWhenIdle,
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isIdle() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// EMFILE and friends clear up as sessions close.
			s.logger.Error("accept failed", "error", err, "retry_in", acceptRetryDelay)
			if !s.waitToRetry(ctx) {
				return nil
			}
			continue
		}
		s.startSession(conn)
	}
}

// acceptRetryDelay is how long Serve pauses after a failed Accept.
const acceptRetryDelay = 50 * time.Millisecond

// waitToRetry sleeps for acceptRetryDelay on the server clock. It
// reports false if Serve should stop instead.
func (s *Server) waitToRetry(ctx context.Context) bool {
	elapsed := make(chan struct{})
	timer := s.clock.AfterFunc(acceptRetryDelay, func() { close(elapsed) })
	defer timer.Stop()
	select {
	case <-elapsed:
		return true
	case <-ctx.Done():
		return false
	case <-s.idle:
		return false
	}
}

func (s *Server) startSession(conn net.Conn) {
	s.mu.Lock()
	s.nextSessionID++
	session := newSession(s, s.nextSessionID, conn)
	s.sessions[session.id] = session
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.activeSessions.Add(1)
	go func() {
		defer s.activeSessions.Done()
		session.Run()
		s.endSession(session)
	}()
}

func (s *Server) endSession(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session.id)
	remaining := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SessionClosed()
	if remaining == 0 && s.exitWhenIdle {
		s.idleOnce.Do(func() {
			s.logger.Info("last client disconnected, exiting")
			close(s.idle)
		})
	}
}

func (s *Server) isIdle() bool {
	select {
	case <-s.idle:
		return true
	default:
		return false
	}
}

// shutdown closes every open session and waits for them to finish.
func (s *Server) shutdown() {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()

	if len(open) > 0 {
		s.logger.Info("closing open sessions", "count", len(open))
	}
	for _, session := range open {
		session.Close()
	}
	s.activeSessions.Wait()
}

// ActiveSessions returns the number of open sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Status summarizes the server for the control socket.
func (s *Server) Status() control.Status {
	s.mu.Lock()
	active := len(s.sessions)
	total := s.nextSessionID
	s.mu.Unlock()

	return control.Status{
		Display:        s.display,
		Vendor:         s.setupInfo.Vendor,
		UptimeSeconds:  s.clock.Now().Sub(s.started).Seconds(),
		ActiveSessions: active,
		TotalSessions:  total,
		Atoms:          s.atoms.Len(),
		Screens:        len(s.screens.Layout()),
	}
}
