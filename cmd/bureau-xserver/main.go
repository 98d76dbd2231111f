// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-xserver is an X11 display server. It accepts clients on the
// display's Unix socket, completes the connection handshake, and
// answers core protocol requests against a shared atom table.
//
// Usage:
//
//	bureau-xserver [--config path] [--display N]
//
// Without --config, the file named by BUREAU_XSERVER_CONFIG is used;
// without either, built-in defaults serve display :0 from
// /tmp/.X11-unix/X0.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/xserver/lib/atom"
	"github.com/bureau-foundation/xserver/lib/clock"
	"github.com/bureau-foundation/xserver/lib/config"
	"github.com/bureau-foundation/xserver/lib/control"
	"github.com/bureau-foundation/xserver/lib/metrics"
	"github.com/bureau-foundation/xserver/lib/process"
	"github.com/bureau-foundation/xserver/lib/version"
	"github.com/bureau-foundation/xserver/xserver"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var display int
	var showVersion bool

	flagSet := pflag.NewFlagSet("bureau-xserver", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (default: $"+config.EnvironmentVariable+")")
	flagSet.IntVar(&display, "display", -1, "display number, overriding the config file")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("bureau-xserver %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("display") {
		cfg.Display = display
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	handshakeTimeout, err := cfg.HandshakeTimeout()
	if err != nil {
		return err
	}
	screens, err := cfg.ScreenModel()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	serverMetrics := metrics.New(registry)

	atoms := atom.NewTable()
	serverMetrics.TrackAtomTable(atoms.Len)

	server := xserver.NewServer(xserver.Options{
		Atoms:                 atoms,
		Screens:               screens,
		Display:               cfg.Display,
		Vendor:                cfg.Vendor,
		ReleaseNumber:         cfg.ReleaseNumber,
		HandshakeTimeout:      handshakeTimeout,
		ExitWhenIdle:          cfg.Policy.ExitWhenIdle,
		SilentUnknownRequests: cfg.Policy.SilentUnknownRequests,
		AllowMSBFirst:         cfg.Policy.AllowMSBFirst,
		Clock:                 clock.Real(),
		Metrics:               serverMetrics,
		Logger:                logger,
	})

	logger.Info("starting bureau-xserver",
		"version", version.Info(),
		"environment", cfg.Environment,
		"display", cfg.Display,
		"screens", len(screens),
	)

	listener, err := xserver.Listen(cfg.SocketPath(), logger)
	if err != nil {
		return err
	}

	// Auxiliary servers stop with the display server: either on signal
	// or when it exits on idle.
	auxCtx, cancelAux := context.WithCancel(ctx)
	defer cancelAux()

	controlDone := make(chan error, 1)
	if cfg.Control.SocketPath != "" {
		controlServer := control.NewServer(cfg.Control.SocketPath, logger)
		xserver.RegisterControlActions(controlServer, server)
		go func() {
			controlDone <- controlServer.Serve(auxCtx)
		}()
	} else {
		controlDone <- nil
	}

	metricsDone := make(chan error, 1)
	if cfg.Metrics.Address != "" {
		go func() {
			metricsDone <- serveMetrics(auxCtx, cfg.Metrics.Address, registry, logger)
		}()
	} else {
		metricsDone <- nil
	}

	serveErr := server.Serve(ctx, listener)
	if serveErr == nil {
		logger.Info("display server stopped")
	}
	cancelAux()

	if err := <-controlDone; err != nil {
		logger.Error("control socket error", "error", err)
	}
	if err := <-metricsDone; err != nil {
		logger.Error("metrics server error", "error", err)
	}
	return serveErr
}

// loadConfig reads the file at path, falling back to
// BUREAU_XSERVER_CONFIG and then to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section. The
// auto format writes text to a terminal and JSON to anything else.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	text := cfg.Logging.Format == "text" ||
		(cfg.Logging.Format == "auto" && term.IsTerminal(int(os.Stderr.Fd())))
	if text {
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
}

// serveMetrics serves /metrics on address until ctx is cancelled.
func serveMetrics(ctx context.Context, address string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "address", listener.Addr().String())
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
