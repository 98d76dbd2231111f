// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/xserver/lib/screen"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "BUREAU_XSERVER_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete server configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// Display is the display number; clients reach it as ":N".
	Display int `yaml:"display"`

	// SocketDir holds the display socket, named X<display>.
	SocketDir string `yaml:"socket_dir"`

	// Vendor and ReleaseNumber are reported in the setup reply.
	Vendor        string `yaml:"vendor"`
	ReleaseNumber uint32 `yaml:"release_number"`

	// Screens is the static layout. Ignored when ScreenLayoutFile is
	// set.
	Screens []screen.Screen `yaml:"screens"`

	// DPI derives physical screen size where a screen has none.
	DPI float64 `yaml:"dpi"`

	// ScreenLayoutFile is a JSONC file with a "screens" list, written
	// by whatever owns the real outputs.
	ScreenLayoutFile string `yaml:"screen_layout_file"`

	Policy   PolicyConfig   `yaml:"policy"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Control  ControlConfig  `yaml:"control"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the sections an environment block may replace.
type Overrides struct {
	Policy   *PolicyConfig   `yaml:"policy,omitempty"`
	Timeouts *TimeoutsConfig `yaml:"timeouts,omitempty"`
	Logging  *LoggingConfig  `yaml:"logging,omitempty"`
}

// PolicyConfig selects server behaviors that differ between
// deployments.
type PolicyConfig struct {
	// ExitWhenIdle stops the server once the last client disconnects.
	ExitWhenIdle bool `yaml:"exit_when_idle"`

	// SilentUnknownRequests drops requests with no handler instead of
	// answering them with a Request error.
	SilentUnknownRequests bool `yaml:"silent_unknown_requests"`

	// AllowMSBFirst accepts big-endian clients. Off by default: only
	// the 'l' byte-order marker is accepted.
	AllowMSBFirst bool `yaml:"allow_msb_first"`
}

// TimeoutsConfig holds duration strings parsed by time.ParseDuration.
type TimeoutsConfig struct {
	// Handshake bounds how long a client may take to send its
	// connection setup. "0" disables the limit.
	Handshake string `yaml:"handshake"`
}

// ControlConfig configures the administrative socket.
type ControlConfig struct {
	// SocketPath enables the control socket when non-empty.
	SocketPath string `yaml:"socket_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Address is a host:port to serve /metrics on. Empty disables it.
	Address string `yaml:"address"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
	// Format is json, text, or auto: text when stderr is a terminal,
	// JSON otherwise.
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Environment: Development,
		Display:     0,
		SocketDir:   "/tmp/.X11-unix",
		Vendor:      "Bureau XServer",
		Screens:     []screen.Screen{{Width: 1920, Height: 1080}},
		DPI:         screen.DefaultDPI,
		Timeouts: TimeoutsConfig{
			Handshake: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by BUREAU_XSERVER_CONFIG, or returns the
// defaults if the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of the defaults,
// applies the matching environment section, and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Policy != nil {
		c.Policy = *overrides.Policy
	}
	if overrides.Timeouts != nil && overrides.Timeouts.Handshake != "" {
		c.Timeouts.Handshake = overrides.Timeouts.Handshake
	}
	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":           os.Getenv("HOME"),
		"DISPLAY_NUMBER": strconv.Itoa(c.Display),
	}
	c.SocketDir = expandVars(c.SocketDir, vars)
	c.ScreenLayoutFile = expandVars(c.ScreenLayoutFile, vars)
	c.Control.SocketPath = expandVars(c.Control.SocketPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. vars take precedence
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Display < 0 {
		errs = append(errs, fmt.Errorf("display must not be negative, got %d", c.Display))
	}
	if c.SocketDir == "" {
		errs = append(errs, errors.New("socket_dir is required"))
	}
	if c.Vendor == "" {
		errs = append(errs, errors.New("vendor is required"))
	}
	if c.DPI <= 0 {
		errs = append(errs, fmt.Errorf("dpi must be positive, got %v", c.DPI))
	}
	if c.ScreenLayoutFile == "" {
		if err := screen.Validate(c.Screens); err != nil {
			errs = append(errs, fmt.Errorf("screens: %w", err))
		}
	}
	if _, err := c.HandshakeTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be auto, json, or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// SocketPath returns the display socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.SocketDir, "X"+strconv.Itoa(c.Display))
}

// HandshakeTimeout parses timeouts.handshake. Zero means no limit.
func (c *Config) HandshakeTimeout() (time.Duration, error) {
	if c.Timeouts.Handshake == "" || c.Timeouts.Handshake == "0" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(c.Timeouts.Handshake)
	if err != nil {
		return 0, fmt.Errorf("timeouts.handshake: %w", err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("timeouts.handshake must not be negative, got %s", timeout)
	}
	return timeout, nil
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// ScreenModel returns the screen layout with physical sizes resolved
// from DPI. The layout file, when configured, replaces Screens.
func (c *Config) ScreenModel() (screen.Static, error) {
	layout := screen.Static(c.Screens)
	if c.ScreenLayoutFile != "" {
		var err error
		layout, err = screen.ReadLayoutFile(c.ScreenLayoutFile)
		if err != nil {
			return nil, err
		}
	}
	return screen.Static(screen.Resolve(layout, c.DPI)), nil
}
