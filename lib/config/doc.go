// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for
// bureau-xserver.
//
// The file is named by the --config flag (via [LoadFile]) or the
// BUREAU_XSERVER_CONFIG environment variable (via [Load]). There is no
// search path: with neither set, the server runs on [Default] values,
// which describe display :0 with a single 1920x1080 screen.
//
// The file may contain environment sections (development, staging,
// production) whose policy, timeouts, and logging settings override
// the base values when [Config].Environment matches.
//
// Path fields support ${VAR} and ${VAR:-default} expansion, with
// ${DISPLAY_NUMBER} bound to the configured display. No other
// environment variable overrides a config value.
package config
