// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler shared by the
// server and tool binaries. It is the one place outside a CLI's own
// output that writes to stderr directly, for errors that happen before
// the structured logger exists.
package process
