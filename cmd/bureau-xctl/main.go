// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-xctl queries a running bureau-xserver through its control
// socket.
//
// Usage:
//
//	bureau-xctl [--socket path] [--json] status
//	bureau-xctl [--socket path] [--json] [--dynamic] atoms
//	bureau-xctl [--socket path] [--json] lookup NAME
//	bureau-xctl [--socket path] [--json] atom-name ID
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/xserver/lib/control"
	"github.com/bureau-foundation/xserver/lib/process"
	"github.com/bureau-foundation/xserver/lib/version"
)

// socketEnvironmentVariable overrides the default control socket path.
const socketEnvironmentVariable = "BUREAU_XSERVER_CONTROL_SOCKET"

const defaultSocketPath = "/run/bureau/xserver.sock"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var socketPath string
	var jsonOutput bool
	var dynamicOnly bool
	var showVersion bool

	socketDefault := os.Getenv(socketEnvironmentVariable)
	if socketDefault == "" {
		socketDefault = defaultSocketPath
	}

	flagSet := pflag.NewFlagSet("bureau-xctl", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", socketDefault, "control socket path (env: "+socketEnvironmentVariable+")")
	flagSet.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	flagSet.BoolVar(&dynamicOnly, "dynamic", false, "atoms: list only atoms interned at runtime")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.SetInterspersed(false)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Fprintf(stdout, "bureau-xctl %s\n", version.Info())
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return errors.New("usage: bureau-xctl [flags] status|atoms|lookup NAME|atom-name ID")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client := control.NewClient(socketPath)

	var result any
	var err error
	switch command := rest[0]; command {
	case "status":
		if err := requireArgs(command, rest, 0); err != nil {
			return err
		}
		result, err = client.Status(ctx)
	case "atoms":
		if err := requireArgs(command, rest, 0); err != nil {
			return err
		}
		result, err = client.ListAtoms(ctx, dynamicOnly)
	case "lookup":
		if err := requireArgs(command, rest, 1); err != nil {
			return err
		}
		result, err = client.LookupAtom(ctx, rest[1])
	case "atom-name":
		if err := requireArgs(command, rest, 1); err != nil {
			return err
		}
		id, parseErr := strconv.ParseUint(rest[1], 10, 32)
		if parseErr != nil {
			return fmt.Errorf("atom-name: invalid atom id %q", rest[1])
		}
		result, err = client.AtomName(ctx, uint32(id))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	return printText(stdout, result)
}

func requireArgs(command string, args []string, count int) error {
	if len(args)-1 != count {
		return fmt.Errorf("%s takes %d argument(s), got %d", command, count, len(args)-1)
	}
	return nil
}

func printText(stdout io.Writer, result any) error {
	writer := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	switch value := result.(type) {
	case control.Status:
		fmt.Fprintf(writer, "display\t:%d\n", value.Display)
		fmt.Fprintf(writer, "vendor\t%s\n", value.Vendor)
		fmt.Fprintf(writer, "uptime\t%s\n", (time.Duration(value.UptimeSeconds) * time.Second).String())
		fmt.Fprintf(writer, "sessions\t%d active, %d total\n", value.ActiveSessions, value.TotalSessions)
		fmt.Fprintf(writer, "atoms\t%d\n", value.Atoms)
		fmt.Fprintf(writer, "screens\t%d\n", value.Screens)
	case []control.Atom:
		fmt.Fprintln(writer, "ID\tNAME")
		for _, atom := range value {
			fmt.Fprintf(writer, "%d\t%s\n", atom.ID, atom.Name)
		}
	case control.Atom:
		if value.ID == 0 {
			fmt.Fprintf(writer, "%s\tnot interned\n", value.Name)
		} else {
			fmt.Fprintf(writer, "%d\t%s\n", value.ID, value.Name)
		}
	default:
		return fmt.Errorf("no text format for %T", result)
	}
	return writer.Flush()
}
