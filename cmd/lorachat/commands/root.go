// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/lib/version"
)

// IO is the set of streams commands read from and write to.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// StandardIO returns the process's standard streams.
func StandardIO() IO {
	return IO{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Root returns the lorachat command tree.
func Root(streams IO) *cli.Command {
	var showVersion bool
	return &cli.Command{
		Name:       "lorachat",
		Summary:    "Client for the LoRa secure messaging appliance",
		HelpOutput: streams.Stderr,
		Description: `lorachat talks to a LoRa messaging appliance over its HTTP API and
push channel. Connect the radio modules and initialize encryption,
then send messages one at a time or open the interactive chat view.

The backend address comes from --api-url, LORACHAT_API_URL, the
configuration file named by LORACHAT_CONFIG, or the default
http://localhost:5000, in that order.`,
		Examples: []cli.Example{
			{Description: "Bring the link up", Command: "lorachat lora connect --sender-port /dev/ttyUSB0 --receiver-port /dev/ttyUSB1"},
			{Description: "Initialize encryption with a password from a prompt", Command: "lorachat crypto init"},
			{Description: "Send with retries", Command: "lorachat send --priority low 'checking in from the ridge'"},
			{Description: "Open the chat view", Command: "lorachat chat"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("lorachat", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Subcommands: []*cli.Command{
			statusCommand(streams),
			portsCommand(streams),
			loraCommand(streams),
			cryptoCommand(streams),
			sendCommand(streams),
			historyCommand(streams),
			clearCommand(streams),
			statsCommand(streams),
			infoCommand(streams),
			restartCommand(streams),
			watchCommand(streams),
			replayCommand(streams),
			chatCommand(streams),
			versionCommand(streams),
		},
		Run: func(context.Context, []string) error {
			if showVersion {
				fmt.Fprintf(streams.Stdout, "lorachat %s\n", version.Info())
				return nil
			}
			return fmt.Errorf("subcommand required\n\nRun 'lorachat --help' for usage.")
		},
	}
}

func versionCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			fmt.Fprintf(streams.Stdout, "lorachat %s\n", version.Full())
			return nil
		},
	}
}
