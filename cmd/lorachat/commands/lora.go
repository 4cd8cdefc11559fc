// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/lib/schema"
)

func loraCommand(streams IO) *cli.Command {
	return &cli.Command{
		Name:    "lora",
		Summary: "Connect, disconnect and inspect the radio modules",
		Subcommands: []*cli.Command{
			loraConnectCommand(streams),
			loraDisconnectCommand(streams),
			loraSignalCommand(streams),
		},
	}
}

type loraConnectParams struct {
	connectionParams
	cli.JSONOutput
	SenderPort   string `json:"sender_port" flag:"sender-port" desc:"serial port of the sender module (default lora.sender_port)"`
	ReceiverPort string `json:"receiver_port" flag:"receiver-port" desc:"serial port of the receiver module (default lora.receiver_port)"`
	Baudrate     int    `json:"baudrate" flag:"baudrate" desc:"serial baud rate (default lora.baudrate)"`
}

func loraConnectCommand(streams IO) *cli.Command {
	var params loraConnectParams
	return &cli.Command{
		Name:    "connect",
		Summary: "Open the sender and receiver modules",
		Usage:   "lorachat lora connect [--sender-port PORT] [--receiver-port PORT] [--baudrate N]",
		Examples: []cli.Example{
			{Description: "List ports, then connect", Command: "lorachat ports && lorachat lora connect --sender-port /dev/ttyUSB0 --receiver-port /dev/ttyUSB1"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("connect", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "lora/connect")
			if err != nil {
				return err
			}
			request := schema.ConnectRequest{
				SenderPort:   firstNonEmpty(params.SenderPort, env.config.LoRa.SenderPort),
				ReceiverPort: firstNonEmpty(params.ReceiverPort, env.config.LoRa.ReceiverPort),
				Baudrate:     params.Baudrate,
			}
			if request.Baudrate <= 0 {
				request.Baudrate = env.config.LoRa.Baudrate
			}
			if request.SenderPort == "" || request.ReceiverPort == "" {
				return errors.New("sender and receiver ports are required: pass --sender-port and --receiver-port or set lora.sender_port and lora.receiver_port (see 'lorachat ports')")
			}

			result, err := env.client.ConnectLoRa(ctx, request)
			if err != nil {
				return err
			}
			env.logger.Info("radio connected", "sender_port", result.SenderPort, "receiver_port", result.ReceiverPort)
			if done, err := params.EmitJSON(streams.Stdout, result); done {
				return err
			}
			fmt.Fprintln(streams.Stdout, result.Message)
			fmt.Fprintf(streams.Stdout, "sender   %s\nreceiver %s\n", result.SenderPort, result.ReceiverPort)
			return nil
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func loraDisconnectCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "disconnect",
		Summary: "Close both radio modules",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("disconnect", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "lora/disconnect")
			if err != nil {
				return err
			}
			ack, err := env.client.DisconnectLoRa(ctx)
			if err != nil {
				return err
			}
			return printAck(streams, params.JSONOutput, ack)
		},
	}
}

func loraSignalCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "signal",
		Summary: "Show the receiver's signal quality",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("signal", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "lora/signal")
			if err != nil {
				return err
			}
			signal, err := env.client.Signal(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, signal); done {
				return err
			}
			fmt.Fprintf(streams.Stdout, "RSSI %.0f dBm  SNR %.1f dB", signal.RSSI, signal.SNR)
			if signal.Frequency != 0 {
				fmt.Fprintf(streams.Stdout, "  frequency %.3f MHz", signal.Frequency)
			}
			fmt.Fprintln(streams.Stdout)
			return nil
		},
	}
}
