// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/status"
)

type statusParams struct {
	connectionParams
	cli.JSONOutput
}

// statusResult is the JSON form of `lorachat status`. ServerConnected
// reports that the REST API answered; the push channel is not opened.
type statusResult struct {
	status.ConnectionStatus
	FullyConnected bool   `json:"fully_connected"`
	LatencyMS      int64  `json:"latency_ms"`
	Timestamp      string `json:"timestamp,omitempty"`
}

func statusCommand(streams IO) *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show radio and encryption readiness",
		Description: `Query the backend health endpoint and show whether the sender and
receiver radio modules are connected and encryption is initialized.
Exits 1 when the appliance is not ready to send.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "status")
			if err != nil {
				return err
			}
			ping, err := env.client.Ping(ctx)
			if err != nil {
				return err
			}

			current := reachableStatus(ping.Health)
			result := statusResult{
				ConnectionStatus: current,
				FullyConnected:   current.FullyConnected(),
				LatencyMS:        ping.Latency.Milliseconds(),
				Timestamp:        ping.Health.Timestamp,
			}
			if done, err := params.EmitJSON(streams.Stdout, result); done {
				return err
			}

			writer := tabwriter.NewWriter(streams.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "server\t%s (%s)\n", upDown(true), ping.Latency.Round(time.Millisecond))
			fmt.Fprintf(writer, "sender\t%s\n", upDown(current.LoRaSenderConnected))
			fmt.Fprintf(writer, "receiver\t%s\n", upDown(current.LoRaReceiverConnected))
			fmt.Fprintf(writer, "crypto\t%s\n", upDown(current.CryptoInitialized))
			writer.Flush()

			if !current.FullyConnected() {
				fmt.Fprintln(streams.Stdout, "not ready: connect the radio and initialize encryption before sending")
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintln(streams.Stdout, "ready")
			return nil
		},
	}
}

// reachableStatus is the status implied by a health response: the
// server answered, and the remaining fields are as reported.
func reachableStatus(health *schema.Health) status.ConnectionStatus {
	reachable := status.Reduce(status.ConnectionStatus{}, status.PushConnected{})
	return status.Reduce(reachable, status.HealthReportFrom(health))
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

type jsonParams struct {
	connectionParams
	cli.JSONOutput
}

func portsCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "ports",
		Summary: "List serial ports visible to the backend",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ports", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "ports")
			if err != nil {
				return err
			}
			ports, err := env.client.Ports(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, ports); done {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(streams.Stdout, "no serial ports found")
				return nil
			}
			writer := tabwriter.NewWriter(streams.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "PORT\tNAME\tHWID")
			for _, port := range ports {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", port.Port, port.Name, port.HWID)
			}
			return writer.Flush()
		},
	}
}

func statsCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "stats",
		Summary: "Show message counters",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stats", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "stats")
			if err != nil {
				return err
			}
			stats, err := env.client.Stats(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, stats); done {
				return err
			}
			writer := tabwriter.NewWriter(streams.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "total\t%d\n", stats.TotalMessages)
			fmt.Fprintf(writer, "sent\t%d\n", stats.SentMessages)
			fmt.Fprintf(writer, "received\t%d\n", stats.ReceivedMessages)
			fmt.Fprintf(writer, "errors\t%d\n", stats.ErrorMessages)
			return writer.Flush()
		},
	}
}

func infoCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show backend system information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("info", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "info")
			if err != nil {
				return err
			}
			info, err := env.client.SystemInfo(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(streams.Stdout, info); done {
				return err
			}
			writer := tabwriter.NewWriter(streams.Stdout, 2, 0, 2, ' ', 0)
			for _, key := range slices.Sorted(maps.Keys(info)) {
				fmt.Fprintf(writer, "%s\t%v\n", key, info[key])
			}
			return writer.Flush()
		},
	}
}

func restartCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "restart",
		Summary: "Restart the backend, dropping the radio link and key",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("restart", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "restart")
			if err != nil {
				return err
			}
			ack, err := env.client.RestartSystem(ctx)
			if err != nil {
				return err
			}
			return printAck(streams, params.JSONOutput, ack)
		},
	}
}

func clearCommand(streams IO) *cli.Command {
	var params jsonParams
	return &cli.Command{
		Name:    "clear",
		Summary: "Clear the backend message history",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("clear", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "clear")
			if err != nil {
				return err
			}
			ack, err := env.client.ClearHistory(ctx)
			if err != nil {
				return err
			}
			return printAck(streams, params.JSONOutput, ack)
		},
	}
}

func printAck(streams IO, output cli.JSONOutput, ack *schema.Ack) error {
	if done, err := output.EmitJSON(streams.Stdout, ack); done {
		return err
	}
	_, err := fmt.Fprintln(streams.Stdout, ack.Message)
	return err
}
