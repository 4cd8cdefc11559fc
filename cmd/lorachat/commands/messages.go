// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/delivery"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/session"
	"github.com/bureau-foundation/lorachat/store"
)

type sendParams struct {
	connectionParams
	cli.JSONOutput
	Priority   priorityValue `json:"priority" flag:"priority,p" desc:"delivery priority: low (retried with backoff), normal or high" default:"normal"`
	MaxRetries int           `json:"max_retries" flag:"max-retries" desc:"attempts for a low priority send (default delivery.max_retries)"`
	RetryDelay time.Duration `json:"retry_delay" flag:"retry-delay" desc:"backoff unit between low priority attempts (default delivery.retry_delay)"`
	Force      bool          `json:"-" flag:"force" desc:"skip the readiness check"`
}

// sendOutput is the JSON form of `lorachat send`.
type sendOutput struct {
	Sent          bool                `json:"sent"`
	Message       string              `json:"message,omitempty"`
	EncryptedSize int                 `json:"encrypted_size,omitempty"`
	Attempts      int                 `json:"attempts"`
	Error         string              `json:"error,omitempty"`
	Log           delivery.AttemptLog `json:"log"`
}

func sendCommand(streams IO) *cli.Command {
	var params sendParams
	return &cli.Command{
		Name:    "send",
		Summary: "Send a message over the radio link",
		Usage:   "lorachat send [flags] <text>...",
		Description: `Send one message. Normal and high priority messages are attempted
once; low priority messages are retried with a growing delay. The
attempt log is printed as the send progresses.`,
		Examples: []cli.Example{
			{Description: "Send once", Command: "lorachat send 'base camp, do you copy?'"},
			{Description: "Retry up to five times, 3s apart and growing", Command: "lorachat send -p low --max-retries 5 --retry-delay 3s 'status update'"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("send", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				return errors.New("message text is required\n\nRun 'lorachat send --help' for usage.")
			}
			env, err := params.open(streams.Stderr, "send")
			if err != nil {
				return err
			}

			if !params.Force {
				health, err := env.client.Health(ctx)
				if err != nil {
					return err
				}
				current := reachableStatus(health)
				if !current.FullyConnected() {
					return fmt.Errorf("%w (%s); run 'lorachat status'", session.ErrNotReady, current)
				}
			}

			engine, err := delivery.New(delivery.Config{
				Sender:     env.client,
				MaxRetries: orDefault(params.MaxRetries, env.config.Delivery.MaxRetries),
				RetryDelay: orDefault(params.RetryDelay, env.config.Delivery.RetryDelay),
				Logger:     env.logger.With("component", "delivery"),
			})
			if err != nil {
				return err
			}
			result, sendErr := engine.Send(ctx, text, schema.Priority(params.Priority))

			output := sendOutput{Sent: sendErr == nil}
			if sendErr == nil {
				output.Message = result.Data.Message
				output.EncryptedSize = result.Data.EncryptedSize
				output.Attempts = result.Attempt
				output.Log = result.Log
			} else {
				output.Error = sendErr.Error()
				var deliveryErr *delivery.Error
				if errors.As(sendErr, &deliveryErr) {
					output.Attempts = deliveryErr.Attempts
					output.Log = deliveryErr.Log
				}
			}

			if params.OutputJSON {
				if err := cli.WriteJSON(streams.Stdout, output); err != nil {
					return err
				}
				if sendErr != nil {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			for _, entry := range output.Log {
				fmt.Fprintln(streams.Stdout, entry)
			}
			if sendErr != nil {
				return sendErr
			}
			fmt.Fprintf(streams.Stdout, "%s (%d bytes encrypted)\n", output.Message, output.EncryptedSize)
			return nil
		},
	}
}

// orDefault returns override when it is set and fallback otherwise.
func orDefault[T int | time.Duration](override, fallback T) T {
	if override > 0 {
		return override
	}
	return fallback
}

type historyParams struct {
	connectionParams
	cli.JSONOutput
	Limit  int         `json:"limit" flag:"limit,n" desc:"number of most recent messages to fetch (default history.limit)"`
	Filter filterValue `json:"filter" flag:"filter,f" desc:"all, sent or received" default:"all"`
}

func historyCommand(streams IO) *cli.Command {
	var params historyParams
	return &cli.Command{
		Name:    "history",
		Summary: "Show the message history",
		Examples: []cli.Example{
			{Description: "Last 20 received messages", Command: "lorachat history -n 20 --filter received"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("history", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "history")
			if err != nil {
				return err
			}
			history, err := env.client.History(ctx, orDefault(params.Limit, env.config.History.Limit))
			if err != nil {
				return err
			}

			messages := store.New()
			messages.Load(history)
			var selected []schema.Message
			for message := range messages.View(store.Filter(params.Filter)) {
				selected = append(selected, message)
			}

			if done, err := params.EmitJSON(streams.Stdout, selected); done {
				return err
			}
			if len(selected) == 0 {
				fmt.Fprintln(streams.Stdout, "no messages")
				return nil
			}
			for _, message := range selected {
				printMessage(streams.Stdout, message)
			}
			return nil
		},
	}
}

// printMessage writes one history line: id, time, direction,
// priority, text and, for received messages, the signal reading.
func printMessage(w io.Writer, message schema.Message) {
	stamp := message.Timestamp
	if parsed, ok := message.Time(); ok {
		stamp = parsed.Format(time.DateTime)
	}
	arrow := "<-"
	if message.Direction == schema.DirectionSent {
		arrow = "->"
	}
	line := fmt.Sprintf("#%d %s %s", message.ID, stamp, arrow)
	if priority := message.Priority(); priority != "" {
		line += " [" + string(priority) + "]"
	}
	line += " " + message.Text
	if signal := message.SignalInfo; signal != nil {
		line += fmt.Sprintf(" (%.0f dBm, SNR %.1f)", signal.RSSI, signal.SNR)
	}
	fmt.Fprintln(w, line)
}
