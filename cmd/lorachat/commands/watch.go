// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/eventstream"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/session"
	"github.com/bureau-foundation/lorachat/status"
	"github.com/bureau-foundation/lorachat/store"
)

type watchParams struct {
	connectionParams
	cli.JSONOutput
	Record string `json:"-" flag:"record" desc:"also write every event to a capture file for 'lorachat replay'"`
	Count  int    `json:"-" flag:"count" desc:"exit after this many message events (0 runs until interrupted)"`
}

func watchCommand(streams IO) *cli.Command {
	var params watchParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Print push channel events as they arrive",
		Description: `Connect to the push channel and print every event: connects and
disconnects, sent and received messages and history clears. With
--json each event is one JSON line. With --record the events are also
written to a compressed capture file.`,
		Examples: []cli.Example{
			{Description: "Record a session for later analysis", Command: "lorachat watch --record field-test.capture"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			env, err := params.open(streams.Stderr, "watch")
			if err != nil {
				return err
			}

			var recorder *eventstream.Recorder
			if params.Record != "" {
				file, err := os.Create(params.Record)
				if err != nil {
					return fmt.Errorf("creating capture: %w", err)
				}
				defer file.Close()
				recorder, err = eventstream.NewRecorder(file, env.config.APIURL, time.Now())
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			encoder := json.NewEncoder(streams.Stdout)
			messages := 0
			observer := func(event eventstream.Event) {
				if recorder != nil {
					if err := recorder.Record(event); err != nil {
						env.logger.Warn("recording event failed", "type", event.Type, "error", err)
					}
				}
				if params.OutputJSON {
					if err := encoder.Encode(event); err != nil {
						env.logger.Warn("writing event failed", "error", err)
					}
				} else {
					printEvent(streams.Stdout, event)
				}
				if event.Message != nil {
					messages++
					if params.Count > 0 && messages >= params.Count {
						cancel()
					}
				}
			}

			running, err := env.session(observer)
			if err != nil {
				return err
			}
			running.Start(ctx)
			select {
			case <-ctx.Done():
			case <-running.StreamDone():
			}
			running.Close()

			if recorder != nil {
				if err := recorder.Close(); err != nil {
					return err
				}
				env.logger.Info("capture written", "path", params.Record, "events", recorder.Count())
			}
			return running.StreamErr()
		},
	}
}

// printEvent writes one event as a line of text.
func printEvent(w io.Writer, event eventstream.Event) {
	line := event.At.Format("15:04:05.000") + " " + event.Type.String()
	switch {
	case event.Message != nil:
		line += fmt.Sprintf(" #%d", event.Message.ID)
		if priority := event.Message.Priority(); priority != "" {
			line += " [" + string(priority) + "]"
		}
		line += " " + event.Message.Text
	case event.Type == eventstream.Connected:
		line += " transport=" + event.Transport
	case event.Reason != "":
		line += " reason=" + event.Reason
	}
	fmt.Fprintln(w, line)
}

type replayParams struct {
	cli.JSONOutput
	Filter filterValue `json:"filter" flag:"filter,f" desc:"all, sent or received" default:"all"`
}

// replayOutput is the JSON form of `lorachat replay`.
type replayOutput struct {
	Header       *eventstream.CaptureHeader `json:"header"`
	Events       int                        `json:"events"`
	Truncated    string                     `json:"truncated,omitempty"`
	Status       status.ConnectionStatus    `json:"status"`
	LastActivity *time.Time                 `json:"last_activity,omitempty"`
	Messages     []schema.Message           `json:"messages"`
}

func replayCommand(streams IO) *cli.Command {
	var params replayParams
	return &cli.Command{
		Name:    "replay",
		Summary: "Rebuild state from a capture written by watch --record",
		Usage:   "lorachat replay [flags] <capture-file>",
		Description: `Fold the events of a capture through a fresh message store and status
reconciler, exactly as a live session would, and print the result.
Works offline. A capture cut short by a crash replays up to the last
complete event.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("replay", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("exactly one capture file is required\n\nRun 'lorachat replay --help' for usage.")
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			header, events, readErr := eventstream.ReadCapture(file)
			if header == nil {
				return readErr
			}

			messages := store.New()
			reconciler := status.New(status.Config{})
			for _, event := range events {
				session.Apply(event, messages, reconciler)
			}
			snapshot := reconciler.Snapshot()

			output := replayOutput{Header: header, Events: len(events), Status: snapshot.Status}
			if readErr != nil {
				output.Truncated = readErr.Error()
			}
			if !snapshot.LastActivity.IsZero() {
				output.LastActivity = &snapshot.LastActivity
			}
			for message := range messages.View(store.Filter(params.Filter)) {
				output.Messages = append(output.Messages, message)
			}

			if done, err := params.EmitJSON(streams.Stdout, output); done {
				return err
			}

			fmt.Fprintf(streams.Stdout, "capture from %s started %s\n", header.Source, header.Started.Format(time.RFC3339))
			fmt.Fprintf(streams.Stdout, "events %d\n", output.Events)
			if readErr != nil {
				fmt.Fprintf(streams.Stdout, "truncated: %v\n", readErr)
			}
			fmt.Fprintf(streams.Stdout, "status %s\n", snapshot.Status)
			if output.LastActivity != nil {
				fmt.Fprintf(streams.Stdout, "last activity %s\n", output.LastActivity.Format(time.RFC3339))
			}
			fmt.Fprintf(streams.Stdout, "messages %d\n", len(output.Messages))
			for _, message := range output.Messages {
				printMessage(streams.Stdout, message)
			}
			return nil
		},
	}
}
