// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/chatui"
	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/lib/tui"
)

type chatParams struct {
	connectionParams
	LogFile string `json:"-" flag:"log-file" desc:"append logs to this file (logs are discarded otherwise)"`
}

func chatCommand(streams IO) *cli.Command {
	var params chatParams
	return &cli.Command{
		Name:    "chat",
		Summary: "Open the interactive chat view",
		Description: `Open a full-screen chat over a live session. The header shows the
server, radio and encryption status; enter sends, ctrl+p cycles the
priority, tab cycles the direction filter, ctrl+l clears the history
and esc quits.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("chat", &params)
		},
		Run: func(ctx context.Context, _ []string) error {
			var logOutput io.Writer = io.Discard
			if params.LogFile != "" {
				file, err := os.OpenFile(params.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer file.Close()
				logOutput = file
			}

			env, err := params.open(logOutput, "chat")
			if err != nil {
				return err
			}
			running, err := env.session(nil)
			if err != nil {
				return err
			}
			running.Start(ctx)
			defer running.Close()

			model := chatui.NewModel(ctx, running)
			defer model.Close()

			tui.UseOutputProfile(streams.Stdout)
			program := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(streams.Stdin),
				tea.WithOutput(streams.Stdout),
			)
			if _, err := program.Run(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("chat view: %w", err)
			}
			return nil
		},
	}
}
