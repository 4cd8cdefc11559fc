// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "lorachat",
		Subcommands: []*Command{
			{
				Name: "lora",
				Subcommands: []*Command{
					{
						Name: "connect",
						Run: func(_ context.Context, args []string) error {
							called = "lora connect"
							receivedArgs = args
							return nil
						},
					},
				},
			},
			{
				Name: "status",
				Run: func(context.Context, []string) error {
					called = "status"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"lora", "connect", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "lora connect" {
		t.Errorf("dispatched to %q, want %q", called, "lora connect")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestCommand_Execute_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")

	var seen any
	command := &Command{
		Name: "send",
		Run: func(ctx context.Context, _ []string) error {
			seen = ctx.Value(key{})
			return nil
		},
	}
	if err := command.Execute(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if seen != "marker" {
		t.Errorf("Run saw context value %v, want marker", seen)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var priority string
	var text []string

	command := &Command{
		Name: "send",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flagSet.StringVarP(&priority, "priority", "p", "normal", "priority")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			text = args
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"-p", "low", "hello", "ridge"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if priority != "low" {
		t.Errorf("priority = %q, want low", priority)
	}
	if strings.Join(text, " ") != "hello ridge" {
		t.Errorf("args = %v, want [hello ridge]", text)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 100, "limit")
			flagSet.String("filter", "all", "filter")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--limt", "5"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --limit?") {
		t.Errorf("error = %q, want a --limit suggestion", err)
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "lorachat",
		Subcommands: []*Command{
			{Name: "status", Run: func(context.Context, []string) error { return nil }},
			{Name: "stats", Run: func(context.Context, []string) error { return nil }},
			{Name: "history", Run: func(context.Context, []string) error { return nil }},
		},
	}

	err := root.Execute(context.Background(), []string{"histroy"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "history"?`) {
		t.Errorf("error = %v, want a history suggestion", err)
	}

	err = root.Execute(context.Background(), []string{"teleport"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion for a distant name", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:       "lorachat",
		HelpOutput: &help,
		Subcommands: []*Command{
			{Name: "crypto", Summary: "Manage the encryption key", Subcommands: []*Command{
				{Name: "init", Summary: "Initialize encryption", Run: func(context.Context, []string) error { return nil }},
			}},
		},
	}

	if err := root.Execute(context.Background(), nil); err == nil {
		t.Error("expected an error without a subcommand")
	}
	if !strings.Contains(help.String(), "crypto") {
		t.Errorf("help should list subcommands:\n%s", help.String())
	}

	help.Reset()
	if err := root.Execute(context.Background(), []string{"crypto"}); err == nil {
		t.Error("expected an error without a nested subcommand")
	}
	if !strings.Contains(help.String(), "lorachat crypto <command>") {
		t.Errorf("nested help should use the full path and inherit the output:\n%s", help.String())
	}
}

func TestCommand_Execute_Help(t *testing.T) {
	var help bytes.Buffer
	ran := false
	command := &Command{
		Name:        "send",
		Description: "Send a message over the radio link.",
		Usage:       "lorachat send [flags] <text>",
		HelpOutput:  &help,
		Examples: []Example{
			{Description: "Send with retries", Command: "lorachat send -p low 'ping'"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
			flagSet.String("priority", "normal", "delivery priority")
			return flagSet
		},
		Run: func(context.Context, []string) error {
			ran = true
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("Execute(--help) error: %v", err)
	}
	if ran {
		t.Error("--help should not run the command")
	}
	output := help.String()
	for _, want := range []string{
		"Send a message over the radio link.",
		"lorachat send [flags] <text>",
		"--priority",
		"# Send with retries",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help missing %q:\n%s", want, output)
		}
	}
}

func TestCommand_Execute_ReturnsRunError(t *testing.T) {
	failure := errors.New("backend unreachable")
	command := &Command{
		Name: "status",
		Run:  func(context.Context, []string) error { return failure },
	}
	if err := command.Execute(context.Background(), nil); !errors.Is(err, failure) {
		t.Errorf("error = %v, want %v", err, failure)
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 2}
	var coded interface{ ExitCode() int }
	if !errors.As(err, &coded) || coded.ExitCode() != 2 {
		t.Errorf("ExitError should expose code 2, got %v", err)
	}
	if err.Error() != "" {
		t.Errorf("ExitError without a message should render empty, got %q", err.Error())
	}
}
