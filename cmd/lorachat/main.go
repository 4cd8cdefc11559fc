// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/commands"
	"github.com/bureau-foundation/lorachat/lib/process"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root(commands.StandardIO()).Execute(ctx, os.Args[1:])
	stop()
	process.Exit(err)
}
