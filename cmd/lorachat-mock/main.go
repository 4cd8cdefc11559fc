// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Lorachat-mock serves a simulated LoRa messaging appliance: the full
// HTTP API and the push channel, held in memory. The radio is a
// loopback: once both modules are connected and encryption is
// initialized, every sent message comes back as received after
// --echo-delay.
//
// It is a drop-in target for the lorachat client during development:
//
//	lorachat-mock --listen 127.0.0.1:5000 --connect --password demo &
//	lorachat send 'hello'
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/lib/mockbackend"
	"github.com/bureau-foundation/lorachat/lib/process"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	listen       string
	echoDelay    time.Duration
	pingInterval time.Duration
	ports        []string
	connect      bool
	password     string
	logLevel     string
	showVersion  bool
}

func parseOptions(args []string) (*options, error) {
	var parsed options
	flagSet := pflag.NewFlagSet("lorachat-mock", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.listen, "listen", "127.0.0.1:5000", "address to serve the API and push channel on")
	flagSet.DurationVar(&parsed.echoDelay, "echo-delay", 500*time.Millisecond, "loopback latency between a send and its reception")
	flagSet.DurationVar(&parsed.pingInterval, "ping-interval", 25*time.Second, "push channel heartbeat interval")
	flagSet.StringSliceVar(&parsed.ports, "ports", nil, "serial ports to report (default /dev/ttyUSB0,/dev/ttyUSB1)")
	flagSet.BoolVar(&parsed.connect, "connect", false, "start with both radio modules connected")
	flagSet.StringVar(&parsed.password, "password", "", "start with encryption initialized from this password")
	flagSet.StringVar(&parsed.logLevel, "log-level", "info", "debug, info, warn or error")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return &parsed, nil
}

// backendConfig translates the options into a backend configuration.
func (o *options) backendConfig(logger *slog.Logger) mockbackend.Config {
	config := mockbackend.Config{
		EchoDelay:    o.echoDelay,
		PingInterval: o.pingInterval,
		Logger:       logger,
	}
	for index, port := range o.ports {
		config.Ports = append(config.Ports, schema.Port{
			Port: port,
			Name: fmt.Sprintf("Mock LoRa module %d", index+1),
			HWID: fmt.Sprintf("MOCK:%04d", index+1),
		})
	}
	return config
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("lorachat-mock %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := cli.NewCommandLogger(os.Stderr, level)

	backend := mockbackend.New(opts.backendConfig(logger))
	defer backend.Close()
	if opts.connect {
		backend.ConnectRadio()
	}
	if opts.password != "" {
		fingerprint := backend.InitCrypto(opts.password)
		logger.Info("encryption initialized", "fingerprint", fingerprint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(listener)
	}()
	logger.Info("mock appliance running", "address", listener.Addr().String(), "version", version.Short())

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return err
	}
	logger.Info("shutting down")

	// Push channel long-polls hold requests open; close them before
	// waiting for the HTTP server to drain.
	backend.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveDone; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
