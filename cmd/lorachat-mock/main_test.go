// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := parseOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.listen != "127.0.0.1:5000" || opts.echoDelay != 500*time.Millisecond || opts.connect {
		t.Errorf("defaults = %+v", opts)
	}
	config := opts.backendConfig(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if config.Ports != nil {
		t.Errorf("no --ports should leave the backend defaults, got %v", config.Ports)
	}
}

func TestParseOptionsPorts(t *testing.T) {
	opts, err := parseOptions([]string{"--ports", "/dev/ttyACM0,/dev/ttyACM1", "--echo-delay", "50ms", "--connect"})
	if err != nil {
		t.Fatal(err)
	}
	config := opts.backendConfig(nil)
	if len(config.Ports) != 2 || config.Ports[1].Port != "/dev/ttyACM1" || config.Ports[0].Name != "Mock LoRa module 1" {
		t.Errorf("ports = %+v", config.Ports)
	}
	if config.EchoDelay != 50*time.Millisecond || !opts.connect {
		t.Errorf("options = %+v", opts)
	}
}

func TestParseOptionsRejectsArguments(t *testing.T) {
	if _, err := parseOptions([]string{"extra"}); err == nil {
		t.Error("expected an error for a positional argument")
	}
	if _, err := parseOptions([]string{"--lisen", ":5000"}); err == nil {
		t.Error("expected an error for an unknown flag")
	}
}
