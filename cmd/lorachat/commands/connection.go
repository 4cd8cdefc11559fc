// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/lorachat/api"
	"github.com/bureau-foundation/lorachat/cmd/lorachat/cli"
	"github.com/bureau-foundation/lorachat/eventstream"
	"github.com/bureau-foundation/lorachat/lib/config"
	"github.com/bureau-foundation/lorachat/session"
)

// connectionParams are the flags shared by every command that talks
// to a backend. Embed it in a command's params struct.
type connectionParams struct {
	APIURL     string `json:"-" flag:"api-url" desc:"backend base URL (overrides LORACHAT_API_URL and the config file)"`
	ConfigFile string `json:"-" flag:"config" desc:"configuration file (default $LORACHAT_CONFIG)"`
}

// environment is what a command needs to reach the backend.
type environment struct {
	config *config.Config
	logger *slog.Logger
	client *api.Client
}

// open loads the configuration and creates the REST client. Log output
// goes to logOutput, scoped with the command name.
func (p connectionParams) open(logOutput io.Writer, command string) (*environment, error) {
	var cfg *config.Config
	var err error
	if p.ConfigFile != "" {
		cfg, err = config.LoadFile(p.ConfigFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if p.APIURL != "" {
		cfg.APIURL = p.APIURL
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("--api-url: %w", err)
		}
	}

	logger := cli.NewCommandLogger(logOutput, cfg.SlogLevel()).With("command", command)
	client, err := api.NewClient(api.ClientConfig{
		BaseURL: cfg.APIURL,
		Logger:  logger.With("component", "api"),
	})
	if err != nil {
		return nil, err
	}
	return &environment{config: cfg, logger: logger, client: client}, nil
}

// stream creates a push channel client with the configured transports
// and reconnect policy.
func (e *environment) stream() (*eventstream.Client, error) {
	return eventstream.New(eventstream.Config{
		BaseURL:           e.config.APIURL,
		Transports:        e.config.Stream.Transports,
		ReconnectDelay:    e.config.Stream.ReconnectDelay,
		ReconnectDelayMax: e.config.Stream.ReconnectDelayMax,
		ReconnectAttempts: e.config.Stream.ReconnectAttempts,
		Logger:            e.logger.With("component", "eventstream"),
	})
}

// session creates a session over the backend with the configured
// delivery policy and poll intervals. observer may be nil.
func (e *environment) session(observer eventstream.Handler) (*session.Session, error) {
	stream, err := e.stream()
	if err != nil {
		return nil, err
	}
	return session.New(session.Config{
		API:            e.client,
		Stream:         stream,
		MaxRetries:     e.config.Delivery.MaxRetries,
		RetryDelay:     e.config.Delivery.RetryDelay,
		HealthInterval: e.config.Poll.HealthInterval,
		StatsInterval:  e.config.Poll.StatsInterval,
		HistoryLimit:   e.config.History.Limit,
		Observer:       observer,
		Logger:         e.logger,
	})
}
