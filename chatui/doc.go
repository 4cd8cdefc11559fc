// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the interactive terminal chat view over a running
// session.
//
// The screen has five regions, top to bottom: a header with one badge
// per reconciled status field and the key fingerprint; the message
// list, filtered by direction (tab cycles all, sent, received); the
// attempt log of the most recent send; the input line with the
// selected priority (ctrl+p cycles); and a status bar with the clock,
// the backend counters and the uptime.
//
// Store and status changes arrive through their subscription channels
// as bubbletea messages. Sends and clears run as tea.Cmd so the view
// keeps rendering while a low priority send is backing off.
package chatui
