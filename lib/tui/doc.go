// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui holds the terminal look shared by lorachat's interactive
// views: the color theme, status badge rendering, a scrollbar and
// ANSI-aware text fitting. Views own their own models; this package
// only renders.
package tui
