// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/lorachat/lib/schema"
)

// Theme defines the color palette for lorachat's terminal views. All
// colors are ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	Accent           lipgloss.Color

	// Message direction.
	SentForeground     lipgloss.Color
	ReceivedForeground lipgloss.Color

	// Connection badges.
	BadgeUp   lipgloss.Color
	BadgeDown lipgloss.Color

	// Priority colors, indexed low, normal, high.
	PriorityColors [3]lipgloss.Color

	// Attempt log levels.
	LogInfo    lipgloss.Color
	LogSuccess lipgloss.Color
	LogError   lipgloss.Color
}

// DefaultTheme is the built-in scheme for dark 256-color terminals.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	Accent:           lipgloss.Color("75"),

	SentForeground:     lipgloss.Color("117"),
	ReceivedForeground: lipgloss.Color("186"),

	BadgeUp:   lipgloss.Color("114"),
	BadgeDown: lipgloss.Color("196"),

	PriorityColors: [3]lipgloss.Color{
		lipgloss.Color("245"), // low: gray
		lipgloss.Color("75"),  // normal: blue
		lipgloss.Color("208"), // high: orange
	},

	LogInfo:    lipgloss.Color("245"),
	LogSuccess: lipgloss.Color("114"),
	LogError:   lipgloss.Color("196"),
}

// PriorityColor returns the color for p. Unknown priorities render as
// NormalText.
func (theme Theme) PriorityColor(p schema.Priority) lipgloss.Color {
	for index, candidate := range schema.Priorities {
		if candidate == p {
			return theme.PriorityColors[index]
		}
	}
	return theme.NormalText
}

// DirectionColor returns the color for messages travelling in d.
func (theme Theme) DirectionColor(d schema.Direction) lipgloss.Color {
	if d == schema.DirectionSent {
		return theme.SentForeground
	}
	return theme.ReceivedForeground
}

// LogLevelColor returns the color for an attempt log level name.
func (theme Theme) LogLevelColor(level string) lipgloss.Color {
	switch level {
	case "success":
		return theme.LogSuccess
	case "error":
		return theme.LogError
	default:
		return theme.LogInfo
	}
}

// Badge renders a connection indicator: a filled dot in the up color
// or a hollow dot in the down color, followed by label.
func (theme Theme) Badge(label string, up bool) string {
	if up {
		return lipgloss.NewStyle().Foreground(theme.BadgeUp).Render("● " + label)
	}
	return lipgloss.NewStyle().Foreground(theme.BadgeDown).Render("○ " + label)
}

// UseOutputProfile sets the lipgloss color profile from the terminal
// behind w, honoring NO_COLOR and CLICOLOR_FORCE.
func UseOutputProfile(w io.Writer) {
	lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
}
