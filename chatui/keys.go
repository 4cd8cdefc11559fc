// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the chat view key bindings.
type KeyMap struct {
	Send          key.Binding
	CycleFilter   key.Binding
	CyclePriority key.Binding
	ClearHistory  key.Binding
	ScrollUp      key.Binding
	ScrollDown    key.Binding
	ToggleHelp    key.Binding
	Quit          key.Binding
}

// DefaultKeyMap is the built-in key binding set. Printable keys all go
// to the input line, so every binding uses a modifier or a special key.
var DefaultKeyMap = KeyMap{
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	CycleFilter: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "filter"),
	),
	CyclePriority: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("C-p", "priority"),
	),
	ClearHistory: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("C-l", "clear history"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn", "scroll down"),
	),
	ToggleHelp: key.NewBinding(
		key.WithKeys("f1"),
		key.WithHelp("F1", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (keys KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{keys.Send, keys.CycleFilter, keys.CyclePriority, keys.ToggleHelp, keys.Quit}
}

// FullHelp implements help.KeyMap.
func (keys KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{keys.Send, keys.CyclePriority, keys.ClearHistory},
		{keys.CycleFilter, keys.ScrollUp, keys.ScrollDown},
		{keys.ToggleHelp, keys.Quit},
	}
}
