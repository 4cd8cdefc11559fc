// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/lorachat/delivery"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/tui"
	"github.com/bureau-foundation/lorachat/store"
)

// View implements tea.Model.
func (model Model) View() string {
	sections := []string{
		model.renderHeader(),
		model.renderFilterBar(),
		model.renderMessagePane(),
		model.renderLogPanel(),
		model.renderNotice(),
		model.renderInput(),
		model.renderStatusBar(),
		model.help.View(model.keys),
	}
	return strings.Join(sections, "\n")
}

func (model Model) faint(text string) string {
	return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(text)
}

// renderHeader shows one badge per status field and the key
// fingerprint.
func (model Model) renderHeader() string {
	current := model.snapshot.Status
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("LoRa Chat")
	badges := []string{
		model.theme.Badge("Server", current.ServerConnected),
		model.theme.Badge("Sender", current.LoRaSenderConnected),
		model.theme.Badge("Receiver", current.LoRaReceiverConnected),
		model.theme.Badge("Crypto", current.CryptoInitialized),
	}
	fingerprint := model.source.Info().Fingerprint
	if fingerprint == "" {
		fingerprint = model.faint("no key")
	} else {
		fingerprint = lipgloss.NewStyle().Foreground(model.theme.Accent).Render("key " + fingerprint)
	}
	return tui.Fit(title+"  "+strings.Join(badges, "  ")+"  "+fingerprint, model.width)
}

// renderFilterBar shows the direction filters with the active one
// highlighted.
func (model Model) renderFilterBar() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(model.theme.Accent)
	inactive := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	var tabs []string
	for _, filter := range store.Filters {
		if filter == model.filter {
			tabs = append(tabs, active.Render("["+filter.String()+"]"))
		} else {
			tabs = append(tabs, inactive.Render(" "+filter.String()+" "))
		}
	}
	return tui.Fit(strings.Join(tabs, " "), model.width)
}

// renderMessagePane joins the viewport with its scrollbar.
func (model Model) renderMessagePane() string {
	scrollbar := tui.RenderScrollbar(model.theme, model.messages.Height,
		model.messages.TotalLineCount(), model.messages.Height, model.messages.YOffset)
	return lipgloss.JoinHorizontal(lipgloss.Top, model.messages.View(), scrollbar)
}

// renderMessage formats one history entry as a single line:
// time, direction arrow, priority for sent messages, text, and radio
// signal for received ones.
func (model Model) renderMessage(message schema.Message) string {
	stamp := message.Timestamp
	if parsed, ok := message.Time(); ok {
		stamp = parsed.Format(time.TimeOnly)
	}

	directionStyle := lipgloss.NewStyle().Foreground(model.theme.DirectionColor(message.Direction))
	arrow := "←"
	if message.Direction == schema.DirectionSent {
		arrow = "→"
	}

	var builder strings.Builder
	builder.WriteString(model.faint(stamp))
	builder.WriteString(" ")
	builder.WriteString(directionStyle.Render(arrow))
	builder.WriteString(" ")
	if priority := message.Priority(); priority != "" && message.Direction == schema.DirectionSent {
		builder.WriteString(lipgloss.NewStyle().Foreground(model.theme.PriorityColor(priority)).Render("[" + string(priority) + "]"))
		builder.WriteString(" ")
	}
	builder.WriteString(lipgloss.NewStyle().Foreground(model.theme.NormalText).Render(message.Text))
	if signal := message.SignalInfo; signal != nil {
		builder.WriteString(" ")
		builder.WriteString(model.faint(fmt.Sprintf("(%.0f dBm, SNR %.1f)", signal.RSSI, signal.SNR)))
	}
	return tui.Fit(builder.String(), model.messages.Width)
}

// renderLogPanel shows the tail of the last send's attempt log.
func (model Model) renderLogPanel() string {
	border := lipgloss.NewStyle().Foreground(model.theme.BorderColor)
	lines := []string{border.Render(tui.Fit("── attempt log "+strings.Repeat("─", max(model.width, 15)), model.width))}

	entries := model.lastLog
	if len(entries) > logPanelEntries {
		entries = entries[len(entries)-logPanelEntries:]
	}
	for _, entry := range entries {
		lines = append(lines, model.renderLogEntry(entry))
	}
	if len(model.lastLog) == 0 {
		lines = append(lines, model.faint("no sends yet"))
	}
	for len(lines) < logPanelEntries+1 {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderLogEntry(entry delivery.LogEntry) string {
	style := lipgloss.NewStyle().Foreground(model.theme.LogLevelColor(string(entry.Level)))
	return tui.Fit(style.Render(entry.String()), model.width)
}

func (model Model) renderNotice() string {
	if model.notice == "" {
		return ""
	}
	color := model.theme.FaintText
	switch model.noticeKind {
	case noticeSuccess:
		color = model.theme.LogSuccess
	case noticeError:
		color = model.theme.LogError
	}
	return tui.Fit(lipgloss.NewStyle().Foreground(color).Render(model.notice), model.width)
}

// renderInput shows the input line followed by the selected priority.
func (model Model) renderInput() string {
	priority := lipgloss.NewStyle().Foreground(model.theme.PriorityColor(model.priority)).Render("[" + string(model.priority) + "]")
	return model.input.View() + " " + priority
}

// renderStatusBar shows the clock, the backend counters, the uptime
// and the number of messages held locally.
func (model Model) renderStatusBar() string {
	parts := []string{model.now.Format(time.TimeOnly)}
	if stats := model.snapshot.Stats; stats != nil {
		parts = append(parts, fmt.Sprintf("total %d  sent %d  received %d  errors %d",
			stats.TotalMessages, stats.SentMessages, stats.ReceivedMessages, stats.ErrorMessages))
	} else {
		parts = append(parts, "no stats")
	}
	parts = append(parts, "up "+model.source.Status().Uptime().Truncate(time.Second).String())
	parts = append(parts, fmt.Sprintf("%d messages", model.source.Store().Len()))
	if model.sending {
		parts = append(parts, "sending")
	}
	style := lipgloss.NewStyle().Foreground(model.theme.HelpText)
	return tui.Fit(style.Render(strings.Join(parts, " │ ")), model.width)
}
