// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/lorachat/delivery"
	"github.com/bureau-foundation/lorachat/lib/schema"
	"github.com/bureau-foundation/lorachat/lib/tui"
	"github.com/bureau-foundation/lorachat/session"
	"github.com/bureau-foundation/lorachat/status"
	"github.com/bureau-foundation/lorachat/store"
)

// Session is the part of a running session the chat view drives.
// *session.Session implements it.
type Session interface {
	Store() *store.Store
	Status() *status.Reconciler
	Info() session.Info
	Send(ctx context.Context, text string, priority schema.Priority) (*delivery.Result, error)
	ClearHistory(ctx context.Context) error
}

const (
	// logPanelEntries is how many attempt log entries the panel shows.
	// A low priority send that exhausts its retries produces more; the
	// panel keeps the most recent.
	logPanelEntries = 6

	clockTickInterval = time.Second

	defaultWidth  = 80
	defaultHeight = 24
)

// storeChangedMsg reports that the store contents changed.
type storeChangedMsg struct{}

// statusMsg carries a snapshot published by the reconciler.
type statusMsg struct{ snapshot status.Snapshot }

type clockTickMsg struct{ now time.Time }

// sendDoneMsg is the outcome of a send started from the input line.
type sendDoneMsg struct {
	result *delivery.Result
	err    error
}

type clearDoneMsg struct{ err error }

// noticeKind selects the color of the one-line notice above the input.
type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeSuccess
	noticeError
)

// Model is the bubbletea model of the chat view.
type Model struct {
	ctx    context.Context
	source Session
	theme  tui.Theme
	keys   KeyMap
	help   help.Model

	storeChanges  <-chan struct{}
	statusChanges <-chan status.Snapshot
	unsubscribes  []func()

	input    textinput.Model
	messages viewport.Model

	filter   store.Filter
	priority schema.Priority
	snapshot status.Snapshot
	now      time.Time

	sending    bool
	lastLog    delivery.AttemptLog
	notice     string
	noticeKind noticeKind

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
}

// NewModel creates a chat view over source and subscribes to its store
// and status. Commands issued from the view run under ctx. Call Close
// after the program exits to drop the subscriptions.
func NewModel(ctx context.Context, source Session) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "Type a message"
	input.Focus()

	storeChanges, cancelStore := source.Store().Subscribe()
	statusChanges, cancelStatus := source.Status().Subscribe()

	model := Model{
		ctx:           ctx,
		source:        source,
		theme:         tui.DefaultTheme,
		keys:          DefaultKeyMap,
		help:          help.New(),
		storeChanges:  storeChanges,
		statusChanges: statusChanges,
		unsubscribes:  []func(){cancelStore, cancelStatus},
		input:         input,
		messages:      viewport.New(defaultWidth, 1),
		filter:        store.All,
		priority:      schema.PriorityNormal,
		snapshot:      source.Status().Snapshot(),
		now:           time.Now(),
		width:         defaultWidth,
		height:        defaultHeight,
	}
	model.layout()
	model.refreshMessages()
	return model
}

// Close drops the store and status subscriptions.
func (model Model) Close() {
	for _, unsubscribe := range model.unsubscribes {
		unsubscribe()
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(
		listenForStoreChange(model.storeChanges),
		listenForStatus(model.statusChanges),
		scheduleClockTick(),
		textinput.Blink,
	)
}

// listenForStoreChange returns a tea.Cmd that blocks until the store
// reports a change.
func listenForStoreChange(channel <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-channel; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

// listenForStatus returns a tea.Cmd that blocks until the reconciler
// publishes a snapshot.
func listenForStatus(channel <-chan status.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snapshot, ok := <-channel
		if !ok {
			return nil
		}
		return statusMsg{snapshot: snapshot}
	}
}

func scheduleClockTick() tea.Cmd {
	return tea.Tick(clockTickInterval, func(now time.Time) tea.Msg {
		return clockTickMsg{now: now}
	})
}

// sendCommand runs one delivery in the background.
func (model Model) sendCommand(text string, priority schema.Priority) tea.Cmd {
	ctx, source := model.ctx, model.source
	return func() tea.Msg {
		result, err := source.Send(ctx, text, priority)
		return sendDoneMsg{result: result, err: err}
	}
}

func (model Model) clearCommand() tea.Cmd {
	ctx, source := model.ctx, model.source
	return func() tea.Msg {
		return clearDoneMsg{err: source.ClearHistory(ctx)}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.layout()
		model.refreshMessages()
		return model, nil

	case storeChangedMsg:
		model.refreshMessages()
		return model, listenForStoreChange(model.storeChanges)

	case statusMsg:
		model.snapshot = message.snapshot
		return model, listenForStatus(model.statusChanges)

	case clockTickMsg:
		model.now = message.now
		return model, scheduleClockTick()

	case sendDoneMsg:
		return model.handleSendDone(message), nil

	case clearDoneMsg:
		if message.err != nil {
			model.setNotice(noticeError, "clear failed: "+message.err.Error())
		} else {
			model.setNotice(noticeSuccess, "history cleared")
		}
		return model, nil
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	return model, command
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Send):
		return model.submit()

	case key.Matches(message, model.keys.CycleFilter):
		model.filter = model.filter.Next()
		model.refreshMessages()
		model.messages.GotoBottom()
		return model, nil

	case key.Matches(message, model.keys.CyclePriority):
		model.priority = model.priority.Next()
		return model, nil

	case key.Matches(message, model.keys.ClearHistory):
		model.setNotice(noticeInfo, "clearing history")
		return model, model.clearCommand()

	case key.Matches(message, model.keys.ScrollUp):
		model.messages.SetYOffset(model.messages.YOffset - model.messages.Height)
		return model, nil

	case key.Matches(message, model.keys.ScrollDown):
		model.messages.SetYOffset(model.messages.YOffset + model.messages.Height)
		return model, nil

	case key.Matches(message, model.keys.ToggleHelp):
		model.help.ShowAll = !model.help.ShowAll
		model.layout()
		return model, nil
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	return model, command
}

// submit starts a send of the input line. The input is kept until the
// send succeeds so a failed message can be retried with enter.
func (model Model) submit() (tea.Model, tea.Cmd) {
	text := model.input.Value()
	if strings.TrimSpace(text) == "" {
		return model, nil
	}
	if model.sending {
		model.setNotice(noticeError, "a send is already in progress")
		return model, nil
	}
	if !model.snapshot.Status.FullyConnected() {
		model.setNotice(noticeError, "not ready: connect the radio and initialize encryption first")
		return model, nil
	}
	model.sending = true
	model.setNotice(noticeInfo, "sending "+delivery.Preview(text))
	return model, model.sendCommand(text, model.priority)
}

func (model Model) handleSendDone(message sendDoneMsg) Model {
	model.sending = false
	if message.err != nil {
		var deliveryErr *delivery.Error
		if errors.As(message.err, &deliveryErr) {
			model.lastLog = deliveryErr.Log
		}
		model.setNotice(noticeError, "send failed: "+message.err.Error())
		return model
	}
	model.lastLog = message.result.Log
	model.input.Reset()
	if message.result.Attempt > 1 {
		model.setNotice(noticeSuccess, "sent on attempt "+strconv.Itoa(message.result.Attempt))
	} else {
		model.setNotice(noticeSuccess, "sent")
	}
	return model
}

func (model *Model) setNotice(kind noticeKind, text string) {
	model.noticeKind = kind
	model.notice = text
}

// fixedRows is the number of rows outside the message viewport: the
// header, the filter bar, the log panel, the notice, the input, the
// status bar and the help.
func (model Model) fixedRows() int {
	helpRows := 1
	if model.help.ShowAll {
		helpRows = len(model.keys.FullHelp()[0])
	}
	return 1 + 1 + (logPanelEntries + 1) + 1 + 1 + 1 + helpRows
}

// layout recalculates component sizes after a resize.
func (model *Model) layout() {
	model.messages.Width = max(model.width-1, 1)
	model.messages.Height = max(model.height-model.fixedRows(), 1)
	model.input.Width = max(model.width-len(model.input.Prompt)-12, 1)
	model.help.Width = model.width
}

// refreshMessages re-renders the filtered store into the viewport,
// following the tail when the view was already at the bottom.
func (model *Model) refreshMessages() {
	atBottom := model.messages.AtBottom()
	offset := model.messages.YOffset

	var lines []string
	for message := range model.source.Store().View(model.filter) {
		lines = append(lines, model.renderMessage(message))
	}
	if len(lines) == 0 {
		lines = append(lines, model.faint("No messages"))
	}
	model.messages.SetContent(strings.Join(lines, "\n"))

	if atBottom {
		model.messages.GotoBottom()
	} else {
		model.messages.SetYOffset(offset)
	}
}
