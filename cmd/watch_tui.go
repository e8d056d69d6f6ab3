// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type focusField int

const (
	focusTable focusField = iota
	focusInput
)

// commandSender is the part of the connector the TUI drives.
type commandSender interface {
	SendCommand(cmd *opentherm.GatewayCommand) error
	IsConnected() bool
}

// TUI model
type watchModel struct {
	source        string
	sender        commandSender
	store         *state.Store
	stats         *opentherm.Statistics
	values        table.Model
	input         textinput.Model
	focused       focusField
	connState     gateway.ConnState
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type connStateMsg struct {
	state gateway.ConnState
}
type valuesMsg struct {
	changes []state.Change
}
type responseMsg struct {
	resp gateway.Response
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialWatchModel(source string, sender commandSender, store *state.Store, stats *opentherm.Statistics) watchModel {
	ti := textinput.New()
	ti.Placeholder = "CH=1"
	ti.Prompt = "> "
	ti.CharLimit = 2 + 1 + opentherm.MaxCommandValueLength
	ti.Width = 24

	values := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 3},
			{Title: "Item", Width: 40},
			{Title: "Value", Width: 10},
			{Title: "Unit", Width: 5},
			{Title: "Src", Width: 3},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	return watchModel{
		source:        source,
		sender:        sender,
		store:         store,
		stats:         stats,
		values:        values,
		input:         ti,
		focused:       focusTable,
		connState:     gateway.DisconnectedState,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), textinput.Blink)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.values.SetHeight(max(m.height-20, 5))

	case tickMsg:
		m.refreshRows()
		return m, tickCmd()

	case connStateMsg:
		m.connState = msg.state
		switch msg.state {
		case gateway.ConnectedState:
			m.addLogEntry("Connected to "+m.source, false)
		case gateway.DisconnectedState:
			m.addLogEntry("Disconnected", true)
		}

	case valuesMsg:
		for _, c := range msg.changes {
			// Flags are the interesting transitions: flame, fault, CH/DHW active.
			if c.Value.Item.DataType == opentherm.Flags && !c.First {
				m.addLogEntry(fmt.Sprintf("%s: %s", c.Value.Item.Subject, c.Value), c.Value.Item.Channel == "fault" && c.Value.Bool)
			}
		}
		m.refreshRows()

	case responseMsg:
		if msg.resp.OK() {
			m.addLogEntry("Response "+msg.resp.String(), false)
		} else {
			m.addLogEntry("Command failed: "+msg.resp.String(), true)
		}
	}

	var cmd tea.Cmd
	if m.focused == focusInput {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m watchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab", "shift+tab":
		return m.toggleFocus(), nil
	}

	if m.focused == focusInput {
		switch msg.String() {
		case "enter":
			m.submitCommand()
			return m, nil
		case "esc":
			return m.toggleFocus(), nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if msg.String() == "q" {
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.values, cmd = m.values.Update(msg)
	return m, cmd
}

func (m watchModel) toggleFocus() watchModel {
	if m.focused == focusTable {
		m.focused = focusInput
		m.values.Blur()
		m.input.Focus()
	} else {
		m.focused = focusTable
		m.input.Blur()
		m.values.Focus()
	}
	return m
}

func (m *watchModel) submitCommand() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	cmds, err := parseCommandArgs([]string{text})
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}
	m.input.Reset()

	if !m.sender.IsConnected() {
		m.addLogEntry("Not connected, "+cmds[0].String()+" dropped", true)
		return
	}
	if err := m.sender.SendCommand(cmds[0]); err != nil {
		m.addLogEntry(fmt.Sprintf("Send %s failed: %v", cmds[0], err), true)
		return
	}
	m.addLogEntry("Sent "+cmds[0].String(), false)
}

func (m *watchModel) refreshRows() {
	entries := m.store.Snapshot()
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		item := e.Value.Item
		src := "OT"
		if e.Overridden() {
			src = "GW"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", item.ID),
			item.Subject,
			e.Value.String(),
			item.Unit,
			src,
		})
	}
	m.values.SetRows(rows)
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View Rendering
//////////////////////////////////////////////////////////////

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.BorderForeground(lipgloss.Color("12"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("OTGW - WATCH"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Gateway: %s | Tab: command input | Press 'q' to quit", m.source)))
	s.WriteString("\n\n")

	if m.connState == gateway.ConnectedState {
		s.WriteString(statsValueStyle.Render("✓ Connected"))
	} else {
		s.WriteString(warningStyle.Render("⏳ " + m.connState.String() + "..."))
	}
	s.WriteString("\n\n")

	snap := m.stats.Snapshot()
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Messages:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Messages)),
		statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", snap.Malformed)),
		statsLabelStyle.Render("Gateway errors:"), errorStyle.Render(fmt.Sprintf("%d", snap.GatewayErrors)),
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(opentherm.FormatUptime(snap.Elapsed)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s",
		statsLabelStyle.Render("Message Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f msg/s", snap.MessageRate)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n")

	tableBox, inputBox := boxStyle, boxStyle
	if m.focused == focusTable {
		tableBox = focusedBoxStyle
	} else {
		inputBox = focusedBoxStyle
	}
	s.WriteString(tableBox.Render(m.values.View()))
	s.WriteString("\n")
	s.WriteString(inputBox.Render(statsLabelStyle.Render("Command: ") + m.input.View()))
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := 5
	logContent := strings.Builder{}
	startIdx := max(len(m.eventLog)-logHeight, 0)
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(logContent.String()))

	return s.String()
}
