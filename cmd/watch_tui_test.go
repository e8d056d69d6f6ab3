// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

type fakeSender struct {
	connected bool
	sent      []string
}

func (f *fakeSender) SendCommand(cmd *opentherm.GatewayCommand) error {
	f.sent = append(f.sent, cmd.String())
	return nil
}

func (f *fakeSender) IsConnected() bool { return f.connected }

func newWatchModel(sender commandSender) (watchModel, *state.Store) {
	store := state.New()
	return initialWatchModel("pipe", sender, store, opentherm.NewStatistics()), store
}

func update(t *testing.T, m watchModel, msg tea.Msg) watchModel {
	t.Helper()
	next, _ := m.Update(msg)
	wm, ok := next.(watchModel)
	require.True(t, ok)
	return wm
}

func typeText(t *testing.T, m watchModel, text string) watchModel {
	t.Helper()
	for _, r := range text {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestParseCommandArgs(t *testing.T) {
	cmds, err := parseCommandArgs([]string{"tt=20.5", "CH=1"})
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "TT=20.5", cmds[0].String())
	assert.Equal(t, "CH=1", cmds[1].String())

	_, err = parseCommandArgs([]string{"CH"})
	assert.Error(t, err)
	_, err = parseCommandArgs([]string{"CH=5"})
	assert.ErrorIs(t, err, opentherm.ErrInvalidCommandValue)
	_, err = parseCommandArgs([]string{"XX=1"})
	assert.ErrorIs(t, err, opentherm.ErrUnknownCommand)
}

func TestWatchCommandEntry(t *testing.T) {
	sender := &fakeSender{connected: true}
	m, _ := newWatchModel(sender)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusInput, m.focused)

	m = typeText(t, m, "ch=1")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"CH=1"}, sender.sent)
	assert.Empty(t, m.input.Value())
	require.NotEmpty(t, m.eventLog)
	assert.Equal(t, "Sent CH=1", m.eventLog[len(m.eventLog)-1].message)

	// q is text while the input is focused
	m = typeText(t, m, "q")
	assert.False(t, m.quitting)
}

func TestWatchRejectsInvalidCommand(t *testing.T) {
	sender := &fakeSender{}
	m, _ := newWatchModel(sender)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	m = typeText(t, m, "CH=9")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, sender.sent)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)

	m.input.SetValue("CH=1")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, sender.sent)
	assert.Contains(t, m.eventLog[len(m.eventLog)-1].message, "Not connected")
}

func TestWatchValuesAndEvents(t *testing.T) {
	m, store := newWatchModel(&fakeSender{})

	m = update(t, m, connStateMsg{state: gateway.ConnectedState})
	assert.Equal(t, gateway.ConnectedState, m.connState)

	changes := store.Apply(opentherm.NewMessage(opentherm.SourceBoiler, opentherm.ReadAck, 0, 0x00, 0x00))
	m = update(t, m, valuesMsg{changes: changes})
	events := len(m.eventLog)

	changes = store.Apply(opentherm.NewMessage(opentherm.SourceBoiler, opentherm.ReadAck, 0, 0x00, 0x08))
	require.Len(t, changes, 1)
	m = update(t, m, valuesMsg{changes: changes})
	require.Len(t, m.eventLog, events+1)
	assert.Equal(t, "Flame on: on", m.eventLog[events].message)

	assert.Len(t, m.values.Rows(), store.Len())

	m = update(t, m, responseMsg{resp: gateway.Response{Code: "CS", Err: gateway.ErrCommandTimeout}})
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, m.quitting)
	assert.Equal(t, "Shutting down...\n", m.View())
}
