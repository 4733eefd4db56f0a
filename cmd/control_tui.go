// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Stats are polled every N seconds
const pollIntervalSeconds = 5

// Focus states
const (
	focusActions = iota
	focusCommand
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// action is one entry of the action list. Sense toggles carry the flag
// they flip; every other action sends a fixed frame.
type action struct {
	title string
	desc  string
	frame []byte
	sense uint16
}

// Implement list.Item interface
func (a action) Title() string       { return a.title }
func (a action) Description() string { return a.desc }
func (a action) FilterValue() string { return a.title }

func controlActions() []list.Item {
	items := []list.Item{
		action{title: "Poll telemetry", desc: "stats", frame: protocol.NewStatsPoll()},
		action{title: "Beep", desc: "sound 253", frame: protocol.NewSoundCommand(protocol.SoundBeep)},
		action{title: "Silence", desc: "sound 254", frame: protocol.NewSoundCommand(protocol.SoundOff)},
		action{title: "Random tone", desc: "sound 255", frame: protocol.NewSoundCommand(protocol.SoundRandom)},
	}
	for i := uint8(0); i < protocol.SongCount; i++ {
		items = append(items, action{
			title: fmt.Sprintf("Song %d", i),
			desc:  fmt.Sprintf("sound %d", i),
			frame: protocol.NewSoundCommand(i),
		})
	}
	for _, name := range senseNameList() {
		items = append(items, action{
			title: "Toggle " + name,
			desc:  "dynamic sense",
			sense: body.SenseNames[name],
		})
	}
	return items
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	actions   list.Model
	command   textinput.Model
	focused   int
	senseWord uint16 // dynamic sense word last sent

	stats         *protocol.Statistics
	telemetry     telemetryData
	errorLog      []errorLogEntry
	maxLogEntries int
	lastPoll      time.Time

	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlBatchMsg struct {
	events []frameEvent
	sync   *syncEvent
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "sound 253"
	ti.Prompt = "> "
	ti.CharLimit = 80
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	actions := list.New(controlActions(), delegate, 30, 14)
	actions.Title = "Actions"
	actions.SetShowStatusBar(false)
	actions.SetShowHelp(false)
	actions.SetFilteringEnabled(false)

	return controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		actions:       actions,
		command:       ti,
		focused:       focusActions,
		stats:         protocol.NewStatistics(),
		maxLogEntries: 100,
		lastPoll:      time.Now(),
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if m.focused == focusActions {
			var cmd tea.Cmd
			m.actions, cmd = m.actions.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.actions.SetSize(32, max(msg.Height-8, 6))

	case controlTickMsg:
		m.stats.CalculateRates()
		if !m.connectionLost && time.Since(m.lastPoll) >= pollIntervalSeconds*time.Second {
			m.lastPoll = time.Now()
			m.send(protocol.NewStatsPoll(), "")
		}
		return m, controlTickCmd()

	case controlBatchMsg:
		if msg.sync != nil {
			m.synchronized = true
			if msg.sync.invalidBytes > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.sync.invalidBytes), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}
		for _, ev := range msg.events {
			m.processFrame(ev)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focused == focusActions {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		if m.focused == focusActions {
			m.focused = focusCommand
			return m, m.command.Focus()
		}
		m.focused = focusActions
		m.command.Blur()
		return m, nil

	case "enter":
		if m.focused == focusActions {
			m.runAction()
		} else {
			m.runCommandLine()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focused == focusCommand {
		m.command, cmd = m.command.Update(msg)
	} else {
		m.actions, cmd = m.actions.Update(msg)
	}
	return m, cmd
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) runAction() {
	a, ok := m.actions.SelectedItem().(action)
	if !ok {
		return
	}
	if a.sense != 0 {
		word := m.senseWord ^ a.sense
		if m.send(protocol.NewSenseCommand(word), fmt.Sprintf("sense 0x%03X", word)) {
			m.senseWord = word
		}
		return
	}
	m.send(a.frame, a.desc)
}

func (m *controlModel) runCommandLine() {
	line := strings.TrimSpace(m.command.Value())
	if line == "" {
		return
	}
	frame, err := buildFrame(strings.Fields(line))
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}
	if m.send(frame, line) {
		m.command.SetValue("")
	}
}

// send writes frame and logs label. Returns true if the frame was written.
func (m *controlModel) send(frame []byte, label string) bool {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return false
	}
	if err := m.connMgr.send(frame); err != nil {
		m.addLogEntry(err.Error(), true)
		return false
	}
	if label != "" {
		m.addLogEntry("Sent "+label, false)
	}
	return true
}

func (m *controlModel) processFrame(ev frameEvent) {
	m.stats.Update(ev.frame, ev.decodeErr, ev.validationErrors)
	switch {
	case ev.decodeErr != nil:
		m.addLogEntry(fmt.Sprintf("FRAMING ERROR: %v", ev.decodeErr), true)
	case len(ev.validationErrors) > 0:
		for _, e := range ev.validationErrors {
			m.addLogEntry(fmt.Sprintf("%s: %s", ev.frame.ID(), e.Message), true)
		}
	default:
		m.telemetry.update(ev.frame)
		if ev.frame.ID() == protocol.CmdMsg {
			m.addLogEntry("Message: "+ev.frame.Text(), false)
		}
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("TANDEM - CONTROL"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | tab switch focus, enter send, q quit", m.connInfo)))
	s.WriteString("\n\n")

	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection lost - reconnecting..."))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  dynamic senses 0x%03X", m.senseWord)))
	s.WriteString("\n\n")

	left := m.actions.View()
	if m.focused == focusActions {
		left = activeBoxStyle.Render(left)
	} else {
		left = boxStyle.Render(left)
	}

	var right strings.Builder
	right.WriteString(statsLabelStyle.Render("Command:"))
	right.WriteString("\n")
	if m.focused == focusCommand {
		right.WriteString(activeBoxStyle.Render(m.command.View()))
	} else {
		right.WriteString(boxStyle.Render(m.command.View()))
	}
	right.WriteString("\n")
	right.WriteString(statsLabelStyle.Render("Latest Telemetry:"))
	right.WriteString("\n")
	right.WriteString(boxStyle.Render(renderTelemetry(m.telemetry)))
	right.WriteString("\n")
	right.WriteString(boxStyle.Render(renderStatistics(m.stats)))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right.String()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(renderLog(m.errorLog, m.width, m.height-30))
	return s.String()
}

var activeBoxStyle = boxStyle.BorderForeground(lipgloss.Color("12"))
