// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

var monitorShowAll bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of Body state, Engine telemetry and frame statistics",
	Long: `Show the latest state word, telemetry and GPS fix relayed by Engine,
together with frame statistics and a log of framing and validation errors.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log valid frames too")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	return runMonitorTUI(conn, connInfo, "MONITOR", monitorShowAll)
}

// runMonitorTUI feeds decoded frames from conn into the monitor model
func runMonitorTUI(conn Connection, connInfo, title string, showAll bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := initialModel(connInfo, title, showAll)
	p := tea.NewProgram(m)

	go func() {
		err := readFrames(ctx, conn,
			func(s syncEvent) { p.Send(syncMsg(s)) },
			func(ev frameEvent) { p.Send(frameMsg(ev)) })
		if err != nil {
			p.Send(connectionLostMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// telemetryData is the latest of each relayed frame kind
type telemetryData struct {
	stateAt  time.Time
	stamp    protocol.DateTime
	state    fsm.StateWord
	hasState bool

	statsAt  time.Time
	stats    protocol.Stats
	hasStats bool

	gpsAt  time.Time
	gps    *protocol.GPSFix
	hasGPS bool
}

// update records f when it carries telemetry
func (t *telemetryData) update(f *protocol.Frame) {
	text := f.Text()
	switch f.ID() {
	case protocol.CmdState:
		if ts, word, err := protocol.DecodeState(text); err == nil {
			t.stateAt, t.stamp, t.state, t.hasState = f.Timestamp(), ts, fsm.StateWord(word), true
		}
	case protocol.CmdData:
		if ts, st, err := protocol.DecodeData(text); err == nil {
			t.statsAt, t.stamp, t.stats, t.hasStats = f.Timestamp(), ts, st, true
		}
	case protocol.CmdStats:
		if st, err := protocol.ParseStats(text); err == nil {
			t.statsAt, t.stats, t.hasStats = f.Timestamp(), st, true
		}
	case protocol.CmdGPS:
		if _, fix, err := protocol.DecodeGPS(text); err == nil {
			t.gpsAt, t.gps, t.hasGPS = f.Timestamp(), fix, true
		}
	}
}

// TUI model
type model struct {
	connInfo      string
	title         string
	showAll       bool
	stats         *protocol.Statistics
	telemetry     telemetryData
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	closed        bool
}

// Messages
type tickMsg time.Time
type frameMsg frameEvent
type syncMsg syncEvent
type connectionLostMsg struct{ err error }

func initialModel(connInfo, title string, showAll bool) model {
	return model{
		connInfo:      connInfo,
		title:         title,
		showAll:       showAll,
		stats:         protocol.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case frameMsg:
		m.stats.Update(msg.frame, msg.decodeErr, msg.validationErrors)
		switch {
		case msg.decodeErr != nil:
			m.addLogEntry(fmt.Sprintf("FRAMING ERROR: %v", msg.decodeErr), true)
		case len(msg.validationErrors) > 0:
			for _, e := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", msg.frame.ID(), e.Message), true)
			}
		default:
			m.telemetry.update(msg.frame)
			if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid)", msg.frame.ID()), false)
			}
		}

	case connectionLostMsg:
		m.closed = true
		m.addLogEntry(fmt.Sprintf("Connection closed: %v", msg.err), true)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
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

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statsValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle        = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// age renders how long ago t was
func age(t time.Time) string {
	return headerStyle.Render(fmt.Sprintf("(%.1fs ago)", time.Since(t).Seconds()))
}

// renderStateBits shows every state bit, set bits highlighted
func renderStateBits(s fsm.StateWord) string {
	parts := make([]string, 0, len(body.StateBitNames()))
	set := strings.Split(body.StateString(s), "|")
	isSet := make(map[string]bool, len(set))
	for _, n := range set {
		isSet[n] = true
	}
	for _, n := range body.StateBitNames() {
		if isSet[n] {
			parts = append(parts, statsValueStyle.Render(n))
		} else {
			parts = append(parts, headerStyle.Render(strings.ToLower(n)))
		}
	}
	return strings.Join(parts, " ")
}

func renderStatistics(st *protocol.Statistics) string {
	st.CalculateRates()
	errors := st.DecodeErrors + st.MalformedFrames + st.AnomalousValues

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, percentOf(st.ValidFrames, st.TotalFrames))),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errors, percentOf(errors, st.TotalFrames))),
	)
	if st.DecodeErrors > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Framing:"), errorStyle.Render(fmt.Sprintf("%d", st.DecodeErrors)),
			headerStyle.Render("restarts"), st.Restarts,
			headerStyle.Render("unknown ids"), st.UnknownIDs,
			headerStyle.Render("overflows"), st.Overflows,
		)
	}
	if st.MalformedFrames > 0 {
		fmt.Fprintf(&b, "%s %s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", st.MalformedFrames)),
			headerStyle.Render("length"), st.LengthMismatch,
			headerStyle.Render("non-numeric"), st.NonNumeric,
		)
	}
	if st.AnomalousValues > 0 {
		fmt.Fprintf(&b, "%s %s\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", st.AnomalousValues)))
	}

	var perCmd []string
	for _, id := range protocol.AllCommands {
		if n := st.PerCommand[id]; n > 0 {
			perCmd = append(perCmd, fmt.Sprintf("%s=%d", strings.ToLower(id.String()), n))
		}
	}
	if len(perCmd) > 0 {
		fmt.Fprintf(&b, "%s %s\n", statsLabelStyle.Render("Commands:"), strings.Join(perCmd, " "))
	}

	errRate := statsValueStyle
	if st.ErrorRate > 0 {
		errRate = errorStyle
	}
	fmt.Fprintf(&b, "%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errRate.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate)),
	)
	return b.String()
}

func renderTelemetry(t telemetryData) string {
	var b strings.Builder

	if t.hasState {
		fmt.Fprintf(&b, "%s 0x%04X %s\n  %s\n",
			statsLabelStyle.Render("State:"), uint16(t.state), age(t.stateAt), renderStateBits(t.state))
		fmt.Fprintf(&b, "%s %s\n", statsLabelStyle.Render("Clock:"), protocol.FormatDateTime(t.stamp))
	} else {
		b.WriteString(headerStyle.Render("(no state yet)") + "\n")
	}

	if t.hasStats {
		s := t.stats
		gear := fmt.Sprintf("%d", s.Gear)
		if s.Gear == 0 {
			gear = "N"
		}
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s %s\n",
			statsLabelStyle.Render("Gear:"), statsValueStyle.Render(gear),
			statsLabelStyle.Render("RPM:"), statsValueStyle.Render(fmt.Sprintf("%d", s.RPM)),
			statsLabelStyle.Render("Battery:"), statsValueStyle.Render(fmt.Sprintf("%.2f V", float64(s.Voltage)/1000)),
			age(t.statsAt),
		)
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Current:"), statsValueStyle.Render(fmt.Sprintf("%d mA", s.Current)),
			statsLabelStyle.Render("Temp:"), statsValueStyle.Render(fmt.Sprintf("%.1f°C", float64(s.Temperature)/100)),
			statsLabelStyle.Render("Accel:"), statsValueStyle.Render(fmt.Sprintf("%d,%d,%d", s.AccelX, s.AccelY, s.AccelZ)),
		)
	}

	if t.hasGPS {
		if t.gps == nil {
			fmt.Fprintf(&b, "%s %s %s", statsLabelStyle.Render("GPS:"), warningStyle.Render("no fix"), age(t.gpsAt))
		} else {
			fmt.Fprintf(&b, "%s %s %s", statsLabelStyle.Render("GPS:"),
				statsValueStyle.Render(fmt.Sprintf("%.6f, %.6f  %.1f m  (%d SV)",
					float64(t.gps.Latitude)/1e7, float64(t.gps.Longitude)/1e7,
					float64(t.gps.Altitude)/100, t.gps.Satellites)),
				age(t.gpsAt))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderLog(entries []errorLogEntry, width, logHeight int) string {
	if logHeight < 5 {
		logHeight = 5
	}
	start := len(entries) - logHeight
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range entries[start:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message))
		}
	}
	return boxStyle.Width(width - 4).Render(strings.TrimRight(b.String(), "\n"))
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("TANDEM - " + m.title))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset stats, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	switch {
	case m.closed:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(renderStatistics(m.stats)))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Latest Telemetry:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(renderTelemetry(m.telemetry)))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(renderLog(m.errorLog, m.width, m.height-24))
	return s.String()
}

func percentOf(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}
