package sim

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"astraguard-sim/internal/metrics"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// snapshotMsg carries a committed snapshot to the panel.
type snapshotMsg struct{ metrics.SnapshotRow }

// controlsMsg hands the panel its drift controls.
type controlsMsg struct {
	tick   func()
	pause  func(bool)
	paused bool
}

// adminMsg reports where the admin panel listens.
type adminMsg struct {
	addr      string
	listening bool
}

const (
	cardWidth      = 26
	reasonWidth    = 40
	minPanelWidth  = cardWidth + 2
	progressGlyphs = cardWidth - 4
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	valueStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	upStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	flatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// TUIWriter renders snapshots as a bubbletea panel of KPI cards and a
// breaker matrix.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the panel interrupts the process.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements SnapshotWriter.
func (w *TUIWriter) Write(row metrics.SnapshotRow) error {
	w.program.Send(snapshotMsg{row})
	return nil
}

// SetControls wires the panel's r (tick) and p (pause) keys.
func (w *TUIWriter) SetControls(tick func(), pause func(bool), paused bool) {
	w.program.Send(controlsMsg{tick: tick, pause: pause, paused: paused})
}

// SetAdminStatus implements AdminStatusWriter.
func (w *TUIWriter) SetAdminStatus(addr string, listening bool) {
	w.program.Send(adminMsg{addr: addr, listening: listening})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	title    string
	row      metrics.SnapshotRow
	haveRow  bool
	breakers table.Model
	width    int
	height   int
	paused   bool
	admin    adminMsg
	help     bool
	tick     func()
	pause    func(bool)
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "From", Width: 14},
		{Title: "To", Width: 14},
		{Title: "State", Width: 8},
		{Title: "For", Width: 8},
		{Title: "Reason", Width: reasonWidth},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(1))
	return tuiModel{title: title, breakers: t}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.breakers.SetWidth(msg.Width)
	case snapshotMsg:
		m.row = msg.SnapshotRow
		m.haveRow = true
		m.breakers.SetRows(breakerRows(msg.Breakers))
		m.breakers.SetHeight(len(msg.Breakers) + 1)
	case adminMsg:
		m.admin = msg
	case controlsMsg:
		m.tick = msg.tick
		m.pause = msg.pause
		m.paused = msg.paused
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.tick != nil {
				go m.tick()
			}
		case "p":
			if m.pause != nil {
				m.paused = !m.paused
				go m.pause(m.paused)
			}
		case "h", "?":
			m.help = !m.help
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	if !m.haveRow {
		b.WriteString(footerStyle.Render("waiting for first snapshot…"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(m.renderCards())
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Circuit Breakers"))
	b.WriteString("\n")
	b.WriteString(m.breakers.View())
	b.WriteString("\n\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m tuiModel) renderHeader() string {
	state := runningStyle.Render("● live")
	if m.paused {
		state = pausedStyle.Render("● paused")
	}
	parts := []string{titleStyle.Render(m.title), state}
	switch {
	case m.admin.listening:
		parts = append(parts, footerStyle.Render("admin "+m.admin.addr))
	case m.admin.addr != "":
		parts = append(parts, downStyle.Render("admin down"))
	}
	if m.haveRow {
		parts = append(parts, footerStyle.Render(fmt.Sprintf("rev %d · %s", m.row.Revision, m.row.Timestamp.Format(time.TimeOnly))))
	}
	return strings.Join(parts, "  ")
}

func (m tuiModel) renderCards() string {
	perRow := 1
	if m.width > minPanelWidth {
		perRow = m.width / minPanelWidth
	}
	var rows []string
	var line []string
	for _, k := range m.row.KPIs {
		line = append(line, renderCard(k))
		if len(line) == perRow {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, line...))
			line = nil
		}
	}
	if len(line) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, line...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m tuiModel) renderFooter() string {
	if m.help {
		return footerStyle.Render("r: drift now  p: pause/resume  h: hide help  q: quit")
	}
	return footerStyle.Render("h: help  q: quit")
}

func renderCard(k metrics.KPI) string {
	label := labelStyle.Render(truncate.StringWithTail(k.Label, progressGlyphs, "…"))
	value := valueStyle.Render(k.Value) + " " + renderTrend(k.Trend)
	body := lipgloss.JoinVertical(lipgloss.Left, label, value, progressBar(k.Progress, progressGlyphs))
	return cardStyle.Width(cardWidth).Render(body)
}

func renderTrend(trend float64) string {
	switch {
	case trend > 0:
		return upStyle.Render(fmt.Sprintf("▲ %.2f", trend))
	case trend < 0:
		return downStyle.Render(fmt.Sprintf("▼ %.2f", -trend))
	default:
		return flatStyle.Render("■ 0.00")
	}
}

// progressBar draws p (nominally 0-100) across width cells; out-of-range
// values are clamped for drawing only.
func progressBar(p float64, width int) string {
	if math.IsNaN(p) {
		p = 0
	}
	filled := int(math.Round(clamp(p, 0, 100) / 100 * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func breakerRows(breakers []metrics.Breaker) []table.Row {
	rows := make([]table.Row, 0, len(breakers))
	for _, b := range breakers {
		state := string(b.State)
		if !b.State.Known() {
			state = "?" + state
		}
		rows = append(rows, table.Row{
			b.Source,
			b.Destination,
			state,
			b.Duration,
			truncate.StringWithTail(b.Reason, reasonWidth-1, "…"),
		})
	}
	return rows
}
