package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"snapsight/clipboard"
	"snapsight/monitor"
)

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateBusy
)

type tuiModel struct {
	state         tuiState
	frame         int
	width, height int
	combo         string
	modeLine      string
	status        string
	statusAt      time.Time
	lastText      string
	lastErr       string
	results       int
	copied        string
	stats         func() monitor.Stats
	snapshot      monitor.Stats
}

var (
	lensColorsIdle = []string{"", "24", "31", "38", "45", "236", "236", "255"}
	lensColorsBusy = []string{"", "130", "166", "202", "208", "236", "236", "255"}
	lensStylesIdle [8]lipgloss.Style
	lensStylesBusy [8]lipgloss.Style
)

func init() {
	for i := range lensColorsIdle {
		if lensColorsIdle[i] != "" {
			lensStylesIdle[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(lensColorsIdle[i]))
			lensStylesBusy[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(lensColorsBusy[i]))
		}
	}
}

func newTUIModel(combo, mode string, stats func() monitor.Stats) tuiModel {
	return tuiModel{combo: combo, modeLine: mode, stats: stats}
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return CopiedMsg{Err: clipboard.CopyCode(text)}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if m.lastText != "" {
				return m, copyCmd(m.lastText)
			}
		}

	case tickMsg:
		m.frame++
		if m.stats != nil {
			m.snapshot = m.stats()
		}
		return m, tuiTick()

	case StatusMsg:
		m.state = tuiStateBusy
		m.status = msg.Text
		m.statusAt = time.Now()
		m.copied = ""

	case ResultMsg:
		m.state = tuiStateIdle
		m.status = ""
		m.results++
		m.lastText = msg.Text
		m.lastErr = ""

	case FailureMsg:
		m.state = tuiStateIdle
		m.status = ""
		m.lastErr = msg.Text

	case CopiedMsg:
		if msg.Err != nil {
			m.copied = "copy failed: " + msg.Err.Error()
		} else {
			m.copied = "✓ copied"
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const leftWidth = 34
	busy := m.state == tuiStateBusy

	var left strings.Builder
	left.WriteString(renderLens(m.frame, busy))
	left.WriteString("\n")

	if busy {
		left.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true).
			Render(fmt.Sprintf("● %s %.1fs", m.status, time.Since(m.statusAt).Seconds())))
	} else {
		left.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("○ READY"))
	}
	left.WriteString("\n")
	left.WriteString(dimStyle.Render(m.modeLine) + "\n")

	st := m.snapshot
	left.WriteString(dimStyle.Render(fmt.Sprintf("triggers %d  debounced %d  dropped %d", st.Accepted, st.Debounced, st.Dropped)) + "\n")
	if st.SampleErrors > 0 {
		left.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).
			Render(fmt.Sprintf("key read errors: %d", st.SampleErrors)) + "\n")
	}
	left.WriteString("\n")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := helpStyle.Bold(true)
	left.WriteString(boldStyle.Render(m.combo) + helpStyle.Render(" to analyze") + "\n")
	left.WriteString(boldStyle.Render("c") + helpStyle.Render(" copy  ") + boldStyle.Render("q") + helpStyle.Render(" quit") + "\n")
	left.WriteString(helpStyle.Render("snapsight " + version))

	rightWidth := m.width - leftWidth - 1
	if rightWidth < 20 {
		rightWidth = 20
	}

	var right strings.Builder
	switch {
	case m.lastErr != "":
		right.WriteString(errorStyle.Render("Error") + "\n\n")
		for _, line := range wrapText(m.lastErr, rightWidth-2) {
			right.WriteString(line + "\n")
		}
	case m.lastText != "":
		title := fmt.Sprintf("Last analysis (#%d)", m.results)
		if m.copied != "" {
			title += "  " + codeStyle.Render(m.copied)
		}
		right.WriteString(dimStyle.Render(title) + "\n\n")
		for _, l := range formatResult(m.lastText, rightWidth-2) {
			right.WriteString(tuiStyleLine(l) + "\n")
		}
	default:
		right.WriteString(dimStyle.Render("No analyses yet"))
	}

	leftPanel := lipgloss.NewStyle().Width(leftWidth).Height(m.height).Render(left.String())
	rightPanel := lipgloss.NewStyle().
		Width(rightWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(right.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func tuiStyleLine(l resultLine) string {
	switch l.kind {
	case lineFence:
		return fenceStyle.Render(l.text)
	case lineCode:
		return codeStyle.Render(l.text)
	case lineHeading:
		return headingStyle.Render(l.text)
	}
	return l.text
}

// renderLens draws a camera lens in half-block pixels. The aperture
// narrows and a highlight sweeps the rim while a capture is in flight.
func renderLens(frame int, busy bool) string {
	const charsW = 32
	const charsH = 8
	const pixH = charsH * 2

	cx := float64(charsW) / 2
	cy := float64(pixH) / 2

	aperture := 2.5 + math.Sin(float64(frame)*0.06)*0.3
	if busy {
		aperture = 1.5 + math.Sin(float64(frame)*0.3)*0.5
	}
	sweep := float64(frame) * 0.25

	pixel := func(x, y int) int {
		dx := (float64(x) - cx) / 2
		dy := float64(y) - cy
		d := math.Hypot(dx, dy)
		switch {
		case d < aperture:
			return 4
		case d < aperture+1.5:
			return 3
		case d < 5.0:
			return 2
		case d < 6.5:
			if busy && math.Abs(math.Remainder(math.Atan2(dy, dx)-sweep, 2*math.Pi)) < 0.4 {
				return 7
			}
			return 1
		case d < 7.5:
			return 5
		}
		return 0
	}

	styles := &lensStylesIdle
	if busy {
		styles = &lensStylesBusy
	}

	var b strings.Builder
	for row := 0; row < charsH; row++ {
		for col := 0; col < charsW; col++ {
			top, bot := pixel(col, row*2), pixel(col, row*2+1)
			switch {
			case top == 0 && bot == 0:
				b.WriteString(" ")
			case top == bot:
				b.WriteString(styles[top].Render("█"))
			case bot == 0:
				b.WriteString(styles[top].Render("▀"))
			default:
				b.WriteString(styles[bot].Render("▄"))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
