package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	codeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	fenceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// printer is the plain terminal display: status lines, a framed result
// and failures, one after the other.
type printer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	plain bool
}

func newPrinter(f *os.File) *printer {
	p := &printer{out: f, width: 80}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		p.plain = true
		return p
	}
	if w, _, err := term.GetSize(fd); err == nil && w > 20 {
		p.width = w
	}
	return p
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *printer) Banner(combo, provider, model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.render(bannerStyle, "snapsight "+version))
	fmt.Fprintln(p.out, p.render(dimStyle, fmt.Sprintf("[%s | %s]", provider, model)))
	fmt.Fprintf(p.out, "Press %s to capture and analyze the screen. Ctrl+C to quit.\n", p.render(headingStyle, combo))
}

func (p *printer) Status(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s\n", p.render(dimStyle, time.Now().Format("15:04:05")), p.render(statusStyle, msg))
}

func (p *printer) Result(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rule := strings.Repeat("─", min(p.width, 60))
	fmt.Fprintln(p.out, p.render(fenceStyle, rule))
	for _, line := range formatResult(text, p.width) {
		fmt.Fprintln(p.out, p.styleLine(line))
	}
	fmt.Fprintln(p.out, p.render(fenceStyle, rule))
}

func (p *printer) Failure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.render(errorStyle, "Error: "+err.Error()))
}

func (p *printer) styleLine(l resultLine) string {
	switch l.kind {
	case lineFence:
		return p.render(fenceStyle, l.text)
	case lineCode:
		return p.render(codeStyle, l.text)
	case lineHeading:
		return p.render(headingStyle, l.text)
	}
	return l.text
}

type lineKind int

const (
	lineText lineKind = iota
	lineHeading
	lineFence
	lineCode
)

type resultLine struct {
	kind lineKind
	text string
}

// formatResult splits an answer into styled lines. Code stays as is;
// prose is wrapped at width.
func formatResult(text string, width int) []resultLine {
	var out []resultLine
	inCode := false
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "```"):
			inCode = !inCode
			out = append(out, resultLine{lineFence, line})
		case inCode:
			out = append(out, resultLine{lineCode, line})
		case strings.HasPrefix(line, "#"):
			out = append(out, resultLine{lineHeading, strings.TrimSpace(strings.TrimLeft(line, "#"))})
		default:
			for _, w := range wrapText(line, width) {
				out = append(out, resultLine{lineText, w})
			}
		}
	}
	return out
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
