package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"snapsight/log"
	"snapsight/monitor"
)

// TUI message types
type StatusMsg struct{ Text string }
type ResultMsg struct{ Text string }
type FailureMsg struct{ Text string }
type CopiedMsg struct{ Err error }
type tickMsg struct{}

// tuiDisplay feeds trigger events into the bubbletea program.
type tuiDisplay struct {
	p    *tea.Program
	done chan struct{}
}

// startTUI runs the program on its own goroutine. onQuit runs when the
// user leaves the UI.
func startTUI(combo, mode string, stats func() monitor.Stats, onQuit func()) *tuiDisplay {
	t := &tuiDisplay{
		p:    tea.NewProgram(newTUIModel(combo, mode, stats), tea.WithAltScreen()),
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		if _, err := t.p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
		onQuit()
	}()
	return t
}

func (t *tuiDisplay) Status(msg string)  { t.p.Send(StatusMsg{Text: msg}) }
func (t *tuiDisplay) Result(text string) { t.p.Send(ResultMsg{Text: text}) }
func (t *tuiDisplay) Failure(err error)  { t.p.Send(FailureMsg{Text: err.Error()}) }

// Close quits the program and waits for the terminal to be restored.
func (t *tuiDisplay) Close() {
	t.p.Quit()
	<-t.done
}
