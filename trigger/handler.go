// Package trigger runs the capture → analyze → display pipeline for one
// accepted hotkey activation.
package trigger

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

type CaptureFunc func(ctx context.Context) ([]byte, error)

// AnalyzeFunc sends image and prompt to a vision model. An empty prompt
// means the default question.
type AnalyzeFunc func(ctx context.Context, image []byte, prompt string) (string, error)

type Display interface {
	Status(msg string)
	Result(text string)
	Failure(err error)
}

type CaptureError struct{ Err error }

func (e *CaptureError) Error() string { return "screen capture failed: " + e.Err.Error() }
func (e *CaptureError) Unwrap() error { return e.Err }

type AnalysisError struct{ Err error }

func (e *AnalysisError) Error() string { return "analysis failed: " + e.Err.Error() }
func (e *AnalysisError) Unwrap() error { return e.Err }

type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Outcome describes one finished run, successful or not.
type Outcome struct {
	Started    time.Time
	ImageBytes int
	Capture    time.Duration
	Analyze    time.Duration
	Text       string
	Err        error
}

type Handler struct {
	Capture CaptureFunc
	Analyze AnalyzeFunc
	Display Display
	Prompt  string

	OnComplete func(Outcome)
	Logger     *zerolog.Logger
}

// Handle runs the pipeline once. Every failure, panics included, is
// reported to the display and returned; nothing escapes as a panic.
func (h *Handler) Handle(ctx context.Context) (err error) {
	out := Outcome{Started: time.Now()}
	lg := h.logger()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			lg.Error().Str("stack", string(err.(*PanicError).Stack)).Msg(err.Error())
			h.fail(err)
		}
		out.Err = err
		if h.OnComplete != nil {
			h.OnComplete(out)
		}
	}()

	h.status("Capturing screen...")
	t0 := time.Now()
	img, cerr := h.Capture(ctx)
	out.Capture = time.Since(t0)
	if cerr != nil {
		err = &CaptureError{Err: cerr}
		lg.Error().Err(cerr).Msg("capture failed")
		h.fail(err)
		return err
	}
	out.ImageBytes = len(img)
	lg.Debug().Int("bytes", len(img)).Dur("took", out.Capture).Msg("screen captured")

	h.status("Analyzing...")
	t1 := time.Now()
	text, aerr := h.Analyze(ctx, img, h.Prompt)
	out.Analyze = time.Since(t1)
	if aerr != nil {
		err = &AnalysisError{Err: aerr}
		lg.Error().Err(aerr).Dur("took", out.Analyze).Msg("analysis failed")
		h.fail(err)
		return err
	}
	out.Text = text
	lg.Info().Int("chars", len(text)).Dur("capture", out.Capture).Dur("analyze", out.Analyze).Msg("analysis done")

	if h.Display != nil {
		h.Display.Result(text)
	}
	return nil
}

func (h *Handler) status(msg string) {
	if h.Display != nil {
		h.Display.Status(msg)
	}
}

func (h *Handler) fail(err error) {
	if h.Display != nil {
		h.Display.Failure(err)
	}
}

func (h *Handler) logger() zerolog.Logger {
	if h.Logger == nil {
		return zerolog.Nop()
	}
	return h.Logger.With().Str("component", "trigger").Logger()
}
