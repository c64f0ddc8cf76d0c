package trigger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordingDisplay struct {
	mu       sync.Mutex
	statuses []string
	results  []string
	failures []error
}

func (d *recordingDisplay) Status(msg string) {
	d.mu.Lock()
	d.statuses = append(d.statuses, msg)
	d.mu.Unlock()
}

func (d *recordingDisplay) Result(text string) {
	d.mu.Lock()
	d.results = append(d.results, text)
	d.mu.Unlock()
}

func (d *recordingDisplay) Failure(err error) {
	d.mu.Lock()
	d.failures = append(d.failures, err)
	d.mu.Unlock()
}

func okCapture(context.Context) ([]byte, error) { return []byte("png"), nil }

func TestHandleSuccess(t *testing.T) {
	disp := &recordingDisplay{}
	var gotPrompt string
	var outcome Outcome
	h := &Handler{
		Capture: okCapture,
		Analyze: func(_ context.Context, img []byte, prompt string) (string, error) {
			gotPrompt = prompt
			return "a code editor", nil
		},
		Display:    disp,
		Prompt:     "what is this?",
		OnComplete: func(o Outcome) { outcome = o },
	}

	if err := h.Handle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotPrompt != "what is this?" {
		t.Errorf("prompt = %q", gotPrompt)
	}
	if len(disp.results) != 1 || disp.results[0] != "a code editor" {
		t.Errorf("results = %v", disp.results)
	}
	if len(disp.statuses) != 2 {
		t.Errorf("statuses = %v, want capture and analyze", disp.statuses)
	}
	if outcome.Text != "a code editor" || outcome.ImageBytes != 3 || outcome.Err != nil {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestHandleFailures(t *testing.T) {
	boom := errors.New("boom")
	for _, tt := range []struct {
		name    string
		capture CaptureFunc
		analyze AnalyzeFunc
		check   func(error) bool
	}{
		{
			name:    "capture error",
			capture: func(context.Context) ([]byte, error) { return nil, boom },
			analyze: func(context.Context, []byte, string) (string, error) { return "", nil },
			check:   func(err error) bool { var ce *CaptureError; return errors.As(err, &ce) && errors.Is(err, boom) },
		},
		{
			name:    "analysis error",
			capture: okCapture,
			analyze: func(context.Context, []byte, string) (string, error) { return "", boom },
			check:   func(err error) bool { var ae *AnalysisError; return errors.As(err, &ae) && errors.Is(err, boom) },
		},
		{
			name:    "capture panic",
			capture: func(context.Context) ([]byte, error) { panic("nil display") },
			analyze: func(context.Context, []byte, string) (string, error) { return "", nil },
			check:   func(err error) bool { var pe *PanicError; return errors.As(err, &pe) && pe.Value == "nil display" },
		},
		{
			name:    "analyze panic",
			capture: okCapture,
			analyze: func(context.Context, []byte, string) (string, error) { panic(boom) },
			check:   func(err error) bool { var pe *PanicError; return errors.As(err, &pe) },
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			disp := &recordingDisplay{}
			var buf bytes.Buffer
			lg := zerolog.New(&buf)
			var outcome Outcome
			h := &Handler{
				Capture:    tt.capture,
				Analyze:    tt.analyze,
				Display:    disp,
				Logger:     &lg,
				OnComplete: func(o Outcome) { outcome = o },
			}

			err := h.Handle(context.Background())
			if !tt.check(err) {
				t.Fatalf("unexpected error %v (%T)", err, err)
			}
			if len(disp.failures) != 1 {
				t.Errorf("display saw %d failures, want 1", len(disp.failures))
			}
			if len(disp.results) != 0 {
				t.Errorf("display got a result on failure: %v", disp.results)
			}
			if outcome.Err != err {
				t.Errorf("outcome.Err = %v, want %v", outcome.Err, err)
			}
			if !strings.Contains(buf.String(), `"level":"error"`) {
				t.Errorf("failure not logged: %s", buf.String())
			}
		})
	}
}

// A failing run must leave the handler usable for the next activation.
func TestHandleRecoversForNextRun(t *testing.T) {
	calls := 0
	disp := &recordingDisplay{}
	h := &Handler{
		Capture: func(context.Context) ([]byte, error) {
			calls++
			if calls == 1 {
				panic("first run")
			}
			return []byte{1}, nil
		},
		Analyze: func(context.Context, []byte, string) (string, error) { return "ok", nil },
		Display: disp,
	}

	if err := h.Handle(context.Background()); err == nil {
		t.Fatal("first run should fail")
	}
	if err := h.Handle(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(disp.results) != 1 || disp.results[0] != "ok" {
		t.Errorf("results = %v", disp.results)
	}
}

func TestHandleNilDisplay(t *testing.T) {
	h := &Handler{
		Capture: okCapture,
		Analyze: func(context.Context, []byte, string) (string, error) { return "x", nil },
	}
	if err := h.Handle(context.Background()); err != nil {
		t.Fatal(err)
	}
}
