package vision

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake answers every request with a fixed text or error.
type Fake struct {
	text  string
	err   error
	delay time.Duration

	mu        sync.Mutex
	questions []string
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

// WithDelay makes each Analyze call take d, or less if ctx ends first.
func (f *Fake) WithDelay(d time.Duration) *Fake {
	f.delay = d
	return f
}

func (f *Fake) Name() string  { return "fake" }
func (f *Fake) Model() string { return "fake-vision" }

func (f *Fake) Analyze(ctx context.Context, image []byte, question string) (*Result, error) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, fmt.Errorf("fake analyzer error: %w", f.err)
	}
	return &Result{
		Text:    f.text,
		Model:   f.Model(),
		Metrics: &NetworkMetrics{Total: f.delay},
	}, nil
}

// Questions returns every question received so far.
func (f *Fake) Questions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.questions...)
}
