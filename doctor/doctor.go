// Package doctor runs interactive checks of every stage of the pipeline.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"snapsight/clipboard"
	"snapsight/combo"
	"snapsight/keystate"
	"snapsight/screen"
	"snapsight/shutdown"
	"snapsight/synth"
	"snapsight/vision"
)

type Options struct {
	Spec       combo.Spec
	OpenSource func(combo.Spec) (keystate.Source, error)
	Capture    func(ctx context.Context) ([]byte, error)
	Analyzer   vision.Analyzer // nil skips the API check
	// SelfTest presses the combo through a virtual keyboard instead of
	// waiting for the user.
	SelfTest bool
	Timeout  time.Duration
	Poll     time.Duration
	Out      io.Writer

	probeDevices bool
}

type check struct {
	name string
	run  func(o *Options) error
}

var errSkipped = errors.New("skipped")

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run(o Options) int {
	if o.Out == nil {
		o.Out = os.Stdout
		resetTerminal()
		setupInterruptHandler()
	}
	if o.OpenSource == nil {
		o.OpenSource = keystate.New
		o.probeDevices = true
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 50 * time.Millisecond
	}

	fmt.Fprintln(o.Out, "snapsight doctor - interactive system diagnostics")
	fmt.Fprintln(o.Out, "=================================================")

	checks := []check{
		{"Key state access", checkKeyAccess},
		{"Hotkey detection", checkDetection},
		{"Screen capture", checkCapture},
		{"Vision API", checkVision},
		{"Clipboard", checkClipboard},
	}

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(o.Out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		err := c.run(&o)
		switch {
		case err == nil:
			fmt.Fprintln(o.Out, "  PASS")
		case errors.Is(err, errSkipped):
			fmt.Fprintf(o.Out, "  SKIP: %v\n", err)
		default:
			fmt.Fprintf(o.Out, "  FAIL: %v\n", err)
			failed++
		}
	}

	fmt.Fprintln(o.Out)
	if failed == 0 {
		fmt.Fprintln(o.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintf(o.Out, "%d check(s) failed. See details above.\n", failed)
	return 1
}

func checkKeyAccess(o *Options) error {
	if !o.probeDevices {
		return fmt.Errorf("%w: custom key source", errSkipped)
	}
	msg, err := keystate.Diagnose()
	if err != nil {
		if hint := keystate.PermissionHint(); hint != "" {
			fmt.Fprintf(o.Out, "  %s\n", hint)
		}
		return err
	}
	fmt.Fprintf(o.Out, "  %s\n", msg)
	return nil
}

// checkDetection samples the source through the same tracker the monitor
// uses and waits for one activation.
func checkDetection(o *Options) error {
	src, err := o.OpenSource(o.Spec)
	if err != nil {
		return err
	}
	defer src.Close()

	if o.SelfTest {
		kb, err := synth.New()
		if err != nil {
			return fmt.Errorf("self-test: %w", err)
		}
		fmt.Fprintf(o.Out, "  Pressing %s via virtual keyboard...\n", o.Spec)
		go func() {
			time.Sleep(300 * time.Millisecond)
			kb.Press(o.Spec)
		}()
	} else {
		fmt.Fprintf(o.Out, "  Press %s...\n", o.Spec)
	}

	tr := combo.NewTracker(o.Spec)
	deadline := time.Now().Add(o.Timeout)
	var last string
	for time.Now().Before(deadline) {
		snap, err := src.Sample()
		if err != nil {
			fmt.Fprintf(o.Out, "  warning: %v\n", err)
		}
		if s := snap.String(); s != last && s != "" {
			fmt.Fprintf(o.Out, "  keys: %s\n", s)
			last = s
		}
		if ev := tr.Observe(snap, time.Now()); ev.State == combo.JustActivated {
			fmt.Fprintln(o.Out, "  combo detected")
			resetTerminal()
			return nil
		}
		time.Sleep(o.Poll)
	}
	return fmt.Errorf("timeout after %s waiting for %s", o.Timeout, o.Spec)
}

func checkCapture(o *Options) error {
	if o.Capture == nil {
		return fmt.Errorf("%w: no capturer", errSkipped)
	}
	t0 := time.Now()
	data, err := o.Capture(context.Background())
	if err != nil {
		if keystate.PermissionHint() != "" {
			fmt.Fprintf(o.Out, "  %s\n", keystate.PermissionHint())
		}
		return err
	}
	fmt.Fprintf(o.Out, "  %s, %.1f KB in %s\n", screen.MIMEType(data), float64(len(data))/1024, time.Since(t0).Round(time.Millisecond))
	return nil
}

func checkVision(o *Options) error {
	if o.Analyzer == nil {
		return fmt.Errorf("%w: no API key configured", errSkipped)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := o.Analyzer.Analyze(ctx, screen.TinyPNG, "Reply with the single word OK.")
	if err != nil {
		return err
	}
	fmt.Fprintf(o.Out, "  %s/%s answered %q", o.Analyzer.Name(), o.Analyzer.Model(), res.Text)
	if res.Metrics != nil {
		fmt.Fprintf(o.Out, " in %s", res.Metrics.Total.Round(time.Millisecond))
	}
	fmt.Fprintln(o.Out)
	return nil
}

func checkClipboard(o *Options) error {
	if !clipboard.Available() {
		return fmt.Errorf("%w: no clipboard tool found (install xclip, xsel or wl-clipboard)", errSkipped)
	}
	return nil
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		println("\nInterrupted")
		os.Exit(1)
	}()
}
