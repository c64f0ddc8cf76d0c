package monitor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"snapsight/combo"
	"snapsight/keystate"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	runtime.Gosched()
}

type recorder struct {
	mu   sync.Mutex
	sigs []Signal
}

func (r *recorder) handle(_ context.Context, sig Signal) error {
	r.mu.Lock()
	r.sigs = append(r.sigs, sig)
	r.mu.Unlock()
	return nil
}

func (r *recorder) signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal(nil), r.sigs...)
}

func mustSpec(t *testing.T, text string) combo.Spec {
	t.Helper()
	spec, err := combo.ParseSpec(text, nil)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func virtualConfig(window time.Duration) Config {
	return Config{
		PollInterval: 50 * time.Millisecond,
		Debounce:     window,
		QueueSize:    MaxQueueSize,
		Clock:        newFakeClock(),
	}
}

func waitStopped(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("controller did not stop: %v", err)
	}
}

// runScript plays steps through a fresh controller and returns the
// signals its handler saw.
func runScript(t *testing.T, cfg Config, steps ...keystate.Step) ([]Signal, Stats) {
	t.Helper()
	src := keystate.NewScripted(steps...)
	c := New(src, mustSpec(t, "a+b"), cfg)
	rec := &recorder{}
	if err := c.Start(context.Background(), rec.handle); err != nil {
		t.Fatal(err)
	}
	select {
	case <-src.Exhausted():
	case <-time.After(5 * time.Second):
		t.Fatal("script never finished")
	}
	c.Stop()
	waitStopped(t, c)
	return rec.signals(), c.Stats()
}

func repeat(step keystate.Step, n int) []keystate.Step {
	out := make([]keystate.Step, n)
	for i := range out {
		out[i] = step
	}
	return out
}

func TestStopIsIdempotent(t *testing.T) {
	c := New(keystate.NewScripted(), mustSpec(t, "a+b"), virtualConfig(0))
	c.Stop()
	if c.IsMonitoring() {
		t.Fatal("Stop before Start should leave the monitor stopped")
	}
	if err := c.Start(context.Background(), (&recorder{}).handle); err != nil {
		t.Fatal(err)
	}
	c.Stop()
	c.Stop()
	c.Close()
	if c.IsMonitoring() {
		t.Error("IsMonitoring() = true after Stop")
	}
	waitStopped(t, c)
	if c.Phase() != Stopped {
		t.Errorf("Phase() = %v, want stopped", c.Phase())
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	poll := 10 * time.Millisecond
	c := New(keystate.NewScripted(), mustSpec(t, "a+b"), Config{PollInterval: poll})
	if err := c.Start(context.Background(), (&recorder{}).handle); err != nil {
		t.Fatal(err)
	}
	if !c.IsMonitoring() || c.Phase() != Running {
		t.Fatalf("after Start: monitoring=%v phase=%v", c.IsMonitoring(), c.Phase())
	}

	c.Stop()
	select {
	case <-c.Done():
	case <-time.After(50 * poll):
		t.Fatal("polling goroutine did not exit within 50 poll intervals")
	}
	if c.IsMonitoring() {
		t.Error("IsMonitoring() = true after Done")
	}
}

func TestStartTwice(t *testing.T) {
	c := New(keystate.NewScripted(), mustSpec(t, "a+b"), virtualConfig(0))
	rec := &recorder{}
	if err := c.Start(context.Background(), rec.handle); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	err := c.Start(context.Background(), rec.handle)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	var se *StateError
	if !errors.As(err, &se) || se.Phase != Running {
		t.Errorf("want *StateError in running phase, got %v", err)
	}

	c.Stop()
	waitStopped(t, c)
	if err := c.Start(context.Background(), rec.handle); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start after Stop = %v, want ErrAlreadyRunning", err)
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	rec := &recorder{}
	var ce *combo.ConfigError
	if err := New(keystate.NewScripted(), combo.Spec{}, Config{}).Start(context.Background(), rec.handle); !errors.As(err, &ce) {
		t.Errorf("zero spec: got %v, want *combo.ConfigError", err)
	}
	if err := New(keystate.NewScripted(), mustSpec(t, "a"), Config{}).Start(context.Background(), nil); err == nil {
		t.Error("nil handler: want error")
	}
	if err := New(nil, mustSpec(t, "a"), Config{}).Start(context.Background(), rec.handle); err == nil {
		t.Error("nil source: want error")
	}
}

func TestPressSequenceTriggersOnce(t *testing.T) {
	sigs, _ := runScript(t, virtualConfig(0),
		keystate.Keys(),
		keystate.Keys("a"),
		keystate.Keys("a", "b"),
		keystate.Keys("a", "b"),
		keystate.Keys("a"),
		keystate.Keys(),
	)
	if len(sigs) != 1 {
		t.Fatalf("got %d triggers, want 1", len(sigs))
	}
	if sigs[0].Poll != 3 {
		t.Errorf("trigger from sample %d, want 3", sigs[0].Poll)
	}
}

func TestLongHoldTriggersOnce(t *testing.T) {
	// 2s hold at 50ms polling
	steps := []keystate.Step{keystate.Keys()}
	steps = append(steps, repeat(keystate.Keys("a", "b"), 40)...)
	steps = append(steps, keystate.Keys())

	sigs, stats := runScript(t, virtualConfig(0), steps...)
	if len(sigs) != 1 {
		t.Fatalf("got %d triggers over a 2s hold, want 1", len(sigs))
	}
	if stats.Accepted != 1 || stats.Handled != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDebounceSuppressesQuickRepress(t *testing.T) {
	sigs, stats := runScript(t, virtualConfig(500*time.Millisecond),
		keystate.Keys("a", "b"),
		keystate.Keys(),
		keystate.Keys("a", "b"),
		keystate.Keys(),
	)
	if len(sigs) != 1 {
		t.Fatalf("got %d triggers, want 1", len(sigs))
	}
	if stats.Debounced != 1 {
		t.Errorf("Debounced = %d, want 1", stats.Debounced)
	}
}

func TestDebounceAcceptsAfterWindow(t *testing.T) {
	// second press 600ms after the first with a 500ms window
	steps := []keystate.Step{keystate.Keys("a", "b")}
	steps = append(steps, repeat(keystate.Keys(), 11)...)
	steps = append(steps, keystate.Keys("a", "b"), keystate.Keys())

	sigs, _ := runScript(t, virtualConfig(500*time.Millisecond), steps...)
	if len(sigs) != 2 {
		t.Fatalf("got %d triggers, want 2", len(sigs))
	}
	if gap := sigs[1].At.Sub(sigs[0].At); gap < 500*time.Millisecond {
		t.Errorf("triggers %v apart, want >= 500ms", gap)
	}
	if sigs[0].Seq != 1 || sigs[1].Seq != 2 {
		t.Errorf("seqs = %d, %d", sigs[0].Seq, sigs[1].Seq)
	}
}

func TestMinHold(t *testing.T) {
	for _, tt := range []struct {
		name string
		held int
		want int
	}{
		{"tap", 2, 0},
		{"hold", 8, 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := virtualConfig(0)
			cfg.MinHold = 200 * time.Millisecond

			steps := []keystate.Step{keystate.Keys()}
			steps = append(steps, repeat(keystate.Keys("a", "b"), tt.held)...)
			steps = append(steps, keystate.Keys())

			sigs, _ := runScript(t, cfg, steps...)
			if len(sigs) != tt.want {
				t.Fatalf("got %d triggers, want %d", len(sigs), tt.want)
			}
			if tt.want == 1 && sigs[0].HeldFor < cfg.MinHold {
				t.Errorf("HeldFor = %v, want >= %v", sigs[0].HeldFor, cfg.MinHold)
			}
		})
	}
}

func TestSampleErrorCountsAsNoKeys(t *testing.T) {
	sigs, stats := runScript(t, virtualConfig(0),
		keystate.Keys("a", "b"),
		keystate.Failure(errors.New("device gone")),
		keystate.Keys("a", "b"),
	)
	if stats.SampleErrors != 1 {
		t.Errorf("SampleErrors = %d, want 1", stats.SampleErrors)
	}
	if len(sigs) != 2 {
		t.Errorf("got %d triggers, want 2 (failed sample reads as a release)", len(sigs))
	}
}

func TestHandlerFailuresDoNotStopConsumer(t *testing.T) {
	src := keystate.NewScripted(
		keystate.Keys("a", "b"), keystate.Keys(),
		keystate.Keys("a", "b"), keystate.Keys(),
		keystate.Keys("a", "b"), keystate.Keys(),
	)
	c := New(src, mustSpec(t, "a+b"), virtualConfig(0))

	var mu sync.Mutex
	var calls int
	handle := func(_ context.Context, sig Signal) error {
		mu.Lock()
		calls++
		mu.Unlock()
		switch sig.Seq {
		case 1:
			panic("capture exploded")
		case 2:
			return errors.New("analysis failed")
		}
		return nil
	}
	if err := c.Start(context.Background(), handle); err != nil {
		t.Fatal(err)
	}
	<-src.Exhausted()
	c.Stop()
	waitStopped(t, c)

	if calls != 3 {
		t.Fatalf("handler called %d times, want 3", calls)
	}
	st := c.Stats()
	if st.Failed != 2 || st.Handled != 1 {
		t.Errorf("stats = %+v, want 2 failed and 1 handled", st)
	}
}

func TestFullQueueDrops(t *testing.T) {
	var steps []keystate.Step
	for i := 0; i < 4; i++ {
		steps = append(steps, keystate.Keys("a", "b"), keystate.Keys())
	}
	src := keystate.NewScripted(steps...)
	cfg := virtualConfig(0)
	cfg.QueueSize = 1
	c := New(src, mustSpec(t, "a+b"), cfg)

	release := make(chan struct{})
	handle := func(context.Context, Signal) error {
		<-release
		return nil
	}
	if err := c.Start(context.Background(), handle); err != nil {
		t.Fatal(err)
	}
	<-src.Exhausted()
	c.Stop()
	<-c.Done()

	st := c.Stats()
	if st.Accepted+st.Dropped != 4 {
		t.Errorf("accepted %d + dropped %d, want 4 activations", st.Accepted, st.Dropped)
	}
	if st.Accepted > 2 {
		t.Errorf("accepted %d with one in flight and queue of 1", st.Accepted)
	}
	close(release)
	waitStopped(t, c)
}

func TestConsumerGoneStopsLoop(t *testing.T) {
	src := keystate.NewScripted()
	c := New(src, mustSpec(t, "a+b"), virtualConfig(0))
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx, (&recorder{}).handle); err != nil {
		t.Fatal(err)
	}
	cancel()
	<-c.consumerDone

	src.Set(combo.SnapshotOf("a", "b"))
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop kept running after the consumer exited")
	}
	if c.IsMonitoring() {
		t.Error("IsMonitoring() = true after loop exit")
	}
	if src.Closed() {
		t.Error("controller closed a source it does not own")
	}
}

func TestQueueSizeClamped(t *testing.T) {
	for _, tt := range []struct{ in, want int }{{0, DefaultQueueSize}, {-3, DefaultQueueSize}, {1, 1}, {9, MaxQueueSize}} {
		if got := (Config{QueueSize: tt.in}).withDefaults().QueueSize; got != tt.want {
			t.Errorf("QueueSize %d -> %d, want %d", tt.in, got, tt.want)
		}
	}
}
