// Package monitor runs the hotkey polling loop and hands each accepted
// activation to a single consumer goroutine.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"snapsight/combo"
	"snapsight/debounce"
	"snapsight/keystate"
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrChannelClosed  = errors.New("trigger channel closed")
)

// StateError reports a Start call the controller's phase does not allow.
type StateError struct {
	Phase Phase
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("monitor %s: %v", e.Phase, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

type Phase int32

const (
	Stopped Phase = iota
	Starting
	Running
	Stopping
)

func (p Phase) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Signal announces one accepted activation. It carries no work.
type Signal struct {
	Seq     uint64
	Poll    uint64 // 1-based sample number that produced it
	At      time.Time
	HeldFor time.Duration
}

// HandleFunc runs the work for one signal on the consumer goroutine.
type HandleFunc func(ctx context.Context, sig Signal) error

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultDebounce     = 500 * time.Millisecond
	DefaultQueueSize    = 2
	MaxQueueSize        = 4
)

// Clock is the loop's time source. Tests substitute a virtual clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time         { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type Config struct {
	PollInterval time.Duration
	Debounce     time.Duration
	// MinHold > 0 fires on the first sample the combo has been held at
	// least this long, instead of on the press edge.
	MinHold time.Duration
	// QueueSize is clamped to 1..MaxQueueSize.
	QueueSize int
	// StatusEvery is the interval of the "still polling" debug line.
	StatusEvery time.Duration
	Logger      *zerolog.Logger
	Clock       Clock
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.MinHold < 0 {
		c.MinHold = 0
	}
	switch {
	case c.QueueSize <= 0:
		c.QueueSize = DefaultQueueSize
	case c.QueueSize > MaxQueueSize:
		c.QueueSize = MaxQueueSize
	}
	if c.StatusEvery <= 0 {
		c.StatusEvery = 30 * time.Second
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// Stats is a point-in-time copy of the controller counters.
type Stats struct {
	Samples      uint64
	SampleErrors uint64
	Accepted     uint64
	Debounced    uint64
	Dropped      uint64
	Handled      uint64
	Failed       uint64
}

type counters struct {
	samples, sampleErrors, accepted, debounced, dropped, handled, failed atomic.Uint64
}

// Controller owns the running flag and both ends of the trigger channel.
// It runs at most once; create a new one to monitor again.
type Controller struct {
	src  keystate.Source
	spec combo.Spec
	cfg  Config
	gate *debounce.Gate
	log  zerolog.Logger

	phase   atomic.Int32
	running atomic.Bool
	used    atomic.Bool
	stats   counters

	pollDone     chan struct{}
	consumerDone chan struct{}
}

func New(src keystate.Source, spec combo.Spec, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		src:          src,
		spec:         spec,
		cfg:          cfg,
		gate:         debounce.New(cfg.Debounce),
		log:          cfg.Logger.With().Str("component", "monitor").Logger(),
		pollDone:     make(chan struct{}),
		consumerDone: make(chan struct{}),
	}
}

// Start launches the consumer and the polling goroutine. handle runs
// with ctx; Stop does not cancel it, cancelling ctx does.
func (c *Controller) Start(ctx context.Context, handle HandleFunc) error {
	if c.src == nil {
		return errors.New("monitor: nil key source")
	}
	if handle == nil {
		return errors.New("monitor: nil handler")
	}
	if len(c.spec.Groups()) == 0 {
		return &combo.ConfigError{Reason: "no keys"}
	}
	if !c.used.CompareAndSwap(false, true) {
		return &StateError{Phase: c.Phase(), Err: ErrAlreadyRunning}
	}
	c.phase.Store(int32(Starting))

	ch := make(chan Signal, c.cfg.QueueSize)
	go c.consume(ctx, ch, handle)

	c.running.Store(true)
	c.phase.Store(int32(Running))
	go c.poll(ch)

	c.log.Info().
		Str("combo", c.spec.String()).
		Dur("poll", c.cfg.PollInterval).
		Dur("debounce", c.cfg.Debounce).
		Dur("min_hold", c.cfg.MinHold).
		Int("queue", c.cfg.QueueSize).
		Msg("monitor started")
	return nil
}

// Stop asks the polling loop to exit at its next check. It returns
// immediately and is safe to call any number of times.
func (c *Controller) Stop() {
	if c.running.CompareAndSwap(true, false) {
		c.phase.CompareAndSwap(int32(Running), int32(Stopping))
	}
}

func (c *Controller) IsMonitoring() bool { return c.running.Load() }

func (c *Controller) Phase() Phase { return Phase(c.phase.Load()) }

// Close stops the loop. It does not wait for in-flight work.
func (c *Controller) Close() error {
	c.Stop()
	return nil
}

// Done is closed once the polling goroutine has exited.
func (c *Controller) Done() <-chan struct{} { return c.pollDone }

// Wait blocks until both the polling goroutine and the consumer have
// exited, or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	if !c.used.Load() {
		return nil
	}
	for _, done := range []<-chan struct{}{c.pollDone, c.consumerDone} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Controller) Stats() Stats {
	return Stats{
		Samples:      c.stats.samples.Load(),
		SampleErrors: c.stats.sampleErrors.Load(),
		Accepted:     c.stats.accepted.Load(),
		Debounced:    c.stats.debounced.Load(),
		Dropped:      c.stats.dropped.Load(),
		Handled:      c.stats.handled.Load(),
		Failed:       c.stats.failed.Load(),
	}
}

func (c *Controller) consume(ctx context.Context, ch <-chan Signal, handle HandleFunc) {
	defer close(c.consumerDone)
	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("consumer stopping: context done")
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			c.dispatch(ctx, sig, handle)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, sig Signal, handle HandleFunc) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.failed.Add(1)
			c.log.Error().Uint64("seq", sig.Seq).Msg(fmt.Sprintf("handler panic: %v", r))
		}
	}()

	if err := handle(ctx, sig); err != nil {
		c.stats.failed.Add(1)
		c.log.Warn().Err(err).Uint64("seq", sig.Seq).Msg("handler failed")
		return
	}
	c.stats.handled.Add(1)
}
