package monitor

import (
	"errors"
	"runtime"
	"time"

	"snapsight/combo"
	"snapsight/keystate"
)

const sampleErrEvery = 5 * time.Second

// poller is the loop-local state. Only the polling goroutine touches it.
type poller struct {
	c       *Controller
	ch      chan<- Signal
	tracker *combo.Tracker
	armed   bool
	polls   uint64
	seq     uint64

	lastStatus  time.Time
	lastErrLog  time.Time
	errsSkipped int
}

func (c *Controller) poll(ch chan<- Signal) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p := &poller{
		c:          c,
		ch:         ch,
		tracker:    combo.NewTracker(c.spec),
		armed:      true,
		lastStatus: c.cfg.Clock.Now(),
	}

	defer func() {
		c.running.Store(false)
		close(ch)
		c.phase.Store(int32(Stopped))
		close(c.pollDone)
		c.log.Info().Uint64("samples", p.polls).Uint64("triggers", p.seq).Msg("monitor stopped")
	}()

	for c.running.Load() {
		if err := p.step(); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				c.log.Warn().Msg("consumer gone, stopping monitor")
			} else {
				c.log.Error().Err(err).Msg("polling loop failed")
			}
			return
		}
		c.cfg.Clock.Sleep(c.cfg.PollInterval)
	}
}

func (p *poller) step() error {
	c := p.c
	now := c.cfg.Clock.Now()
	p.polls++
	c.stats.samples.Add(1)

	snap, err := c.src.Sample()
	if err != nil {
		var dq *keystate.DeviceQueryError
		if !errors.As(err, &dq) {
			err = &keystate.DeviceQueryError{Err: err}
		}
		c.stats.sampleErrors.Add(1)
		p.logSampleError(now, err)
		snap = combo.Snapshot{}
	}

	if now.Sub(p.lastStatus) >= c.cfg.StatusEvery {
		p.lastStatus = now
		c.log.Debug().Uint64("samples", p.polls).Uint64("triggers", p.seq).Str("keys", snap.String()).Msg("still polling")
	}

	ev := p.tracker.Observe(snap, now)
	if ev.State == combo.JustReleased || ev.State == combo.Inactive {
		p.armed = true
		return nil
	}
	if !p.armed || !p.candidate(ev) {
		return nil
	}
	p.armed = false

	if !c.gate.TryAccept(now) {
		c.stats.debounced.Add(1)
		c.log.Debug().Str("combo", c.spec.String()).Msg("activation inside debounce window, ignored")
		return nil
	}

	select {
	case <-c.consumerDone:
		return ErrChannelClosed
	default:
	}

	p.seq++
	sig := Signal{Seq: p.seq, Poll: p.polls, At: now, HeldFor: ev.HeldFor()}
	select {
	case p.ch <- sig:
		c.stats.accepted.Add(1)
		c.log.Info().Uint64("seq", sig.Seq).Dur("held", sig.HeldFor).Msg("trigger accepted")
	default:
		c.stats.dropped.Add(1)
		c.log.Warn().Uint64("seq", sig.Seq).Msg("trigger dropped: handler busy and queue full")
	}
	return nil
}

// candidate reports whether ev can fire. Edge-only unless MinHold is set.
func (p *poller) candidate(ev combo.Event) bool {
	minHold := p.c.cfg.MinHold
	if minHold == 0 {
		return ev.State == combo.JustActivated
	}
	return (ev.State == combo.JustActivated || ev.State == combo.Held) && ev.HeldFor() >= minHold
}

func (p *poller) logSampleError(now time.Time, err error) {
	if !p.lastErrLog.IsZero() && now.Sub(p.lastErrLog) < sampleErrEvery {
		p.errsSkipped++
		return
	}
	p.c.log.Warn().Err(err).Int("suppressed", p.errsSkipped).Msg("key state query failed, treating as no keys")
	p.lastErrLog = now
	p.errsSkipped = 0
}
