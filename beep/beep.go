// Package beep plays short audible cues for trigger, result and failure.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

type Cue int

const (
	Trigger Cue = iota
	Done
	Failure
)

const sampleRate = 44100

type tone struct {
	freq   float64
	dur    float64
	volume float64
	decay  float64
}

var (
	// high, short tick when the hotkey fires
	triggerTone = tone{freq: 1200, dur: 0.05, volume: 0.5, decay: 60}
	// two rising notes when the answer is ready
	doneLow  = tone{freq: 660, dur: 0.08, volume: 0.45, decay: 35}
	doneHigh = tone{freq: 990, dur: 0.12, volume: 0.45, decay: 30}
	// low double beep on failure
	failureTone = tone{freq: 350, dur: 0.08, volume: 0.6, decay: 30}
)

const gapDur = 0.05

// samples renders tone as mono int16 PCM with exponential decay.
func (t tone) samples() []int16 {
	n := int(sampleRate * t.dur)
	out := make([]int16, n)
	for i := range out {
		x := float64(i) / sampleRate
		env := math.Exp(-x * t.decay)
		out[i] = int16(math.Sin(2*math.Pi*t.freq*x) * 32767 * t.volume * env)
	}
	return out
}

func silence(dur float64) []int16 {
	return make([]int16, int(sampleRate*dur))
}

func concat(parts ...[]int16) []int16 {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]int16, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// pcm returns the mono samples for c.
func pcm(c Cue) []int16 {
	switch c {
	case Trigger:
		return triggerTone.samples()
	case Done:
		return concat(doneLow.samples(), silence(gapDur/2), doneHigh.samples())
	case Failure:
		f := failureTone.samples()
		return concat(f, silence(gapDur), f)
	}
	return nil
}

// Play sounds c without blocking the caller.
func Play(c Cue) {
	if disabled.Load() {
		return
	}
	play(c)
}
