package beep

import "testing"

func TestCueLengths(t *testing.T) {
	for _, tt := range []struct {
		cue  Cue
		want int
	}{
		{Trigger, len(triggerTone.samples())},
		{Done, len(doneLow.samples()) + len(silence(gapDur/2)) + len(doneHigh.samples())},
		{Failure, 2*len(failureTone.samples()) + len(silence(gapDur))},
	} {
		if got := len(pcm(tt.cue)); got != tt.want {
			t.Errorf("cue %d: %d samples, want %d", tt.cue, got, tt.want)
		}
	}
	if pcm(Cue(99)) != nil {
		t.Error("unknown cue should be silent")
	}
}

func TestToneDecays(t *testing.T) {
	s := triggerTone.samples()
	peak := func(xs []int16) int16 {
		var m int16
		for _, x := range xs {
			if x < 0 {
				x = -x
			}
			if x > m {
				m = x
			}
		}
		return m
	}
	q := len(s) / 4
	head, tail := peak(s[:q]), peak(s[len(s)-q:])
	if head == 0 || tail >= head {
		t.Errorf("head peak %d, tail peak %d: want a decaying tone", head, tail)
	}
	if head > int16(32767*triggerTone.volume)+1 {
		t.Errorf("peak %d exceeds volume", head)
	}
}

func TestDisabledIsSilent(t *testing.T) {
	Disable()
	t.Cleanup(func() { disabled.Store(false) })
	Play(Trigger)
}
