//go:build darwin

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	cueBytes  map[Cue][]byte
	soundOnce sync.Once

	// read by the audio callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}

	cueBytes = make(map[Cue][]byte)
	for _, c := range []Cue{Trigger, Done, Failure} {
		cueBytes[c] = littleEndian(pcm(c))
	}

	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func littleEndian(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2
	samples := playing.Load()
	var n uint32
	if samples != nil {
		pos := playPos.Load()
		if rest := uint32(len(*samples)) - pos; rest > 0 {
			n = min(want, rest)
			copy(out[:n], (*samples)[pos:pos+n])
			playPos.Store(pos + n)
		} else {
			playing.Store(nil)
		}
	}
	for i := n; i < want && int(i) < len(out); i++ {
		out[i] = 0
	}
}

func playBytes(samples []byte) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}
	device.Stop()
	playPos.Store(0)
	playing.Store(&samples)

	if err := device.Start(); err != nil {
		// device goes stale across sleep/wake; rebuild once
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}

func Init() {
	soundOnce.Do(initSound)
}

func play(c Cue) {
	soundOnce.Do(initSound)
	playBytes(cueBytes[c])
}
