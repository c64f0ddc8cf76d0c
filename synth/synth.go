// Package synth injects key presses through the OS input layer so the
// whole detection path can be exercised without touching the keyboard.
package synth

import (
	"fmt"
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"

	"snapsight/combo"
)

type Synth struct {
	kb keybd_event.KeyBonding
}

// New creates the virtual keyboard. On Linux this needs write access to
// /dev/uinput and the device takes a moment to appear.
func New() (*Synth, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("virtual keyboard: %w", err)
	}
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &Synth{kb: kb}, nil
}

type plan struct {
	keys                    []int
	ctrl, shift, alt, super bool
}

var modifierGroups = map[combo.Key]string{
	"lctrl": "ctrl", "rctrl": "ctrl",
	"lshift": "shift", "rshift": "shift",
	"lalt": "alt", "ralt": "alt",
	"lmeta": "super", "rmeta": "super", "command": "super",
}

func planFor(spec combo.Spec) (plan, error) {
	var p plan
	for _, g := range spec.Groups() {
		if mod, ok := groupModifier(g); ok {
			switch mod {
			case "ctrl":
				p.ctrl = true
			case "shift":
				p.shift = true
			case "alt":
				p.alt = true
			case "super":
				p.super = true
			}
			continue
		}
		vk, ok := groupKey(g)
		if !ok {
			return plan{}, fmt.Errorf("cannot synthesize key %s", g[0])
		}
		p.keys = append(p.keys, vk)
	}
	if len(p.keys) == 0 {
		return plan{}, fmt.Errorf("combo %s has no regular key", spec)
	}
	return p, nil
}

func groupModifier(g []combo.Key) (string, bool) {
	for _, k := range g {
		if m, ok := modifierGroups[k]; ok {
			return m, true
		}
	}
	return "", false
}

func groupKey(g []combo.Key) (int, bool) {
	for _, k := range g {
		if vk, ok := keyCodes[k]; ok {
			return vk, true
		}
	}
	return 0, false
}

// Press taps spec once: modifiers down, keys down, everything up.
func (s *Synth) Press(spec combo.Spec) error {
	p, err := planFor(spec)
	if err != nil {
		return err
	}
	s.kb.Clear()
	s.kb.SetKeys(p.keys...)
	s.kb.HasCTRL(p.ctrl)
	s.kb.HasSHIFT(p.shift)
	s.kb.HasALT(p.alt)
	s.kb.HasSuper(p.super)
	return s.kb.Launching()
}

var keyCodes = map[combo.Key]int{
	"space": keybd_event.VK_SPACE,
	"a":     keybd_event.VK_A,
	"b":     keybd_event.VK_B,
	"c":     keybd_event.VK_C,
	"d":     keybd_event.VK_D,
	"e":     keybd_event.VK_E,
	"f":     keybd_event.VK_F,
	"g":     keybd_event.VK_G,
	"h":     keybd_event.VK_H,
	"i":     keybd_event.VK_I,
	"j":     keybd_event.VK_J,
	"k":     keybd_event.VK_K,
	"l":     keybd_event.VK_L,
	"m":     keybd_event.VK_M,
	"n":     keybd_event.VK_N,
	"o":     keybd_event.VK_O,
	"p":     keybd_event.VK_P,
	"q":     keybd_event.VK_Q,
	"r":     keybd_event.VK_R,
	"s":     keybd_event.VK_S,
	"t":     keybd_event.VK_T,
	"u":     keybd_event.VK_U,
	"v":     keybd_event.VK_V,
	"w":     keybd_event.VK_W,
	"x":     keybd_event.VK_X,
	"y":     keybd_event.VK_Y,
	"z":     keybd_event.VK_Z,
}
