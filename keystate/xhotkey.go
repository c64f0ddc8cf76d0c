//go:build darwin || windows

package keystate

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"

	"snapsight/combo"
)

// xSource registers the combo as an OS-level hotkey. The OS reports only
// down/up of the whole chord, so a sample is either every group's first
// key or nothing.
type xSource struct {
	hk   *hotkey.Hotkey
	full combo.Snapshot

	mu   sync.Mutex
	down bool

	stop chan struct{}
	once sync.Once
}

// New registers spec with the OS. Exactly one group must be a non-modifier
// key; every other group must map to a modifier.
func New(spec combo.Spec) (Source, error) {
	mods, key, err := translate(spec)
	if err != nil {
		return nil, err
	}

	full := combo.Snapshot{}
	for _, g := range spec.Groups() {
		full[g[0]] = struct{}{}
	}

	s := &xSource{
		hk:   hotkey.New(mods, key),
		full: full,
		stop: make(chan struct{}),
	}
	if err := s.hk.Register(); err != nil {
		return nil, fmt.Errorf("registering %s: %w", spec, err)
	}
	go s.listen()
	return s, nil
}

func translate(spec combo.Spec) ([]hotkey.Modifier, hotkey.Key, error) {
	var mods []hotkey.Modifier
	var key hotkey.Key
	haveKey := false

	for _, g := range spec.Groups() {
		if mod, ok := lookupModifier(g); ok {
			mods = append(mods, mod)
			continue
		}
		k, ok := lookupKey(g)
		if !ok {
			return nil, 0, &combo.ConfigError{Combo: spec.String(), Reason: fmt.Sprintf("unsupported key %s", g[0])}
		}
		if haveKey {
			return nil, 0, &combo.ConfigError{Combo: spec.String(), Reason: "more than one non-modifier key"}
		}
		key, haveKey = k, true
	}
	if !haveKey {
		return nil, 0, &combo.ConfigError{Combo: spec.String(), Reason: "no non-modifier key"}
	}
	return mods, key, nil
}

func lookupModifier(g []combo.Key) (hotkey.Modifier, bool) {
	for _, k := range g {
		if m, ok := modifierMap[k]; ok {
			return m, true
		}
	}
	return 0, false
}

func lookupKey(g []combo.Key) (hotkey.Key, bool) {
	for _, k := range g {
		if hk, ok := keyMap[k]; ok {
			return hk, true
		}
	}
	return 0, false
}

func (s *xSource) listen() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.hk.Keydown():
			s.set(true)
		case <-s.hk.Keyup():
			s.set(false)
		}
	}
}

func (s *xSource) set(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *xSource) Sample() (combo.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.down {
		return combo.Snapshot{}, nil
	}
	snap := make(combo.Snapshot, len(s.full))
	for k := range s.full {
		snap[k] = struct{}{}
	}
	return snap, nil
}

func (s *xSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.hk.Unregister()
	})
	return err
}

var keyMap = map[combo.Key]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}
