//go:build linux

package keystate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"snapsight/combo"
)

const (
	evKey      = 1
	keyRelease = 0
)

// input_event is 24 bytes on 64-bit Linux:
// timeval (16 bytes) + type (2) + code (2) + value (4)
const inputEventSize = 24

type evdevSource struct {
	mu      sync.Mutex
	pressed combo.Snapshot
	errs    []error
	alive   int

	files []*os.File
	once  sync.Once
}

// New opens every keyboard under /dev/input and tracks key state from
// their event streams. The spec is unused on Linux: all keys are tracked.
// Requires the user to be in the 'input' group.
func New(_ combo.Spec) (Source, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return nil, fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return nil, fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	s := &evdevSource{pressed: combo.Snapshot{}}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		s.files = append(s.files, f)
	}
	if len(s.files) == 0 {
		return nil, fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	s.alive = len(s.files)
	for _, f := range s.files {
		go s.readEvents(f)
	}
	return s, nil
}

func (s *evdevSource) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			s.mu.Lock()
			s.alive--
			if !errors.Is(err, os.ErrClosed) {
				s.errs = append(s.errs, &DeviceQueryError{Device: f.Name(), Err: err})
			}
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			evType := binary.LittleEndian.Uint16(buf[i+16:])
			if evType != evKey {
				continue
			}
			evCode := binary.LittleEndian.Uint16(buf[i+18:])
			evValue := int32(binary.LittleEndian.Uint32(buf[i+20:]))

			name, ok := keyNames[evCode]
			if !ok {
				continue
			}
			// value 2 is autorepeat; the key stays down
			if evValue == keyRelease {
				delete(s.pressed, name)
			} else {
				s.pressed[name] = struct{}{}
			}
		}
		s.mu.Unlock()
	}
}

func (s *evdevSource) Sample() (combo.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(combo.Snapshot, len(s.pressed))
	for k := range s.pressed {
		snap[k] = struct{}{}
	}

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return snap, err
	}
	if s.alive == 0 {
		return snap, &DeviceQueryError{Err: errors.New("all keyboard devices closed")}
	}
	return snap, nil
}

func (s *evdevSource) Close() error {
	s.once.Do(func() {
		for _, f := range s.files {
			f.Close()
		}
	})
	return nil
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	// Real keyboards have long key capability bitmaps
	caps := strings.TrimSpace(string(data))
	return len(caps) > 10
}

// Diagnose checks evdev access and returns a status message.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	var opened string
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			opened = path
			break
		}
	}
	if opened == "" {
		return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
	}

	return fmt.Sprintf("%d keyboard(s) found, opened %s", len(keyboards), opened), nil
}

// PermissionHint is printed when New fails.
func PermissionHint() string {
	return "Add yourself to the input group: sudo usermod -aG input $USER (then log out and back in)"
}
