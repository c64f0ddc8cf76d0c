package combo

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Key is a lower-case key name such as "lshift" or "space".
type Key string

// Snapshot is the set of keys pressed at one instant.
type Snapshot map[Key]struct{}

func SnapshotOf(keys ...Key) Snapshot {
	s := make(Snapshot, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s Snapshot) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Keys returns the pressed keys in sorted order.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s Snapshot) String() string {
	keys := s.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, "+")
}

// Synonyms maps a combo token to the physical keys that satisfy it,
// e.g. "shift" -> lshift, rshift.
type Synonyms map[string][]string

// DefaultSynonyms covers left/right modifiers and the macOS command alias.
var DefaultSynonyms = Synonyms{
	"shift":   {"lshift", "rshift"},
	"ctrl":    {"lctrl", "rctrl"},
	"control": {"lctrl", "rctrl"},
	"alt":     {"lalt", "ralt"},
	"option":  {"lalt", "ralt"},
	"meta":    {"lmeta", "rmeta", "command"},
	"cmd":     {"lmeta", "rmeta", "command"},
	"super":   {"lmeta", "rmeta", "command"},
	"win":     {"lmeta", "rmeta"},
}

// Spec is the immutable key combination. Every group must have at least
// one of its keys pressed for the combo to be satisfied.
type Spec struct {
	text   string
	groups [][]Key
}

type ConfigError struct {
	Combo  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Combo == "" {
		return "invalid hotkey combo: " + e.Reason
	}
	return fmt.Sprintf("invalid hotkey combo %q: %s", e.Combo, e.Reason)
}

// NewSpec builds a Spec from explicit synonym groups.
func NewSpec(groups ...[]Key) (Spec, error) {
	if len(groups) == 0 {
		return Spec{}, &ConfigError{Reason: "no keys"}
	}
	out := make([][]Key, len(groups))
	names := make([]string, len(groups))
	for i, g := range groups {
		if len(g) == 0 {
			return Spec{}, &ConfigError{Reason: fmt.Sprintf("group %d is empty", i+1)}
		}
		out[i] = append([]Key(nil), g...)
		names[i] = string(g[0])
	}
	return Spec{text: strings.Join(names, "+"), groups: out}, nil
}

// ParseSpec parses "meta+shift+space", expanding each token through syn.
// Tokens without a synonym entry match themselves.
func ParseSpec(text string, syn Synonyms) (Spec, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return Spec{}, &ConfigError{Reason: "empty"}
	}
	var groups [][]Key
	seen := make(map[string]bool)
	for _, tok := range strings.Split(text, "+") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return Spec{}, &ConfigError{Combo: text, Reason: "empty key name"}
		}
		if seen[tok] {
			return Spec{}, &ConfigError{Combo: text, Reason: "duplicate key " + tok}
		}
		seen[tok] = true

		names, ok := syn[tok]
		if !ok || len(names) == 0 {
			names = []string{tok}
		}
		g := make([]Key, len(names))
		for i, n := range names {
			g[i] = Key(strings.ToLower(n))
		}
		groups = append(groups, g)
	}
	spec, err := NewSpec(groups...)
	if err != nil {
		return Spec{}, err
	}
	spec.text = text
	return spec, nil
}

func (s Spec) String() string { return s.text }

// Groups returns a copy of the synonym groups.
func (s Spec) Groups() [][]Key {
	out := make([][]Key, len(s.groups))
	for i, g := range s.groups {
		out[i] = append([]Key(nil), g...)
	}
	return out
}

// Satisfied reports whether every group has a pressed key. The zero Spec
// is never satisfied.
func (s Spec) Satisfied(snap Snapshot) bool {
	if len(s.groups) == 0 {
		return false
	}
	for _, g := range s.groups {
		hit := false
		for _, k := range g {
			if snap.Has(k) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

type State int

const (
	Inactive State = iota
	JustActivated
	Held
	JustReleased
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case JustActivated:
		return "just_activated"
	case Held:
		return "held"
	case JustReleased:
		return "just_released"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Classify maps two consecutive snapshots to a transition.
func Classify(prev, cur Snapshot, spec Spec) State {
	was := spec.Satisfied(prev)
	is := spec.Satisfied(cur)
	switch {
	case is && !was:
		return JustActivated
	case is && was:
		return Held
	case !is && was:
		return JustReleased
	}
	return Inactive
}

// Event is a classified transition. Since is the instant the combo became
// active and is zero unless State is JustActivated or Held.
type Event struct {
	State State
	Since time.Time
	At    time.Time
}

// HeldFor is how long the combo has been down at the event instant.
func (e Event) HeldFor() time.Duration {
	if e.Since.IsZero() {
		return 0
	}
	return e.At.Sub(e.Since)
}

// Tracker feeds snapshots through Classify and remembers the previous
// snapshot and the activation instant. Not safe for concurrent use.
type Tracker struct {
	spec  Spec
	prev  Snapshot
	since time.Time
}

func NewTracker(spec Spec) *Tracker {
	return &Tracker{spec: spec, prev: Snapshot{}}
}

func (t *Tracker) Observe(cur Snapshot, now time.Time) Event {
	if cur == nil {
		cur = Snapshot{}
	}
	st := Classify(t.prev, cur, t.spec)
	switch st {
	case JustActivated:
		t.since = now
	case JustReleased, Inactive:
		t.since = time.Time{}
	}
	t.prev = cur
	return Event{State: st, Since: t.since, At: now}
}
