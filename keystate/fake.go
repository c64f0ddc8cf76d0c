package keystate

import (
	"sync"

	"snapsight/combo"
)

// Step is one scripted sample: either a snapshot or a query failure.
type Step struct {
	Keys combo.Snapshot
	Err  error
}

func Keys(keys ...combo.Key) Step { return Step{Keys: combo.SnapshotOf(keys...)} }

func Failure(err error) Step { return Step{Err: err} }

// Scripted replays a fixed sequence of samples, then keeps returning the
// current held state, which Set changes. Used by tests and the -test mode.
type Scripted struct {
	mu        sync.Mutex
	steps     []Step
	held      combo.Snapshot
	samples   int
	exhausted chan struct{}
	closed    bool
}

func NewScripted(steps ...Step) *Scripted {
	s := &Scripted{
		steps:     steps,
		held:      combo.Snapshot{},
		exhausted: make(chan struct{}),
	}
	if len(steps) == 0 {
		close(s.exhausted)
	}
	return s
}

func (s *Scripted) Sample() (combo.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++

	if len(s.steps) > 0 {
		step := s.steps[0]
		s.steps = s.steps[1:]
		if len(s.steps) == 0 {
			close(s.exhausted)
		}
		if step.Err != nil {
			return combo.Snapshot{}, &DeviceQueryError{Device: "scripted", Err: step.Err}
		}
		return copySnapshot(step.Keys), nil
	}
	return copySnapshot(s.held), nil
}

// Set replaces the held state returned once the script has run out.
func (s *Scripted) Set(snap combo.Snapshot) {
	s.mu.Lock()
	s.held = copySnapshot(snap)
	s.mu.Unlock()
}

// Exhausted is closed once every scripted step has been sampled.
func (s *Scripted) Exhausted() <-chan struct{} { return s.exhausted }

func (s *Scripted) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func copySnapshot(snap combo.Snapshot) combo.Snapshot {
	out := make(combo.Snapshot, len(snap))
	for k := range snap {
		out[k] = struct{}{}
	}
	return out
}
