// Package keystate samples the set of currently pressed keys.
package keystate

import (
	"fmt"

	"snapsight/combo"
)

// Source returns the keys held down at the moment Sample is called.
// Implementations must be safe to call from a single polling goroutine
// while Close is called from another.
type Source interface {
	Sample() (combo.Snapshot, error)
	Close() error
}

// DeviceQueryError is a failed or partial key-state read. The poller
// treats it as an empty snapshot and keeps going.
type DeviceQueryError struct {
	Device string
	Err    error
}

func (e *DeviceQueryError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("key state query: %v", e.Err)
	}
	return fmt.Sprintf("key state query %s: %v", e.Device, e.Err)
}

func (e *DeviceQueryError) Unwrap() error { return e.Err }
