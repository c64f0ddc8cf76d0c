package screen

import (
	"image"
	"sync"

	"github.com/corona10/goimagehash"
)

// MaxHashDistance is the perceptual-hash Hamming distance at or below
// which two frames count as the same screen.
const MaxHashDistance = 5

// ChangeTracker remembers the perceptual hash of the last captured frame.
type ChangeTracker struct {
	mu   sync.Mutex
	last *goimagehash.ImageHash
}

// Observe hashes img and reports whether it differs from the previous
// frame, along with the distance (-1 when there was no previous frame).
func (t *ChangeTracker) Observe(img image.Image) (changed bool, distance int) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return true, -1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		t.last = hash
		return true, -1
	}
	dist, err := t.last.Distance(hash)
	t.last = hash
	if err != nil {
		return true, -1
	}
	return dist > MaxHashDistance, dist
}
