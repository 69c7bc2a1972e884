package sensor

import (
	"slices"
	"time"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

const initialState = "Initial state"

// Detector turns a stream of frames into accepted state changes. Changes
// arriving less than minDuration after the last accepted one are dropped
// and the previous state is kept, so a flapping sensor is debounced.
type Detector struct {
	minDuration time.Duration
	prev        []bool
	changedAt   time.Time
}

func NewDetector(minDuration time.Duration) *Detector {
	return &Detector{minDuration: minDuration}
}

// Observe returns the change description and true when the frame is an
// accepted change.
func (d *Detector) Observe(f Frame, at time.Time) (string, bool) {
	if d.prev == nil {
		d.prev = slices.Clone(f.Slots)
		d.changedAt = at
		return initialState, true
	}

	if slices.Equal(d.prev, f.Slots) {
		return "", false
	}
	if at.Sub(d.changedAt) < d.minDuration {
		return "", false
	}

	description := parking.Describe(d.prev, f.Slots)
	d.prev = slices.Clone(f.Slots)
	d.changedAt = at
	return description, true
}
