package game

import "github.com/cbodonnell/cuesync/pkg/game/types"

// EventBuffer coalesces the mutations of one tick into a single flush.
// The urgency of a flush is the highest urgency marked since the last clear.
type EventBuffer struct {
	dirty   bool
	urgency types.Urgency
}

// Mark records a pending mutation.
func (b *EventBuffer) Mark(urgency types.Urgency) {
	b.dirty = true
	if urgency > b.urgency {
		b.urgency = urgency
	}
}

// Dirty reports whether a flush is pending.
func (b *EventBuffer) Dirty() bool {
	return b.dirty
}

// Urgency returns the urgency the next flush carries.
func (b *EventBuffer) Urgency() types.Urgency {
	return b.urgency
}

// Clear resets the buffer to clean and Deferred.
func (b *EventBuffer) Clear() {
	b.dirty = false
	b.urgency = types.UrgencyDeferred
}
