package types

import "github.com/cbodonnell/cuesync/pkg/kinematic"

// CueLockState is the replicated pose lock of a two-handed cue.
// Lock positions are meaningful only while the matching lock flag is set.
type CueLockState struct {
	HolderIsDesktopInput  bool             `json:"holderIsDesktopInput"`
	PrimaryLocked         bool             `json:"primaryLocked"`
	PrimaryLockPosition   kinematic.Vector `json:"primaryLockPosition"`
	PrimaryLockDirection  kinematic.Vector `json:"primaryLockDirection"`
	SecondaryLocked       bool             `json:"secondaryLocked"`
	SecondaryLockPosition kinematic.Vector `json:"secondaryLockPosition"`
	VisualScale           float32          `json:"visualScale"`
}

// NewCueLockState returns an unlocked cue at unit scale.
func NewCueLockState() CueLockState {
	return CueLockState{VisualScale: 1}
}
