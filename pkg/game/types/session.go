package types

// NoSlot is the slot index of a seat channel that has never been joined.
const NoSlot int8 = -1

// SyncPlayerSessionData is the replicated state of one seat channel.
type SyncPlayerSessionData struct {
	SlotIndex int8 `json:"slotIndex"`
	Leaving   bool `json:"leaving"`
}

// NewSyncPlayerSessionData returns an unjoined seat.
func NewSyncPlayerSessionData() SyncPlayerSessionData {
	return SyncPlayerSessionData{SlotIndex: NoSlot}
}

// Occupied reports whether the seat data describes a seated player.
func (s SyncPlayerSessionData) Occupied() bool {
	return s.SlotIndex != NoSlot && !s.Leaving
}
