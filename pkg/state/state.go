package state

import (
	"context"
	"time"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
)

// TableState is a point-in-time copy of every channel of one table, as seen
// by the local peer.
type TableState struct {
	TableID   string                                           `json:"tableId"`
	LocalPeer types.PeerID                                     `json:"localPeer"`
	Owner     types.PeerID                                     `json:"owner"`
	Game      types.GameStateData                              `json:"game"`
	Seats     [constants.SeatCount]types.SyncPlayerSessionData `json:"seats"`
	Cues      [constants.CueCount]types.CueLockState           `json:"cues"`
	Peers     []types.PeerID                                   `json:"peers"`
	UpdatedAt time.Time                                        `json:"updatedAt"`
}

// StateManager provides shared access to the table state.
// Implementations must be thread-safe.
type StateManager interface {
	// Get returns a copy of the current table state.
	Get(ctx context.Context) (*TableState, error)
	// Set replaces the current table state.
	Set(ctx context.Context, tableState *TableState) error
}
