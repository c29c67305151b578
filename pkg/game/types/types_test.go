package types

import (
	"testing"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityID_Parse(t *testing.T) {
	tests := []struct {
		name      string
		entity    EntityID
		wantKind  EntityKind
		wantIndex int
		wantErr   bool
	}{
		{name: "table", entity: TableEntity, wantKind: EntityKindTable},
		{name: "seat", entity: SeatEntity(3), wantKind: EntityKindSeat, wantIndex: 3},
		{name: "cue", entity: CueEntity(1), wantKind: EntityKindCue, wantIndex: 1},
		{name: "bad seat", entity: "seat/x", wantErr: true},
		{name: "unknown", entity: "lamp/0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, index, err := tt.entity.Parse()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantIndex, index)
		})
	}
}

func TestGameStateData_Seats(t *testing.T) {
	var rack [constants.BallCount]kinematic.Vector
	g := NewGameStateData(rack)

	assert.Equal(t, GameStateIdle, g.GameState)
	assert.Equal(t, TeamNone, g.WinningTeam)
	assert.Equal(t, 0, g.OccupiedSeats())
	assert.Equal(t, -1, g.SeatOf(NoPeer))

	g.PlayerSeatIDs[2] = 7
	assert.Equal(t, 2, g.SeatOf(7))
	assert.Equal(t, 1, g.OccupiedSeats())

	g.ClearSeats()
	assert.Equal(t, -1, g.SeatOf(7))
}

func TestGameStateData_IsPocketed(t *testing.T) {
	g := GameStateData{BallsPocketed: 1<<3 | 1<<8}
	assert.True(t, g.IsPocketed(3))
	assert.True(t, g.IsPocketed(8))
	assert.False(t, g.IsPocketed(0))
}
