package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// Live snapshot sizes in bytes.
const (
	TableSnapshotSize   = 268
	SeatSnapshotSize    = 2
	CueLockSnapshotSize = 43
)

type (
	tableState   = types.GameStateData
	seatState    = types.SyncPlayerSessionData
	cueLockState = types.CueLockState
)

// TableSnapshotSchema is the live binary layout of the table state.
// Every field is carried in declaration order at full precision.
var TableSnapshotSchema = NewSchema[tableState]("table", TableSnapshotSize, binary.LittleEndian,
	Repeat(constants.BallCount, func(i int) []Field[tableState] {
		return VectorFloat32(fmt.Sprintf("ballPositions[%d]", i), func(s *tableState) *kinematic.Vector { return &s.BallPositions[i] })
	}),
	VectorFloat32("cueBallVelocity", func(s *tableState) *kinematic.Vector { return &s.CueBallVelocity }),
	VectorFloat32("cueBallAngularVelocity", func(s *tableState) *kinematic.Vector { return &s.CueBallAngularVelocity }),
	Uint32("stateId", func(s *tableState) *uint32 { return &s.StateID }),
	Uint16("ballsPocketed", func(s *tableState) *uint16 { return &s.BallsPocketed }),
	Uint8("foulState", func(s *tableState) *uint8 { return (*uint8)(&s.FoulState) }),
	Uint8("teamId", func(s *tableState) *uint8 { return &s.TeamID }),
	Uint8("teamColor", func(s *tableState) *uint8 { return &s.TeamColor }),
	Uint8("winningTeam", func(s *tableState) *uint8 { return &s.WinningTeam }),
	Bool("tableOpen", func(s *tableState) *bool { return &s.TableOpen }),
	Uint8("gameState", func(s *tableState) *uint8 { return (*uint8)(&s.GameState) }),
	Uint8("turnState", func(s *tableState) *uint8 { return (*uint8)(&s.TurnState) }),
	Uint8("gameMode", func(s *tableState) *uint8 { return &s.GameMode }),
	Int64("timerStartTimestamp", func(s *tableState) *int64 { return &s.TimerStartTimestamp }),
	Uint32("timerSeconds", func(s *tableState) *uint32 { return &s.TimerSeconds }),
	Uint8("tableModelId", func(s *tableState) *uint8 { return &s.TableModelID }),
	Uint8("physicsVariantId", func(s *tableState) *uint8 { return &s.PhysicsVariantID }),
	Bool("teamsEnabled", func(s *tableState) *bool { return &s.TeamsEnabled }),
	Bool("noGuideline", func(s *tableState) *bool { return &s.NoGuideline }),
	Bool("noLocking", func(s *tableState) *bool { return &s.NoLocking }),
	Repeat(constants.TeamCount, func(i int) []Field[tableState] {
		return Uint8(fmt.Sprintf("fourBallScores[%d]", i), func(s *tableState) *uint8 { return &s.FourBallScores[i] })
	}),
	Uint8("fourBallCueBallIndex", func(s *tableState) *uint8 { return &s.FourBallCueBallIndex }),
	Uint8("urgency", func(s *tableState) *uint8 { return (*uint8)(&s.Urgency) }),
	Bool("colorTurn", func(s *tableState) *bool { return &s.ColorTurn }),
	Repeat(constants.SeatCount, func(i int) []Field[tableState] {
		return Uint32(fmt.Sprintf("playerSeatIds[%d]", i), func(s *tableState) *uint32 { return (*uint32)(&s.PlayerSeatIDs[i]) })
	}),
).WithValidation(validateTableState)

// SeatSnapshotSchema is the live binary layout of a seat channel.
var SeatSnapshotSchema = NewSchema[seatState]("seat", SeatSnapshotSize, binary.LittleEndian,
	Int8("slotIndex", func(s *seatState) *int8 { return &s.SlotIndex }),
	Bool("leaving", func(s *seatState) *bool { return &s.Leaving }),
).WithValidation(func(s *seatState) error {
	if s.SlotIndex != types.NoSlot && (s.SlotIndex < 0 || int(s.SlotIndex) >= constants.SeatCount) {
		return fmt.Errorf("slot index %d out of range", s.SlotIndex)
	}
	return nil
})

// CueLockSnapshotSchema is the live binary layout of a cue lock channel.
var CueLockSnapshotSchema = NewSchema[cueLockState]("cue_lock", CueLockSnapshotSize, binary.LittleEndian,
	Bool("holderIsDesktopInput", func(s *cueLockState) *bool { return &s.HolderIsDesktopInput }),
	Bool("primaryLocked", func(s *cueLockState) *bool { return &s.PrimaryLocked }),
	VectorFloat32("primaryLockPosition", func(s *cueLockState) *kinematic.Vector { return &s.PrimaryLockPosition }),
	VectorFloat32("primaryLockDirection", func(s *cueLockState) *kinematic.Vector { return &s.PrimaryLockDirection }),
	Bool("secondaryLocked", func(s *cueLockState) *bool { return &s.SecondaryLocked }),
	VectorFloat32("secondaryLockPosition", func(s *cueLockState) *kinematic.Vector { return &s.SecondaryLockPosition }),
	Float32("visualScale", func(s *cueLockState) *float32 { return &s.VisualScale }),
)

func validateTableState(s *tableState) error {
	if s.GameState > types.GameStateGameOver {
		return fmt.Errorf("game state %d out of range", s.GameState)
	}
	if s.TurnState > types.TurnStateFoulOrTieRecovery {
		return fmt.Errorf("turn state %d out of range", s.TurnState)
	}
	if s.FoulState > types.FoulStateObjectBallBlocked {
		return fmt.Errorf("foul state %d out of range", s.FoulState)
	}
	if s.Urgency != types.UrgencyDeferred && s.Urgency != types.UrgencyImmediate {
		return fmt.Errorf("urgency %d out of range", s.Urgency)
	}
	return nil
}

// EncodeTableSnapshot serializes the whole table state.
func EncodeTableSnapshot(s *types.GameStateData) []byte {
	return TableSnapshotSchema.Encode(s)
}

// DecodeTableSnapshot parses a live table snapshot.
func DecodeTableSnapshot(b []byte) (types.GameStateData, error) {
	var s types.GameStateData
	if err := TableSnapshotSchema.Decode(b, &s); err != nil {
		return types.GameStateData{}, err
	}
	return s, nil
}

// EncodeSeatSnapshot serializes a seat channel.
func EncodeSeatSnapshot(s *types.SyncPlayerSessionData) []byte {
	return SeatSnapshotSchema.Encode(s)
}

// DecodeSeatSnapshot parses a live seat snapshot.
func DecodeSeatSnapshot(b []byte) (types.SyncPlayerSessionData, error) {
	s := types.NewSyncPlayerSessionData()
	if err := SeatSnapshotSchema.Decode(b, &s); err != nil {
		return types.SyncPlayerSessionData{}, err
	}
	return s, nil
}

// EncodeCueLockSnapshot serializes a cue lock channel.
func EncodeCueLockSnapshot(s *types.CueLockState) []byte {
	return CueLockSnapshotSchema.Encode(s)
}

// DecodeCueLockSnapshot parses a live cue lock snapshot.
func DecodeCueLockSnapshot(b []byte) (types.CueLockState, error) {
	var s types.CueLockState
	if err := CueLockSnapshotSchema.Decode(b, &s); err != nil {
		return types.CueLockState{}, err
	}
	return s, nil
}
