package types

import (
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// GameState is the lifecycle phase of the table.
type GameState uint8

const (
	GameStateIdle GameState = iota
	GameStateLobbyOpen
	GameStateGameLive
	GameStateGameOver
)

func (s GameState) String() string {
	switch s {
	case GameStateIdle:
		return "idle"
	case GameStateLobbyOpen:
		return "lobby_open"
	case GameStateGameLive:
		return "game_live"
	case GameStateGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// TurnState is the phase of the current turn.
type TurnState uint8

const (
	TurnStateAwaitingShot TurnState = iota
	TurnStateBallInMotion
	TurnStateFoulOrTieRecovery
)

func (s TurnState) String() string {
	switch s {
	case TurnStateAwaitingShot:
		return "awaiting_shot"
	case TurnStateBallInMotion:
		return "ball_in_motion"
	case TurnStateFoulOrTieRecovery:
		return "foul_or_tie_recovery"
	default:
		return "unknown"
	}
}

// FoulState records the foul committed on the previous shot.
type FoulState uint8

const (
	FoulStateNone FoulState = iota
	FoulStateFoul
	FoulStateScratch
	FoulStateObjectBallBlocked
)

// Urgency marks whether an update must preempt an in-flight local simulation.
// Only two values are ever produced.
type Urgency uint8

const (
	UrgencyDeferred  Urgency = 0
	UrgencyImmediate Urgency = 2
)

func (u Urgency) String() string {
	if u == UrgencyImmediate {
		return "immediate"
	}
	return "deferred"
}

// TeamNone is the winning team before anyone has won.
const TeamNone uint8 = 0xFF

// GameStateData is the canonical replicated state of one table.
type GameStateData struct {
	BallPositions          [constants.BallCount]kinematic.Vector `json:"ballPositions"`
	CueBallVelocity        kinematic.Vector                      `json:"cueBallVelocity"`
	CueBallAngularVelocity kinematic.Vector                      `json:"cueBallAngularVelocity"`

	// StateID increases on every shot, turn or game change issued by the owner.
	StateID uint32 `json:"stateId"`
	// BallsPocketed has bit i set when ball i is pocketed.
	BallsPocketed uint16 `json:"ballsPocketed"`

	FoulState   FoulState `json:"foulState"`
	TeamID      uint8     `json:"teamId"`
	TeamColor   uint8     `json:"teamColor"`
	WinningTeam uint8     `json:"winningTeam"`
	TableOpen   bool      `json:"tableOpen"`
	GameState   GameState `json:"gameState"`
	TurnState   TurnState `json:"turnState"`
	GameMode    uint8     `json:"gameMode"`

	TimerStartTimestamp int64  `json:"timerStartTimestamp"`
	TimerSeconds        uint32 `json:"timerSeconds"`

	TableModelID     uint8 `json:"tableModelId"`
	PhysicsVariantID uint8 `json:"physicsVariantId"`
	TeamsEnabled     bool  `json:"teamsEnabled"`
	NoGuideline      bool  `json:"noGuideline"`
	NoLocking        bool  `json:"noLocking"`

	FourBallScores       [constants.TeamCount]uint8 `json:"fourBallScores"`
	FourBallCueBallIndex uint8                      `json:"fourBallCueBallIndex"`

	Urgency   Urgency `json:"urgency"`
	ColorTurn bool    `json:"colorTurn"`

	PlayerSeatIDs [constants.SeatCount]PeerID `json:"playerSeatIds"`
}

// NewGameStateData returns an idle table state with the balls racked at rack.
func NewGameStateData(rack [constants.BallCount]kinematic.Vector) GameStateData {
	return GameStateData{
		BallPositions: rack,
		WinningTeam:   TeamNone,
		TableOpen:     true,
		GameState:     GameStateIdle,
		TurnState:     TurnStateAwaitingShot,
		TimerSeconds:  constants.DefaultTimerSeconds,
	}
}

// IsPocketed reports whether ball i is pocketed.
func (g GameStateData) IsPocketed(i int) bool {
	return g.BallsPocketed&(1<<uint(i)) != 0
}

// SeatOf returns the seat index occupied by peer, or -1.
func (g GameStateData) SeatOf(peer PeerID) int {
	if peer == NoPeer {
		return -1
	}
	for i, id := range g.PlayerSeatIDs {
		if id == peer {
			return i
		}
	}
	return -1
}

// OccupiedSeats returns the number of occupied seats.
func (g GameStateData) OccupiedSeats() int {
	n := 0
	for _, id := range g.PlayerSeatIDs {
		if id != NoPeer {
			n++
		}
	}
	return n
}

// ClearSeats empties every seat.
func (g *GameStateData) ClearSeats() {
	for i := range g.PlayerSeatIDs {
		g.PlayerSeatIDs[i] = NoPeer
	}
}
