package game

import (
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// Simulator is the local physics integration of a shot.
// It reports completion by calling Replica.OnSimulationEnded.
type Simulator interface {
	// Start begins simulating the shot described by state.
	Start(state types.GameStateData)
	// Stop terminates the simulation and returns the current ball positions.
	Stop() [constants.BallCount]kinematic.Vector
	// Running reports whether a simulation is in flight.
	Running() bool
}

// Relevance reports whether the table is currently in view for this peer.
// Its owner calls Replica.OnRelevanceChanged when the answer changes.
type Relevance interface {
	Relevant() bool
}

// AlwaysRelevant is a Relevance for peers without culling.
type AlwaysRelevant struct{}

func (AlwaysRelevant) Relevant() bool { return true }

// Roster lists the connected peers of the session.
type Roster interface {
	Peers() []types.PeerID
}

// VerdictKind is the outcome of a shot.
type VerdictKind uint8

const (
	// VerdictPass hands the turn to Team
	VerdictPass VerdictKind = iota
	// VerdictContinue keeps the turn with the shooting team
	VerdictContinue
	// VerdictFoul gives Team ball in hand
	VerdictFoul
	// VerdictTie ends the turn without a winner
	VerdictTie
	// VerdictWin ends the game in favour of Team
	VerdictWin
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictPass:
		return "pass"
	case VerdictContinue:
		return "continue"
	case VerdictFoul:
		return "foul"
	case VerdictTie:
		return "tie"
	case VerdictWin:
		return "win"
	default:
		return "unknown"
	}
}

// Verdict is a referee decision.
type Verdict struct {
	Kind              VerdictKind
	Team              uint8
	Scratch           bool
	ObjectBallBlocked bool
	// CloseTable assigns colors; TeamColor is then the color of team 0.
	CloseTable bool
	TeamColor  uint8
}

// Referee applies the rules of the current game mode to a finished shot.
type Referee interface {
	Judge(state *types.GameStateData, pocketedThisShot uint16) Verdict
}
