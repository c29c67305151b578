package game

import (
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
)

// Game modes understood by EightBallReferee.
const (
	GameModeEightBall uint8 = iota
	GameModeNineBall
	GameModeFourBall
)

const (
	eightBallIndex = 8
	solidsMask     = uint16(0b0000_0000_1111_1110)
	stripesMask    = uint16(0b1111_1110_0000_0000)
	cueBallMask    = uint16(1 << constants.CueBallIndex)
)

// EightBallReferee implements simplified eight-ball rules. Other game modes
// continue on any pocketed ball and pass otherwise.
type EightBallReferee struct{}

var _ Referee = EightBallReferee{}

func (EightBallReferee) Judge(state *types.GameStateData, pocketedThisShot uint16) Verdict {
	shooter := state.TeamID
	other := (shooter + 1) % constants.TeamCount
	scratch := pocketedThisShot&cueBallMask != 0
	objects := pocketedThisShot &^ cueBallMask

	if state.GameMode != GameModeEightBall {
		switch {
		case scratch:
			return Verdict{Kind: VerdictFoul, Team: other, Scratch: true}
		case objects != 0:
			return Verdict{Kind: VerdictContinue, Team: shooter}
		default:
			return Verdict{Kind: VerdictPass, Team: other}
		}
	}

	if objects&(1<<eightBallIndex) != 0 {
		group := groupMask(state, shooter)
		cleared := !state.TableOpen && (state.BallsPocketed|pocketedThisShot)&group == group
		if cleared && !scratch {
			return Verdict{Kind: VerdictWin, Team: shooter}
		}
		return Verdict{Kind: VerdictWin, Team: other}
	}
	if scratch {
		return Verdict{Kind: VerdictFoul, Team: other, Scratch: true}
	}
	if objects == 0 {
		return Verdict{Kind: VerdictPass, Team: other}
	}

	if state.TableOpen {
		// first pocketed object ball decides the shooter's color
		color := uint8(0)
		if objects&solidsMask == 0 {
			color = 1
		}
		return Verdict{Kind: VerdictContinue, Team: shooter, CloseTable: true, TeamColor: color ^ shooter}
	}
	if objects&groupMask(state, shooter) == 0 {
		return Verdict{Kind: VerdictPass, Team: other}
	}
	return Verdict{Kind: VerdictContinue, Team: shooter}
}

// groupMask returns the balls team must pocket before the eight ball.
// Color 0 is solids.
func groupMask(state *types.GameStateData, team uint8) uint16 {
	if (state.TeamColor^team)&1 == 0 {
		return solidsMask
	}
	return stripesMask
}
