package game

import (
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
)

// OnSimulationEnded is called by the simulator when the balls come to rest.
// positions are the final ball positions and pocketed the full pocketed mask.
// The shooter judges its own shot; everyone else waits for the owner's
// outcome and replays any snapshot deferred during the simulation.
func (r *Replica) OnSimulationEnded(positions [constants.BallCount]kinematic.Vector, pocketed uint16) {
	if !r.shotActive || !r.shotOurs {
		r.replayPending()
		return
	}
	r.shotOurs = false
	stateID := r.shotStateID
	r.replayPending()
	if r.state.TurnState != types.TurnStateBallInMotion || r.state.StateID != stateID {
		r.logger.Debug("Shot %d was superseded before it ended", stateID)
		return
	}
	r.resolveShot(positions, pocketed, types.UrgencyDeferred)
}

// resolveShot folds the result of a shot into the state and applies the
// referee's verdict as the owner.
func (r *Replica) resolveShot(positions [constants.BallCount]kinematic.Vector, pocketed uint16, urgency types.Urgency) {
	r.claim()
	r.state.BallPositions = positions
	r.state.BallsPocketed = pocketed
	r.state.CueBallVelocity = kinematic.Zero
	r.state.CueBallAngularVelocity = kinematic.Zero

	v := r.referee.Judge(&r.state, pocketed&^r.shotPocketedBase)
	r.logger.Debug("Shot %d verdict: %s for team %d", r.state.StateID, v.Kind, v.Team)
	r.applyVerdict(v)
	r.buffer.Mark(urgency)
}

func (r *Replica) applyVerdict(v Verdict) {
	if v.CloseTable {
		r.state.TableOpen = false
		r.state.TeamColor = v.TeamColor
	}
	switch v.Kind {
	case VerdictPass:
		r.OnTurnPass(v.Team)
	case VerdictContinue:
		r.OnTurnContinue()
	case VerdictFoul:
		r.OnTurnFoul(v.Team, v.Scratch, v.ObjectBallBlocked)
	case VerdictTie:
		r.OnTurnTie()
	case VerdictWin:
		r.OnGameWin(v.Team)
	default:
		r.logger.Warn("Unknown verdict %d", v.Kind)
	}
}

// recover runs when the table's ownership lands on this peer while it has
// unfinished work: a simulation, an unsent mutation or a deferred snapshot.
func (r *Replica) recover(prev, next types.PeerID) {
	local := r.LocalID()
	if r.claiming && next == local {
		// the held snapshot predates our claim; a sent or pending change
		// replaces it
		if r.gate.Pending() && (r.claimFlushed || r.buffer.Dirty()) {
			r.logger.Debug("Dropped snapshot held behind claim from %d", prev)
			r.gate.Drop()
		}
		r.claiming, r.claimFlushed = false, false
	}
	if next != local || prev == local {
		return
	}
	if !r.simulator.Running() && !r.shotActive && !r.buffer.Dirty() && !r.gate.Pending() {
		return
	}
	r.logger.Info("Recovering table after ownership transfer from %d", prev)

	if r.gate.Pending() && r.relevance.Relevant() {
		if r.simulator.Running() {
			r.simulator.Stop()
		}
		from, s, _ := r.gate.Take()
		r.apply(from, s)
	}
	r.declareAbandonedShot()
	r.Flush()
}

// OnPeerLeft resolves a shot whose shooter disconnected before announcing the
// outcome. Only the table owner acts.
func (r *Replica) OnPeerLeft(peer types.PeerID) {
	if !r.IsLocalOwner() || !r.shotActive || r.shooter != peer {
		return
	}
	r.declareAbandonedShot()
	r.Flush()
}

// declareAbandonedShot ends a shot in motion that nobody else will resolve.
func (r *Replica) declareAbandonedShot() {
	if r.state.TurnState != types.TurnStateBallInMotion || r.state.GameState != types.GameStateGameLive {
		return
	}
	if r.shooterActive() {
		return
	}
	positions := r.state.BallPositions
	if r.simulator.Running() {
		positions = r.simulator.Stop()
	}
	r.logger.Info("Declaring end of shot %d abandoned by %d", r.state.StateID, r.shooter)
	r.shotOurs = false
	r.resolveShot(positions, r.state.BallsPocketed, types.UrgencyImmediate)
}

// shooterActive reports whether the peer that started the current shot will
// still announce its outcome.
func (r *Replica) shooterActive() bool {
	if r.shooter == types.NoPeer {
		return false
	}
	if r.shooter == r.LocalID() {
		return r.simulator.Running()
	}
	if r.roster == nil {
		return false
	}
	for _, p := range r.roster.Peers() {
		if p == r.shooter {
			return true
		}
	}
	return false
}
