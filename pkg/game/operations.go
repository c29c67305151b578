package game

import (
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/cbodonnell/cuesync/pkg/messages"
)

// Intent operations. The caller is about to act as the table authority, so
// each one claims ownership before mutating.

// OnGameStart racks the balls and starts a game.
func (r *Replica) OnGameStart(rack [constants.BallCount]kinematic.Vector) {
	switch r.state.GameState {
	case types.GameStateIdle, types.GameStateLobbyOpen, types.GameStateGameOver:
	default:
		r.logger.Debug("Ignored game start in %s", r.state.GameState)
		return
	}
	r.claim()
	s := &r.state
	s.BallPositions = rack
	s.CueBallVelocity = kinematic.Zero
	s.CueBallAngularVelocity = kinematic.Zero
	s.BallsPocketed = 0
	s.GameState = types.GameStateGameLive
	s.TurnState = types.TurnStateAwaitingShot
	s.FoulState = types.FoulStateNone
	s.TeamID = 0
	s.TableOpen = true
	s.ColorTurn = false
	s.WinningTeam = types.TeamNone
	s.FourBallScores = [constants.TeamCount]uint8{}
	s.TimerStartTimestamp = r.now().UnixMilli()
	r.commit(true, types.UrgencyDeferred)
}

// OnHitBall starts a shot with the given cue ball velocities.
func (r *Replica) OnHitBall(velocity, angularVelocity kinematic.Vector) {
	if r.state.GameState != types.GameStateGameLive || r.state.TurnState == types.TurnStateBallInMotion {
		r.logger.Debug("Ignored hit in %s/%s", r.state.GameState, r.state.TurnState)
		return
	}
	r.claim()
	r.state.CueBallVelocity = velocity
	r.state.CueBallAngularVelocity = angularVelocity
	r.state.TurnState = types.TurnStateBallInMotion
	r.commit(true, types.UrgencyDeferred)
}

// PrepareShoot claims the table and tells the other peers a shot is coming.
func (r *Replica) PrepareShoot() {
	if r.state.GameState != types.GameStateGameLive || r.state.TurnState == types.TurnStateBallInMotion {
		return
	}
	r.claim()
	m, err := messages.NewControlMessage(r.LocalID(), messages.MessageTypePrepareShoot, r.Entity(), messages.PrepareShoot{TeamID: r.state.TeamID})
	if err != nil {
		r.logger.Error("Failed to build prepare shoot: %v", err)
		return
	}
	if err := r.Send(m.Type, m.Payload); err != nil {
		r.logger.Error("Failed to send prepare shoot: %v", err)
	}
}

// OnLobbyOpened opens registration on an idle table.
func (r *Replica) OnLobbyOpened() {
	if r.state.GameState != types.GameStateIdle {
		return
	}
	r.claim()
	r.state.GameState = types.GameStateLobbyOpen
	r.commit(true, types.UrgencyDeferred)
}

// OnLobbyClosed closes registration and clears the seats.
func (r *Replica) OnLobbyClosed() {
	if r.state.GameState != types.GameStateLobbyOpen {
		return
	}
	r.claim()
	r.state.GameState = types.GameStateIdle
	r.state.ClearSeats()
	r.commit(true, types.UrgencyDeferred)
}

// OnGameReset returns the table to idle with the rack restored and the seats
// cleared. It preempts any simulation on every peer.
func (r *Replica) OnGameReset() {
	r.claim()
	if r.simulator.Running() {
		r.simulator.Stop()
	}
	r.resetToIdle()
	r.commit(true, types.UrgencyImmediate)
}

func (r *Replica) resetToIdle() {
	s := &r.state
	s.BallPositions = r.rack
	s.CueBallVelocity = kinematic.Zero
	s.CueBallAngularVelocity = kinematic.Zero
	s.BallsPocketed = 0
	s.GameState = types.GameStateIdle
	s.TurnState = types.TurnStateAwaitingShot
	s.FoulState = types.FoulStateNone
	s.TeamID = 0
	s.TableOpen = true
	s.ColorTurn = false
	s.WinningTeam = types.TeamNone
	s.FourBallScores = [constants.TeamCount]uint8{}
	s.TimerStartTimestamp = 0
	s.ClearSeats()
}

// OnRepositionBalls moves the balls, for ball in hand or table setup.
// Placements off the table or with overlapping balls are ignored.
func (r *Replica) OnRepositionBalls(positions [constants.BallCount]kinematic.Vector) {
	if r.state.TurnState == types.TurnStateBallInMotion {
		return
	}
	if err := ValidatePlacement(tableModel(&r.state), positions, r.state.BallsPocketed); err != nil {
		r.logger.Debug("Ignored reposition: %v", err)
		return
	}
	r.claim()
	r.state.BallPositions = positions
	r.commit(true, types.UrgencyDeferred)
}

// settings applies a lobby setting change. Settings are frozen while a game
// is live.
func (r *Replica) settings(change func(s *types.GameStateData)) {
	if r.state.GameState == types.GameStateGameLive {
		return
	}
	r.claim()
	change(&r.state)
	r.commit(true, types.UrgencyDeferred)
}

// OnTableModelChanged switches the table model. Unknown models are ignored.
func (r *Replica) OnTableModelChanged(id uint8) {
	if _, ok := constants.TableModelByID(id); !ok {
		return
	}
	r.settings(func(s *types.GameStateData) { s.TableModelID = id })
}

func (r *Replica) OnPhysicsVariantChanged(id uint8) {
	r.settings(func(s *types.GameStateData) { s.PhysicsVariantID = id })
}

func (r *Replica) OnGameModeChanged(mode uint8) {
	r.settings(func(s *types.GameStateData) { s.GameMode = mode })
}

func (r *Replica) OnTeamsChanged(enabled bool) {
	r.settings(func(s *types.GameStateData) { s.TeamsEnabled = enabled })
}

func (r *Replica) OnGuidelineChanged(disabled bool) {
	r.settings(func(s *types.GameStateData) { s.NoGuideline = disabled })
}

func (r *Replica) OnLockingChanged(disabled bool) {
	r.settings(func(s *types.GameStateData) { s.NoLocking = disabled })
}

func (r *Replica) OnTimerChanged(seconds uint32) {
	r.settings(func(s *types.GameStateData) { s.TimerSeconds = seconds })
}

// Outcome operations. Only the current owner may decide the outcome of a
// turn; for anyone else these are silent no-ops.

// OnTurnPass hands the turn to nextTeam.
func (r *Replica) OnTurnPass(nextTeam uint8) {
	if !r.turnOutcomeAllowed() {
		return
	}
	r.endTurn(nextTeam, types.TurnStateAwaitingShot, types.FoulStateNone)
	r.state.ColorTurn = !r.state.ColorTurn
	r.commit(true, types.UrgencyDeferred)
}

// OnTurnContinue keeps the turn with the current team.
func (r *Replica) OnTurnContinue() {
	if !r.turnOutcomeAllowed() {
		return
	}
	r.endTurn(r.state.TeamID, types.TurnStateAwaitingShot, types.FoulStateNone)
	r.commit(true, types.UrgencyDeferred)
}

// OnTurnFoul gives team ball in hand. A scratched cue ball returns to its
// rack position.
func (r *Replica) OnTurnFoul(team uint8, scratch, objectBallBlocked bool) {
	if !r.turnOutcomeAllowed() {
		return
	}
	foul := types.FoulStateFoul
	switch {
	case scratch:
		foul = types.FoulStateScratch
	case objectBallBlocked:
		foul = types.FoulStateObjectBallBlocked
	}
	r.endTurn(team, types.TurnStateFoulOrTieRecovery, foul)
	if scratch {
		r.state.BallsPocketed &^= cueBallMask
		r.state.BallPositions[constants.CueBallIndex] = r.rack[constants.CueBallIndex]
	}
	r.commit(true, types.UrgencyDeferred)
}

// OnTurnTie ends the turn without a winner.
func (r *Replica) OnTurnTie() {
	if !r.turnOutcomeAllowed() {
		return
	}
	r.endTurn(r.state.TeamID, types.TurnStateFoulOrTieRecovery, types.FoulStateNone)
	r.commit(true, types.UrgencyDeferred)
}

// OnGameWin ends the game.
func (r *Replica) OnGameWin(winner uint8) {
	if !r.IsLocalOwner() || r.state.GameState != types.GameStateGameLive {
		return
	}
	r.endTurn(r.state.TeamID, types.TurnStateAwaitingShot, r.state.FoulState)
	r.state.GameState = types.GameStateGameOver
	r.state.WinningTeam = winner
	r.commit(true, types.UrgencyDeferred)
}

func (r *Replica) turnOutcomeAllowed() bool {
	return r.IsLocalOwner() && r.state.GameState == types.GameStateGameLive
}

func (r *Replica) endTurn(team uint8, turn types.TurnState, foul types.FoulState) {
	r.state.TeamID = team
	r.state.TurnState = turn
	r.state.FoulState = foul
	r.state.CueBallVelocity = kinematic.Zero
	r.state.CueBallAngularVelocity = kinematic.Zero
	r.state.TimerStartTimestamp = r.now().UnixMilli()
}

// SetSeatOccupant records peer in seat index and removes it from any other
// seat. Membership does not advance the state id. Owner only.
func (r *Replica) SetSeatOccupant(index int, peer types.PeerID) bool {
	if !r.IsLocalOwner() || index < 0 || index >= constants.SeatCount {
		return false
	}
	changed := false
	if peer != types.NoPeer {
		for i, id := range r.state.PlayerSeatIDs {
			if i != index && id == peer {
				r.state.PlayerSeatIDs[i] = types.NoPeer
				changed = true
			}
		}
	}
	if r.state.PlayerSeatIDs[index] != peer {
		r.state.PlayerSeatIDs[index] = peer
		changed = true
	}
	if changed {
		r.commit(false, types.UrgencyDeferred)
	}
	return changed
}

// ReconcileSeats clears seats whose occupant is no longer connected.
// Owner only; reports whether anything changed.
func (r *Replica) ReconcileSeats(connected func(types.PeerID) bool) bool {
	if !r.IsLocalOwner() {
		return false
	}
	changed := false
	for i, id := range r.state.PlayerSeatIDs {
		if id != types.NoPeer && !connected(id) {
			r.logger.Info("Cleared seat %d of disconnected peer %d", i, id)
			r.state.PlayerSeatIDs[i] = types.NoPeer
			changed = true
		}
	}
	if changed {
		r.commit(false, types.UrgencyDeferred)
	}
	return changed
}

// AutoReset returns a table whose last seat emptied to idle. It does nothing
// while a game is live or a seat is still occupied. Owner only.
func (r *Replica) AutoReset() bool {
	if !r.IsLocalOwner() || r.state.GameState == types.GameStateGameLive || r.state.GameState == types.GameStateIdle {
		return false
	}
	if r.state.OccupiedSeats() > 0 {
		return false
	}
	r.resetToIdle()
	r.commit(true, types.UrgencyDeferred)
	return true
}
