package game

import (
	"testing"

	"github.com/cbodonnell/cuesync/pkg/codec"
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/network"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSimulator struct {
	running   bool
	started   []types.GameStateData
	positions [constants.BallCount]kinematic.Vector
	stops     int
}

func (f *fakeSimulator) Start(s types.GameStateData) {
	f.running = true
	f.started = append(f.started, s)
	f.positions = s.BallPositions
}

func (f *fakeSimulator) Stop() [constants.BallCount]kinematic.Vector {
	f.running = false
	f.stops++
	return f.positions
}

func (f *fakeSimulator) Running() bool {
	return f.running
}

type fakeRelevance struct {
	relevant bool
}

func (f *fakeRelevance) Relevant() bool {
	return f.relevant
}

type testPeer struct {
	link      *network.BusPeer
	inbox     queue.Queue
	replica   *Replica
	simulator *fakeSimulator
	relevance *fakeRelevance
}

// pump delivers the peer's pending envelopes the way the table orchestrator does.
func (p *testPeer) pump(t *testing.T) {
	t.Helper()
	for _, item := range p.inbox.ReadAllMessages() {
		m, ok := item.(*messages.Message)
		require.True(t, ok)
		switch m.Type {
		case messages.MessageTypeOwnershipTransfer:
			if m.Entity != types.TableEntity {
				continue
			}
			var transfer messages.OwnershipTransfer
			require.NoError(t, m.DecodePayload(&transfer))
			p.replica.OnOwnershipTransfer(transfer.Owner)
		case messages.MessageTypePeerLeft:
			var notice messages.PeerNotice
			require.NoError(t, m.DecodePayload(&notice))
			p.replica.OnPeerLeft(notice.Peer)
		case messages.MessageTypeSnapshot, messages.MessageTypePrepareShoot:
			p.replica.OnReceive(m)
		}
	}
}

func testRack() [constants.BallCount]kinematic.Vector {
	return StandardRack(constants.TableModels[0])
}

func newTestSession(t *testing.T, n int) []*testPeer {
	t.Helper()
	bus := network.NewBus()
	peers := make([]*testPeer, 0, n)
	for i := 0; i < n; i++ {
		inbox := queue.NewInMemoryQueue(64)
		link, err := bus.Join(inbox)
		require.NoError(t, err)
		p := &testPeer{
			link:      link,
			inbox:     inbox,
			simulator: &fakeSimulator{},
			relevance: &fakeRelevance{relevant: true},
		}
		p.replica = NewReplica(NewReplicaOptions{
			Link:      link,
			Roster:    link,
			Rack:      testRack(),
			Simulator: p.simulator,
			Relevance: p.relevance,
		})
		peers = append(peers, p)
	}
	pumpAll(t, peers)
	return peers
}

func pumpAll(t *testing.T, peers []*testPeer) {
	t.Helper()
	for _, p := range peers {
		p.pump(t)
	}
}

func TestReplica_StateIDMonotonic(t *testing.T) {
	peers := newTestSession(t, 1)
	r := peers[0].replica

	steps := []struct {
		name    string
		op      func()
		advance bool
	}{
		{name: "open lobby", op: r.OnLobbyOpened, advance: true},
		{name: "seat", op: func() { r.SetSeatOccupant(0, 1) }, advance: false},
		{name: "start", op: func() { r.OnGameStart(testRack()) }, advance: true},
		{name: "hit", op: func() { r.OnHitBall(kinematic.Vector{X: 1}, kinematic.Zero) }, advance: true},
		{name: "shot ends", op: func() {
			peers[0].simulator.running = false
			r.OnSimulationEnded(peers[0].simulator.positions, 0)
		}, advance: true},
		{name: "reset", op: r.OnGameReset, advance: true},
	}
	last := r.State().StateID
	for _, step := range steps {
		step.op()
		r.Flush()
		got := r.State().StateID
		if step.advance {
			assert.Greater(t, got, last, step.name)
		} else {
			assert.Equal(t, last, got, step.name)
		}
		last = got
	}
}

func TestReplica_FlushSelfApplies(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]

	var applied []types.PeerID
	a.replica.OnApply(func(from types.PeerID, prev, next types.GameStateData) {
		applied = append(applied, from)
	})

	a.replica.Flush()
	assert.Empty(t, applied, "a clean buffer does not flush")

	a.replica.OnGameStart(testRack())
	assert.True(t, a.replica.Dirty())
	a.replica.Flush()
	assert.False(t, a.replica.Dirty())
	assert.Equal(t, []types.PeerID{a.link.LocalID()}, applied)

	pumpAll(t, peers)
	assert.Equal(t, a.replica.State(), b.replica.State())
	assert.Equal(t, types.GameStateGameLive, b.replica.State().GameState)
}

func TestReplica_OutcomeRequiresOwnership(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]

	a.replica.OnGameStart(testRack())
	a.replica.Flush()
	pumpAll(t, peers)
	before := b.replica.State()

	b.replica.OnTurnPass(1)
	b.replica.OnTurnContinue()
	b.replica.OnTurnFoul(1, true, false)
	b.replica.OnTurnTie()
	b.replica.OnGameWin(1)
	assert.False(t, b.replica.SetSeatOccupant(0, b.link.LocalID()))
	assert.False(t, b.replica.ReconcileSeats(func(types.PeerID) bool { return false }))

	assert.False(t, b.replica.Dirty())
	assert.Equal(t, before, b.replica.State())

	// an intent operation takes the table over
	b.replica.OnHitBall(kinematic.Vector{X: 1}, kinematic.Zero)
	b.replica.Flush()
	pumpAll(t, peers)
	assert.True(t, b.replica.IsLocalOwner())
	assert.False(t, a.replica.IsLocalOwner())
	assert.Equal(t, types.TurnStateBallInMotion, a.replica.State().TurnState)
}

func TestReplica_DeferralGate(t *testing.T) {
	tests := []struct {
		name        string
		relevant    bool
		simulating  bool
		reset       bool
		wantApplied bool
		wantStopped bool
	}{
		{name: "relevant idle applies", relevant: true, wantApplied: true},
		{name: "not relevant defers", relevant: false},
		{name: "simulating defers deferred", relevant: true, simulating: true},
		{name: "simulating preempted by immediate", relevant: true, simulating: true, reset: true, wantApplied: true, wantStopped: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peers := newTestSession(t, 2)
			a, b := peers[0], peers[1]
			a.replica.OnLobbyOpened()
			a.replica.Flush()
			pumpAll(t, peers)

			b.relevance.relevant = tt.relevant
			b.simulator.running = tt.simulating
			if tt.reset {
				a.replica.OnGameReset()
			} else {
				a.replica.OnTeamsChanged(true)
			}
			a.replica.Flush()
			pumpAll(t, peers)

			if tt.wantApplied {
				assert.Equal(t, a.replica.State(), b.replica.State())
				assert.False(t, b.replica.PendingApply())
			} else {
				assert.NotEqual(t, a.replica.State().StateID, b.replica.State().StateID)
				assert.True(t, b.replica.PendingApply())
			}
			assert.Equal(t, tt.wantStopped, b.simulator.stops > 0)

			// the deferred snapshot is replayed once it is safe
			b.relevance.relevant = true
			if b.simulator.running {
				b.simulator.running = false
				b.replica.OnSimulationEnded(b.simulator.positions, 0)
			} else {
				b.replica.OnRelevanceChanged()
			}
			assert.Equal(t, a.replica.State(), b.replica.State())
			assert.False(t, b.replica.PendingApply())
		})
	}
}

func TestReplica_PendingKeepsLatest(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]
	b.relevance.relevant = false

	a.replica.OnLobbyOpened()
	a.replica.Flush()
	a.replica.OnTimerChanged(30)
	a.replica.Flush()
	pumpAll(t, peers)

	b.relevance.relevant = true
	b.replica.OnRelevanceChanged()
	assert.Equal(t, uint32(30), b.replica.State().TimerSeconds)
	assert.Equal(t, a.replica.State().StateID, b.replica.State().StateID)
}

func TestReplica_HeldImmediatePreemptsOnRelevance(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]
	shoot(t, peers, a)

	b.relevance.relevant = false
	a.replica.OnGameReset()
	a.replica.Flush()
	pumpAll(t, peers)
	require.True(t, b.replica.PendingApply())
	require.True(t, b.simulator.running)

	// the reset is immediate, so it stops the shot still rolling on b
	b.relevance.relevant = true
	b.replica.OnRelevanceChanged()
	assert.False(t, b.replica.PendingApply())
	assert.False(t, b.simulator.running)
	assert.Equal(t, types.GameStateIdle, b.replica.State().GameState)
	assert.Equal(t, a.replica.State(), b.replica.State())
}

func TestReplica_ConcurrentClaimsLeaveOneOwner(t *testing.T) {
	tests := []struct {
		name  string
		first int
	}{
		{name: "owner claims first", first: 0},
		{name: "observer claims first", first: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peers := newTestSession(t, 2)
			peers[0].replica.OnGameStart(testRack())
			peers[0].replica.Flush()
			pumpAll(t, peers)

			loser, winner := peers[tt.first], peers[1-tt.first]
			loser.replica.TakeOwnership()
			winner.replica.TakeOwnership()
			pumpAll(t, peers)

			assert.True(t, winner.replica.IsLocalOwner())
			assert.False(t, loser.replica.IsLocalOwner())
			assert.Equal(t, winner.link.LocalID(), loser.replica.Owner())

			before := loser.replica.State()
			loser.replica.OnTurnPass(1)
			assert.False(t, loser.replica.Dirty())
			assert.Equal(t, before, loser.replica.State())

			winner.replica.OnTurnPass(1)
			assert.True(t, winner.replica.Dirty())
			winner.replica.Flush()
			pumpAll(t, peers)
			assert.Equal(t, winner.replica.State(), loser.replica.State())
			assert.Equal(t, uint8(1), loser.replica.State().TeamID)
		})
	}
}

func TestReplica_ClaimHoldsEarlierSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		claim     func(r *Replica)
		wantModel uint8
	}{
		{name: "unsent change survives", claim: func(r *Replica) { r.OnTableModelChanged(1) }, wantModel: 1},
		{name: "sent change survives", claim: func(r *Replica) {
			r.OnTableModelChanged(1)
			r.Flush()
		}, wantModel: 1},
		{name: "bare claim takes the earlier snapshot", claim: func(r *Replica) { r.TakeOwnership() }, wantModel: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peers := newTestSession(t, 2)
			a, b := peers[0], peers[1]
			a.replica.OnLobbyOpened()
			a.replica.Flush()
			pumpAll(t, peers)

			// a's snapshot is ordered before b's claim but b has not seen it yet
			a.replica.OnTableModelChanged(2)
			a.replica.Flush()
			tt.claim(b.replica)

			b.pump(t)
			assert.True(t, b.replica.IsLocalOwner())
			assert.False(t, b.replica.PendingApply())
			assert.Equal(t, tt.wantModel, b.replica.State().TableModelID)

			b.replica.Flush()
			pumpAll(t, peers)
			assert.False(t, a.replica.IsLocalOwner())
			assert.Equal(t, b.replica.State(), a.replica.State())
			assert.Equal(t, tt.wantModel, a.replica.State().TableModelID)
		})
	}
}

// shoot starts a game and has shooter hit the cue ball.
func shoot(t *testing.T, peers []*testPeer, shooter *testPeer) {
	t.Helper()
	shooter.replica.OnGameStart(testRack())
	shooter.replica.Flush()
	pumpAll(t, peers)
	shooter.replica.OnHitBall(kinematic.Vector{X: 2}, kinematic.Vector{Y: 5})
	shooter.replica.Flush()
	pumpAll(t, peers)
	for _, p := range peers {
		require.True(t, p.simulator.running, "peer %d simulates the shot", p.link.LocalID())
		require.Equal(t, types.TurnStateBallInMotion, p.replica.State().TurnState)
	}
}

func TestReplica_ShooterResolvesShot(t *testing.T) {
	peers := newTestSession(t, 3)
	a, b, c := peers[0], peers[1], peers[2]
	shoot(t, peers, a)

	// ball 1 drops; the table closes with team 0 on solids
	a.simulator.running = false
	a.replica.OnSimulationEnded(a.simulator.positions, 1<<1)
	a.replica.Flush()
	pumpAll(t, peers)

	want := a.replica.State()
	assert.Equal(t, types.TurnStateAwaitingShot, want.TurnState)
	assert.False(t, want.TableOpen)
	assert.Equal(t, uint8(0), want.TeamID)
	assert.True(t, want.CueBallVelocity.IsZero())

	// observers hold the outcome until their own simulation ends
	for _, p := range []*testPeer{b, c} {
		assert.True(t, p.replica.PendingApply())
		p.simulator.running = false
		p.replica.OnSimulationEnded(p.simulator.positions, 1<<1)
		assert.Equal(t, want, p.replica.State())
		assert.False(t, p.replica.Dirty(), "observers never announce an outcome")
	}
}

func TestReplica_OwnerLeavesMidShot(t *testing.T) {
	tests := []struct {
		name    string
		shooter int
		heir    int
	}{
		// the heir learns about the table through an ownership transfer
		{name: "claimed table", shooter: 1, heir: 0},
		// nobody claimed the table; the heir is the new earliest peer
		{name: "default owner", shooter: 0, heir: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peers := newTestSession(t, 3)
			shooter, heir, observer := peers[tt.shooter], peers[tt.heir], peers[2]
			shoot(t, peers, shooter)
			shotID := heir.replica.State().StateID

			require.NoError(t, shooter.link.Close())
			heir.pump(t)

			assert.True(t, heir.replica.IsLocalOwner())
			assert.False(t, heir.simulator.running)
			got := heir.replica.State()
			assert.Equal(t, types.TurnStateAwaitingShot, got.TurnState)
			assert.Equal(t, uint8(1), got.TeamID, "nothing pocketed passes the turn")
			assert.Greater(t, got.StateID, shotID)
			assert.Equal(t, types.UrgencyImmediate, got.Urgency)

			observer.pump(t)
			assert.Equal(t, 1, observer.simulator.stops, "the recovery snapshot preempts the observer")
			assert.Equal(t, got, observer.replica.State())
			assert.False(t, observer.replica.Dirty())
		})
	}
}

func TestReplica_OwnerLeavesAfterObserversFinished(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]
	shoot(t, peers, a)

	b.simulator.running = false
	b.replica.OnSimulationEnded(b.simulator.positions, 0)
	require.NoError(t, a.link.Close())
	b.pump(t)

	assert.Equal(t, types.TurnStateAwaitingShot, b.replica.State().TurnState)
	assert.False(t, b.replica.Dirty())
}

func TestReplica_PrepareShoot(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]
	a.replica.OnGameStart(testRack())
	a.replica.Flush()
	pumpAll(t, peers)

	var announced []uint8
	a.replica.OnPrepareShoot(func(from types.PeerID, teamID uint8) {
		assert.Equal(t, b.link.LocalID(), from)
		announced = append(announced, teamID)
	})
	b.replica.PrepareShoot()
	pumpAll(t, peers)

	assert.Equal(t, []uint8{0}, announced)
	assert.True(t, b.replica.IsLocalOwner())
}

func TestReplica_SnapshotImport(t *testing.T) {
	peers := newTestSession(t, 2)
	a, b := peers[0], peers[1]

	a.replica.OnGameStart(testRack())
	a.replica.Flush()
	text, err := a.replica.ExportSnapshot(codec.TextV3)
	require.NoError(t, err)
	a.replica.OnGameReset()
	a.replica.Flush()
	pumpAll(t, peers)

	before := b.replica.State()
	err = b.replica.ImportSnapshot("v3:not*base64")
	require.ErrorIs(t, err, codec.ErrMalformedSnapshot)
	assert.Equal(t, before, b.replica.State())
	assert.False(t, b.replica.Dirty())

	require.NoError(t, b.replica.ImportSnapshot(text))
	b.replica.Flush()
	pumpAll(t, peers)

	got := a.replica.State()
	assert.Equal(t, types.GameStateGameLive, got.GameState)
	assert.Equal(t, before.StateID+1, got.StateID)
	assert.Equal(t, types.UrgencyImmediate, got.Urgency)
	assert.True(t, b.replica.IsLocalOwner())
}

func TestReplica_RepositionBalls(t *testing.T) {
	peers := newTestSession(t, 1)
	r := peers[0].replica

	overlapping := testRack()
	overlapping[2] = overlapping[1]
	r.OnRepositionBalls(overlapping)
	assert.False(t, r.Dirty())

	offTable := testRack()
	offTable[0] = kinematic.Vector{X: 2}
	r.OnRepositionBalls(offTable)
	assert.False(t, r.Dirty())

	moved := testRack()
	moved[0] = kinematic.Vector{}
	r.OnRepositionBalls(moved)
	r.Flush()
	assert.Equal(t, moved, r.State().BallPositions)
	assert.Equal(t, uint32(1), r.State().StateID)
}

func TestReplica_Settings(t *testing.T) {
	peers := newTestSession(t, 1)
	r := peers[0].replica

	r.OnTableModelChanged(1)
	r.OnTableModelChanged(200)
	r.OnPhysicsVariantChanged(2)
	r.OnGameModeChanged(GameModeNineBall)
	r.OnTeamsChanged(true)
	r.OnGuidelineChanged(true)
	r.OnLockingChanged(true)
	r.OnTimerChanged(45)
	r.Flush()

	s := r.State()
	assert.Equal(t, uint8(1), s.TableModelID)
	assert.Equal(t, uint8(2), s.PhysicsVariantID)
	assert.Equal(t, GameModeNineBall, s.GameMode)
	assert.True(t, s.TeamsEnabled)
	assert.True(t, s.NoGuideline)
	assert.True(t, s.NoLocking)
	assert.Equal(t, uint32(45), s.TimerSeconds)
	assert.Equal(t, uint32(7), s.StateID)

	// settings are frozen during a game
	r.OnGameStart(testRack())
	r.OnTimerChanged(10)
	r.Flush()
	assert.Equal(t, uint32(45), r.State().TimerSeconds)
}

func TestReplica_Seats(t *testing.T) {
	peers := newTestSession(t, 1)
	r := peers[0].replica
	r.OnLobbyOpened()
	r.Flush()

	assert.True(t, r.SetSeatOccupant(0, 7))
	assert.False(t, r.SetSeatOccupant(0, 7))
	assert.True(t, r.SetSeatOccupant(2, 7))
	assert.False(t, r.SetSeatOccupant(4, 7))
	r.Flush()
	assert.Equal(t, [constants.SeatCount]types.PeerID{0, 0, 7, 0}, r.State().PlayerSeatIDs)
	assert.Equal(t, uint32(1), r.State().StateID)

	assert.False(t, r.AutoReset(), "an occupied table is not reset")
	assert.True(t, r.ReconcileSeats(func(p types.PeerID) bool { return p != 7 }))
	assert.False(t, r.ReconcileSeats(func(p types.PeerID) bool { return p != 7 }))
	assert.True(t, r.AutoReset())
	r.Flush()
	assert.Equal(t, types.GameStateIdle, r.State().GameState)
	assert.Equal(t, uint32(2), r.State().StateID)
}

func TestReplica_TurnFoulRespotsCueBall(t *testing.T) {
	peers := newTestSession(t, 1)
	r := peers[0].replica
	r.OnGameStart(testRack())
	r.Flush()

	moved := testRack()
	moved[0] = kinematic.Vector{X: 0.2, Z: 0.1}
	r.OnRepositionBalls(moved)
	r.OnTurnFoul(1, true, false)
	r.Flush()

	s := r.State()
	assert.Equal(t, types.FoulStateScratch, s.FoulState)
	assert.Equal(t, types.TurnStateFoulOrTieRecovery, s.TurnState)
	assert.Equal(t, uint8(1), s.TeamID)
	assert.Equal(t, testRack()[0], s.BallPositions[0])
	assert.False(t, s.IsPocketed(0))
}
