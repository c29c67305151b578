package table

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cbodonnell/cuesync/pkg/game"
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/cbodonnell/cuesync/pkg/network"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"github.com/cbodonnell/cuesync/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTable struct {
	*Table
	link  *network.BusPeer
	state *state.InMemoryStateManager
}

func joinTable(t *testing.T, bus *network.Bus, reconcileInterval int) *testTable {
	t.Helper()
	inbox := queue.NewInMemoryQueue(256)
	link, err := bus.Join(inbox)
	require.NoError(t, err)
	sm := state.NewInMemoryStateManager("main")
	return &testTable{
		Table: New(NewTableOptions{
			TableID:           "main",
			Transport:         link,
			Inbox:             inbox,
			Simulator:         game.NewHeadlessSimulator(game.NewHeadlessSimulatorOptions{}),
			StateManager:      sm,
			ReconcileInterval: reconcileInterval,
		}),
		link:  link,
		state: sm,
	}
}

func newTestTables(t *testing.T, n int) (*network.Bus, []*testTable) {
	t.Helper()
	bus := network.NewBus()
	var tables []*testTable
	for i := 0; i < n; i++ {
		tables = append(tables, joinTable(t, bus, 1000))
	}
	tickAll(t, tables...)
	return bus, tables
}

func tickAll(t *testing.T, tables ...*testTable) {
	t.Helper()
	for _, tt := range tables {
		require.NoError(t, tt.Tick(context.Background(), time.Now()))
	}
}

func seatIDs(tt *testTable) [constants.SeatCount]types.PeerID {
	return tt.Replica().State().PlayerSeatIDs
}

func TestTable_SeatMembership(t *testing.T) {
	_, tables := newTestTables(t, 3)
	a, b, c := tables[0], tables[1], tables[2]

	a.Replica().OnLobbyOpened()
	tickAll(t, tables...)

	b.Seats().JoinSlot(0)
	tickAll(t, tables...)
	for _, tt := range tables {
		assert.Equal(t, [constants.SeatCount]types.PeerID{2, 0, 0, 0}, seatIDs(tt))
	}

	// the seat is held by a connected peer
	c.Seats().JoinSlot(0)
	tickAll(t, tables...)
	assert.Equal(t, [constants.SeatCount]types.PeerID{2, 0, 0, 0}, seatIDs(c))

	// moving seats frees the old one
	b.Seats().JoinSlot(1)
	c.Seats().JoinSlot(0)
	tickAll(t, tables...)
	tickAll(t, tables...)
	assert.Equal(t, [constants.SeatCount]types.PeerID{3, 2, 0, 0}, seatIDs(a))
	assert.Equal(t, seatIDs(a), seatIDs(b))

	// registration is closed during a game
	a.Replica().OnGameStart(game.StandardRack(constants.TableModels[0]))
	tickAll(t, tables...)
	a.Seats().JoinSlot(2)
	tickAll(t, tables...)
	assert.Equal(t, [constants.SeatCount]types.PeerID{3, 2, 0, 0}, seatIDs(a))
	assert.Equal(t, uint32(2), a.Replica().State().StateID, "membership does not advance the state id")
}

func TestTable_LastLeaveResets(t *testing.T) {
	_, tables := newTestTables(t, 2)
	a, b := tables[0], tables[1]

	a.Replica().OnLobbyOpened()
	tickAll(t, tables...)
	b.Seats().JoinSlot(3)
	tickAll(t, tables...)
	require.Equal(t, types.PeerID(2), seatIDs(b)[3])

	b.Seats().LeaveSlot(3)
	tickAll(t, tables...)
	for _, tt := range tables {
		assert.Equal(t, types.GameStateIdle, tt.Replica().State().GameState)
		assert.Equal(t, 0, tt.Replica().State().OccupiedSeats())
	}
}

func TestTable_DisconnectClearsSeat(t *testing.T) {
	_, tables := newTestTables(t, 3)
	a, b, c := tables[0], tables[1], tables[2]

	a.Replica().OnLobbyOpened()
	tickAll(t, tables...)
	b.Seats().JoinSlot(0)
	c.Seats().JoinSlot(1)
	tickAll(t, tables...)
	require.Equal(t, 2, a.Replica().State().OccupiedSeats())

	require.NoError(t, b.link.Close())
	tickAll(t, a, c)
	assert.Equal(t, [constants.SeatCount]types.PeerID{0, 3, 0, 0}, seatIDs(a))
	assert.Equal(t, seatIDs(a), seatIDs(c))
	assert.Equal(t, types.GameStateLobbyOpen, c.Replica().State().GameState)
}

func TestTable_PeriodicReconcile(t *testing.T) {
	bus := network.NewBus()
	a := joinTable(t, bus, 2)

	a.Replica().OnLobbyOpened()
	require.True(t, a.Replica().SetSeatOccupant(1, 99))
	tickAll(t, a)
	assert.Equal(t, types.PeerID(99), seatIDs(a)[1])

	tickAll(t, a)
	assert.Equal(t, types.NoPeer, seatIDs(a)[1])
	assert.Equal(t, types.GameStateIdle, a.Replica().State().GameState)
}

func TestTable_LateJoinerCatchesUp(t *testing.T) {
	bus, tables := newTestTables(t, 1)
	a := tables[0]

	a.Replica().OnGameStart(game.StandardRack(constants.TableModels[0]))
	a.Cue(0).Grab(false)
	a.Cue(0).LockPrimary(kinematic.Vector{X: 0.5}, kinematic.Vector{X: 1})
	tickAll(t, a)

	d := joinTable(t, bus, 1000)
	tickAll(t, a, d)
	assert.Equal(t, a.Replica().State(), d.Replica().State())
	assert.Equal(t, a.Cue(0).State(), d.Cue(0).State())
}

func TestTable_LateJoinerSeesPreviousOwner(t *testing.T) {
	bus, tables := newTestTables(t, 1)
	a := tables[0]
	a.Replica().OnGameStart(game.StandardRack(constants.TableModels[0]))
	tickAll(t, a)

	d := joinTable(t, bus, 1000)
	var transfers [][2]types.PeerID
	d.Replica().OnTransfer(func(prev, next types.PeerID) {
		transfers = append(transfers, [2]types.PeerID{prev, next})
	})
	tickAll(t, a, d)
	assert.Equal(t, a.link.LocalID(), d.Replica().Confirmed())

	require.NoError(t, a.link.Close())
	tickAll(t, d)
	assert.Equal(t, [][2]types.PeerID{{a.link.LocalID(), d.link.LocalID()}}, transfers)
	assert.True(t, d.Replica().IsLocalOwner())
}

func TestTable_ShotResolves(t *testing.T) {
	_, tables := newTestTables(t, 2)
	a, b := tables[0], tables[1]

	a.Replica().OnGameStart(game.StandardRack(constants.TableModels[0]))
	tickAll(t, tables...)
	a.Replica().OnHitBall(kinematic.Vector{X: 1}, kinematic.Zero)
	tickAll(t, tables...)
	require.Equal(t, types.TurnStateBallInMotion, b.Replica().State().TurnState)

	for i := 0; i < 40; i++ {
		tickAll(t, tables...)
	}
	got := a.Replica().State()
	assert.Equal(t, types.TurnStateAwaitingShot, got.TurnState)
	assert.Equal(t, uint8(1), got.TeamID)
	assert.Greater(t, got.BallPositions[0].X, float32(-0.635))
	assert.Equal(t, got, b.Replica().State())

	published, err := b.state.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, published.Game)
	assert.Equal(t, []types.PeerID{1, 2}, published.Peers)
	assert.Equal(t, types.PeerID(1), published.Owner)
}

func TestTable_Submit(t *testing.T) {
	bus := network.NewBus()
	inbox := queue.NewInMemoryQueue(64)
	link, err := bus.Join(inbox)
	require.NoError(t, err)
	sm := state.NewInMemoryStateManager("main")
	tbl := New(NewTableOptions{
		TableID:      "main",
		Transport:    link,
		Inbox:        inbox,
		Simulator:    game.NewHeadlessSimulator(game.NewHeadlessSimulatorOptions{}),
		StateManager: sm,
		TickInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tbl.Start(ctx) }()

	err = tbl.Submit(ctx, func(t *Table) error {
		t.Replica().OnLobbyOpened()
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tbl.Submit(ctx, func(*Table) error { return boom })
	assert.ErrorIs(t, err, boom)

	require.Eventually(t, func() bool {
		s, err := sm.Get(context.Background())
		return err == nil && s.Game.GameState == types.GameStateLobbyOpen
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	err = tbl.Submit(context.Background(), func(*Table) error { return nil })
	assert.ErrorIs(t, err, ErrTableStopped)
}
