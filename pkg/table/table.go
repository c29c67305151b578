package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/cuesync/pkg/cuelock"
	"github.com/cbodonnell/cuesync/pkg/game"
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/network"
	"github.com/cbodonnell/cuesync/pkg/ownership"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"github.com/cbodonnell/cuesync/pkg/seats"
	"github.com/cbodonnell/cuesync/pkg/state"
)

const (
	// DefaultTickInterval is the period of the table loop
	DefaultTickInterval = 50 * time.Millisecond
	// DefaultReconcileInterval is the number of ticks between seat reconciliations
	DefaultReconcileInterval = 40
)

// ErrTableStopped is returned by Submit once the table loop has exited.
var ErrTableStopped = errors.New("table stopped")

// Stepper is a simulator advanced by the table loop.
type Stepper interface {
	Step(dt time.Duration)
}

// Table composes every sync channel of one pool table on a peer and drives
// them from a single loop. None of its methods are safe for concurrent use;
// other goroutines go through Submit.
type Table struct {
	id        string
	transport network.Transport
	inbox     queue.Queue
	commands  queue.Queue

	replica   *game.Replica
	seats     *seats.Set
	cues      [constants.CueCount]*cuelock.Channel
	simulator game.Simulator

	stateManager      state.StateManager
	tickInterval      time.Duration
	reconcileInterval int
	ticks             int
	stopped           chan struct{}
	logger            *log.Logger
}

type NewTableOptions struct {
	TableID   string
	Transport network.Transport
	// Inbox is the queue the transport delivers inbound envelopes to
	Inbox     queue.Queue
	Model     constants.TableModel
	Simulator game.Simulator
	Relevance game.Relevance
	Referee   game.Referee
	// StateManager receives a copy of the table after every tick, if set
	StateManager      state.StateManager
	TickInterval      time.Duration
	ReconcileInterval int
	Now               func() time.Time
}

// New composes a table. The simulator's end callback, if it has one, is wired
// to the replica.
func New(opts NewTableOptions) *Table {
	t := &Table{
		id:                opts.TableID,
		transport:         opts.Transport,
		inbox:             opts.Inbox,
		commands:          queue.NewInMemoryQueue(queue.DefaultQueueSize),
		simulator:         opts.Simulator,
		stateManager:      opts.StateManager,
		tickInterval:      opts.TickInterval,
		reconcileInterval: opts.ReconcileInterval,
		stopped:           make(chan struct{}),
		logger:            log.Named("table"),
	}
	if t.tickInterval <= 0 {
		t.tickInterval = DefaultTickInterval
	}
	if t.reconcileInterval <= 0 {
		t.reconcileInterval = DefaultReconcileInterval
	}
	if opts.Model.HalfLength == 0 {
		opts.Model = constants.TableModels[0]
	}

	t.replica = game.NewReplica(game.NewReplicaOptions{
		Link:      opts.Transport,
		Roster:    opts.Transport,
		Rack:      game.StandardRack(opts.Model),
		Simulator: opts.Simulator,
		Relevance: opts.Relevance,
		Referee:   opts.Referee,
		Now:       opts.Now,
	})
	t.replica.OnTransfer(t.onTableTransfer)
	if s, ok := opts.Simulator.(interface{ OnEnded(game.SimulationEndedFunc) }); ok {
		s.OnEnded(t.replica.OnSimulationEnded)
	}

	t.seats = seats.NewSet(opts.Transport)
	t.seats.OnChange(t.onSeatChange)
	for i := range t.cues {
		t.cues[i] = cuelock.NewChannel(cuelock.NewChannelOptions{Index: i, Link: opts.Transport})
	}
	return t
}

func (t *Table) ID() string {
	return t.id
}

func (t *Table) Replica() *game.Replica {
	return t.replica
}

func (t *Table) Seats() *seats.Set {
	return t.seats
}

// Cue returns the lock channel of cue index, or nil.
func (t *Table) Cue(index int) *cuelock.Channel {
	if index < 0 || index >= constants.CueCount {
		return nil
	}
	return t.cues[index]
}

// Start runs the table loop until ctx is cancelled.
func (t *Table) Start(ctx context.Context) error {
	defer close(t.stopped)

	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.failCommands()
			return nil
		case now := <-ticker.C:
			if err := t.Tick(ctx, now); err != nil {
				t.logger.Error("Failed to run table tick: %v", err)
			}
		}
	}
}

// Tick runs one iteration of the table loop.
func (t *Table) Tick(ctx context.Context, now time.Time) error {
	t.processMessages()
	t.processCommands()
	if s, ok := t.simulator.(Stepper); ok {
		s.Step(t.tickInterval)
	}

	t.ticks++
	if t.ticks%t.reconcileInterval == 0 {
		t.reconcile()
	}
	t.replica.Flush()

	if err := t.publish(ctx, now); err != nil {
		return fmt.Errorf("failed to publish table state: %v", err)
	}
	return nil
}

// processMessages dispatches every pending inbound envelope.
func (t *Table) processMessages() {
	for _, item := range t.inbox.ReadAllMessages() {
		m, ok := item.(*messages.Message)
		if !ok {
			t.logger.Error("Failed to cast inbound item %T to messages.Message", item)
			continue
		}
		t.dispatch(m)
	}
}

func (t *Table) dispatch(m *messages.Message) {
	switch m.Type {
	case messages.MessageTypeWelcome:
		var welcome messages.Welcome
		if err := m.DecodePayload(&welcome); err != nil {
			t.logger.Warn("Dropped welcome: %v", err)
			return
		}
		t.logger.Info("Joined table %s as peer %d", t.id, t.transport.LocalID())
		t.seed(welcome)
		return
	case messages.MessageTypePeerJoined:
		var notice messages.PeerNotice
		if err := m.DecodePayload(&notice); err != nil {
			t.logger.Warn("Dropped peer notice: %v", err)
			return
		}
		t.logger.Info("Peer %d joined", notice.Peer)
		t.resync()
		return
	case messages.MessageTypePeerLeft:
		var notice messages.PeerNotice
		if err := m.DecodePayload(&notice); err != nil {
			t.logger.Warn("Dropped peer notice: %v", err)
			return
		}
		t.logger.Info("Peer %d left", notice.Peer)
		t.replica.OnPeerLeft(notice.Peer)
		t.reconcile()
		return
	}

	c, err := t.channel(m.Entity)
	if err != nil {
		t.logger.Warn("Dropped %s from %d: %v", m.Type, m.Sender, err)
		return
	}
	if m.Type == messages.MessageTypeOwnershipTransfer {
		var transfer messages.OwnershipTransfer
		if err := m.DecodePayload(&transfer); err != nil {
			t.logger.Warn("Dropped ownership transfer of %s: %v", m.Entity, err)
			return
		}
		c.OnOwnershipTransfer(transfer.Owner)
		return
	}
	c.OnReceive(m)
}

// channel returns the channel addressed by entity.
func (t *Table) channel(entity types.EntityID) (ownership.Channel, error) {
	kind, index, err := entity.Parse()
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.EntityKindTable:
		return t.replica, nil
	case types.EntityKindSeat:
		if c := t.seats.Channel(index); c != nil {
			return c, nil
		}
	case types.EntityKindCue:
		if c := t.Cue(index); c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no channel for entity %q", entity)
}

// seed records the owners announced at join so the first transfer of each
// entity reports the owner it is taken from. Unclaimed entities belong to the
// earliest-joined peer.
func (t *Table) seed(welcome messages.Welcome) {
	for _, c := range t.channels() {
		owner, ok := welcome.Owners[c.Entity()]
		if !ok && len(welcome.Peers) > 0 {
			owner = welcome.Peers[0]
		}
		c.Seed(owner)
	}
}

func (t *Table) channels() []ownership.Channel {
	channels := []ownership.Channel{t.replica}
	for _, c := range t.seats.Channels() {
		channels = append(channels, c)
	}
	for _, c := range t.cues {
		channels = append(channels, c)
	}
	return channels
}

// resync retransmits every channel this peer owns so a new peer catches up.
func (t *Table) resync() {
	t.replica.Resync()
	for _, c := range t.seats.Channels() {
		c.Resync()
	}
	for _, c := range t.cues {
		c.Resync()
	}
}

// onSeatChange applies seat channel updates to the table's seat list. Only
// the table owner records membership.
func (t *Table) onSeatChange(index int, occupant types.PeerID, data types.SyncPlayerSessionData) {
	if !t.replica.IsLocalOwner() {
		return
	}
	s := t.replica.State()
	current := s.PlayerSeatIDs[index]

	if !data.Occupied() {
		if current == occupant {
			t.replica.SetSeatOccupant(index, types.NoPeer)
			if t.replica.AutoReset() {
				t.logger.Info("Reset table after the last player left")
			}
		}
		return
	}
	if s.GameState == types.GameStateGameLive {
		t.logger.Debug("Rejected peer %d joining seat %d during a game", occupant, index)
		return
	}
	if current != types.NoPeer && current != occupant && t.connected(current) {
		t.logger.Debug("Rejected peer %d joining seat %d held by %d", occupant, index, current)
		return
	}
	t.replica.SetSeatOccupant(index, occupant)
}

// onTableTransfer reconciles seats as soon as the table lands on this peer.
func (t *Table) onTableTransfer(prev, next types.PeerID) {
	if next == t.transport.LocalID() && prev != next {
		t.reconcile()
	}
}

// reconcile clears seats of disconnected peers.
func (t *Table) reconcile() {
	if t.replica.ReconcileSeats(t.connected) {
		t.replica.AutoReset()
	}
}

func (t *Table) connected(peer types.PeerID) bool {
	for _, p := range t.transport.Peers() {
		if p == peer {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of every channel of the table.
func (t *Table) Snapshot(now time.Time) *state.TableState {
	ts := &state.TableState{
		TableID:   t.id,
		LocalPeer: t.transport.LocalID(),
		Owner:     t.replica.Owner(),
		Game:      t.replica.State(),
		Peers:     t.transport.Peers(),
		UpdatedAt: now,
	}
	for i, c := range t.seats.Channels() {
		ts.Seats[i] = c.Data()
	}
	for i, c := range t.cues {
		ts.Cues[i] = c.State()
	}
	return ts
}

func (t *Table) publish(ctx context.Context, now time.Time) error {
	if t.stateManager == nil {
		return nil
	}
	return t.stateManager.Set(ctx, t.Snapshot(now))
}
