package game

import (
	"fmt"
	"time"

	"github.com/cbodonnell/cuesync/pkg/codec"
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/ownership"
)

// ApplyListener observes every state replacement, local or remote.
type ApplyListener func(from types.PeerID, prev, next types.GameStateData)

// PrepareShootListener observes a remote peer announcing a shot.
type PrepareShootListener func(from types.PeerID, teamID uint8)

// Replica is one peer's copy of the table game state. All changes go through
// its semantic operations; the owner transmits whole snapshots on Flush and
// every peer, the owner included, applies them through Receive.
type Replica struct {
	*ownership.Authority

	state  types.GameStateData
	rack   [constants.BallCount]kinematic.Vector
	buffer EventBuffer
	gate   DeferralGate

	simulator Simulator
	relevance Relevance
	referee   Referee
	roster    Roster
	now       func() time.Time

	// shot tracks the BallInMotion state currently being simulated locally.
	shotActive  bool
	shotStateID uint32
	// shooter is the peer whose snapshot started the active shot.
	shooter types.PeerID
	// shotOurs is set when this peer issued the active shot and must
	// announce its outcome.
	shotOurs         bool
	shotPocketedBase uint16
	// claiming is set between a local claim and the arbiter's answer.
	// claimFlushed records a flush made while claiming.
	claiming     bool
	claimFlushed bool

	applyListeners        []ApplyListener
	prepareShootListeners []PrepareShootListener
	logger                *log.Logger
}

var _ ownership.Channel = (*Replica)(nil)

type NewReplicaOptions struct {
	Link      ownership.Link
	Roster    Roster
	Rack      [constants.BallCount]kinematic.Vector
	Simulator Simulator
	Relevance Relevance
	Referee   Referee
	// Now defaults to time.Now
	Now func() time.Time
}

// NewReplica creates an idle table with the balls at rack.
func NewReplica(opts NewReplicaOptions) *Replica {
	r := &Replica{
		Authority: ownership.NewAuthority(ownership.NewAuthorityOptions{
			Entity: types.TableEntity,
			Link:   opts.Link,
		}),
		state:     types.NewGameStateData(opts.Rack),
		rack:      opts.Rack,
		simulator: opts.Simulator,
		relevance: opts.Relevance,
		referee:   opts.Referee,
		roster:    opts.Roster,
		now:       opts.Now,
		logger:    log.Named("replica"),
	}
	if r.relevance == nil {
		r.relevance = AlwaysRelevant{}
	}
	if r.referee == nil {
		r.referee = EightBallReferee{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.Authority.OnTransfer(r.recover)
	return r
}

// State returns a copy of the current state.
func (r *Replica) State() types.GameStateData {
	return r.state
}

// Dirty reports whether a flush is pending.
func (r *Replica) Dirty() bool {
	return r.buffer.Dirty()
}

// PendingApply reports whether a received snapshot is waiting to be applied.
func (r *Replica) PendingApply() bool {
	return r.gate.Pending()
}

// OnApply registers a listener fired after every state replacement.
func (r *Replica) OnApply(l ApplyListener) {
	r.applyListeners = append(r.applyListeners, l)
}

// OnPrepareShoot registers a listener for remote shot announcements.
func (r *Replica) OnPrepareShoot(l PrepareShootListener) {
	r.prepareShootListeners = append(r.prepareShootListeners, l)
}

// OnReceive dispatches an envelope addressed to the table.
func (r *Replica) OnReceive(m *messages.Message) {
	switch m.Type {
	case messages.MessageTypeSnapshot:
		r.Receive(m.Sender, m.Payload)
	case messages.MessageTypePrepareShoot:
		if m.Sender == r.LocalID() {
			return
		}
		var p messages.PrepareShoot
		if err := m.DecodePayload(&p); err != nil {
			r.logger.Warn("Dropped prepare shoot from %d: %v", m.Sender, err)
			return
		}
		for _, l := range r.prepareShootListeners {
			l(m.Sender, p.TeamID)
		}
	default:
		r.logger.Warn("Unexpected %s for table from %d", m.Type, m.Sender)
	}
}

// Receive decodes a live snapshot from peer from. Snapshots this peer sent
// itself are applied unconditionally; others pass through the deferral gate.
func (r *Replica) Receive(from types.PeerID, payload []byte) {
	s, err := codec.DecodeTableSnapshot(payload)
	if err != nil {
		r.logger.Warn("Dropped table snapshot from %d: %v", from, err)
		return
	}
	if from == r.LocalID() {
		r.apply(from, s)
		return
	}
	if r.Confirmed() == r.LocalID() {
		r.logger.Debug("Dropped snapshot %d from deposed owner %d", s.StateID, from)
		return
	}
	if r.claiming {
		r.logger.Debug("Held snapshot %d from %d behind local claim", s.StateID, from)
		r.gate.Hold(from, s)
		return
	}

	simulating := r.simulator.Running()
	switch Decide(r.relevance.Relevant(), simulating, s.Urgency) {
	case DecisionApply:
		r.apply(from, s)
	case DecisionPreempt:
		r.preempt(from, s)
	case DecisionDefer:
		r.logger.Trace("Deferred snapshot %d from %d", s.StateID, from)
		r.gate.Hold(from, s)
	}
}

// OnRelevanceChanged replays a deferred snapshot once the table is relevant.
func (r *Replica) OnRelevanceChanged() {
	r.replayPending()
}

// replayPending judges the held snapshot again now that the table may be
// relevant or idle.
func (r *Replica) replayPending() {
	from, s, ok := r.gate.Peek()
	if !ok {
		return
	}
	switch Decide(r.relevance.Relevant(), r.simulator.Running(), s.Urgency) {
	case DecisionApply:
		r.apply(from, s)
	case DecisionPreempt:
		r.preempt(from, s)
	}
}

func (r *Replica) preempt(from types.PeerID, s types.GameStateData) {
	r.logger.Debug("Snapshot %d from %d preempts local simulation", s.StateID, from)
	r.simulator.Stop()
	r.shotOurs = false
	r.apply(from, s)
}

// apply replaces the local state. It is the only place the state is
// replaced by a snapshot.
func (r *Replica) apply(from types.PeerID, s types.GameStateData) {
	prev := r.state
	r.state = s
	r.gate.Drop()
	if from != r.LocalID() && !r.IsLocalOwner() {
		r.buffer.Clear()
	}

	switch {
	case s.TurnState == types.TurnStateBallInMotion:
		if !r.shotActive || r.shotStateID != s.StateID {
			r.startShot(from, s)
		}
	case r.shotActive:
		if r.simulator.Running() {
			r.simulator.Stop()
		}
		r.endShot()
	}

	for _, l := range r.applyListeners {
		l(from, prev, s)
	}
}

func (r *Replica) startShot(from types.PeerID, s types.GameStateData) {
	if r.simulator.Running() {
		r.simulator.Stop()
	}
	r.shotActive = true
	r.shotStateID = s.StateID
	r.shooter = from
	r.shotOurs = from == r.LocalID()
	r.shotPocketedBase = s.BallsPocketed
	r.simulator.Start(s)
}

func (r *Replica) endShot() {
	r.shotActive = false
	r.shotOurs = false
	r.shooter = types.NoPeer
}

// Flush transmits the whole state if anything changed since the last flush,
// then applies the transmitted bytes locally through Receive.
func (r *Replica) Flush() {
	if !r.buffer.Dirty() {
		return
	}
	r.claim()
	r.state.Urgency = r.buffer.Urgency()
	b := codec.EncodeTableSnapshot(&r.state)
	if err := r.Send(messages.MessageTypeSnapshot, b); err != nil {
		r.logger.Error("Failed to flush table state: %v", err)
	}
	r.buffer.Clear()
	r.claimFlushed = r.claiming
	r.Receive(r.LocalID(), b)
}

// Resync retransmits the current state on the next flush so that a late
// joiner catches up. Owner only; the state id does not advance.
func (r *Replica) Resync() {
	if r.IsLocalOwner() {
		r.buffer.Mark(types.UrgencyDeferred)
	}
}

// ExportSnapshot returns the state as a text snapshot of version v.
func (r *Replica) ExportSnapshot(v codec.TextVersion) (string, error) {
	text, clamped, err := codec.EncodeText(&r.state, v)
	if err != nil {
		return "", fmt.Errorf("failed to export snapshot: %v", err)
	}
	if len(clamped) > 0 {
		r.logger.Warn("Clamped %d fields exporting %s snapshot: %v", len(clamped), v, clamped)
	}
	return text, nil
}

// ImportSnapshot replaces the game state with a text snapshot. Malformed text
// is rejected without any change. Seats are kept and the state id advances
// locally.
func (r *Replica) ImportSnapshot(text string) error {
	next := r.state
	v, err := codec.DecodeText(text, &next)
	if err != nil {
		return fmt.Errorf("failed to import snapshot: %w", err)
	}
	r.claim()
	if r.simulator.Running() {
		r.simulator.Stop()
	}
	next.StateID = r.state.StateID
	next.PlayerSeatIDs = r.state.PlayerSeatIDs
	r.state = next
	r.logger.Info("Imported %s snapshot", v)
	r.commit(true, types.UrgencyImmediate)
	return nil
}

// TakeOwnership claims the table. The claim stays outstanding until the
// arbiter's transfer is received.
func (r *Replica) TakeOwnership() {
	r.claiming = true
	r.Authority.TakeOwnership()
}

// claim takes ownership for an intent operation.
func (r *Replica) claim() {
	if !r.IsLocalOwner() {
		r.TakeOwnership()
	}
}

// commit records a local mutation.
func (r *Replica) commit(advance bool, urgency types.Urgency) {
	if advance {
		r.state.StateID++
	}
	r.buffer.Mark(urgency)
}
