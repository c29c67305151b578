package game

import "github.com/cbodonnell/cuesync/pkg/game/types"

// Decision is what the gate does with an incoming snapshot.
type Decision uint8

const (
	// DecisionApply replaces local state now
	DecisionApply Decision = iota
	// DecisionDefer holds the snapshot until it is safe to apply
	DecisionDefer
	// DecisionPreempt stops the local simulation and applies now
	DecisionPreempt
)

func (d Decision) String() string {
	switch d {
	case DecisionApply:
		return "apply"
	case DecisionDefer:
		return "defer"
	case DecisionPreempt:
		return "preempt"
	default:
		return "unknown"
	}
}

// Decide arbitrates one incoming snapshot.
func Decide(relevant, simulating bool, urgency types.Urgency) Decision {
	switch {
	case !relevant:
		return DecisionDefer
	case !simulating:
		return DecisionApply
	case urgency == types.UrgencyImmediate:
		return DecisionPreempt
	default:
		return DecisionDefer
	}
}

// DeferralGate holds the latest snapshot that could not be applied yet.
// Delivery is ordered, so a newer snapshot always replaces an older one.
type DeferralGate struct {
	pending *pendingApply
}

type pendingApply struct {
	from  types.PeerID
	state types.GameStateData
}

// Hold keeps s from peer as the pending apply.
func (g *DeferralGate) Hold(from types.PeerID, s types.GameStateData) {
	g.pending = &pendingApply{from: from, state: s}
}

// Pending reports whether a snapshot is waiting.
func (g *DeferralGate) Pending() bool {
	return g.pending != nil
}

// Peek returns the pending snapshot without removing it.
func (g *DeferralGate) Peek() (types.PeerID, types.GameStateData, bool) {
	if g.pending == nil {
		return types.NoPeer, types.GameStateData{}, false
	}
	return g.pending.from, g.pending.state, true
}

// Take removes and returns the pending snapshot.
func (g *DeferralGate) Take() (types.PeerID, types.GameStateData, bool) {
	if g.pending == nil {
		return types.NoPeer, types.GameStateData{}, false
	}
	p := g.pending
	g.pending = nil
	return p.from, p.state, true
}

// Drop discards the pending snapshot.
func (g *DeferralGate) Drop() {
	g.pending = nil
}
