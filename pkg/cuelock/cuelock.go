package cuelock

import (
	"github.com/cbodonnell/cuesync/pkg/codec"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/kinematic"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/ownership"
)

// Listener observes every applied lock snapshot of a cue.
type Listener func(index int, holder types.PeerID, state types.CueLockState)

// Channel replicates the pose lock of one cue. Whoever grabbed the cue last
// owns the channel; it never coordinates with the table or the other cue.
type Channel struct {
	*ownership.Authority

	index     int
	state     types.CueLockState
	listeners []Listener
	logger    *log.Logger
}

var _ ownership.Channel = (*Channel)(nil)

type NewChannelOptions struct {
	Index int
	Link  ownership.Link
}

func NewChannel(opts NewChannelOptions) *Channel {
	return &Channel{
		Authority: ownership.NewAuthority(ownership.NewAuthorityOptions{
			Entity: types.CueEntity(opts.Index),
			Link:   opts.Link,
		}),
		index:  opts.Index,
		state:  types.NewCueLockState(),
		logger: log.Named("cuelock"),
	}
}

func (c *Channel) Index() int {
	return c.index
}

// State returns the last applied lock state.
func (c *Channel) State() types.CueLockState {
	return c.state
}

// OnChange registers a listener fired after every applied snapshot.
func (c *Channel) OnChange(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Grab takes the cue. desktop records whether the holder aims with a
// desktop input instead of two hands.
func (c *Channel) Grab(desktop bool) {
	c.TakeOwnership()
	next := c.state
	next.HolderIsDesktopInput = desktop
	c.transmit(next)
}

// LockPrimary pins the primary grip at pos pointing along dir.
func (c *Channel) LockPrimary(pos, dir kinematic.Vector) {
	c.mutate(func(s *types.CueLockState) {
		s.PrimaryLocked = true
		s.PrimaryLockPosition = pos
		s.PrimaryLockDirection = dir
	})
}

func (c *Channel) UnlockPrimary() {
	c.mutate(func(s *types.CueLockState) {
		s.PrimaryLocked = false
		s.PrimaryLockPosition = kinematic.Zero
		s.PrimaryLockDirection = kinematic.Zero
	})
}

// LockSecondary pins the secondary grip at pos.
func (c *Channel) LockSecondary(pos kinematic.Vector) {
	c.mutate(func(s *types.CueLockState) {
		s.SecondaryLocked = true
		s.SecondaryLockPosition = pos
	})
}

func (c *Channel) UnlockSecondary() {
	c.mutate(func(s *types.CueLockState) {
		s.SecondaryLocked = false
		s.SecondaryLockPosition = kinematic.Zero
	})
}

func (c *Channel) SetVisualScale(scale float32) {
	c.mutate(func(s *types.CueLockState) {
		s.VisualScale = scale
	})
}

// Release drops the cue, clearing both locks. The channel keeps its owner
// until the next grab.
func (c *Channel) Release() {
	c.mutate(func(s *types.CueLockState) {
		scale := s.VisualScale
		*s = types.NewCueLockState()
		s.VisualScale = scale
	})
}

// Resync retransmits the lock state for late joiners. Holder only.
func (c *Channel) Resync() {
	if c.state == types.NewCueLockState() {
		return
	}
	c.mutate(func(*types.CueLockState) {})
}

// mutate applies change for the holder only.
func (c *Channel) mutate(change func(s *types.CueLockState)) {
	if !c.IsLocalOwner() {
		return
	}
	next := c.state
	change(&next)
	c.transmit(next)
}

func (c *Channel) transmit(state types.CueLockState) {
	b := codec.EncodeCueLockSnapshot(&state)
	if err := c.Send(messages.MessageTypeSnapshot, b); err != nil {
		c.logger.Error("Failed to send cue %d: %v", c.index, err)
	}
	c.receive(c.LocalID(), b)
}

// OnReceive applies a lock snapshot.
func (c *Channel) OnReceive(m *messages.Message) {
	if m.Type != messages.MessageTypeSnapshot {
		c.logger.Warn("Unexpected %s for cue %d from %d", m.Type, c.index, m.Sender)
		return
	}
	c.receive(m.Sender, m.Payload)
}

func (c *Channel) receive(from types.PeerID, payload []byte) {
	state, err := codec.DecodeCueLockSnapshot(payload)
	if err != nil {
		c.logger.Warn("Dropped cue %d snapshot from %d: %v", c.index, from, err)
		return
	}
	c.state = state
	for _, l := range c.listeners {
		l(c.index, from, state)
	}
}
