package seats

import (
	"github.com/cbodonnell/cuesync/pkg/codec"
	"github.com/cbodonnell/cuesync/pkg/game/constants"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/ownership"
)

// Listener observes every applied seat snapshot. occupant is the peer that
// owned the seat channel when it sent data.
type Listener func(index int, occupant types.PeerID, data types.SyncPlayerSessionData)

// Channel replicates the session data of one seat. The peer sitting in a
// seat owns its channel.
type Channel struct {
	*ownership.Authority

	index     int
	data      types.SyncPlayerSessionData
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
			Entity: types.SeatEntity(opts.Index),
			Link:   opts.Link,
		}),
		index:  opts.Index,
		data:   types.NewSyncPlayerSessionData(),
		logger: log.Named("seats"),
	}
}

func (c *Channel) Index() int {
	return c.index
}

// Data returns the last applied seat data.
func (c *Channel) Data() types.SyncPlayerSessionData {
	return c.data
}

// OnChange registers a listener fired after every applied snapshot.
func (c *Channel) OnChange(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Join claims the seat and announces this peer as its occupant.
func (c *Channel) Join() {
	c.TakeOwnership()
	c.transmit(types.SyncPlayerSessionData{SlotIndex: int8(c.index)})
}

// Leave claims the seat and announces that its occupant is leaving.
func (c *Channel) Leave() {
	c.TakeOwnership()
	c.transmit(types.SyncPlayerSessionData{SlotIndex: int8(c.index), Leaving: true})
}

// Resync retransmits an occupied seat for late joiners. Holder only.
func (c *Channel) Resync() {
	if c.IsLocalOwner() && c.data.SlotIndex != types.NoSlot {
		c.transmit(c.data)
	}
}

func (c *Channel) transmit(data types.SyncPlayerSessionData) {
	b := codec.EncodeSeatSnapshot(&data)
	if err := c.Send(messages.MessageTypeSnapshot, b); err != nil {
		c.logger.Error("Failed to send seat %d: %v", c.index, err)
	}
	c.receive(c.LocalID(), b)
}

// OnReceive applies a seat snapshot.
func (c *Channel) OnReceive(m *messages.Message) {
	if m.Type != messages.MessageTypeSnapshot {
		c.logger.Warn("Unexpected %s for seat %d from %d", m.Type, c.index, m.Sender)
		return
	}
	c.receive(m.Sender, m.Payload)
}

func (c *Channel) receive(from types.PeerID, payload []byte) {
	data, err := codec.DecodeSeatSnapshot(payload)
	if err != nil {
		c.logger.Warn("Dropped seat %d snapshot from %d: %v", c.index, from, err)
		return
	}
	c.data = data
	for _, l := range c.listeners {
		l(c.index, from, data)
	}
}

// Set is the seat channels of one table.
type Set struct {
	channels [constants.SeatCount]*Channel
	logger   *log.Logger
}

// NewSet creates one channel per seat on link.
func NewSet(link ownership.Link) *Set {
	s := &Set{logger: log.Named("seats")}
	for i := range s.channels {
		s.channels[i] = NewChannel(NewChannelOptions{Index: i, Link: link})
	}
	return s
}

// Channel returns the channel of seat index, or nil.
func (s *Set) Channel(index int) *Channel {
	if index < 0 || index >= constants.SeatCount {
		return nil
	}
	return s.channels[index]
}

// Channels returns every seat channel in seat order.
func (s *Set) Channels() []*Channel {
	return s.channels[:]
}

// OnChange registers l on every seat.
func (s *Set) OnChange(l Listener) {
	for _, c := range s.channels {
		c.OnChange(l)
	}
}

// JoinSlot sits this peer in seat index.
func (s *Set) JoinSlot(index int) {
	c := s.Channel(index)
	if c == nil {
		s.logger.Warn("Ignored join of invalid seat %d", index)
		return
	}
	c.Join()
}

// LeaveSlot leaves seat index.
func (s *Set) LeaveSlot(index int) {
	c := s.Channel(index)
	if c == nil {
		s.logger.Warn("Ignored leave of invalid seat %d", index)
		return
	}
	c.Leave()
}
