package network

import (
	"fmt"
	"sync"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/queue"
)

// Bus is an in-process table session. Every envelope goes through the same
// flatbuffers encoding as the websocket path.
type Bus struct {
	lock    sync.Mutex
	arbiter *Arbiter
	peers   map[types.PeerID]*BusPeer
	nextID  types.PeerID
	logger  *log.Logger
}

// NewBus creates an empty session.
func NewBus() *Bus {
	return &Bus{
		arbiter: NewArbiter(),
		peers:   make(map[types.PeerID]*BusPeer),
		logger:  log.Named("bus"),
	}
}

// BusPeer is a Transport attached to a Bus.
type BusPeer struct {
	bus   *Bus
	id    types.PeerID
	inbox queue.Queue
}

var _ Transport = (*BusPeer)(nil)

// Join connects a new peer whose inbound envelopes are delivered to inbox.
// Peer ids are assigned sequentially from 1.
func (b *Bus) Join(inbox queue.Queue) (*BusPeer, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	peer := &BusPeer{bus: b, id: b.nextID, inbox: inbox}
	if err := b.arbiter.Join(peer.id); err != nil {
		return nil, fmt.Errorf("failed to join bus: %v", err)
	}
	b.peers[peer.id] = peer

	welcome, err := b.arbiter.Welcome(peer.id)
	if err != nil {
		return nil, err
	}
	b.deliver(peer, welcome)

	joined, err := PeerNotice(messages.MessageTypePeerJoined, peer.id)
	if err != nil {
		return nil, err
	}
	b.broadcast(joined, peer.id)
	return peer, nil
}

// Arbiter exposes the session's ownership record.
func (b *Bus) Arbiter() *Arbiter {
	return b.arbiter
}

// deliver round-trips m through the envelope encoding into peer's inbox.
func (b *Bus) deliver(peer *BusPeer, m *messages.Message) {
	data, err := messages.SerializeMessageFlatbuffer(m)
	if err != nil {
		b.logger.Error("Failed to serialize %s for peer %d: %v", m.Type, peer.id, err)
		return
	}
	decoded, err := messages.DeserializeMessageFlatbuffer(data)
	if err != nil {
		b.logger.Error("Failed to deserialize %s for peer %d: %v", m.Type, peer.id, err)
		return
	}
	if err := peer.inbox.Enqueue(decoded); err != nil {
		b.logger.Error("Failed to enqueue %s for peer %d: %v", m.Type, peer.id, err)
	}
}

// broadcast delivers m to every peer except skip. Peers are visited in join
// order so every inbox sees the same sequence.
func (b *Bus) broadcast(m *messages.Message, skip types.PeerID) {
	for _, id := range b.arbiter.Peers() {
		if id == skip {
			continue
		}
		if peer, ok := b.peers[id]; ok {
			b.deliver(peer, m)
		}
	}
}

func (b *Bus) leave(id types.PeerID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.peers[id]; !ok {
		return fmt.Errorf("peer %d is not connected", id)
	}
	delete(b.peers, id)
	for _, t := range b.arbiter.Leave(id) {
		m, err := t.Message()
		if err != nil {
			return err
		}
		b.broadcast(m, types.NoPeer)
	}
	left, err := PeerNotice(messages.MessageTypePeerLeft, id)
	if err != nil {
		return err
	}
	b.broadcast(left, types.NoPeer)
	return nil
}

func (p *BusPeer) LocalID() types.PeerID {
	return p.id
}

// Send relays m to every other peer. Snapshots from a peer that does not own
// the entity are dropped.
func (p *BusPeer) Send(m *messages.Message) error {
	p.bus.lock.Lock()
	defer p.bus.lock.Unlock()

	m.Sender = p.id
	if !p.bus.arbiter.Admit(m) {
		p.bus.logger.Debug("Dropped %s for %s from non-owner %d", m.Type, m.Entity, p.id)
		return nil
	}
	p.bus.broadcast(m, p.id)
	return nil
}

// Claim orders a claim and announces the transfer to every peer.
func (p *BusPeer) Claim(entity types.EntityID) error {
	p.bus.lock.Lock()
	defer p.bus.lock.Unlock()

	t, err := p.bus.arbiter.Claim(p.id, entity)
	if err != nil {
		return err
	}
	m, err := t.Message()
	if err != nil {
		return err
	}
	p.bus.broadcast(m, types.NoPeer)
	return nil
}

func (p *BusPeer) Owner(entity types.EntityID) types.PeerID {
	return p.bus.arbiter.Owner(entity)
}

func (p *BusPeer) Peers() []types.PeerID {
	return p.bus.arbiter.Peers()
}

// Close disconnects the peer. Its entities are handed to the earliest
// remaining peer.
func (p *BusPeer) Close() error {
	return p.bus.leave(p.id)
}
