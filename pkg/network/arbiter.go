package network

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/messages"
)

// Transfer is one ownership decision made by an Arbiter.
type Transfer struct {
	Entity   types.EntityID
	Previous types.PeerID
	Owner    types.PeerID
}

// Message builds the OwnershipTransfer envelope announcing t.
func (t Transfer) Message() (*messages.Message, error) {
	return messages.NewControlMessage(types.NoPeer, messages.MessageTypeOwnershipTransfer, t.Entity, messages.OwnershipTransfer{
		Previous: t.Previous,
		Owner:    t.Owner,
	})
}

// Arbiter orders ownership claims for the entities of one table session.
// An entity nobody has claimed belongs to the earliest-joined connected peer.
type Arbiter struct {
	lock   sync.RWMutex
	peers  []types.PeerID
	owners map[types.EntityID]types.PeerID
}

// NewArbiter creates an arbiter with no peers.
func NewArbiter() *Arbiter {
	return &Arbiter{
		owners: make(map[types.EntityID]types.PeerID),
	}
}

// Join registers a connected peer at the end of the join order.
func (a *Arbiter) Join(peer types.PeerID) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if peer == types.NoPeer {
		return fmt.Errorf("invalid peer id %d", peer)
	}
	if a.connected(peer) {
		return fmt.Errorf("peer %d already joined", peer)
	}
	a.peers = append(a.peers, peer)
	return nil
}

// Leave removes a peer and hands every entity it owned to the earliest
// remaining peer. The returned transfers must be announced to the remaining
// peers in order.
func (a *Arbiter) Leave(peer types.PeerID) []Transfer {
	a.lock.Lock()
	defer a.lock.Unlock()

	for i, p := range a.peers {
		if p == peer {
			a.peers = append(a.peers[:i], a.peers[i+1:]...)
			break
		}
	}

	var transfers []Transfer
	for _, entity := range sortedEntities(a.owners) {
		if a.owners[entity] != peer {
			continue
		}
		if len(a.peers) == 0 {
			delete(a.owners, entity)
			continue
		}
		next := a.peers[0]
		a.owners[entity] = next
		transfers = append(transfers, Transfer{Entity: entity, Previous: peer, Owner: next})
	}
	return transfers
}

// Claim makes peer the owner of entity. A claim always produces a transfer,
// even when peer already owns the entity.
func (a *Arbiter) Claim(peer types.PeerID, entity types.EntityID) (Transfer, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if !a.connected(peer) {
		return Transfer{}, fmt.Errorf("peer %d is not connected", peer)
	}
	if _, _, err := entity.Parse(); err != nil {
		return Transfer{}, fmt.Errorf("failed to claim: %v", err)
	}
	prev := a.owner(entity)
	a.owners[entity] = peer
	return Transfer{Entity: entity, Previous: prev, Owner: peer}, nil
}

// Owner returns the owner of entity.
func (a *Arbiter) Owner(entity types.EntityID) types.PeerID {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.owner(entity)
}

// Admit reports whether m may be relayed. Snapshots are only accepted from
// the current owner of their entity.
func (a *Arbiter) Admit(m *messages.Message) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()

	if !a.connected(m.Sender) {
		return false
	}
	switch m.Type {
	case messages.MessageTypeSnapshot:
		return a.owner(m.Entity) == m.Sender
	case messages.MessageTypePrepareShoot:
		return true
	default:
		return false
	}
}

// Peers returns the connected peers in join order.
func (a *Arbiter) Peers() []types.PeerID {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return append([]types.PeerID(nil), a.peers...)
}

// Owners returns a copy of the explicitly claimed owners.
func (a *Arbiter) Owners() map[types.EntityID]types.PeerID {
	a.lock.RLock()
	defer a.lock.RUnlock()
	owners := make(map[types.EntityID]types.PeerID, len(a.owners))
	for k, v := range a.owners {
		owners[k] = v
	}
	return owners
}

// Connected reports whether peer is part of the session.
func (a *Arbiter) Connected(peer types.PeerID) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.connected(peer)
}

// Welcome builds the Welcome envelope for a newly joined peer.
func (a *Arbiter) Welcome(peer types.PeerID) (*messages.Message, error) {
	return messages.NewControlMessage(types.NoPeer, messages.MessageTypeWelcome, "", messages.Welcome{
		Peer:   peer,
		Peers:  a.Peers(),
		Owners: a.Owners(),
	})
}

func (a *Arbiter) connected(peer types.PeerID) bool {
	for _, p := range a.peers {
		if p == peer {
			return true
		}
	}
	return false
}

func (a *Arbiter) owner(entity types.EntityID) types.PeerID {
	if owner, ok := a.owners[entity]; ok {
		return owner
	}
	if len(a.peers) > 0 {
		return a.peers[0]
	}
	return types.NoPeer
}

// PeerNotice builds a PeerJoined or PeerLeft envelope.
func PeerNotice(t messages.MessageType, peer types.PeerID) (*messages.Message, error) {
	return messages.NewControlMessage(types.NoPeer, t, "", messages.PeerNotice{Peer: peer})
}

// Apply updates a mirror of a remote arbiter from one of its announcements.
// Messages that carry no session state are ignored.
func (a *Arbiter) Apply(m *messages.Message) error {
	switch m.Type {
	case messages.MessageTypeWelcome:
		var welcome messages.Welcome
		if err := m.DecodePayload(&welcome); err != nil {
			return err
		}
		a.lock.Lock()
		defer a.lock.Unlock()
		a.peers = append([]types.PeerID(nil), welcome.Peers...)
		a.owners = make(map[types.EntityID]types.PeerID, len(welcome.Owners))
		for k, v := range welcome.Owners {
			a.owners[k] = v
		}
	case messages.MessageTypePeerJoined:
		var notice messages.PeerNotice
		if err := m.DecodePayload(&notice); err != nil {
			return err
		}
		if a.Connected(notice.Peer) {
			return nil
		}
		return a.Join(notice.Peer)
	case messages.MessageTypePeerLeft:
		var notice messages.PeerNotice
		if err := m.DecodePayload(&notice); err != nil {
			return err
		}
		a.Leave(notice.Peer)
	case messages.MessageTypeOwnershipTransfer:
		var transfer messages.OwnershipTransfer
		if err := m.DecodePayload(&transfer); err != nil {
			return err
		}
		a.lock.Lock()
		defer a.lock.Unlock()
		a.owners[m.Entity] = transfer.Owner
	}
	return nil
}

func sortedEntities(owners map[types.EntityID]types.PeerID) []types.EntityID {
	entities := make([]types.EntityID, 0, len(owners))
	for e := range owners {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })
	return entities
}
