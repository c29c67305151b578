package ownership

import (
	"fmt"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
)

// Link is the part of the transport an Authority needs.
type Link interface {
	// LocalID returns the identity of this peer.
	LocalID() types.PeerID
	// Send delivers m to every other peer.
	Send(m *messages.Message) error
	// Claim asks the arbiter to make this peer the owner of entity. The
	// arbiter answers with an ownership transfer to every peer, this one
	// included.
	Claim(entity types.EntityID) error
	// Owner returns the arbiter's view of the owner of an entity.
	Owner(entity types.EntityID) types.PeerID
}

// TransferListener observes ownership changes of one entity.
type TransferListener func(prev, next types.PeerID)

// Channel is one independently-owned sync channel.
type Channel interface {
	Entity() types.EntityID
	TakeOwnership()
	IsLocalOwner() bool
	Send(t messages.MessageType, payload []byte) error
	OnReceive(m *messages.Message)
	OnOwnershipTransfer(next types.PeerID)
	Seed(owner types.PeerID)
}

// Authority tracks the single writer of one entity.
type Authority struct {
	entity types.EntityID
	link   Link
	logger *log.Logger

	// owner is the local view, set optimistically on TakeOwnership.
	owner types.PeerID
	// confirmed is the last owner announced by the arbiter.
	confirmed types.PeerID
	listeners []TransferListener
}

type NewAuthorityOptions struct {
	Entity types.EntityID
	Link   Link
}

// NewAuthority creates an authority with no known owner.
func NewAuthority(opts NewAuthorityOptions) *Authority {
	return &Authority{
		entity: opts.Entity,
		link:   opts.Link,
		logger: log.Named("ownership"),
	}
}

// Entity returns the entity this authority guards.
func (a *Authority) Entity() types.EntityID {
	return a.entity
}

// LocalID returns the identity of this peer.
func (a *Authority) LocalID() types.PeerID {
	return a.link.LocalID()
}

// TakeOwnership claims the entity for this peer. It always reaches the
// arbiter, even when this peer already owns the entity.
func (a *Authority) TakeOwnership() {
	a.owner = a.link.LocalID()
	if err := a.link.Claim(a.entity); err != nil {
		a.logger.Error("Failed to claim %s: %v", a.entity, err)
	}
}

// Owner returns the current owner, falling back to the arbiter's view when no
// transfer has been observed yet.
func (a *Authority) Owner() types.PeerID {
	if a.owner != types.NoPeer {
		return a.owner
	}
	return a.link.Owner(a.entity)
}

// Confirmed returns the last owner announced by the arbiter or seeded from
// the session welcome, NoPeer if neither was seen.
func (a *Authority) Confirmed() types.PeerID {
	return a.confirmed
}

// Seed records the owner announced when this peer joined the session. It has
// no effect once a transfer was observed.
func (a *Authority) Seed(owner types.PeerID) {
	if a.confirmed == types.NoPeer {
		a.confirmed = owner
	}
}

// IsLocalOwner reports whether this peer may mutate the entity.
func (a *Authority) IsLocalOwner() bool {
	return a.Owner() == a.link.LocalID()
}

// OnTransfer registers a listener fired on every ownership transfer.
func (a *Authority) OnTransfer(l TransferListener) {
	a.listeners = append(a.listeners, l)
}

// OnOwnershipTransfer records the arbiter's decision and notifies listeners
// with the previously confirmed owner.
func (a *Authority) OnOwnershipTransfer(next types.PeerID) {
	prev := a.confirmed
	if prev == types.NoPeer {
		prev = a.link.Owner(a.entity)
	}
	a.confirmed = next
	a.owner = next
	a.logger.Debug("Ownership of %s transferred from %d to %d", a.entity, prev, next)
	for _, l := range a.listeners {
		l(prev, next)
	}
}

// Send wraps payload in an envelope addressed to the entity.
func (a *Authority) Send(t messages.MessageType, payload []byte) error {
	m := &messages.Message{
		Sender:  a.link.LocalID(),
		Type:    t,
		Entity:  a.entity,
		Payload: payload,
	}
	if err := a.link.Send(m); err != nil {
		return fmt.Errorf("failed to send %s for %s: %v", t, a.entity, err)
	}
	return nil
}
