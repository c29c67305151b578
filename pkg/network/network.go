package network

import (
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/ownership"
)

// Transport is one peer's reliable, ordered connection to a table session.
// Inbound envelopes, including the arbiter's ownership transfers and peer
// notices, are delivered as *messages.Message to the queue the transport was
// created with.
type Transport interface {
	ownership.Link
	// Peers returns the connected peers in join order, this one included.
	Peers() []types.PeerID
	// Close leaves the session.
	Close() error
}

// TLSConfig holds the certificate pair for a TLS listener.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}
