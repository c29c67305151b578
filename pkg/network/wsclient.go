package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"nhooyr.io/websocket"
)

// WSClient is a Transport connected to a Relay. It mirrors the relay's
// arbiter from the announcements it receives.
type WSClient struct {
	url    string
	inbox  queue.Queue
	mirror *Arbiter
	logger *log.Logger

	lock    sync.RWMutex
	conn    *websocket.Conn
	localID types.PeerID
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Transport = (*WSClient)(nil)

type NewWSClientOptions struct {
	// URL is the table websocket endpoint, e.g. ws://host:8080/tables/main/ws
	URL   string
	Inbox queue.Queue
}

// NewWSClient creates a client that is not yet connected.
func NewWSClient(opts NewWSClientOptions) *WSClient {
	return &WSClient{
		url:    opts.URL,
		inbox:  opts.Inbox,
		mirror: NewArbiter(),
		logger: log.Named("wsclient"),
		done:   make(chan struct{}),
	}
}

// Connect dials the relay and waits for the welcome that assigns this peer's
// identity. Inbound envelopes are then read in the background until ctx is
// cancelled or the connection drops.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %v", c.url, err)
	}
	conn.SetReadLimit(messages.MessageBufferSize)

	welcome, err := ReadMessageFromWS(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "")
		return fmt.Errorf("failed to read welcome: %v", err)
	}
	if welcome.Type != messages.MessageTypeWelcome {
		conn.Close(websocket.StatusProtocolError, "")
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	var payload messages.Welcome
	if err := welcome.DecodePayload(&payload); err != nil {
		conn.Close(websocket.StatusProtocolError, "")
		return err
	}
	if err := c.mirror.Apply(welcome); err != nil {
		conn.Close(websocket.StatusProtocolError, "")
		return err
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.lock.Lock()
	c.conn = conn
	c.localID = payload.Peer
	c.cancel = cancel
	c.lock.Unlock()

	if err := c.inbox.Enqueue(welcome); err != nil {
		c.logger.Error("Failed to enqueue welcome: %v", err)
	}
	c.logger.Info("Connected to %s as peer %d", c.url, payload.Peer)

	go c.readLoop(readCtx, conn)
	return nil
}

func (c *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	for {
		m, err := ReadMessageFromWS(ctx, conn)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				c.logger.Error("Failed to read from relay: %v", err)
			}
			return
		}
		if err := c.mirror.Apply(m); err != nil {
			c.logger.Warn("Failed to apply %s: %v", m.Type, err)
		}
		if err := c.inbox.Enqueue(m); err != nil {
			c.logger.Error("Failed to enqueue %s: %v", m.Type, err)
		}
	}
}

// Done is closed when the connection is gone.
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

func (c *WSClient) LocalID() types.PeerID {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.localID
}

func (c *WSClient) Send(m *messages.Message) error {
	c.lock.RLock()
	conn := c.conn
	m.Sender = c.localID
	c.lock.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return WriteMessageToWS(context.Background(), conn, m)
}

func (c *WSClient) Claim(entity types.EntityID) error {
	return c.Send(&messages.Message{
		Type:   messages.MessageTypeOwnershipClaim,
		Entity: entity,
	})
}

func (c *WSClient) Owner(entity types.EntityID) types.PeerID {
	return c.mirror.Owner(entity)
}

func (c *WSClient) Peers() []types.PeerID {
	return c.mirror.Peers()
}

func (c *WSClient) Close() error {
	c.lock.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn = nil
	c.lock.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "")
	cancel()
	return err
}
