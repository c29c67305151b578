package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cbodonnell/cuesync/pkg/clients"
	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/log"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

const (
	// WriteTimeout bounds a single websocket write
	WriteTimeout = 5 * time.Second
)

// Relay is the websocket server peers of a table connect through. It owns one
// Arbiter per table and forwards envelopes between the table's peers.
type Relay struct {
	port          int
	tls           *TLSConfig
	clientManager *clients.ClientManager
	clientEvents  *clients.ClientEventManager
	logger        *log.Logger

	lock   sync.Mutex
	tables map[string]*relayTable
}

// relayTable serializes claims and forwarding for one table so every peer
// observes the same order of transfers and snapshots.
type relayTable struct {
	lock    sync.Mutex
	arbiter *Arbiter
}

type NewRelayOptions struct {
	Port          int
	TLS           *TLSConfig
	ClientManager *clients.ClientManager
	ClientEvents  *clients.ClientEventManager
}

// NewRelay creates a new relay server.
func NewRelay(opts NewRelayOptions) *Relay {
	return &Relay{
		port:          opts.Port,
		tls:           opts.TLS,
		clientManager: opts.ClientManager,
		clientEvents:  opts.ClientEvents,
		logger:        log.Named("relay"),
		tables:        make(map[string]*relayTable),
	}
}

// Router returns the relay routes.
func (s *Relay) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/tables/{tableID}/ws", s.HandleTable).Methods(http.MethodGet)
	return r
}

// Start serves the relay until ctx is cancelled.
func (s *Relay) Start(ctx context.Context) {
	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	var listenAndServe func() error
	if s.tls != nil {
		s.logger.Info("Relay listening on %s with TLS", addr)
		listenAndServe = func() error {
			return server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		s.logger.Info("Relay listening on %s", addr)
		listenAndServe = server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.Info("Relay closed")
			return
		}
		s.logger.Error("Relay error: %v", err)
	}
}

// Arbiter returns the arbiter of a table, or nil if nobody ever joined it.
func (s *Relay) Arbiter(tableID string) *Arbiter {
	s.lock.Lock()
	defer s.lock.Unlock()
	if t, ok := s.tables[tableID]; ok {
		return t.arbiter
	}
	return nil
}

func (s *Relay) table(tableID string) *relayTable {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		t = &relayTable{arbiter: NewArbiter()}
		s.tables[tableID] = t
	}
	return t
}

// HandleTable upgrades the request and relays the peer's envelopes until it
// disconnects.
func (s *Relay) HandleTable(w http.ResponseWriter, r *http.Request) {
	tableID := mux.Vars(r)["tableID"]
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Error("Failed to accept websocket: %v", err)
		return
	}
	conn.SetReadLimit(messages.MessageBufferSize)

	ctx := r.Context()
	peer, err := s.join(ctx, tableID, conn)
	if err != nil {
		s.logger.Error("Failed to join table %s: %v", tableID, err)
		conn.Close(websocket.StatusInternalError, "failed to join")
		return
	}
	defer func() {
		s.leave(ctx, tableID, peer)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Error reading from peer %d: %v", peer, err)
			}
			s.logger.Trace("Connection closed for peer %d", peer)
			return
		}
		message, err := messages.DeserializeMessage(data)
		if err != nil {
			s.logger.Warn("Dropped malformed message from peer %d: %v", peer, err)
			continue
		}
		s.handleMessage(ctx, tableID, peer, message)
	}
}

func (s *Relay) join(ctx context.Context, tableID string, conn *websocket.Conn) (types.PeerID, error) {
	t := s.table(tableID)
	t.lock.Lock()
	defer t.lock.Unlock()

	peer, err := s.clientManager.AddClient(tableID, conn)
	if err != nil {
		return types.NoPeer, err
	}

	if err := t.arbiter.Join(peer); err != nil {
		s.clientManager.RemoveClient(peer)
		return types.NoPeer, err
	}
	welcome, err := t.arbiter.Welcome(peer)
	if err != nil {
		return types.NoPeer, err
	}
	if err := WriteMessageToWS(ctx, conn, welcome); err != nil {
		t.arbiter.Leave(peer)
		s.clientManager.RemoveClient(peer)
		return types.NoPeer, fmt.Errorf("failed to send welcome: %v", err)
	}
	joined, err := PeerNotice(messages.MessageTypePeerJoined, peer)
	if err != nil {
		return types.NoPeer, err
	}
	s.broadcast(ctx, tableID, joined, peer)

	s.logger.Info("Peer %d joined table %s", peer, tableID)
	if s.clientEvents != nil {
		s.clientEvents.Trigger(clients.ClientEvent{ClientID: peer, TableID: tableID, Type: clients.ClientEventTypeConnect})
	}
	return peer, nil
}

func (s *Relay) leave(ctx context.Context, tableID string, peer types.PeerID) {
	s.clientManager.RemoveClient(peer)

	t := s.table(tableID)
	t.lock.Lock()
	defer t.lock.Unlock()

	// the request context is already done once the peer is gone
	ctx = context.WithoutCancel(ctx)
	for _, transfer := range t.arbiter.Leave(peer) {
		m, err := transfer.Message()
		if err != nil {
			s.logger.Error("Failed to build transfer of %s: %v", transfer.Entity, err)
			continue
		}
		s.broadcast(ctx, tableID, m, types.NoPeer)
	}
	left, err := PeerNotice(messages.MessageTypePeerLeft, peer)
	if err != nil {
		s.logger.Error("Failed to build peer left notice: %v", err)
		return
	}
	s.broadcast(ctx, tableID, left, types.NoPeer)

	s.logger.Info("Peer %d left table %s", peer, tableID)
	if s.clientEvents != nil {
		s.clientEvents.Trigger(clients.ClientEvent{ClientID: peer, TableID: tableID, Type: clients.ClientEventTypeDisconnect})
	}
}

func (s *Relay) handleMessage(ctx context.Context, tableID string, peer types.PeerID, m *messages.Message) {
	t := s.table(tableID)
	t.lock.Lock()
	defer t.lock.Unlock()

	m.Sender = peer
	switch m.Type {
	case messages.MessageTypeOwnershipClaim:
		transfer, err := t.arbiter.Claim(peer, m.Entity)
		if err != nil {
			s.logger.Warn("Rejected claim of %s by peer %d: %v", m.Entity, peer, err)
			return
		}
		announce, err := transfer.Message()
		if err != nil {
			s.logger.Error("Failed to build transfer of %s: %v", m.Entity, err)
			return
		}
		s.broadcast(ctx, tableID, announce, types.NoPeer)
	default:
		if !t.arbiter.Admit(m) {
			s.logger.Debug("Dropped %s for %s from peer %d", m.Type, m.Entity, peer)
			return
		}
		s.broadcast(ctx, tableID, m, peer)
	}
}

// broadcast writes m to every client at the table except skip. Callers hold
// the table lock.
func (s *Relay) broadcast(ctx context.Context, tableID string, m *messages.Message, skip types.PeerID) {
	for _, client := range s.clientManager.GetTableClients(tableID) {
		if client.ID == skip || client.Conn == nil {
			continue
		}
		if err := WriteMessageToWS(ctx, client.Conn, m); err != nil {
			s.logger.Error("Failed to send %s to peer %d: %v", m.Type, client.ID, err)
		}
	}
}

// WriteMessageToWS writes a compressed envelope to a websocket connection.
func WriteMessageToWS(ctx context.Context, conn *websocket.Conn, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

// ReadMessageFromWS reads a compressed envelope from a websocket connection.
func ReadMessageFromWS(ctx context.Context, conn *websocket.Conn) (*messages.Message, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := messages.DeserializeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return msg, nil
}
