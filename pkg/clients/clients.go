package clients

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"nhooyr.io/websocket"
)

const (
	// ClientIDMaxRetries represents the maximum number of retries when generating a unique ID
	ClientIDMaxRetries = 1024
)

// Client is a peer connected to the relay.
type Client struct {
	ID      types.PeerID
	TableID string
	Conn    *websocket.Conn
}

// ClientManager tracks connected relay clients across tables.
type ClientManager struct {
	clients     map[types.PeerID]*Client
	clientsLock sync.RWMutex
	nextID      types.PeerID
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[types.PeerID]*Client),
		nextID:  1,
	}
}

// AddClient registers a connection at a table and returns its peer id.
func (cm *ClientManager) AddClient(tableID string, conn *websocket.Conn) (types.PeerID, error) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()
	clientID, err := cm.generateUniqueID(ClientIDMaxRetries)
	if err != nil {
		return types.NoPeer, fmt.Errorf("failed to generate a unique ID: %v", err)
	}
	cm.clients[clientID] = &Client{
		ID:      clientID,
		TableID: tableID,
		Conn:    conn,
	}
	return clientID, nil
}

// RemoveClient removes a client from the manager.
func (cm *ClientManager) RemoveClient(clientID types.PeerID) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()
	delete(cm.clients, clientID)
}

// GetClientByID retrieves a client by its ID, or nil.
func (cm *ClientManager) GetClientByID(clientID types.PeerID) *Client {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return cm.clients[clientID]
}

// GetTableClients returns the clients at a table ordered by id.
func (cm *ClientManager) GetTableClients(tableID string) []*Client {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	var clients []*Client
	for _, client := range cm.clients {
		if client.TableID == tableID {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}

// Count returns the number of connected clients.
func (cm *ClientManager) Count() int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return len(cm.clients)
}

func (cm *ClientManager) Exists(clientID types.PeerID) bool {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	_, ok := cm.clients[clientID]
	return ok
}

// generateUniqueID generates a unique client ID with a maximum number of retries
// it reads from the clients, so it needs to be locked before calling
func (cm *ClientManager) generateUniqueID(maxRetries int) (types.PeerID, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		id := cm.nextID
		cm.nextID++
		if id == types.NoPeer {
			continue
		}
		if _, ok := cm.clients[id]; !ok {
			return id, nil
		}
	}

	return types.NoPeer, fmt.Errorf("failed to generate a unique ID after %d attempts", maxRetries)
}
