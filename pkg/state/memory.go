package state

import (
	"context"
	"fmt"
	"sync"
)

type InMemoryStateManager struct {
	lock       sync.RWMutex
	tableState *TableState
}

func NewInMemoryStateManager(tableID string) *InMemoryStateManager {
	return &InMemoryStateManager{
		tableState: &TableState{TableID: tableID},
	}
}

func (m *InMemoryStateManager) Get(ctx context.Context) (*TableState, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	copy := *m.tableState
	copy.Peers = append(copy.Peers[:0:0], m.tableState.Peers...)
	return &copy, nil
}

func (m *InMemoryStateManager) Set(ctx context.Context, tableState *TableState) error {
	if tableState == nil {
		return fmt.Errorf("table state is nil")
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	copy := *tableState
	copy.Peers = append(copy.Peers[:0:0], tableState.Peers...)
	m.tableState = &copy
	return nil
}
