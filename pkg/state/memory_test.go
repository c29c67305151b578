package state

import (
	"context"
	"testing"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStateManager(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryStateManager("main")

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", got.TableID)

	in := &TableState{TableID: "main", Peers: []types.PeerID{1, 2}}
	in.Game.StateID = 3
	require.NoError(t, m.Set(ctx, in))

	// the stored copy is isolated from the caller's value
	in.Peers[0] = 9
	in.Game.StateID = 4

	got, err = m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Game.StateID)
	assert.Equal(t, []types.PeerID{1, 2}, got.Peers)

	got.Peers[1] = 7
	again, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{1, 2}, again.Peers)

	assert.Error(t, m.Set(ctx, nil))
}
