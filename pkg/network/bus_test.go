package network

import (
	"testing"

	"github.com/cbodonnell/cuesync/pkg/game/types"
	"github.com/cbodonnell/cuesync/pkg/messages"
	"github.com/cbodonnell/cuesync/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, q queue.Queue) []*messages.Message {
	t.Helper()
	var out []*messages.Message
	for _, item := range q.ReadAllMessages() {
		m, ok := item.(*messages.Message)
		require.True(t, ok)
		out = append(out, m)
	}
	return out
}

func messageTypes(ms []*messages.Message) []messages.MessageType {
	var out []messages.MessageType
	for _, m := range ms {
		out = append(out, m.Type)
	}
	return out
}

func TestBus_JoinAnnounces(t *testing.T) {
	bus := NewBus()
	qa, qb := queue.NewInMemoryQueue(16), queue.NewInMemoryQueue(16)

	a, err := bus.Join(qa)
	require.NoError(t, err)
	b, err := bus.Join(qb)
	require.NoError(t, err)

	assert.Equal(t, types.PeerID(1), a.LocalID())
	assert.Equal(t, types.PeerID(2), b.LocalID())
	assert.Equal(t, []types.PeerID{1, 2}, b.Peers())

	assert.Equal(t, []messages.MessageType{messages.MessageTypeWelcome, messages.MessageTypePeerJoined}, messageTypes(drain(t, qa)))
	got := drain(t, qb)
	require.Len(t, got, 1)
	var welcome messages.Welcome
	require.NoError(t, got[0].DecodePayload(&welcome))
	assert.Equal(t, types.PeerID(2), welcome.Peer)
	assert.Equal(t, []types.PeerID{1, 2}, welcome.Peers)
}

func TestBus_ClaimNotifiesEveryPeer(t *testing.T) {
	bus := NewBus()
	qa, qb := queue.NewInMemoryQueue(16), queue.NewInMemoryQueue(16)
	a, err := bus.Join(qa)
	require.NoError(t, err)
	b, err := bus.Join(qb)
	require.NoError(t, err)
	drain(t, qa)
	drain(t, qb)

	require.NoError(t, b.Claim(types.TableEntity))
	for _, q := range []queue.Queue{qa, qb} {
		got := drain(t, q)
		require.Len(t, got, 1)
		assert.Equal(t, messages.MessageTypeOwnershipTransfer, got[0].Type)
		var transfer messages.OwnershipTransfer
		require.NoError(t, got[0].DecodePayload(&transfer))
		assert.Equal(t, types.PeerID(2), transfer.Owner)
		assert.Equal(t, types.PeerID(1), transfer.Previous)
	}

	// a is no longer the owner; its snapshot never reaches b
	require.NoError(t, a.Send(&messages.Message{Type: messages.MessageTypeSnapshot, Entity: types.TableEntity, Payload: []byte{1}}))
	assert.Empty(t, drain(t, qb))

	require.NoError(t, b.Send(&messages.Message{Type: messages.MessageTypeSnapshot, Entity: types.TableEntity, Payload: []byte{2}}))
	got := drain(t, qa)
	require.Len(t, got, 1)
	assert.Equal(t, types.PeerID(2), got[0].Sender)
	assert.Equal(t, []byte{2}, got[0].Payload)
	assert.Empty(t, drain(t, qb))
}

func TestBus_CloseHandsOverOwnership(t *testing.T) {
	bus := NewBus()
	queues := []queue.Queue{queue.NewInMemoryQueue(16), queue.NewInMemoryQueue(16), queue.NewInMemoryQueue(16)}
	var peers []*BusPeer
	for _, q := range queues {
		p, err := bus.Join(q)
		require.NoError(t, err)
		peers = append(peers, p)
	}
	require.NoError(t, peers[0].Claim(types.TableEntity))
	for _, q := range queues {
		drain(t, q)
	}

	require.NoError(t, peers[0].Close())
	assert.Error(t, peers[0].Close())

	for _, q := range queues[1:] {
		got := drain(t, q)
		assert.Equal(t, []messages.MessageType{messages.MessageTypeOwnershipTransfer, messages.MessageTypePeerLeft}, messageTypes(got))
	}
	assert.Empty(t, drain(t, queues[0]))
	assert.Equal(t, types.PeerID(2), peers[2].Owner(types.TableEntity))
}
