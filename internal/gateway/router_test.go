package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readowl/realtime/internal/entity"
)

// drainUnregisters processes every queued unregister event, standing in
// for the server's event loop
func drainUnregisters(ctx context.Context, s *WsServer) {
	for {
		select {
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		default:
			return
		}
	}
}

func TestBroadcastOrderAndCount(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	c1 := newTestClient("u___1", "conn-1", false, server)
	c2 := newTestClient("u___2", "conn-2", false, server)
	server.registerClient(ctx, c1)
	server.registerClient(ctx, c2)

	room := ChannelRoom("ch1")
	require.NoError(t, server.Registry().Join("conn-1", room))
	require.NoError(t, server.Registry().Join("conn-2", room))

	msg := &entity.MessageInfo{Id: 1, SenderId: "u___1", Body: "hi"}
	sent := server.Router().BroadcastNewMessage(ctx, room, "ch1", msg)
	assert.Equal(t, 2, sent)

	// Non-members are untouched
	sent = server.Router().BroadcastNewMessage(ctx, ConversationRoom("cv_x:y"), "cv_x:y", msg)
	assert.Equal(t, 0, sent)
}

func TestDropOnWriteFailureKeepsCountersExact(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	client := NewClient(conn, "u___1", false, "", "conn-1", server)
	server.registerClient(ctx, client)
	require.NoError(t, server.Registry().Join("conn-1", ChannelRoom("ch1")))

	assert.Equal(t, int64(1), server.GetOnlineUserCount())
	assert.Equal(t, int64(1), server.GetOnlineConnCount())

	msg := &entity.MessageInfo{Id: 1, SenderId: "u___2", Body: "hi"}
	sent := server.Router().BroadcastNewMessage(ctx, ChannelRoom("ch1"), "ch1", msg)
	assert.Equal(t, 0, sent)
	assert.True(t, client.IsClosed())

	// The drop queued the unregister; the read loop noticing the closed
	// connection queues it again
	server.UnregisterClient(client)
	drainUnregisters(ctx, server)

	assert.Equal(t, int64(0), server.GetOnlineUserCount())
	assert.Equal(t, int64(0), server.GetOnlineConnCount())
	assert.Empty(t, server.Registry().Members(ChannelRoom("ch1")))
}

func TestDropLastConnectionTakesUserOffline(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	good := newTestClient("u___1", "conn-good", false, server)
	bad := NewClient(&fakeConn{writeErr: errors.New("broken pipe")}, "u___1", false, "", "conn-bad", server)
	server.registerClient(ctx, good)
	server.registerClient(ctx, bad)

	room := ChannelRoom("ch1")
	require.NoError(t, server.Registry().Join("conn-good", room))
	require.NoError(t, server.Registry().Join("conn-bad", room))

	msg := &entity.MessageInfo{Id: 1, SenderId: "u___2", Body: "hi"}
	sent := server.Router().BroadcastNewMessage(ctx, room, "ch1", msg)
	assert.Equal(t, 1, sent)

	drainUnregisters(ctx, server)

	// One connection survives, so the user is still online
	assert.Equal(t, int64(1), server.GetOnlineUserCount())
	assert.Equal(t, int64(1), server.GetOnlineConnCount())

	server.UnregisterClient(good)
	drainUnregisters(ctx, server)
	assert.Equal(t, int64(0), server.GetOnlineUserCount())
	assert.Equal(t, int64(0), server.GetOnlineConnCount())
}

func TestKickUserClosesEveryConnection(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	conn1 := &fakeConn{}
	conn2 := &fakeConn{}
	c1 := NewClient(conn1, "u___1", false, "", "conn-1", server)
	c2 := NewClient(conn2, "u___1", false, "", "conn-2", server)
	server.registerClient(ctx, c1)
	server.registerClient(ctx, c2)

	assert.True(t, server.Registry().IsOnline(ctx, "u___1"))

	kicked := server.KickUser(ctx, "u___1")
	assert.Equal(t, 2, kicked)

	// Every connection gets the kick frame before it closes
	for _, conn := range []*fakeConn{conn1, conn2} {
		require.NotEmpty(t, conn.written)
		var resp WSResponse
		require.NoError(t, json.Unmarshal(conn.written[len(conn.written)-1], &resp))
		assert.Equal(t, int32(WSKickOnlineMsg), resp.ReqIdentifier)
		assert.True(t, conn.closed)
	}

	drainUnregisters(ctx, server)
	assert.Equal(t, int64(0), server.GetOnlineUserCount())
	assert.Equal(t, int64(0), server.GetOnlineConnCount())
	assert.False(t, server.Registry().IsOnline(ctx, "u___1"))
}

func TestPushNewMessageToUserReachesAllConnections(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	c1 := newTestClient("u___1", "conn-1", false, server)
	c2 := newTestClient("u___1", "conn-2", false, server)
	server.registerClient(ctx, c1)
	server.registerClient(ctx, c2)

	msg := &entity.MessageInfo{Id: 1, SenderId: "u___2", Body: "hi"}
	sent := server.Router().PushNewMessageToUser(ctx, "u___1", "cv_a:b", msg)
	assert.Equal(t, 2, sent)

	sent = server.Router().PushNewMessageToUser(ctx, "u___9", "cv_a:b", msg)
	assert.Equal(t, 0, sent)
}
