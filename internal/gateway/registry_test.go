package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readowl/realtime/internal/config"
	"github.com/readowl/realtime/pkg/errcode"
)

// fakeConn is an in-memory ClientConn for registry and handler tests.
// A non-nil writeErr makes every write fail, standing in for a dead peer.
type fakeConn struct {
	written  [][]byte
	closed   bool
	writeErr error
}

func (c *fakeConn) ReadMessage() ([]byte, error) { select {} }
func (c *fakeConn) WriteMessage(data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, data)
	return nil
}
func (c *fakeConn) Close() error                       { c.closed = true; return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func newTestClient(userId, connId string, guest bool, server *WsServer) *Client {
	return NewClient(&fakeConn{}, userId, guest, "", connId, server)
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	c1 := newTestClient("u___1", "conn-1", false, nil)
	c2 := newTestClient("u___1", "conn-2", false, nil)

	reg.Register(ctx, c1)
	reg.Register(ctx, c2)

	assert.Equal(t, 1, reg.OnlineUserCount())
	assert.Equal(t, 2, reg.OnlineConnCount())
	assert.True(t, reg.HasConnection("u___1"))

	// First conn leaves; the user stays online
	removed, lastConn := reg.Unregister(ctx, c1)
	assert.True(t, removed)
	assert.False(t, lastConn)
	assert.True(t, reg.HasConnection("u___1"))

	// Last conn leaves
	removed, lastConn = reg.Unregister(ctx, c2)
	assert.True(t, removed)
	assert.True(t, lastConn)
	assert.False(t, reg.HasConnection("u___1"))
	assert.Equal(t, 0, reg.OnlineConnCount())

	// A repeat unregister reports nothing removed
	removed, lastConn = reg.Unregister(ctx, c2)
	assert.False(t, removed)
	assert.False(t, lastConn)
}

func TestRegistryJoinLeave(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	c1 := newTestClient("u___1", "conn-1", false, nil)
	c2 := newTestClient("u___2", "conn-2", false, nil)
	reg.Register(ctx, c1)
	reg.Register(ctx, c2)

	room := ChannelRoom("ch1")
	require.NoError(t, reg.Join("conn-1", room))
	require.NoError(t, reg.Join("conn-2", room))

	members := reg.Members(room)
	assert.Len(t, members, 2)
	assert.True(t, reg.InRoom("conn-1", room))

	require.NoError(t, reg.Leave("conn-1", room))
	assert.False(t, reg.InRoom("conn-1", room))
	assert.Len(t, reg.Members(room), 1)

	// Leaving again is a no-op
	require.NoError(t, reg.Leave("conn-1", room))
}

func TestRegistryJoinUnknownConnection(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Join("ghost", ChannelRoom("ch1"))
	assert.ErrorIs(t, err, ErrUnknownConnection)
	assert.Empty(t, reg.Members(ChannelRoom("ch1")))
}

func TestRegistryUnregisterCleansAllRooms(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	c1 := newTestClient("u___1", "conn-1", false, nil)
	reg.Register(ctx, c1)
	require.NoError(t, reg.Join("conn-1", ChannelRoom("ch1")))
	require.NoError(t, reg.Join("conn-1", ConversationRoom("cv_a:b")))
	require.NoError(t, reg.Join("conn-1", GlobalStream))

	reg.Unregister(ctx, c1)

	// Every room the connection occupied is emptied and dropped
	assert.Empty(t, reg.Members(ChannelRoom("ch1")))
	assert.Empty(t, reg.Members(ConversationRoom("cv_a:b")))
	assert.Empty(t, reg.Members(GlobalStream))
	assert.Equal(t, 0, reg.RoomCount())

	// Operations on the departed connection report the benign race
	assert.ErrorIs(t, reg.Join("conn-1", GlobalStream), ErrUnknownConnection)
}

// allowAll authorizes every join; denyAll rejects every join
type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, userId string, room Room) error { return nil }

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context, userId string, room Room) error {
	return errcode.ErrRoomAuthorization
}

func testConfig() *config.Config {
	return &config.Config{
		WebSocket: config.WebSocketConfig{
			MaxConnNum:       100,
			MaxMessageSize:   51200,
			WriteChannelSize: 16,
			AllowGuests:      true,
		},
	}
}

func joinReq(t *testing.T, room string) *WSRequest {
	t.Helper()
	data, err := json.Marshal(&JoinRoomReq{Room: room})
	require.NoError(t, err)
	return &WSRequest{ReqIdentifier: WSJoinRoom, Data: data}
}

func TestHandleJoinRoomDenied(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, denyAll{}, nil)

	client := newTestClient("u___3", "conn-3", false, server)
	server.Registry().Register(ctx, client)

	_, err := server.HandleJoinRoom(ctx, client, joinReq(t, "channel:private-ch"))
	assert.ErrorIs(t, err, errcode.ErrRoomAuthorization)

	// A denied join never touches the member set
	assert.Empty(t, server.Registry().Members(ChannelRoom("private-ch")))
}

func TestHandleJoinRoomAllowed(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	client := newTestClient("u___3", "conn-3", false, server)
	server.Registry().Register(ctx, client)

	_, err := server.HandleJoinRoom(ctx, client, joinReq(t, "channel:ch1"))
	require.NoError(t, err)
	assert.True(t, server.Registry().InRoom("conn-3", ChannelRoom("ch1")))
}

func TestHandleJoinRoomIdentityRooms(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, denyAll{}, nil)

	client := newTestClient("u___3", "conn-3", false, server)
	server.Registry().Register(ctx, client)

	// Own personal room joins without consulting the authorizer
	_, err := server.HandleJoinRoom(ctx, client, joinReq(t, "user:u___3"))
	require.NoError(t, err)

	// Someone else's personal room is always denied
	_, err = server.HandleJoinRoom(ctx, client, joinReq(t, "user:u___4"))
	assert.ErrorIs(t, err, errcode.ErrRoomAuthorization)
	assert.Empty(t, server.Registry().Members(UserRoom("u___4")))
}

func TestHandleJoinRoomGuestRestrictions(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	guest := newTestClient("g___1", "conn-g", true, server)
	server.Registry().Register(ctx, guest)

	// Guests may join only the global stream
	_, err := server.HandleJoinRoom(ctx, guest, joinReq(t, "global-stream"))
	require.NoError(t, err)

	for _, room := range []string{"channel:ch1", "conversation:cv_a:b", "user:g___1", "group-shelf:g___1"} {
		_, err := server.HandleJoinRoom(ctx, guest, joinReq(t, room))
		assert.ErrorIs(t, err, errcode.ErrGuestRestricted, room)
	}
}

func TestHandleJoinRoomAfterDisconnect(t *testing.T) {
	ctx := context.Background()
	server := NewWsServer(testConfig(), nil, allowAll{}, nil)

	client := newTestClient("u___3", "conn-3", false, server)
	server.Registry().Register(ctx, client)
	server.Registry().Unregister(ctx, client)

	// The disconnect race is absorbed, not surfaced
	_, err := server.HandleJoinRoom(ctx, client, joinReq(t, "channel:ch1"))
	assert.NoError(t, err)
	assert.Empty(t, server.Registry().Members(ChannelRoom("ch1")))
}
