package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/readowl/realtime/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// Authorizer decides whether a user may join a room. Implementations
// consult the data layer (conversation participants, group membership)
// and must be safe for concurrent use. The registry never holds its
// lock while calling an Authorizer.
type Authorizer interface {
	Authorize(ctx context.Context, userId string, room Room) error
}

// Registry tracks live connections and room membership. Two indexes are
// kept consistent under a single mutex: sessions (connId to client) and
// rooms (room name to member set). A per-user index supports kick and
// direct user pushes without scanning.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Client            // connId -> client
	rooms       map[Room]map[string]*Client   // room -> connId -> client
	users       map[string]map[string]*Client // userId -> connId -> client
	memberships map[string]map[Room]struct{}  // connId -> joined rooms
	rdb         *redis.Client
}

// NewRegistry creates a new Registry
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		sessions:    make(map[string]*Client),
		rooms:       make(map[Room]map[string]*Client),
		users:       make(map[string]map[string]*Client),
		memberships: make(map[string]map[Room]struct{}),
		rdb:         rdb,
	}
}

// Register adds a connection to the registry
func (r *Registry) Register(ctx context.Context, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[client.ConnId] = client
	r.memberships[client.ConnId] = make(map[Room]struct{})

	userConns, exists := r.users[client.UserId]
	if !exists {
		userConns = make(map[string]*Client, 2)
		r.users[client.UserId] = userConns
	}
	userConns[client.ConnId] = client

	r.setOnline(ctx, client.UserId)
}

// Unregister removes a connection and all its room memberships. The
// first result reports whether the session was still registered; it is
// false on repeat calls so counter updates stay tied to the one call
// that actually removed the session. The second result is true when
// this was the user's last connection.
func (r *Registry) Unregister(ctx context.Context, client *Client) (removed, lastConn bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[client.ConnId]; !exists {
		return false, false
	}
	delete(r.sessions, client.ConnId)

	for room := range r.memberships[client.ConnId] {
		r.leaveLocked(client.ConnId, room)
	}
	delete(r.memberships, client.ConnId)

	userConns := r.users[client.UserId]
	delete(userConns, client.ConnId)
	if len(userConns) == 0 {
		delete(r.users, client.UserId)
		r.setOffline(ctx, client.UserId)
		return true, true
	}
	return true, false
}

// Join subscribes a registered connection to a room. Authorization runs
// before this call; a connection that unregistered in between is
// reported as ErrUnknownConnection and the room is left untouched.
func (r *Registry) Join(connId string, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, exists := r.sessions[connId]
	if !exists {
		return ErrUnknownConnection
	}

	members, exists := r.rooms[room]
	if !exists {
		members = make(map[string]*Client, 4)
		r.rooms[room] = members
	}
	members[connId] = client
	r.memberships[connId][room] = struct{}{}
	return nil
}

// Leave unsubscribes a connection from a room. Leaving a room the
// connection is not in is a no-op.
func (r *Registry) Leave(connId string, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connId]; !exists {
		return ErrUnknownConnection
	}
	r.leaveLocked(connId, room)
	return nil
}

// leaveLocked removes connId from room and drops the room when its last
// member leaves. Caller holds r.mu.
func (r *Registry) leaveLocked(connId string, room Room) {
	members, exists := r.rooms[room]
	if !exists {
		return
	}
	delete(members, connId)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if rooms, ok := r.memberships[connId]; ok {
		delete(rooms, room)
	}
}

// Members returns a snapshot of the room's current members
func (r *Registry) Members(room Room) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, exists := r.rooms[room]
	if !exists {
		return nil
	}
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	return clients
}

// InRoom reports whether the connection is currently a member of room
func (r *Registry) InRoom(connId string, room Room) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, exists := r.rooms[room]
	if !exists {
		return false
	}
	_, ok := members[connId]
	return ok
}

// GetByUser returns all connections for a user
func (r *Registry) GetByUser(userId string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns, exists := r.users[userId]
	if !exists {
		return nil
	}
	clients := make([]*Client, 0, len(userConns))
	for _, c := range userConns {
		clients = append(clients, c)
	}
	return clients
}

// HasConnection checks if user has any live connection on this node
func (r *Registry) HasConnection(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns, exists := r.users[userId]
	return exists && len(userConns) > 0
}

// OnlineUserCount returns the number of distinct online users
func (r *Registry) OnlineUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// OnlineConnCount returns the total number of connections
func (r *Registry) OnlineConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomCount returns the number of rooms with at least one member
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// IsOnline checks if user is online (checks Redis for distributed support)
func (r *Registry) IsOnline(ctx context.Context, userId string) bool {
	if r.HasConnection(userId) {
		return true
	}
	if r.rdb != nil {
		key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
		exists, _ := r.rdb.Exists(ctx, key).Result()
		return exists > 0
	}
	return false
}

// setOnline marks user as online in Redis
func (r *Registry) setOnline(ctx context.Context, userId string) {
	if r.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	r.rdb.Set(ctx, key, "1", 60*time.Second)
}

// setOffline marks user as offline in Redis
func (r *Registry) setOffline(ctx context.Context, userId string) {
	if r.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
	r.rdb.Del(ctx, key)
}

// RefreshOnlineStatus refreshes the online status TTL
func (r *Registry) RefreshOnlineStatus(ctx context.Context, userId string) {
	if r.rdb == nil {
		return
	}
	if r.HasConnection(userId) {
		key := fmt.Sprintf(constant.RedisKeyOnline(), userId)
		r.rdb.Expire(ctx, key, 60*time.Second)
	}
}
