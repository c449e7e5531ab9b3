package gateway

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/readowl/realtime/internal/entity"
)

// Router fans frames out to room members. Delivery is synchronous per
// room: members are walked in one pass per broadcast, so two broadcasts
// issued in order from the same goroutine reach every shared member in
// that order. Per-connection writes stay non-blocking; a slow consumer
// overflows its write channel and is disconnected rather than stalling
// the room.
type Router struct {
	registry *Registry
}

// NewRouter creates a new Router
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// BroadcastNewMessage delivers a message to every member of room.
// Returns the number of connections reached.
func (r *Router) BroadcastNewMessage(ctx context.Context, room Room, targetId string, msg *entity.MessageInfo) int {
	return r.broadcast(ctx, room, func(c *Client) error {
		return c.PushNewMessage(targetId, msg)
	})
}

// BroadcastNewActivity delivers a new activity to every member of room
func (r *Router) BroadcastNewActivity(ctx context.Context, room Room, activity *entity.ActivityInfo) int {
	return r.broadcast(ctx, room, func(c *Client) error {
		return c.PushNewActivity(activity)
	})
}

// BroadcastActivityUpdate delivers a metadata patch to every member of room
func (r *Router) BroadcastActivityUpdate(ctx context.Context, room Room, activityId int64, patch *entity.ActivityMetadata) int {
	return r.broadcast(ctx, room, func(c *Client) error {
		return c.PushActivityUpdate(activityId, patch)
	})
}

// BroadcastActivityDelete delivers a tombstone notice to every member of room
func (r *Router) BroadcastActivityDelete(ctx context.Context, room Room, activityId int64) int {
	return r.broadcast(ctx, room, func(c *Client) error {
		return c.PushActivityDelete(activityId)
	})
}

// PushNewMessageToUser delivers a message to all of a user's connections
// regardless of room membership. Used for conversation notifications to
// recipients who have not joined the conversation room.
func (r *Router) PushNewMessageToUser(ctx context.Context, userId, targetId string, msg *entity.MessageInfo) int {
	sent := 0
	for _, client := range r.registry.GetByUser(userId) {
		if err := client.PushNewMessage(targetId, msg); err != nil {
			r.dropClient(ctx, client, err)
			continue
		}
		sent++
	}
	return sent
}

// broadcast walks the room's member snapshot and applies send to each.
// A failed write means the connection is dead or hopelessly behind, so
// the client is closed and skipped.
func (r *Router) broadcast(ctx context.Context, room Room, send func(*Client) error) int {
	members := r.registry.Members(room)
	sent := 0
	for _, client := range members {
		if err := send(client); err != nil {
			r.dropClient(ctx, client, err)
			continue
		}
		sent++
	}
	return sent
}

// dropClient closes a connection whose write failed. Unregistration is
// queued to the server's event loop, the single place the registry and
// the online counters change together; the read loop queueing the same
// client again is harmless.
func (r *Router) dropClient(ctx context.Context, client *Client, err error) {
	log.CtxWarn(ctx, "dropping client on push failure: user_id=%s, conn_id=%s, error=%v",
		client.UserId, client.ConnId, err)
	client.close()
}
