package dispatcher

import (
	"context"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/internal/gateway"
	"github.com/readowl/realtime/pkg/errcode"
)

const excerptLimit = 120

// Broadcaster is the fan-out surface the dispatcher drives. The room
// router implements it; tests substitute a recorder.
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, room gateway.Room, targetId string, msg *entity.MessageInfo) int
	BroadcastNewActivity(ctx context.Context, room gateway.Room, activity *entity.ActivityInfo) int
	BroadcastActivityUpdate(ctx context.Context, room gateway.Room, activityId int64, patch *entity.ActivityMetadata) int
	BroadcastActivityDelete(ctx context.Context, room gateway.Room, activityId int64) int
	PushNewMessageToUser(ctx context.Context, userId, targetId string, msg *entity.MessageInfo) int
}

// FeedWriter is the slice of the feed aggregator the dispatcher uses
type FeedWriter interface {
	Append(ctx context.Context, activity *entity.Activity) (int64, error)
	GetById(ctx context.Context, id int64) (*entity.ActivityInfo, error)
	UpdateMetadata(ctx context.Context, id int64, patch *entity.ActivityMetadata) error
	SoftDelete(ctx context.Context, id int64) error
}

// UnreadWriter records implicit read positions and drops stale caches
type UnreadWriter interface {
	NoteOwnSend(ctx context.Context, userId, targetId string, sendAt int64) error
	Invalidate(ctx context.Context, userId string)
}

// ShelfLookup resolves which users currently shelve a content
type ShelfLookup interface {
	UsersWithContentOnShelf(ctx context.Context, contentId string) ([]string, error)
}

// GroupLookup resolves groups for the public-group feed check and the
// member set whose unread caches a channel send staled
type GroupLookup interface {
	GetById(ctx context.Context, groupId string) (*entity.Group, error)
	ActiveMemberUserIds(ctx context.Context, groupId string) ([]string, error)
}

// ConversationLookup resolves DM recipients
type ConversationLookup interface {
	GetById(ctx context.Context, conversationId string) (*entity.Conversation, error)
}

// Dispatcher is the single call site that turns a committed mutation
// into its side effects, in a fixed order: activity append, read
// position update, room broadcast. A client that reacts to a broadcast
// by refetching always finds the state the broadcast announced.
type Dispatcher struct {
	broadcaster Broadcaster
	feed        FeedWriter
	unread      UnreadWriter
	shelves     ShelfLookup
	groups      GroupLookup
	convs       ConversationLookup
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(broadcaster Broadcaster, feed FeedWriter, unread UnreadWriter, shelves ShelfLookup, groups GroupLookup, convs ConversationLookup) *Dispatcher {
	return &Dispatcher{
		broadcaster: broadcaster,
		feed:        feed,
		unread:      unread,
		shelves:     shelves,
		groups:      groups,
		convs:       convs,
	}
}

// MessageSent dispatches a durably committed message. The feed append
// for public-group messages is best-effort: its failure is logged and
// the rest of the pipeline proceeds.
func (d *Dispatcher) MessageSent(ctx context.Context, msg *entity.Message, info *entity.MessageInfo) error {
	if msg.IsChannelMessage() {
		d.appendGroupMessageActivity(ctx, msg)
	}

	// A send is an implicit read of everything before it
	if err := d.unread.NoteOwnSend(ctx, msg.SenderId, msg.TargetId(), msg.SendAt); err != nil {
		log.CtxWarn(ctx, "implicit read position update failed: user_id=%s, target_id=%s, error=%v",
			msg.SenderId, msg.TargetId(), err)
	}

	if msg.IsChannelMessage() {
		d.broadcaster.BroadcastNewMessage(ctx, gateway.ChannelRoom(msg.ChannelId), msg.ChannelId, info)
		d.invalidateGroupMembers(ctx, msg.GroupId, msg.SenderId)
		return nil
	}

	d.broadcaster.BroadcastNewMessage(ctx, gateway.ConversationRoom(msg.ConversationId), msg.ConversationId, info)

	// Redundant personal-room notification so a recipient who never
	// joined the conversation room still gets an unread signal
	conv, err := d.convs.GetById(ctx, msg.ConversationId)
	if err != nil {
		log.CtxWarn(ctx, "recipient lookup failed: conversation_id=%s, error=%v", msg.ConversationId, err)
		return nil
	}
	if conv == nil {
		return nil
	}
	if peer := conv.PeerOf(msg.SenderId); peer != "" {
		d.broadcaster.PushNewMessageToUser(ctx, peer, msg.ConversationId, info)
		d.unread.Invalidate(ctx, peer)
	}
	return nil
}

// Activity records a new feed entry and broadcasts it. A record failure
// aborts only this dispatch; callers on committed-mutation paths treat
// it as non-fatal.
func (d *Dispatcher) Activity(ctx context.Context, kind entity.ActivityKind, actorId, targetUserId, contentId string, meta *entity.ActivityMetadata) (int64, error) {
	if !kind.Valid() {
		return 0, errcode.ErrInvalidParam
	}

	activity := &entity.Activity{
		Kind:         kind,
		ActorId:      actorId,
		TargetUserId: targetUserId,
		ContentId:    contentId,
	}
	if err := activity.SetMetadata(meta); err != nil {
		return 0, errcode.ErrInvalidParam.Wrap(err)
	}

	id, err := d.feed.Append(ctx, activity)
	if err != nil {
		log.CtxWarn(ctx, "activity record failed: kind=%s, actor_id=%s, error=%v", kind, actorId, err)
		return 0, err
	}

	info := activity.ToActivityInfo()
	for _, room := range d.targetRooms(ctx, info.TargetUserId, info.ContentId) {
		d.broadcaster.BroadcastNewActivity(ctx, room, info)
	}
	return id, nil
}

// ActivityUpdated persists a metadata patch and notifies the recomputed
// room set
func (d *Dispatcher) ActivityUpdated(ctx context.Context, id int64, patch *entity.ActivityMetadata) error {
	if err := d.feed.UpdateMetadata(ctx, id, patch); err != nil {
		return err
	}

	info, err := d.feed.GetById(ctx, id)
	if err != nil {
		return err
	}
	for _, room := range d.targetRooms(ctx, info.TargetUserId, info.ContentId) {
		d.broadcaster.BroadcastActivityUpdate(ctx, room, id, patch)
	}
	return nil
}

// ActivityDeleted tombstones an activity and notifies the recomputed
// room set
func (d *Dispatcher) ActivityDeleted(ctx context.Context, id int64) error {
	info, err := d.feed.GetById(ctx, id)
	if err != nil {
		return err
	}
	if err := d.feed.SoftDelete(ctx, id); err != nil {
		return err
	}

	for _, room := range d.targetRooms(ctx, info.TargetUserId, info.ContentId) {
		d.broadcaster.BroadcastActivityDelete(ctx, room, id)
	}
	return nil
}

// targetRooms computes the fan-out set for an activity: the global
// stream, the target user's personal room, and the shelf room of every
// user currently shelving the content. Recomputed on every dispatch
// since shelf membership drifts.
func (d *Dispatcher) targetRooms(ctx context.Context, targetUserId, contentId string) []gateway.Room {
	rooms := []gateway.Room{gateway.GlobalStream}
	if targetUserId != "" {
		rooms = append(rooms, gateway.UserRoom(targetUserId))
	}
	if contentId != "" {
		userIds, err := d.shelves.UsersWithContentOnShelf(ctx, contentId)
		if err != nil {
			log.CtxWarn(ctx, "shelf lookup failed: content_id=%s, error=%v", contentId, err)
			return rooms
		}
		for _, userId := range userIds {
			rooms = append(rooms, gateway.GroupShelfRoom(userId))
		}
	}
	return rooms
}

// invalidateGroupMembers drops every active member's cached unread
// summary after a channel send. The sender's cache already dropped with
// the implicit read. A cached summary must never outlive the event that
// staled it on the fetch path, so failures here only log.
func (d *Dispatcher) invalidateGroupMembers(ctx context.Context, groupId, senderId string) {
	userIds, err := d.groups.ActiveMemberUserIds(ctx, groupId)
	if err != nil {
		log.CtxWarn(ctx, "member lookup for cache invalidation failed: group_id=%s, error=%v", groupId, err)
		return
	}
	for _, userId := range userIds {
		if userId == senderId {
			continue
		}
		d.unread.Invalidate(ctx, userId)
	}
}

// appendGroupMessageActivity records the feed entry for a message sent
// into a public group's channel. Private-group messages are not
// feed-worthy. Failures are logged and swallowed.
func (d *Dispatcher) appendGroupMessageActivity(ctx context.Context, msg *entity.Message) {
	group, err := d.groups.GetById(ctx, msg.GroupId)
	if err != nil {
		log.CtxWarn(ctx, "group lookup failed: group_id=%s, error=%v", msg.GroupId, err)
		return
	}
	if group == nil || !group.IsPublic() || !group.IsNormal() {
		return
	}

	activity := &entity.Activity{
		Kind:    entity.KindGroupMessage,
		ActorId: msg.SenderId,
	}
	err = activity.SetMetadata(&entity.ActivityMetadata{
		GroupMessage: &entity.GroupMessageMeta{
			GroupId:   msg.GroupId,
			ChannelId: msg.ChannelId,
			MessageId: msg.Id,
			Excerpt:   excerpt(msg.Body),
		},
	})
	if err != nil {
		log.CtxWarn(ctx, "group message metadata encode failed: message_id=%d, error=%v", msg.Id, err)
		return
	}

	if _, err := d.feed.Append(ctx, activity); err != nil {
		log.CtxWarn(ctx, "group message activity append failed: message_id=%d, error=%v", msg.Id, err)
		return
	}

	info := activity.ToActivityInfo()
	d.broadcaster.BroadcastNewActivity(ctx, gateway.GlobalStream, info)
}

// excerpt truncates a body to the feed excerpt length on a rune
// boundary
func excerpt(body string) string {
	if utf8.RuneCountInString(body) <= excerptLimit {
		return body
	}
	runes := []rune(body)
	return string(runes[:excerptLimit])
}
