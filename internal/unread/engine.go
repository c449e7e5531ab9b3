package unread

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/pkg/constant"
)

// BoundaryKind discriminates how a read boundary was derived
type BoundaryKind int

const (
	// BoundaryExplicit means a ReadPosition row exists for the target
	BoundaryExplicit BoundaryKind = iota + 1
	// BoundaryProxyBySend means the boundary is the user's latest own
	// send in the target's group, or the group creation time
	BoundaryProxyBySend
)

// Boundary is the resolved read boundary for one (user, target) pair.
// The kind is carried so callers and tests can assert which rule fired.
type Boundary struct {
	Kind BoundaryKind
	At   int64
}

// MessageStore is the slice of the message repository the engine reads
type MessageStore interface {
	CountSinceInTarget(ctx context.Context, targetId, userId string, since int64) (int64, error)
	LatestOwnSendAt(ctx context.Context, groupId, userId string) (int64, error)
}

// ReadPositionStore persists explicit read boundaries
type ReadPositionStore interface {
	Upsert(ctx context.Context, userId, targetId string, readAt int64) error
	Get(ctx context.Context, userId, targetId string) (*entity.ReadPosition, error)
	GetForTargets(ctx context.Context, userId string, targetIds []string) (map[string]*entity.ReadPosition, error)
}

// GroupStore lists a user's groups and their channels
type GroupStore interface {
	GetById(ctx context.Context, groupId string) (*entity.Group, error)
	GetChannel(ctx context.Context, channelId string) (*entity.Channel, error)
	ChannelsOfGroup(ctx context.Context, groupId string) ([]*entity.Channel, error)
	GroupsOfUser(ctx context.Context, userId string) ([]*entity.Group, error)
}

// ConversationStore lists a user's conversations
type ConversationStore interface {
	ConversationsOf(ctx context.Context, userId string) ([]*entity.Conversation, error)
}

// Summary is the authoritative unread snapshot for one user
type Summary struct {
	Conversations map[string]int64 `json:"conversations"`
	Groups        map[string]int64 `json:"groups"`
	Total         int64            `json:"total"`
}

// Engine computes authoritative unread counts. Channels with an
// explicit ReadPosition count messages after it; channels without one
// fall back to the group-scoped send proxy. The proxy has a known
// undercount when messages arrive with timestamps before the user's
// own later send; that behavior is kept as is because clients
// reconcile against it (see Merge) and depend on it being stable.
type Engine struct {
	messages MessageStore
	readPos  ReadPositionStore
	groups   GroupStore
	convs    ConversationStore
	rdb      *redis.Client
	cacheTTL time.Duration
}

// NewEngine creates a new Engine. rdb may be nil to disable the
// summary cache.
func NewEngine(messages MessageStore, readPos ReadPositionStore, groups GroupStore, convs ConversationStore, rdb *redis.Client, cacheTTL time.Duration) *Engine {
	return &Engine{
		messages: messages,
		readPos:  readPos,
		groups:   groups,
		convs:    convs,
		rdb:      rdb,
		cacheTTL: cacheTTL,
	}
}

// MarkRead records an explicit read position for a conversation or
// channel. The upsert keeps the greater timestamp, so racing mark-read
// calls linearize to last-writer-wins.
func (e *Engine) MarkRead(ctx context.Context, userId, targetId string, readAt int64) error {
	if readAt <= 0 {
		readAt = entity.NowUnixMilli()
	}
	if err := e.readPos.Upsert(ctx, userId, targetId, readAt); err != nil {
		return err
	}
	e.Invalidate(ctx, userId)
	return nil
}

// NoteOwnSend records the implicit read a send implies. Same mechanics
// as MarkRead with the message's send timestamp.
func (e *Engine) NoteOwnSend(ctx context.Context, userId, targetId string, sendAt int64) error {
	return e.MarkRead(ctx, userId, targetId, sendAt)
}

// ConversationUnread counts messages from the peer after the user's
// read position. No position means everything from the peer is unread.
func (e *Engine) ConversationUnread(ctx context.Context, userId, conversationId string) (int64, error) {
	var since int64
	pos, err := e.readPos.Get(ctx, userId, conversationId)
	if err != nil {
		return 0, err
	}
	if pos != nil {
		since = pos.ReadAt
	}
	return e.messages.CountSinceInTarget(ctx, conversationId, userId, since)
}

// ChannelUnread counts unread messages in one channel and reports the
// boundary that was applied
func (e *Engine) ChannelUnread(ctx context.Context, userId, channelId string) (int64, Boundary, error) {
	pos, err := e.readPos.Get(ctx, userId, channelId)
	if err != nil {
		return 0, Boundary{}, err
	}

	var boundary Boundary
	if pos != nil {
		boundary = Boundary{Kind: BoundaryExplicit, At: pos.ReadAt}
	} else {
		ch, err := e.groups.GetChannel(ctx, channelId)
		if err != nil {
			return 0, Boundary{}, err
		}
		if ch == nil {
			return 0, Boundary{}, nil
		}
		proxyAt, err := e.groupProxyAt(ctx, userId, ch.GroupId)
		if err != nil {
			return 0, Boundary{}, err
		}
		boundary = Boundary{Kind: BoundaryProxyBySend, At: proxyAt}
	}

	count, err := e.messages.CountSinceInTarget(ctx, channelId, userId, boundary.At)
	if err != nil {
		return 0, Boundary{}, err
	}
	return count, boundary, nil
}

// GroupUnread sums unread across all of a group's channels, each
// channel evaluated with its own best-available boundary. An explicit
// per-channel position always wins over the send proxy.
func (e *Engine) GroupUnread(ctx context.Context, userId, groupId string) (int64, error) {
	channels, err := e.groups.ChannelsOfGroup(ctx, groupId)
	if err != nil {
		return 0, err
	}
	if len(channels) == 0 {
		return 0, nil
	}

	channelIds := make([]string, 0, len(channels))
	for _, ch := range channels {
		channelIds = append(channelIds, ch.Id)
	}
	positions, err := e.readPos.GetForTargets(ctx, userId, channelIds)
	if err != nil {
		return 0, err
	}

	// The proxy boundary is group-scoped: the user's latest own send in
	// ANY channel of the group. Resolved lazily since fully marked
	// groups never need it.
	proxyAt := int64(-1)
	var total int64
	for _, ch := range channels {
		var since int64
		if pos, ok := positions[ch.Id]; ok {
			since = pos.ReadAt
		} else {
			if proxyAt < 0 {
				proxyAt, err = e.groupProxyAt(ctx, userId, groupId)
				if err != nil {
					return 0, err
				}
			}
			since = proxyAt
		}

		count, err := e.messages.CountSinceInTarget(ctx, ch.Id, userId, since)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// Summary computes the full unread snapshot for a user, served from
// the short-TTL cache when fresh
func (e *Engine) Summary(ctx context.Context, userId string) (map[string]int64, map[string]int64, int64, error) {
	if cached := e.cachedSummary(ctx, userId); cached != nil {
		return cached.Conversations, cached.Groups, cached.Total, nil
	}

	summary := &Summary{
		Conversations: make(map[string]int64),
		Groups:        make(map[string]int64),
	}

	convs, err := e.convs.ConversationsOf(ctx, userId)
	if err != nil {
		return nil, nil, 0, err
	}
	for _, conv := range convs {
		count, err := e.ConversationUnread(ctx, userId, conv.ConversationId)
		if err != nil {
			return nil, nil, 0, err
		}
		if count > 0 {
			summary.Conversations[conv.ConversationId] = count
		}
		summary.Total += count
	}

	groups, err := e.groups.GroupsOfUser(ctx, userId)
	if err != nil {
		return nil, nil, 0, err
	}
	for _, group := range groups {
		count, err := e.GroupUnread(ctx, userId, group.Id)
		if err != nil {
			return nil, nil, 0, err
		}
		if count > 0 {
			summary.Groups[group.Id] = count
		}
		summary.Total += count
	}

	e.cacheSummary(ctx, userId, summary)
	return summary.Conversations, summary.Groups, summary.Total, nil
}

// Invalidate drops the cached summary for a user. Called on mark-read,
// own sends, and inbound message dispatch.
func (e *Engine) Invalidate(ctx context.Context, userId string) {
	if e.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyUnreadSummary(), userId)
	if err := e.rdb.Del(ctx, key).Err(); err != nil {
		log.CtxDebug(ctx, "unread cache invalidate failed: user_id=%s, error=%v", userId, err)
	}
}

// groupProxyAt resolves the send-based proxy boundary for a group:
// the user's latest own send in any of its channels, or the group's
// creation time if the user has never posted. This deliberately
// reproduces the undercount race: messages that arrive with earlier
// timestamps than a later own send are counted as read.
func (e *Engine) groupProxyAt(ctx context.Context, userId, groupId string) (int64, error) {
	lastSend, err := e.messages.LatestOwnSendAt(ctx, groupId, userId)
	if err != nil {
		return 0, err
	}
	if lastSend > 0 {
		return lastSend, nil
	}
	group, err := e.groups.GetById(ctx, groupId)
	if err != nil {
		return 0, err
	}
	if group == nil {
		return 0, nil
	}
	return group.CreatedAt, nil
}

// cachedSummary returns the cached summary if present and decodable
func (e *Engine) cachedSummary(ctx context.Context, userId string) *Summary {
	if e.rdb == nil || e.cacheTTL <= 0 {
		return nil
	}
	key := fmt.Sprintf(constant.RedisKeyUnreadSummary(), userId)
	data, err := e.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil
	}
	return &summary
}

// cacheSummary stores the summary under a short TTL
func (e *Engine) cacheSummary(ctx context.Context, userId string, summary *Summary) {
	if e.rdb == nil || e.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyUnreadSummary(), userId)
	if err := e.rdb.Set(ctx, key, data, e.cacheTTL).Err(); err != nil {
		log.CtxDebug(ctx, "unread cache store failed: user_id=%s, error=%v", userId, err)
	}
}
