package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/internal/gateway"
	"github.com/readowl/realtime/pkg/constant"
)

// recordingBroadcaster captures every fan-out call in order
type recordingBroadcaster struct {
	calls []string
}

func (b *recordingBroadcaster) record(format string, args ...interface{}) {
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *recordingBroadcaster) BroadcastNewMessage(ctx context.Context, room gateway.Room, targetId string, msg *entity.MessageInfo) int {
	b.record("msg:%s", room)
	return 1
}

func (b *recordingBroadcaster) BroadcastNewActivity(ctx context.Context, room gateway.Room, activity *entity.ActivityInfo) int {
	b.record("activity:%s", room)
	return 1
}

func (b *recordingBroadcaster) BroadcastActivityUpdate(ctx context.Context, room gateway.Room, activityId int64, patch *entity.ActivityMetadata) int {
	b.record("update:%s", room)
	return 1
}

func (b *recordingBroadcaster) BroadcastActivityDelete(ctx context.Context, room gateway.Room, activityId int64) int {
	b.record("delete:%s", room)
	return 1
}

func (b *recordingBroadcaster) PushNewMessageToUser(ctx context.Context, userId, targetId string, msg *entity.MessageInfo) int {
	b.record("user-push:%s", userId)
	return 1
}

// recordingFeed is an in-memory FeedWriter
type recordingFeed struct {
	appended []*entity.Activity
	deleted  []int64
	patched  []int64
	failNext bool
	nextId   int64
	byId     map[int64]*entity.Activity
}

func newRecordingFeed() *recordingFeed {
	return &recordingFeed{byId: make(map[int64]*entity.Activity)}
}

func (f *recordingFeed) Append(ctx context.Context, activity *entity.Activity) (int64, error) {
	if f.failNext {
		f.failNext = false
		return 0, errors.New("record failed")
	}
	f.nextId++
	activity.Id = f.nextId
	f.appended = append(f.appended, activity)
	f.byId[activity.Id] = activity
	return activity.Id, nil
}

func (f *recordingFeed) GetById(ctx context.Context, id int64) (*entity.ActivityInfo, error) {
	if activity, ok := f.byId[id]; ok {
		return activity.ToActivityInfo(), nil
	}
	return nil, errors.New("not found")
}

func (f *recordingFeed) UpdateMetadata(ctx context.Context, id int64, patch *entity.ActivityMetadata) error {
	f.patched = append(f.patched, id)
	return nil
}

func (f *recordingFeed) SoftDelete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// recordingUnread captures implicit read updates
type recordingUnread struct {
	noted       []string
	invalidated []string
}

func (u *recordingUnread) NoteOwnSend(ctx context.Context, userId, targetId string, sendAt int64) error {
	u.noted = append(u.noted, userId+"@"+targetId)
	return nil
}

func (u *recordingUnread) Invalidate(ctx context.Context, userId string) {
	u.invalidated = append(u.invalidated, userId)
}

type fakeShelves struct {
	byContent map[string][]string
}

func (f *fakeShelves) UsersWithContentOnShelf(ctx context.Context, contentId string) ([]string, error) {
	return f.byContent[contentId], nil
}

type fakeGroups struct {
	byId    map[string]*entity.Group
	members map[string][]string
}

func (f *fakeGroups) GetById(ctx context.Context, groupId string) (*entity.Group, error) {
	return f.byId[groupId], nil
}

func (f *fakeGroups) ActiveMemberUserIds(ctx context.Context, groupId string) ([]string, error) {
	return f.members[groupId], nil
}

type fakeConvs struct {
	byId map[string]*entity.Conversation
}

func (f *fakeConvs) GetById(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	return f.byId[conversationId], nil
}

type fixture struct {
	broadcaster *recordingBroadcaster
	feed        *recordingFeed
	unread      *recordingUnread
	shelves     *fakeShelves
	groups      *fakeGroups
	convs       *fakeConvs
	dispatcher  *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{
		broadcaster: &recordingBroadcaster{},
		feed:        newRecordingFeed(),
		unread:      &recordingUnread{},
		shelves:     &fakeShelves{byContent: make(map[string][]string)},
		groups:      &fakeGroups{byId: make(map[string]*entity.Group), members: make(map[string][]string)},
		convs:       &fakeConvs{byId: make(map[string]*entity.Conversation)},
	}
	f.dispatcher = NewDispatcher(f.broadcaster, f.feed, f.unread, f.shelves, f.groups, f.convs)
	return f
}

func publicGroup(id string) *entity.Group {
	return &entity.Group{Id: id, Visibility: constant.GroupVisibilityPublic, Status: constant.GroupStatusNormal}
}

func privateGroup(id string) *entity.Group {
	return &entity.Group{Id: id, Visibility: constant.GroupVisibilityPrivate, Status: constant.GroupStatusNormal}
}

func TestMessageSentDirectMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.convs.byId["cv_alice:bob"] = &entity.Conversation{
		ConversationId: "cv_alice:bob", UserA: "alice", UserB: "bob",
	}

	msg := &entity.Message{
		Id: 1, ConversationId: "cv_alice:bob", SenderId: "alice", Body: "hi", SendAt: 100,
	}
	require.NoError(t, f.dispatcher.MessageSent(ctx, msg, msg.ToMessageInfo(nil)))

	// Conversation room broadcast plus the recipient's personal push
	assert.Equal(t, []string{
		"msg:conversation:cv_alice:bob",
		"user-push:bob",
	}, f.broadcaster.calls)

	// A DM is never feed-worthy
	assert.Empty(t, f.feed.appended)

	// The sender's implicit read landed, the recipient's cache dropped
	assert.Equal(t, []string{"alice@cv_alice:bob"}, f.unread.noted)
	assert.Equal(t, []string{"bob"}, f.unread.invalidated)
}

func TestMessageSentChannelPublicGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.groups.byId["g1"] = publicGroup("g1")

	msg := &entity.Message{
		Id: 1, ChannelId: "ch1", GroupId: "g1", SenderId: "alice", Body: "hello readers", SendAt: 100,
	}
	require.NoError(t, f.dispatcher.MessageSent(ctx, msg, msg.ToMessageInfo(nil)))

	// Feed append and its global broadcast happen before the channel
	// broadcast, so a reacting client can refetch the activity
	assert.Equal(t, []string{
		"activity:global-stream",
		"msg:channel:ch1",
	}, f.broadcaster.calls)

	require.Len(t, f.feed.appended, 1)
	recorded := f.feed.appended[0]
	assert.Equal(t, entity.KindGroupMessage, recorded.Kind)
	meta, err := recorded.GetMetadata()
	require.NoError(t, err)
	require.NotNil(t, meta.GroupMessage)
	assert.Equal(t, "ch1", meta.GroupMessage.ChannelId)
	assert.Equal(t, int64(1), meta.GroupMessage.MessageId)
}

func TestMessageSentChannelInvalidatesMemberSummaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.groups.byId["g1"] = privateGroup("g1")
	f.groups.members["g1"] = []string{"alice", "bob", "carol"}

	msg := &entity.Message{
		Id: 1, ChannelId: "ch1", GroupId: "g1", SenderId: "alice", Body: "hi", SendAt: 100,
	}
	require.NoError(t, f.dispatcher.MessageSent(ctx, msg, msg.ToMessageInfo(nil)))

	// Every other active member's cached summary is stale now; the
	// sender's already dropped with the implicit read
	assert.Equal(t, []string{"bob", "carol"}, f.unread.invalidated)
}

func TestMessageSentChannelPrivateGroupNotFeedWorthy(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.groups.byId["g1"] = privateGroup("g1")

	msg := &entity.Message{
		Id: 1, ChannelId: "ch1", GroupId: "g1", SenderId: "alice", Body: "secret", SendAt: 100,
	}
	require.NoError(t, f.dispatcher.MessageSent(ctx, msg, msg.ToMessageInfo(nil)))

	assert.Empty(t, f.feed.appended)
	assert.Equal(t, []string{"msg:channel:ch1"}, f.broadcaster.calls)
}

func TestMessageSentFeedFailureDoesNotBlockBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.groups.byId["g1"] = publicGroup("g1")
	f.feed.failNext = true

	msg := &entity.Message{
		Id: 1, ChannelId: "ch1", GroupId: "g1", SenderId: "alice", Body: "hello", SendAt: 100,
	}
	require.NoError(t, f.dispatcher.MessageSent(ctx, msg, msg.ToMessageInfo(nil)))

	// The append failed, the pipeline continued
	assert.Equal(t, []string{"msg:channel:ch1"}, f.broadcaster.calls)
	assert.Equal(t, []string{"alice@ch1"}, f.unread.noted)
}

func TestActivityFanOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.shelves.byContent["book1"] = []string{"carol", "dave"}

	id, err := f.dispatcher.Activity(ctx, entity.KindContentReviewed, "bob", "alice", "book1",
		&entity.ActivityMetadata{Reviewed: &entity.ReviewedMeta{Title: "Dune", Rating: 4}})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	assert.Equal(t, []string{
		"activity:global-stream",
		"activity:user:alice",
		"activity:group-shelf:carol",
		"activity:group-shelf:dave",
	}, f.broadcaster.calls)
}

func TestActivityInvalidKind(t *testing.T) {
	f := newFixture()
	_, err := f.dispatcher.Activity(context.Background(), "bogus", "bob", "", "", nil)
	assert.Error(t, err)
	assert.Empty(t, f.broadcaster.calls)
}

func TestActivityRecordFailureAbortsDispatch(t *testing.T) {
	f := newFixture()
	f.feed.failNext = true

	_, err := f.dispatcher.Activity(context.Background(), entity.KindNavigation, "bob", "", "",
		&entity.ActivityMetadata{Navigation: &entity.NavigationMeta{Page: "library"}})
	assert.Error(t, err)
	assert.Empty(t, f.broadcaster.calls)
}

func TestActivityDeletedRecomputesRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.shelves.byContent["book1"] = []string{"carol"}

	id, err := f.dispatcher.Activity(ctx, entity.KindContentReviewed, "bob", "alice", "book1",
		&entity.ActivityMetadata{Reviewed: &entity.ReviewedMeta{Title: "Dune", Rating: 4}})
	require.NoError(t, err)
	f.broadcaster.calls = nil

	// Shelf membership changed between create and delete; the delete
	// notice goes to the recomputed set
	f.shelves.byContent["book1"] = []string{"erin"}

	require.NoError(t, f.dispatcher.ActivityDeleted(ctx, id))
	assert.Equal(t, []int64{id}, f.feed.deleted)
	assert.Equal(t, []string{
		"delete:global-stream",
		"delete:user:alice",
		"delete:group-shelf:erin",
	}, f.broadcaster.calls)
}

func TestActivityUpdatedBroadcastsPatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	id, err := f.dispatcher.Activity(ctx, entity.KindContentReviewed, "bob", "alice", "",
		&entity.ActivityMetadata{Reviewed: &entity.ReviewedMeta{Title: "Dune", Rating: 2}})
	require.NoError(t, err)
	f.broadcaster.calls = nil

	patch := &entity.ActivityMetadata{Reviewed: &entity.ReviewedMeta{Title: "Dune", Rating: 5}}
	require.NoError(t, f.dispatcher.ActivityUpdated(ctx, id, patch))

	assert.Equal(t, []int64{id}, f.feed.patched)
	assert.Equal(t, []string{
		"update:global-stream",
		"update:user:alice",
	}, f.broadcaster.calls)
}
