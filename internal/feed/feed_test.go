package feed

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/pkg/constant"
	"github.com/readowl/realtime/pkg/errcode"
)

// fakeActivityStore mirrors the repository's projection queries over an
// in-memory slice
type fakeActivityStore struct {
	rows   []*entity.Activity
	nextId int64
}

func (f *fakeActivityStore) Record(ctx context.Context, activity *entity.Activity) error {
	f.rows = append(f.rows, activity)
	return nil
}

func (f *fakeActivityStore) GetById(ctx context.Context, id int64) (*entity.Activity, error) {
	for _, row := range f.rows {
		if row.Id == id {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeActivityStore) page(beforeCreatedAt, beforeId int64, limit int, match func(*entity.Activity) bool) []*entity.Activity {
	var out []*entity.Activity
	for _, row := range f.rows {
		if row.IsDeleted() || !match(row) {
			continue
		}
		if beforeCreatedAt > 0 {
			if row.CreatedAt > beforeCreatedAt {
				continue
			}
			if row.CreatedAt == beforeCreatedAt && row.Id >= beforeId {
				continue
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Id > out[j].Id
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeActivityStore) PageGlobal(ctx context.Context, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error) {
	return f.page(beforeCreatedAt, beforeId, limit, func(*entity.Activity) bool { return true }), nil
}

func (f *fakeActivityStore) PagePersonal(ctx context.Context, viewerId string, actionKinds []entity.ActivityKind, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error) {
	isAction := make(map[entity.ActivityKind]bool)
	for _, k := range actionKinds {
		isAction[k] = true
	}
	return f.page(beforeCreatedAt, beforeId, limit, func(a *entity.Activity) bool {
		return a.TargetUserId == viewerId || (a.ActorId == viewerId && isAction[a.Kind])
	}), nil
}

func (f *fakeActivityStore) PageShelf(ctx context.Context, contentIds []string, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error) {
	allowed := make(map[string]bool)
	for _, id := range contentIds {
		allowed[id] = true
	}
	return f.page(beforeCreatedAt, beforeId, limit, func(a *entity.Activity) bool {
		return allowed[a.ContentId]
	}), nil
}

func (f *fakeActivityStore) SoftDelete(ctx context.Context, id int64) error {
	for _, row := range f.rows {
		if row.Id == id && !row.IsDeleted() {
			row.MarkDeleted(entity.NowUnixMilli())
		}
	}
	return nil
}

func (f *fakeActivityStore) UpdateMetadata(ctx context.Context, id int64, metadata *string) error {
	for _, row := range f.rows {
		if row.Id == id {
			row.Metadata = metadata
		}
	}
	return nil
}

// fakeShelfStore returns a fixed shelved-content set
type fakeShelfStore struct {
	shelves    map[int64]*entity.Shelf
	contentIds []string
}

func (f *fakeShelfStore) GetShelf(ctx context.Context, shelfId int64) (*entity.Shelf, error) {
	return f.shelves[shelfId], nil
}

func (f *fakeShelfStore) ContentIdsOnShelves(ctx context.Context, ownerId string, shelfId int64) ([]string, error) {
	return f.contentIds, nil
}

// fakeIdGen hands out sequential ids
type fakeIdGen struct{ next int64 }

func (g *fakeIdGen) NextID() (int64, error) {
	g.next++
	return g.next, nil
}

func newTestAggregator(store *fakeActivityStore, shelves *fakeShelfStore) *Aggregator {
	if shelves == nil {
		shelves = &fakeShelfStore{}
	}
	return NewAggregator(store, shelves, &fakeIdGen{}, 20, 100)
}

func addActivity(t *testing.T, store *fakeActivityStore, id, createdAt int64, kind entity.ActivityKind, actorId, targetUserId, contentId string) *entity.Activity {
	t.Helper()
	activity := &entity.Activity{
		Id:           id,
		Kind:         kind,
		ActorId:      actorId,
		TargetUserId: targetUserId,
		ContentId:    contentId,
		CreatedAt:    createdAt,
	}
	require.NoError(t, store.Record(context.Background(), activity))
	return activity
}

func pageIds(page *Page) []int64 {
	ids := make([]int64, 0, len(page.Items))
	for _, item := range page.Items {
		ids = append(ids, item.Id)
	}
	return ids
}

func TestPageGlobalOrderAndTieBreak(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	agg := newTestAggregator(store, nil)

	// Two activities share a millisecond; the greater id sorts first
	addActivity(t, store, 1, 100, entity.KindContentPublished, "a", "", "")
	addActivity(t, store, 2, 200, entity.KindContentPublished, "a", "", "")
	addActivity(t, store, 3, 200, entity.KindContentPublished, "a", "", "")

	for i := 0; i < 3; i++ {
		page, err := agg.PageProjection(ctx, constant.ProjectionGlobal, "viewer", PageFilters{}, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 2, 1}, pageIds(page))
	}
}

func TestPageCursorWalksWholeProjection(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	agg := newTestAggregator(store, nil)

	for i := int64(1); i <= 5; i++ {
		addActivity(t, store, i, 100, entity.KindContentPublished, "a", "", "")
	}

	page1, err := agg.PageProjection(ctx, constant.ProjectionGlobal, "viewer", PageFilters{}, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, pageIds(page1))
	require.NotEmpty(t, page1.NextCursor)

	page2, err := agg.PageProjection(ctx, constant.ProjectionGlobal, "viewer", PageFilters{}, page1.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, pageIds(page2))
	require.NotEmpty(t, page2.NextCursor)

	page3, err := agg.PageProjection(ctx, constant.ProjectionGlobal, "viewer", PageFilters{}, page2.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, pageIds(page3))
	assert.Empty(t, page3.NextCursor)
}

func TestPagePersonalRouting(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	agg := newTestAggregator(store, nil)

	addActivity(t, store, 1, 100, entity.KindContentCommented, "bob", "alice", "") // targets alice
	addActivity(t, store, 2, 200, entity.KindItemShelved, "alice", "", "")         // alice's own action kind
	addActivity(t, store, 3, 300, entity.KindContentPublished, "alice", "", "")    // content kind, not routed to self
	addActivity(t, store, 4, 400, entity.KindContentCommented, "bob", "carol", "") // someone else's

	page, err := agg.PageProjection(ctx, constant.ProjectionPersonal, "alice", PageFilters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, pageIds(page))
}

func TestPageShelfScopedWithFilters(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	shelves := &fakeShelfStore{contentIds: []string{"book1", "book2"}}
	agg := newTestAggregator(store, shelves)

	addActivity(t, store, 1, 100, entity.KindContentReviewed, "bob", "", "book1")
	addActivity(t, store, 2, 200, entity.KindContentReviewed, "bob", "", "book2")
	addActivity(t, store, 3, 300, entity.KindContentReviewed, "bob", "", "book3")

	page, err := agg.PageProjection(ctx, constant.ProjectionShelf, "alice", PageFilters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, pageIds(page))

	// The caller's content subset narrows the shelf set further
	page, err = agg.PageProjection(ctx, constant.ProjectionShelf, "alice",
		PageFilters{ContentIds: []string{"book2", "book3"}}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, pageIds(page))
}

func TestPageShelfFilterMustNameOwnShelf(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	shelves := &fakeShelfStore{
		shelves: map[int64]*entity.Shelf{
			7: {Id: 7, OwnerId: "alice"},
			8: {Id: 8, OwnerId: "bob"},
		},
		contentIds: []string{"book1"},
	}
	agg := newTestAggregator(store, shelves)

	addActivity(t, store, 1, 100, entity.KindContentReviewed, "bob", "", "book1")

	// The viewer's own shelf pages normally
	page, err := agg.PageProjection(ctx, constant.ProjectionShelf, "alice",
		PageFilters{ShelfId: 7}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, pageIds(page))

	// Someone else's shelf is rejected, not silently emptied
	_, err = agg.PageProjection(ctx, constant.ProjectionShelf, "alice",
		PageFilters{ShelfId: 8}, "", 10)
	assert.ErrorIs(t, err, errcode.ErrInvalidPage)

	// So is a shelf that does not exist
	_, err = agg.PageProjection(ctx, constant.ProjectionShelf, "alice",
		PageFilters{ShelfId: 99}, "", 10)
	assert.ErrorIs(t, err, errcode.ErrInvalidPage)
}

func TestSoftDeleteExcludedEverywhereButIdFetchable(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	shelves := &fakeShelfStore{contentIds: []string{"book1"}}
	agg := newTestAggregator(store, shelves)

	addActivity(t, store, 1, 100, entity.KindContentCommented, "bob", "alice", "book1")

	require.NoError(t, agg.SoftDelete(ctx, 1))

	for _, projection := range []string{constant.ProjectionGlobal, constant.ProjectionPersonal, constant.ProjectionShelf} {
		page, err := agg.PageProjection(ctx, projection, "alice", PageFilters{}, "", 10)
		require.NoError(t, err)
		assert.Empty(t, page.Items, projection)
	}

	// Direct lookup still returns the tombstoned record
	info, err := agg.GetById(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, info.DeletedAt)
}

func TestSoftDeleteUnknownActivity(t *testing.T) {
	agg := newTestAggregator(&fakeActivityStore{}, nil)
	err := agg.SoftDelete(context.Background(), 42)
	assert.ErrorIs(t, err, errcode.ErrActivityNotFound)
}

func TestAppendAssignsIdAndValidatesKind(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	agg := newTestAggregator(store, nil)

	id, err := agg.Append(ctx, &entity.Activity{Kind: entity.KindNavigation, ActorId: "alice"})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	_, err = agg.Append(ctx, &entity.Activity{Kind: "made-up-kind", ActorId: "alice"})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
}

func TestUpdateMetadataValidatesVariant(t *testing.T) {
	ctx := context.Background()
	store := &fakeActivityStore{}
	agg := newTestAggregator(store, nil)

	addActivity(t, store, 1, 100, entity.KindContentReviewed, "bob", "alice", "book1")

	// A patch whose variant does not match the kind is rejected
	err := agg.UpdateMetadata(ctx, 1, &entity.ActivityMetadata{
		Shelved: &entity.ShelvedMeta{ContentId: "book1", ShelfId: 2, ShelfName: "favorites"},
	})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	err = agg.UpdateMetadata(ctx, 1, &entity.ActivityMetadata{
		Reviewed: &entity.ReviewedMeta{Title: "Dune", Rating: 5},
	})
	require.NoError(t, err)

	info, err := agg.GetById(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, info.Metadata)
	require.NotNil(t, info.Metadata.Reviewed)
	assert.Equal(t, int32(5), info.Metadata.Reviewed.Rating)
}

func TestPageUnknownProjection(t *testing.T) {
	agg := newTestAggregator(&fakeActivityStore{}, nil)
	_, err := agg.PageProjection(context.Background(), "trending", "alice", PageFilters{}, "", 10)
	assert.ErrorIs(t, err, errcode.ErrInvalidPage)
}
