package feed

import (
	"context"
	"errors"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/pkg/constant"
	"github.com/readowl/realtime/pkg/errcode"
	"github.com/readowl/realtime/pkg/idgen"
)

// ActivityStore is the persistence surface the aggregator pages over
type ActivityStore interface {
	Record(ctx context.Context, activity *entity.Activity) error
	GetById(ctx context.Context, id int64) (*entity.Activity, error)
	PageGlobal(ctx context.Context, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error)
	PagePersonal(ctx context.Context, viewerId string, actionKinds []entity.ActivityKind, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error)
	PageShelf(ctx context.Context, contentIds []string, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error)
	SoftDelete(ctx context.Context, id int64) error
	UpdateMetadata(ctx context.Context, id int64, metadata *string) error
}

// ShelfStore resolves the viewer's shelved content for the shelf projection
type ShelfStore interface {
	GetShelf(ctx context.Context, shelfId int64) (*entity.Shelf, error)
	ContentIdsOnShelves(ctx context.Context, ownerId string, shelfId int64) ([]string, error)
}

// PageFilters narrows the shelf projection. Zero values mean no filter.
type PageFilters struct {
	ShelfId    int64
	ContentIds []string
}

// Page is one reverse-chronological slice of a projection
type Page struct {
	Items      []*entity.ActivityInfo `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// Aggregator produces the three cursor-paginated projections over the
// activity store. All projections share one order: created_at DESC with
// id DESC breaking timestamp ties, so pages are stable across repeated
// requests with no intervening writes.
type Aggregator struct {
	store       ActivityStore
	shelves     ShelfStore
	idGen       idgen.IDGenerator
	defaultPage int
	maxPage     int
}

// NewAggregator creates a new Aggregator
func NewAggregator(store ActivityStore, shelves ShelfStore, idGen idgen.IDGenerator, defaultPage, maxPage int) *Aggregator {
	if defaultPage <= 0 {
		defaultPage = 20
	}
	if maxPage <= 0 {
		maxPage = 100
	}
	return &Aggregator{
		store:       store,
		shelves:     shelves,
		idGen:       idGen,
		defaultPage: defaultPage,
		maxPage:     maxPage,
	}
}

// Append records a new activity and returns its id. Callers decide the
// failure policy; the aggregator only reports the error.
func (a *Aggregator) Append(ctx context.Context, activity *entity.Activity) (int64, error) {
	if !activity.Kind.Valid() {
		return 0, errcode.ErrInvalidParam
	}
	if activity.Id == 0 {
		id, err := a.idGen.NextID()
		if err != nil {
			return 0, errcode.ErrRecordFailed.Wrap(err)
		}
		activity.Id = id
	}
	if err := a.store.Record(ctx, activity); err != nil {
		return 0, errcode.ErrRecordFailed.Wrap(err)
	}
	return activity.Id, nil
}

// GetById returns an activity by direct id lookup, tombstoned rows
// included
func (a *Aggregator) GetById(ctx context.Context, id int64) (*entity.ActivityInfo, error) {
	activity, err := a.store.GetById(ctx, id)
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	if activity == nil {
		return nil, errcode.ErrActivityNotFound
	}
	return activity.ToActivityInfo(), nil
}

// PageProjection returns one page of the named projection
func (a *Aggregator) PageProjection(ctx context.Context, projection, viewerId string, filters PageFilters, cursor string, limit int) (*Page, error) {
	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = a.clampLimit(limit)

	var activities []*entity.Activity
	switch projection {
	case constant.ProjectionGlobal:
		activities, err = a.store.PageGlobal(ctx, cur.CreatedAt, cur.Id, limit)
	case constant.ProjectionPersonal:
		if viewerId == "" {
			return nil, errcode.ErrInvalidPage
		}
		activities, err = a.store.PagePersonal(ctx, viewerId, actionKinds(), cur.CreatedAt, cur.Id, limit)
	case constant.ProjectionShelf:
		if viewerId == "" {
			return nil, errcode.ErrInvalidPage
		}
		activities, err = a.pageShelf(ctx, viewerId, filters, cur, limit)
	default:
		return nil, errcode.ErrInvalidPage
	}
	if err != nil {
		var coded *errcode.Error
		if errors.As(err, &coded) {
			return nil, coded
		}
		return nil, errcode.ErrInternalServer.Wrap(err)
	}

	return a.buildPage(activities, limit), nil
}

// SoftDelete tombstones an activity. The row stays id-fetchable while
// vanishing from every projection.
func (a *Aggregator) SoftDelete(ctx context.Context, id int64) error {
	activity, err := a.store.GetById(ctx, id)
	if err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	if activity == nil {
		return errcode.ErrActivityNotFound
	}
	if err := a.store.SoftDelete(ctx, id); err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	return nil
}

// UpdateMetadata validates the patch against the activity's kind and
// persists it
func (a *Aggregator) UpdateMetadata(ctx context.Context, id int64, patch *entity.ActivityMetadata) error {
	activity, err := a.store.GetById(ctx, id)
	if err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	if activity == nil {
		return errcode.ErrActivityNotFound
	}
	if err := activity.SetMetadata(patch); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	if err := a.store.UpdateMetadata(ctx, id, activity.Metadata); err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	return nil
}

// pageShelf resolves the viewer's shelved content, intersects it with
// any caller-supplied content filter, and pages over the result. A
// shelf filter must name one of the viewer's own shelves.
func (a *Aggregator) pageShelf(ctx context.Context, viewerId string, filters PageFilters, cur Cursor, limit int) ([]*entity.Activity, error) {
	if filters.ShelfId != 0 {
		shelf, err := a.shelves.GetShelf(ctx, filters.ShelfId)
		if err != nil {
			return nil, err
		}
		if shelf == nil || shelf.OwnerId != viewerId {
			return nil, errcode.ErrInvalidPage
		}
	}
	contentIds, err := a.shelves.ContentIdsOnShelves(ctx, viewerId, filters.ShelfId)
	if err != nil {
		return nil, err
	}
	if len(filters.ContentIds) > 0 {
		contentIds = intersect(contentIds, filters.ContentIds)
	}
	if len(contentIds) == 0 {
		return nil, nil
	}
	return a.store.PageShelf(ctx, contentIds, cur.CreatedAt, cur.Id, limit)
}

// buildPage converts the rows and computes the next cursor. A short
// page means the projection is exhausted and carries no cursor.
func (a *Aggregator) buildPage(activities []*entity.Activity, limit int) *Page {
	items := make([]*entity.ActivityInfo, 0, len(activities))
	for _, act := range activities {
		items = append(items, act.ToActivityInfo())
	}

	page := &Page{Items: items}
	if len(activities) == limit {
		last := activities[len(activities)-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, Id: last.Id}.Encode()
	}
	return page
}

func (a *Aggregator) clampLimit(limit int) int {
	if limit <= 0 {
		return a.defaultPage
	}
	if limit > a.maxPage {
		return a.maxPage
	}
	return limit
}

// actionKinds returns the closed set of kinds that route to the actor's
// own personal feed
func actionKinds() []entity.ActivityKind {
	return []entity.ActivityKind{entity.KindNavigation, entity.KindItemShelved}
}

// intersect keeps the elements of base that also appear in filter,
// preserving base order
func intersect(base, filter []string) []string {
	allowed := make(map[string]struct{}, len(filter))
	for _, id := range filter {
		allowed[id] = struct{}{}
	}
	out := make([]string, 0, len(base))
	for _, id := range base {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
