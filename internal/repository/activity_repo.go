package repository

import (
	"context"
	"errors"

	"github.com/readowl/realtime/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ActivityRepo is the repository for activity feed storage. Rows are only
// ever tombstoned, never physically deleted.
type ActivityRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewActivityRepo creates a new ActivityRepo
func NewActivityRepo(db *gorm.DB, rdb *redis.Client) *ActivityRepo {
	return &ActivityRepo{db: db, rdb: rdb}
}

// Record persists a new activity
func (r *ActivityRepo) Record(ctx context.Context, activity *entity.Activity) error {
	now := entity.NowUnixMilli()
	if activity.CreatedAt == 0 {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	return r.db.WithContext(ctx).Create(activity).Error
}

// GetById gets an activity by id, including tombstoned rows
func (r *ActivityRepo) GetById(ctx context.Context, id int64) (*entity.Activity, error) {
	var activity entity.Activity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&activity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// pageScope applies the shared projection ordering and keyset boundary:
// (created_at DESC, id DESC), rows strictly before (beforeCreatedAt,
// beforeId) when a cursor is present. Soft-deleted rows are excluded in
// the query itself, never filtered client-side.
func pageScope(beforeCreatedAt, beforeId int64, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(entity.NotDeleted)
		if beforeCreatedAt > 0 {
			db = db.Where("(created_at < ? OR (created_at = ? AND id < ?))",
				beforeCreatedAt, beforeCreatedAt, beforeId)
		}
		return db.Order("created_at DESC, id DESC").Limit(limit)
	}
}

// PageGlobal returns one page of the global projection
func (r *ActivityRepo) PageGlobal(ctx context.Context, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error) {
	var activities []*entity.Activity
	err := r.db.WithContext(ctx).
		Scopes(pageScope(beforeCreatedAt, beforeId, limit)).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// PagePersonal returns one page of the personal projection: activities
// targeting the viewer, plus the viewer's own action-kind activities
func (r *ActivityRepo) PagePersonal(ctx context.Context, viewerId string, actionKinds []entity.ActivityKind, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error) {
	var activities []*entity.Activity
	err := r.db.WithContext(ctx).
		Scopes(pageScope(beforeCreatedAt, beforeId, limit)).
		Where("(target_user_id = ? OR (actor_id = ? AND kind IN ?))",
			viewerId, viewerId, actionKinds).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// PageShelf returns one page of the shelf-scoped projection: activities
// whose content is among the supplied content ids
func (r *ActivityRepo) PageShelf(ctx context.Context, contentIds []string, beforeCreatedAt, beforeId int64, limit int) ([]*entity.Activity, error) {
	if len(contentIds) == 0 {
		return nil, nil
	}
	var activities []*entity.Activity
	err := r.db.WithContext(ctx).
		Scopes(pageScope(beforeCreatedAt, beforeId, limit)).
		Where("content_id IN ?", contentIds).
		Find(&activities).Error
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// SoftDelete tombstones an activity. Idempotent: an already-deleted row
// keeps its original tombstone timestamp.
func (r *ActivityRepo) SoftDelete(ctx context.Context, id int64) error {
	now := entity.NowUnixMilli()
	return r.db.WithContext(ctx).
		Model(&entity.Activity{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

// UpdateMetadata replaces the metadata payload of an activity
func (r *ActivityRepo) UpdateMetadata(ctx context.Context, id int64, metadata *string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Activity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"metadata":   metadata,
			"updated_at": entity.NowUnixMilli(),
		}).Error
}
