package repository

import (
	"context"

	"github.com/readowl/realtime/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ShelfRepo is the repository for shelf lookups used in fan-out targeting
// and the shelf-scoped feed projection
type ShelfRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewShelfRepo creates a new ShelfRepo
func NewShelfRepo(db *gorm.DB, rdb *redis.Client) *ShelfRepo {
	return &ShelfRepo{db: db, rdb: rdb}
}

// UsersWithContentOnShelf returns the distinct users who currently have
// contentId on any of their shelves. Recomputed at every broadcast, never
// cached, since shelf membership changes between an activity's creation
// and later moderation events.
func (r *ShelfRepo) UsersWithContentOnShelf(ctx context.Context, contentId string) ([]string, error) {
	var userIds []string
	err := r.db.WithContext(ctx).
		Model(&entity.ShelfItem{}).
		Distinct("owner_id").
		Where("content_id = ?", contentId).
		Pluck("owner_id", &userIds).Error
	if err != nil {
		return nil, err
	}
	return userIds, nil
}

// ContentIdsOnShelves returns the distinct content ids on a user's
// shelves, optionally restricted to one shelf
func (r *ShelfRepo) ContentIdsOnShelves(ctx context.Context, ownerId string, shelfId int64) ([]string, error) {
	q := r.db.WithContext(ctx).
		Model(&entity.ShelfItem{}).
		Distinct("content_id").
		Where("owner_id = ?", ownerId)
	if shelfId != 0 {
		q = q.Where("shelf_id = ?", shelfId)
	}

	var contentIds []string
	if err := q.Pluck("content_id", &contentIds).Error; err != nil {
		return nil, err
	}
	return contentIds, nil
}

// GetShelf gets a shelf by id
func (r *ShelfRepo) GetShelf(ctx context.Context, shelfId int64) (*entity.Shelf, error) {
	var shelf entity.Shelf
	err := r.db.WithContext(ctx).Where("id = ?", shelfId).First(&shelf).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &shelf, nil
}
