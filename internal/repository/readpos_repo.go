package repository

import (
	"context"
	"errors"

	"github.com/readowl/realtime/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadPositionRepo is the repository for read position operations
type ReadPositionRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewReadPositionRepo creates a new ReadPositionRepo
func NewReadPositionRepo(db *gorm.DB, rdb *redis.Client) *ReadPositionRepo {
	return &ReadPositionRepo{db: db, rdb: rdb}
}

// Upsert advances the read position for (user, target). GREATEST keeps the
// highest timestamp under concurrent mark-read calls, so updates linearize
// to last-writer-wins and never move backwards.
func (r *ReadPositionRepo) Upsert(ctx context.Context, userId, targetId string, readAt int64) error {
	now := entity.NowUnixMilli()
	pos := &entity.ReadPosition{
		UserId:    userId,
		TargetId:  targetId,
		ReadAt:    readAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"read_at":    gorm.Expr("GREATEST(read_at, ?)", readAt),
			"updated_at": now,
		}),
	}).Create(pos).Error
}

// Get gets the read position for (user, target), nil if none exists
func (r *ReadPositionRepo) Get(ctx context.Context, userId, targetId string) (*entity.ReadPosition, error) {
	var pos entity.ReadPosition
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_id = ?", userId, targetId).
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pos, nil
}

// GetForTargets returns the read positions a user holds for a set of
// targets, keyed by target id. Targets without a position are absent.
func (r *ReadPositionRepo) GetForTargets(ctx context.Context, userId string, targetIds []string) (map[string]*entity.ReadPosition, error) {
	if len(targetIds) == 0 {
		return map[string]*entity.ReadPosition{}, nil
	}

	var positions []*entity.ReadPosition
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND target_id IN ?", userId, targetIds).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]*entity.ReadPosition, len(positions))
	for _, pos := range positions {
		result[pos.TargetId] = pos
	}
	return result, nil
}
