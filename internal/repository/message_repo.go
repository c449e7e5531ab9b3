package repository

import (
	"context"
	"errors"

	"github.com/readowl/realtime/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create creates a new message within a transaction
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	now := entity.NowUnixMilli()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return tx.WithContext(ctx).Create(msg).Error
}

// GetById gets a message by id, including soft-deleted rows
func (r *MessageRepo) GetById(ctx context.Context, id int64) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// Pull pulls non-deleted messages for a conversation or channel, oldest
// first, with send_at > after (0 for all)
func (r *MessageRepo) Pull(ctx context.Context, targetId string, after int64, limit int) ([]*entity.Message, error) {
	var msgs []*entity.Message
	err := r.db.WithContext(ctx).
		Scopes(entity.NotDeleted).
		Where("(conversation_id = ? OR channel_id = ?) AND send_at > ?", targetId, targetId, after).
		Order("send_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// CountSinceInTarget counts messages in one conversation or channel with
// send_at strictly after since, authored by someone other than userId.
// This is the unread computation primitive; soft-deleted messages never
// count.
func (r *MessageRepo) CountSinceInTarget(ctx context.Context, targetId, userId string, since int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Scopes(entity.NotDeleted).
		Where("(conversation_id = ? OR channel_id = ?) AND sender_id <> ? AND send_at > ?",
			targetId, targetId, userId, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LatestOwnSendAt returns the user's most recent own send_at across all
// channels of a group, 0 if the user has never posted there. This is the
// send-based proxy boundary for group unread accounting.
func (r *MessageRepo) LatestOwnSendAt(ctx context.Context, groupId, userId string) (int64, error) {
	var at *int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Select("MAX(send_at)").
		Where("group_id = ? AND sender_id = ?", groupId, userId).
		Scan(&at).Error
	if err != nil {
		return 0, err
	}
	if at == nil {
		return 0, nil
	}
	return *at, nil
}

// SoftDelete tombstones a message. Delivered content never includes it
// afterwards; quotes of it render as placeholders.
func (r *MessageRepo) SoftDelete(ctx context.Context, id int64) error {
	now := entity.NowUnixMilli()
	return r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": now,
			"updated_at": now,
		}).Error
}

// ResolveQuoted builds the delivered view of a quoted message. A deleted
// or missing quoted message becomes a structural placeholder.
func (r *MessageRepo) ResolveQuoted(ctx context.Context, quotedId *int64) (*entity.QuotedInfo, error) {
	if quotedId == nil {
		return nil, nil
	}
	quoted, err := r.GetById(ctx, *quotedId)
	if err != nil {
		return nil, err
	}
	if quoted == nil || quoted.IsDeleted() {
		return &entity.QuotedInfo{Id: *quotedId, Deleted: true}, nil
	}
	return &entity.QuotedInfo{
		Id:       quoted.Id,
		SenderId: quoted.SenderId,
		Body:     quoted.Body,
	}, nil
}
