package repository

import (
	"context"
	"errors"

	"github.com/readowl/realtime/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// GetById gets a conversation by conversation id
func (r *ConversationRepo) GetById(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// Ensure creates the conversation row for a user pair if missing
func (r *ConversationRepo) Ensure(ctx context.Context, tx *gorm.DB, userA, userB string) (*entity.Conversation, error) {
	now := entity.NowUnixMilli()
	conv := &entity.Conversation{
		ConversationId: entity.GenConversationId(userA, userB),
		UserA:          userA,
		UserB:          userB,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if conv.UserA > conv.UserB {
		conv.UserA, conv.UserB = conv.UserB, conv.UserA
	}

	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"updated_at": now,
		}),
	}).Create(conv).Error
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// IsParticipant reports whether userId is one of the two participants
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationId, userId string) (bool, error) {
	conv, err := r.GetById(ctx, conversationId)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, nil
	}
	return conv.HasParticipant(userId), nil
}

// ConversationsOf returns the conversation ids a user participates in
func (r *ConversationRepo) ConversationsOf(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userId, userId).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Touch updates the updated_at timestamp
func (r *ConversationRepo) Touch(ctx context.Context, conversationId string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("conversation_id = ?", conversationId).
		Update("updated_at", entity.NowUnixMilli()).Error
}
