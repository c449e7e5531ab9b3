package repository

import (
	"context"
	"errors"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/pkg/constant"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// GroupRepo is the repository for group, channel and membership operations
type GroupRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewGroupRepo creates a new GroupRepo
func NewGroupRepo(db *gorm.DB, rdb *redis.Client) *GroupRepo {
	return &GroupRepo{db: db, rdb: rdb}
}

// GetById gets a group by id
func (r *GroupRepo) GetById(ctx context.Context, groupId string) (*entity.Group, error) {
	var group entity.Group
	err := r.db.WithContext(ctx).Where("id = ?", groupId).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// GetChannel gets a channel by id, excluding soft-deleted channels
func (r *GroupRepo) GetChannel(ctx context.Context, channelId string) (*entity.Channel, error) {
	var channel entity.Channel
	err := r.db.WithContext(ctx).
		Scopes(entity.NotDeleted).
		Where("id = ?", channelId).
		First(&channel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// ChannelsOfGroup returns the live channels of a group
func (r *GroupRepo) ChannelsOfGroup(ctx context.Context, groupId string) ([]*entity.Channel, error) {
	var channels []*entity.Channel
	err := r.db.WithContext(ctx).
		Scopes(entity.NotDeleted).
		Where("group_id = ?", groupId).
		Order("created_at ASC").
		Find(&channels).Error
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// GetMember gets a group member record
func (r *GroupRepo) GetMember(ctx context.Context, groupId, userId string) (*entity.GroupMember, error) {
	var member entity.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupId, userId).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// IsGroupMember reports whether userId is an active member of groupId
func (r *GroupRepo) IsGroupMember(ctx context.Context, groupId, userId string) (bool, error) {
	member, err := r.GetMember(ctx, groupId, userId)
	if err != nil {
		return false, err
	}
	return member != nil && member.IsNormal(), nil
}

// IsChannelAccessible reports whether userId may read channelId: the
// channel must be live and the user an active member of its group
func (r *GroupRepo) IsChannelAccessible(ctx context.Context, channelId, userId string) (bool, error) {
	channel, err := r.GetChannel(ctx, channelId)
	if err != nil {
		return false, err
	}
	if channel == nil {
		return false, nil
	}
	return r.IsGroupMember(ctx, channel.GroupId, userId)
}

// ActiveMemberUserIds returns user ids of all active members of a group
func (r *GroupRepo) ActiveMemberUserIds(ctx context.Context, groupId string) ([]string, error) {
	var userIds []string
	err := r.db.WithContext(ctx).
		Model(&entity.GroupMember{}).
		Where("group_id = ? AND status = ?", groupId, constant.GroupMemberStatusNormal).
		Pluck("user_id", &userIds).Error
	if err != nil {
		return nil, err
	}
	return userIds, nil
}

// GroupsOfUser returns the groups a user is an active member of
func (r *GroupRepo) GroupsOfUser(ctx context.Context, userId string) ([]*entity.Group, error) {
	var groups []*entity.Group
	err := r.db.WithContext(ctx).
		Table("groups g").
		Joins("JOIN group_members gm ON gm.group_id = g.id").
		Where("gm.user_id = ? AND gm.status = ? AND g.deleted_at IS NULL", userId, constant.GroupMemberStatusNormal).
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}
