package repository

import (
	"context"

	"github.com/readowl/realtime/internal/gateway"
	"github.com/readowl/realtime/pkg/errcode"
)

// AccessGateway adapts the data layer to the gateway's Authorizer. Room
// joins are gated on current membership; a membership revoked after a
// successful join does not evict the connection.
type AccessGateway struct {
	convRepo  *ConversationRepo
	groupRepo *GroupRepo
}

// NewAccessGateway creates a new AccessGateway
func NewAccessGateway(convRepo *ConversationRepo, groupRepo *GroupRepo) *AccessGateway {
	return &AccessGateway{
		convRepo:  convRepo,
		groupRepo: groupRepo,
	}
}

// Authorize reports whether userId may join room
func (g *AccessGateway) Authorize(ctx context.Context, userId string, room gateway.Room) error {
	switch room.Kind() {
	case gateway.RoomKindConversation:
		ok, err := g.convRepo.IsParticipant(ctx, room.Suffix(), userId)
		if err != nil {
			return errcode.ErrInternalServer.Wrap(err)
		}
		if !ok {
			return errcode.ErrRoomAuthorization
		}
		return nil
	case gateway.RoomKindChannel:
		ok, err := g.groupRepo.IsChannelAccessible(ctx, room.Suffix(), userId)
		if err != nil {
			return errcode.ErrInternalServer.Wrap(err)
		}
		if !ok {
			return errcode.ErrRoomAuthorization
		}
		return nil
	default:
		return errcode.ErrInvalidRoom
	}
}
