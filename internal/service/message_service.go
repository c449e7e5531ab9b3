package service

import (
	"context"
	"strings"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/readowl/realtime/common"
	"github.com/readowl/realtime/internal/dispatcher"
	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/internal/repository"
	"github.com/readowl/realtime/pkg/errcode"
	"github.com/readowl/realtime/pkg/idgen"
)

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo    *repository.MessageRepo
	convRepo   *repository.ConversationRepo
	groupRepo  *repository.GroupRepo
	repos      *repository.Repositories
	idGen      idgen.IDGenerator
	dispatcher *dispatcher.Dispatcher
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories, idGen idgen.IDGenerator) *MessageService {
	return &MessageService{
		msgRepo:   repos.Message,
		convRepo:  repos.Conversation,
		groupRepo: repos.Group,
		repos:     repos,
		idGen:     idGen,
	}
}

// SetDispatcher wires the event dispatcher after construction
func (s *MessageService) SetDispatcher(d *dispatcher.Dispatcher) {
	s.dispatcher = d
}

// SendMessageRequest represents send message request. Exactly one of
// RecvId (direct message) or ChannelId (channel message) is set.
type SendMessageRequest struct {
	RecvId          string   `json:"recv_id,omitempty"`
	ChannelId       string   `json:"channel_id,omitempty"`
	Body            string   `json:"body"`
	QuotedMessageId *int64   `json:"quoted_message_id,omitempty"`
	Attachments     []string `json:"attachments,omitempty"`
}

// SendMessage persists a message and dispatches its side effects. The
// message commit is the transactional boundary; feed entries and
// broadcasts happen after and never roll it back.
func (s *MessageService) SendMessage(ctx context.Context, senderId string, req *SendMessageRequest) (*entity.MessageInfo, error) {
	if common.IsGuest(senderId) {
		return nil, errcode.ErrGuestRestricted
	}
	if strings.TrimSpace(req.Body) == "" && len(req.Attachments) == 0 {
		return nil, errcode.ErrInvalidParam
	}
	if (req.RecvId == "") == (req.ChannelId == "") {
		return nil, errcode.ErrInvalidParam
	}

	quoted, err := s.validateQuote(ctx, req.QuotedMessageId)
	if err != nil {
		return nil, err
	}

	if req.ChannelId != "" {
		return s.sendChannelMessage(ctx, senderId, req, quoted)
	}
	return s.sendDirectMessage(ctx, senderId, req, quoted)
}

// sendDirectMessage sends into a two-party conversation, creating the
// conversation row on first contact
func (s *MessageService) sendDirectMessage(ctx context.Context, senderId string, req *SendMessageRequest, quoted *entity.QuotedInfo) (*entity.MessageInfo, error) {
	if req.RecvId == senderId || common.IsGuest(req.RecvId) {
		return nil, errcode.ErrInvalidParam
	}

	conversationId := entity.GenConversationId(senderId, req.RecvId)
	msg, err := s.buildMessage(senderId, req)
	if err != nil {
		return nil, err
	}
	msg.ConversationId = conversationId

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.convRepo.Ensure(ctx, tx, senderId, req.RecvId); err != nil {
			return err
		}
		return s.msgRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		if e, ok := err.(*errcode.Error); ok {
			return nil, e
		}
		log.CtxError(ctx, "send direct message failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	// Bump recency so conversation lists sort by last message
	if err := s.convRepo.Touch(ctx, conversationId); err != nil {
		log.CtxWarn(ctx, "conversation touch failed: conversation_id=%s, error=%v", conversationId, err)
	}

	info := msg.ToMessageInfo(quoted)
	if s.dispatcher != nil {
		s.dispatcher.MessageSent(ctx, msg, info)
	}

	log.CtxInfo(ctx, "direct message sent: sender_id=%s, conversation_id=%s, message_id=%d",
		senderId, conversationId, msg.Id)
	return info, nil
}

// sendChannelMessage sends into a group channel after a membership check
func (s *MessageService) sendChannelMessage(ctx context.Context, senderId string, req *SendMessageRequest, quoted *entity.QuotedInfo) (*entity.MessageInfo, error) {
	channel, err := s.groupRepo.GetChannel(ctx, req.ChannelId)
	if err != nil {
		log.CtxError(ctx, "channel lookup failed: channel_id=%s, error=%v", req.ChannelId, err)
		return nil, errcode.ErrInternalServer
	}
	if channel == nil {
		return nil, errcode.ErrNotFound
	}

	group, err := s.groupRepo.GetById(ctx, channel.GroupId)
	if err != nil || group == nil {
		return nil, errcode.ErrNotFound
	}
	if !group.IsNormal() {
		return nil, errcode.ErrGroupDismissed
	}

	member, err := s.groupRepo.GetMember(ctx, channel.GroupId, senderId)
	if err != nil {
		log.CtxError(ctx, "member lookup failed: group_id=%s, error=%v", channel.GroupId, err)
		return nil, errcode.ErrInternalServer
	}
	if member == nil || !member.IsNormal() {
		return nil, errcode.ErrNotGroupMember
	}

	msg, err := s.buildMessage(senderId, req)
	if err != nil {
		return nil, err
	}
	msg.ChannelId = channel.Id
	msg.GroupId = channel.GroupId

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		return s.msgRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		log.CtxError(ctx, "send channel message failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	info := msg.ToMessageInfo(quoted)
	if s.dispatcher != nil {
		s.dispatcher.MessageSent(ctx, msg, info)
	}

	log.CtxInfo(ctx, "channel message sent: sender_id=%s, channel_id=%s, message_id=%d",
		senderId, channel.Id, msg.Id)
	return info, nil
}

// PullMessages returns messages in a target after a timestamp, quoted
// references resolved. Deleted quoted messages come back as structural
// placeholders.
func (s *MessageService) PullMessages(ctx context.Context, userId, targetId string, after int64, limit int) ([]*entity.MessageInfo, error) {
	ok, err := s.canAccessTarget(ctx, userId, targetId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.ErrRoomAuthorization
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	messages, err := s.msgRepo.Pull(ctx, targetId, after, limit)
	if err != nil {
		log.CtxError(ctx, "pull messages failed: target_id=%s, error=%v", targetId, err)
		return nil, errcode.ErrPullFailed
	}

	infos := make([]*entity.MessageInfo, 0, len(messages))
	for _, msg := range messages {
		quoted, err := s.msgRepo.ResolveQuoted(ctx, msg.QuotedMessageId)
		if err != nil {
			log.CtxWarn(ctx, "quote resolution failed: message_id=%d, error=%v", msg.Id, err)
		}
		infos = append(infos, msg.ToMessageInfo(quoted))
	}
	return infos, nil
}

// DeleteMessage tombstones a message authored by the caller
func (s *MessageService) DeleteMessage(ctx context.Context, userId string, messageId int64) error {
	msg, err := s.msgRepo.GetById(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "message lookup failed: message_id=%d, error=%v", messageId, err)
		return errcode.ErrInternalServer
	}
	if msg == nil {
		return errcode.ErrMessageNotFound
	}
	if msg.SenderId != userId {
		return errcode.ErrNoPermission
	}
	return s.msgRepo.SoftDelete(ctx, messageId)
}

// buildMessage assembles the common message fields
func (s *MessageService) buildMessage(senderId string, req *SendMessageRequest) (*entity.Message, error) {
	id, err := s.idGen.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	msg := &entity.Message{
		Id:              id,
		SenderId:        senderId,
		Body:            req.Body,
		QuotedMessageId: req.QuotedMessageId,
		SendAt:          entity.NowUnixMilli(),
	}
	if err := msg.SetAttachments(req.Attachments); err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	return msg, nil
}

// validateQuote enforces the one-level quote rule: the quoted message
// must exist and may not itself quote another message
func (s *MessageService) validateQuote(ctx context.Context, quotedId *int64) (*entity.QuotedInfo, error) {
	if quotedId == nil {
		return nil, nil
	}
	quoted, err := s.msgRepo.GetById(ctx, *quotedId)
	if err != nil {
		log.CtxError(ctx, "quoted message lookup failed: message_id=%d, error=%v", *quotedId, err)
		return nil, errcode.ErrInternalServer
	}
	if quoted == nil {
		return nil, errcode.ErrMessageNotFound
	}
	if quoted.QuotedMessageId != nil {
		return nil, errcode.ErrQuoteTooDeep
	}
	return s.msgRepo.ResolveQuoted(ctx, quotedId)
}

// canAccessTarget checks read access to a conversation or channel
func (s *MessageService) canAccessTarget(ctx context.Context, userId, targetId string) (bool, error) {
	if strings.HasPrefix(targetId, "cv_") {
		ok, err := s.convRepo.IsParticipant(ctx, targetId, userId)
		if err != nil {
			return false, errcode.ErrInternalServer.Wrap(err)
		}
		return ok, nil
	}
	ok, err := s.groupRepo.IsChannelAccessible(ctx, targetId, userId)
	if err != nil {
		return false, errcode.ErrInternalServer.Wrap(err)
	}
	return ok, nil
}
