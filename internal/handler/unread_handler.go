package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/readowl/realtime/internal/middleware"
	"github.com/readowl/realtime/internal/unread"
	"github.com/readowl/realtime/pkg/errcode"
	"github.com/readowl/realtime/pkg/response"
)

// UnreadHandler handles read-position and unread-summary requests
type UnreadHandler struct {
	engine *unread.Engine
}

// NewUnreadHandler creates a new UnreadHandler
func NewUnreadHandler(engine *unread.Engine) *UnreadHandler {
	return &UnreadHandler{engine: engine}
}

// MarkReadRequest is the mark-read payload. ReadAt zero means now.
type MarkReadRequest struct {
	TargetId string `json:"target_id"`
	ReadAt   int64  `json:"read_at,omitempty"`
}

// MarkRead records an explicit read position for a conversation or channel
func (h *UnreadHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req MarkReadRequest
	if err := c.BindAndValidate(&req); err != nil || req.TargetId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.engine.MarkRead(ctx, userId, req.TargetId, req.ReadAt); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// UnreadSummary returns the authoritative unread counts for the caller
func (h *UnreadHandler) UnreadSummary(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	conversations, groups, total, err := h.engine.Summary(ctx, userId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &unread.Summary{
		Conversations: conversations,
		Groups:        groups,
		Total:         total,
	})
}
