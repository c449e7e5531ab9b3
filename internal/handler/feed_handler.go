package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/readowl/realtime/internal/dispatcher"
	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/internal/feed"
	"github.com/readowl/realtime/internal/middleware"
	"github.com/readowl/realtime/pkg/errcode"
	"github.com/readowl/realtime/pkg/response"
)

// FeedHandler handles activity feed and moderation requests
type FeedHandler struct {
	aggregator *feed.Aggregator
	dispatcher *dispatcher.Dispatcher
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(aggregator *feed.Aggregator, d *dispatcher.Dispatcher) *FeedHandler {
	return &FeedHandler{aggregator: aggregator, dispatcher: d}
}

// FeedPage returns one page of the named projection
func (h *FeedHandler) FeedPage(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	projection := c.Param("projection")
	cursor := c.Query("cursor")
	limit, _ := strconv.Atoi(c.Query("limit"))

	filters := feed.PageFilters{}
	if shelfId, err := strconv.ParseInt(c.Query("shelf_id"), 10, 64); err == nil {
		filters.ShelfId = shelfId
	}
	if contentIds := c.Query("content_ids"); contentIds != "" {
		filters.ContentIds = strings.Split(contentIds, ",")
	}

	page, err := h.aggregator.PageProjection(ctx, projection, userId, filters, cursor, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, page)
}

// GetActivity returns an activity by direct id lookup, tombstoned rows
// included
func (h *FeedHandler) GetActivity(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	info, err := h.aggregator.GetById(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, info)
}

// DispatchActivityRequest is the activity dispatch payload
type DispatchActivityRequest struct {
	Kind         entity.ActivityKind      `json:"kind"`
	TargetUserId string                   `json:"target_user_id,omitempty"`
	ContentId    string                   `json:"content_id,omitempty"`
	Metadata     *entity.ActivityMetadata `json:"metadata,omitempty"`
}

// DispatchActivity records and broadcasts a new feed activity with the
// caller as actor
func (h *FeedHandler) DispatchActivity(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	var req DispatchActivityRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	id, err := h.dispatcher.Activity(ctx, req.Kind, userId, req.TargetUserId, req.ContentId, req.Metadata)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]int64{"activity_id": id})
}

// DeleteActivity tombstones an activity and notifies connected clients
func (h *FeedHandler) DeleteActivity(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.dispatcher.ActivityDeleted(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// UpdateActivityMetadata patches an activity's metadata and notifies
// connected clients
func (h *FeedHandler) UpdateActivityMetadata(ctx context.Context, c *app.RequestContext) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	var patch entity.ActivityMetadata
	if err := c.BindAndValidate(&patch); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.dispatcher.ActivityUpdated(ctx, id, &patch); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
