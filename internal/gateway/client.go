package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/readowl/realtime/internal/entity"
	"github.com/readowl/realtime/pkg/errcode"
)

// Client represents a connected WebSocket session
type Client struct {
	mu        sync.Mutex
	conn      ClientConn
	UserId    string
	Guest     bool
	Token     string
	ConnId    string
	server    *WsServer
	closed    atomic.Bool
	closedErr error
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId string, guest bool, token, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		UserId: userId,
		Guest:  guest,
		Token:  token,
		ConnId: connId,
		server: server,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming message
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.replyError(&req, ErrInvalidProtocol)
	}

	// Validate sender Id matches authenticated user
	if req.SendId != "" && req.SendId != c.UserId {
		return c.replyError(&req, ErrUserIdMismatch)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, c.UserId)

	var resp interface{}
	var err error

	switch req.ReqIdentifier {
	case WSJoinRoom:
		resp, err = c.server.HandleJoinRoom(c.ctx, c, &req)
	case WSLeaveRoom:
		resp, err = c.server.HandleLeaveRoom(c.ctx, c, &req)
	case WSMarkRead:
		resp, err = c.server.HandleMarkRead(c.ctx, c, &req)
	case WSUnreadSummary:
		resp, err = c.server.HandleUnreadSummary(c.ctx, c, &req)
	default:
		return c.replyError(&req, ErrInvalidProtocol)
	}

	return c.reply(&req, err, resp)
}

// reply sends a response to the client
func (c *Client) reply(req *WSRequest, err error, data interface{}) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		OperationId:   req.OperationId,
		Data:          data,
	}

	if err != nil {
		var coded *errcode.Error
		if errors.As(err, &coded) {
			resp.ErrCode = coded.Code
			resp.ErrMsg = coded.Msg
		} else {
			resp.ErrCode = 1
			resp.ErrMsg = err.Error()
		}
	}

	return c.writeResponse(resp)
}

// replyError sends an error response
func (c *Client) replyError(req *WSRequest, err error) error {
	return c.reply(req, err, nil)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// push writes an unsolicited frame to the connection
func (c *Client) push(identifier int32, data interface{}) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.writeResponse(WSResponse{
		ReqIdentifier: identifier,
		Data:          data,
	})
}

// PushNewMessage pushes a new message to the client
func (c *Client) PushNewMessage(targetId string, msg *entity.MessageInfo) error {
	return c.push(WSPushNewMessage, &NewMessagePush{
		TargetId: targetId,
		Message:  msg,
	})
}

// PushNewActivity pushes a newly recorded activity to the client
func (c *Client) PushNewActivity(activity *entity.ActivityInfo) error {
	return c.push(WSPushNewActivity, &NewActivityPush{Activity: activity})
}

// PushActivityUpdate pushes a metadata patch for an existing activity
func (c *Client) PushActivityUpdate(activityId int64, patch *entity.ActivityMetadata) error {
	return c.push(WSPushActivityUpdate, &ActivityUpdatePush{
		ActivityId: activityId,
		Patch:      patch,
	})
}

// PushActivityDelete pushes a tombstone notice for a deleted activity
func (c *Client) PushActivityDelete(activityId int64) error {
	return c.push(WSPushActivityDelete, &ActivityDeletePush{ActivityId: activityId})
}

// KickOnline sends kick message and closes connection
func (c *Client) KickOnline() error {
	c.writeResponse(WSResponse{
		ReqIdentifier: WSKickOnlineMsg,
	})
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
