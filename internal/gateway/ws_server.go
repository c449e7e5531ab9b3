package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/readowl/realtime/common"
	"github.com/readowl/realtime/internal/config"
	"github.com/readowl/realtime/pkg/errcode"
	"github.com/readowl/realtime/pkg/jwt"
	"github.com/redis/go-redis/v9"
)

// UnreadService is the slice of the unread engine the gateway needs.
type UnreadService interface {
	MarkRead(ctx context.Context, userId, targetId string, readAt int64) error
	Summary(ctx context.Context, userId string) (map[string]int64, map[string]int64, int64, error)
}

// WsServer owns the connection lifecycle: handshake, session registry,
// registration events, and dispatch of socket requests.
type WsServer struct {
	upgrader       *websocket.Upgrader
	cfg            *config.Config
	registry       *Registry
	router         *Router
	authorizer     Authorizer
	unreadService  UnreadService
	registerChan   chan *Client
	unregisterChan chan *Client
	guestSeq       atomic.Int64
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, rdb *redis.Client, authorizer Authorizer, unreadService UnreadService) *WsServer {
	upgrader := &websocket.Upgrader{
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}

	registry := NewRegistry(rdb)

	server := &WsServer{
		upgrader:       upgrader,
		cfg:            cfg,
		registry:       registry,
		router:         NewRouter(registry),
		authorizer:     authorizer,
		unreadService:  unreadService,
		registerChan:   make(chan *Client, 1000),
		unregisterChan: make(chan *Client, 1000),
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}

	return server
}

// Registry exposes the session registry
func (s *WsServer) Registry() *Registry {
	return s.registry
}

// Router exposes the room router
func (s *WsServer) Router() *Router {
	return s.router
}

// Run starts the WebSocket server
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		}
	}
}

// registerClient registers a client and subscribes its baseline rooms.
// Every connection lands in the global stream; authenticated users also
// get their personal room so targeted pushes need no explicit join.
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	hadConns := s.registry.HasConnection(client.UserId)

	s.registry.Register(ctx, client)
	s.onlineConnNum.Add(1)
	if !hadConns {
		s.onlineUserNum.Add(1)
	}

	s.registry.Join(client.ConnId, GlobalStream)
	if !client.Guest {
		s.registry.Join(client.ConnId, UserRoom(client.UserId))
		s.registry.Join(client.ConnId, GroupShelfRoom(client.UserId))
	}

	log.CtxInfo(ctx, "client registered: user_id=%s, guest=%v, conn_id=%s, online_users=%d, online_conns=%d",
		client.UserId, client.Guest, client.ConnId, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client. The drop path and the read
// loop can both queue the same client, so counters move only on the
// event that actually removed the session.
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	removed, isUserOffline := s.registry.Unregister(ctx, client)
	if !removed {
		return
	}
	s.onlineConnNum.Add(-1)

	if isUserOffline {
		s.onlineUserNum.Add(-1)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// HandleConnection handles a new WebSocket connection over net/http
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		http.Error(w, "connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get(QueryToken)
	sendId := r.URL.Query().Get(QuerySendId)

	userId, guest, err := s.authenticate(ctx, token, sendId)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	connId := uuid.New().String()
	wsConn := NewWebSocketClientConn(conn, s.cfg.WebSocket.MaxMessageSize, PongWait, PingPeriod,
		s.cfg.WebSocket.WriteChannelSize, s.presenceRefresher(userId))
	client := NewClient(wsConn, userId, guest, token, connId, s)

	s.registerChan <- client
	client.Start()
}

// presenceRefresher returns the pong hook keeping the user's Redis
// presence key alive for the lifetime of the connection. Without it the
// key would expire mid-connection and remote nodes would see the user
// offline.
func (s *WsServer) presenceRefresher(userId string) func() {
	return func() {
		s.registry.RefreshOnlineStatus(context.Background(), userId)
	}
}

// authenticate resolves the connecting identity. A valid token yields an
// authenticated user; no token yields a node-local guest identity when
// guests are enabled.
func (s *WsServer) authenticate(ctx context.Context, token, sendId string) (string, bool, error) {
	if token != "" {
		claims, err := jwt.ValidateToken(token, s.cfg.JWT.Secret, sendId)
		if err != nil {
			log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
			return "", false, errcode.ErrTokenInvalid
		}
		return claims.UserId, false, nil
	}

	if !s.cfg.WebSocket.AllowGuests {
		return "", false, errcode.ErrTokenInvalid
	}

	actor := common.Actor{Id: s.guestSeq.Add(1), Role: common.RoleGuest}
	guestId, err := actor.ToRealtimeUserId()
	if err != nil {
		return "", false, errcode.ErrInternalServer
	}
	return guestId, true, nil
}

// KickUser closes all of a user's connections. Unregistration goes
// through the event loop so the online counters move exactly once per
// connection.
func (s *WsServer) KickUser(ctx context.Context, userId string) int {
	clients := s.registry.GetByUser(userId)
	for _, client := range clients {
		client.KickOnline()
		s.UnregisterClient(client)
	}
	return len(clients)
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// ========== Socket Request Handlers ==========

// HandleJoinRoom handles a room join request. The authorization check
// runs outside the registry lock; a disconnect racing the check leaves
// membership untouched.
func (s *WsServer) HandleJoinRoom(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	var joinReq JoinRoomReq
	if err := json.Unmarshal(req.Data, &joinReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	room, err := ParseRoom(joinReq.Room)
	if err != nil {
		return nil, errcode.ErrInvalidParam
	}

	if err := s.authorizeJoin(ctx, client, room); err != nil {
		return nil, err
	}

	if err := s.registry.Join(client.ConnId, room); err != nil {
		// Already disconnected; nothing to undo
		log.CtxDebug(ctx, "join after disconnect: user_id=%s, room=%s", client.UserId, room)
		return nil, nil
	}

	return &JoinRoomReq{Room: string(room)}, nil
}

// HandleLeaveRoom handles a room leave request
func (s *WsServer) HandleLeaveRoom(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	var leaveReq LeaveRoomReq
	if err := json.Unmarshal(req.Data, &leaveReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	room, err := ParseRoom(leaveReq.Room)
	if err != nil {
		return nil, errcode.ErrInvalidParam
	}

	if err := s.registry.Leave(client.ConnId, room); err != nil {
		log.CtxDebug(ctx, "leave after disconnect: user_id=%s, room=%s", client.UserId, room)
	}
	return nil, nil
}

// HandleMarkRead records an explicit read position
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	if client.Guest {
		return nil, errcode.ErrGuestRestricted
	}

	var markReq MarkReadReq
	if err := json.Unmarshal(req.Data, &markReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}
	if markReq.TargetId == "" {
		return nil, errcode.ErrInvalidParam
	}

	// A zero ReadAt means "caught up as of now"; the engine fills it in

	if err := s.unreadService.MarkRead(ctx, client.UserId, markReq.TargetId, markReq.ReadAt); err != nil {
		return nil, err
	}
	return nil, nil
}

// HandleUnreadSummary returns the authoritative unread summary
func (s *WsServer) HandleUnreadSummary(ctx context.Context, client *Client, req *WSRequest) (interface{}, error) {
	if client.Guest {
		return nil, errcode.ErrGuestRestricted
	}

	conversations, groups, total, err := s.unreadService.Summary(ctx, client.UserId)
	if err != nil {
		return nil, err
	}

	return &UnreadSummaryResp{
		Conversations: conversations,
		Groups:        groups,
		Total:         total,
	}, nil
}

// authorizeJoin applies the static room rules, then delegates the
// data-backed checks to the Authorizer.
func (s *WsServer) authorizeJoin(ctx context.Context, client *Client, room Room) error {
	switch room.Kind() {
	case RoomKindGlobal:
		return nil
	case RoomKindUser, RoomKindGroupShelf:
		if client.Guest {
			return errcode.ErrGuestRestricted
		}
		if room.Suffix() != client.UserId {
			return errcode.ErrRoomAuthorization
		}
		return nil
	case RoomKindConversation, RoomKindChannel:
		if client.Guest {
			return errcode.ErrGuestRestricted
		}
		return s.authorizer.Authorize(ctx, client.UserId, room)
	default:
		return errcode.ErrInvalidParam
	}
}
