package gateway

import "time"

// WebSocket protocol identifiers
const (
	// Request identifiers
	WSJoinRoom      = 1001 // Join a room
	WSLeaveRoom     = 1002 // Leave a room
	WSMarkRead      = 1003 // Mark a conversation/channel read
	WSUnreadSummary = 1004 // Fetch authoritative unread summary

	// Push identifiers
	WSPushNewMessage     = 2001 // New message in a room
	WSPushNewActivity    = 2002 // New feed activity
	WSPushActivityUpdate = 2003 // Activity metadata patched
	WSPushActivityDelete = 2004 // Activity tombstoned
	WSKickOnlineMsg      = 2005 // Kick user offline
)

// Timeout constants
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200
)

// Query parameter keys
const (
	QueryToken  = "token"
	QuerySendId = "send_id"
)
