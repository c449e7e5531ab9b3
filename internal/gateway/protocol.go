package gateway

import "github.com/readowl/realtime/internal/entity"

// WSRequest is the frame clients send over the socket.
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"`
	Token         string `json:"token"`
	SendId        string `json:"send_id"`
	OperationId   string `json:"operation_id"`
	Data          []byte `json:"data"`
}

// WSResponse is the frame the server writes back, both as a reply to a
// request (echoing OperationId) and as an unsolicited push.
type WSResponse struct {
	ReqIdentifier int32       `json:"req_identifier"`
	OperationId   string      `json:"operation_id,omitempty"`
	ErrCode       int         `json:"err_code"`
	ErrMsg        string      `json:"err_msg"`
	Data          interface{} `json:"data"`
}

// JoinRoomReq asks the server to subscribe this connection to a room.
type JoinRoomReq struct {
	Room string `json:"room"`
}

// LeaveRoomReq unsubscribes this connection from a room.
type LeaveRoomReq struct {
	Room string `json:"room"`
}

// MarkReadReq records an explicit read position for a conversation or channel.
type MarkReadReq struct {
	TargetId string `json:"target_id"`
	ReadAt   int64  `json:"read_at"`
}

// UnreadSummaryResp carries the authoritative unread counts for the user.
type UnreadSummaryResp struct {
	Conversations map[string]int64 `json:"conversations"`
	Groups        map[string]int64 `json:"groups"`
	Total         int64            `json:"total"`
}

// NewMessagePush is the payload of a WSPushNewMessage frame.
type NewMessagePush struct {
	TargetId string              `json:"target_id"`
	Message  *entity.MessageInfo `json:"message"`
}

// NewActivityPush is the payload of a WSPushNewActivity frame.
type NewActivityPush struct {
	Activity *entity.ActivityInfo `json:"activity"`
}

// ActivityUpdatePush is the payload of a WSPushActivityUpdate frame.
// Patch carries only the metadata fields that changed.
type ActivityUpdatePush struct {
	ActivityId int64                    `json:"activity_id"`
	Patch      *entity.ActivityMetadata `json:"patch"`
}

// ActivityDeletePush is the payload of a WSPushActivityDelete frame.
type ActivityDeletePush struct {
	ActivityId int64 `json:"activity_id"`
}
