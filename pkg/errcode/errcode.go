package errcode

import "fmt"

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// Is matches errors by business code, so a wrapped error still compares
// equal to its sentinel under errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternalServer = New(1002, "internal server error")
	ErrUnauthorized   = New(1003, "unauthorized")
	ErrForbidden      = New(1004, "forbidden")
	ErrNotFound       = New(1005, "not found")
	ErrNoPermission   = New(1007, "no permission to access this resource")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")

	// Room errors (3xxx)
	ErrRoomAuthorization = New(3001, "cannot access this conversation or channel")
	ErrInvalidRoom       = New(3002, "invalid room name")
	ErrGuestRestricted   = New(3003, "guests may only join the global stream")
	ErrNotGroupMember    = New(3004, "not a group member")
	ErrGroupDismissed    = New(3005, "group has been dismissed")

	// Message errors (4xxx)
	ErrMessageNotFound  = New(4001, "message not found")
	ErrMessageDuplicate = New(4002, "duplicate message")
	ErrConvNotFound     = New(4003, "conversation not found")
	ErrSendFailed       = New(4004, "message send failed")
	ErrPullFailed       = New(4005, "message pull failed")
	ErrQuoteTooDeep     = New(4006, "quoted message may not itself quote")

	// WebSocket errors (5xxx)
	ErrConnOverLimit   = New(5001, "connection over max limit")
	ErrConnClosed      = New(5002, "connection closed")
	ErrInvalidProtocol = New(5003, "invalid protocol")
	ErrPushFailed      = New(5004, "push message failed")

	// Feed errors (6xxx)
	ErrActivityNotFound = New(6001, "activity not found")
	ErrInvalidCursor    = New(6002, "invalid feed cursor")
	ErrInvalidPage      = New(6003, "invalid projection or filter")
	ErrRecordFailed     = New(6004, "activity record failed")
)
