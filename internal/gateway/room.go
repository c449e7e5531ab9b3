package gateway

import (
	"fmt"
	"strings"
)

// Room is a named broadcast target. A room has no identity beyond its
// name; it is an index entry created lazily on first join and removed
// when its last member leaves.
type Room string

// RoomKind discriminates the five room variants
type RoomKind int

const (
	RoomKindConversation RoomKind = iota + 1
	RoomKindChannel
	RoomKindUser
	RoomKindGroupShelf
	RoomKindGlobal
)

const (
	roomPrefixConversation = "conversation:"
	roomPrefixChannel      = "channel:"
	roomPrefixUser         = "user:"
	roomPrefixGroupShelf   = "group-shelf:"

	// GlobalStream is the single room every connection, including guests,
	// may subscribe to.
	GlobalStream Room = "global-stream"
)

// ConversationRoom returns the room for a private conversation
func ConversationRoom(conversationId string) Room {
	return Room(roomPrefixConversation + conversationId)
}

// ChannelRoom returns the room for a group channel
func ChannelRoom(channelId string) Room {
	return Room(roomPrefixChannel + channelId)
}

// UserRoom returns a user's personal notification room
func UserRoom(userId string) Room {
	return Room(roomPrefixUser + userId)
}

// GroupShelfRoom returns the room carrying shelf-scoped activity pushes
// for one user
func GroupShelfRoom(userId string) Room {
	return Room(roomPrefixGroupShelf + userId)
}

// ParseRoom validates a client-supplied room name
func ParseRoom(name string) (Room, error) {
	if name == string(GlobalStream) {
		return GlobalStream, nil
	}
	for _, prefix := range []string{roomPrefixConversation, roomPrefixChannel, roomPrefixUser, roomPrefixGroupShelf} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return Room(name), nil
		}
	}
	return "", fmt.Errorf("invalid room name: %q", name)
}

// Kind returns the variant of the room
func (r Room) Kind() RoomKind {
	switch {
	case r == GlobalStream:
		return RoomKindGlobal
	case strings.HasPrefix(string(r), roomPrefixConversation):
		return RoomKindConversation
	case strings.HasPrefix(string(r), roomPrefixChannel):
		return RoomKindChannel
	case strings.HasPrefix(string(r), roomPrefixUser):
		return RoomKindUser
	case strings.HasPrefix(string(r), roomPrefixGroupShelf):
		return RoomKindGroupShelf
	default:
		return 0
	}
}

// Suffix returns the id part after the variant prefix, "" for the
// global stream
func (r Room) Suffix() string {
	s := string(r)
	if idx := strings.Index(s, ":"); idx >= 0 {
		return s[idx+1:]
	}
	return ""
}
