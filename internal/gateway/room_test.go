package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomConstructors(t *testing.T) {
	assert.Equal(t, Room("conversation:cv_u___1:u___2"), ConversationRoom("cv_u___1:u___2"))
	assert.Equal(t, Room("channel:ch1"), ChannelRoom("ch1"))
	assert.Equal(t, Room("user:u___7"), UserRoom("u___7"))
	assert.Equal(t, Room("group-shelf:u___7"), GroupShelfRoom("u___7"))
}

func TestParseRoom(t *testing.T) {
	cases := []struct {
		name string
		kind RoomKind
	}{
		{"global-stream", RoomKindGlobal},
		{"conversation:cv_a:b", RoomKindConversation},
		{"channel:ch42", RoomKindChannel},
		{"user:u___9", RoomKindUser},
		{"group-shelf:u___9", RoomKindGroupShelf},
	}
	for _, tc := range cases {
		room, err := ParseRoom(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.kind, room.Kind(), tc.name)
	}
}

func TestParseRoomRejectsMalformed(t *testing.T) {
	for _, name := range []string{
		"",
		"conversation:",
		"channel:",
		"user:",
		"group-shelf:",
		"unknown:abc",
		"globalstream",
	} {
		_, err := ParseRoom(name)
		assert.Error(t, err, "expected reject: %q", name)
	}
}

func TestRoomSuffix(t *testing.T) {
	assert.Equal(t, "ch42", ChannelRoom("ch42").Suffix())
	assert.Equal(t, "cv_a:b", ConversationRoom("cv_a:b").Suffix())
	assert.Equal(t, "", GlobalStream.Suffix())
}
