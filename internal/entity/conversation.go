package entity

// Conversation represents a private two-party conversation
type Conversation struct {
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;primaryKey"`
	UserA          string `json:"user_a" gorm:"column:user_a"`
	UserB          string `json:"user_b" gorm:"column:user_b"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      int64  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// HasParticipant reports whether userId is one of the two participants
func (c *Conversation) HasParticipant(userId string) bool {
	return c.UserA == userId || c.UserB == userId
}

// PeerOf returns the other participant, or "" if userId is not a participant
func (c *Conversation) PeerOf(userId string) string {
	switch userId {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	default:
		return ""
	}
}
