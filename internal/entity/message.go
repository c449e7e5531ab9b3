package entity

import "encoding/json"

// Message represents a message in a conversation or a channel. Exactly one
// of ConversationId / ChannelId is set.
type Message struct {
	Id              int64   `json:"id" gorm:"column:id;primaryKey"`
	ConversationId  string  `json:"conversation_id" gorm:"column:conversation_id"`
	ChannelId       string  `json:"channel_id" gorm:"column:channel_id"`
	GroupId         string  `json:"group_id" gorm:"column:group_id"`
	SenderId        string  `json:"sender_id" gorm:"column:sender_id"`
	Body            string  `json:"body" gorm:"column:body"`
	QuotedMessageId *int64  `json:"quoted_message_id,omitempty" gorm:"column:quoted_message_id"`
	Attachments     *string `json:"attachments,omitempty" gorm:"column:attachments;type:json"`
	SendAt          int64   `json:"send_at" gorm:"column:send_at"`
	CreatedAt       int64   `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       int64   `json:"updated_at" gorm:"column:updated_at"`

	SoftDelete `gorm:"embedded"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// TargetId returns the conversation or channel the message belongs to
func (m *Message) TargetId() string {
	if m.ConversationId != "" {
		return m.ConversationId
	}
	return m.ChannelId
}

// IsChannelMessage reports whether the message was sent into a channel
func (m *Message) IsChannelMessage() bool {
	return m.ChannelId != ""
}

// GetAttachments decodes the ordered attachment reference list
func (m *Message) GetAttachments() []string {
	if m.Attachments == nil || *m.Attachments == "" {
		return nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(*m.Attachments), &refs); err != nil {
		return nil
	}
	return refs
}

// SetAttachments encodes the ordered attachment reference list
func (m *Message) SetAttachments(refs []string) error {
	if len(refs) == 0 {
		m.Attachments = nil
		return nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	s := string(data)
	m.Attachments = &s
	return nil
}

// QuotedInfo is the delivered view of a quoted message. A soft-deleted
// quoted message is rendered as a structural placeholder only.
type QuotedInfo struct {
	Id       int64  `json:"id"`
	SenderId string `json:"sender_id,omitempty"`
	Body     string `json:"body,omitempty"`
	Deleted  bool   `json:"deleted"`
}

// MessageInfo represents message content as delivered to clients
type MessageInfo struct {
	Id             int64       `json:"id"`
	ConversationId string      `json:"conversation_id,omitempty"`
	ChannelId      string      `json:"channel_id,omitempty"`
	GroupId        string      `json:"group_id,omitempty"`
	SenderId       string      `json:"sender_id"`
	Body           string      `json:"body"`
	Quoted         *QuotedInfo `json:"quoted,omitempty"`
	Attachments    []string    `json:"attachments,omitempty"`
	SendAt         int64       `json:"send_at"`
}

// ToMessageInfo converts Message to MessageInfo. The quoted view, if any,
// is resolved by the caller since it needs a repository lookup.
func (m *Message) ToMessageInfo(quoted *QuotedInfo) *MessageInfo {
	return &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		ChannelId:      m.ChannelId,
		GroupId:        m.GroupId,
		SenderId:       m.SenderId,
		Body:           m.Body,
		Quoted:         quoted,
		Attachments:    m.GetAttachments(),
		SendAt:         m.SendAt,
	}
}
