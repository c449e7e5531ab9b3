package entity

import (
	"encoding/json"
	"fmt"
)

// ActivityKind identifies what kind of feed-worthy event an Activity records.
// The set is closed; unknown kinds are rejected at dispatch time.
type ActivityKind string

const (
	KindContentPublished ActivityKind = "content-published"
	KindContentCommented ActivityKind = "content-commented"
	KindContentReviewed  ActivityKind = "content-reviewed"
	KindItemShelved      ActivityKind = "item-shelved"
	KindNavigation       ActivityKind = "navigation-event"
	KindGroupMessage     ActivityKind = "message-sent-in-public-group"
)

// Valid reports whether k is one of the closed set of kinds
func (k ActivityKind) Valid() bool {
	switch k {
	case KindContentPublished, KindContentCommented, KindContentReviewed,
		KindItemShelved, KindNavigation, KindGroupMessage:
		return true
	}
	return false
}

// IsActionKind reports whether k is an "action kind": an activity the actor
// performed that routes to the actor's own personal feed, as opposed to a
// "content kind" that routes by target user.
func (k ActivityKind) IsActionKind() bool {
	return k == KindNavigation || k == KindItemShelved
}

// Activity is one entry in the aggregated feed. Rows are never physically
// deleted; moderation sets the tombstone and all projections exclude it.
type Activity struct {
	Id           int64        `json:"id" gorm:"column:id;primaryKey"`
	Kind         ActivityKind `json:"kind" gorm:"column:kind"`
	ActorId      string       `json:"actor_id" gorm:"column:actor_id"`
	TargetUserId string       `json:"target_user_id,omitempty" gorm:"column:target_user_id"`
	ContentId    string       `json:"content_id,omitempty" gorm:"column:content_id"`
	Metadata     *string      `json:"-" gorm:"column:metadata;type:json"`
	CreatedAt    int64        `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    int64        `json:"updated_at" gorm:"column:updated_at"`

	SoftDelete `gorm:"embedded"`
}

// TableName returns the table name for Activity
func (Activity) TableName() string {
	return "activities"
}

// PublishedMeta is the metadata payload for content-published activities
type PublishedMeta struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt,omitempty"`
	AuthorId string `json:"author_id"`
}

// CommentedMeta is the metadata payload for content-commented activities
type CommentedMeta struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
}

// ReviewedMeta is the metadata payload for content-reviewed activities
type ReviewedMeta struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
	Rating  int32  `json:"rating"`
}

// ShelvedMeta is the metadata payload for item-shelved activities
type ShelvedMeta struct {
	ContentId string `json:"content_id"`
	ShelfId   int64  `json:"shelf_id"`
	ShelfName string `json:"shelf_name"`
}

// NavigationMeta is the metadata payload for navigation-event activities
type NavigationMeta struct {
	Page      string `json:"page"`
	ContentId string `json:"content_id,omitempty"`
}

// GroupMessageMeta is the metadata payload for message-sent-in-public-group
type GroupMessageMeta struct {
	GroupId   string `json:"group_id"`
	ChannelId string `json:"channel_id"`
	MessageId int64  `json:"message_id"`
	Excerpt   string `json:"excerpt,omitempty"`
}

// ActivityMetadata is the closed union of kind-specific payloads. Exactly
// the variant matching Activity.Kind is populated.
type ActivityMetadata struct {
	Published    *PublishedMeta    `json:"published,omitempty"`
	Commented    *CommentedMeta    `json:"commented,omitempty"`
	Reviewed     *ReviewedMeta     `json:"reviewed,omitempty"`
	Shelved      *ShelvedMeta      `json:"shelved,omitempty"`
	Navigation   *NavigationMeta   `json:"navigation,omitempty"`
	GroupMessage *GroupMessageMeta `json:"group_message,omitempty"`
}

// VariantFor checks that the populated variant matches kind
func (m *ActivityMetadata) VariantFor(kind ActivityKind) error {
	var ok bool
	switch kind {
	case KindContentPublished:
		ok = m.Published != nil
	case KindContentCommented:
		ok = m.Commented != nil
	case KindContentReviewed:
		ok = m.Reviewed != nil
	case KindItemShelved:
		ok = m.Shelved != nil
	case KindNavigation:
		ok = m.Navigation != nil
	case KindGroupMessage:
		ok = m.GroupMessage != nil
	default:
		return fmt.Errorf("unknown activity kind: %s", kind)
	}
	if !ok {
		return fmt.Errorf("metadata variant missing for kind %s", kind)
	}
	return nil
}

// SetMetadata validates and encodes the metadata union onto the activity
func (a *Activity) SetMetadata(m *ActivityMetadata) error {
	if m == nil {
		a.Metadata = nil
		return nil
	}
	if err := m.VariantFor(a.Kind); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s := string(data)
	a.Metadata = &s
	return nil
}

// GetMetadata decodes the metadata union, nil if none is stored
func (a *Activity) GetMetadata() (*ActivityMetadata, error) {
	if a.Metadata == nil || *a.Metadata == "" {
		return nil, nil
	}
	var m ActivityMetadata
	if err := json.Unmarshal([]byte(*a.Metadata), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ActivityInfo is the delivered view of an activity
type ActivityInfo struct {
	Id           int64             `json:"id"`
	Kind         ActivityKind      `json:"kind"`
	ActorId      string            `json:"actor_id"`
	TargetUserId string            `json:"target_user_id,omitempty"`
	ContentId    string            `json:"content_id,omitempty"`
	Metadata     *ActivityMetadata `json:"metadata,omitempty"`
	CreatedAt    int64             `json:"created_at"`
	UpdatedAt    int64             `json:"updated_at"`
	DeletedAt    *int64            `json:"deleted_at,omitempty"`
}

// ToActivityInfo converts Activity to its delivered view. Metadata decode
// failures yield a nil metadata rather than an error; the raw row stays
// authoritative.
func (a *Activity) ToActivityInfo() *ActivityInfo {
	meta, _ := a.GetMetadata()
	return &ActivityInfo{
		Id:           a.Id,
		Kind:         a.Kind,
		ActorId:      a.ActorId,
		TargetUserId: a.TargetUserId,
		ContentId:    a.ContentId,
		Metadata:     meta,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		DeletedAt:    a.DeletedAt,
	}
}
