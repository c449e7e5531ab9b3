package entity

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// SoftDelete is the shared soft-delete capability. A non-null DeletedAt
// marks the row as tombstoned: excluded from every delivery path and
// projection, but kept for audit and direct-id lookups.
type SoftDelete struct {
	DeletedAt *int64 `json:"deleted_at,omitempty" gorm:"column:deleted_at"`
}

// IsDeleted reports whether the row is tombstoned
func (s *SoftDelete) IsDeleted() bool {
	return s.DeletedAt != nil
}

// MarkDeleted sets the tombstone timestamp
func (s *SoftDelete) MarkDeleted(at int64) {
	s.DeletedAt = &at
}

// NotDeleted is the uniform query scope excluding soft-deleted rows
func NotDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at IS NULL")
}

// GenConversationId generates the conversation Id for a two-party conversation.
// Format: cv_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator between userIds to support userIds containing "_"
func GenConversationId(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("cv_%s:%s", users[0], users[1])
}
