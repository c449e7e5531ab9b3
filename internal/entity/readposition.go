package entity

// ReadPosition marks, per (user, channel-or-conversation), the boundary
// between read and unread. Mutated only by the owning user viewing the
// target or sending into it. Upserts take the greater timestamp, so
// concurrent mark-read calls linearize to last-writer-wins.
type ReadPosition struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserId    string `json:"user_id" gorm:"column:user_id"`
	TargetId  string `json:"target_id" gorm:"column:target_id"`
	ReadAt    int64  `json:"read_at" gorm:"column:read_at"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt int64  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for ReadPosition
func (ReadPosition) TableName() string {
	return "read_positions"
}
