package entity

import "github.com/readowl/realtime/pkg/constant"

// Group represents a reading group. Its creation time doubles as the unread
// proxy boundary for members who have never posted.
type Group struct {
	Id            string `json:"id" gorm:"column:id;primaryKey"`
	Name          string `json:"name" gorm:"column:name"`
	Visibility    int32  `json:"visibility" gorm:"column:visibility"`
	Status        int32  `json:"status" gorm:"column:status"`
	CreatorUserId string `json:"creator_user_id" gorm:"column:creator_user_id"`
	CreatedAt     int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     int64  `json:"updated_at" gorm:"column:updated_at"`

	SoftDelete `gorm:"embedded"`
}

// TableName returns the table name for Group
func (Group) TableName() string {
	return "groups"
}

// IsNormal checks if group status is normal
func (g *Group) IsNormal() bool {
	return g.Status == constant.GroupStatusNormal && !g.IsDeleted()
}

// IsPublic checks if the group is publicly visible. Messages sent into a
// public group's channels are feed-worthy.
func (g *Group) IsPublic() bool {
	return g.Visibility == constant.GroupVisibilityPublic
}

// Channel represents one channel within a group
type Channel struct {
	Id        string `json:"id" gorm:"column:id;primaryKey"`
	GroupId   string `json:"group_id" gorm:"column:group_id"`
	Name      string `json:"name" gorm:"column:name"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt int64  `json:"updated_at" gorm:"column:updated_at"`

	SoftDelete `gorm:"embedded"`
}

// TableName returns the table name for Channel
func (Channel) TableName() string {
	return "channels"
}

// GroupMember represents a group member
type GroupMember struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	GroupId   string `json:"group_id" gorm:"column:group_id"`
	UserId    string `json:"user_id" gorm:"column:user_id"`
	RoleLevel int32  `json:"role_level" gorm:"column:role_level"`
	Status    int32  `json:"status" gorm:"column:status"`
	JoinedAt  int64  `json:"joined_at" gorm:"column:joined_at"`
}

// TableName returns the table name for GroupMember
func (GroupMember) TableName() string {
	return "group_members"
}

// IsNormal checks if member status is normal
func (gm *GroupMember) IsNormal() bool {
	return gm.Status == constant.GroupMemberStatusNormal
}
