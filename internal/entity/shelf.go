package entity

// Shelf represents a user's book shelf
type Shelf struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey"`
	OwnerId   string `json:"owner_id" gorm:"column:owner_id"`
	Name      string `json:"name" gorm:"column:name"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt int64  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Shelf
func (Shelf) TableName() string {
	return "shelves"
}

// ShelfItem represents one content entry on a shelf. OwnerId is
// denormalized from the shelf so fan-out targeting is a single query.
type ShelfItem struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ShelfId   int64  `json:"shelf_id" gorm:"column:shelf_id"`
	OwnerId   string `json:"owner_id" gorm:"column:owner_id"`
	ContentId string `json:"content_id" gorm:"column:content_id"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for ShelfItem
func (ShelfItem) TableName() string {
	return "shelf_items"
}
