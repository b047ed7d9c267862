package domain

import "time"

// Media is the catalog entry a persistent session is attached to. Rows are
// owned by the catalog collaborator; this service only reads them.
type Media struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ContentID string    `gorm:"size:128;uniqueIndex;not null" json:"contentId"`
	Title     string    `gorm:"size:512" json:"title"`
	Kind      string    `gorm:"size:32;index" json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Media) TableName() string { return "media" }
