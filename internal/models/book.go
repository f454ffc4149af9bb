package models

import (
	"time"

	"gorm.io/gorm"
)

// Book is a catalog entry offered to the recommendation assistant. Only
// books with a cover image are surfaced.
type Book struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Title    string `gorm:"type:varchar(255)" json:"title"`
	Author   string `gorm:"type:varchar(255)" json:"author"`
	Area     string `gorm:"type:varchar(100);index" json:"area"`
	About    string `gorm:"type:text" json:"about"`
	ImageURL string `gorm:"type:text" json:"image_url"`
}
