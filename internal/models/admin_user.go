package models

import (
	"time"

	"gorm.io/gorm"
)

// AdminUser is the allow-list of user ids permitted to call administrative
// endpoints. Membership is checked before any privileged read.
type AdminUser struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID string `gorm:"type:varchar(100);uniqueIndex" json:"user_id"`
	Note   string `gorm:"type:varchar(255)" json:"note,omitempty"`
}
