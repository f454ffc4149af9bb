package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// WebhookEvent is an audit record of one inbound gateway notification as
// received, before any verification against the gateway. Kept so duplicate
// and out-of-order deliveries can be reconstructed after the fact.
type WebhookEvent struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EventType string          `gorm:"type:varchar(50);index" json:"event_type"`
	PaymentID string          `gorm:"type:varchar(100);index" json:"payment_id"`
	Payload   json.RawMessage `gorm:"type:jsonb" json:"payload"`
}
