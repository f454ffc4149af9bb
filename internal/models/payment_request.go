package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentOrigin identifies which flow created a payment request.
// Origins are compared by equality only, never by substring.
type PaymentOrigin string

const (
	PaymentOriginPixDirect PaymentOrigin = "pix_direct"
	PaymentOriginLegacyMP  PaymentOrigin = "legacy_mp"
	PaymentOriginManual    PaymentOrigin = "manual"
	PaymentOriginRestored  PaymentOrigin = "restored"
)

// Statuses owned by this system. Any other value stored in
// PaymentRequest.Status is a raw gateway status (rejected, cancelled, ...).
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// PaymentRequest is the ledger row for one PIX charge as observed by this
// system. There is at most one row per external payment id: every writer
// upserts on payment_id. Rows are never deleted.
type PaymentRequest struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID string `gorm:"type:varchar(100);index" json:"user_id"`

	// PaymentID is the charge id issued by the gateway and the upsert
	// conflict key for all writers.
	PaymentID string `gorm:"type:varchar(100);uniqueIndex" json:"payment_id"`

	// LegacyPaymentID carries the alias of rows imported from the legacy
	// checkout flow. Empty for charges created by this system.
	LegacyPaymentID string `gorm:"type:varchar(100)" json:"legacy_payment_id,omitempty"`

	Amount   float64       `gorm:"type:decimal(15,2)" json:"amount"`
	Currency string        `gorm:"type:varchar(10);default:'BRL'" json:"currency"`
	Origin   PaymentOrigin `gorm:"type:varchar(50);index" json:"origin"`
	Status   string        `gorm:"type:varchar(50);index" json:"status"`

	// Raw holds the last gateway payload seen for this charge, for audit.
	Raw json.RawMessage `gorm:"type:jsonb" json:"raw,omitempty"`

	PaidAt *time.Time `json:"paid_at"`
}

// PixOrigins lists the flows whose ledger rows represent PIX charges a user
// may have paid through. Used when searching a user's payment history.
func PixOrigins() []PaymentOrigin {
	return []PaymentOrigin{PaymentOriginPixDirect, PaymentOriginLegacyMP}
}
