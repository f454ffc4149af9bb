package models

import (
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus is the lifecycle state of an entitlement record
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// Subscription is the durable grant of access tied to a user. A user has at
// most one row (unique constraint on user_id); activation flows upsert,
// never insert a second row. Rows are never deleted by normal operation.
type Subscription struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID string             `gorm:"type:varchar(100);uniqueIndex" json:"user_id"`
	PlanID *uint              `json:"plan_id"`
	Status SubscriptionStatus `gorm:"type:varchar(20);index" json:"status"`

	// Origin records which flow granted the entitlement and PaymentID the
	// charge it came from. Classification is by Origin equality.
	Origin    PaymentOrigin `gorm:"type:varchar(50)" json:"origin"`
	PaymentID string        `gorm:"type:varchar(100)" json:"payment_id"`

	// CurrentPeriodEnd is ~100 years out for lifetime grants.
	CurrentPeriodEnd  time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool      `gorm:"default:false" json:"cancel_at_period_end"`

	Plan SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// IsLifetime reports whether this record is a lifetime grant. Every flow in
// this system grants lifetime access; a time-boxed plan would carry an
// origin outside this set.
func (s Subscription) IsLifetime() bool {
	switch s.Origin {
	case PaymentOriginPixDirect, PaymentOriginLegacyMP, PaymentOriginManual, PaymentOriginRestored:
		return true
	}
	return false
}

// LifetimePeriodEnd returns the practical-forever expiry used for lifetime
// grants.
func LifetimePeriodEnd(now time.Time) time.Time {
	return now.AddDate(100, 0, 0)
}

// SubscriptionPlan is a catalog entry for an access tier. The lifetime
// license maps to the seeded "Premium" plan.
type SubscriptionPlan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name string `gorm:"type:varchar(100);uniqueIndex" json:"name"`
}

// PremiumPlanName is the plan looked up when activating lifetime access.
const PremiumPlanName = "Premium"
