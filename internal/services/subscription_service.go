package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"leitura_app_echo/internal/models"
)

// entitlementTTL bounds how stale a cached entitlement may be.
const entitlementTTL = 5 * time.Minute

// EntitlementCacheKey is the cache key for one user's entitlement.
func EntitlementCacheKey(userID string) string {
	return "entitlement:" + userID
}

// Entitlement is the access answer the clients consume.
type Entitlement struct {
	Subscribed bool       `json:"subscribed"`
	Tier       string     `json:"subscription_tier"`
	ExpiresAt  *time.Time `json:"subscription_end"`
}

// SubscriptionService answers entitlement questions and runs the
// self-healing refresh flow.
type SubscriptionService struct {
	db       *gorm.DB
	cache    *RedisCache
	payments *PaymentService
}

func NewSubscriptionService(db *gorm.DB, cache *RedisCache, payments *PaymentService) *SubscriptionService {
	return &SubscriptionService{db: db, cache: cache, payments: payments}
}

// GetEntitlement answers whether a user currently has access, served from
// cache when fresh.
func (s *SubscriptionService) GetEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	return GetOrSet(s.cache, ctx, EntitlementCacheKey(userID), entitlementTTL, func() (Entitlement, error) {
		return s.computeEntitlement(userID)
	})
}

// RefreshEntitlement recomputes a user's entitlement from scratch. If the
// user has no active subscription it first re-checks their pending charges
// against the gateway and then falls back to paid ledger rows, so a user
// stuck behind a missed webhook heals themselves by asking.
func (s *SubscriptionService) RefreshEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	_ = s.cache.Delete(ctx, EntitlementCacheKey(userID))

	ent, err := s.computeEntitlement(userID)
	if err != nil {
		return Entitlement{}, err
	}

	if !ent.Subscribed {
		if healed := s.tryHeal(ctx, userID); healed {
			ent, err = s.computeEntitlement(userID)
			if err != nil {
				return Entitlement{}, err
			}
		}
	}

	_ = s.cache.Set(ctx, EntitlementCacheKey(userID), ent, entitlementTTL)
	return ent, nil
}

// InvalidateEntitlement drops the cached entitlement. Called on sign-out so
// the next session starts from the database.
func (s *SubscriptionService) InvalidateEntitlement(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, EntitlementCacheKey(userID))
}

func (s *SubscriptionService) computeEntitlement(userID string) (Entitlement, error) {
	var sub models.Subscription
	err := s.db.
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entitlement{Subscribed: false, Tier: "free"}, nil
	}
	if err != nil {
		return Entitlement{}, err
	}

	ent := Entitlement{Subscribed: true, Tier: "lifetime"}
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		ent.ExpiresAt = &end
	}
	return ent, nil
}

// tryHeal attempts to activate the user from their own history: pending
// charges re-checked at the gateway first, then already-paid ledger rows.
// Reports whether anything was activated.
func (s *SubscriptionService) tryHeal(ctx context.Context, userID string) bool {
	var pending []models.PaymentRequest
	err := s.db.
		Where("user_id = ? AND status = ?", userID, models.PaymentStatusPending).
		Order("created_at desc").
		Find(&pending).Error
	if err != nil {
		log.Printf("[SUBSCRIPTION-REFRESH] failed to load pending payments for %s: %v", userID, err)
		return false
	}

	for _, row := range pending {
		payment, err := s.payments.gateway.GetPayment(ctx, row.PaymentID)
		if err != nil {
			log.Printf("[SUBSCRIPTION-REFRESH] gateway check failed for %s: %v", row.PaymentID, err)
			continue
		}
		if !payment.IsApproved() {
			continue
		}
		if err := s.payments.Activate(ctx, payment, userID, row.Origin); err != nil {
			log.Printf("[SUBSCRIPTION-REFRESH] activation failed for %s: %v", row.PaymentID, err)
			continue
		}
		return true
	}

	var paid models.PaymentRequest
	err = s.db.
		Where("user_id = ? AND status = ?", userID, models.PaymentStatusPaid).
		Order("created_at desc").
		First(&paid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if err != nil {
		log.Printf("[SUBSCRIPTION-REFRESH] failed to load paid payments for %s: %v", userID, err)
		return false
	}
	if err := s.payments.GrantFromLedger(ctx, &paid); err != nil {
		log.Printf("[SUBSCRIPTION-REFRESH] backfill failed for %s: %v", paid.PaymentID, err)
		return false
	}
	log.Printf("[SUBSCRIPTION-REFRESH] backfilled subscription user=%s payment=%s", userID, paid.PaymentID)
	return true
}

// PaidUser is one entry of the admin's paid-user listing.
type PaidUser struct {
	UserID           string     `json:"user_id"`
	Status           string     `json:"status"`
	Lifetime         bool       `json:"lifetime"`
	Origin           string     `json:"origin"`
	PaymentID        string     `json:"payment_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	LastEventAt      time.Time  `json:"last_event_at"`
}

// ListPaidUsers merges users with active subscriptions and users with paid
// ledger rows into one listing, newest activity first. Users appearing in
// both sets are reported once, as active.
func (s *SubscriptionService) ListPaidUsers() ([]PaidUser, error) {
	byUser := map[string]*PaidUser{}

	var subs []models.Subscription
	if err := s.db.Where("status = ?", models.SubscriptionStatusActive).Find(&subs).Error; err != nil {
		return nil, err
	}
	for _, sub := range subs {
		end := sub.CurrentPeriodEnd
		byUser[sub.UserID] = &PaidUser{
			UserID:           sub.UserID,
			Status:           string(models.SubscriptionStatusActive),
			Lifetime:         sub.IsLifetime(),
			Origin:           string(sub.Origin),
			PaymentID:        sub.PaymentID,
			CurrentPeriodEnd: &end,
			LastEventAt:      sub.UpdatedAt,
		}
	}

	var paid []models.PaymentRequest
	if err := s.db.Where("status = ?", models.PaymentStatusPaid).Find(&paid).Error; err != nil {
		return nil, err
	}
	for _, row := range paid {
		existing, ok := byUser[row.UserID]
		if !ok {
			byUser[row.UserID] = &PaidUser{
				UserID:      row.UserID,
				Status:      "paid_without_subscription",
				Origin:      string(row.Origin),
				PaymentID:   row.PaymentID,
				LastEventAt: row.UpdatedAt,
			}
			continue
		}
		if row.UpdatedAt.After(existing.LastEventAt) {
			existing.LastEventAt = row.UpdatedAt
		}
	}

	users := make([]PaidUser, 0, len(byUser))
	for _, u := range byUser {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].LastEventAt.After(users[j].LastEventAt)
	})
	return users, nil
}
