package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leitura_app_echo/internal/models"
)

// reconcileBatchSize bounds the gateway fan-out of one sweep run.
const reconcileBatchSize = 20

var (
	// ErrNoPaymentFound means there is no charge to check for the caller.
	ErrNoPaymentFound = errors.New("no payment found to verify")

	// ErrNoPaidPayments means self-service restoration has no evidence to
	// work from.
	ErrNoPaidPayments = errors.New("no approved payment found for this user")

	// ErrMissingUser means an approved charge cannot be attributed to a
	// user. Nothing may be written in that case.
	ErrMissingUser = errors.New("no user id available to attribute payment")
)

// PaymentService owns the payment ledger and the activation workflow. Every
// path that discovers an approved charge (webhook, poll, sweep, restore,
// bulk backfill) converges on Activate.
type PaymentService struct {
	db      *gorm.DB
	gateway PaymentGateway
	cache   *RedisCache
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, cache *RedisCache) *PaymentService {
	return &PaymentService{db: db, gateway: gateway, cache: cache}
}

// RecordPending writes the ledger row for a freshly created charge.
func (s *PaymentService) RecordPending(userID string, payment *Payment, origin models.PaymentOrigin) error {
	row := models.PaymentRequest{
		UserID:    userID,
		PaymentID: payment.PaymentID(),
		Amount:    payment.TransactionAmount,
		Currency:  currencyOrDefault(payment.CurrencyID),
		Origin:    origin,
		Status:    models.PaymentStatusPending,
		Raw:       payment.Raw,
	}
	return s.db.Create(&row).Error
}

// FindLatestPIXPayment returns the caller's most recent PIX ledger row.
func (s *PaymentService) FindLatestPIXPayment(userID string) (*models.PaymentRequest, error) {
	var row models.PaymentRequest
	err := s.db.
		Where("user_id = ? AND origin IN ?", userID, models.PixOrigins()).
		Order("created_at desc").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Activate marks a charge paid and grants the owning user an active lifetime
// subscription. It is idempotent: running it any number of times, serially
// or concurrently, for the same (charge, user) pair leaves one paid ledger
// row and one active subscription. Concurrent writers converge through the
// unique constraints on payment_id and user_id; competing writes carry
// equivalent terminal values, so last-write-wins is safe.
func (s *PaymentService) Activate(ctx context.Context, payment *Payment, userID string, origin models.PaymentOrigin) error {
	if userID == "" {
		return ErrMissingUser
	}
	paymentID := payment.PaymentID()

	alreadyPaid, err := s.isPaid(paymentID)
	if err != nil {
		return err
	}
	if alreadyPaid {
		active, err := s.hasActiveSubscription(userID)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
	}

	now := time.Now()
	row := models.PaymentRequest{
		UserID:    userID,
		PaymentID: paymentID,
		Amount:    payment.TransactionAmount,
		Currency:  currencyOrDefault(payment.CurrencyID),
		Origin:    origin,
		Status:    models.PaymentStatusPaid,
		Raw:       payment.Raw,
		PaidAt:    &now,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "amount", "currency", "status", "raw", "paid_at", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert payment request: %w", err)
	}

	if err := s.upsertSubscription(userID, paymentID, origin, now); err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	s.invalidateEntitlement(ctx, userID)
	log.Printf("[ACTIVATION] lifetime access granted user=%s payment=%s origin=%s", userID, paymentID, origin)
	return nil
}

// GrantFromLedger grants an active lifetime subscription from an
// already-paid ledger row, without a gateway round trip. Used by the bulk
// activator and the refresh backfill.
func (s *PaymentService) GrantFromLedger(ctx context.Context, row *models.PaymentRequest) error {
	if row.UserID == "" {
		return ErrMissingUser
	}
	origin := row.Origin
	if origin == "" {
		origin = models.PaymentOriginManual
	}
	if err := s.upsertSubscription(row.UserID, row.PaymentID, origin, time.Now()); err != nil {
		return err
	}
	s.invalidateEntitlement(ctx, row.UserID)
	return nil
}

// StatusResult is the poller's report on one charge.
type StatusResult struct {
	PaymentID         string     `json:"payment_id"`
	Status            string     `json:"status"`
	StatusDetail      string     `json:"status_detail,omitempty"`
	IsPaid            bool       `json:"isPaid"`
	Plan              string     `json:"plan"`
	TransactionAmount float64    `json:"transaction_amount,omitempty"`
	DateApproved      *time.Time `json:"date_approved,omitempty"`
	DateCreated       *time.Time `json:"date_created,omitempty"`
}

// CheckPaymentStatus re-fetches a charge from the gateway and activates on
// approval. With no explicit payment id, the caller's most recent PIX
// charge is checked. Designed to be polled every few seconds while a charge
// is outstanding; repeated calls against an approved charge are no-ops.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, paymentID, userID string) (*StatusResult, error) {
	if paymentID == "" && userID != "" {
		row, err := s.FindLatestPIXPayment(userID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		} else {
			paymentID = row.PaymentID
		}
	}
	if paymentID == "" {
		return nil, ErrNoPaymentFound
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		PaymentID:         payment.PaymentID(),
		Status:            payment.Status,
		StatusDetail:      payment.StatusDetail,
		Plan:              "free",
		TransactionAmount: payment.TransactionAmount,
		DateApproved:      payment.DateApproved,
		DateCreated:       payment.DateCreated,
	}

	if payment.IsApproved() {
		target := userID
		if target == "" {
			target = payment.OwnerUserID()
		}
		if target == "" {
			return nil, ErrMissingUser
		}
		if err := s.Activate(ctx, payment, target, models.PaymentOriginPixDirect); err != nil {
			return nil, err
		}
		result.IsPaid = true
		result.Plan = "lifetime"
	}

	return result, nil
}

// WebhookResult reports what a notification amounted to.
type WebhookResult struct {
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	AlreadyPaid bool   `json:"already_paid"`
	Activated   bool   `json:"activated"`
}

// ProcessWebhook handles one gateway notification for a charge id. The
// pushed status is never trusted; the charge is re-fetched. Duplicate
// deliveries for an already-paid charge are successful no-ops. Non-approved
// statuses only refresh the ledger row so it reflects gateway reality.
func (s *PaymentService) ProcessWebhook(ctx context.Context, paymentID string) (*WebhookResult, error) {
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{PaymentID: payment.PaymentID(), Status: payment.Status}

	alreadyPaid, err := s.isPaid(payment.PaymentID())
	if err != nil {
		return nil, err
	}
	if alreadyPaid {
		log.Printf("[PIX-WEBHOOK] payment %s already processed", paymentID)
		result.AlreadyPaid = true
		return result, nil
	}

	if payment.IsApproved() {
		userID := payment.OwnerUserID()
		if userID == "" {
			return nil, ErrMissingUser
		}
		if err := s.Activate(ctx, payment, userID, models.PaymentOriginPixDirect); err != nil {
			return nil, err
		}
		result.Activated = true
		return result, nil
	}

	log.Printf("[PIX-WEBHOOK] payment %s not approved, recording status %q", paymentID, payment.Status)
	if userID := payment.OwnerUserID(); userID != "" {
		if err := s.recordObservedStatus(payment, userID); err != nil {
			log.Printf("[PIX-WEBHOOK] failed to record status for payment %s: %v", paymentID, err)
		}
	}
	return result, nil
}

// ReconcileDetail is one row's outcome in a sweep report.
type ReconcileDetail struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
}

// ReconcileReport summarizes one sweep run. Processed always equals
// Activated + AlreadyActive + rows left pending or failed, each of which
// appears in Details or Errors.
type ReconcileReport struct {
	Processed     int               `json:"processed"`
	Activated     int               `json:"activated"`
	AlreadyActive int               `json:"alreadyActive"`
	Errors        []string          `json:"errors"`
	Details       []ReconcileDetail `json:"details"`
}

// Reconcile re-checks a bounded batch of pending ledger rows against the
// gateway, activating any that turned out approved. Compensates for missed
// webhooks. Per-row failures are collected, never fatal: one bad row must
// not block unrelated activations.
func (s *PaymentService) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{Errors: []string{}, Details: []ReconcileDetail{}}

	var pending []models.PaymentRequest
	if err := s.db.
		Where("status = ?", models.PaymentStatusPending).
		Order("created_at asc").
		Limit(reconcileBatchSize).
		Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending payments: %w", err)
	}

	log.Printf("[RECONCILE] found %d pending payments", len(pending))

	for _, row := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Processed++

		active, err := s.hasActiveSubscription(row.UserID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("subscription check failed for %s: %v", row.PaymentID, err))
			continue
		}
		if active {
			// Skip the gateway call entirely; the user already has access.
			report.AlreadyActive++
			report.Details = append(report.Details, ReconcileDetail{
				PaymentID: row.PaymentID,
				UserID:    row.UserID,
				Status:    "already_active",
			})
			continue
		}

		payment, err := s.gateway.GetPayment(ctx, row.PaymentID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("gateway check failed for %s: %v", row.PaymentID, err))
			continue
		}

		if payment.IsApproved() {
			userID := row.UserID
			if userID == "" {
				userID = payment.OwnerUserID()
			}
			if userID == "" {
				report.Errors = append(report.Errors, fmt.Sprintf("payment %s has no attributable user", row.PaymentID))
				continue
			}
			if err := s.Activate(ctx, payment, userID, row.Origin); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("activation failed for %s: %v", row.PaymentID, err))
				continue
			}
			report.Activated++
			report.Details = append(report.Details, ReconcileDetail{
				PaymentID: row.PaymentID,
				UserID:    userID,
				Status:    "activated",
			})
			continue
		}

		// Not approved: keep the ledger honest about what the gateway said.
		if err := s.recordObservedStatus(payment, row.UserID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("status update failed for %s: %v", row.PaymentID, err))
			continue
		}
		report.Details = append(report.Details, ReconcileDetail{
			PaymentID: row.PaymentID,
			UserID:    row.UserID,
			Status:    payment.Status,
			Note:      "payment not approved yet",
		})
	}

	log.Printf("[RECONCILE] processed=%d activated=%d already_active=%d errors=%d",
		report.Processed, report.Activated, report.AlreadyActive, len(report.Errors))
	return report, nil
}

// RestoreResult reports a self-service restoration attempt.
type RestoreResult struct {
	AlreadyActive bool
	Subscription  *models.Subscription
	Payment       *models.PaymentRequest
}

// RestoreAccess grants the caller their entitlement from existing paid
// ledger rows. No paid row means restoration cannot help
// (ErrNoPaidPayments); an existing active subscription is returned as-is.
func (s *PaymentService) RestoreAccess(ctx context.Context, userID string) (*RestoreResult, error) {
	var paid []models.PaymentRequest
	err := s.db.
		Where("user_id = ? AND status = ? AND origin IN ?", userID, models.PaymentStatusPaid, models.PixOrigins()).
		Order("created_at desc").
		Find(&paid).Error
	if err != nil {
		return nil, err
	}
	if len(paid) == 0 {
		return nil, ErrNoPaidPayments
	}

	var existing models.Subscription
	err = s.db.
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		First(&existing).Error
	if err == nil {
		log.Printf("[RESTORE-ACCESS] user %s already has an active subscription", userID)
		return &RestoreResult{AlreadyActive: true, Subscription: &existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// The active check above excluded an existing record, so this is an
	// insert, not an upsert.
	latest := paid[0]
	sub := models.Subscription{
		UserID:           userID,
		PlanID:           s.premiumPlanID(),
		Status:           models.SubscriptionStatusActive,
		Origin:           models.PaymentOriginRestored,
		PaymentID:        latest.PaymentID,
		CurrentPeriodEnd: models.LifetimePeriodEnd(time.Now()),
	}
	if err := s.db.Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to restore subscription: %w", err)
	}

	s.invalidateEntitlement(ctx, userID)
	log.Printf("[RESTORE-ACCESS] subscription restored user=%s payment=%s", userID, latest.PaymentID)
	return &RestoreResult{Subscription: &sub, Payment: &latest}, nil
}

// BulkActivationResult is one row's outcome in a bulk backfill.
type BulkActivationResult struct {
	UserID    string `json:"user_id"`
	PaymentID string `json:"payment_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BulkActivationReport summarizes a bulk backfill run.
type BulkActivationReport struct {
	ActivatedCount    int                    `json:"activatedCount"`
	TotalPaidPayments int                    `json:"totalPaidPayments"`
	Results           []BulkActivationResult `json:"results"`
}

// BulkActivate grants subscriptions to every user with a paid ledger row
// and no active subscription. Used to backfill entitlements after a data
// migration or a bulk webhook outage. Per-row failures are collected.
func (s *PaymentService) BulkActivate(ctx context.Context) (*BulkActivationReport, error) {
	var paid []models.PaymentRequest
	if err := s.db.Where("status = ?", models.PaymentStatusPaid).Find(&paid).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch paid payments: %w", err)
	}

	report := &BulkActivationReport{
		TotalPaidPayments: len(paid),
		Results:           []BulkActivationResult{},
	}

	for _, row := range paid {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		active, err := s.hasActiveSubscription(row.UserID)
		if err != nil {
			report.Results = append(report.Results, BulkActivationResult{
				UserID: row.UserID, PaymentID: row.PaymentID, Error: err.Error(),
			})
			continue
		}
		if active {
			continue
		}

		if err := s.GrantFromLedger(ctx, &row); err != nil {
			report.Results = append(report.Results, BulkActivationResult{
				UserID: row.UserID, PaymentID: row.PaymentID, Error: err.Error(),
			})
			continue
		}
		report.ActivatedCount++
		report.Results = append(report.Results, BulkActivationResult{
			UserID: row.UserID, PaymentID: row.PaymentID, Success: true,
		})
	}

	log.Printf("[BULK-ACTIVATE] activated %d users out of %d paid payments",
		report.ActivatedCount, report.TotalPaidPayments)
	return report, nil
}

func (s *PaymentService) isPaid(paymentID string) (bool, error) {
	var row models.PaymentRequest
	err := s.db.Where("payment_id = ? AND status = ?", paymentID, models.PaymentStatusPaid).First(&row).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (s *PaymentService) hasActiveSubscription(userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var sub models.Subscription
	err := s.db.Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).First(&sub).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// upsertSubscription converges every activation path on one active row per
// user. Last writer wins on metadata; status and lifetime expiry are stable
// across competing writers.
func (s *PaymentService) upsertSubscription(userID, paymentID string, origin models.PaymentOrigin, now time.Time) error {
	sub := models.Subscription{
		UserID:            userID,
		PlanID:            s.premiumPlanID(),
		Status:            models.SubscriptionStatusActive,
		Origin:            origin,
		PaymentID:         paymentID,
		CurrentPeriodEnd:  models.LifetimePeriodEnd(now),
		CancelAtPeriodEnd: false,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id", "status", "origin", "payment_id", "current_period_end", "cancel_at_period_end", "updated_at",
		}),
	}).Create(&sub).Error
}

// recordObservedStatus upserts the latest non-paid gateway status so the
// ledger reflects reality even for rejected or cancelled charges.
func (s *PaymentService) recordObservedStatus(payment *Payment, userID string) error {
	row := models.PaymentRequest{
		UserID:    userID,
		PaymentID: payment.PaymentID(),
		Amount:    payment.TransactionAmount,
		Currency:  currencyOrDefault(payment.CurrencyID),
		Origin:    models.PaymentOriginPixDirect,
		Status:    payment.Status,
		Raw:       payment.Raw,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "amount", "currency", "status", "raw", "updated_at",
		}),
	}).Create(&row).Error
}

func (s *PaymentService) premiumPlanID() *uint {
	var plan models.SubscriptionPlan
	if err := s.db.Where("name = ?", models.PremiumPlanName).First(&plan).Error; err != nil {
		return nil
	}
	return &plan.ID
}

func (s *PaymentService) invalidateEntitlement(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, EntitlementCacheKey(userID)); err != nil {
		log.Printf("[ACTIVATION] failed to invalidate entitlement cache for %s: %v", userID, err)
	}
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "BRL"
	}
	return currency
}
