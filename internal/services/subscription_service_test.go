package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leitura_app_echo/internal/models"
)

func newTestSubscriptionService(t *testing.T) (*SubscriptionService, *PaymentService, *fakeGateway) {
	t.Helper()
	db := newTestDB(t)
	gw := newFakeGateway()
	payments := NewPaymentService(db, gw, nil)
	return NewSubscriptionService(db, nil, payments), payments, gw
}

func TestGetEntitlementWithoutSubscription(t *testing.T) {
	subs, _, _ := newTestSubscriptionService(t)

	ent, err := subs.GetEntitlement(context.Background(), "user-free")
	require.NoError(t, err)
	assert.False(t, ent.Subscribed)
	assert.Equal(t, "free", ent.Tier)
	assert.Nil(t, ent.ExpiresAt)
}

func TestGetEntitlementWithActiveSubscription(t *testing.T) {
	subs, payments, _ := newTestSubscriptionService(t)
	ctx := context.Background()
	require.NoError(t, payments.Activate(ctx, fakePayment(7001, "approved", "user-sub"), "user-sub", models.PaymentOriginPixDirect))

	ent, err := subs.GetEntitlement(ctx, "user-sub")
	require.NoError(t, err)
	assert.True(t, ent.Subscribed)
	assert.Equal(t, "lifetime", ent.Tier)
	require.NotNil(t, ent.ExpiresAt)
	assert.Greater(t, ent.ExpiresAt.Year(), 2100)
}

func TestRefreshEntitlementHealsPendingCharge(t *testing.T) {
	subs, payments, gw := newTestSubscriptionService(t)
	ctx := context.Background()

	// Charge settled at the gateway but the webhook never arrived.
	payment := fakePayment(7002, "approved", "user-heal")
	gw.add(payment)
	require.NoError(t, payments.RecordPending("user-heal", fakePayment(7002, "pending", "user-heal"), models.PaymentOriginPixDirect))

	ent, err := subs.RefreshEntitlement(ctx, "user-heal")
	require.NoError(t, err)
	assert.True(t, ent.Subscribed)
	assert.Equal(t, "lifetime", ent.Tier)
}

func TestRefreshEntitlementBackfillsFromPaidRow(t *testing.T) {
	subs, payments, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	// Paid ledger row without a subscription, e.g. after a data migration.
	require.NoError(t, payments.db.Create(&models.PaymentRequest{
		UserID: "user-back", PaymentID: "7003", Origin: models.PaymentOriginLegacyMP, Status: models.PaymentStatusPaid,
	}).Error)

	ent, err := subs.RefreshEntitlement(ctx, "user-back")
	require.NoError(t, err)
	assert.True(t, ent.Subscribed)

	var sub models.Subscription
	require.NoError(t, payments.db.Where("user_id = ?", "user-back").First(&sub).Error)
	assert.Equal(t, "7003", sub.PaymentID)
}

func TestRefreshEntitlementStaysFreeWithoutEvidence(t *testing.T) {
	subs, _, _ := newTestSubscriptionService(t)

	ent, err := subs.RefreshEntitlement(context.Background(), "user-none")
	require.NoError(t, err)
	assert.False(t, ent.Subscribed)
	assert.Equal(t, "free", ent.Tier)
}

func TestListPaidUsersMergesSubscriptionsAndLedger(t *testing.T) {
	subs, payments, _ := newTestSubscriptionService(t)
	ctx := context.Background()

	// Active subscription with its paid row.
	require.NoError(t, payments.Activate(ctx, fakePayment(7004, "approved", "user-l1"), "user-l1", models.PaymentOriginPixDirect))
	// Paid row only, never activated.
	require.NoError(t, payments.db.Create(&models.PaymentRequest{
		UserID: "user-l2", PaymentID: "7005", Origin: models.PaymentOriginManual, Status: models.PaymentStatusPaid,
	}).Error)
	// Pending row; must not be listed.
	require.NoError(t, payments.RecordPending("user-l3", fakePayment(7006, "pending", "user-l3"), models.PaymentOriginPixDirect))

	users, err := subs.ListPaidUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)

	byID := map[string]PaidUser{}
	for _, u := range users {
		byID[u.UserID] = u
	}
	assert.Equal(t, "active", byID["user-l1"].Status)
	assert.True(t, byID["user-l1"].Lifetime)
	assert.Equal(t, "paid_without_subscription", byID["user-l2"].Status)
	_, listed := byID["user-l3"]
	assert.False(t, listed)
}
