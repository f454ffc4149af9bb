package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leitura_app_echo/internal/models"
	"leitura_app_echo/internal/services"
)

func newSubscriptionHandlerFixture(t *testing.T) (*SubscriptionHandler, *services.PaymentService) {
	t.Helper()
	db := newHandlerTestDB(t)
	payments := services.NewPaymentService(db, &stubGateway{payments: map[string]*services.Payment{}}, nil)
	subs := services.NewSubscriptionService(db, nil, payments)
	return NewSubscriptionHandler(payments, subs), payments
}

func getJSON(e *echo.Echo, path string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestGetSubscriptionForFreeUser(t *testing.T) {
	h, _ := newSubscriptionHandlerFixture(t)
	e := echo.New()
	c, rec := getJSON(e, "/api/subscription")
	c.Set("userUID", "user-free")

	require.NoError(t, h.GetSubscription(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success      bool                 `json:"success"`
		Subscription services.Entitlement `json:"subscription"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.False(t, body.Subscription.Subscribed)
	assert.Equal(t, "free", body.Subscription.Tier)
}

func TestGetSubscriptionForLifetimeUser(t *testing.T) {
	h, payments := newSubscriptionHandlerFixture(t)
	ctx := context.Background()
	payment := &services.Payment{ID: 970, Status: "approved", ExternalReference: "user-life", Raw: json.RawMessage(`{"id":970}`)}
	require.NoError(t, payments.Activate(ctx, payment, "user-life", models.PaymentOriginPixDirect))

	e := echo.New()
	c, rec := getJSON(e, "/api/subscription")
	c.Set("userUID", "user-life")

	require.NoError(t, h.GetSubscription(c))

	var body struct {
		Subscription services.Entitlement `json:"subscription"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Subscription.Subscribed)
	assert.Equal(t, "lifetime", body.Subscription.Tier)
}

func TestRestoreAccessWithoutEvidenceIs404(t *testing.T) {
	h, _ := newSubscriptionHandlerFixture(t)
	e := echo.New()
	c, _ := postJSON(e, "/api/access/restore", `{}`)
	c.Set("userUID", "user-no-history")

	err := h.RestoreAccess(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestRestoreAccessRequiresAuth(t *testing.T) {
	h, _ := newSubscriptionHandlerFixture(t)
	e := echo.New()
	c, _ := postJSON(e, "/api/access/restore", `{}`)

	err := h.RestoreAccess(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestSignOutAlwaysSucceeds(t *testing.T) {
	h, _ := newSubscriptionHandlerFixture(t)
	e := echo.New()
	c, rec := postJSON(e, "/api/subscription/signout", `{}`)
	c.Set("userUID", "user-out")

	require.NoError(t, h.SignOut(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
