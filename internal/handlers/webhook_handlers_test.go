package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leitura_app_echo/internal/models"
	"leitura_app_echo/internal/services"
)

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.PaymentRequest{},
		&models.Subscription{},
		&models.SubscriptionPlan{},
		&models.AdminUser{},
		&models.WebhookEvent{},
	))
	require.NoError(t, db.Create(&models.SubscriptionPlan{Name: models.PremiumPlanName}).Error)
	return db
}

// stubGateway serves canned payments for handler tests.
type stubGateway struct {
	payments map[string]*services.Payment
	created  *services.Payment
}

func (s *stubGateway) CreatePIXPayment(ctx context.Context, req services.CreatePIXRequest) (*services.Payment, error) {
	if s.created == nil {
		return nil, fmt.Errorf("gateway unavailable")
	}
	return s.created, nil
}

func (s *stubGateway) GetPayment(ctx context.Context, paymentID string) (*services.Payment, error) {
	p, ok := s.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", paymentID)
	}
	return p, nil
}

func postJSON(e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestWebhookActivatesApprovedPayment(t *testing.T) {
	db := newHandlerTestDB(t)
	gw := &stubGateway{payments: map[string]*services.Payment{
		"900": {ID: 900, Status: "approved", ExternalReference: "user-w1", Raw: json.RawMessage(`{"id":900}`)},
	}}
	payments := services.NewPaymentService(db, gw, nil)
	h := NewWebhookHandler(db, payments)

	e := echo.New()
	c, rec := postJSON(e, "/webhooks/mercadopago", `{"type":"payment","data":{"id":900}}`)
	require.NoError(t, h.MercadoPago(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", "user-w1").First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	// The raw notification is kept for audit.
	var event models.WebhookEvent
	require.NoError(t, db.Where("payment_id = ?", "900").First(&event).Error)
	assert.Equal(t, "payment", event.EventType)
}

func TestWebhookIgnoresNonPaymentEvents(t *testing.T) {
	db := newHandlerTestDB(t)
	payments := services.NewPaymentService(db, &stubGateway{}, nil)
	h := NewWebhookHandler(db, payments)

	e := echo.New()
	c, rec := postJSON(e, "/webhooks/mercadopago", `{"type":"test","data":{"id":1}}`)
	require.NoError(t, h.MercadoPago(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored":true`)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	db := newHandlerTestDB(t)
	payments := services.NewPaymentService(db, &stubGateway{}, nil)
	h := NewWebhookHandler(db, payments)

	e := echo.New()
	c, _ := postJSON(e, "/webhooks/mercadopago", `not-json`)
	err := h.MercadoPago(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestWebhookDuplicateDeliveryReturnsOK(t *testing.T) {
	db := newHandlerTestDB(t)
	gw := &stubGateway{payments: map[string]*services.Payment{
		"901": {ID: 901, Status: "approved", ExternalReference: "user-w2", Raw: json.RawMessage(`{"id":901}`)},
	}}
	payments := services.NewPaymentService(db, gw, nil)
	h := NewWebhookHandler(db, payments)
	e := echo.New()

	for i := 0; i < 3; i++ {
		c, rec := postJSON(e, "/webhooks/mercadopago", `{"type":"payment","data":{"id":901}}`)
		require.NoError(t, h.MercadoPago(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	var subs int64
	require.NoError(t, db.Model(&models.Subscription{}).Where("user_id = ?", "user-w2").Count(&subs).Error)
	assert.EqualValues(t, 1, subs)
}
