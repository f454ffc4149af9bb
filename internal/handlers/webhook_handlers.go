package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"leitura_app_echo/internal/models"
	"leitura_app_echo/internal/services"
)

type WebhookHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
}

func NewWebhookHandler(db *gorm.DB, payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{db: db, payments: payments}
}

type webhookNotification struct {
	Type string `json:"type"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// MercadoPago receives gateway notifications. The pushed body only names
// the charge; its state is always re-fetched from the gateway before
// anything is written. Duplicate deliveries return 200 so the gateway
// stops retrying.
func (h *WebhookHandler) MercadoPago(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	var notification webhookNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification payload")
	}

	paymentID := notification.Data.ID.String()
	event := models.WebhookEvent{
		EventType: notification.Type,
		PaymentID: paymentID,
		Payload:   body,
	}
	if err := h.db.Create(&event).Error; err != nil {
		c.Logger().Errorf("failed to record webhook event: %v", err)
	}

	if notification.Type != "payment" || paymentID == "" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"ignored": true,
		})
	}

	result, err := h.payments.ProcessWebhook(c.Request().Context(), paymentID)
	if err != nil {
		if errors.Is(err, services.ErrMissingUser) {
			// Loud failure: an approved charge with no owner needs a human.
			c.Logger().Errorf("approved payment %s has no attributable user", paymentID)
			return echo.NewHTTPError(http.StatusInternalServerError, "payment has no attributable user")
		}
		c.Logger().Errorf("failed to process webhook for payment %s: %v", paymentID, err)
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}
