package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"leitura_app_echo/internal/services"
)

type AdminHandler struct {
	payments      *services.PaymentService
	subscriptions *services.SubscriptionService
}

func NewAdminHandler(payments *services.PaymentService, subscriptions *services.SubscriptionService) *AdminHandler {
	return &AdminHandler{payments: payments, subscriptions: subscriptions}
}

// Reconcile runs one bounded sweep over pending charges and returns the
// per-row report.
func (h *AdminHandler) Reconcile(c echo.Context) error {
	report, err := h.payments.Reconcile(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("reconcile sweep failed: %v", err)
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// BulkActivate backfills subscriptions for every user with a paid ledger
// row and no active subscription.
func (h *AdminHandler) BulkActivate(c echo.Context) error {
	report, err := h.payments.BulkActivate(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("bulk activation failed: %v", err)
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// ListPaidUsers returns every user with an active subscription or a paid
// ledger row, newest activity first.
func (h *AdminHandler) ListPaidUsers(c echo.Context) error {
	users, err := h.subscriptions.ListPaidUsers()
	if err != nil {
		c.Logger().Errorf("failed to list paid users: %v", err)
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(users),
		"users":   users,
	})
}
