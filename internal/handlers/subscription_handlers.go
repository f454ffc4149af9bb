package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"leitura_app_echo/internal/services"
)

type SubscriptionHandler struct {
	payments      *services.PaymentService
	subscriptions *services.SubscriptionService
}

func NewSubscriptionHandler(payments *services.PaymentService, subscriptions *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{payments: payments, subscriptions: subscriptions}
}

// GetSubscription answers whether the caller currently has access.
func (h *SubscriptionHandler) GetSubscription(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	ent, err := h.subscriptions.GetEntitlement(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("failed to get entitlement for %s: %v", userID, err)
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"subscription": ent,
	})
}

// Refresh recomputes the caller's entitlement from scratch, re-checking
// their pending charges at the gateway along the way.
func (h *SubscriptionHandler) Refresh(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	ent, err := h.subscriptions.RefreshEntitlement(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("failed to refresh entitlement for %s: %v", userID, err)
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"subscription": ent,
	})
}

// SignOut drops the caller's cached entitlement so the next session starts
// from the database.
func (h *SubscriptionHandler) SignOut(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	if err := h.subscriptions.InvalidateEntitlement(c.Request().Context(), userID); err != nil {
		c.Logger().Errorf("failed to invalidate entitlement for %s: %v", userID, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// RestoreAccess grants the caller their entitlement back from existing paid
// ledger rows.
func (h *SubscriptionHandler) RestoreAccess(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	result, err := h.payments.RestoreAccess(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNoPaidPayments) {
			return echo.NewHTTPError(http.StatusNotFound, "no approved payment found for this account")
		}
		c.Logger().Errorf("failed to restore access for %s: %v", userID, err)
		return err
	}

	message := "Access restored"
	if result.AlreadyActive {
		message = "Subscription is already active"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        message,
		"already_active": result.AlreadyActive,
	})
}
