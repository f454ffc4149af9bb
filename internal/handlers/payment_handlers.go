package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"leitura_app_echo/internal/models"
	"leitura_app_echo/internal/services"
)

const lifetimeLicenseDescription = "Licença Vitalícia - Acesso Total"

type PaymentHandler struct {
	payments *services.PaymentService
	gateway  services.PaymentGateway
	validate *validator.Validate
}

func NewPaymentHandler(payments *services.PaymentService, gateway services.PaymentGateway) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		gateway:  gateway,
		validate: validator.New(),
	}
}

type createPIXRequest struct {
	Name  string `json:"name" validate:"required,min=3"`
	Email string `json:"email" validate:"required,email"`
	CPF   string `json:"cpf" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// CreatePIX opens a PIX charge for the lifetime license and returns the
// scannable payload. The charge is attributed to the authenticated user at
// creation time, never inferred later from payer identity.
func (h *PaymentHandler) CreatePIX(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	var req createPIXRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "name, email, cpf and phone are required")
	}

	cpf := digitsOnly(req.CPF)
	if len(cpf) != 11 {
		return echo.NewHTTPError(http.StatusBadRequest, "cpf must have 11 digits")
	}

	firstName, lastName := splitName(req.Name)

	payment, err := h.gateway.CreatePIXPayment(c.Request().Context(), services.CreatePIXRequest{
		UserID:          userID,
		Amount:          envFloatOr("PIX_PRICE_BRL", 9.00),
		Description:     lifetimeLicenseDescription,
		PayerEmail:      req.Email,
		PayerFirstName:  firstName,
		PayerLastName:   lastName,
		PayerCPF:        cpf,
		NotificationURL: envOr("WEBHOOK_BASE_URL", "") + "/webhooks/mercadopago",
		Source:          "app_checkout",
	})
	if err != nil {
		c.Logger().Errorf("failed to create PIX payment: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "failed to create payment")
	}

	if err := h.payments.RecordPending(userID, payment, models.PaymentOriginPixDirect); err != nil {
		c.Logger().Errorf("failed to record payment request %s: %v", payment.PaymentID(), err)
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"payment_id":     payment.PaymentID(),
		"status":         payment.Status,
		"qr_code":        payment.PointOfInteraction.TransactionData.QRCode,
		"qr_code_base64": payment.PointOfInteraction.TransactionData.QRCodeBase64,
		"ticket_url":     payment.PointOfInteraction.TransactionData.TicketURL,
		"expires_at":     payment.DateOfExpiration,
		"amount":         payment.TransactionAmount,
		"currency":       payment.CurrencyID,
	})
}

type checkStatusRequest struct {
	PaymentID string `json:"payment_id"`
}

// CheckStatus re-checks a charge against the gateway and reports whether it
// settled. The SPA polls this while a PIX charge is on screen.
func (h *PaymentHandler) CheckStatus(c echo.Context) error {
	userID := getStringFromContext(c, "userUID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	var req checkStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.payments.CheckPaymentStatus(c.Request().Context(), req.PaymentID, userID)
	if err != nil {
		if errors.Is(err, services.ErrNoPaymentFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no payment found to verify")
		}
		c.Logger().Errorf("failed to check payment status: %v", err)
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"payment": result,
	})
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
