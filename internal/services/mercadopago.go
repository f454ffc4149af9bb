package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const defaultMercadoPagoBaseURL = "https://api.mercadopago.com"

// PaymentGateway is the boundary to the PIX payment provider. The service
// layer depends on this interface so handlers and batch jobs can be tested
// against a fake provider.
type PaymentGateway interface {
	CreatePIXPayment(ctx context.Context, req CreatePIXRequest) (*Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// MercadoPagoService is a thin HTTP client for the Mercado Pago payments
// API, covering only charge creation and status lookup.
type MercadoPagoService struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

func NewMercadoPagoService() *MercadoPagoService {
	url := os.Getenv("MERCADO_PAGO_BASE_URL")
	if url == "" {
		url = defaultMercadoPagoBaseURL
	}
	return &MercadoPagoService{
		baseURL:     url,
		accessToken: os.Getenv("MERCADO_PAGO_ACCESS_TOKEN"),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// CreatePIXRequest carries everything needed to open a PIX charge. UserID is
// written to both external_reference and metadata.user_id so the owning user
// is always resolvable when the charge is later re-fetched.
type CreatePIXRequest struct {
	UserID          string
	Amount          float64
	Description     string
	PayerEmail      string
	PayerFirstName  string
	PayerLastName   string
	PayerCPF        string
	NotificationURL string
	Source          string
}

// Payment mirrors the fields of a Mercado Pago payment this system reads.
// Raw preserves the unparsed response body for the ledger's audit column.
type Payment struct {
	ID                 int64                  `json:"id"`
	Status             string                 `json:"status"`
	StatusDetail       string                 `json:"status_detail"`
	TransactionAmount  float64                `json:"transaction_amount"`
	CurrencyID         string                 `json:"currency_id"`
	ExternalReference  string                 `json:"external_reference"`
	Metadata           map[string]interface{} `json:"metadata"`
	DateApproved       *time.Time             `json:"date_approved"`
	DateCreated        *time.Time             `json:"date_created"`
	DateOfExpiration   string                 `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`

	Raw json.RawMessage `json:"-"`
}

// PaymentID returns the charge id as the string form stored in the ledger.
func (p *Payment) PaymentID() string {
	return strconv.FormatInt(p.ID, 10)
}

// IsApproved reports whether the gateway considers the charge settled.
// Mercado Pago reports the approved family as "approved" or "accredited".
func (p *Payment) IsApproved() bool {
	return p.Status == "approved" || p.Status == "accredited"
}

// OwnerUserID resolves the user a charge belongs to: external_reference is
// canonical, metadata.user_id covers rows created by the legacy checkout.
func (p *Payment) OwnerUserID() string {
	if p.ExternalReference != "" {
		return p.ExternalReference
	}
	if p.Metadata != nil {
		if uid, ok := p.Metadata["user_id"].(string); ok {
			return uid
		}
	}
	return ""
}

// HasPIXData reports whether the create response carried the scannable PIX
// payload. A charge without it is unusable and treated as a creation failure.
func (p *Payment) HasPIXData() bool {
	return p.PointOfInteraction.TransactionData.QRCode != ""
}

type mpError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// CreatePIXPayment opens a PIX charge at Mercado Pago. One external charge
// is created per successful call; callers must not retry blindly.
func (s *MercadoPagoService) CreatePIXPayment(ctx context.Context, req CreatePIXRequest) (*Payment, error) {
	payload := map[string]interface{}{
		"transaction_amount": req.Amount,
		"description":        req.Description,
		"payment_method_id":  "pix",
		"external_reference": req.UserID,
		"notification_url":   req.NotificationURL,
		"metadata": map[string]interface{}{
			"user_id": req.UserID,
			"plan":    "lifetime",
			"source":  req.Source,
		},
		"payer": map[string]interface{}{
			"email":      req.PayerEmail,
			"first_name": req.PayerFirstName,
			"last_name":  req.PayerLastName,
			"identification": map[string]string{
				"type":   "CPF",
				"number": req.PayerCPF,
			},
		},
	}

	headers := map[string]string{
		// The gateway dedupes on this key, not on payer identity.
		"X-Idempotency-Key": uuid.NewString(),
	}

	payment, err := s.doRequest(ctx, http.MethodPost, "/v1/payments", payload, headers)
	if err != nil {
		return nil, err
	}
	if !payment.HasPIXData() {
		return nil, fmt.Errorf("mercado pago response missing PIX transaction data for payment %s", payment.PaymentID())
	}
	return payment, nil
}

// GetPayment fetches the authoritative state of a charge.
func (s *MercadoPagoService) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	return s.doRequest(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, nil)
}

func (s *MercadoPagoService) doRequest(ctx context.Context, method, endpoint string, payload interface{}, headers map[string]string) (*Payment, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr mpError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("mercado pago error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("mercado pago request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("failed to decode payment response: %w", err)
	}
	payment.Raw = json.RawMessage(body)

	return &payment, nil
}
