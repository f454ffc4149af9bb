package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMercadoPagoTestService(handler http.HandlerFunc) (*MercadoPagoService, *httptest.Server) {
	server := httptest.NewServer(handler)
	svc := &MercadoPagoService{
		baseURL:     server.URL,
		accessToken: "test-token",
		client:      &http.Client{Timeout: 5 * time.Second},
	}
	return svc, server
}

func TestCreatePIXPaymentAttributesCharge(t *testing.T) {
	var captured map[string]interface{}
	var idempotencyKey string

	svc, server := newMercadoPagoTestService(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		idempotencyKey = r.Header.Get("X-Idempotency-Key")

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 12345,
			"status": "pending",
			"transaction_amount": 9.0,
			"currency_id": "BRL",
			"external_reference": "user-1",
			"point_of_interaction": {
				"transaction_data": {
					"qr_code": "00020126pix-code",
					"qr_code_base64": "aGVsbG8=",
					"ticket_url": "https://example.com/ticket"
				}
			}
		}`))
	})
	defer server.Close()

	payment, err := svc.CreatePIXPayment(context.Background(), CreatePIXRequest{
		UserID:     "user-1",
		Amount:     9.0,
		PayerEmail: "reader@example.com",
		PayerCPF:   "12345678901",
	})
	require.NoError(t, err)

	assert.Equal(t, "12345", payment.PaymentID())
	assert.True(t, payment.HasPIXData())
	assert.NotEmpty(t, idempotencyKey)

	// The owner is written to both attribution fields at creation.
	assert.Equal(t, "user-1", captured["external_reference"])
	metadata, ok := captured["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "user-1", metadata["user_id"])
	assert.Equal(t, "pix", captured["payment_method_id"])
}

func TestCreatePIXPaymentRejectsResponseWithoutPIXData(t *testing.T) {
	svc, server := newMercadoPagoTestService(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 999, "status": "pending"}`))
	})
	defer server.Close()

	_, err := svc.CreatePIXPayment(context.Background(), CreatePIXRequest{UserID: "user-1", Amount: 9.0})
	assert.ErrorContains(t, err, "missing PIX transaction data")
}

func TestGetPaymentDecodesStatusAndRaw(t *testing.T) {
	svc, server := newMercadoPagoTestService(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/777", r.URL.Path)
		w.Write([]byte(`{"id": 777, "status": "approved", "external_reference": "user-7"}`))
	})
	defer server.Close()

	payment, err := svc.GetPayment(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "approved", payment.Status)
	assert.True(t, payment.IsApproved())
	assert.JSONEq(t, `{"id": 777, "status": "approved", "external_reference": "user-7"}`, string(payment.Raw))
}

func TestGetPaymentSurfacesAPIError(t *testing.T) {
	svc, server := newMercadoPagoTestService(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Payment not found", "status": 404}`))
	})
	defer server.Close()

	_, err := svc.GetPayment(context.Background(), "0")
	assert.ErrorContains(t, err, "Payment not found")
}

func TestIsApprovedCoversAccredited(t *testing.T) {
	assert.True(t, (&Payment{Status: "approved"}).IsApproved())
	assert.True(t, (&Payment{Status: "accredited"}).IsApproved())
	assert.False(t, (&Payment{Status: "pending"}).IsApproved())
	assert.False(t, (&Payment{Status: "rejected"}).IsApproved())
}

func TestOwnerUserIDPrefersExternalReference(t *testing.T) {
	p := &Payment{
		ExternalReference: "user-ref",
		Metadata:          map[string]interface{}{"user_id": "user-meta"},
	}
	assert.Equal(t, "user-ref", p.OwnerUserID())

	p.ExternalReference = ""
	assert.Equal(t, "user-meta", p.OwnerUserID())

	p.Metadata = nil
	assert.Equal(t, "", p.OwnerUserID())
}
