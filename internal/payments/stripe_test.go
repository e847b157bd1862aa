package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/portal-server-go/internal/util"
)

func TestCreateSession(t *testing.T) {
	var gotAuth, gotIdempotency string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/checkout/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.Form.Get("mode"))
		assert.Equal(t, "eur", r.Form.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "40000", r.Form.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "inv-1", r.Form.Get("metadata[invoiceId]"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "cs_test_123",
			"url": "https://checkout.example.com/cs_test_123",
			"status": "open",
			"payment_status": "unpaid",
			"amount_total": 40000,
			"currency": "eur",
			"metadata": {"invoiceId": "inv-1"}
		}`)
	}))
	defer server.Close()

	client := NewStripeClientWithBaseURL("sk_test_x", server.URL)
	session, err := client.CreateSession(context.Background(), CreateSessionParams{
		AmountCents: 40000,
		Currency:    "EUR",
		Description: "Invoice INV-2026-014",
		SuccessURL:  "https://portal.example.agency/payments/success",
		CancelURL:   "https://portal.example.agency/payments/cancelled",
		Metadata:    map[string]string{"invoiceId": "inv-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", session.ID)
	assert.Equal(t, SessionStatusUnpaid, session.PaymentStatus)
	assert.Equal(t, int64(40000), session.AmountCents)
	assert.Equal(t, "EUR", session.Currency)
	assert.Equal(t, "Bearer sk_test_x", gotAuth)
	assert.NotEmpty(t, gotIdempotency)
}

func TestGetSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/checkout/sessions/cs_test_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "cs_test_123",
			"status": "complete",
			"payment_status": "paid",
			"amount_total": 40000,
			"currency": "eur",
			"payment_intent": "pi_abc",
			"metadata": {"invoiceId": "inv-1", "token": "tok"}
		}`)
	}))
	defer server.Close()

	client := NewStripeClientWithBaseURL("sk_test_x", server.URL)
	session, err := client.GetSession(context.Background(), "cs_test_123")

	require.NoError(t, err)
	assert.Equal(t, SessionStatusPaid, session.PaymentStatus)
	assert.Equal(t, "pi_abc", session.IntentID)
	assert.Equal(t, "inv-1", session.Metadata["invoiceId"])
}

func TestGetSession_ExpiredOverridesPaymentStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "cs_x", "status": "expired", "payment_status": "unpaid"}`)
	}))
	defer server.Close()

	client := NewStripeClientWithBaseURL("sk_test_x", server.URL)
	session, err := client.GetSession(context.Background(), "cs_x")

	require.NoError(t, err)
	assert.Equal(t, SessionStatusExpired, session.PaymentStatus)
}

func TestDo_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`)
	}))
	defer server.Close()

	client := NewStripeClientWithBaseURL("sk_test_x", server.URL)
	_, err := client.GetSession(context.Background(), "cs_x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Your card was declined.")
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"type":"checkout.session.completed"}`)
	now := time.Now()
	ts := fmt.Sprintf("%d", now.Unix())
	sig := util.HmacSHA256(secret, ts+"."+string(payload))
	header := fmt.Sprintf("t=%s,v1=%s", ts, sig)

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(secret, header, payload, 5*time.Minute, now))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature("whsec_other", header, payload, 5*time.Minute, now))
	})

	t.Run("tampered payload", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(secret, header, []byte(`{}`), 5*time.Minute, now))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(secret, header, payload, 5*time.Minute, now.Add(10*time.Minute)))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature(secret, "garbage", payload, 5*time.Minute, now))
		assert.False(t, VerifyWebhookSignature(secret, "", payload, 5*time.Minute, now))
	})
}
