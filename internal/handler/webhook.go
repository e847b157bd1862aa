package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/audit"
	"github.com/atelierhq/portal-server-go/internal/payments"
	"github.com/atelierhq/portal-server-go/internal/service"
)

const (
	webhookMaxBodyBytes  = 64 << 10
	webhookSignatureSkew = 5 * time.Minute
)

// WebhookHandler receives signed processor notifications. The signature is
// the sole authentication; a request that fails verification is dropped
// before any parsing of its claims.
type WebhookHandler struct {
	paymentService *service.PaymentService
	webhookSecret  string
}

func NewWebhookHandler(paymentService *service.PaymentService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		webhookSecret:  webhookSecret,
	}
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if !payments.VerifyWebhookSignature(h.webhookSecret, signature, body, webhookSignatureSkew, time.Now()) {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventWebhookRejected})
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		invoice, err := h.paymentService.ConfirmFromWebhook(r.Context(), event.Data.Object.ID)
		if err != nil {
			log.Error().Err(err).
				Str("sessionId", event.Data.Object.ID).
				Str("eventType", event.Type).
				Msg("webhook confirmation failed")
			// Non-2xx makes the processor retry later.
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Confirmation failed"})
			return
		}

		audit.LogFromRequest(r, audit.Event{
			Type:       audit.EventPaymentConfirmed,
			ResourceID: invoice.ID,
		})

	default:
		log.Debug().Str("eventType", event.Type).Msg("ignoring webhook event")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
