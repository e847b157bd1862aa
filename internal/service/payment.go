package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/audit"
	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/payments"
	"github.com/atelierhq/portal-server-go/internal/repository"
)

// PaymentService coordinates hosted checkout for invoices. The processor's
// session record is the single source of truth for payment completion; the
// client redirect only tells us which session to go look at.
//
// Settlement is arithmetic over recorded payments: an invoice is paid when
// the sum of its payments reaches the invoice total. Partial payments leave
// the invoice payable for the remainder.
type PaymentService struct {
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	provider    payments.Provider
	config      *config.Config
}

func NewPaymentService(invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository, provider payments.Provider, cfg *config.Config) *PaymentService {
	return &PaymentService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		provider:    provider,
		config:      cfg,
	}
}

// ListForProject returns a project's invoices newest-first.
func (s *PaymentService) ListForProject(ctx context.Context, projectID string) ([]model.Invoice, error) {
	invoices, err := s.invoiceRepo.FindByProjectID(ctx, projectID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return invoices, nil
}

// GetDetail assembles the single-invoice view: line items plus applied
// payments.
func (s *PaymentService) GetDetail(ctx context.Context, invoice *model.Invoice) (*model.InvoiceDetail, error) {
	lineItems, err := s.invoiceRepo.FindLineItems(ctx, invoice.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	applied, err := s.paymentRepo.FindByInvoiceID(ctx, invoice.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	return &model.InvoiceDetail{
		Invoice:   invoice,
		LineItems: lineItems,
		Payments:  applied,
	}, nil
}

// CheckoutSession is the client-facing result of creating a checkout: the
// hosted page URL to redirect to.
type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckoutSession opens a hosted checkout for the invoice's
// outstanding balance. The caller has already authorized the invoice; the
// token value is embedded in session metadata so confirmation can verify
// the same holder is completing the flow.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, grant *Grant, invoice *model.Invoice) (*CheckoutSession, error) {
	if !invoice.ExternalStatus.Payable() {
		return nil, apperrors.ValidationError(fmt.Sprintf("Invoice is not payable in status %q", invoice.ExternalStatus))
	}
	if invoice.TotalCents <= 0 {
		return nil, apperrors.ValidationError("Invoice has no amount due")
	}

	amountDue, err := s.amountDue(ctx, invoice)
	if err != nil {
		return nil, err
	}
	if amountDue <= 0 {
		s.backfillPaidAt(ctx, invoice)
		return nil, apperrors.AlreadySettled()
	}

	session, err := s.provider.CreateSession(ctx, payments.CreateSessionParams{
		AmountCents:   amountDue,
		Currency:      invoice.Currency,
		Description:   fmt.Sprintf("Invoice %s", invoice.Number),
		CustomerEmail: grant.Identity.Email,
		SuccessURL:    s.config.CheckoutSuccessURL(),
		CancelURL:     s.config.CheckoutCancelURL(),
		Metadata: map[string]string{
			"invoiceId":      invoice.ID,
			"token":          grant.Token.TokenValue,
			"organizationId": invoice.OrganizationID,
		},
	})
	if err != nil {
		return nil, apperrors.Upstream("payment processor", err)
	}

	if err := s.invoiceRepo.SetCheckoutSession(ctx, invoice.ID, session.ID); err != nil {
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:           audit.EventCheckoutCreated,
		IdentityID:     grant.Identity.ID,
		OrganizationID: invoice.OrganizationID,
		ResourceID:     invoice.ID,
		Details: map[string]interface{}{
			"sessionId":   session.ID,
			"amountCents": amountDue,
		},
	})

	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// ConfirmCheckoutSession finalizes a checkout the client was redirected back
// from. The session's metadata token must match the presented token; the
// session's own payment status decides the outcome. Safe to call any number
// of times for the same session.
func (s *PaymentService) ConfirmCheckoutSession(ctx context.Context, grant *Grant, sessionID string) (*model.Invoice, error) {
	return s.confirm(ctx, sessionID, &grant.Token.TokenValue)
}

// ConfirmFromWebhook finalizes a checkout reported by a signed processor
// webhook. The signature has already been verified, so no token comparison
// applies.
func (s *PaymentService) ConfirmFromWebhook(ctx context.Context, sessionID string) (*model.Invoice, error) {
	return s.confirm(ctx, sessionID, nil)
}

func (s *PaymentService) confirm(ctx context.Context, sessionID string, presentedToken *string) (*model.Invoice, error) {
	session, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Upstream("payment processor", err)
	}

	invoiceID := session.Metadata["invoiceId"]
	if invoiceID == "" {
		log.Error().Str("sessionId", sessionID).Msg("checkout session has no invoice metadata")
		return nil, apperrors.AccessDenied()
	}
	if presentedToken != nil && session.Metadata["token"] != *presentedToken {
		log.Warn().
			Str("sessionId", sessionID).
			Str("invoiceId", invoiceID).
			Msg("checkout confirmation token mismatch")
		return nil, apperrors.AccessDenied()
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if invoice == nil {
		log.Error().Str("sessionId", sessionID).Str("invoiceId", invoiceID).Msg("checkout session references missing invoice")
		return nil, apperrors.AccessDenied()
	}

	if session.PaymentStatus != payments.SessionStatusPaid {
		return nil, apperrors.ValidationError("Payment has not completed")
	}

	now := time.Now().UTC()
	intentID := session.IntentID
	if intentID == "" {
		// Fall back to the session id so idempotency still holds.
		intentID = session.ID
	}

	payment, created, err := s.paymentRepo.CreateIdempotent(ctx, model.CreatePaymentParams{
		InvoiceID:        invoice.ID,
		AmountCents:      session.AmountCents,
		PaymentDate:      now,
		Method:           "card",
		Reference:        &session.ID,
		ProviderIntentID: &intentID,
	})
	if err != nil {
		// The money moved; recording it must not fail the confirmation.
		log.Error().Err(err).
			Str("invoiceId", invoice.ID).
			Str("sessionId", sessionID).
			Msg("failed to record payment")
	} else if created {
		log.Info().
			Str("invoiceId", invoice.ID).
			Str("paymentId", payment.ID).
			Int64("amountCents", payment.AmountCents).
			Msg("payment recorded")
	}

	totalPaid, err := s.paymentRepo.SumByInvoiceID(ctx, invoice.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	status := model.PaymentStatusProcessing
	if totalPaid >= invoice.TotalCents {
		status = model.PaymentStatusPaid
	}

	if err := s.invoiceRepo.SetPaymentStatus(ctx, invoice.ID, status, nil); err != nil {
		return nil, apperrors.Database(err)
	}
	if status == model.PaymentStatusPaid {
		if err := s.invoiceRepo.SetPaidAt(ctx, invoice.ID, now); err != nil {
			return nil, apperrors.Database(err)
		}
		log.Info().Str("invoiceId", invoice.ID).Msg("invoice settled")
	}

	updated, err := s.invoiceRepo.FindByID(ctx, invoice.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return updated, nil
}

// ReconcileProcessing sweeps invoices stuck with an open checkout session,
// whether a partial confirmation left them processing or no confirmation ever
// arrived at all: sessions the processor reports paid are confirmed as if the
// webhook had arrived; expired sessions are detached so a fresh checkout can
// be opened.
func (s *PaymentService) ReconcileProcessing(ctx context.Context, olderThan time.Time) (int, error) {
	invoices, err := s.invoiceRepo.FindUnsettledWithSession(ctx, olderThan)
	if err != nil {
		return 0, apperrors.Database(err)
	}

	reconciled := 0
	for _, invoice := range invoices {
		if invoice.CheckoutSessionID == nil {
			continue
		}
		sessionID := *invoice.CheckoutSessionID

		session, err := s.provider.GetSession(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).
				Str("invoiceId", invoice.ID).
				Str("sessionId", sessionID).
				Msg("failed to fetch checkout session during reconciliation")
			continue
		}

		switch session.PaymentStatus {
		case payments.SessionStatusPaid:
			if _, err := s.ConfirmFromWebhook(ctx, sessionID); err != nil {
				log.Error().Err(err).
					Str("invoiceId", invoice.ID).
					Str("sessionId", sessionID).
					Msg("failed to reconcile paid session")
				continue
			}
			reconciled++

		case payments.SessionStatusExpired:
			if err := s.invoiceRepo.ClearCheckoutSession(ctx, invoice.ID); err != nil {
				log.Warn().Err(err).Str("invoiceId", invoice.ID).Msg("failed to clear expired checkout session")
				continue
			}
			log.Info().Str("invoiceId", invoice.ID).Str("sessionId", sessionID).Msg("expired checkout session cleared")
			reconciled++
		}
	}

	return reconciled, nil
}

func (s *PaymentService) amountDue(ctx context.Context, invoice *model.Invoice) (int64, error) {
	totalPaid, err := s.paymentRepo.SumByInvoiceID(ctx, invoice.ID)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	return invoice.TotalCents - totalPaid, nil
}

// backfillPaidAt repairs an invoice whose payments already cover the total
// but whose paid_at was never stamped.
func (s *PaymentService) backfillPaidAt(ctx context.Context, invoice *model.Invoice) {
	if invoice.PaidAt != nil {
		return
	}
	if err := s.invoiceRepo.SetPaidAt(ctx, invoice.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("invoiceId", invoice.ID).Msg("failed to backfill paid_at")
		return
	}
	if err := s.invoiceRepo.SetPaymentStatus(ctx, invoice.ID, model.PaymentStatusPaid, nil); err != nil {
		log.Warn().Err(err).Str("invoiceId", invoice.ID).Msg("failed to backfill payment status")
	}
}
