package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/portal-server-go/internal/config"
	apperrors "github.com/atelierhq/portal-server-go/internal/errors"
	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/payments"
)

func newPaymentFixture() (*PaymentService, *mockInvoiceRepo, *mockPaymentRepo, *mockPaymentProvider) {
	invoiceRepo := new(mockInvoiceRepo)
	paymentRepo := new(mockPaymentRepo)
	provider := new(mockPaymentProvider)
	cfg := &config.Config{PortalBaseURL: "https://portal.example.com"}
	return NewPaymentService(invoiceRepo, paymentRepo, provider, cfg), invoiceRepo, paymentRepo, provider
}

func testGrant() *Grant {
	return &Grant{Token: activeToken("ident-1"), Identity: testIdentity("org-1")}
}

func openInvoice(totalCents int64) *model.Invoice {
	return &model.Invoice{
		ID:             "inv-1",
		OrganizationID: "org-1",
		Number:         "INV-042",
		TotalCents:     totalCents,
		Currency:       "usd",
		ExternalStatus: model.InvoiceStatusSent,
	}
}

func TestCreateCheckoutSession_ChargesOutstandingBalance(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	invoice := openInvoice(1000)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(400), nil)
	provider.On("CreateSession", mock.Anything, mock.MatchedBy(func(p payments.CreateSessionParams) bool {
		return p.AmountCents == 600 &&
			p.Currency == "usd" &&
			p.Metadata["invoiceId"] == "inv-1" &&
			p.Metadata["token"] == "abc123" &&
			p.Metadata["organizationId"] == "org-1"
	})).Return(&payments.Session{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil)
	invoiceRepo.On("SetCheckoutSession", mock.Anything, "inv-1", "cs_1").Return(nil)

	session, err := svc.CreateCheckoutSession(context.Background(), testGrant(), invoice)

	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.SessionID)
	assert.Equal(t, "https://pay.example.com/cs_1", session.URL)
}

func TestCreateCheckoutSession_EmitsAuditEvent(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()
	logs := captureLog(t)

	invoice := openInvoice(1000)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(0), nil)
	provider.On("CreateSession", mock.Anything, mock.Anything).
		Return(&payments.Session{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil)
	invoiceRepo.On("SetCheckoutSession", mock.Anything, "inv-1", "cs_1").Return(nil)

	_, err := svc.CreateCheckoutSession(context.Background(), testGrant(), invoice)

	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"event_type":"checkout_created"`)
	assert.Contains(t, logs.String(), `"resource_id":"inv-1"`)
	assert.Contains(t, logs.String(), `"sessionId":"cs_1"`)
}

func TestCreateCheckoutSession_RejectsDraftInvoice(t *testing.T) {
	svc, _, _, provider := newPaymentFixture()

	invoice := openInvoice(1000)
	invoice.ExternalStatus = model.InvoiceStatusDraft

	_, err := svc.CreateCheckoutSession(context.Background(), testGrant(), invoice)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	provider.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestCreateCheckoutSession_RejectsZeroTotal(t *testing.T) {
	svc, _, _, _ := newPaymentFixture()

	_, err := svc.CreateCheckoutSession(context.Background(), testGrant(), openInvoice(0))

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

// An invoice whose payments already cover the total is already settled; the
// missing paid_at stamp is repaired on the way out.
func TestCreateCheckoutSession_AlreadySettledBackfillsPaidAt(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	invoice := openInvoice(1000)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(1000), nil)
	invoiceRepo.On("SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time")).Return(nil)
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusPaid, (*string)(nil)).Return(nil)

	_, err := svc.CreateCheckoutSession(context.Background(), testGrant(), invoice)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadySettled))
	invoiceRepo.AssertCalled(t, "SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time"))
	provider.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func paidSession(amountCents int64) *payments.Session {
	return &payments.Session{
		ID:            "cs_1",
		PaymentStatus: payments.SessionStatusPaid,
		AmountCents:   amountCents,
		Currency:      "usd",
		IntentID:      "pi_1",
		Metadata: map[string]string{
			"invoiceId":      "inv-1",
			"token":          "abc123",
			"organizationId": "org-1",
		},
	}
}

func TestConfirmCheckoutSession_SettlesInvoice(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	provider.On("GetSession", mock.Anything, "cs_1").Return(paidSession(1000), nil)
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(openInvoice(1000), nil).Once()
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.MatchedBy(func(p model.CreatePaymentParams) bool {
		return p.InvoiceID == "inv-1" && p.AmountCents == 1000 && *p.ProviderIntentID == "pi_1"
	})).Return(&model.Payment{ID: "pay-1", AmountCents: 1000}, true, nil)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(1000), nil)
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusPaid, (*string)(nil)).Return(nil)
	invoiceRepo.On("SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time")).Return(nil)

	settled := openInvoice(1000)
	now := time.Now()
	settled.PaidAt = &now
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(settled, nil)

	invoice, err := svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_1")

	require.NoError(t, err)
	assert.NotNil(t, invoice.PaidAt)
}

// A session created for one token cannot be confirmed with a different one.
func TestConfirmCheckoutSession_TokenMismatch(t *testing.T) {
	svc, invoiceRepo, _, provider := newPaymentFixture()

	session := paidSession(1000)
	session.Metadata["token"] = "someone-elses-token"
	provider.On("GetSession", mock.Anything, "cs_1").Return(session, nil)

	_, err := svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_1")

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAccessDenied))
	invoiceRepo.AssertNotCalled(t, "SetPaymentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmCheckoutSession_UnpaidSession(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	session := paidSession(1000)
	session.PaymentStatus = payments.SessionStatusUnpaid
	provider.On("GetSession", mock.Anything, "cs_1").Return(session, nil)
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(openInvoice(1000), nil)

	_, err := svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_1")

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	paymentRepo.AssertNotCalled(t, "CreateIdempotent", mock.Anything, mock.Anything)
}

// Confirming the same session twice credits one payment: the second insert
// hits the intent id uniqueness and is a no-op, and the recomputed status is
// the same.
func TestConfirmCheckoutSession_Idempotent(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	provider.On("GetSession", mock.Anything, "cs_1").Return(paidSession(1000), nil)
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(openInvoice(1000), nil)
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.Anything).
		Return(&model.Payment{ID: "pay-1", AmountCents: 1000}, true, nil).Once()
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.Anything).
		Return(&model.Payment{ID: "pay-1", AmountCents: 1000}, false, nil)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(1000), nil)
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusPaid, (*string)(nil)).Return(nil)
	invoiceRepo.On("SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time")).Return(nil)

	_, err := svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_1")
	require.NoError(t, err)
	_, err = svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_1")
	require.NoError(t, err)

	paymentRepo.AssertNumberOfCalls(t, "CreateIdempotent", 2)
}

// A partial payment leaves the invoice in processing; covering the remainder
// settles it.
func TestConfirmCheckoutSession_PartialThenSettled(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	first := paidSession(400)
	provider.On("GetSession", mock.Anything, "cs_1").Return(first, nil)
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(openInvoice(1000), nil)
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.Anything).
		Return(&model.Payment{ID: "pay-1", AmountCents: 400}, true, nil).Once()
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(400), nil).Once()
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusProcessing, (*string)(nil)).Return(nil).Once()

	_, err := svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_1")
	require.NoError(t, err)
	invoiceRepo.AssertNotCalled(t, "SetPaidAt", mock.Anything, mock.Anything, mock.Anything)

	second := paidSession(600)
	second.ID = "cs_2"
	second.IntentID = "pi_2"
	provider.On("GetSession", mock.Anything, "cs_2").Return(second, nil)
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.Anything).
		Return(&model.Payment{ID: "pay-2", AmountCents: 600}, true, nil).Once()
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(1000), nil)
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusPaid, (*string)(nil)).Return(nil)
	invoiceRepo.On("SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time")).Return(nil)

	_, err = svc.ConfirmCheckoutSession(context.Background(), testGrant(), "cs_2")
	require.NoError(t, err)
	invoiceRepo.AssertCalled(t, "SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time"))
}

func TestReconcileProcessing_ClearsExpiredSessions(t *testing.T) {
	svc, invoiceRepo, _, provider := newPaymentFixture()

	sessionID := "cs_old"
	stuck := openInvoice(1000)
	stuck.CheckoutSessionID = &sessionID
	cutoff := time.Now().Add(-time.Hour)

	invoiceRepo.On("FindUnsettledWithSession", mock.Anything, cutoff).Return([]model.Invoice{*stuck}, nil)
	provider.On("GetSession", mock.Anything, "cs_old").Return(&payments.Session{
		ID:            "cs_old",
		PaymentStatus: payments.SessionStatusExpired,
	}, nil)
	invoiceRepo.On("ClearCheckoutSession", mock.Anything, "inv-1").Return(nil)

	reconciled, err := svc.ReconcileProcessing(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	invoiceRepo.AssertCalled(t, "ClearCheckoutSession", mock.Anything, "inv-1")
}

func TestReconcileProcessing_ConfirmsPaidSessions(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	sessionID := "cs_1"
	stuck := openInvoice(1000)
	stuck.CheckoutSessionID = &sessionID
	cutoff := time.Now().Add(-time.Hour)

	invoiceRepo.On("FindUnsettledWithSession", mock.Anything, cutoff).Return([]model.Invoice{*stuck}, nil)
	provider.On("GetSession", mock.Anything, "cs_1").Return(paidSession(1000), nil)
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(openInvoice(1000), nil)
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.Anything).
		Return(&model.Payment{ID: "pay-1", AmountCents: 1000}, true, nil)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(1000), nil)
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusPaid, (*string)(nil)).Return(nil)
	invoiceRepo.On("SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time")).Return(nil)

	reconciled, err := svc.ReconcileProcessing(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
}

// A customer can pay and then close the tab before the redirect, with the
// webhook lost in transit. The invoice then has a session id but no payment
// status at all, and only the sweep can settle it.
func TestReconcileProcessing_SettlesLostWebhookInvoice(t *testing.T) {
	svc, invoiceRepo, paymentRepo, provider := newPaymentFixture()

	sessionID := "cs_lost"
	orphaned := openInvoice(1000)
	orphaned.CheckoutSessionID = &sessionID
	orphaned.PaymentStatus = nil
	cutoff := time.Now().Add(-time.Hour)

	invoiceRepo.On("FindUnsettledWithSession", mock.Anything, cutoff).Return([]model.Invoice{*orphaned}, nil)
	session := paidSession(1000)
	session.ID = "cs_lost"
	provider.On("GetSession", mock.Anything, "cs_lost").Return(session, nil)
	invoiceRepo.On("FindByID", mock.Anything, "inv-1").Return(openInvoice(1000), nil)
	paymentRepo.On("CreateIdempotent", mock.Anything, mock.Anything).
		Return(&model.Payment{ID: "pay-1", AmountCents: 1000}, true, nil)
	paymentRepo.On("SumByInvoiceID", mock.Anything, "inv-1").Return(int64(1000), nil)
	invoiceRepo.On("SetPaymentStatus", mock.Anything, "inv-1", model.PaymentStatusPaid, (*string)(nil)).Return(nil)
	invoiceRepo.On("SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time")).Return(nil)

	reconciled, err := svc.ReconcileProcessing(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	invoiceRepo.AssertCalled(t, "SetPaidAt", mock.Anything, "inv-1", mock.AnythingOfType("time.Time"))
}
