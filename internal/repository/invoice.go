package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atelierhq/portal-server-go/internal/model"
)

type InvoiceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Invoice, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*model.Invoice, error)
	FindByProjectID(ctx context.Context, projectID string) ([]model.Invoice, error)
	// FindUnsettledWithSession returns invoices holding a checkout session
	// that never reached a paid outcome: payment_status is still NULL (a
	// session was opened and no confirmation ever arrived) or stuck at
	// processing (a partial confirmation). The olderThan cutoff keeps
	// in-flight checkouts out of the sweep.
	FindUnsettledWithSession(ctx context.Context, olderThan time.Time) ([]model.Invoice, error)
	FindLineItems(ctx context.Context, invoiceID string) ([]model.InvoiceLineItem, error)
	// SetCheckoutSession records a fresh session id and wipes any stale
	// payment status and error so every attempt starts clean.
	SetCheckoutSession(ctx context.Context, id, sessionID string) error
	ClearCheckoutSession(ctx context.Context, id string) error
	SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus, paymentErr *string) error
	// SetPaidAt backfills paid_at only when it is not already set, so the
	// original settlement timestamp is never overwritten.
	SetPaidAt(ctx context.Context, id string, paidAt time.Time) error
}

type invoiceRepo struct {
	db *sqlx.DB
}

func NewInvoiceRepository(db *sqlx.DB) InvoiceRepository {
	return &invoiceRepo{db: db}
}

func (r *invoiceRepo) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.GetContext(ctx, &inv, `SELECT * FROM invoices WHERE id = $1`, id)
	return HandleNotFound(&inv, err)
}

func (r *invoiceRepo) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.GetContext(ctx, &inv, `SELECT * FROM invoices WHERE checkout_session_id = $1`, sessionID)
	return HandleNotFound(&inv, err)
}

func (r *invoiceRepo) FindByProjectID(ctx context.Context, projectID string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := r.db.SelectContext(ctx, &invoices, `
		SELECT * FROM invoices
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	return invoices, err
}

func (r *invoiceRepo) FindUnsettledWithSession(ctx context.Context, olderThan time.Time) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := r.db.SelectContext(ctx, &invoices, `
		SELECT * FROM invoices
		WHERE (payment_status = 'processing' OR payment_status IS NULL)
		AND checkout_session_id IS NOT NULL
		AND payment_status_updated_at < $1
		ORDER BY payment_status_updated_at ASC
	`, olderThan)
	return invoices, err
}

func (r *invoiceRepo) FindLineItems(ctx context.Context, invoiceID string) ([]model.InvoiceLineItem, error) {
	var items []model.InvoiceLineItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY id ASC
	`, invoiceID)
	return items, err
}

func (r *invoiceRepo) SetCheckoutSession(ctx context.Context, id, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET
			checkout_session_id = $2,
			payment_status = NULL,
			last_payment_error = NULL,
			payment_status_updated_at = $3
		WHERE id = $1
	`, id, sessionID, time.Now())
	return err
}

func (r *invoiceRepo) ClearCheckoutSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET
			checkout_session_id = NULL,
			payment_status = NULL,
			payment_status_updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *invoiceRepo) SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus, paymentErr *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET
			payment_status = $2,
			last_payment_error = $3,
			payment_status_updated_at = $4
		WHERE id = $1
	`, id, status, paymentErr, time.Now())
	return err
}

func (r *invoiceRepo) SetPaidAt(ctx context.Context, id string, paidAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET paid_at = $2
		WHERE id = $1 AND paid_at IS NULL
	`, id, paidAt)
	return err
}

// Payment Repository

type PaymentRepository interface {
	FindByInvoiceID(ctx context.Context, invoiceID string) ([]model.Payment, error)
	SumByInvoiceID(ctx context.Context, invoiceID string) (int64, error)
	// CreateIdempotent inserts a payment keyed by the provider's payment
	// intent id. A second insert with the same intent id is a no-op that
	// returns the existing row and created=false. The guarantee comes from
	// the unique constraint, not an application-level check.
	CreateIdempotent(ctx context.Context, params model.CreatePaymentParams) (payment *model.Payment, created bool, err error)
}

type paymentRepo struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) FindByInvoiceID(ctx context.Context, invoiceID string) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments
		WHERE invoice_id = $1
		ORDER BY payment_date ASC, created_at ASC
	`, invoiceID)
	return payments, err
}

func (r *paymentRepo) SumByInvoiceID(ctx context.Context, invoiceID string) (int64, error) {
	var sum int64
	err := r.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE invoice_id = $1
	`, invoiceID)
	return sum, err
}

func (r *paymentRepo) CreateIdempotent(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, bool, error) {
	var p model.Payment
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO payments
			(invoice_id, amount_cents, payment_date, method, reference, provider_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_intent_id) DO NOTHING
		RETURNING *
	`, params.InvoiceID, params.AmountCents, params.PaymentDate,
		params.Method, params.Reference, params.ProviderIntentID)
	if err == nil {
		return &p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	// Conflict: the payment was already recorded by an earlier confirmation.
	if params.ProviderIntentID == nil {
		return nil, false, sql.ErrNoRows
	}
	var existing model.Payment
	err = r.db.GetContext(ctx, &existing, `
		SELECT * FROM payments WHERE provider_intent_id = $1
	`, *params.ProviderIntentID)
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}
