package model

import (
	"time"
)

// Invoice is read-mostly from the portal's perspective: the accounting sync
// owns ExternalStatus, the payment coordinator owns the payment_* fields.
// All amounts are integer minor units (cents) to keep the settlement
// comparison exact.
type Invoice struct {
	ID                     string                `db:"id" json:"id"`
	OrganizationID         string                `db:"organization_id" json:"organizationId"`
	ProjectID              *string               `db:"project_id" json:"projectId,omitempty"`
	Number                 string                `db:"number" json:"number"`
	TotalCents             int64                 `db:"total_cents" json:"totalCents"`
	Currency               string                `db:"currency" json:"currency"`
	DueDate                *time.Time            `db:"due_date" json:"dueDate,omitempty"`
	PaidAt                 *time.Time            `db:"paid_at" json:"paidAt,omitempty"`
	ExternalStatus         InvoiceExternalStatus `db:"external_status" json:"externalStatus"`
	PaymentStatus          *PaymentStatus        `db:"payment_status" json:"paymentStatus,omitempty"`
	PaymentStatusUpdatedAt *time.Time            `db:"payment_status_updated_at" json:"paymentStatusUpdatedAt,omitempty"`
	LastPaymentError       *string               `db:"last_payment_error" json:"lastPaymentError,omitempty"`
	CheckoutSessionID      *string               `db:"checkout_session_id" json:"-"`
	CreatedAt              time.Time             `db:"created_at" json:"createdAt"`
}

type InvoiceLineItem struct {
	ID          string `db:"id" json:"id"`
	InvoiceID   string `db:"invoice_id" json:"invoiceId"`
	Description string `db:"description" json:"description"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitCents   int64  `db:"unit_cents" json:"unitCents"`
	AmountCents int64  `db:"amount_cents" json:"amountCents"`
}

// Payment is one payment applied to an invoice. Several payments may apply to
// one invoice; settlement is the sum of their amounts reaching the invoice
// total. ProviderIntentID carries a uniqueness constraint so a retried
// confirmation can never double-credit.
type Payment struct {
	ID               string    `db:"id" json:"id"`
	InvoiceID        string    `db:"invoice_id" json:"invoiceId"`
	AmountCents      int64     `db:"amount_cents" json:"amountCents"`
	PaymentDate      time.Time `db:"payment_date" json:"paymentDate"`
	Method           string    `db:"method" json:"method"`
	Reference        *string   `db:"reference" json:"reference,omitempty"`
	ProviderIntentID *string   `db:"provider_intent_id" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

type CreatePaymentParams struct {
	InvoiceID        string
	AmountCents      int64
	PaymentDate      time.Time
	Method           string
	Reference        *string
	ProviderIntentID *string
}

// InvoiceDetail is the single-invoice portal view with line items and applied
// payments.
type InvoiceDetail struct {
	Invoice   *Invoice          `json:"invoice"`
	LineItems []InvoiceLineItem `json:"lineItems"`
	Payments  []Payment         `json:"payments"`
}
