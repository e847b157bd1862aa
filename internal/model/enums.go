package model

// AuthorRole identifies which side of the portal wrote a message or owns a
// read-state watermark. The set is closed: anything else is rejected at the
// boundary so the unread-count "other role" rule cannot be bypassed.
type AuthorRole string

const (
	RoleOperator AuthorRole = "operator"
	RoleClient   AuthorRole = "client"
)

// Other returns the opposing role.
func (r AuthorRole) Other() AuthorRole {
	if r == RoleOperator {
		return RoleClient
	}
	return RoleOperator
}

// Valid reports whether r is one of the two known roles.
func (r AuthorRole) Valid() bool {
	return r == RoleOperator || r == RoleClient
}

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
)

type DocumentType string

const (
	DocTypeMasterAgreement DocumentType = "master_agreement"
	DocTypeStatementOfWork DocumentType = "statement_of_work"
	DocTypeInvoiceCopy     DocumentType = "invoice_copy"
)

// PaymentStatus is the advisory checkout lifecycle on an invoice. It is
// distinct from settlement, which is derived from summed payment rows.
type PaymentStatus string

const (
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// InvoiceExternalStatus is the accounting-system lifecycle state. It is owned
// by the accounting sync and only ever read here.
type InvoiceExternalStatus string

const (
	InvoiceStatusDraft      InvoiceExternalStatus = "draft"
	InvoiceStatusSent       InvoiceExternalStatus = "sent"
	InvoiceStatusAuthorised InvoiceExternalStatus = "authorised"
	InvoiceStatusPaid       InvoiceExternalStatus = "paid"
	InvoiceStatusVoided     InvoiceExternalStatus = "voided"
	InvoiceStatusDeleted    InvoiceExternalStatus = "deleted"
)

// Payable reports whether checkout may be attempted for an invoice in this
// external state.
func (s InvoiceExternalStatus) Payable() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusVoided, InvoiceStatusDeleted:
		return false
	}
	return true
}
