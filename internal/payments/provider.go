package payments

import (
	"context"
)

// CreateSessionParams is the request for a hosted checkout session. Metadata
// must carry enough for the later confirmation step to be self-contained:
// invoice id, token, organization id.
type CreateSessionParams struct {
	AmountCents   int64
	Currency      string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	AmountCents   int64
	Currency      string
	IntentID      string
	Metadata      map[string]string
}

// Session payment status values reported by the processor.
const (
	SessionStatusPaid    = "paid"
	SessionStatusUnpaid  = "unpaid"
	SessionStatusExpired = "expired"
)

// Provider is the external payment processor contract. GetSession is the
// source of truth for completion; a client-supplied "it succeeded" signal is
// never trusted.
type Provider interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
