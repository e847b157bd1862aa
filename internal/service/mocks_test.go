package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/mock"

	"github.com/atelierhq/portal-server-go/internal/model"
	"github.com/atelierhq/portal-server-go/internal/payments"
	"github.com/atelierhq/portal-server-go/internal/sse"
)

// captureLog redirects the global logger into a buffer for the duration of
// the test, so assertions can run against emitted log lines.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

// Mock repositories shared across the service tests.

type mockTokenRepo struct {
	mock.Mock
}

func (m *mockTokenRepo) FindByID(ctx context.Context, id string) (*model.PortalToken, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PortalToken), args.Error(1)
}

func (m *mockTokenRepo) FindByValue(ctx context.Context, tokenValue string) (*model.PortalToken, error) {
	args := m.Called(ctx, tokenValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PortalToken), args.Error(1)
}

func (m *mockTokenRepo) FindActiveByIdentityID(ctx context.Context, identityID string) (*model.PortalToken, error) {
	args := m.Called(ctx, identityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PortalToken), args.Error(1)
}

func (m *mockTokenRepo) Issue(ctx context.Context, identityID, tokenValue string) (*model.PortalToken, error) {
	args := m.Called(ctx, identityID, tokenValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PortalToken), args.Error(1)
}

func (m *mockTokenRepo) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTokenRepo) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockIdentityRepo struct {
	mock.Mock
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Identity), args.Error(1)
}

type mockOrganizationRepo struct {
	mock.Mock
}

func (m *mockOrganizationRepo) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

type mockProjectRepo struct {
	mock.Mock
}

func (m *mockProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Project), args.Error(1)
}

func (m *mockProjectRepo) FindByOrganizationID(ctx context.Context, organizationID string) ([]model.Project, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Project), args.Error(1)
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, projectID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) CountByProjectID(ctx context.Context, projectID string) (int, error) {
	args := m.Called(ctx, projectID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) CountUnread(ctx context.Context, projectID string, authorRole model.AuthorRole, after time.Time) (int, error) {
	args := m.Called(ctx, projectID, authorRole, after)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

type mockReadStateRepo struct {
	mock.Mock
}

func (m *mockReadStateRepo) Find(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error) {
	args := m.Called(ctx, projectID, role, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReadState), args.Error(1)
}

func (m *mockReadStateRepo) Upsert(ctx context.Context, projectID string, role model.AuthorRole, readerID string) (*model.ReadState, error) {
	args := m.Called(ctx, projectID, role, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReadState), args.Error(1)
}

type mockUploadRepo struct {
	mock.Mock
}

func (m *mockUploadRepo) FindByID(ctx context.Context, id string) (*model.Upload, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Upload), args.Error(1)
}

func (m *mockUploadRepo) FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]model.Upload, error) {
	args := m.Called(ctx, projectID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Upload), args.Error(1)
}

func (m *mockUploadRepo) CountByProjectID(ctx context.Context, projectID string) (int, error) {
	args := m.Called(ctx, projectID)
	return args.Int(0), args.Error(1)
}

func (m *mockUploadRepo) Create(ctx context.Context, params model.CreateUploadParams) (*model.Upload, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Upload), args.Error(1)
}

type mockDocumentRepo struct {
	mock.Mock
}

func (m *mockDocumentRepo) FindByID(ctx context.Context, id string) (*model.ContractDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ContractDocument), args.Error(1)
}

func (m *mockDocumentRepo) FindForOrganization(ctx context.Context, organizationID string) ([]model.ContractDocument, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContractDocument), args.Error(1)
}

func (m *mockDocumentRepo) FindByProjectID(ctx context.Context, projectID string) ([]model.ContractDocument, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContractDocument), args.Error(1)
}

type mockInvoiceRepo struct {
	mock.Mock
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *mockInvoiceRepo) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*model.Invoice, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *mockInvoiceRepo) FindByProjectID(ctx context.Context, projectID string) ([]model.Invoice, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Invoice), args.Error(1)
}

func (m *mockInvoiceRepo) FindUnsettledWithSession(ctx context.Context, olderThan time.Time) ([]model.Invoice, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Invoice), args.Error(1)
}

func (m *mockInvoiceRepo) FindLineItems(ctx context.Context, invoiceID string) ([]model.InvoiceLineItem, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InvoiceLineItem), args.Error(1)
}

func (m *mockInvoiceRepo) SetCheckoutSession(ctx context.Context, id, sessionID string) error {
	args := m.Called(ctx, id, sessionID)
	return args.Error(0)
}

func (m *mockInvoiceRepo) ClearCheckoutSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockInvoiceRepo) SetPaymentStatus(ctx context.Context, id string, status model.PaymentStatus, paymentErr *string) error {
	args := m.Called(ctx, id, status, paymentErr)
	return args.Error(0)
}

func (m *mockInvoiceRepo) SetPaidAt(ctx context.Context, id string, paidAt time.Time) error {
	args := m.Called(ctx, id, paidAt)
	return args.Error(0)
}

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) FindByInvoiceID(ctx context.Context, invoiceID string) ([]model.Payment, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) SumByInvoiceID(ctx context.Context, invoiceID string) (int64, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPaymentRepo) CreateIdempotent(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, bool, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Payment), args.Bool(1), args.Error(2)
}

type mockPaymentProvider struct {
	mock.Mock
}

func (m *mockPaymentProvider) CreateSession(ctx context.Context, params payments.CreateSessionParams) (*payments.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Session), args.Error(1)
}

func (m *mockPaymentProvider) GetSession(ctx context.Context, sessionID string) (*payments.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Session), args.Error(1)
}

type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) Write(ctx context.Context, objectPath, contentType string, r io.Reader) error {
	args := m.Called(ctx, objectPath, contentType, r)
	return args.Error(0)
}

func (m *mockBlobStore) Delete(ctx context.Context, objectPath string) error {
	args := m.Called(ctx, objectPath)
	return args.Error(0)
}

func (m *mockBlobStore) SignedDownloadURL(objectPath string, expiresIn time.Duration) (string, error) {
	args := m.Called(objectPath, expiresIn)
	return args.String(0), args.Error(1)
}

// fakePublisher records published events without Redis.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Topic string
	Event sse.Event
}

func (p *fakePublisher) Publish(_ context.Context, topic string, event sse.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event})
	return nil
}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
