package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// MockService is a mock implementation of the Service interface for testing.
// Unset function fields return zero values.
type MockService struct {
	CreateContactFunc    func(ctx context.Context, name, email string) (*domain.Contact, error)
	GetContactFunc       func(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	ListContactsFunc     func(ctx context.Context) ([]*domain.Contact, error)
	RenameContactFunc    func(ctx context.Context, id uuid.UUID, name string) (*domain.Contact, error)
	ApplyOperationFunc   func(ctx context.Context, contactID uuid.UUID, kind domain.OperationKind, amount decimal.Decimal) (*domain.Operation, error)
	ListOperationsFunc   func(ctx context.Context, contactID uuid.UUID, start, end string) ([]*domain.Operation, error)
	ExportOperationsFunc func(ctx context.Context, contactID uuid.UUID, start, end string) (*Export, error)
	VerifyLedgerFunc     func(ctx context.Context, contactID uuid.UUID) (*LedgerReport, error)
}

var _ Service = (*MockService)(nil)

// CreateContact calls CreateContactFunc.
func (m *MockService) CreateContact(ctx context.Context, name, email string) (*domain.Contact, error) {
	if m.CreateContactFunc != nil {
		return m.CreateContactFunc(ctx, name, email)
	}
	return nil, nil
}

// GetContact calls GetContactFunc.
func (m *MockService) GetContact(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	if m.GetContactFunc != nil {
		return m.GetContactFunc(ctx, id)
	}
	return nil, nil
}

// ListContacts calls ListContactsFunc.
func (m *MockService) ListContacts(ctx context.Context) ([]*domain.Contact, error) {
	if m.ListContactsFunc != nil {
		return m.ListContactsFunc(ctx)
	}
	return nil, nil
}

// RenameContact calls RenameContactFunc.
func (m *MockService) RenameContact(ctx context.Context, id uuid.UUID, name string) (*domain.Contact, error) {
	if m.RenameContactFunc != nil {
		return m.RenameContactFunc(ctx, id, name)
	}
	return nil, nil
}

// ApplyOperation calls ApplyOperationFunc.
func (m *MockService) ApplyOperation(
	ctx context.Context,
	contactID uuid.UUID,
	kind domain.OperationKind,
	amount decimal.Decimal,
) (*domain.Operation, error) {
	if m.ApplyOperationFunc != nil {
		return m.ApplyOperationFunc(ctx, contactID, kind, amount)
	}
	return nil, nil
}

// ListOperations calls ListOperationsFunc.
func (m *MockService) ListOperations(
	ctx context.Context,
	contactID uuid.UUID,
	start, end string,
) ([]*domain.Operation, error) {
	if m.ListOperationsFunc != nil {
		return m.ListOperationsFunc(ctx, contactID, start, end)
	}
	return nil, nil
}

// ExportOperations calls ExportOperationsFunc.
func (m *MockService) ExportOperations(ctx context.Context, contactID uuid.UUID, start, end string) (*Export, error) {
	if m.ExportOperationsFunc != nil {
		return m.ExportOperationsFunc(ctx, contactID, start, end)
	}
	return nil, nil
}

// VerifyLedger calls VerifyLedgerFunc.
func (m *MockService) VerifyLedger(ctx context.Context, contactID uuid.UUID) (*LedgerReport, error) {
	if m.VerifyLedgerFunc != nil {
		return m.VerifyLedgerFunc(ctx, contactID)
	}
	return nil, nil
}
