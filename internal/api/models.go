package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
	"github.com/shopspring/decimal"
)

// CreateContactRequest is the payload of POST /contacts.
type CreateContactRequest struct {
	Name  string `json:"name"  validate:"required,max=200"`
	Email string `json:"email" validate:"required,max=320"`
}

// RenameContactRequest is the payload of PATCH /contacts/{id}.
type RenameContactRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ApplyOperationRequest is the payload of POST /contacts/{id}/operations.
//
// Amount is kept raw so that a quoted number, a non-number and a missing
// amount all surface as InvalidAmount, and so that it is checked before Type.
type ApplyOperationRequest struct {
	Type   string          `json:"type"`
	Amount json.RawMessage `json:"amount"`
}

// parse returns the amount and kind, amount first.
func (req ApplyOperationRequest) parse() (domain.OperationKind, decimal.Decimal, error) {
	amount, err := domain.ParseAmount(string(req.Amount))
	if err != nil {
		return "", decimal.Zero, err
	}
	kind, err := domain.ParseOperationKind(req.Type)
	if err != nil {
		return "", decimal.Zero, err
	}
	return kind, amount, nil
}

// ContactResponse is the JSON shape of a contact.
type ContactResponse struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Balance   json.Number `json:"balance"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OperationResponse is the JSON shape of an operation.
type OperationResponse struct {
	ID           uuid.UUID   `json:"id"`
	ContactID    uuid.UUID   `json:"contactId"`
	Type         string      `json:"type"`
	Amount       json.Number `json:"amount"`
	BalanceAfter json.Number `json:"balanceAfter"`
	Sequence     int64       `json:"sequence"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// LedgerReportResponse is the JSON shape of a ledger verification.
type LedgerReportResponse struct {
	ContactID       uuid.UUID   `json:"contactId"`
	Consistent      bool        `json:"consistent"`
	Balance         json.Number `json:"balance"`
	ReplayedBalance json.Number `json:"replayedBalance"`
	Operations      int         `json:"operations"`
	Problem         string      `json:"problem,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func decimalNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func contactToResponse(c *domain.Contact) ContactResponse {
	return ContactResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Balance:   decimalNumber(c.Balance),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func contactsToResponse(contacts []*domain.Contact) []ContactResponse {
	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactToResponse(c))
	}
	return out
}

func operationToResponse(op *domain.Operation) OperationResponse {
	return OperationResponse{
		ID:           op.ID,
		ContactID:    op.ContactID,
		Type:         string(op.Kind),
		Amount:       decimalNumber(op.Amount),
		BalanceAfter: decimalNumber(op.BalanceAfter),
		Sequence:     op.Sequence,
		CreatedAt:    op.CreatedAt,
	}
}

func operationsToResponse(ops []*domain.Operation) []OperationResponse {
	out := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		out = append(out, operationToResponse(op))
	}
	return out
}

func reportToResponse(r *ledger.LedgerReport) LedgerReportResponse {
	return LedgerReportResponse{
		ContactID:       r.ContactID,
		Consistent:      r.Consistent,
		Balance:         decimalNumber(r.Balance),
		ReplayedBalance: decimalNumber(r.ReplayedBalance),
		Operations:      r.Operations,
		Problem:         r.Problem,
	}
}
