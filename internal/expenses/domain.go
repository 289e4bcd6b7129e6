// Package expenses records operating spend and hands it to the ledger.
package expenses

import (
	"context"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// Expense is money paid out for running the network.
type Expense struct {
	ID          int64       `json:"id"`
	Category    string      `json:"category"`
	Amount      int64       `json:"amount"`
	Method      string      `json:"method"`
	VendorID    *int64      `json:"vendorId,omitempty"`
	Description string      `json:"description"`
	SpentOn     shared.Date `json:"spentOn"`
	RecordedBy  string      `json:"recordedBy"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// RecordInput captures a new expense.
type RecordInput struct {
	Category    string      `json:"category" validate:"required,max=64"`
	Amount      int64       `json:"amount" validate:"gt=0"`
	Method      string      `json:"method" validate:"required,oneof=cash bank mobile_money online"`
	VendorID    *int64      `json:"vendorId"`
	Description string      `json:"description" validate:"max=500"`
	SpentOn     shared.Date `json:"spentOn"`
	RecordedBy  string      `json:"recordedBy" validate:"required"`
}

// ExpenseRecordedEvent is raised inside the recording transaction.
type ExpenseRecordedEvent struct {
	Expense Expense
}

// IntegrationHandler receives expense events for ledger integration.
type IntegrationHandler interface {
	HandleExpenseRecorded(ctx context.Context, evt ExpenseRecordedEvent) error
}
