package ar

import (
	"context"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// InvoiceIssuedEvent is raised when a billing run creates an invoice.
type InvoiceIssuedEvent struct {
	Invoice Invoice
}

// InvoiceAdjustedEvent carries the invoice before and after a discount or penalty change.
type InvoiceAdjustedEvent struct {
	Before     Invoice
	After      Invoice
	AdjustedOn time.Time
	Actor      string
}

// InvoiceVoidedEvent is raised when an unpaid invoice is cancelled.
type InvoiceVoidedEvent struct {
	Invoice  Invoice
	VoidedOn time.Time
	Actor    string
}

// PaymentRecordedEvent is raised once a payment row exists.
type PaymentRecordedEvent struct {
	Payment Payment
	Invoice Invoice
}

// IntegrationHandler receives billing events for ledger integration. Handlers
// run inside the transaction that produced the event.
type IntegrationHandler interface {
	HandleInvoiceIssued(ctx context.Context, evt InvoiceIssuedEvent) error
	HandleInvoiceAdjusted(ctx context.Context, evt InvoiceAdjustedEvent) error
	HandleInvoiceVoided(ctx context.Context, evt InvoiceVoidedEvent) error
	HandlePaymentRecorded(ctx context.Context, evt PaymentRecordedEvent) error
}

// FullyPaidHandler consumes invoice settlement inside the settling transaction.
type FullyPaidHandler interface {
	HandleInvoiceFullyPaid(ctx context.Context, evt shared.InvoiceFullyPaid) error
}

// PaymentNotifier is called after commit; failures never undo the payment.
type PaymentNotifier interface {
	EnqueuePaymentReceipt(ctx context.Context, paymentID int64) error
}
