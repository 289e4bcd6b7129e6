package customers

import (
	"context"
	"log/slog"

	"github.com/netline-isp/billing/internal/shared"
)

// StatusStore is the write side used by StatusHandler.
type StatusStore interface {
	Reactivate(ctx context.Context, id int64) (bool, error)
}

// StatusHandler restores service once a customer settles an invoice.
type StatusHandler struct {
	store  StatusStore
	logger *slog.Logger
}

// NewStatusHandler builds the handler.
func NewStatusHandler(store StatusStore, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{store: store, logger: logger}
}

// HandleInvoiceFullyPaid reactivates a suspended customer. It runs inside the
// payment transaction, so a failure rolls the payment back.
func (h *StatusHandler) HandleInvoiceFullyPaid(ctx context.Context, evt shared.InvoiceFullyPaid) error {
	changed, err := h.store.Reactivate(ctx, evt.CustomerID)
	if err != nil {
		return err
	}
	if changed {
		h.logger.InfoContext(ctx, "customer reactivated",
			slog.Int64("customer_id", evt.CustomerID),
			slog.Int64("invoice_id", evt.InvoiceID))
	}
	return nil
}
