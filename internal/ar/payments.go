package ar

import (
	"context"
	"log/slog"
	"strings"

	"github.com/netline-isp/billing/internal/shared"
)

const idempotencyModule = "payments"

func (in PaymentInput) validate() error {
	switch {
	case in.InvoiceID <= 0:
		return shared.Invalid("invoiceId required")
	case in.CustomerID <= 0:
		return shared.Invalid("customerId required")
	case in.Amount <= 0:
		return shared.Invalid("amount must be positive")
	case strings.TrimSpace(in.CollectedBy) == "":
		return shared.Invalid("collectedBy required")
	case !in.Method.Valid():
		return shared.Invalid("unknown payment method %q", in.Method)
	}
	return nil
}

// RecordPayment applies a payment to an invoice. The invoice row is locked
// for the duration, so concurrent payments against it serialise.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	if err := in.validate(); err != nil {
		return PaymentResult{}, err
	}
	receivedAt := s.now().UTC()
	if in.ReceivedAt != nil && !in.ReceivedAt.IsZero() {
		receivedAt = in.ReceivedAt.UTC()
	}

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, in.IdempotencyKey, idempotencyModule); err != nil {
				return err
			}
		}
		inv, err := tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.CustomerID != in.CustomerID {
			return shared.Invalid("invoice %d does not belong to customer %d", inv.ID, in.CustomerID)
		}
		if inv.Status == StatusVoid {
			return shared.Invalid("invoice %d is void", inv.ID)
		}
		pay, err := tx.InsertPayment(ctx, Payment{
			InvoiceID:   inv.ID,
			CustomerID:  inv.CustomerID,
			Amount:      in.Amount,
			Method:      in.Method,
			CollectedBy: strings.TrimSpace(in.CollectedBy),
			Reference:   in.Reference,
			Notes:       in.Notes,
			ReceivedAt:  receivedAt,
		})
		if err != nil {
			return err
		}
		inv.PaidAmount += in.Amount
		inv.Status = statusAfterPayment(inv.TotalAmount, inv.PaidAmount)
		updated, err := tx.UpdateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		if s.integration != nil {
			if err := s.integration.HandlePaymentRecorded(ctx, PaymentRecordedEvent{Payment: pay, Invoice: updated}); err != nil {
				return err
			}
		}
		if updated.Status == StatusPaid {
			if err := s.publishFullyPaid(ctx, updated); err != nil {
				return err
			}
		}
		result = PaymentResult{Payment: pay, Invoice: updated}
		return nil
	})
	if err != nil {
		return PaymentResult{}, shared.Persistence("ar: record payment", err)
	}

	if s.notifier != nil {
		if err := s.notifier.EnqueuePaymentReceipt(ctx, result.Payment.ID); err != nil {
			s.logger.WarnContext(ctx, "payment notification not queued",
				slog.Int64("payment_id", result.Payment.ID), slog.Any("error", err))
		}
	}
	s.bump(ctx)
	s.recordAudit(ctx, result.Payment.CollectedBy, "payment.record", "payment", result.Payment.ID, map[string]any{
		"invoice_id": result.Invoice.ID,
		"amount":     result.Payment.Amount,
		"method":     string(result.Payment.Method),
		"status":     string(result.Invoice.Status),
	})
	if s.metrics != nil {
		s.metrics.PaymentRecorded(string(result.Payment.Method), result.Payment.Amount)
	}
	return result, nil
}
