package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netline-isp/billing/internal/customers"
	"github.com/netline-isp/billing/internal/shared"
)

// ErrInvoiceExists reports a non-void invoice already covering the period.
var ErrInvoiceExists = fmt.Errorf("%w: ar: invoice already exists for period", shared.ErrConflict)

type billingRun struct {
	start, end time.Time
	cycle      BillingCycle
	issue, due time.Time
	actor      string
}

func (s *Service) parseRun(in GenerateInput) (billingRun, error) {
	start, err := shared.ParseDate("periodStart", in.PeriodStart)
	if err != nil {
		return billingRun{}, err
	}
	end, err := shared.ParseDate("periodEnd", in.PeriodEnd)
	if err != nil {
		return billingRun{}, err
	}
	if start.After(end) {
		return billingRun{}, shared.Invalid("periodStart must not be after periodEnd")
	}
	cycle := in.BillingCycle
	if cycle == "" {
		cycle = CycleMonthly
	}
	if cycle != CycleMonthly && cycle != CycleWeekly {
		return billingRun{}, shared.Invalid("billingCycle must be monthly or weekly")
	}
	dueDays := s.cfg.DefaultDueDays
	if in.DueDays != nil {
		dueDays = *in.DueDays
	}
	if dueDays <= 0 {
		return billingRun{}, shared.Invalid("dueDays must be positive")
	}
	issue := s.today()
	return billingRun{
		start: start,
		end:   end,
		cycle: cycle,
		issue: issue,
		due:   issue.AddDate(0, 0, dueDays),
		actor: in.Actor,
	}, nil
}

// GenerateInvoices bills every active customer for the period. Each customer
// is handled in its own transaction; failures are reported per customer and
// never stop the run.
func (s *Service) GenerateInvoices(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	run, err := s.parseRun(in)
	if err != nil {
		return GenerateResult{}, err
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.BillingRunLockKey(run.start, run.end), s.cfg.LockTTL)
		if err != nil {
			return GenerateResult{}, err
		}
		defer release()
	}
	active, err := s.customers.ListActive(ctx)
	if err != nil {
		return GenerateResult{}, shared.Persistence("ar: list active customers", err)
	}

	result := GenerateResult{Details: make([]GenerateDetail, 0, len(active))}
	for _, c := range active {
		detail := s.generateForCustomer(ctx, run, c)
		if detail.Status == DetailGenerated {
			result.Generated++
		} else {
			result.Skipped++
		}
		result.Details = append(result.Details, detail)
	}

	if result.Generated > 0 {
		s.bump(ctx)
		if s.metrics != nil {
			s.metrics.InvoicesGenerated(result.Generated)
		}
	}
	s.logger.InfoContext(ctx, "billing run finished",
		slog.String("period_start", run.start.Format(shared.DateLayout)),
		slog.String("period_end", run.end.Format(shared.DateLayout)),
		slog.Int("generated", result.Generated),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Service) generateForCustomer(ctx context.Context, run billingRun, c customers.Customer) GenerateDetail {
	detail := GenerateDetail{CustomerID: c.ID}
	if c.PlanID == nil {
		detail.Status, detail.Reason = DetailSkipped, ReasonNoPlan
		return detail
	}
	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.HasInvoiceForPeriod(ctx, c.ID, run.start, run.end)
		if err != nil {
			return err
		}
		if exists {
			return ErrInvoiceExists
		}
		plan, err := s.customers.GetPlan(ctx, *c.PlanID)
		if err != nil {
			return err
		}
		base, prorated := ProRate(plan.Price, run.start, run.end, shared.DateOf(c.CreatedAt, s.cfg.Location))
		planID := plan.ID
		inv := Invoice{
			CustomerID:   c.ID,
			PlanID:       &planID,
			BillingCycle: run.cycle,
			PeriodStart:  shared.Date(run.start),
			PeriodEnd:    shared.Date(run.end),
			IssueDate:    shared.Date(run.issue),
			DueDate:      shared.Date(run.due),
			BaseAmount:   base,
			TotalAmount:  base,
			Status:       StatusIssued,
			IsProRata:    prorated,
		}
		if inv.TotalAmount == 0 {
			inv.Status = StatusPaid
		}
		created, err = tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		if s.integration != nil {
			return s.integration.HandleInvoiceIssued(ctx, InvoiceIssuedEvent{Invoice: created})
		}
		return nil
	})
	switch {
	case err == nil:
		detail.Status = DetailGenerated
		detail.InvoiceID = &created.ID
	case errors.Is(err, ErrInvoiceExists):
		detail.Status, detail.Reason = DetailSkipped, ReasonAlreadyBilled
	default:
		s.logger.WarnContext(ctx, "invoice generation failed", slog.Int64("customer_id", c.ID), slog.Any("error", err))
		detail.Status, detail.Reason = DetailFailed, err.Error()
	}
	return detail
}

// MarkOverdue flags unpaid invoices past their due date, optionally
// suspending the owning customers. Each invoice commits on its own.
func (s *Service) MarkOverdue(ctx context.Context, in MarkOverdueInput) (MarkOverdueResult, error) {
	today := s.today()
	ids, err := s.repo.ListOverdueCandidates(ctx, today)
	if err != nil {
		return MarkOverdueResult{}, shared.Persistence("ar: list overdue candidates", err)
	}
	var result MarkOverdueResult
	for _, id := range ids {
		var marked, suspended bool
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			inv, err := tx.LockInvoice(ctx, id)
			if err != nil {
				return err
			}
			if (inv.Status != StatusIssued && inv.Status != StatusPartial) || !inv.DueDate.Time().Before(today) {
				return nil
			}
			inv.Status = StatusOverdue
			if _, err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
			marked = true
			if in.SuspendAccounts {
				suspended, err = s.customers.Suspend(ctx, inv.CustomerID)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "mark overdue failed", slog.Int64("invoice_id", id), slog.Any("error", err))
			continue
		}
		if marked {
			result.MarkedOverdue++
		}
		if suspended {
			result.Suspended++
		}
	}
	if result.MarkedOverdue > 0 {
		s.bump(ctx)
		if s.metrics != nil {
			s.metrics.InvoicesMarkedOverdue(result.MarkedOverdue)
		}
	}
	return result, nil
}

// AdjustInvoice replaces the discount and/or penalty of an invoice and posts
// the ledger difference.
func (s *Service) AdjustInvoice(ctx context.Context, in AdjustInput) (Invoice, error) {
	if in.InvoiceID <= 0 {
		return Invoice{}, shared.Invalid("ar: invoice id required")
	}
	if in.DiscountAmount != nil && *in.DiscountAmount < 0 {
		return Invoice{}, shared.Invalid("discountAmount must not be negative")
	}
	if in.PenaltyAmount != nil && *in.PenaltyAmount < 0 {
		return Invoice{}, shared.Invalid("penaltyAmount must not be negative")
	}
	var before, after Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		before, err = tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if before.Status == StatusVoid {
			return shared.Invalid("ar: invoice %d is void", before.ID)
		}
		next := before
		if in.DiscountAmount != nil {
			next.DiscountAmount = *in.DiscountAmount
		}
		if in.PenaltyAmount != nil {
			next.PenaltyAmount = *in.PenaltyAmount
		}
		next.TotalAmount = ComputeTotal(next.BaseAmount, next.DiscountAmount, next.PenaltyAmount)
		next.Status = statusAfterAdjustment(before.Status, next.TotalAmount, next.PaidAmount)
		after, err = tx.UpdateInvoice(ctx, next)
		if err != nil {
			return err
		}
		if s.integration != nil {
			err = s.integration.HandleInvoiceAdjusted(ctx, InvoiceAdjustedEvent{
				Before:     before,
				After:      after,
				AdjustedOn: s.today(),
				Actor:      in.Actor,
			})
			if err != nil {
				return err
			}
		}
		if after.Status == StatusPaid {
			return s.publishFullyPaid(ctx, after)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, shared.Persistence("ar: adjust invoice", err)
	}
	s.bump(ctx)
	s.recordAudit(ctx, in.Actor, "invoice.adjust", "invoice", after.ID, map[string]any{
		"discount_before": before.DiscountAmount,
		"discount_after":  after.DiscountAmount,
		"penalty_before":  before.PenaltyAmount,
		"penalty_after":   after.PenaltyAmount,
		"total":           after.TotalAmount,
		"status":          string(after.Status),
	})
	return after, nil
}

// VoidInvoice cancels an unpaid invoice and reverses its ledger posting.
func (s *Service) VoidInvoice(ctx context.Context, in VoidInput) (Invoice, error) {
	if in.InvoiceID <= 0 {
		return Invoice{}, shared.Invalid("ar: invoice id required")
	}
	var voided Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return shared.Invalid("ar: invoice %d is already void", inv.ID)
		}
		if inv.PaidAmount > 0 {
			return shared.Invalid("ar: invoice %d has payments and cannot be voided", inv.ID)
		}
		original := inv
		inv.Status = StatusVoid
		voided, err = tx.UpdateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		if s.integration != nil {
			return s.integration.HandleInvoiceVoided(ctx, InvoiceVoidedEvent{
				Invoice:  original,
				VoidedOn: s.today(),
				Actor:    in.Actor,
			})
		}
		return nil
	})
	if err != nil {
		return Invoice{}, shared.Persistence("ar: void invoice", err)
	}
	s.bump(ctx)
	s.recordAudit(ctx, in.Actor, "invoice.void", "invoice", voided.ID, map[string]any{
		"reason": in.Reason,
		"total":  voided.TotalAmount,
	})
	return voided, nil
}
