package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/netline-isp/billing/internal/accounting"
	"github.com/netline-isp/billing/internal/ar"
	"github.com/netline-isp/billing/internal/expenses"
	"github.com/netline-isp/billing/internal/shared"
)

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	PostJournal(ctx context.Context, input accounting.PostingInput) (accounting.JournalEntry, error)
}

// AccountDirectory resolves chart accounts by code.
type AccountDirectory interface {
	AccountByCode(ctx context.Context, code string) (accounting.Account, error)
}

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger   Ledger
	accounts AccountDirectory
	roles    AccountRoles
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, accounts AccountDirectory, roles AccountRoles) *Hooks {
	return &Hooks{ledger: ledger, accounts: accounts, roles: roles.withDefaults()}
}

// resolve looks up the account for a role. optional roles report ok=false when
// the account is missing; required ones fail with ErrChartNotSeeded.
func (h *Hooks) resolve(ctx context.Context, role, code string, required bool) (int64, bool, error) {
	acc, err := h.accounts.AccountByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			if required {
				return 0, false, fmt.Errorf("%w: %s account %s missing", shared.ErrChartNotSeeded, role, code)
			}
			return 0, false, nil
		}
		return 0, false, err
	}
	return acc.ID, true, nil
}

func (h *Hooks) post(ctx context.Context, input accounting.PostingInput) error {
	if input.SourceID == nil {
		return errors.New("integration: source id required")
	}
	if len(input.Lines) == 0 {
		return nil
	}
	_, err := h.ledger.PostJournal(ctx, input)
	if errors.Is(err, accounting.ErrSourceAlreadyLinked) {
		return nil
	}
	return err
}

// invoiceLegs builds the signed per-account amounts of an invoice posting:
// receivable and discount on the debit side, revenue and late fees on the credit side.
func (h *Hooks) invoiceLegs(ctx context.Context, inv ar.Invoice) (legs, error) {
	receivable, _, err := h.resolve(ctx, "receivable", h.roles.Receivable, true)
	if err != nil {
		return nil, err
	}
	revenue, _, err := h.resolve(ctx, "service revenue", h.roles.ServiceRevenue, true)
	if err != nil {
		return nil, err
	}
	discountLeg := min(inv.DiscountAmount, inv.BaseAmount+inv.PenaltyAmount)
	penaltyLeg := inv.PenaltyAmount
	revenueCredit := inv.TotalAmount + discountLeg - penaltyLeg

	var out legs
	out = out.add(receivable, inv.TotalAmount)
	if discountLeg > 0 {
		discount, ok, err := h.resolve(ctx, "discount", h.roles.Discount, false)
		if err != nil {
			return nil, err
		}
		if ok {
			out = out.add(discount, discountLeg)
		} else {
			revenueCredit -= discountLeg
		}
	}
	var lateFee int64
	var lateFeeOK bool
	if penaltyLeg > 0 {
		lateFee, lateFeeOK, err = h.resolve(ctx, "late fee", h.roles.LateFee, false)
		if err != nil {
			return nil, err
		}
		if !lateFeeOK {
			revenueCredit += penaltyLeg
		}
	}
	out = out.add(revenue, -revenueCredit)
	if lateFeeOK {
		out = out.add(lateFee, -penaltyLeg)
	}
	return out, nil
}

// HandleInvoiceIssued posts Dr receivable / Cr revenue for a new invoice.
func (h *Hooks) HandleInvoiceIssued(ctx context.Context, evt ar.InvoiceIssuedEvent) error {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return nil
	}
	inv := evt.Invoice
	legs, err := h.invoiceLegs(ctx, inv)
	if err != nil {
		return err
	}
	return h.post(ctx, accounting.PostingInput{
		EntryDate:  inv.IssueDate.Time(),
		Memo:       fmt.Sprintf("Invoice #%d %s..%s", inv.ID, formatDate(inv.PeriodStart.Time()), formatDate(inv.PeriodEnd.Time())),
		SourceType: accounting.SourceInvoice,
		SourceID:   ptr(inv.ID),
		PostedBy:   "billing",
		Lines:      legs.lines(customerTag(inv.CustomerID), fmt.Sprintf("Invoice #%d", inv.ID)),
	})
}

// HandleInvoiceAdjusted posts the difference between the old and new invoice postings.
func (h *Hooks) HandleInvoiceAdjusted(ctx context.Context, evt ar.InvoiceAdjustedEvent) error {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return nil
	}
	before, err := h.invoiceLegs(ctx, evt.Before)
	if err != nil {
		return err
	}
	after, err := h.invoiceLegs(ctx, evt.After)
	if err != nil {
		return err
	}
	delta := after.minus(before)
	inv := evt.After
	return h.post(ctx, accounting.PostingInput{
		EntryDate:  evt.AdjustedOn,
		Memo:       fmt.Sprintf("Adjustment to invoice #%d", inv.ID),
		SourceType: accounting.SourceInvoiceAdjustment,
		SourceID:   ptr(inv.ID),
		PostedBy:   actorOr(evt.Actor, "billing"),
		Lines:      delta.lines(customerTag(inv.CustomerID), fmt.Sprintf("Invoice #%d adjustment", inv.ID)),
	})
}

// HandleInvoiceVoided posts the exact reversal of the invoice's current posting.
func (h *Hooks) HandleInvoiceVoided(ctx context.Context, evt ar.InvoiceVoidedEvent) error {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return nil
	}
	inv := evt.Invoice
	current, err := h.invoiceLegs(ctx, inv)
	if err != nil {
		return err
	}
	return h.post(ctx, accounting.PostingInput{
		EntryDate:  evt.VoidedOn,
		Memo:       fmt.Sprintf("Void of invoice #%d", inv.ID),
		SourceType: accounting.SourceInvoiceVoid,
		SourceID:   ptr(inv.ID),
		PostedBy:   actorOr(evt.Actor, "billing"),
		Lines:      current.negate().lines(customerTag(inv.CustomerID), fmt.Sprintf("Invoice #%d void", inv.ID)),
	})
}

// HandlePaymentRecorded posts Dr cash-equivalent / Cr receivable.
func (h *Hooks) HandlePaymentRecorded(ctx context.Context, evt ar.PaymentRecordedEvent) error {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return nil
	}
	pay := evt.Payment
	if pay.Amount <= 0 {
		return nil
	}
	cash, _, err := h.resolve(ctx, "cash", h.roles.cashCode(string(pay.Method)), true)
	if err != nil {
		return err
	}
	receivable, _, err := h.resolve(ctx, "receivable", h.roles.Receivable, true)
	if err != nil {
		return err
	}
	var out legs
	out = out.add(cash, pay.Amount).add(receivable, -pay.Amount)
	return h.post(ctx, accounting.PostingInput{
		EntryDate:  pay.ReceivedAt,
		Memo:       fmt.Sprintf("Payment #%d for invoice #%d", pay.ID, pay.InvoiceID),
		SourceType: accounting.SourcePayment,
		SourceID:   ptr(pay.ID),
		PostedBy:   actorOr(pay.CollectedBy, "billing"),
		Lines:      out.lines(customerTag(pay.CustomerID), fmt.Sprintf("Payment via %s", pay.Method)),
	})
}

// HandleExpenseRecorded posts Dr expense / Cr cash-equivalent.
func (h *Hooks) HandleExpenseRecorded(ctx context.Context, evt expenses.ExpenseRecordedEvent) error {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return nil
	}
	exp := evt.Expense
	if exp.Amount <= 0 {
		return nil
	}
	expense, _, err := h.resolve(ctx, "expense", h.roles.expenseCode(exp.Category), true)
	if err != nil {
		return err
	}
	cash, _, err := h.resolve(ctx, "cash", h.roles.cashCode(exp.Method), true)
	if err != nil {
		return err
	}
	var out legs
	out = out.add(expense, exp.Amount).add(cash, -exp.Amount)
	return h.post(ctx, accounting.PostingInput{
		EntryDate:  exp.SpentOn.Time(),
		Memo:       fmt.Sprintf("Expense #%d %s", exp.ID, exp.Category),
		SourceType: accounting.SourceExpense,
		SourceID:   ptr(exp.ID),
		PostedBy:   actorOr(exp.RecordedBy, "system"),
		Lines:      out.lines(vendorTag(exp.VendorID), exp.Description),
	})
}

func formatDate(t time.Time) string {
	return t.Format(shared.DateLayout)
}

var (
	_ ar.IntegrationHandler       = (*Hooks)(nil)
	_ expenses.IntegrationHandler = (*Hooks)(nil)
)
