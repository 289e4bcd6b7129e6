package ar

import (
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// InvoiceStatus enumerates invoice states.
type InvoiceStatus string

const (
	StatusDraft   InvoiceStatus = "draft"
	StatusIssued  InvoiceStatus = "issued"
	StatusPaid    InvoiceStatus = "paid"
	StatusPartial InvoiceStatus = "partial"
	StatusOverdue InvoiceStatus = "overdue"
	StatusVoid    InvoiceStatus = "void"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPaid, StatusPartial, StatusOverdue, StatusVoid:
		return true
	}
	return false
}

// BillingCycle is the invoicing cadence.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleWeekly  BillingCycle = "weekly"
)

// PaymentMethod is how a payment was received.
type PaymentMethod string

const (
	MethodCash        PaymentMethod = "cash"
	MethodBank        PaymentMethod = "bank"
	MethodMobileMoney PaymentMethod = "mobile_money"
	MethodOnline      PaymentMethod = "online"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBank, MethodMobileMoney, MethodOnline:
		return true
	}
	return false
}

// Invoice is a customer bill for one service period.
type Invoice struct {
	ID             int64         `json:"id"`
	CustomerID     int64         `json:"customerId"`
	PlanID         *int64        `json:"planId,omitempty"`
	BillingCycle   BillingCycle  `json:"billingCycle"`
	PeriodStart    shared.Date   `json:"periodStart"`
	PeriodEnd      shared.Date   `json:"periodEnd"`
	IssueDate      shared.Date   `json:"issueDate"`
	DueDate        shared.Date   `json:"dueDate"`
	BaseAmount     int64         `json:"baseAmount"`
	DiscountAmount int64         `json:"discountAmount"`
	PenaltyAmount  int64         `json:"penaltyAmount"`
	TotalAmount    int64         `json:"totalAmount"`
	PaidAmount     int64         `json:"paidAmount"`
	Status         InvoiceStatus `json:"status"`
	IsProRata      bool          `json:"isProRata"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Outstanding is the unpaid remainder, never negative.
func (inv Invoice) Outstanding() int64 {
	if inv.PaidAmount >= inv.TotalAmount {
		return 0
	}
	return inv.TotalAmount - inv.PaidAmount
}

// Payment is a receipt applied to one invoice.
type Payment struct {
	ID           int64         `json:"id"`
	InvoiceID    int64         `json:"invoiceId"`
	CustomerID   int64         `json:"customerId"`
	Amount       int64         `json:"amount"`
	Method       PaymentMethod `json:"method"`
	CollectedBy  string        `json:"collectedBy"`
	Reference    *string       `json:"reference,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
	WhatsappSent bool          `json:"whatsappSent"`
	ReceivedAt   time.Time     `json:"receivedAt"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// ComputeTotal returns base - discount + penalty clamped at zero.
func ComputeTotal(base, discount, penalty int64) int64 {
	total := base - discount + penalty
	if total < 0 {
		return 0
	}
	return total
}

// statusAfterPayment derives the status once a payment has been applied.
func statusAfterPayment(total, paid int64) InvoiceStatus {
	if paid >= total {
		return StatusPaid
	}
	return StatusPartial
}

// statusAfterAdjustment reconciles status with a new total. Overdue invoices
// keep their flag until settled.
func statusAfterAdjustment(current InvoiceStatus, total, paid int64) InvoiceStatus {
	switch {
	case paid >= total:
		return StatusPaid
	case current == StatusOverdue:
		return StatusOverdue
	case paid > 0:
		return StatusPartial
	default:
		return StatusIssued
	}
}

// GenerateInput parameterises a billing run.
type GenerateInput struct {
	PeriodStart  string       `json:"periodStart" validate:"required"`
	PeriodEnd    string       `json:"periodEnd" validate:"required"`
	BillingCycle BillingCycle `json:"billingCycle"`
	DueDays      *int         `json:"dueDays"`
	Actor        string       `json:"-"`
}

// Generation outcomes reported per customer.
const (
	DetailGenerated = "generated"
	DetailSkipped   = "skipped"
	DetailFailed    = "failed"

	ReasonNoPlan        = "no plan"
	ReasonAlreadyBilled = "already billed"
)

// GenerateDetail reports what happened to one customer.
type GenerateDetail struct {
	CustomerID int64  `json:"customerId"`
	InvoiceID  *int64 `json:"invoiceId,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// GenerateResult summarises a billing run.
type GenerateResult struct {
	Generated int              `json:"generated"`
	Skipped   int              `json:"skipped"`
	Details   []GenerateDetail `json:"details"`
}

// MarkOverdueInput controls the overdue sweep.
type MarkOverdueInput struct {
	SuspendAccounts bool   `json:"suspendAccounts"`
	Actor           string `json:"-"`
}

// MarkOverdueResult summarises the sweep.
type MarkOverdueResult struct {
	MarkedOverdue int `json:"markedOverdue"`
	Suspended     int `json:"suspended"`
	Failed        int `json:"failed"`
}

// AdjustInput carries optional replacement amounts.
type AdjustInput struct {
	InvoiceID      int64
	DiscountAmount *int64
	PenaltyAmount  *int64
	Actor          string
}

// VoidInput identifies the invoice to cancel.
type VoidInput struct {
	InvoiceID int64
	Reason    string
	Actor     string
}

// PaymentInput records a payment against an invoice.
type PaymentInput struct {
	InvoiceID      int64
	CustomerID     int64
	Amount         int64
	Method         PaymentMethod
	CollectedBy    string
	Reference      *string
	Notes          *string
	ReceivedAt     *time.Time
	IdempotencyKey string
}

// PaymentResult is the created payment with the updated invoice.
type PaymentResult struct {
	Payment Payment `json:"payment"`
	Invoice Invoice `json:"invoice"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	CustomerID  int64
	Status      InvoiceStatus
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Page        shared.Pagination
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	CustomerID int64
	InvoiceID  int64
	Page       shared.Pagination
}
