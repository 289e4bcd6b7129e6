package ar

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netline-isp/billing/internal/platform/httpx"
	"github.com/netline-isp/billing/internal/shared"
)

// IdempotencyHeader carries the client-supplied key for payment submissions.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages billing and payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/billing/generate", h.generate)
	r.Post("/billing/mark-overdue", h.markOverdue)

	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Patch("/invoices/{id}/adjustment", h.adjustInvoice)
	r.Post("/invoices/{id}/void", h.voidInvoice)

	r.Get("/payments", h.listPayments)
	r.Post("/payments", h.recordPayment)
	r.Get("/payments/{id}", h.getPayment)
}

type generateRequest struct {
	PeriodStart  string `json:"periodStart" validate:"required"`
	PeriodEnd    string `json:"periodEnd" validate:"required"`
	BillingCycle string `json:"billingCycle" validate:"omitempty,oneof=monthly weekly"`
	DueDays      *int   `json:"dueDays" validate:"omitempty,gt=0"`
}

type markOverdueRequest struct {
	SuspendAccounts bool `json:"suspendAccounts"`
}

type adjustRequest struct {
	DiscountAmount *int64 `json:"discountAmount" validate:"omitempty,gte=0"`
	PenaltyAmount  *int64 `json:"penaltyAmount" validate:"omitempty,gte=0"`
	AdjustedBy     string `json:"adjustedBy"`
}

type voidRequest struct {
	Reason   string `json:"reason" validate:"max=500"`
	VoidedBy string `json:"voidedBy"`
}

type paymentRequest struct {
	InvoiceID   int64      `json:"invoiceId" validate:"required,gt=0"`
	CustomerID  int64      `json:"customerId" validate:"required,gt=0"`
	Amount      int64      `json:"amount" validate:"required,gt=0"`
	Method      string     `json:"method" validate:"required,oneof=cash bank mobile_money online"`
	CollectedBy string     `json:"collectedBy" validate:"required"`
	Reference   *string    `json:"reference"`
	Notes       *string    `json:"notes"`
	ReceivedAt  *time.Time `json:"receivedAt"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.GenerateInvoices(r.Context(), GenerateInput{
		PeriodStart:  req.PeriodStart,
		PeriodEnd:    req.PeriodEnd,
		BillingCycle: BillingCycle(req.BillingCycle),
		DueDays:      req.DueDays,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) markOverdue(w http.ResponseWriter, r *http.Request) {
	var req markOverdueRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	result, err := h.service.MarkOverdue(r.Context(), MarkOverdueInput{SuspendAccounts: req.SuspendAccounts})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customerID, err := httpx.QueryInt64(r, "customerId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter := InvoiceFilter{
		CustomerID: customerID,
		Status:     InvoiceStatus(strings.ToLower(q.Get("status"))),
		Page:       shared.PaginationFromQuery(q),
	}
	if v := q.Get("periodStart"); v != "" {
		start, err := shared.ParseDate("periodStart", v)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		filter.PeriodStart = &start
	}
	if v := q.Get("periodEnd"); v != "" {
		end, err := shared.ParseDate("periodEnd", v)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		filter.PeriodEnd = &end
	}
	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) adjustInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.AdjustInvoice(r.Context(), AdjustInput{
		InvoiceID:      id,
		DiscountAmount: req.DiscountAmount,
		PenaltyAmount:  req.PenaltyAmount,
		Actor:          req.AdjustedBy,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req voidRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	inv, err := h.service.VoidInvoice(r.Context(), VoidInput{InvoiceID: id, Reason: req.Reason, Actor: req.VoidedBy})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.RecordPayment(r.Context(), PaymentInput{
		InvoiceID:      req.InvoiceID,
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		Method:         PaymentMethod(req.Method),
		CollectedBy:    req.CollectedBy,
		Reference:      req.Reference,
		Notes:          req.Notes,
		ReceivedAt:     req.ReceivedAt,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customerId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	invoiceID, err := httpx.QueryInt64(r, "invoiceId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), PaymentFilter{
		CustomerID: customerID,
		InvoiceID:  invoiceID,
		Page:       shared.PaginationFromQuery(r.URL.Query()),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pay, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pay)
}
