package reporting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netline-isp/billing/internal/platform/httpx"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report and customer ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/profit-loss", h.profitLoss)
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/aging", h.aging)
	})
	r.Get("/customer-ledger/{customerId}", h.customerLedger)
	r.Put("/customer-ledger/{customerId}/opening-balance", h.setOpeningBalance)
}

type openingBalanceRequest struct {
	Amount    *int64 `json:"amount" validate:"required"`
	AsOf      string `json:"asOf"`
	UpdatedBy string `json:"updatedBy"`
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.TrialBalance(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) profitLoss(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pl, err := h.service.ProfitAndLoss(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	bs, err := h.service.BalanceSheet(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Aging(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) customerLedger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "customerId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ledger, err := h.service.CustomerLedger(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) setOpeningBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "customerId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req openingBalanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ob, err := h.service.SetOpeningBalance(r.Context(), OpeningBalanceInput{
		CustomerID: id,
		Amount:     *req.Amount,
		AsOf:       req.AsOf,
		Actor:      req.UpdatedBy,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ob)
}
