package accounting

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netline-isp/billing/internal/platform/httpx"
	"github.com/netline-isp/billing/internal/shared"
)

// Handler wires chart and journal endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts/seed", h.seedChart)
	r.Get("/journals", h.listJournals)
	r.Post("/journals", h.postJournal)
	r.Get("/journals/{id}", h.getJournal)
	r.Post("/journals/{id}/reverse", h.reverseJournal)
}

type journalLineRequest struct {
	AccountID   int64  `json:"accountId" validate:"required"`
	Debit       int64  `json:"debit"`
	Credit      int64  `json:"credit"`
	CustomerID  *int64 `json:"customerId"`
	VendorID    *int64 `json:"vendorId"`
	Description string `json:"description"`
}

type postJournalRequest struct {
	EntryDate  shared.Date          `json:"entryDate"`
	Memo       string               `json:"memo" validate:"max=500"`
	SourceType string               `json:"sourceType" validate:"max=50"`
	SourceID   *int64               `json:"sourceId"`
	PostedBy   string               `json:"postedBy"`
	Lines      []journalLineRequest `json:"lines" validate:"required,dive"`
}

type reverseRequest struct {
	EntryDate shared.Date `json:"entryDate"`
	Memo      string      `json:"memo"`
	PostedBy  string      `json:"postedBy"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) seedChart(w http.ResponseWriter, r *http.Request) {
	inserted, err := h.service.SeedChart(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("chart of accounts seeded", slog.Int("inserted", inserted))
	httpx.JSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	source, err := ParseManualSource(req.SourceType)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	date := req.EntryDate.Time()
	if date.IsZero() {
		date = shared.DateOf(time.Now(), time.UTC)
	}
	input := PostingInput{
		EntryDate:  date,
		Memo:       req.Memo,
		SourceType: source,
		SourceID:   req.SourceID,
		PostedBy:   req.PostedBy,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PostingLineInput{
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			CustomerID:  line.CustomerID,
			VendorID:    line.VendorID,
			Description: line.Description,
		})
	}
	entry, err := h.service.PostJournal(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		SourceType: SourceType(q.Get("sourceType")),
		Page:       shared.PaginationFromQuery(q),
	}
	if v := q.Get("from"); v != "" {
		from, err := shared.ParseDate("from", v)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := shared.ParseDate("to", v)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		filter.To = &to
	}
	accountID, err := httpx.QueryInt64(r, "accountId")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter.AccountID = accountID
	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	input := ReverseInput{EntryID: id, Memo: req.Memo, PostedBy: req.PostedBy}
	if d := req.EntryDate.Time(); !d.IsZero() {
		input.EntryDate = &d
	}
	entry, err := h.service.ReverseJournal(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
