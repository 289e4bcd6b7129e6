package expenses

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// RepositoryPort abstracts transactional persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, page shared.Pagination) ([]Expense, error)
}

// AuditPort records expense events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator is bumped after ledger-affecting writes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service records expenses and posts them to the ledger in one transaction.
type Service struct {
	repo        RepositoryPort
	integration IntegrationHandler
	audit       AuditPort
	cache       CacheInvalidator
	loc         *time.Location
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the expense service.
func NewService(repo RepositoryPort, integration IntegrationHandler, audit AuditPort, cache CacheInvalidator, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, integration: integration, audit: audit, cache: cache, loc: loc, logger: slog.Default(), now: time.Now}
}

// SetLogger replaces the logger used for post-commit warnings.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

var validMethods = map[string]struct{}{"cash": {}, "bank": {}, "mobile_money": {}, "online": {}}

// Record persists an expense and its Dr expense / Cr cash entry atomically.
func (s *Service) Record(ctx context.Context, input RecordInput) (Expense, error) {
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.RecordedBy = strings.TrimSpace(input.RecordedBy)
	switch {
	case input.Category == "":
		return Expense{}, shared.Invalid("expenses: category required")
	case input.Amount <= 0:
		return Expense{}, shared.Invalid("expenses: amount must be positive")
	case input.RecordedBy == "":
		return Expense{}, shared.Invalid("expenses: recordedBy required")
	}
	if _, ok := validMethods[input.Method]; !ok {
		return Expense{}, shared.Invalid("expenses: unknown method %q", input.Method)
	}
	spentOn := input.SpentOn.Time()
	if spentOn.IsZero() {
		spentOn = shared.DateOf(s.now(), s.loc)
	}
	exp := Expense{
		Category:    input.Category,
		Amount:      input.Amount,
		Method:      input.Method,
		VendorID:    input.VendorID,
		Description: strings.TrimSpace(input.Description),
		SpentOn:     shared.Date(spentOn),
		RecordedBy:  input.RecordedBy,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err := tx.InsertExpense(ctx, exp)
		if err != nil {
			return err
		}
		exp = saved
		if s.integration != nil {
			return s.integration.HandleExpenseRecorded(ctx, ExpenseRecordedEvent{Expense: saved})
		}
		return nil
	})
	if err != nil {
		return Expense{}, shared.Persistence("expenses: record", err)
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.WarnContext(ctx, "report cache bump failed", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    exp.RecordedBy,
			Action:   "expense.record",
			Entity:   "expense",
			EntityID: strconv.FormatInt(exp.ID, 10),
			Meta:     map[string]any{"category": exp.Category, "amount": exp.Amount},
			At:       s.now(),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "audit record failed", slog.Int64("expense_id", exp.ID), slog.Any("error", err))
		}
	}
	return exp, nil
}

// List returns recorded expenses, newest first.
func (s *Service) List(ctx context.Context, page shared.Pagination) ([]Expense, error) {
	items, err := s.repo.List(ctx, page)
	return items, shared.Persistence("expenses: list", err)
}
