// Package reporting builds the financial statements, the receivables aging
// and customer ledgers from posted history. Nothing here keeps running
// balances; every report is recomputed and cached under a versioned key.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/netline-isp/billing/internal/accounting/reports"
	"github.com/netline-isp/billing/internal/shared"
)

// RepositoryPort lists the reads and writes the reports need.
type RepositoryPort interface {
	AccountTotals(ctx context.Context, start, end *time.Time) ([]reports.AccountBalance, error)
	OpenInvoices(ctx context.Context) ([]OpenInvoice, error)
	CustomerName(ctx context.Context, customerID int64) (string, error)
	CustomerInvoices(ctx context.Context, customerID int64) ([]LedgerInvoice, error)
	CustomerPayments(ctx context.Context, customerID int64) ([]LedgerPayment, error)
	OpeningBalance(ctx context.Context, customerID int64) (*OpeningBalance, error)
	UpsertOpeningBalance(ctx context.Context, ob OpeningBalance) error
	UnbalancedEntries(ctx context.Context) ([]int64, error)
}

// Cache stores built reports keyed by the ledger version.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// AuditPort records opening balance changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder observes report build latency.
type Recorder interface {
	ReportBuilt(report string, elapsed time.Duration)
}

// Service assembles reports.
type Service struct {
	repo    RepositoryPort
	cache   Cache
	audit   AuditPort
	metrics Recorder
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
	group   singleflight.Group
}

// NewService constructs the reporting service. cache may be nil.
func NewService(repo RepositoryPort, cache Cache, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, cache: cache, logger: logger, loc: loc, now: time.Now}
}

// SetAudit wires the audit trail.
func (s *Service) SetAudit(audit AuditPort) {
	s.audit = audit
}

// SetMetrics wires build latency observation.
func (s *Service) SetMetrics(metrics Recorder) {
	s.metrics = metrics
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) today() time.Time {
	return shared.DateOf(s.now(), s.loc)
}

// cached serves a report from the cache or builds it once, collapsing
// concurrent identical requests.
func cached[T any](ctx context.Context, s *Service, report string, build func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	timed := func(ctx context.Context) (T, error) {
		start := time.Now()
		out, err := build(ctx)
		if err == nil && s.metrics != nil {
			s.metrics.ReportBuilt(report, time.Since(start))
		}
		return out, err
	}
	if s.cache == nil {
		return timed(ctx)
	}
	key, err := s.cache.BuildKey(ctx, append([]string{"reports", report}, parts...)...)
	if err != nil {
		s.logger.WarnContext(ctx, "report cache unavailable", slog.String("report", report), slog.Any("error", err))
		return timed(ctx)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var out T
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return timed(ctx)
		})
		return out, err
	})
	if err != nil {
		return zero, shared.Persistence("reporting: "+report, err)
	}
	return v.(T), nil
}

// TrialBalance sums all postings per account.
func (s *Service) TrialBalance(ctx context.Context) (reports.TrialBalance, error) {
	return cached(ctx, s, "trial-balance", func(ctx context.Context) (reports.TrialBalance, error) {
		totals, err := s.repo.AccountTotals(ctx, nil, nil)
		if err != nil {
			return reports.TrialBalance{}, err
		}
		return reports.BuildTrialBalance(totals), nil
	})
}

// ProfitAndLoss reports revenue against expenses for entries dated within
// [startDate, endDate]. Empty bounds default to the current month to date.
func (s *Service) ProfitAndLoss(ctx context.Context, startDate, endDate string) (reports.ProfitAndLoss, error) {
	today := s.today()
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := today
	var err error
	if startDate != "" {
		if start, err = shared.ParseDate("startDate", startDate); err != nil {
			return reports.ProfitAndLoss{}, err
		}
	}
	if endDate != "" {
		if end, err = shared.ParseDate("endDate", endDate); err != nil {
			return reports.ProfitAndLoss{}, err
		}
	}
	if start.After(end) {
		return reports.ProfitAndLoss{}, shared.Invalid("startDate must not be after endDate")
	}
	from, to := start.Format(shared.DateLayout), end.Format(shared.DateLayout)
	return cached(ctx, s, "profit-loss", func(ctx context.Context) (reports.ProfitAndLoss, error) {
		totals, err := s.repo.AccountTotals(ctx, &start, &end)
		if err != nil {
			return reports.ProfitAndLoss{}, err
		}
		pl := reports.BuildProfitAndLoss(totals)
		pl.StartDate, pl.EndDate = from, to
		return pl, nil
	}, from, to)
}

// BalanceSheet reports the position of all balance sheet accounts.
func (s *Service) BalanceSheet(ctx context.Context) (reports.BalanceSheet, error) {
	return cached(ctx, s, "balance-sheet", func(ctx context.Context) (reports.BalanceSheet, error) {
		totals, err := s.repo.AccountTotals(ctx, nil, nil)
		if err != nil {
			return reports.BalanceSheet{}, err
		}
		return reports.BuildBalanceSheet(totals), nil
	})
}

// Aging buckets open receivables by days past due.
func (s *Service) Aging(ctx context.Context) (AgingReport, error) {
	today := s.today()
	return cached(ctx, s, "aging", func(ctx context.Context) (AgingReport, error) {
		open, err := s.repo.OpenInvoices(ctx)
		if err != nil {
			return AgingReport{}, err
		}
		return BuildAging(open, today), nil
	}, today.Format(shared.DateLayout))
}

// CustomerLedger builds the running statement of one customer.
func (s *Service) CustomerLedger(ctx context.Context, customerID int64) (CustomerLedger, error) {
	if customerID <= 0 {
		return CustomerLedger{}, shared.Invalid("customerId must be positive")
	}
	return cached(ctx, s, "customer-ledger", func(ctx context.Context) (CustomerLedger, error) {
		var (
			name     string
			opening  *OpeningBalance
			invoices []LedgerInvoice
			payments []LedgerPayment
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			name, err = s.repo.CustomerName(gctx, customerID)
			return err
		})
		g.Go(func() (err error) {
			opening, err = s.repo.OpeningBalance(gctx, customerID)
			return err
		})
		g.Go(func() (err error) {
			invoices, err = s.repo.CustomerInvoices(gctx, customerID)
			return err
		})
		g.Go(func() (err error) {
			payments, err = s.repo.CustomerPayments(gctx, customerID)
			return err
		})
		if err := g.Wait(); err != nil {
			return CustomerLedger{}, err
		}
		return BuildCustomerLedger(customerID, name, opening, invoices, payments), nil
	}, strconv.FormatInt(customerID, 10))
}

// OpeningBalanceInput replaces a customer's opening balance.
type OpeningBalanceInput struct {
	CustomerID int64
	Amount     int64
	AsOf       string
	Actor      string
}

// SetOpeningBalance stores the opening balance shown at the top of the
// customer ledger. asOf defaults to today.
func (s *Service) SetOpeningBalance(ctx context.Context, in OpeningBalanceInput) (OpeningBalance, error) {
	if in.CustomerID <= 0 {
		return OpeningBalance{}, shared.Invalid("customerId must be positive")
	}
	asOf := s.today()
	if in.AsOf != "" {
		var err error
		if asOf, err = shared.ParseDate("asOf", in.AsOf); err != nil {
			return OpeningBalance{}, err
		}
	}
	if _, err := s.repo.CustomerName(ctx, in.CustomerID); err != nil {
		return OpeningBalance{}, shared.Persistence("reporting: load customer", err)
	}
	ob := OpeningBalance{CustomerID: in.CustomerID, Amount: in.Amount, AsOf: shared.Date(asOf)}
	if err := s.repo.UpsertOpeningBalance(ctx, ob); err != nil {
		return OpeningBalance{}, shared.Persistence("reporting: store opening balance", err)
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.WarnContext(ctx, "report cache bump failed", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "customer.opening_balance",
			Entity:   "customer",
			EntityID: strconv.FormatInt(in.CustomerID, 10),
			Meta:     map[string]any{"amount": in.Amount, "as_of": asOf.Format(shared.DateLayout)},
		})
		if err != nil {
			s.logger.WarnContext(ctx, "audit record failed", slog.Any("error", err))
		}
	}
	return ob, nil
}

// IntegrityReport summarises general ledger consistency.
type IntegrityReport struct {
	CheckedAt            time.Time `json:"checkedAt"`
	UnbalancedEntries    []int64   `json:"unbalancedEntries"`
	TrialBalanceDiff     int64     `json:"trialBalanceDiff"`
	BalanceSheetDiff     int64     `json:"balanceSheetDiff"`
	BalanceSheetBalanced bool      `json:"balanceSheetBalanced"`
}

// OK reports whether no inconsistency was found.
func (r IntegrityReport) OK() bool {
	return len(r.UnbalancedEntries) == 0 && r.TrialBalanceDiff == 0 && r.BalanceSheetDiff == 0
}

// Error describes the inconsistency, empty when OK.
func (r IntegrityReport) Error() string {
	if r.OK() {
		return ""
	}
	return fmt.Sprintf("ledger integrity: %d unbalanced entries, trial balance off by %d, balance sheet off by %d",
		len(r.UnbalancedEntries), r.TrialBalanceDiff, r.BalanceSheetDiff)
}

// CheckIntegrity recomputes the ledger from scratch, bypassing the cache.
func (s *Service) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	var (
		unbalanced []int64
		totals     []reports.AccountBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		unbalanced, err = s.repo.UnbalancedEntries(gctx)
		return err
	})
	g.Go(func() (err error) {
		totals, err = s.repo.AccountTotals(gctx, nil, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, shared.Persistence("reporting: integrity", err)
	}
	tb := reports.BuildTrialBalance(totals)
	bs := reports.BuildBalanceSheet(totals)
	report := IntegrityReport{
		CheckedAt:            s.now().UTC(),
		UnbalancedEntries:    unbalanced,
		TrialBalanceDiff:     tb.TotalDebit - tb.TotalCredit,
		BalanceSheetDiff:     bs.TotalAssets - bs.TotalLiabilitiesAndEquity,
		BalanceSheetBalanced: bs.Balanced,
	}
	if report.UnbalancedEntries == nil {
		report.UnbalancedEntries = []int64{}
	}
	return report, nil
}
