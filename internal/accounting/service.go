package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheInvalidator is bumped whenever ledger contents change.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates posting and reversing journal entries.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  CacheInvalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheInvalidator) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, logger: slog.Default(), now: time.Now}
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

// PostJournal validates and persists a new journal entry. Nothing is written
// when validation fails or a referenced account is unusable.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if input.SourceType == "" {
		input.SourceType = SourceManual
	}
	if input.PostedBy == "" {
		input.PostedBy = "system"
	}
	input.Memo = normalizeMemo(input.Memo)
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.GetAccounts(ctx, accountIDs(input.Lines))
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			acc, ok := accounts[line.AccountID]
			if !ok {
				return shared.NotFound("account", line.AccountID)
			}
			if !acc.IsActive {
				return shared.Invalid("accounting: account %s is inactive", acc.Code)
			}
		}
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		lines, err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines)
		if err != nil {
			return err
		}
		for i := range lines {
			acc := accounts[lines[i].AccountID]
			lines[i].Account = &acc
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, shared.Persistence("accounting: post journal", err)
	}
	s.recordAudit(ctx, input.PostedBy, "journal.post", entry.ID, map[string]any{
		"source_type": string(input.SourceType),
		"source_id":   input.SourceID,
		"amount":      entryTotal(entry.Lines),
	})
	s.bump(ctx)
	return entry, nil
}

// ReverseJournal creates an offsetting entry with every line's sides swapped.
// An entry can only be reversed once.
func (s *Service) ReverseJournal(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID <= 0 {
		return JournalEntry{}, shared.Invalid("accounting: entry id required")
	}
	if input.PostedBy == "" {
		input.PostedBy = "system"
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.SourceType == SourceReversal {
			return shared.Invalid("accounting: entry %d is itself a reversal", original.ID)
		}
		date := shared.DateOf(s.now(), time.UTC)
		if input.EntryDate != nil {
			date = *input.EntryDate
		}
		sourceID := original.ID
		posting := PostingInput{
			EntryDate:  date,
			Memo:       defaultReversalMemo(normalizeMemo(input.Memo), original.ID),
			SourceType: SourceReversal,
			SourceID:   &sourceID,
			PostedBy:   input.PostedBy,
			Lines:      reverseLines(original.Lines),
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		inserted, err := tx.InsertJournalEntry(ctx, posting)
		if err != nil {
			if errors.Is(err, ErrSourceAlreadyLinked) {
				return ErrAlreadyReversed
			}
			return err
		}
		lines, err := tx.InsertJournalLines(ctx, inserted.ID, posting.Lines)
		if err != nil {
			return err
		}
		accounts := make(map[int64]*Account, len(original.Lines))
		for _, l := range original.Lines {
			accounts[l.AccountID] = l.Account
		}
		for i := range lines {
			lines[i].Account = accounts[lines[i].AccountID]
		}
		reversal = inserted
		reversal.Lines = lines
		return nil
	})
	if err != nil {
		return JournalEntry{}, shared.Persistence("accounting: reverse journal", err)
	}
	s.recordAudit(ctx, input.PostedBy, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id": reversal.ID,
	})
	s.bump(ctx)
	return reversal, nil
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, shared.Persistence("accounting: list accounts", err)
}

// SeedChart installs the default chart. Existing codes are left untouched,
// so the call is idempotent; it returns how many accounts were created.
func (s *Service) SeedChart(ctx context.Context) (int, error) {
	var inserted int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inserted, err = tx.InsertAccounts(ctx, DefaultChart())
		return err
	})
	if err != nil {
		return 0, shared.Persistence("accounting: seed chart", err)
	}
	if inserted > 0 {
		s.recordAudit(ctx, "system", "chart.seed", 0, map[string]any{"inserted": inserted})
		s.bump(ctx)
	}
	return inserted, nil
}

// GetEntry loads one journal entry with annotated lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalWithLines(ctx, id)
		return err
	})
	return entry, shared.Persistence("accounting: get entry", err)
}

// ListEntries retrieves journal entries newest first.
func (s *Service) ListEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, shared.Invalid("accounting: from must not be after to")
	}
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx, filter)
		return err
	})
	return entries, shared.Persistence("accounting: list entries", err)
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "report cache bump failed", slog.Any("error", err))
	}
}

func accountIDs(lines []PostingLineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	out := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		out = append(out, l.AccountID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			CustomerID:  line.CustomerID,
			VendorID:    line.VendorID,
			Description: line.Description,
		})
	}
	return out
}

func entryTotal(lines []JournalLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Debit
	}
	return total
}

func defaultReversalMemo(memo string, id int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", id)
}
