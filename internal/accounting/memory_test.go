package accounting

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// memoryRepo is a copy-on-write fake: WithTx works on a clone and only
// publishes it when fn succeeds, mimicking commit and rollback.
type memoryRepo struct {
	state *memoryState
}

type memoryState struct {
	accounts    map[int64]Account
	entries     map[int64]JournalEntry
	sources     map[string]int64
	nextAccount int64
	nextEntry   int64
	nextLine    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		accounts: make(map[int64]Account),
		entries:  make(map[int64]JournalEntry),
		sources:  make(map[string]int64),
	}}
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		accounts:    make(map[int64]Account, len(s.accounts)),
		entries:     make(map[int64]JournalEntry, len(s.entries)),
		sources:     make(map[string]int64, len(s.sources)),
		nextAccount: s.nextAccount,
		nextEntry:   s.nextEntry,
		nextLine:    s.nextLine,
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.sources {
		out.sources[k] = v
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) seed(seeds ...ChartSeed) map[string]int64 {
	ids := make(map[string]int64)
	for _, s := range seeds {
		r.state.nextAccount++
		id := r.state.nextAccount
		r.state.accounts[id] = Account{ID: id, Code: s.Code, Name: s.Name, Type: s.Type, IsActive: true}
		ids[s.Code] = id
	}
	return ids
}

func (r *memoryRepo) entryCount() int {
	return len(r.state.entries)
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) ListAccounts(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(t.state.accounts))
	for _, a := range t.state.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *memoryTx) GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account)
	for _, id := range ids {
		if a, ok := t.state.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (t *memoryTx) InsertAccounts(ctx context.Context, seeds []ChartSeed) (int, error) {
	existing := make(map[string]bool)
	for _, a := range t.state.accounts {
		existing[a.Code] = true
	}
	inserted := 0
	for _, s := range seeds {
		if existing[s.Code] {
			continue
		}
		t.state.nextAccount++
		id := t.state.nextAccount
		t.state.accounts[id] = Account{ID: id, Code: s.Code, Name: s.Name, Type: s.Type, IsActive: true}
		existing[s.Code] = true
		inserted++
	}
	return inserted, nil
}

func sourceKey(st SourceType, id int64) string {
	return string(st) + ":" + strconv.FormatInt(id, 10)
}

func (t *memoryTx) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if in.SourceType.Unique() && in.SourceID != nil {
		key := sourceKey(in.SourceType, *in.SourceID)
		if _, ok := t.state.sources[key]; ok {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		t.state.sources[key] = t.state.nextEntry + 1
	}
	t.state.nextEntry++
	entry := JournalEntry{
		ID:         t.state.nextEntry,
		EntryDate:  shared.Date(in.EntryDate),
		Memo:       in.Memo,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		PostedBy:   in.PostedBy,
		CreatedAt:  time.Now(),
	}
	t.state.entries[entry.ID] = entry
	return entry, nil
}

func (t *memoryTx) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) ([]JournalLine, error) {
	entry := t.state.entries[entryID]
	out := make([]JournalLine, 0, len(lines))
	for _, l := range lines {
		t.state.nextLine++
		acc := t.state.accounts[l.AccountID]
		out = append(out, JournalLine{
			ID:          t.state.nextLine,
			EntryID:     entryID,
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			CustomerID:  l.CustomerID,
			VendorID:    l.VendorID,
			Description: l.Description,
			Account:     &acc,
		})
	}
	entry.Lines = append([]JournalLine(nil), out...)
	t.state.entries[entryID] = entry
	return out, nil
}

func (t *memoryTx) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, ok := t.state.entries[entryID]
	if !ok {
		return JournalEntry{}, shared.NotFound("journal entry", entryID)
	}
	return entry, nil
}

func (t *memoryTx) ListJournalEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(t.state.entries))
	for _, e := range t.state.entries {
		if filter.SourceType != "" && e.SourceType != filter.SourceType {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
