package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/internal/shared"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	InsertAccounts(ctx context.Context, seeds []ChartSeed) (int, error)
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) ([]JournalLine, error)
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	ListJournalEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a transaction, joining one already carried by ctx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// AccountByCode resolves an account by its short code.
func (r *Repository) AccountByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, code, name, type, is_active, created_at FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: account %s", shared.ErrNotFound, code)
	}
	return a, err
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, is_active, created_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, is_active, created_at FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) InsertAccounts(ctx context.Context, seeds []ChartSeed) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		tag, err := r.tx.Exec(ctx, `INSERT INTO accounts (code, name, type) VALUES ($1,$2,$3) ON CONFLICT (code) DO NOTHING`,
			seed.Code, seed.Name, string(seed.Type))
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, memo, source_type, source_id, posted_by)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (source_type, source_id) WHERE source_type IN ('invoice','payment','expense','invoice_void','reversal') DO NOTHING
RETURNING id, created_at`, in.EntryDate, in.Memo, string(in.SourceType), in.SourceID, in.PostedBy)
	entry := JournalEntry{
		EntryDate:  shared.Date(in.EntryDate),
		Memo:       in.Memo,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		PostedBy:   in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, customer_id, vendor_id, description)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, entryID, line.AccountID, line.Debit, line.Credit, line.CustomerID, line.VendorID, line.Description).Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, JournalLine{
			ID:          id,
			EntryID:     entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			CustomerID:  line.CustomerID,
			VendorID:    line.VendorID,
			Description: line.Description,
		})
	}
	return out, nil
}

const entryColumns = `e.id, e.entry_date, e.memo, e.source_type, e.source_id, e.posted_by, e.created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var entry JournalEntry
	var date time.Time
	var sourceType pgtype.Text
	var sourceID pgtype.Int8
	if err := row.Scan(&entry.ID, &date, &entry.Memo, &sourceType, &sourceID, &entry.PostedBy, &entry.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	entry.EntryDate = shared.Date(date)
	if sourceType.Valid {
		entry.SourceType = SourceType(sourceType.String)
	}
	if sourceID.Valid {
		id := sourceID.Int64
		entry.SourceID = &id
	}
	return entry, nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries e WHERE e.id=$1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.NotFound("journal entry", entryID)
		}
		return JournalEntry{}, err
	}
	lines, err := r.linesFor(ctx, []int64{entryID})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines[entryID]
	return entry, nil
}

func (r *txRepository) ListJournalEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.From != nil {
		add("e.entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("e.entry_date <= $%d", *filter.To)
	}
	if filter.SourceType != "" {
		add("e.source_type = $%d", string(filter.SourceType))
	}
	if filter.AccountID > 0 {
		add("EXISTS (SELECT 1 FROM journal_lines l WHERE l.entry_id = e.id AND l.account_id = $%d)", filter.AccountID)
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries e`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	page := filter.Page
	if page.Limit == 0 {
		page = shared.NewPagination(0, 0)
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY e.entry_date DESC, e.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var entries []JournalEntry
	var ids []int64
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entries, nil
	}
	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

func (r *txRepository) linesFor(ctx context.Context, entryIDs []int64) (map[int64][]JournalLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, l.debit, l.credit, l.customer_id, l.vendor_id, l.description,
       a.code, a.name, a.type, a.is_active, a.created_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.entry_id = ANY($1) ORDER BY l.entry_id, l.id`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]JournalLine, len(entryIDs))
	for rows.Next() {
		var line JournalLine
		var acc Account
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.CustomerID, &line.VendorID, &line.Description,
			&acc.Code, &acc.Name, &acc.Type, &acc.IsActive, &acc.CreatedAt); err != nil {
			return nil, err
		}
		acc.ID = line.AccountID
		line.Account = &acc
		out[line.EntryID] = append(out[line.EntryID], line)
	}
	return out, rows.Err()
}
