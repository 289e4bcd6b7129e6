package expenses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/internal/shared"
)

// Repository persists expenses in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertExpense(ctx context.Context, exp Expense) (Expense, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a transaction, joining one already carried by ctx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("expenses repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) InsertExpense(ctx context.Context, exp Expense) (Expense, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO expenses (category, amount, method, vendor_id, description, spent_on, recorded_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		exp.Category, exp.Amount, exp.Method, exp.VendorID, exp.Description, exp.SpentOn.Time(), exp.RecordedBy).
		Scan(&exp.ID, &exp.CreatedAt)
	return exp, err
}

// List returns expenses ordered by spend date descending.
func (r *Repository) List(ctx context.Context, page shared.Pagination) ([]Expense, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, category, amount, method, vendor_id, description, spent_on, recorded_by, created_at
FROM expenses ORDER BY spent_on DESC, id DESC LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var exp Expense
		var spentOn time.Time
		if err := rows.Scan(&exp.ID, &exp.Category, &exp.Amount, &exp.Method, &exp.VendorID, &exp.Description, &spentOn, &exp.RecordedBy, &exp.CreatedAt); err != nil {
			return nil, err
		}
		exp.SpentOn = shared.Date(spentOn)
		out = append(out, exp)
	}
	return out, rows.Err()
}
