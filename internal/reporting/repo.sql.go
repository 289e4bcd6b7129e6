package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netline-isp/billing/internal/accounting/reports"
	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/internal/shared"
)

// Repository reads ledger and receivable history from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AccountTotals sums journal lines per active account. Nil bounds are open.
func (r *Repository) AccountTotals(ctx context.Context, start, end *time.Time) ([]reports.AccountBalance, error) {
	const query = `SELECT a.id, a.code, a.name, a.type, COALESCE(t.debit, 0), COALESCE(t.credit, 0)
FROM accounts a
LEFT JOIN (
	SELECT l.account_id, SUM(l.debit) AS debit, SUM(l.credit) AS credit
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.entry_id
	WHERE ($1::date IS NULL OR e.entry_date >= $1::date)
	  AND ($2::date IS NULL OR e.entry_date <= $2::date)
	GROUP BY l.account_id
) t ON t.account_id = a.id
WHERE a.is_active
ORDER BY a.code`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reports.AccountBalance
	for rows.Next() {
		var b reports.AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// OpenInvoices lists receivables that still carry an outstanding amount.
func (r *Repository) OpenInvoices(ctx context.Context) ([]OpenInvoice, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT i.id, i.customer_id, c.name, i.due_date, i.total_amount - i.paid_amount
FROM invoices i
JOIN customers c ON c.id = i.customer_id
WHERE i.status IN ('issued','partial','overdue') AND i.total_amount > i.paid_amount
ORDER BY i.customer_id, i.due_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpenInvoice
	for rows.Next() {
		var inv OpenInvoice
		if err := rows.Scan(&inv.InvoiceID, &inv.CustomerID, &inv.CustomerName, &inv.DueDate, &inv.Outstanding); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CustomerName resolves a customer's display name.
func (r *Repository) CustomerName(ctx context.Context, customerID int64) (string, error) {
	var name string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT name FROM customers WHERE id = $1`, customerID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.NotFound("customer", customerID)
	}
	return name, err
}

// CustomerInvoices returns every invoice of a customer.
func (r *Repository) CustomerInvoices(ctx context.Context, customerID int64) ([]LedgerInvoice, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, period_start, period_end, total_amount, status, created_at
FROM invoices WHERE customer_id = $1 ORDER BY created_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerInvoice
	for rows.Next() {
		var inv LedgerInvoice
		if err := rows.Scan(&inv.ID, &inv.PeriodStart, &inv.PeriodEnd, &inv.TotalAmount, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CustomerPayments returns every payment of a customer.
func (r *Repository) CustomerPayments(ctx context.Context, customerID int64) ([]LedgerPayment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, invoice_id, amount, method, reference, received_at
FROM payments WHERE customer_id = $1 ORDER BY received_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerPayment
	for rows.Next() {
		var p LedgerPayment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpeningBalance loads the opening balance of a customer, nil when unset.
func (r *Repository) OpeningBalance(ctx context.Context, customerID int64) (*OpeningBalance, error) {
	var (
		ob   = OpeningBalance{CustomerID: customerID}
		asOf time.Time
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT amount, as_of FROM opening_balances WHERE customer_id = $1`, customerID).
		Scan(&ob.Amount, &asOf)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ob.AsOf = shared.Date(asOf)
	return &ob, nil
}

// UpsertOpeningBalance stores or replaces a customer's opening balance.
func (r *Repository) UpsertOpeningBalance(ctx context.Context, ob OpeningBalance) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO opening_balances (customer_id, amount, as_of)
VALUES ($1, $2, $3)
ON CONFLICT (customer_id) DO UPDATE SET amount = EXCLUDED.amount, as_of = EXCLUDED.as_of, updated_at = NOW()`,
		ob.CustomerID, ob.Amount, ob.AsOf.Time())
	return err
}

// UnbalancedEntries returns ids of journal entries whose debits and credits differ.
func (r *Repository) UnbalancedEntries(ctx context.Context) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT e.id
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY e.id
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0) OR COUNT(l.id) < 2
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
