package ar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read committed transaction, joining one carried by ctx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ar repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceColumns = `id, customer_id, plan_id, billing_cycle, period_start, period_end, issue_date, due_date,
base_amount, discount_amount, penalty_amount, total_amount, paid_amount, status, is_pro_rata, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                    Invoice
		start, end, issue, due time.Time
	)
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.PlanID, &inv.BillingCycle, &start, &end, &issue, &due,
		&inv.BaseAmount, &inv.DiscountAmount, &inv.PenaltyAmount, &inv.TotalAmount, &inv.PaidAmount,
		&inv.Status, &inv.IsProRata, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.PeriodStart = shared.Date(start)
	inv.PeriodEnd = shared.Date(end)
	inv.IssueDate = shared.Date(issue)
	inv.DueDate = shared.Date(due)
	return inv, nil
}

const paymentColumns = `id, invoice_id, customer_id, amount, method, collected_by, reference, notes, whatsapp_sent, received_at, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.CustomerID, &p.Amount, &p.Method, &p.CollectedBy,
		&p.Reference, &p.Notes, &p.WhatsappSent, &p.ReceivedAt, &p.CreatedAt)
	return p, err
}

// GetInvoice loads one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, err
}

// ListInvoices returns invoices filtered by customer, status and period.
func (r *Repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CustomerID > 0 {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.PeriodStart != nil {
		add("period_start >= $%d", *filter.PeriodStart)
	}
	if filter.PeriodEnd != nil {
		add("period_end <= $%d", *filter.PeriodEnd)
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	page := filter.Page
	if page.Limit <= 0 {
		page = shared.NewPagination(0, 0)
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY period_start DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListOverdueCandidates returns ids of issued or partial invoices due before today.
func (r *Repository) ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id FROM invoices WHERE status IN ('issued','partial') AND due_date < $1 ORDER BY due_date, id`, today)
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

// GetPayment loads one payment.
func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.NotFound("payment", id)
	}
	return p, err
}

// ListPayments returns payments newest first.
func (r *Repository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	var (
		where []string
		args  []any
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.InvoiceID > 0 {
		args = append(args, filter.InvoiceID)
		where = append(where, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	page := filter.Page
	if page.Limit <= 0 {
		page = shared.NewPagination(0, 0)
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY received_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPaymentNotified sets whatsapp_sent for a payment.
func (r *Repository) MarkPaymentNotified(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE payments SET whatsapp_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("payment", id)
	}
	return nil
}

func (tx *txRepo) HasInvoiceForPeriod(ctx context.Context, customerID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := tx.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE customer_id = $1 AND period_start = $2 AND period_end = $3 AND status <> 'void')`,
		customerID, start, end).Scan(&exists)
	return exists, err
}

func (tx *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := tx.tx.QueryRow(ctx, `INSERT INTO invoices (customer_id, plan_id, billing_cycle, period_start, period_end, issue_date, due_date,
base_amount, discount_amount, penalty_amount, total_amount, paid_amount, status, is_pro_rata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING `+invoiceColumns,
		inv.CustomerID, inv.PlanID, string(inv.BillingCycle), inv.PeriodStart.Time(), inv.PeriodEnd.Time(),
		inv.IssueDate.Time(), inv.DueDate.Time(), inv.BaseAmount, inv.DiscountAmount, inv.PenaltyAmount,
		inv.TotalAmount, inv.PaidAmount, string(inv.Status), inv.IsProRata)
	created, err := scanInvoice(row)
	if db.IsUniqueViolation(err, "uq_invoices_customer_period") {
		return Invoice{}, ErrInvoiceExists
	}
	return created, err
}

func (tx *txRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(tx.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, err
}

func (tx *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := tx.tx.QueryRow(ctx, `UPDATE invoices SET discount_amount = $2, penalty_amount = $3, total_amount = $4,
paid_amount = $5, status = $6, updated_at = NOW()
WHERE id = $1 RETURNING `+invoiceColumns,
		inv.ID, inv.DiscountAmount, inv.PenaltyAmount, inv.TotalAmount, inv.PaidAmount, string(inv.Status))
	updated, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NotFound("invoice", inv.ID)
	}
	return updated, err
}

func (tx *txRepo) InsertPayment(ctx context.Context, pay Payment) (Payment, error) {
	row := tx.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, customer_id, amount, method, collected_by, reference, notes, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+paymentColumns,
		pay.InvoiceID, pay.CustomerID, pay.Amount, string(pay.Method), pay.CollectedBy, pay.Reference, pay.Notes, pay.ReceivedAt)
	return scanPayment(row)
}
