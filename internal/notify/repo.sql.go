package notify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/internal/shared"
)

// Repository loads receipts from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadReceipt joins a payment with its invoice and customer.
func (r *Repository) LoadReceipt(ctx context.Context, paymentID int64) (Receipt, error) {
	var rc Receipt
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT p.id, p.invoice_id, p.customer_id, c.name, c.phone, p.amount, p.method,
	GREATEST(i.total_amount - i.paid_amount, 0), p.received_at, p.whatsapp_sent
FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN customers c ON c.id = p.customer_id
WHERE p.id = $1`, paymentID).Scan(&rc.PaymentID, &rc.InvoiceID, &rc.CustomerID, &rc.CustomerName, &rc.Phone,
		&rc.Amount, &rc.Method, &rc.Outstanding, &rc.ReceivedAt, &rc.Notified)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, shared.NotFound("payment", paymentID)
	}
	return rc, err
}
