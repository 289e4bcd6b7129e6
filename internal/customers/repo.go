package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/internal/shared"
)

// Repository reads and updates subscribers. Every method joins the
// transaction carried by ctx when there is one.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a customer repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, name, phone, plan_id, status, created_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.PlanID, &c.Status, &c.CreatedAt)
	return c, err
}

// ListActive returns every active customer ordered by id.
func (r *Repository) ListActive(ctx context.Context) ([]Customer, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get loads one customer.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NotFound("customer", id)
	}
	return c, err
}

// GetPlan loads one plan.
func (r *Repository) GetPlan(ctx context.Context, id int64) (Plan, error) {
	var p Plan
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, name, price FROM plans WHERE id = $1`, id).Scan(&p.ID, &p.Name, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, shared.NotFound("plan", id)
	}
	return p, err
}

// Suspend moves an active customer to suspended. It reports whether the
// status changed.
func (r *Repository) Suspend(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, StatusActive, StatusSuspended)
}

// Reactivate moves a suspended customer back to active.
func (r *Repository) Reactivate(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, StatusSuspended, StatusActive)
}

func (r *Repository) transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE customers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
