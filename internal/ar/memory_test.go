package ar

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/netline-isp/billing/internal/customers"
	"github.com/netline-isp/billing/internal/shared"
)

// memoryRepo clones its state per transaction and swaps it in on success.
// Transactions run one at a time, standing in for the invoice row lock.
type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	invoices map[int64]Invoice
	payments map[int64]Payment
	nextInv  int64
	nextPay  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{invoices: map[int64]Invoice{}, payments: map[int64]Payment{}}}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		invoices: maps.Clone(s.invoices),
		payments: maps.Clone(s.payments),
		nextInv:  s.nextInv,
		nextPay:  s.nextPay,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, nil
}

func (r *memoryRepo) ListInvoices(_ context.Context, filter InvoiceFilter) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for _, inv := range r.state.invoices {
		if filter.CustomerID > 0 && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListOverdueCandidates(_ context.Context, today time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, inv := range r.state.invoices {
		if (inv.Status == StatusIssued || inv.Status == StatusPartial) && inv.DueDate.Time().Before(today) {
			ids = append(ids, inv.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) GetPayment(_ context.Context, id int64) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payments[id]
	if !ok {
		return Payment{}, shared.NotFound("payment", id)
	}
	return p, nil
}

func (r *memoryRepo) ListPayments(_ context.Context, filter PaymentFilter) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.state.payments {
		if filter.InvoiceID > 0 && p.InvoiceID != filter.InvoiceID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) MarkPaymentNotified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payments[id]
	if !ok {
		return shared.NotFound("payment", id)
	}
	p.WhatsappSent = true
	r.state.payments[id] = p
	return nil
}

type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) HasInvoiceForPeriod(_ context.Context, customerID int64, start, end time.Time) (bool, error) {
	for _, inv := range tx.state.invoices {
		if inv.CustomerID == customerID && inv.Status != StatusVoid &&
			inv.PeriodStart.Time().Equal(start) && inv.PeriodEnd.Time().Equal(end) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	tx.state.nextInv++
	inv.ID = tx.state.nextInv
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	tx.state.invoices[inv.ID] = inv
	return inv, nil
}

func (tx *memoryTx) LockInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := tx.state.invoices[id]
	if !ok {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, nil
}

func (tx *memoryTx) UpdateInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	if _, ok := tx.state.invoices[inv.ID]; !ok {
		return Invoice{}, shared.NotFound("invoice", inv.ID)
	}
	inv.UpdatedAt = time.Now()
	tx.state.invoices[inv.ID] = inv
	return inv, nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, pay Payment) (Payment, error) {
	tx.state.nextPay++
	pay.ID = tx.state.nextPay
	pay.CreatedAt = time.Now()
	tx.state.payments[pay.ID] = pay
	return pay, nil
}

// fakeDirectory stands in for the customer repository.
type fakeDirectory struct {
	customers map[int64]customers.Customer
	plans     map[int64]customers.Plan
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{customers: map[int64]customers.Customer{}, plans: map[int64]customers.Plan{}}
}

func (d *fakeDirectory) addPlan(id, price int64) {
	d.plans[id] = customers.Plan{ID: id, Name: "plan", Price: price}
}

func (d *fakeDirectory) addCustomer(id int64, planID *int64, created time.Time, status customers.Status) {
	d.customers[id] = customers.Customer{ID: id, PlanID: planID, CreatedAt: created, Status: status}
}

func (d *fakeDirectory) ListActive(context.Context) ([]customers.Customer, error) {
	var out []customers.Customer
	for _, c := range d.customers {
		if c.Status == customers.StatusActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *fakeDirectory) Get(_ context.Context, id int64) (customers.Customer, error) {
	c, ok := d.customers[id]
	if !ok {
		return customers.Customer{}, shared.NotFound("customer", id)
	}
	return c, nil
}

func (d *fakeDirectory) GetPlan(_ context.Context, id int64) (customers.Plan, error) {
	p, ok := d.plans[id]
	if !ok {
		return customers.Plan{}, shared.NotFound("plan", id)
	}
	return p, nil
}

func (d *fakeDirectory) transition(id int64, from, to customers.Status) bool {
	c, ok := d.customers[id]
	if !ok || c.Status != from {
		return false
	}
	c.Status = to
	d.customers[id] = c
	return true
}

func (d *fakeDirectory) Suspend(_ context.Context, id int64) (bool, error) {
	return d.transition(id, customers.StatusActive, customers.StatusSuspended), nil
}

func (d *fakeDirectory) Reactivate(_ context.Context, id int64) (bool, error) {
	return d.transition(id, customers.StatusSuspended, customers.StatusActive), nil
}

// recordingLedger captures integration events and can fail selected customers.
type recordingLedger struct {
	issued   []InvoiceIssuedEvent
	adjusted []InvoiceAdjustedEvent
	voided   []InvoiceVoidedEvent
	payments []PaymentRecordedEvent
	failFor  map[int64]error
}

func (l *recordingLedger) fail(customerID int64) error {
	if l.failFor == nil {
		return nil
	}
	return l.failFor[customerID]
}

func (l *recordingLedger) HandleInvoiceIssued(_ context.Context, evt InvoiceIssuedEvent) error {
	if err := l.fail(evt.Invoice.CustomerID); err != nil {
		return err
	}
	l.issued = append(l.issued, evt)
	return nil
}

func (l *recordingLedger) HandleInvoiceAdjusted(_ context.Context, evt InvoiceAdjustedEvent) error {
	l.adjusted = append(l.adjusted, evt)
	return nil
}

func (l *recordingLedger) HandleInvoiceVoided(_ context.Context, evt InvoiceVoidedEvent) error {
	l.voided = append(l.voided, evt)
	return nil
}

func (l *recordingLedger) HandlePaymentRecorded(_ context.Context, evt PaymentRecordedEvent) error {
	if err := l.fail(evt.Payment.CustomerID); err != nil {
		return err
	}
	l.payments = append(l.payments, evt)
	return nil
}

type memoryIdempotency map[string]bool

func (m memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	k := module + ":" + key
	if m[k] {
		return shared.ErrIdempotencyConflict
	}
	m[k] = true
	return nil
}

type countingNotifier struct {
	mu     sync.Mutex
	queued []int64
}

func (n *countingNotifier) EnqueuePaymentReceipt(_ context.Context, id int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = append(n.queued, id)
	return nil
}

type countingCache struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingCache) Bump(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}
