package ar

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/netline-isp/billing/internal/customers"
	"github.com/netline-isp/billing/internal/shared"
	_ "github.com/netline-isp/billing/testing"
)

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	directory *fakeDirectory
	ledger    *recordingLedger
	notifier  *countingNotifier
	cache     *countingCache
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemoryRepo(),
		directory: newFakeDirectory(),
		ledger:    &recordingLedger{},
		notifier:  &countingNotifier{},
		cache:     &countingCache{},
		now:       time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.repo, f.directory, Config{Location: time.UTC, DefaultDueDays: 10}, logger)
	f.svc.SetIntegrationHandler(f.ledger)
	f.svc.AddFullyPaidHandler(customers.NewStatusHandler(f.directory, logger))
	f.svc.SetIdempotencyStore(memoryIdempotency{})
	f.svc.SetNotifier(f.notifier)
	f.svc.SetCache(f.cache)
	f.svc.WithNow(func() time.Time { return f.now })
	return f
}

func planRef(id int64) *int64 { return &id }

func (f *fixture) seedJanuary() {
	f.directory.addPlan(1, 3000)
	f.directory.addCustomer(1, planRef(1), time.Date(2024, 1, 11, 14, 0, 0, 0, time.UTC), customers.StatusActive)
	f.directory.addCustomer(2, planRef(1), time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), customers.StatusActive)
	f.directory.addCustomer(3, nil, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), customers.StatusActive)
	f.directory.addCustomer(4, planRef(1), time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), customers.StatusSuspended)
}

var january = GenerateInput{PeriodStart: "2024-01-01", PeriodEnd: "2024-01-31"}

func (f *fixture) issue(t *testing.T, customerID, base int64) Invoice {
	t.Helper()
	var inv Invoice
	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.InsertInvoice(ctx, Invoice{
			CustomerID:   customerID,
			BillingCycle: CycleMonthly,
			PeriodStart:  shared.Date(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			PeriodEnd:    shared.Date(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)),
			IssueDate:    shared.Date(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
			DueDate:      shared.Date(time.Date(2024, 2, 11, 0, 0, 0, 0, time.UTC)),
			BaseAmount:   base,
			TotalAmount:  base,
			Status:       StatusIssued,
		})
		return err
	})
	require.NoError(t, err)
	return inv
}

func TestGenerateInvoicesProRataAndSkips(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary()

	result, err := f.svc.GenerateInvoices(context.Background(), january)
	require.NoError(t, err)
	require.Equal(t, 2, result.Generated)
	require.Equal(t, 1, result.Skipped)
	require.Len(t, result.Details, 3)
	require.Equal(t, ReasonNoPlan, result.Details[2].Reason)

	inv1 := f.repo.state.invoices[*result.Details[0].InvoiceID]
	require.EqualValues(t, 1935, inv1.BaseAmount)
	require.EqualValues(t, 1935, inv1.TotalAmount)
	require.True(t, inv1.IsProRata)
	require.Equal(t, StatusIssued, inv1.Status)
	require.Equal(t, "2024-02-01", inv1.IssueDate.Time().Format(shared.DateLayout))
	require.Equal(t, "2024-02-11", inv1.DueDate.Time().Format(shared.DateLayout))

	inv2 := f.repo.state.invoices[*result.Details[1].InvoiceID]
	require.EqualValues(t, 3000, inv2.TotalAmount)
	require.False(t, inv2.IsProRata)

	require.Len(t, f.ledger.issued, 2)
	require.Equal(t, 1, f.cache.bumps)
}

func TestGenerateInvoicesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary()
	_, err := f.svc.GenerateInvoices(context.Background(), january)
	require.NoError(t, err)

	again, err := f.svc.GenerateInvoices(context.Background(), january)
	require.NoError(t, err)
	require.Zero(t, again.Generated)
	require.Equal(t, 3, again.Skipped)
	require.Equal(t, ReasonAlreadyBilled, again.Details[0].Reason)
	require.Equal(t, ReasonAlreadyBilled, again.Details[1].Reason)
	require.Len(t, f.repo.state.invoices, 2)
}

func TestGenerateInvoicesIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.seedJanuary()
	f.ledger.failFor = map[int64]error{1: shared.ErrChartNotSeeded}

	result, err := f.svc.GenerateInvoices(context.Background(), january)
	require.NoError(t, err)
	require.Equal(t, 1, result.Generated)
	require.Equal(t, DetailFailed, result.Details[0].Status)
	require.Contains(t, result.Details[0].Reason, "chart of accounts not seeded")
	require.Len(t, f.repo.state.invoices, 1)
}

func TestGenerateInvoicesZeroTotalIsPaid(t *testing.T) {
	f := newFixture(t)
	f.directory.addPlan(9, 0)
	f.directory.addCustomer(1, planRef(9), time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), customers.StatusActive)
	result, err := f.svc.GenerateInvoices(context.Background(), january)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, f.repo.state.invoices[*result.Details[0].InvoiceID].Status)
}

func TestGenerateInvoicesValidatesInput(t *testing.T) {
	f := newFixture(t)
	zero := 0
	cases := map[string]GenerateInput{
		"missing start": {PeriodEnd: "2024-01-31"},
		"bad date":      {PeriodStart: "2024-13-01", PeriodEnd: "2024-01-31"},
		"reversed":      {PeriodStart: "2024-02-01", PeriodEnd: "2024-01-31"},
		"bad cycle":     {PeriodStart: "2024-01-01", PeriodEnd: "2024-01-31", BillingCycle: "yearly"},
		"zero due days": {PeriodStart: "2024-01-01", PeriodEnd: "2024-01-31", DueDays: &zero},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.GenerateInvoices(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

func TestGenerateInvoicesRespectsRunLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := shared.NewLocker(client)

	f := newFixture(t)
	f.seedJanuary()
	f.svc.SetLocker(locker)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	release, err := locker.Acquire(context.Background(), shared.BillingRunLockKey(start, end), time.Minute)
	require.NoError(t, err)

	_, err = f.svc.GenerateInvoices(context.Background(), january)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, f.repo.state.invoices)

	release()
	result, err := f.svc.GenerateInvoices(context.Background(), january)
	require.NoError(t, err)
	require.Equal(t, 2, result.Generated)
	require.False(t, mr.Exists(shared.BillingRunLockKey(start, end)))
}

func TestRecordPaymentPartialThenPaidReactivates(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), customers.StatusSuspended)
	inv := f.issue(t, 7, 1000)

	first, err := f.svc.RecordPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, CustomerID: 7, Amount: 600, Method: MethodCash, CollectedBy: "agent",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, first.Invoice.Status)
	require.EqualValues(t, 600, first.Invoice.PaidAmount)
	require.Equal(t, customers.StatusSuspended, f.directory.customers[7].Status)

	second, err := f.svc.RecordPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, CustomerID: 7, Amount: 400, Method: MethodMobileMoney, CollectedBy: "agent",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, second.Invoice.Status)
	require.EqualValues(t, 1000, second.Invoice.PaidAmount)
	require.Equal(t, customers.StatusActive, f.directory.customers[7].Status)

	require.Len(t, f.ledger.payments, 2)
	require.Equal(t, []int64{first.Payment.ID, second.Payment.ID}, f.notifier.queued)
	require.Equal(t, 2, f.cache.bumps)
	require.Equal(t, f.now, second.Payment.ReceivedAt)
}

func TestPaymentOnPaidInvoiceReactivatesSuspendedCustomer(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), customers.StatusActive)
	inv := f.issue(t, 7, 1000)

	_, err := f.svc.RecordPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, CustomerID: 7, Amount: 1000, Method: MethodCash, CollectedBy: "agent",
	})
	require.NoError(t, err)
	// another invoice went overdue in the meantime
	_, err = f.directory.Suspend(context.Background(), 7)
	require.NoError(t, err)

	extra, err := f.svc.RecordPayment(context.Background(), PaymentInput{
		InvoiceID: inv.ID, CustomerID: 7, Amount: 100, Method: MethodCash, CollectedBy: "agent",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, extra.Invoice.Status)
	require.EqualValues(t, 1100, extra.Invoice.PaidAmount)
	require.Equal(t, customers.StatusActive, f.directory.customers[7].Status)
}

func TestConcurrentPaymentsOnOneInvoiceSerialise(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), customers.StatusActive)
	inv := f.issue(t, 7, 1000)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(context.Background(), PaymentInput{
				InvoiceID: inv.ID, CustomerID: 7, Amount: 125, Method: MethodBank, CollectedBy: "agent",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.svc.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.PaidAmount)
	require.Equal(t, StatusPaid, got.Status)
	require.Len(t, f.ledger.payments, workers)
	require.Len(t, f.notifier.queued, workers)
}

func TestRecordPaymentRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Now(), customers.StatusActive)
	inv := f.issue(t, 7, 1000)

	invalid := map[string]PaymentInput{
		"zero amount":      {InvoiceID: inv.ID, CustomerID: 7, Method: MethodCash, CollectedBy: "a"},
		"negative amount":  {InvoiceID: inv.ID, CustomerID: 7, Amount: -1, Method: MethodCash, CollectedBy: "a"},
		"no collector":     {InvoiceID: inv.ID, CustomerID: 7, Amount: 1, Method: MethodCash, CollectedBy: "  "},
		"unknown method":   {InvoiceID: inv.ID, CustomerID: 7, Amount: 1, Method: "cheque", CollectedBy: "a"},
		"missing invoice":  {CustomerID: 7, Amount: 1, Method: MethodCash, CollectedBy: "a"},
		"other customer":   {InvoiceID: inv.ID, CustomerID: 8, Amount: 1, Method: MethodCash, CollectedBy: "a"},
		"missing customer": {InvoiceID: inv.ID, Amount: 1, Method: MethodCash, CollectedBy: "a"},
	}
	for name, in := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RecordPayment(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}

	_, err := f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 999, CustomerID: 7, Amount: 1, Method: MethodCash, CollectedBy: "a"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, f.repo.state.payments)
	require.EqualValues(t, 0, f.repo.state.invoices[inv.ID].PaidAmount)
}

func TestRecordPaymentRejectsVoidInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.issue(t, 7, 1000)
	_, err := f.svc.VoidInvoice(context.Background(), VoidInput{InvoiceID: inv.ID})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: inv.ID, CustomerID: 7, Amount: 1, Method: MethodCash, CollectedBy: "a"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	inv := f.issue(t, 7, 1000)
	in := PaymentInput{InvoiceID: inv.ID, CustomerID: 7, Amount: 100, Method: MethodBank, CollectedBy: "a", IdempotencyKey: "abc"}

	_, err := f.svc.RecordPayment(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.EqualValues(t, 100, f.repo.state.invoices[inv.ID].PaidAmount)
	require.Len(t, f.repo.state.payments, 1)
}

func TestRecordPaymentRollsBackWhenPostingFails(t *testing.T) {
	f := newFixture(t)
	inv := f.issue(t, 7, 1000)
	f.ledger.failFor = map[int64]error{7: shared.ErrChartNotSeeded}

	_, err := f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: inv.ID, CustomerID: 7, Amount: 100, Method: MethodCash, CollectedBy: "a"})
	require.ErrorIs(t, err, shared.ErrChartNotSeeded)
	require.Empty(t, f.repo.state.payments)
	require.Empty(t, f.notifier.queued)
}

func TestMarkOverdueSuspends(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Now(), customers.StatusActive)
	f.directory.addCustomer(8, nil, time.Now(), customers.StatusActive)
	late := f.issue(t, 7, 1000)
	settled := f.issue(t, 8, 500)
	_, err := f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: settled.ID, CustomerID: 8, Amount: 500, Method: MethodCash, CollectedBy: "a"})
	require.NoError(t, err)

	f.now = time.Date(2024, 2, 11, 12, 0, 0, 0, time.UTC)
	result, err := f.svc.MarkOverdue(context.Background(), MarkOverdueInput{SuspendAccounts: true})
	require.NoError(t, err)
	require.Zero(t, result.MarkedOverdue, "due today is not overdue yet")

	f.now = time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)
	result, err = f.svc.MarkOverdue(context.Background(), MarkOverdueInput{SuspendAccounts: true})
	require.NoError(t, err)
	require.Equal(t, MarkOverdueResult{MarkedOverdue: 1, Suspended: 1}, result)
	require.Equal(t, StatusOverdue, f.repo.state.invoices[late.ID].Status)
	require.Equal(t, StatusPaid, f.repo.state.invoices[settled.ID].Status)
	require.Equal(t, customers.StatusSuspended, f.directory.customers[7].Status)
	require.Equal(t, customers.StatusActive, f.directory.customers[8].Status)

	result, err = f.svc.MarkOverdue(context.Background(), MarkOverdueInput{SuspendAccounts: true})
	require.NoError(t, err)
	require.Zero(t, result.MarkedOverdue)
}

func TestAdjustInvoiceRecomputesTotalAndStatus(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Now(), customers.StatusSuspended)
	inv := f.issue(t, 7, 1000)
	amount := func(v int64) *int64 { return &v }

	adjusted, err := f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: inv.ID, DiscountAmount: amount(200)})
	require.NoError(t, err)
	require.EqualValues(t, 800, adjusted.TotalAmount)
	require.Equal(t, StatusIssued, adjusted.Status)

	_, err = f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: inv.ID, CustomerID: 7, Amount: 800, Method: MethodCash, CollectedBy: "a"})
	require.NoError(t, err)

	adjusted, err = f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: inv.ID, PenaltyAmount: amount(100)})
	require.NoError(t, err)
	require.EqualValues(t, 900, adjusted.TotalAmount)
	require.EqualValues(t, 200, adjusted.DiscountAmount)
	require.Equal(t, StatusPartial, adjusted.Status)

	f.directory.transition(7, customers.StatusActive, customers.StatusSuspended)
	adjusted, err = f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: inv.ID, DiscountAmount: amount(1500)})
	require.NoError(t, err)
	require.Zero(t, adjusted.TotalAmount)
	require.Equal(t, StatusPaid, adjusted.Status)
	require.Equal(t, customers.StatusActive, f.directory.customers[7].Status)
	require.Len(t, f.ledger.adjusted, 3)
	require.EqualValues(t, 900, f.ledger.adjusted[2].Before.TotalAmount)

	_, err = f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: inv.ID, PenaltyAmount: amount(-1)})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: 404, PenaltyAmount: amount(1)})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAdjustPaidInvoiceReactivatesSuspendedCustomer(t *testing.T) {
	f := newFixture(t)
	f.directory.addCustomer(7, nil, time.Now(), customers.StatusActive)
	inv := f.issue(t, 7, 1000)
	_, err := f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: inv.ID, CustomerID: 7, Amount: 1000, Method: MethodCash, CollectedBy: "a"})
	require.NoError(t, err)
	f.directory.transition(7, customers.StatusActive, customers.StatusSuspended)

	discount := int64(100)
	adjusted, err := f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: inv.ID, DiscountAmount: &discount})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, adjusted.Status)
	require.Equal(t, customers.StatusActive, f.directory.customers[7].Status)
}

func TestAdjustOverdueInvoiceStaysOverdue(t *testing.T) {
	f := newFixture(t)
	inv := f.issue(t, 7, 1000)
	f.now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.MarkOverdue(context.Background(), MarkOverdueInput{})
	require.NoError(t, err)

	penalty := int64(50)
	adjusted, err := f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: inv.ID, PenaltyAmount: &penalty})
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, adjusted.Status)
	require.EqualValues(t, 1050, adjusted.TotalAmount)
}

func TestVoidInvoice(t *testing.T) {
	f := newFixture(t)
	unpaid := f.issue(t, 7, 1000)
	paid := f.issue(t, 8, 1000)
	_, err := f.svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: paid.ID, CustomerID: 8, Amount: 10, Method: MethodCash, CollectedBy: "a"})
	require.NoError(t, err)

	voided, err := f.svc.VoidInvoice(context.Background(), VoidInput{InvoiceID: unpaid.ID, Reason: "duplicate"})
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)
	require.Len(t, f.ledger.voided, 1)
	require.Equal(t, StatusIssued, f.ledger.voided[0].Invoice.Status)

	_, err = f.svc.VoidInvoice(context.Background(), VoidInput{InvoiceID: unpaid.ID})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.VoidInvoice(context.Background(), VoidInput{InvoiceID: paid.ID})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	penalty := int64(5)
	_, err = f.svc.AdjustInvoice(context.Background(), AdjustInput{InvoiceID: unpaid.ID, PenaltyAmount: &penalty})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
