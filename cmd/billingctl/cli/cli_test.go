package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netline-isp/billing/internal/ar"
	"github.com/netline-isp/billing/internal/reporting"
	"github.com/netline-isp/billing/jobs"
)

type stubBilling struct {
	generated ar.GenerateInput
	overdue   ar.MarkOverdueInput
}

func (s *stubBilling) GenerateInvoices(_ context.Context, in ar.GenerateInput) (ar.GenerateResult, error) {
	s.generated = in
	return ar.GenerateResult{Generated: 2, Skipped: 1}, nil
}

func (s *stubBilling) MarkOverdue(_ context.Context, in ar.MarkOverdueInput) (ar.MarkOverdueResult, error) {
	s.overdue = in
	return ar.MarkOverdueResult{MarkedOverdue: 3, Suspended: 1}, nil
}

type stubChart struct{ calls int }

func (s *stubChart) SeedChart(context.Context) (int, error) {
	s.calls++
	return 20, nil
}

type stubIntegrity struct{ report reporting.IntegrityReport }

func (s stubIntegrity) CheckIntegrity(context.Context) (reporting.IntegrityReport, error) {
	return s.report, nil
}

type stubQueue struct{ triggered []string }

func (s *stubQueue) Trigger(_ context.Context, name string) (string, error) {
	s.triggered = append(s.triggered, name)
	return "task-1", nil
}

func (s *stubQueue) Stats(context.Context) (QueueStats, error) {
	return QueueStats{Queue: jobs.QueueDefault, Pending: 2}, nil
}

type stubMigrator struct {
	up   int
	down []int
}

func (m *stubMigrator) Up() error { m.up++; return nil }

func (m *stubMigrator) Down(steps int) error {
	m.down = append(m.down, steps)
	return nil
}

type harness struct {
	billing  *stubBilling
	chart    *stubChart
	queue    *stubQueue
	migrator *stubMigrator
	report   reporting.IntegrityReport
	opened   int
	closed   int
}

func newHarness() *harness {
	return &harness{
		billing:  &stubBilling{},
		chart:    &stubChart{},
		queue:    &stubQueue{},
		migrator: &stubMigrator{},
		report:   reporting.IntegrityReport{BalanceSheetBalanced: true},
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (*Backend, error) {
		h.opened++
		return &Backend{
			Billing:   h.billing,
			Chart:     h.chart,
			Integrity: stubIntegrity{report: h.report},
			Queue:     h.queue,
			Close:     func() { h.closed++ },
		}, nil
	}
	root := NewRootCommand(open, h.migrator)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "generate", "--start", "2024-01-01", "--end", "2024-01-31", "--due-days", "14")
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", h.billing.generated.PeriodStart)
	require.Equal(t, "2024-01-31", h.billing.generated.PeriodEnd)
	require.NotNil(t, h.billing.generated.DueDays)
	require.Equal(t, 14, *h.billing.generated.DueDays)
	require.Equal(t, "billingctl", h.billing.generated.Actor)

	var res ar.GenerateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 2, res.Generated)
	require.Equal(t, 1, h.closed)
}

func TestGenerateUsesDefaultDueDays(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "generate", "--start", "2024-01-01", "--end", "2024-01-31", "--cycle", "Weekly")
	require.NoError(t, err)
	require.Nil(t, h.billing.generated.DueDays)
	require.Equal(t, ar.CycleWeekly, h.billing.generated.BillingCycle)
}

func TestGenerateRequiresPeriod(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "generate", "--start", "2024-01-01")
	require.Error(t, err)
	require.Zero(t, h.opened)
}

func TestMarkOverdueCommand(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "mark-overdue", "--suspend")
	require.NoError(t, err)
	require.True(t, h.billing.overdue.SuspendAccounts)
	require.Contains(t, out, `"markedOverdue": 3`)
}

func TestSeedChartCommand(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "seed-chart")
	require.NoError(t, err)
	require.Equal(t, 1, h.chart.calls)
	require.Contains(t, out, "seeded 20 account(s)")
}

func TestMigrateCommands(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "migrate", "up")
	require.NoError(t, err)
	_, err = h.run(t, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	require.Equal(t, 1, h.migrator.up)
	require.Equal(t, []int{2}, h.migrator.down)
	require.Zero(t, h.opened)
}

func TestIntegrityCommand(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "integrity")
	require.NoError(t, err)

	h.report = reporting.IntegrityReport{UnbalancedEntries: []int64{9}, BalanceSheetBalanced: true}
	out, err := h.run(t, "integrity")
	require.True(t, errors.Is(err, ErrIntegrity))
	require.Contains(t, out, "unbalancedEntries")
}

func TestJobsCommands(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "jobs", "trigger", jobs.TaskGLIntegrity)
	require.NoError(t, err)
	require.Equal(t, []string{jobs.TaskGLIntegrity}, h.queue.triggered)
	require.Contains(t, out, "task-1")

	out, err = h.run(t, "jobs", "stats")
	require.NoError(t, err)
	require.Contains(t, out, `"pending": 2`)
}
