package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/netline-isp/billing/internal/jobs"
	"github.com/netline-isp/billing/internal/notify"
	"github.com/netline-isp/billing/internal/reporting"
	"github.com/netline-isp/billing/internal/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPaymentReceiptTaskPayload(t *testing.T) {
	a, err := NewPaymentReceiptTask(42)
	require.NoError(t, err)
	require.Equal(t, TaskPaymentReceipt, a.Type())

	var payload PaymentReceiptPayload
	require.NoError(t, json.Unmarshal(a.Payload(), &payload))
	require.EqualValues(t, 42, payload.PaymentID)
}

type stubReceipts struct {
	sent []int64
	err  error
}

func (s *stubReceipts) SendPaymentReceipt(_ context.Context, id int64) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, id)
	return nil
}

func TestPaymentReceiptJob(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	sender := &stubReceipts{}
	job := NewPaymentReceiptJob(sender, quietLogger(), metrics)
	task, err := NewPaymentReceiptTask(7)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{7}, sender.sent)

	err = job.Handle(context.Background(), asynq.NewTask(TaskPaymentReceipt, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	sender.err = shared.NotFound("payment", 7)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
	sender.err = notify.ErrNoRecipient
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)

	sender.err = errors.New("gateway down")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubChecker struct {
	report reporting.IntegrityReport
	err    error
}

func (s stubChecker) CheckIntegrity(context.Context) (reporting.IntegrityReport, error) {
	return s.report, s.err
}

func TestGLIntegrityJobCountsAnomalies(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewGLIntegrityJob(stubChecker{report: reporting.IntegrityReport{
		UnbalancedEntries: []int64{3, 9},
		BalanceSheetDiff:  15,
	}}, quietLogger(), metrics)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.OK())

	families, err := registry.Gather()
	require.NoError(t, err)
	kinds := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "billing_ledger_anomalies_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			kinds[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"unbalanced_entry": 2, "balance_sheet": 1}, kinds)

	failing := NewGLIntegrityJob(stubChecker{err: errors.New("db down")}, quietLogger(), metrics)
	require.Error(t, failing.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, nil)))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, http.StatusOK, 4},
		{"queue missing", stubInspector{err: asynq.ErrQueueNotFound}, http.StatusOK, 0},
		{"redis down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, quietLogger()).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				var body queueHealth
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				require.Equal(t, tc.pending, body.Pending)
			}
		})
	}
}

type stubPruner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (s *stubPruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.removed, s.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	pruner := &stubPruner{removed: 3}
	job := NewIdempotencyCleanupJob(pruner, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(24)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, pruner.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyRetention, pruner.olderThan)

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	pruner.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}
