package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/netline-isp/billing/internal/jobs"
	"github.com/netline-isp/billing/internal/reporting"
)

// IntegrityChecker recomputes the ledger consistency report.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) (reporting.IntegrityReport, error)
}

// GLIntegrityJob verifies that every journal entry balances and that the
// balance sheet equation holds.
type GLIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob wires dependencies for the integrity handler.
func NewGLIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Run executes one check. Inconsistencies are logged and counted but do not
// fail the run; only errors reading the ledger do.
func (j *GLIntegrityJob) Run(ctx context.Context) (report reporting.IntegrityReport, err error) {
	if j == nil || j.Checker == nil {
		return reporting.IntegrityReport{}, errors.New("gl integrity: checker not configured")
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	report, err = j.Checker.CheckIntegrity(ctx)
	if err != nil {
		j.Logger.Error("gl integrity check failed", slog.Any("error", err))
		return reporting.IntegrityReport{}, err
	}
	if report.OK() {
		j.Logger.Info("gl integrity check passed", slog.String("job", "gl_integrity"))
		return report, nil
	}
	j.Metrics.AddAnomalies("unbalanced_entry", len(report.UnbalancedEntries))
	if report.TrialBalanceDiff != 0 {
		j.Metrics.AddAnomalies("trial_balance", 1)
	}
	if report.BalanceSheetDiff != 0 {
		j.Metrics.AddAnomalies("balance_sheet", 1)
	}
	j.Logger.Error("gl integrity check found inconsistencies",
		slog.Any("unbalanced_entries", report.UnbalancedEntries),
		slog.Int64("trial_balance_diff", report.TrialBalanceDiff),
		slog.Int64("balance_sheet_diff", report.BalanceSheetDiff))
	return report, nil
}

// Handle processes TaskGLIntegrity.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}
