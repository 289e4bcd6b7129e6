package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/netline-isp/billing/internal/jobs"
	"github.com/netline-isp/billing/internal/notify"
	"github.com/netline-isp/billing/internal/shared"
)

// ReceiptSender delivers one payment receipt.
type ReceiptSender interface {
	SendPaymentReceipt(ctx context.Context, paymentID int64) error
}

// PaymentReceiptJob handles TaskPaymentReceipt.
type PaymentReceiptJob struct {
	Sender  ReceiptSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPaymentReceiptJob wires dependencies for the receipt handler.
func NewPaymentReceiptJob(sender ReceiptSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *PaymentReceiptJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentReceiptJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle sends the receipt. Payments that no longer exist or customers
// without a phone number are dropped without retry.
func (j *PaymentReceiptJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("payment receipt: handler not configured")
	}
	var payload PaymentReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.PaymentID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskPaymentReceipt)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger.With(slog.Int64("payment_id", payload.PaymentID))
	if err := j.Sender.SendPaymentReceipt(ctx, payload.PaymentID); err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, notify.ErrNoRecipient) {
			logger.Warn("payment receipt dropped", slog.Any("error", err))
			return errors.Join(err, asynq.SkipRetry)
		}
		logger.Error("payment receipt failed", slog.Any("error", err))
		return err
	}
	logger.Info("payment receipt sent")
	return nil
}
