package jobs

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentReceipt sends the receipt of a recorded payment.
	TaskPaymentReceipt = "notify:payment_receipt"
	// TaskGLIntegrity verifies the general ledger balances.
	TaskGLIntegrity = "ledger:integrity_check"
	// TaskIdempotencyCleanup prunes expired Idempotency-Key records.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

var taskNamespace = uuid.MustParse("5b0c3f1e-8d1f-4b53-9a3c-2f6b1d7e4a90")

// PaymentReceiptPayload identifies the payment to notify about.
type PaymentReceiptPayload struct {
	PaymentID int64 `json:"paymentId"`
}

// NewPaymentReceiptTask builds the receipt task. Its id is derived from the
// payment, so a payment is queued at most once while the task is retained.
func NewPaymentReceiptTask(paymentID int64) (*asynq.Task, error) {
	data, err := json.Marshal(PaymentReceiptPayload{PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	id := uuid.NewSHA1(taskNamespace, []byte(TaskPaymentReceipt+":"+strconv.FormatInt(paymentID, 10)))
	return asynq.NewTask(TaskPaymentReceipt, data,
		asynq.TaskID(id.String()),
		asynq.MaxRetry(5),
		asynq.Queue(QueueDefault),
	), nil
}

// GLIntegrityPayload configures an integrity run.
type GLIntegrityPayload struct {
	Trigger string `json:"trigger"`
}

// NewGLIntegrityTask builds the integrity check task.
func NewGLIntegrityTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(GLIntegrityPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}

// IdempotencyCleanupPayload sets how long keys are retained, in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retentionHours"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
