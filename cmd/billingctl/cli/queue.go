package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/netline-isp/billing/jobs"
)

// QueueCLI wraps manual management helpers for Asynq jobs.
type QueueCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewQueueCLI initialises the helpers against the given Redis connection.
func NewQueueCLI(opts asynq.RedisClientOpt) *QueueCLI {
	return &QueueCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *QueueCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a maintenance job by task name with its default payload.
func (c *QueueCLI) Trigger(ctx context.Context, name string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("queue cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskGLIntegrity:
		task, err = jobs.NewGLIntegrityTask("manual")
	case jobs.TaskIdempotencyCleanup:
		task, err = jobs.NewIdempotencyCleanupTask(0)
	default:
		return "", fmt.Errorf("queue cli: unsupported job %s", name)
	}
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// Stats reports the metrics of the default queue.
func (c *QueueCLI) Stats(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("queue cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	stats.Pending = info.Pending
	stats.Active = info.Active
	stats.Scheduled = info.Scheduled
	stats.Retry = info.Retry
	stats.Archived = info.Archived
	return stats, nil
}
