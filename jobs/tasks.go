package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit events handed off by the comparison outbox.
	QueueAudit = "audit"
	// TaskAuditDeliver forwards one comparison event to the audit sink.
	TaskAuditDeliver = "rfq:audit:deliver"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// AuditDeliverPayload wraps the event envelope.
type AuditDeliverPayload struct {
	Event rfq.Event `json:"event"`
}

// NewAuditDeliverTask builds a delivery task. Delivery is attempted exactly once.
func NewAuditDeliverTask(evt rfq.Event) (*asynq.Task, error) {
	body, err := json.Marshal(AuditDeliverPayload{Event: evt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditDeliver, body, asynq.Queue(QueueAudit), asynq.MaxRetry(0)), nil
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
