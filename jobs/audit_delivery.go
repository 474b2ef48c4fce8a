package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-sourcing/internal/jobs"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
)

// Enqueuer is the subset of *asynq.Client used by QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands events to the worker instead of calling the audit endpoint
// inline. It implements rfq.Sink.
type QueueSink struct {
	client Enqueuer
}

// NewQueueSink wraps an asynq client.
func NewQueueSink(client Enqueuer) *QueueSink {
	return &QueueSink{client: client}
}

// Deliver enqueues the event. The event ID doubles as the task ID so a
// duplicate hand-off is rejected by the broker.
func (s *QueueSink) Deliver(ctx context.Context, evt rfq.Event) error {
	if s == nil || s.client == nil {
		return &rfq.AuditSinkError{EventType: evt.Type, Err: errors.New("audit queue not configured")}
	}
	task, err := NewAuditDeliverTask(evt)
	if err != nil {
		return &rfq.AuditSinkError{EventType: evt.Type, Err: err}
	}
	if _, err := s.client.EnqueueContext(ctx, task, asynq.TaskID(evt.ID.String())); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return &rfq.AuditSinkError{EventType: evt.Type, Err: err}
	}
	return nil
}

var _ rfq.Sink = (*QueueSink)(nil)

// AuditDeliveryJob drains the audit queue into the configured sink.
type AuditDeliveryJob struct {
	Sink     rfq.Sink
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Recorder rfq.Recorder
}

// NewAuditDeliveryJob initialises the delivery handler.
func NewAuditDeliveryJob(sink rfq.Sink, logger *slog.Logger, metrics *jobmetrics.Metrics, recorder rfq.Recorder) *AuditDeliveryJob {
	return &AuditDeliveryJob{Sink: sink, Logger: logger, Metrics: metrics, Recorder: recorder}
}

// Handle delivers one event. Failures are logged and never retried.
func (j *AuditDeliveryJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sink == nil {
		return errors.New("audit delivery: handler not configured")
	}
	var payload AuditDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskAuditDeliver)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	evt := payload.Event
	err := j.Sink.Deliver(ctx, evt)
	if j.Recorder != nil {
		j.Recorder.AuditDelivered(evt.Type, err)
	}
	if err != nil {
		j.logger().Warn("audit delivery failed",
			slog.String("event", string(evt.Type)),
			slog.String("event_id", evt.ID.String()),
			slog.Int64("rfq_id", evt.RFQID),
			slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	j.logger().Debug("audit event delivered",
		slog.String("event", string(evt.Type)),
		slog.String("event_id", evt.ID.String()))
	return nil
}

func (j *AuditDeliveryJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
