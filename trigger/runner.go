package trigger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-billing/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Processor is the slice of the pipeline the runner drives.
type Processor interface {
	ProcessOutstanding(ctx context.Context, batchSize int) (core.RunSummary, error)
	ReplayEvent(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error)
}

// Runner consumes queue deliveries and executes the matching pipeline entry
// point. Run is safe to start on multiple goroutines against the same
// dequeuer: batch claims are exclusive, so concurrent reconcile jobs never
// process the same event twice.
type Runner struct {
	Dequeuer  core.JobDequeuer
	Processor Processor
	Logger    core.Logger
	// RetryDelay is the nack delay applied when a job fails.
	RetryDelay time.Duration
}

func NewRunner(dequeuer core.JobDequeuer, processor Processor) *Runner {
	return &Runner{
		Dequeuer:   dequeuer,
		Processor:  processor,
		Logger:     glog.Nop(),
		RetryDelay: 30 * time.Second,
	}
}

// Run loops until the context is canceled. Per-job failures are nacked and
// never stop the loop; a dequeue failure is fatal because it means the queue
// itself is unavailable.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.Dequeuer == nil {
		return fmt.Errorf("trigger: runner requires a dequeuer")
	}
	if r.Processor == nil {
		return fmt.Errorf("trigger: runner requires a processor")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := r.Dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("trigger: dequeue: %w", err)
		}
		if delivery == nil {
			continue
		}
		r.Handle(ctx, delivery)
	}
}

// Handle runs one delivery to completion. Unknown job ids are acked so a
// misrouted message cannot poison the queue.
func (r *Runner) Handle(ctx context.Context, delivery core.JobDelivery) {
	if r == nil || delivery == nil {
		return
	}
	msg := delivery.Message()
	if msg == nil {
		r.ackQuietly(ctx, delivery, "")
		return
	}

	jobID := strings.TrimSpace(msg.JobID)
	switch jobID {
	case core.JobIDReconcile:
		r.handleReconcile(ctx, delivery, msg)
	case core.JobIDReplayEvent:
		r.handleReplay(ctx, delivery, msg)
	default:
		r.logger().Warn("unknown trigger job", "job_id", jobID)
		r.ackQuietly(ctx, delivery, jobID)
	}
}

func (r *Runner) handleReconcile(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage) {
	batchSize := intParameter(msg.Parameters, "batch_size")
	summary, err := r.Processor.ProcessOutstanding(ctx, batchSize)
	if err != nil {
		r.logger().Error("reconcile run failed", "batch_size", batchSize, "error", err)
		r.nackQuietly(ctx, delivery, msg.JobID, err)
		return
	}
	r.logger().Info("reconcile run complete",
		"claimed", summary.Claimed,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	r.ackQuietly(ctx, delivery, msg.JobID)
}

func (r *Runner) handleReplay(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage) {
	provider := stringParameter(msg.Parameters, "provider")
	eventID := stringParameter(msg.Parameters, "event_id")
	event, err := r.Processor.ReplayEvent(ctx, provider, eventID)
	if err != nil {
		// Replaying a missing or terminal event can never succeed on retry.
		if errors.Is(err, core.ErrEventNotFound) || errors.Is(err, core.ErrEventTerminal) {
			r.logger().Warn("replay rejected",
				"provider", provider,
				"event_id", eventID,
				"error", err,
			)
			r.ackQuietly(ctx, delivery, msg.JobID)
			return
		}
		r.logger().Error("replay failed", "provider", provider, "event_id", eventID, "error", err)
		r.nackQuietly(ctx, delivery, msg.JobID, err)
		return
	}
	r.logger().Info("event reset for replay",
		"provider", event.Provider,
		"event_id", event.EventID,
		"event_type", event.Type,
	)
	r.ackQuietly(ctx, delivery, msg.JobID)
}

func (r *Runner) ackQuietly(ctx context.Context, delivery core.JobDelivery, jobID string) {
	if err := delivery.Ack(ctx); err != nil {
		r.logger().Error("ack failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) nackQuietly(ctx context.Context, delivery core.JobDelivery, jobID string, cause error) {
	err := delivery.Nack(ctx, core.JobNackOptions{
		Delay:   r.retryDelay(),
		Requeue: true,
		Reason:  cause.Error(),
	})
	if err != nil {
		r.logger().Error("nack failed", "job_id", jobID, "error", err)
	}
}

func (r *Runner) retryDelay() time.Duration {
	if r != nil && r.RetryDelay > 0 {
		return r.RetryDelay
	}
	return 30 * time.Second
}

func (r *Runner) logger() core.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return glog.Nop()
}

func intParameter(params map[string]any, key string) int {
	if params == nil {
		return 0
	}
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func stringParameter(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if value, ok := params[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
