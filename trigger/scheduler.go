package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-billing/core"
)

// DedupPolicyDrop tells the queue to drop a message whose idempotency key is
// already enqueued.
const DedupPolicyDrop = "drop"

// Scheduler enqueues pipeline jobs. Reconcile triggers carry a time-windowed
// idempotency key so a burst of webhook receipts coalesces into one run per
// window instead of one run per receipt.
type Scheduler struct {
	Enqueuer core.JobEnqueuer
	// CoalesceWindow sizes the reconcile idempotency window.
	CoalesceWindow time.Duration
	Now            func() time.Time
}

func NewScheduler(enqueuer core.JobEnqueuer) *Scheduler {
	return &Scheduler{
		Enqueuer:       enqueuer,
		CoalesceWindow: time.Minute,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// EnqueueReconcile schedules one batch run. batchSize <= 0 leaves the
// processor default in effect.
func (s *Scheduler) EnqueueReconcile(ctx context.Context, batchSize int) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("trigger: scheduler requires an enqueuer")
	}
	params := map[string]any{}
	if batchSize > 0 {
		params["batch_size"] = batchSize
	}
	window := s.now().Truncate(s.coalesceWindow())
	return s.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          core.JobIDReconcile,
		Parameters:     params,
		IdempotencyKey: fmt.Sprintf("%s:%d", core.JobIDReconcile, window.Unix()),
		DedupPolicy:    DedupPolicyDrop,
	})
}

// EnqueueReplay schedules a replay of one stored event.
func (s *Scheduler) EnqueueReplay(ctx context.Context, provider string, eventID string) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("trigger: scheduler requires an enqueuer")
	}
	provider = strings.TrimSpace(provider)
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return fmt.Errorf("trigger: provider and event id are required")
	}
	return s.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: core.JobIDReplayEvent,
		Parameters: map[string]any{
			"provider": provider,
			"event_id": eventID,
		},
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", core.JobIDReplayEvent, provider, eventID),
		DedupPolicy:    DedupPolicyDrop,
	})
}

func (s *Scheduler) coalesceWindow() time.Duration {
	if s != nil && s.CoalesceWindow > 0 {
		return s.CoalesceWindow
	}
	return time.Minute
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
