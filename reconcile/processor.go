package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-billing/core"
	glog "github.com/goliatone/go-logger/glog"
)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 2 * time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 5 * time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Processor claims a bounded batch of outstanding events and runs each one
// through the dispatch table, strictly sequentially. Sequential execution is
// deliberate: volume is low, and it sidesteps ordering hazards between events
// for the same checkout or subscription id.
type Processor struct {
	Events        core.EventStore
	Orders        *OrderReconciler
	Subscriptions *SubscriptionReconciler
	Entitlements  *EntitlementReconciler
	RetryPolicy   RetryPolicy
	BatchSize     int
	MaxAttempts   int
	ClaimLease    time.Duration
	// EventTimeout bounds the reconciler writes for one event; a timeout is
	// recorded as a retryable failure.
	EventTimeout time.Duration
	Logger       core.Logger
	Now          func() time.Time
}

func NewProcessor(
	events core.EventStore,
	orders *OrderReconciler,
	subscriptions *SubscriptionReconciler,
	entitlements *EntitlementReconciler,
) *Processor {
	return &Processor{
		Events:        events,
		Orders:        orders,
		Subscriptions: subscriptions,
		Entitlements:  entitlements,
		RetryPolicy:   ExponentialRetryPolicy{},
		BatchSize:     25,
		MaxAttempts:   8,
		ClaimLease:    30 * time.Second,
		EventTimeout:  10 * time.Second,
		Logger:        glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ProcessOutstanding runs one batch. Per-event failures are recorded on the
// event row and never abort the run; only a claim failure is fatal. The call
// is safe under concurrent invocation because claims are exclusive.
func (p *Processor) ProcessOutstanding(ctx context.Context, batchSize int) (core.RunSummary, error) {
	if p == nil || p.Events == nil {
		return core.RunSummary{}, fmt.Errorf("reconcile: processor requires an event store")
	}
	if p.Orders == nil || p.Subscriptions == nil || p.Entitlements == nil {
		return core.RunSummary{}, fmt.Errorf("reconcile: processor requires all three reconcilers")
	}

	limit := batchSize
	if limit <= 0 {
		limit = p.batchSize()
	}
	events, err := p.Events.ClaimBatch(ctx, limit, p.claimLease())
	if err != nil {
		return core.RunSummary{}, err
	}

	summary := core.RunSummary{Claimed: len(events)}
	for _, event := range events {
		outcome, eventErr := p.processOne(ctx, event)
		switch outcome {
		case core.EventStatusSuccess:
			summary.Processed++
		case core.EventStatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		if eventErr != nil {
			p.logger().Error("webhook event processing failed",
				"provider", event.Provider,
				"event_id", event.EventID,
				"event_type", event.Type,
				"attempts", event.Attempts+1,
				"error", eventErr,
			)
		}
	}
	return summary, nil
}

// ReplayEvent resets a failed or dead-letter event to pending for the next
// run. Terminal success/skipped events are never replayed.
func (p *Processor) ReplayEvent(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	if p == nil || p.Events == nil {
		return core.WebhookEvent{}, fmt.Errorf("reconcile: processor requires an event store")
	}
	provider = strings.TrimSpace(provider)
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return core.WebhookEvent{}, fmt.Errorf("reconcile: provider and event id are required")
	}
	return p.Events.ResetForReplay(ctx, provider, eventID)
}

func (p *Processor) processOne(ctx context.Context, event core.WebhookEvent) (core.ProcessStatus, error) {
	kind := core.ParseEventKind(event.Type)
	plan := PlanFor(kind, event.Payload)

	if plan.Outcome == OutcomeSkipped {
		if err := p.Events.MarkProcessed(ctx, event.ID, core.EventStatusSkipped); err != nil {
			return core.EventStatusFailed, err
		}
		return core.EventStatusSkipped, nil
	}

	if err := p.apply(ctx, event, plan); err != nil {
		return core.EventStatusFailed, p.recordFailure(ctx, event, err)
	}
	if err := p.Events.MarkProcessed(ctx, event.ID, core.EventStatusSuccess); err != nil {
		return core.EventStatusFailed, err
	}
	return core.EventStatusSuccess, nil
}

func (p *Processor) apply(ctx context.Context, event core.WebhookEvent, plan Plan) error {
	runCtx := ctx
	if timeout := p.eventTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if plan.OrderStatus != "" {
		if err := p.Orders.Apply(runCtx, event, plan); err != nil {
			return err
		}
	}
	if plan.SubscriptionStatus != "" {
		if err := p.Subscriptions.Apply(runCtx, event, plan); err != nil {
			return err
		}
	}
	if plan.Grant {
		if err := p.Entitlements.Apply(runCtx, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) recordFailure(ctx context.Context, event core.WebhookEvent, cause error) error {
	nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(event.Attempts + 1))
	if err := p.Events.MarkFailed(ctx, event.ID, cause, nextAttemptAt, p.maxAttempts()); err != nil {
		p.logger().Error("failed to record event failure",
			"provider", event.Provider,
			"event_id", event.EventID,
			"error", err,
		)
	}
	return cause
}

func (p *Processor) batchSize() int {
	if p != nil && p.BatchSize > 0 {
		return p.BatchSize
	}
	return 25
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) eventTimeout() time.Duration {
	if p != nil {
		return p.EventTimeout
	}
	return 0
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
