package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrEventNotFound        = errors.New("core: webhook event not found")
	ErrEventTerminal        = errors.New("core: webhook event is in a terminal status")
	ErrOrderNotFound        = errors.New("core: order not found")
	ErrSubscriptionNotFound = errors.New("core: subscription not found")
)

// EventStore owns the durable webhook event table.
//
// ClaimBatch atomically moves up to limit outstanding events (pending or
// failed past their retry gate, or processing with an expired lease) into
// processing and returns them ordered by received_at ascending. The claim and
// the fetch are a single step so concurrent invocations never hand the same
// event to two processors.
type EventStore interface {
	Append(ctx context.Context, in AppendEventInput) (AppendEventResult, error)
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]WebhookEvent, error)
	// MarkProcessed records a terminal success or skipped outcome for a
	// claimed event. Outcomes are idempotent writes; re-marking a terminal
	// event is a no-op.
	MarkProcessed(ctx context.Context, id string, outcome ProcessStatus) error
	// MarkFailed records a failed attempt, schedules the next one, and moves
	// the event to dead_letter once maxAttempts is exhausted.
	MarkFailed(ctx context.Context, id string, cause error, nextAttemptAt time.Time, maxAttempts int) error
	// ResetForReplay returns a failed or dead-letter event to pending for one
	// more pass. success and skipped events are never reset.
	ResetForReplay(ctx context.Context, provider string, eventID string) (WebhookEvent, error)
	Get(ctx context.Context, provider string, eventID string) (WebhookEvent, error)
	// ListOutstanding reads up to limit non-terminal events ordered by
	// received_at ascending, without claiming them.
	ListOutstanding(ctx context.Context, limit int) ([]WebhookEvent, error)
}

// OrderStore owns the reconciled orders table.
type OrderStore interface {
	Upsert(ctx context.Context, in UpsertOrderInput) (Order, error)
	GetByCheckoutID(ctx context.Context, providerCheckoutID string) (Order, error)
}

// SubscriptionStore owns the reconciled subscriptions table.
type SubscriptionStore interface {
	Upsert(ctx context.Context, in UpsertSubscriptionInput) (Subscription, error)
	GetBySubscriptionID(ctx context.Context, providerSubscriptionID string) (Subscription, error)
}

// EntitlementStore owns the entitlements table. Grant has insert-or-ignore
// semantics; the boolean result reports whether a new row was created.
type EntitlementStore interface {
	Grant(ctx context.Context, in GrantEntitlementInput) (Entitlement, bool, error)
	Has(ctx context.Context, userID string, novelID string, scope string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Entitlement, error)
}

// StoreProvider bundles the pipeline's stores for dependency injection.
type StoreProvider interface {
	EventStore() EventStore
	OrderStore() OrderStore
	SubscriptionStore() SubscriptionStore
	EntitlementStore() EntitlementStore
}

// RepositoryStoreFactory builds a StoreProvider from a persistence client or
// raw database handle.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

// Job identifiers for the queue-triggered entry points.
const (
	JobIDReconcile   = "billing.reconcile"
	JobIDReplayEvent = "billing.event.replay"
)

// JobExecutionMessage is the queue-agnostic trigger message contract.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

// JobWorkerEvent mirrors one queue worker lifecycle notification.
type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// JobWorkerHook receives worker lifecycle callbacks, mainly for logging and
// run accounting around trigger executions.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
