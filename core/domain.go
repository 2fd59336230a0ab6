package core

import "time"

// ProcessStatus tracks where a webhook event sits in its processing lifecycle.
type ProcessStatus string

const (
	EventStatusPending    ProcessStatus = "pending"
	EventStatusProcessing ProcessStatus = "processing"
	EventStatusSuccess    ProcessStatus = "success"
	EventStatusFailed     ProcessStatus = "failed"
	EventStatusSkipped    ProcessStatus = "skipped"
	EventStatusDeadLetter ProcessStatus = "dead_letter"
)

// Terminal reports whether the status excludes the event from future claims.
func (s ProcessStatus) Terminal() bool {
	switch s {
	case EventStatusSuccess, EventStatusSkipped, EventStatusDeadLetter:
		return true
	}
	return false
}

// WebhookEvent is one durably stored provider notification. Rows are created
// once by the webhook receiver and are immutable except for the processing
// status fields; they are never deleted and double as the audit trail.
type WebhookEvent struct {
	ID             string
	Provider       string
	EventID        string
	Type           string
	Payload        map[string]any
	ReceivedAt     time.Time
	Status         ProcessStatus
	Attempts       int
	NextAttemptAt  *time.Time
	LeaseExpiresAt *time.Time
	ProcessedAt    *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppendEventInput carries the upstream receiver's write. (provider, event_id)
// is the provider-assigned dedupe key.
type AppendEventInput struct {
	Provider   string
	EventID    string
	Type       string
	Payload    map[string]any
	ReceivedAt time.Time
}

// AppendEventResult reports whether the append hit an already-stored event.
type AppendEventResult struct {
	Event   WebhookEvent
	Deduped bool
}

const (
	OrderStatusCompleted = "completed"
	OrderStatusRefunded  = "refunded"
	OrderStatusDisputed  = "disputed"
)

// Order is the reconciled view of a one-time purchase, keyed by the
// provider's checkout id. Later events for the same checkout overwrite the
// lifecycle fields; last write wins by processing order.
type Order struct {
	ID                 string
	ProviderCheckoutID string
	Status             string
	Amount             *float64
	Currency           string
	PaidAt             *time.Time
	UserID             string
	EventReceivedAt    *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type UpsertOrderInput struct {
	ProviderCheckoutID string
	Status             string
	Amount             *float64
	Currency           string
	PaidAt             *time.Time
	UserID             string
	EventReceivedAt    time.Time
}

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusExpired  = "expired"
	SubscriptionStatusPaused   = "paused"
	SubscriptionStatusPastDue  = "past_due"
)

// Subscription is the reconciled view of a recurring plan. Status is the
// provider's latest reported label, not a derived state machine.
type Subscription struct {
	ID                     string
	ProviderSubscriptionID string
	Status                 string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	UserID                 string
	EventReceivedAt        *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type UpsertSubscriptionInput struct {
	ProviderSubscriptionID string
	Status                 string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	UserID                 string
	EventReceivedAt        time.Time
}

// EntitlementScopeWholeBook is the only grant kind the checkout path creates.
const EntitlementScopeWholeBook = "whole book"

// Entitlement grants a user access to a novel. Rows are insert-only: a grant,
// once created, is never updated or removed by this pipeline.
type Entitlement struct {
	ID        string
	UserID    string
	NovelID   string
	Scope     string
	CreatedAt time.Time
}

type GrantEntitlementInput struct {
	UserID  string
	NovelID string
	Scope   string
}

// RunSummary reports one batch processor run to the trigger caller.
type RunSummary struct {
	Claimed   int
	Processed int
	Skipped   int
	Failed    int
}
