package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:billing_webhook_events,alias:bwe"`

	ID             string         `bun:"id,pk"`
	Provider       string         `bun:"provider,notnull"`
	EventID        string         `bun:"event_id,notnull"`
	EventType      string         `bun:"event_type,notnull"`
	Payload        map[string]any `bun:"payload,type:jsonb,notnull"`
	ReceivedAt     time.Time      `bun:"received_at,nullzero,notnull"`
	Status         string         `bun:"status,notnull"`
	Attempts       int            `bun:"attempts,notnull"`
	NextAttemptAt  *time.Time     `bun:"next_attempt_at,nullzero"`
	LeaseExpiresAt *time.Time     `bun:"lease_expires_at,nullzero"`
	ProcessedAt    *time.Time     `bun:"processed_at,nullzero"`
	LastError      string         `bun:"last_error"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderRecord struct {
	bun.BaseModel `bun:"table:billing_orders,alias:bo"`

	ID                 string     `bun:"id,pk"`
	ProviderCheckoutID string     `bun:"provider_checkout_id,notnull"`
	Status             string     `bun:"status,notnull"`
	Amount             *float64   `bun:"amount,nullzero"`
	Currency           string     `bun:"currency,notnull"`
	PaidAt             *time.Time `bun:"paid_at,nullzero"`
	UserID             string     `bun:"user_id"`
	EventReceivedAt    *time.Time `bun:"event_received_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:billing_subscriptions,alias:bs"`

	ID                     string     `bun:"id,pk"`
	ProviderSubscriptionID string     `bun:"provider_subscription_id,notnull"`
	Status                 string     `bun:"status,notnull"`
	CurrentPeriodEnd       *time.Time `bun:"current_period_end,nullzero"`
	CancelAtPeriodEnd      bool       `bun:"cancel_at_period_end,notnull"`
	UserID                 string     `bun:"user_id"`
	EventReceivedAt        *time.Time `bun:"event_received_at,nullzero"`
	CreatedAt              time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type entitlementRecord struct {
	bun.BaseModel `bun:"table:billing_entitlements,alias:be"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	NovelID   string    `bun:"novel_id,notnull"`
	Scope     string    `bun:"scope,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
