package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-billing/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SubscriptionStore persists the reconciled subscriptions projection keyed by
// provider_subscription_id.
type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
	now  func() time.Time
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *SubscriptionStore) Upsert(ctx context.Context, in core.UpsertSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	subscriptionID := strings.TrimSpace(in.ProviderSubscriptionID)
	if subscriptionID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: provider subscription id is required")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription status is required")
	}

	now := s.now()
	record := &subscriptionRecord{
		ID:                     uuid.NewString(),
		ProviderSubscriptionID: subscriptionID,
		Status:                 status,
		CurrentPeriodEnd:       cloneTimePointer(in.CurrentPeriodEnd),
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		UserID:                 strings.TrimSpace(in.UserID),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if !in.EventReceivedAt.IsZero() {
		receivedAt := in.EventReceivedAt.UTC()
		record.EventReceivedAt = &receivedAt
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_subscription_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("current_period_end = EXCLUDED.current_period_end").
		Set("cancel_at_period_end = EXCLUDED.cancel_at_period_end").
		Set("user_id = EXCLUDED.user_id").
		Set("event_received_at = EXCLUDED.event_received_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	return s.GetBySubscriptionID(ctx, subscriptionID)
}

func (s *SubscriptionStore) GetBySubscriptionID(ctx context.Context, providerSubscriptionID string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record := &subscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_subscription_id = ?", strings.TrimSpace(providerSubscriptionID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subscription{}, core.ErrSubscriptionNotFound
		}
		return core.Subscription{}, err
	}
	return subscriptionToDomain(record), nil
}

func subscriptionToDomain(record *subscriptionRecord) core.Subscription {
	if record == nil {
		return core.Subscription{}
	}
	subscription := core.Subscription{
		ID:                     record.ID,
		ProviderSubscriptionID: record.ProviderSubscriptionID,
		Status:                 record.Status,
		CancelAtPeriodEnd:      record.CancelAtPeriodEnd,
		UserID:                 record.UserID,
		CreatedAt:              record.CreatedAt,
		UpdatedAt:              record.UpdatedAt,
	}
	subscription.CurrentPeriodEnd = cloneTimePointer(record.CurrentPeriodEnd)
	subscription.EventReceivedAt = cloneTimePointer(record.EventReceivedAt)
	return subscription
}

var _ core.SubscriptionStore = (*SubscriptionStore)(nil)
