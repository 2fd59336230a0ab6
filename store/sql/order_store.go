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

// OrderStore persists the reconciled orders projection. Upserts are keyed by
// provider_checkout_id; a later event for the same checkout overwrites the
// lifecycle columns unconditionally.
type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*orderRecord]
	now  func() time.Time
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *OrderStore) Upsert(ctx context.Context, in core.UpsertOrderInput) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	checkoutID := strings.TrimSpace(in.ProviderCheckoutID)
	if checkoutID == "" {
		return core.Order{}, fmt.Errorf("sqlstore: provider checkout id is required")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		return core.Order{}, fmt.Errorf("sqlstore: order status is required")
	}

	now := s.now()
	record := &orderRecord{
		ID:                 uuid.NewString(),
		ProviderCheckoutID: checkoutID,
		Status:             status,
		Amount:             in.Amount,
		Currency:           strings.TrimSpace(in.Currency),
		PaidAt:             cloneTimePointer(in.PaidAt),
		UserID:             strings.TrimSpace(in.UserID),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !in.EventReceivedAt.IsZero() {
		receivedAt := in.EventReceivedAt.UTC()
		record.EventReceivedAt = &receivedAt
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_checkout_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("amount = EXCLUDED.amount").
		Set("currency = EXCLUDED.currency").
		Set("paid_at = EXCLUDED.paid_at").
		Set("user_id = EXCLUDED.user_id").
		Set("event_received_at = EXCLUDED.event_received_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Order{}, err
	}
	return s.GetByCheckoutID(ctx, checkoutID)
}

func (s *OrderStore) GetByCheckoutID(ctx context.Context, providerCheckoutID string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	record := &orderRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_checkout_id = ?", strings.TrimSpace(providerCheckoutID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Order{}, core.ErrOrderNotFound
		}
		return core.Order{}, err
	}
	return orderToDomain(record), nil
}

func orderToDomain(record *orderRecord) core.Order {
	if record == nil {
		return core.Order{}
	}
	order := core.Order{
		ID:                 record.ID,
		ProviderCheckoutID: record.ProviderCheckoutID,
		Status:             record.Status,
		Currency:           record.Currency,
		UserID:             record.UserID,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
	if record.Amount != nil {
		amount := *record.Amount
		order.Amount = &amount
	}
	order.PaidAt = cloneTimePointer(record.PaidAt)
	order.EventReceivedAt = cloneTimePointer(record.EventReceivedAt)
	return order
}

var _ core.OrderStore = (*OrderStore)(nil)
