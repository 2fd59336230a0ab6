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

// EventStore persists webhook events in billing_webhook_events. Claims are a
// single UPDATE ... RETURNING inside a transaction, so two processors polling
// the same table never receive the same event.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
	now  func() time.Time
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &EventStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *EventStore) Append(ctx context.Context, in core.AppendEventInput) (core.AppendEventResult, error) {
	if s == nil || s.db == nil {
		return core.AppendEventResult{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	provider := strings.TrimSpace(in.Provider)
	eventID := strings.TrimSpace(in.EventID)
	eventType := strings.TrimSpace(in.Type)
	if provider == "" || eventID == "" {
		return core.AppendEventResult{}, fmt.Errorf("sqlstore: provider and event id are required")
	}
	if eventType == "" {
		return core.AppendEventResult{}, fmt.Errorf("sqlstore: event type is required")
	}

	now := s.now()
	receivedAt := in.ReceivedAt.UTC()
	if in.ReceivedAt.IsZero() {
		receivedAt = now
	}
	record := &webhookEventRecord{
		ID:         uuid.NewString(),
		Provider:   provider,
		EventID:    eventID,
		EventType:  eventType,
		Payload:    copyAnyMap(in.Payload),
		ReceivedAt: receivedAt,
		Status:     string(core.EventStatusPending),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if record.Payload == nil {
		record.Payload = map[string]any{}
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, provider, eventID)
			if getErr != nil {
				return core.AppendEventResult{}, getErr
			}
			return core.AppendEventResult{Event: existing, Deduped: true}, nil
		}
		return core.AppendEventResult{}, err
	}
	return core.AppendEventResult{Event: webhookEventToDomain(record)}, nil
}

func (s *EventStore) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := s.now()
	leaseExpiry := now.Add(lease)

	var records []webhookEventRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimable AS (
	SELECT id
	FROM billing_webhook_events
	WHERE (status IN (?, ?) AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
	   OR (status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
	ORDER BY received_at ASC
	LIMIT ?
)
UPDATE billing_webhook_events
SET status = ?, lease_expires_at = ?, next_attempt_at = NULL, updated_at = ?
WHERE id IN (SELECT id FROM claimable)
  AND status IN (?, ?, ?)
RETURNING
	id,
	provider,
	event_id,
	event_type,
	payload,
	received_at,
	status,
	attempts,
	next_attempt_at,
	lease_expires_at,
	processed_at,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.EventStatusPending),
			string(core.EventStatusFailed),
			now,
			string(core.EventStatusProcessing),
			now,
			limit,
			string(core.EventStatusProcessing),
			leaseExpiry,
			now,
			string(core.EventStatusPending),
			string(core.EventStatusFailed),
			string(core.EventStatusProcessing),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	events := make([]core.WebhookEvent, 0, len(records))
	for i := range records {
		events = append(events, webhookEventToDomain(&records[i]))
	}
	return events, nil
}

func (s *EventStore) MarkProcessed(ctx context.Context, id string, outcome core.ProcessStatus) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	if outcome != core.EventStatusSuccess && outcome != core.EventStatusSkipped {
		return fmt.Errorf("sqlstore: unsupported processed outcome %q", outcome)
	}

	now := s.now()
	// Terminal rows are left alone so re-marking after a crash is a no-op.
	_, err := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(outcome)).
		Set("processed_at = ?", now).
		Set("next_attempt_at = NULL").
		Set("lease_expires_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status NOT IN (?, ?, ?)",
			string(core.EventStatusSuccess),
			string(core.EventStatusSkipped),
			string(core.EventStatusDeadLetter),
		).
		Exec(ctx)
	return err
}

func (s *EventStore) MarkFailed(ctx context.Context, id string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}

	record, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if core.ProcessStatus(record.Status).Terminal() {
		return nil
	}

	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	attempts := record.Attempts + 1
	now := s.now()

	update := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("attempts = ?", attempts).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("id = ?", id)

	if maxAttempts > 0 && attempts >= maxAttempts {
		update = update.
			Set("status = ?", string(core.EventStatusDeadLetter)).
			Set("next_attempt_at = NULL").
			Set("processed_at = ?", now)
	} else {
		update = update.
			Set("status = ?", string(core.EventStatusFailed)).
			Set("next_attempt_at = ?", nextAttemptAt.UTC())
	}

	_, err = update.Exec(ctx)
	return err
}

func (s *EventStore) ResetForReplay(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	provider = strings.TrimSpace(provider)
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: provider and event id are required")
	}

	record := &webhookEventRecord{}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.provider = ?", provider).
			Where("?TableAlias.event_id = ?", eventID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrEventNotFound
			}
			return err
		}
		status := core.ProcessStatus(record.Status)
		if status != core.EventStatusFailed && status != core.EventStatusDeadLetter {
			return core.ErrEventTerminal
		}

		now := s.now()
		_, err = tx.NewUpdate().
			Model((*webhookEventRecord)(nil)).
			Set("status = ?", string(core.EventStatusPending)).
			Set("next_attempt_at = NULL").
			Set("lease_expires_at = NULL").
			Set("processed_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		record.Status = string(core.EventStatusPending)
		record.NextAttemptAt = nil
		record.LeaseExpiresAt = nil
		record.ProcessedAt = nil
		record.UpdatedAt = now
		return nil
	})
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return webhookEventToDomain(record), nil
}

func (s *EventStore) Get(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", strings.TrimSpace(provider)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookEvent{}, core.ErrEventNotFound
		}
		return core.WebhookEvent{}, err
	}
	return webhookEventToDomain(record), nil
}

func (s *EventStore) ListOutstanding(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	var records []webhookEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status IN (?, ?, ?)",
			string(core.EventStatusPending),
			string(core.EventStatusFailed),
			string(core.EventStatusProcessing),
		).
		OrderExpr("?TableAlias.received_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]core.WebhookEvent, 0, len(records))
	for i := range records {
		events = append(events, webhookEventToDomain(&records[i]))
	}
	return events, nil
}

func (s *EventStore) getByID(ctx context.Context, id string) (*webhookEventRecord, error) {
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrEventNotFound
		}
		return nil, err
	}
	return record, nil
}

func webhookEventToDomain(record *webhookEventRecord) core.WebhookEvent {
	if record == nil {
		return core.WebhookEvent{}
	}
	event := core.WebhookEvent{
		ID:         record.ID,
		Provider:   record.Provider,
		EventID:    record.EventID,
		Type:       record.EventType,
		Payload:    copyAnyMap(record.Payload),
		ReceivedAt: record.ReceivedAt,
		Status:     core.ProcessStatus(record.Status),
		Attempts:   record.Attempts,
		LastError:  record.LastError,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	event.NextAttemptAt = cloneTimePointer(record.NextAttemptAt)
	event.LeaseExpiresAt = cloneTimePointer(record.LeaseExpiresAt)
	event.ProcessedAt = cloneTimePointer(record.ProcessedAt)
	return event
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.EventStore = (*EventStore)(nil)
