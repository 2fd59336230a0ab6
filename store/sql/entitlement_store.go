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

// EntitlementStore persists access grants. Rows are insert-only; Grant uses
// ON CONFLICT DO NOTHING so replays and duplicate checkouts never error and
// never revoke.
type EntitlementStore struct {
	db   *bun.DB
	repo repository.Repository[*entitlementRecord]
	now  func() time.Time
}

func NewEntitlementStore(db *bun.DB) (*EntitlementStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entitlementRecord](db, entitlementHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entitlement repository wiring: %w", err)
		}
	}
	return &EntitlementStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *EntitlementStore) Grant(ctx context.Context, in core.GrantEntitlementInput) (core.Entitlement, bool, error) {
	if s == nil || s.db == nil {
		return core.Entitlement{}, false, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	userID := strings.TrimSpace(in.UserID)
	novelID := strings.TrimSpace(in.NovelID)
	scope := strings.TrimSpace(in.Scope)
	if userID == "" || novelID == "" {
		return core.Entitlement{}, false, fmt.Errorf("sqlstore: user id and novel id are required")
	}
	if scope == "" {
		scope = core.EntitlementScopeWholeBook
	}

	record := &entitlementRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		NovelID:   novelID,
		Scope:     scope,
		CreatedAt: s.now(),
	}
	result, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (user_id, novel_id, scope) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return core.Entitlement{}, false, err
	}

	created := false
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil {
		created = affected > 0
	}

	existing, err := s.get(ctx, userID, novelID, scope)
	if err != nil {
		return core.Entitlement{}, false, err
	}
	return existing, created, nil
}

func (s *EntitlementStore) Has(ctx context.Context, userID string, novelID string, scope string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	count, err := s.db.NewSelect().
		Model((*entitlementRecord)(nil)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Where("?TableAlias.novel_id = ?", strings.TrimSpace(novelID)).
		Where("?TableAlias.scope = ?", strings.TrimSpace(scope)).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *EntitlementStore) ListByUser(ctx context.Context, userID string) ([]core.Entitlement, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: entitlement store is not configured")
	}
	var records []entitlementRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	entitlements := make([]core.Entitlement, 0, len(records))
	for i := range records {
		entitlements = append(entitlements, entitlementToDomain(&records[i]))
	}
	return entitlements, nil
}

func (s *EntitlementStore) get(ctx context.Context, userID string, novelID string, scope string) (core.Entitlement, error) {
	record := &entitlementRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.novel_id = ?", novelID).
		Where("?TableAlias.scope = ?", scope).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Entitlement{}, fmt.Errorf(
				"sqlstore: entitlement not found for user %q novel %q scope %q",
				userID, novelID, scope,
			)
		}
		return core.Entitlement{}, err
	}
	return entitlementToDomain(record), nil
}

func entitlementToDomain(record *entitlementRecord) core.Entitlement {
	if record == nil {
		return core.Entitlement{}
	}
	return core.Entitlement{
		ID:        record.ID,
		UserID:    record.UserID,
		NovelID:   record.NovelID,
		Scope:     record.Scope,
		CreatedAt: record.CreatedAt,
	}
}

var _ core.EntitlementStore = (*EntitlementStore)(nil)
