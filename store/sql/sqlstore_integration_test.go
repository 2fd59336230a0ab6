package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-billing/core"
	billingmigrations "github.com/goliatone/go-billing/migrations"
	sqlstore "github.com/goliatone/go-billing/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-billing-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:billing-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = billingmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != billingmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, billingmigrations.WithValidationTargets(billingmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"billing_webhook_events",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "billing_webhook_events" {
		t.Fatalf("expected billing_webhook_events table, got %q", tableName)
	}
}

func TestEventStore_AppendDedupesOnProviderEventID(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()

	first, err := events.Append(ctx, core.AppendEventInput{
		Provider: "polar",
		EventID:  "wh_1",
		Type:     "checkout.completed",
		Payload:  map[string]any{"data": map[string]any{"object": map[string]any{"id": "co_1"}}},
	})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Deduped {
		t.Fatalf("expected first append to create")
	}
	if first.Event.Status != core.EventStatusPending {
		t.Fatalf("expected pending status, got %q", first.Event.Status)
	}

	second, err := events.Append(ctx, core.AppendEventInput{
		Provider: "polar",
		EventID:  "wh_1",
		Type:     "checkout.completed",
		Payload:  map[string]any{"replayed": true},
	})
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if !second.Deduped {
		t.Fatalf("expected duplicate append to dedupe")
	}
	if second.Event.ID != first.Event.ID {
		t.Fatalf("expected dedupe to return the stored event")
	}
}

func TestEventStore_ClaimBatchIsExclusive(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()
	for i := 0; i < 4; i++ {
		if _, err := events.Append(ctx, core.AppendEventInput{
			Provider:   "polar",
			EventID:    fmt.Sprintf("wh_%d", i),
			Type:       "subscription.active",
			Payload:    map[string]any{"n": i},
			ReceivedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var mu sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch, err := events.ClaimBatch(ctx, 2, 30*time.Second)
			if err != nil {
				t.Errorf("claim batch: %v", err)
				return
			}
			mu.Lock()
			for _, event := range batch {
				claimed[event.EventID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	total := 0
	for eventID, count := range claimed {
		if count != 1 {
			t.Fatalf("event %s claimed %d times", eventID, count)
		}
		total++
	}
	if total != 4 {
		t.Fatalf("expected all 4 events claimed exactly once, got %d", total)
	}
}

func TestEventStore_ClaimOrderAndLeaseRecovery(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"wh_b", "wh_a", "wh_c"} {
		if _, err := events.Append(ctx, core.AppendEventInput{
			Provider:   "polar",
			EventID:    id,
			Type:       "subscription.active",
			Payload:    map[string]any{},
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	batch, err := events.ClaimBatch(ctx, 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(batch))
	}
	if batch[0].EventID != "wh_b" || batch[1].EventID != "wh_a" || batch[2].EventID != "wh_c" {
		t.Fatalf("expected received_at ordering, got %v", []string{batch[0].EventID, batch[1].EventID, batch[2].EventID})
	}
	for _, event := range batch {
		if event.Status != core.EventStatusProcessing {
			t.Fatalf("expected processing status, got %q", event.Status)
		}
		if event.LeaseExpiresAt == nil {
			t.Fatalf("expected lease expiry to be set")
		}
	}

	// Claimed events are invisible while the lease holds.
	batch, err = events.ClaimBatch(ctx, 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected no claims while leases hold, got %d", len(batch))
	}

	// A crashed processor's events come back once the lease expires.
	time.Sleep(80 * time.Millisecond)
	batch, err = events.ClaimBatch(ctx, 10, 30*time.Second)
	if err != nil {
		t.Fatalf("post-lease claim: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected lease-expired events to be reclaimed, got %d", len(batch))
	}
}

func TestEventStore_MarkProcessedIsTerminalAndIdempotent(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()
	appended, err := events.Append(ctx, core.AppendEventInput{
		Provider: "polar",
		EventID:  "wh_1",
		Type:     "checkout.completed",
		Payload:  map[string]any{},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := events.ClaimBatch(ctx, 1, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := events.MarkProcessed(ctx, appended.Event.ID, core.EventStatusSuccess); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	stored, err := events.Get(ctx, "polar", "wh_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.EventStatusSuccess {
		t.Fatalf("expected success, got %q", stored.Status)
	}
	if stored.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}

	// A stale re-mark must not regress the terminal status.
	if err := events.MarkProcessed(ctx, appended.Event.ID, core.EventStatusSkipped); err != nil {
		t.Fatalf("re-mark processed: %v", err)
	}
	stored, err = events.Get(ctx, "polar", "wh_1")
	if err != nil {
		t.Fatalf("get after re-mark: %v", err)
	}
	if stored.Status != core.EventStatusSuccess {
		t.Fatalf("terminal status regressed to %q", stored.Status)
	}

	// Terminal events stay out of the claim pool.
	batch, err := events.ClaimBatch(ctx, 10, 30*time.Second)
	if err != nil {
		t.Fatalf("claim after terminal: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected no claims, got %d", len(batch))
	}
}

func TestEventStore_MarkFailedSchedulesRetryThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()
	appended, err := events.Append(ctx, core.AppendEventInput{
		Provider: "polar",
		EventID:  "wh_1",
		Type:     "checkout.completed",
		Payload:  map[string]any{},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	eventID := appended.Event.ID

	if _, err := events.ClaimBatch(ctx, 1, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if err := events.MarkFailed(ctx, eventID, errors.New("orders table down"), past, 2); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	stored, err := events.Get(ctx, "polar", "wh_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.EventStatusFailed {
		t.Fatalf("expected failed, got %q", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", stored.Attempts)
	}
	if stored.LastError == "" {
		t.Fatalf("expected last_error to be recorded")
	}

	// The retry gate has passed, so the event is claimable again.
	batch, err := events.ClaimBatch(ctx, 1, 30*time.Second)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected failed event to be reclaimed, got %d", len(batch))
	}

	// Second failure exhausts maxAttempts=2 and dead-letters.
	if err := events.MarkFailed(ctx, eventID, errors.New("still down"), past, 2); err != nil {
		t.Fatalf("mark failed again: %v", err)
	}
	stored, err = events.Get(ctx, "polar", "wh_1")
	if err != nil {
		t.Fatalf("get after dead letter: %v", err)
	}
	if stored.Status != core.EventStatusDeadLetter {
		t.Fatalf("expected dead_letter, got %q", stored.Status)
	}
	if stored.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", stored.Attempts)
	}

	batch, err = events.ClaimBatch(ctx, 10, 30*time.Second)
	if err != nil {
		t.Fatalf("claim after dead letter: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("dead letter event must not be claimable, got %d claims", len(batch))
	}
}

func TestEventStore_ResetForReplay(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()
	appended, err := events.Append(ctx, core.AppendEventInput{
		Provider: "polar",
		EventID:  "wh_1",
		Type:     "checkout.completed",
		Payload:  map[string]any{},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := events.ResetForReplay(ctx, "polar", "wh_missing"); !errors.Is(err, core.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if _, err := events.ResetForReplay(ctx, "polar", "wh_1"); !errors.Is(err, core.ErrEventTerminal) {
		t.Fatalf("expected ErrEventTerminal for pending event, got %v", err)
	}

	if _, err := events.ClaimBatch(ctx, 1, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := events.MarkFailed(ctx, appended.Event.ID, errors.New("boom"), time.Now().UTC().Add(time.Hour), 8); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	replayed, err := events.ResetForReplay(ctx, "polar", "wh_1")
	if err != nil {
		t.Fatalf("reset for replay: %v", err)
	}
	if replayed.Status != core.EventStatusPending {
		t.Fatalf("expected pending after replay, got %q", replayed.Status)
	}
	if replayed.NextAttemptAt != nil {
		t.Fatalf("expected retry gate cleared, got %v", replayed.NextAttemptAt)
	}

	batch, err := events.ClaimBatch(ctx, 1, 30*time.Second)
	if err != nil {
		t.Fatalf("claim after replay: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected replayed event to be claimable, got %d", len(batch))
	}
}

func TestEventStore_ListOutstandingSkipsTerminalRows(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	events := factory.EventStore()
	for i := 0; i < 3; i++ {
		if _, err := events.Append(ctx, core.AppendEventInput{
			Provider:   "polar",
			EventID:    fmt.Sprintf("wh_%d", i),
			Type:       "checkout.completed",
			Payload:    map[string]any{},
			ReceivedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	batch, err := events.ClaimBatch(ctx, 1, 30*time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := events.MarkProcessed(ctx, batch[0].ID, core.EventStatusSuccess); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	outstanding, err := events.ListOutstanding(ctx, 10)
	if err != nil {
		t.Fatalf("list outstanding: %v", err)
	}
	if len(outstanding) != 2 {
		t.Fatalf("expected two outstanding events, got %d", len(outstanding))
	}
	if outstanding[0].EventID != "wh_1" || outstanding[1].EventID != "wh_2" {
		t.Fatalf("expected received_at ordering, got %q then %q",
			outstanding[0].EventID, outstanding[1].EventID)
	}

	limited, err := events.ListOutstanding(ctx, 1)
	if err != nil {
		t.Fatalf("list outstanding limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestOrderStore_UpsertOverwritesByCheckoutID(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	orders := factory.OrderStore()

	amount := 999.0
	paidAt := time.Date(2026, 1, 1, 11, 59, 0, 0, time.UTC)
	first, err := orders.Upsert(ctx, core.UpsertOrderInput{
		ProviderCheckoutID: "co_1",
		Status:             core.OrderStatusCompleted,
		Amount:             &amount,
		Currency:           "USD",
		PaidAt:             &paidAt,
		UserID:             "u1",
		EventReceivedAt:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Status != core.OrderStatusCompleted {
		t.Fatalf("expected completed, got %q", first.Status)
	}

	second, err := orders.Upsert(ctx, core.UpsertOrderInput{
		ProviderCheckoutID: "co_1",
		Status:             core.OrderStatusRefunded,
		Amount:             &amount,
		Currency:           "USD",
		UserID:             "u1",
		EventReceivedAt:    time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to land on the same row")
	}
	if second.Status != core.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %q", second.Status)
	}
	if second.PaidAt != nil {
		t.Fatalf("expected paid_at overwritten to NULL, got %v", second.PaidAt)
	}

	if _, err := orders.GetByCheckoutID(ctx, "co_missing"); !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestSubscriptionStore_UpsertOverwritesBySubscriptionID(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	subscriptions := factory.SubscriptionStore()

	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	first, err := subscriptions.Upsert(ctx, core.UpsertSubscriptionInput{
		ProviderSubscriptionID: "sub_1",
		Status:                 core.SubscriptionStatusActive,
		CurrentPeriodEnd:       &periodEnd,
		UserID:                 "u1",
		EventReceivedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.CancelAtPeriodEnd {
		t.Fatalf("did not expect cancel flag")
	}

	second, err := subscriptions.Upsert(ctx, core.UpsertSubscriptionInput{
		ProviderSubscriptionID: "sub_1",
		Status:                 core.SubscriptionStatusActive,
		CurrentPeriodEnd:       &periodEnd,
		CancelAtPeriodEnd:      true,
		UserID:                 "u1",
		EventReceivedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to land on the same row")
	}
	if !second.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end to be set")
	}

	if _, err := subscriptions.GetBySubscriptionID(ctx, "sub_missing"); !errors.Is(err, core.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestEntitlementStore_GrantOnce(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	entitlements := factory.EntitlementStore()

	first, created, err := entitlements.Grant(ctx, core.GrantEntitlementInput{
		UserID:  "u1",
		NovelID: "n1",
		Scope:   core.EntitlementScopeWholeBook,
	})
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if !created {
		t.Fatalf("expected first grant to create")
	}

	second, created, err := entitlements.Grant(ctx, core.GrantEntitlementInput{
		UserID:  "u1",
		NovelID: "n1",
		Scope:   core.EntitlementScopeWholeBook,
	})
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate grant to be a no-op")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing grant back")
	}

	has, err := entitlements.Has(ctx, "u1", "n1", core.EntitlementScopeWholeBook)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if !has {
		t.Fatalf("expected entitlement to exist")
	}

	has, err = entitlements.Has(ctx, "u1", "n2", core.EntitlementScopeWholeBook)
	if err != nil {
		t.Fatalf("has other novel: %v", err)
	}
	if has {
		t.Fatalf("did not expect entitlement for another novel")
	}

	listed, err := entitlements.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one entitlement, got %d", len(listed))
	}
}
