package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-billing/core"
)

type memoryEventStore struct {
	mu     sync.Mutex
	events map[string]*core.WebhookEvent
	nextID int
	now    func() time.Time
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{
		events: map[string]*core.WebhookEvent{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *memoryEventStore) Append(_ context.Context, in core.AppendEventInput) (core.AppendEventResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.Provider == in.Provider && event.EventID == in.EventID {
			return core.AppendEventResult{Event: *event, Deduped: true}, nil
		}
	}
	s.nextID++
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	event := &core.WebhookEvent{
		ID:         fmt.Sprintf("evt-%d", s.nextID),
		Provider:   in.Provider,
		EventID:    in.EventID,
		Type:       in.Type,
		Payload:    in.Payload,
		ReceivedAt: receivedAt,
		Status:     core.EventStatusPending,
	}
	s.events[event.ID] = event
	return core.AppendEventResult{Event: *event}, nil
}

func (s *memoryEventStore) ClaimBatch(_ context.Context, limit int, lease time.Duration) ([]core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	candidates := make([]*core.WebhookEvent, 0, len(s.events))
	for _, event := range s.events {
		eligible := false
		switch event.Status {
		case core.EventStatusPending, core.EventStatusFailed:
			eligible = event.NextAttemptAt == nil || !event.NextAttemptAt.After(now)
		case core.EventStatusProcessing:
			eligible = event.LeaseExpiresAt != nil && !event.LeaseExpiresAt.After(now)
		}
		if eligible {
			candidates = append(candidates, event)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReceivedAt.Before(candidates[j].ReceivedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]core.WebhookEvent, 0, len(candidates))
	for _, event := range candidates {
		event.Status = core.EventStatusProcessing
		leaseExpiry := now.Add(lease)
		event.LeaseExpiresAt = &leaseExpiry
		claimed = append(claimed, *event)
	}
	return claimed, nil
}

func (s *memoryEventStore) MarkProcessed(_ context.Context, id string, outcome core.ProcessStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return core.ErrEventNotFound
	}
	if event.Status.Terminal() {
		return nil
	}
	now := s.now()
	event.Status = outcome
	event.ProcessedAt = &now
	event.NextAttemptAt = nil
	event.LeaseExpiresAt = nil
	event.LastError = ""
	return nil
}

func (s *memoryEventStore) MarkFailed(_ context.Context, id string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return core.ErrEventNotFound
	}
	now := s.now()
	event.Attempts++
	event.LeaseExpiresAt = nil
	if cause != nil {
		event.LastError = cause.Error()
	}
	if maxAttempts > 0 && event.Attempts >= maxAttempts {
		event.Status = core.EventStatusDeadLetter
		event.NextAttemptAt = nil
		event.ProcessedAt = &now
		return nil
	}
	event.Status = core.EventStatusFailed
	next := nextAttemptAt
	event.NextAttemptAt = &next
	return nil
}

func (s *memoryEventStore) ResetForReplay(_ context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.Provider != provider || event.EventID != eventID {
			continue
		}
		switch event.Status {
		case core.EventStatusFailed, core.EventStatusDeadLetter:
			event.Status = core.EventStatusPending
			event.NextAttemptAt = nil
			event.LeaseExpiresAt = nil
			return *event, nil
		default:
			return core.WebhookEvent{}, core.ErrEventTerminal
		}
	}
	return core.WebhookEvent{}, core.ErrEventNotFound
}

func (s *memoryEventStore) ListOutstanding(_ context.Context, limit int) ([]core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outstanding := make([]core.WebhookEvent, 0, len(s.events))
	for _, event := range s.events {
		if !event.Status.Terminal() {
			outstanding = append(outstanding, *event)
		}
	}
	sort.Slice(outstanding, func(i, j int) bool {
		return outstanding[i].ReceivedAt.Before(outstanding[j].ReceivedAt)
	})
	if limit > 0 && len(outstanding) > limit {
		outstanding = outstanding[:limit]
	}
	return outstanding, nil
}

func (s *memoryEventStore) Get(_ context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.Provider == provider && event.EventID == eventID {
			return *event, nil
		}
	}
	return core.WebhookEvent{}, core.ErrEventNotFound
}

type memoryOrderStore struct {
	mu      sync.Mutex
	orders  map[string]core.Order
	upserts int
	failErr error
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{orders: map[string]core.Order{}}
}

func (s *memoryOrderStore) Upsert(_ context.Context, in core.UpsertOrderInput) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return core.Order{}, s.failErr
	}
	s.upserts++
	receivedAt := in.EventReceivedAt
	order := core.Order{
		ID:                 in.ProviderCheckoutID,
		ProviderCheckoutID: in.ProviderCheckoutID,
		Status:             in.Status,
		Amount:             in.Amount,
		Currency:           in.Currency,
		PaidAt:             in.PaidAt,
		UserID:             in.UserID,
		EventReceivedAt:    &receivedAt,
	}
	s.orders[in.ProviderCheckoutID] = order
	return order, nil
}

func (s *memoryOrderStore) GetByCheckoutID(_ context.Context, providerCheckoutID string) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[providerCheckoutID]
	if !ok {
		return core.Order{}, core.ErrOrderNotFound
	}
	return order, nil
}

type memorySubscriptionStore struct {
	mu            sync.Mutex
	subscriptions map[string]core.Subscription
	upserts       int
	failErr       error
}

func newMemorySubscriptionStore() *memorySubscriptionStore {
	return &memorySubscriptionStore{subscriptions: map[string]core.Subscription{}}
}

func (s *memorySubscriptionStore) Upsert(_ context.Context, in core.UpsertSubscriptionInput) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return core.Subscription{}, s.failErr
	}
	s.upserts++
	receivedAt := in.EventReceivedAt
	subscription := core.Subscription{
		ID:                     in.ProviderSubscriptionID,
		ProviderSubscriptionID: in.ProviderSubscriptionID,
		Status:                 in.Status,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		UserID:                 in.UserID,
		EventReceivedAt:        &receivedAt,
	}
	s.subscriptions[in.ProviderSubscriptionID] = subscription
	return subscription, nil
}

func (s *memorySubscriptionStore) GetBySubscriptionID(_ context.Context, providerSubscriptionID string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.subscriptions[providerSubscriptionID]
	if !ok {
		return core.Subscription{}, core.ErrSubscriptionNotFound
	}
	return subscription, nil
}

type memoryEntitlementStore struct {
	mu     sync.Mutex
	grants map[string]core.Entitlement
	writes int
}

func newMemoryEntitlementStore() *memoryEntitlementStore {
	return &memoryEntitlementStore{grants: map[string]core.Entitlement{}}
}

func entitlementKey(userID, novelID, scope string) string {
	return userID + "::" + novelID + "::" + scope
}

func (s *memoryEntitlementStore) Grant(_ context.Context, in core.GrantEntitlementInput) (core.Entitlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	key := entitlementKey(in.UserID, in.NovelID, in.Scope)
	if existing, ok := s.grants[key]; ok {
		return existing, false, nil
	}
	entitlement := core.Entitlement{
		ID:      key,
		UserID:  in.UserID,
		NovelID: in.NovelID,
		Scope:   in.Scope,
	}
	s.grants[key] = entitlement
	return entitlement, true, nil
}

func (s *memoryEntitlementStore) Has(_ context.Context, userID string, novelID string, scope string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.grants[entitlementKey(userID, novelID, scope)]
	return ok, nil
}

func (s *memoryEntitlementStore) ListByUser(_ context.Context, userID string) ([]core.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Entitlement
	for _, entitlement := range s.grants {
		if entitlement.UserID == userID {
			out = append(out, entitlement)
		}
	}
	return out, nil
}

var (
	_ core.EventStore        = (*memoryEventStore)(nil)
	_ core.OrderStore        = (*memoryOrderStore)(nil)
	_ core.SubscriptionStore = (*memorySubscriptionStore)(nil)
	_ core.EntitlementStore  = (*memoryEntitlementStore)(nil)
)
