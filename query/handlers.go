package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-billing/core"
)

type EventReader interface {
	GetEvent(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error)
	ListOutstandingEvents(ctx context.Context, limit int) ([]core.WebhookEvent, error)
}

type OrderReader interface {
	GetOrderByCheckoutID(ctx context.Context, providerCheckoutID string) (core.Order, error)
}

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, providerSubscriptionID string) (core.Subscription, error)
}

type EntitlementReader interface {
	HasEntitlement(ctx context.Context, userID string, novelID string, scope string) (bool, error)
	ListEntitlements(ctx context.Context, userID string) ([]core.Entitlement, error)
}

type GetEventQuery struct {
	reader EventReader
}

func NewGetEventQuery(reader EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEvent{}, queryDependencyError("query: event reader is required")
	}
	return q.reader.GetEvent(ctx, msg.Provider, msg.EventID)
}

type ListOutstandingEventsQuery struct {
	reader EventReader
}

func NewListOutstandingEventsQuery(reader EventReader) *ListOutstandingEventsQuery {
	return &ListOutstandingEventsQuery{reader: reader}
}

func (q *ListOutstandingEventsQuery) Query(ctx context.Context, msg ListOutstandingEventsMessage) ([]core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	return q.reader.ListOutstandingEvents(ctx, msg.Limit)
}

type GetOrderQuery struct {
	reader OrderReader
}

func NewGetOrderQuery(reader OrderReader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (core.Order, error) {
	if q == nil || q.reader == nil {
		return core.Order{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.GetOrderByCheckoutID(ctx, msg.ProviderCheckoutID)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	return q.reader.GetSubscription(ctx, msg.ProviderSubscriptionID)
}

type HasEntitlementQuery struct {
	reader EntitlementReader
}

func NewHasEntitlementQuery(reader EntitlementReader) *HasEntitlementQuery {
	return &HasEntitlementQuery{reader: reader}
}

func (q *HasEntitlementQuery) Query(ctx context.Context, msg HasEntitlementMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: entitlement reader is required")
	}
	scope := strings.TrimSpace(msg.Scope)
	if scope == "" {
		scope = core.EntitlementScopeWholeBook
	}
	return q.reader.HasEntitlement(ctx, msg.UserID, msg.NovelID, scope)
}

type ListEntitlementsQuery struct {
	reader EntitlementReader
}

func NewListEntitlementsQuery(reader EntitlementReader) *ListEntitlementsQuery {
	return &ListEntitlementsQuery{reader: reader}
}

func (q *ListEntitlementsQuery) Query(ctx context.Context, msg ListEntitlementsMessage) ([]core.Entitlement, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: entitlement reader is required")
	}
	return q.reader.ListEntitlements(ctx, msg.UserID)
}
