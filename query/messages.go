package query

import (
	"strings"
)

const (
	TypeGetEvent              = "billing.query.event.get"
	TypeListOutstandingEvents = "billing.query.event.outstanding"
	TypeGetOrder              = "billing.query.order.get"
	TypeGetSubscription       = "billing.query.subscription.get"
	TypeHasEntitlement        = "billing.query.entitlement.has"
	TypeListEntitlements      = "billing.query.entitlement.list"
)

type GetEventMessage struct {
	Provider string
	EventID  string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return queryValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

// ListOutstandingEventsMessage reads non-terminal events for operator
// visibility. Limit zero means use the store default.
type ListOutstandingEventsMessage struct {
	Limit int
}

func (ListOutstandingEventsMessage) Type() string { return TypeListOutstandingEvents }

func (m ListOutstandingEventsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	return nil
}

type GetOrderMessage struct {
	ProviderCheckoutID string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	if strings.TrimSpace(m.ProviderCheckoutID) == "" {
		return queryValidationError("provider_checkout_id", "provider checkout id is required")
	}
	return nil
}

type GetSubscriptionMessage struct {
	ProviderSubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.ProviderSubscriptionID) == "" {
		return queryValidationError("provider_subscription_id", "provider subscription id is required")
	}
	return nil
}

type HasEntitlementMessage struct {
	UserID  string
	NovelID string
	Scope   string
}

func (HasEntitlementMessage) Type() string { return TypeHasEntitlement }

func (m HasEntitlementMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	if strings.TrimSpace(m.NovelID) == "" {
		return queryValidationError("novel_id", "novel id is required")
	}
	return nil
}

type ListEntitlementsMessage struct {
	UserID string
}

func (ListEntitlementsMessage) Type() string { return TypeListEntitlements }

func (m ListEntitlementsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}
