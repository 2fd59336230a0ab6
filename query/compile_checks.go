package query

import (
	"github.com/goliatone/go-billing/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetEventMessage, core.WebhookEvent]                = (*GetEventQuery)(nil)
	_ gocmd.Querier[ListOutstandingEventsMessage, []core.WebhookEvent] = (*ListOutstandingEventsQuery)(nil)
	_ gocmd.Querier[GetOrderMessage, core.Order]                       = (*GetOrderQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]         = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[HasEntitlementMessage, bool]                       = (*HasEntitlementQuery)(nil)
	_ gocmd.Querier[ListEntitlementsMessage, []core.Entitlement]       = (*ListEntitlementsQuery)(nil)
)
