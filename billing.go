package billing

import "github.com/goliatone/go-billing/core"

type Config = core.Config

type ProcessorConfig = core.ProcessorConfig

type WebhookEvent = core.WebhookEvent
type ProcessStatus = core.ProcessStatus
type AppendEventInput = core.AppendEventInput
type AppendEventResult = core.AppendEventResult

type Order = core.Order
type UpsertOrderInput = core.UpsertOrderInput
type Subscription = core.Subscription
type UpsertSubscriptionInput = core.UpsertSubscriptionInput
type Entitlement = core.Entitlement
type GrantEntitlementInput = core.GrantEntitlementInput
type RunSummary = core.RunSummary

type EventStore = core.EventStore
type OrderStore = core.OrderStore
type SubscriptionStore = core.SubscriptionStore
type EntitlementStore = core.EntitlementStore
type StoreProvider = core.StoreProvider

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider

func DefaultConfig() Config {
	return core.DefaultConfig()
}
