// Package core defines the billing domain model and the contracts shared by
// the reconciliation pipeline: webhook events, reconciled projections
// (orders, subscriptions, entitlements), store interfaces, and configuration.
//
// Webhook event processing is driven by a claim lifecycle:
// pending/failed -> processing -> success|skipped|failed|dead_letter.
// success, skipped, and dead_letter are terminal; claimed events never
// revert to pending, and a stale processing claim is reclaimable once its
// lease expires.
package core
