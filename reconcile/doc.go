// Package reconcile turns claimed webhook events into idempotent writes
// against the reconciled billing projections.
//
// Each event runs through a pure dispatch table (event kind -> reconciler
// plan), then the plan's reconcilers upsert their owned tables. A failure is
// local to one event: the processor records it on the event row and moves on.
// Only a failure to claim the batch itself aborts a run.
package reconcile
