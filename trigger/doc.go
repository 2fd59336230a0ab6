// Package trigger runs the reconcile pipeline off a job queue. A Runner
// consumes deliveries from a core.JobDequeuer and maps them onto batch
// processing or event replay; a Scheduler enqueues those jobs with
// deduplicating idempotency keys so overlapping triggers coalesce.
package trigger
