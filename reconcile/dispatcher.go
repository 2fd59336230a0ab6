package reconcile

import (
	"github.com/goliatone/go-billing/core"
)

// Outcome is the terminal status a plan resolves to when its actions succeed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
)

// Plan is the dispatch table entry for one event: which reconcilers run and
// with what resolved labels. An empty OrderStatus/SubscriptionStatus means
// that reconciler does not run.
type Plan struct {
	Kind               core.EventKind
	OrderStatus        string
	SubscriptionStatus string
	// ForceCancelAtPeriodEnd marks the scheduled-cancel path, where the
	// subscription stays active but is flagged to lapse at period end.
	ForceCancelAtPeriodEnd bool
	Grant                  bool
	Outcome                Outcome
}

// PlanFor resolves the exhaustive kind -> actions mapping. Unknown kinds plan
// to skipped with no actions; new provider event types must never fail here.
func PlanFor(kind core.EventKind, payload map[string]any) Plan {
	plan := Plan{Kind: kind, Outcome: OutcomeSuccess}
	switch kind {
	case core.KindCheckoutCompleted:
		plan.OrderStatus = core.OrderStatusCompleted
		plan.Grant = true
	case core.KindSubscriptionActive, core.KindSubscriptionPaid:
		plan.SubscriptionStatus = core.SubscriptionStatusActive
	case core.KindSubscriptionTrialing:
		plan.SubscriptionStatus = core.SubscriptionStatusTrialing
	case core.KindSubscriptionUpdated:
		plan.SubscriptionStatus = updatedSubscriptionStatus(payload)
	case core.KindSubscriptionCancelScheduled:
		plan.SubscriptionStatus = core.SubscriptionStatusActive
		plan.ForceCancelAtPeriodEnd = true
	case core.KindSubscriptionCanceled:
		plan.SubscriptionStatus = core.SubscriptionStatusCanceled
	case core.KindSubscriptionExpired:
		plan.SubscriptionStatus = core.SubscriptionStatusExpired
	case core.KindSubscriptionPaused:
		plan.SubscriptionStatus = core.SubscriptionStatusPaused
	case core.KindSubscriptionPastDue, core.KindSubscriptionUnpaid:
		plan.SubscriptionStatus = core.SubscriptionStatusPastDue
	case core.KindRefundCreated:
		// The matching entitlement is deliberately left untouched; grant
		// revocation on refund is not implemented.
		plan.OrderStatus = core.OrderStatusRefunded
	case core.KindDisputeCreated:
		plan.OrderStatus = core.OrderStatusDisputed
	default:
		plan.Outcome = OutcomeSkipped
	}
	return plan
}

// updatedSubscriptionStatus trusts the provider's own status label on a
// generic update, defaulting to active when the payload carries none.
func updatedSubscriptionStatus(payload map[string]any) string {
	if status := stringField(eventObject(payload), "status"); status != "" {
		return status
	}
	return core.SubscriptionStatusActive
}
